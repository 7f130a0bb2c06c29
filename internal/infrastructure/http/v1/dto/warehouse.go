package dto

import (
	"stockflow/internal/domain/allocation"
)

// --- Warehouse requests ---

// SubmitOperationRequest queues a redistribution operation.
type SubmitOperationRequest struct {
	OperationKind    string  `json:"operationKind" binding:"required"`
	ItemID           *string `json:"itemId"`
	SourceLocationID *string `json:"sourceLocationId"`
	TargetLocationID *string `json:"targetLocationId"`
	RequestedKg      *int64  `json:"requestedKg"`
}

// ToInput converts the request to the service input.
func (r SubmitOperationRequest) ToInput() (allocation.SubmitInput, error) {
	in := allocation.SubmitInput{
		Kind:        allocation.OperationKind(r.OperationKind),
		RequestedKg: r.RequestedKg,
	}
	var err error
	if in.ItemID, err = ParseOptionalID("itemId", r.ItemID); err != nil {
		return in, err
	}
	if in.SourceLocationID, err = ParseOptionalID("sourceLocationId", r.SourceLocationID); err != nil {
		return in, err
	}
	if in.TargetLocationID, err = ParseOptionalID("targetLocationId", r.TargetLocationID); err != nil {
		return in, err
	}
	return in, nil
}

// CreateLocationRequest adds a location.
type CreateLocationRequest struct {
	Name          string `json:"name" binding:"required"`
	Kind          string `json:"kind" binding:"required"`
	MaxCapacityKg int64  `json:"maxCapacityKg"`
	Description   string `json:"description"`
	Position      int    `json:"position"`
}

// ToInput converts the request to the service input.
func (r CreateLocationRequest) ToInput() allocation.CreateLocationInput {
	return allocation.CreateLocationInput{
		Name:          r.Name,
		Kind:          allocation.LocationKind(r.Kind),
		MaxCapacityKg: r.MaxCapacityKg,
		Description:   r.Description,
		Position:      r.Position,
	}
}

// ListWarehouseOperationsQuery filters GET /operations.
type ListWarehouseOperationsQuery struct {
	PageQuery
	Status        string `form:"status"`
	OperationKind string `form:"operation_kind"`
}

// ToFilter converts the query to an allocation filter.
func (q ListWarehouseOperationsQuery) ToFilter() allocation.OperationFilter {
	f := allocation.OperationFilter{Limit: q.Limit, Offset: q.Offset}
	if q.Status != "" {
		s := allocation.Status(q.Status)
		f.Status = &s
	}
	if q.OperationKind != "" {
		k := allocation.OperationKind(q.OperationKind)
		f.Kind = &k
	}
	return f
}

// TempStorageQuery filters GET /temp-storage.
type TempStorageQuery struct {
	PendingOnly bool `form:"pending_only"`
}

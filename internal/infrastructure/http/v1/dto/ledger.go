package dto

import (
	"github.com/shopspring/decimal"

	"stockflow/internal/domain/ledger"
)

// --- Ledger requests ---

// RecordOperationRequest appends one operation to the ledger.
type RecordOperationRequest struct {
	OperationKind  string          `json:"operationKind" binding:"required"`
	ItemID         string          `json:"itemId" binding:"required"`
	QuantityValue  decimal.Decimal `json:"quantityValue"`
	QuantityUnit   string          `json:"quantityUnit"`
	WeightValue    decimal.Decimal `json:"weightValue"`
	WeightUnit     string          `json:"weightUnit"`
	SourceLocation *string         `json:"sourceLocation"`
	TargetLocation *string         `json:"targetLocation"`

	// DeltaValue overrides the removed weight of a delete.
	DeltaValue *int64 `json:"deltaValue,omitempty"`
}

// ToInput converts the request to the service input.
func (r RecordOperationRequest) ToInput() (ledger.RecordInput, error) {
	itemID, err := ParseID("itemId", r.ItemID)
	if err != nil {
		return ledger.RecordInput{}, err
	}
	return ledger.RecordInput{
		Kind:           ledger.OperationKind(r.OperationKind),
		ItemID:         itemID,
		QuantityValue:  r.QuantityValue,
		QuantityUnit:   r.QuantityUnit,
		WeightValue:    r.WeightValue,
		WeightUnit:     r.WeightUnit,
		SourceLocation: r.SourceLocation,
		TargetLocation: r.TargetLocation,
		DeltaOverride:  r.DeltaValue,
	}, nil
}

// ListLedgerOperationsQuery filters GET /operations.
type ListLedgerOperationsQuery struct {
	PageQuery
	ItemID        string `form:"item_id"`
	OperationKind string `form:"operation_kind"`
}

// ToFilter converts the query to a ledger filter.
func (q ListLedgerOperationsQuery) ToFilter() (ledger.OperationFilter, error) {
	f := ledger.OperationFilter{Limit: q.Limit, Offset: q.Offset}
	if q.ItemID != "" {
		itemID, err := ParseID("item_id", q.ItemID)
		if err != nil {
			return f, err
		}
		f.ItemID = &itemID
	}
	if q.OperationKind != "" {
		k := ledger.OperationKind(q.OperationKind)
		f.Kind = &k
	}
	return f, nil
}

// ListLocationTotalsQuery filters GET /locations.
type ListLocationTotalsQuery struct {
	PageQuery
	LocationName string `form:"location_name"`
	ItemID       string `form:"item_id"`
}

// ToFilter converts the query to a ledger filter.
func (q ListLocationTotalsQuery) ToFilter() (ledger.LocationFilter, error) {
	f := ledger.LocationFilter{Limit: q.Limit, Offset: q.Offset}
	if q.LocationName != "" {
		name := q.LocationName
		f.LocationName = &name
	}
	if q.ItemID != "" {
		itemID, err := ParseID("item_id", q.ItemID)
		if err != nil {
			return f, err
		}
		f.ItemID = &itemID
	}
	return f, nil
}

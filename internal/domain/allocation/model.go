// Package allocation provides the capacity-aware redistribution engine: it
// moves stock between locations through the ledger, keeps a local capacity
// cache reconciled from the ledger, and parks overflow in temp storage until
// primary storage can take it back.
package allocation

import (
	"time"

	"github.com/shopspring/decimal"

	"stockflow/internal/core/id"
)

// LocationKind classifies a location.
type LocationKind string

const (
	LocationPrimaryStorage LocationKind = "primary_storage"
	LocationWarehouse      LocationKind = "warehouse"
	LocationTempStorage    LocationKind = "temp_storage"
)

// Location is a place that holds stock. CurrentCapacityKg is a cache of the
// ledger's total weight at Name.
type Location struct {
	ID                id.ID        `db:"id" json:"id"`
	Name              string       `db:"name" json:"name"`
	Kind              LocationKind `db:"kind" json:"kind"`
	MaxCapacityKg     int64        `db:"max_capacity_kg" json:"maxCapacityKg"`
	CurrentCapacityKg int64        `db:"current_capacity_kg" json:"currentCapacityKg"`
	Description       string       `db:"description" json:"description"`
	Position          int          `db:"position" json:"position"`
	CreatedAt         time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updatedAt"`
}

// FreeKg is the capacity still available, never negative.
func (l Location) FreeKg() int64 {
	if free := l.MaxCapacityKg - l.CurrentCapacityKg; free > 0 {
		return free
	}
	return 0
}

// LocationStats is a location with its usage.
type LocationStats struct {
	Location
	FreeKg       int64           `json:"freeKg"`
	UsagePercent decimal.Decimal `json:"usagePercent"`
}

// OperationKind identifies a redistribution request.
type OperationKind string

const (
	OpReceipt               OperationKind = "receipt"
	OpShipment              OperationKind = "shipment"
	OpTransfer              OperationKind = "transfer"
	OpGlobalDistributionAll OperationKind = "global_distribution_all"
	OpGlobalDistributionSKU OperationKind = "global_distribution_sku"
	OpReplenishmentAll      OperationKind = "replenishment_all"
	OpReplenishmentSKU      OperationKind = "replenishment_sku"
	OpPlacementAll          OperationKind = "placement_all"
	OpPlacementSKU          OperationKind = "placement_sku"
)

// Valid reports whether k is a known operation kind.
func (k OperationKind) Valid() bool {
	switch k {
	case OpReceipt, OpShipment, OpTransfer,
		OpGlobalDistributionAll, OpGlobalDistributionSKU,
		OpReplenishmentAll, OpReplenishmentSKU,
		OpPlacementAll, OpPlacementSKU:
		return true
	}
	return false
}

// Direct reports whether k moves one item between two caller-chosen locations.
func (k OperationKind) Direct() bool {
	return k == OpReceipt || k == OpShipment || k == OpTransfer
}

// RequiresItem reports whether k operates on a single item.
func (k OperationKind) RequiresItem() bool {
	switch k {
	case OpReceipt, OpShipment, OpTransfer,
		OpGlobalDistributionSKU, OpReplenishmentSKU, OpPlacementSKU:
		return true
	}
	return false
}

// Status is the lifecycle state of an Operation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted || s == StatusFailed
}

// Operation is a redistribution request and its outcome. It leaves pending
// exactly once.
type Operation struct {
	ID               id.ID         `db:"id" json:"id"`
	Kind             OperationKind `db:"operation_kind" json:"operationKind"`
	ItemID           *id.ID        `db:"item_id" json:"itemId"`
	ItemName         *string       `db:"item_name" json:"itemName"`
	SourceLocationID *id.ID        `db:"source_location_id" json:"sourceLocationId"`
	TargetLocationID *id.ID        `db:"target_location_id" json:"targetLocationId"`
	RequestedKg      *int64        `db:"requested_kg" json:"requestedKg"`
	QuantityKg       int64         `db:"quantity_kg" json:"quantityKg"`
	Status           Status        `db:"status" json:"status"`
	ErrorMessage     *string       `db:"error_message" json:"errorMessage"`
	CreatedAt        time.Time     `db:"created_at" json:"createdAt"`
	CompletedAt      *time.Time    `db:"completed_at" json:"completedAt"`
}

// Completion is the terminal outcome written to a pending operation.
type Completion struct {
	Status       Status
	QuantityKg   int64
	ItemName     *string
	ErrorMessage *string
	CompletedAt  time.Time
}

// TempStorageItem is overflow waiting to be promoted into primary storage.
type TempStorageItem struct {
	ID                id.ID      `db:"id" json:"id"`
	ItemID            id.ID      `db:"item_id" json:"itemId"`
	ItemName          string     `db:"item_name" json:"itemName"`
	QuantityKg        int64      `db:"quantity_kg" json:"quantityKg"`
	SourceOperationID *id.ID     `db:"source_operation_id" json:"sourceOperationId"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	MovedToStorageAt  *time.Time `db:"moved_to_storage_at" json:"movedToStorageAt"`
}

// Pending reports whether the item still waits for promotion.
func (t TempStorageItem) Pending() bool {
	return t.MovedToStorageAt == nil
}

// SubmitInput is a request for a new operation.
type SubmitInput struct {
	Kind             OperationKind
	ItemID           *id.ID
	SourceLocationID *id.ID
	TargetLocationID *id.ID
	RequestedKg      *int64
}

// OperationFilter narrows ListOperations.
type OperationFilter struct {
	Status *Status
	Kind   *OperationKind
	Limit  int
	Offset int
}

// TempItemFilter narrows ListTempItems.
type TempItemFilter struct {
	PendingOnly   bool
	CreatedBefore *time.Time
}

// PlanStep records one share of a redistribution plan and what happened to it.
type PlanStep struct {
	ItemID     id.ID  `json:"itemId"`
	ItemName   string `json:"itemName"`
	Source     string `json:"source"`
	Target     string `json:"target"`
	ShareKg    int64  `json:"shareKg"`
	MovedKg    int64  `json:"movedKg"`
	OverflowKg int64  `json:"overflowKg"`
	Error      string `json:"error,omitempty"`
}

// PlanRecord is the audit trail of one processed operation.
type PlanRecord struct {
	OperationID id.ID         `json:"operationId"`
	Kind        OperationKind `json:"operationKind"`
	Status      Status        `json:"status"`
	Steps       []PlanStep    `json:"steps"`
	CreatedAt   time.Time     `json:"createdAt"`
}

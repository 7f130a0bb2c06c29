// Package ledger provides the stock ledger: an append-only log of stock
// operations and the per-item and per-location totals derived from it.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"stockflow/internal/core/id"
)

// OperationKind identifies what a StockOperation does to the aggregates.
type OperationKind string

const (
	KindCreate   OperationKind = "create"
	KindUpdate   OperationKind = "update"
	KindDelete   OperationKind = "delete"
	KindReceipt  OperationKind = "receipt"
	KindWriteOff OperationKind = "write_off"
	KindTransfer OperationKind = "transfer"
)

// Valid reports whether k is a known operation kind.
func (k OperationKind) Valid() bool {
	switch k {
	case KindCreate, KindUpdate, KindDelete, KindReceipt, KindWriteOff, KindTransfer:
		return true
	}
	return false
}

// StockOperation is an immutable ledger entry.
//
// DeltaValue is the signed net effect in kilograms: positive for create,
// receipt and transfer (the amount moved), negative for write_off and delete,
// and the new absolute total for update.
type StockOperation struct {
	ID             id.ID           `db:"id" json:"id"`
	Kind           OperationKind   `db:"operation_kind" json:"operationKind"`
	ItemID         id.ID           `db:"item_id" json:"itemId"`
	ItemName       string          `db:"item_name" json:"itemName"`
	QuantityValue  decimal.Decimal `db:"quantity_value" json:"quantityValue"`
	QuantityUnit   string          `db:"quantity_unit" json:"quantityUnit"`
	WeightValue    decimal.Decimal `db:"weight_value" json:"weightValue"`
	WeightUnit     string          `db:"weight_unit" json:"weightUnit"`
	DeltaValue     int64           `db:"delta_value" json:"deltaValue"`
	DeltaUnit      string          `db:"delta_unit" json:"deltaUnit"`
	SourceLocation *string         `db:"source_location" json:"sourceLocation"`
	TargetLocation *string         `db:"target_location" json:"targetLocation"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}

// ItemTotal is the running total of one item across all locations.
type ItemTotal struct {
	ItemID        id.ID     `db:"item_id" json:"itemId"`
	ItemName      string    `db:"item_name" json:"itemName"`
	TotalQuantity int64     `db:"total_quantity" json:"totalQuantity"`
	TotalWeight   int64     `db:"total_weight" json:"totalWeight"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// Exists reports whether the total was loaded from storage rather than
// synthesized for an item seen for the first time.
func (t ItemTotal) Exists() bool {
	return !t.UpdatedAt.IsZero()
}

// LocationTotal is the stock of one item at one named location.
type LocationTotal struct {
	ItemID       id.ID     `db:"item_id" json:"itemId"`
	ItemName     string    `db:"item_name" json:"itemName"`
	LocationName string    `db:"location_name" json:"locationName"`
	Quantity     int64     `db:"quantity" json:"quantity"`
	Weight       int64     `db:"weight" json:"weight"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// LocationSummary aggregates every item held at one location.
type LocationSummary struct {
	LocationName string `db:"location_name" json:"locationName"`
	ItemCount    int64  `db:"item_count" json:"itemCount"`
	TotalWeight  int64  `db:"total_weight" json:"totalWeight"`
}

// RecordInput is a request to append one operation to the ledger.
type RecordInput struct {
	Kind           OperationKind
	ItemID         id.ID
	QuantityValue  decimal.Decimal
	QuantityUnit   string
	WeightValue    decimal.Decimal
	WeightUnit     string
	SourceLocation *string
	TargetLocation *string

	// DeltaOverride carries the caller-computed, pre-negated total for
	// delete. Ignored for other kinds.
	DeltaOverride *int64
}

// OperationFilter narrows ListOperations.
type OperationFilter struct {
	ItemID *id.ID
	Kind   *OperationKind
	Limit  int
	Offset int
}

// LocationFilter narrows ListLocationTotals.
type LocationFilter struct {
	LocationName *string
	ItemID       *id.ID
	Limit        int
	Offset       int
}

// Event names published after a committed operation.
const (
	EventOperationCreated = "operation.created"
)

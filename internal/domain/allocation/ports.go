package allocation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stockflow/internal/core/id"
)

// StockLine is one item's stock at a location as reported by the ledger.
type StockLine struct {
	ItemID   id.ID  `json:"itemId"`
	ItemName string `json:"itemName"`
	Weight   int64  `json:"weight"`
	Quantity int64  `json:"quantity"`
}

// LedgerRecord is an operation sent to the stock ledger.
type LedgerRecord struct {
	Kind           string
	ItemID         id.ID
	QuantityValue  decimal.Decimal
	QuantityUnit   string
	WeightValue    decimal.Decimal
	WeightUnit     string
	SourceLocation *string
	TargetLocation *string

	// IdempotencyKey makes a retried write apply at most once.
	IdempotencyKey string
}

// Ledger is the stock ledger as seen from the engine. Failures to reach it
// are reported as apperror UpstreamUnavailable.
type Ledger interface {
	GetLocationTotals(ctx context.Context, locationName string) ([]StockLine, error)
	RecordOperation(ctx context.Context, rec LedgerRecord) error
}

// Auditor stores processed plans.
type Auditor interface {
	RecordPlan(ctx context.Context, plan PlanRecord) error
}

// PlanReader loads the audited plan of an operation.
type PlanReader interface {
	GetPlan(ctx context.Context, operationID id.ID) (PlanRecord, error)
}

// Recorder receives engine measurements.
type Recorder interface {
	OperationFinished(kind OperationKind, status Status, elapsed time.Duration)
	Overflow(kg int64)
	LedgerCallFailed(op string)
	PromotionPass(result PromotionResult)
}

type nopAuditor struct{}

func (nopAuditor) RecordPlan(context.Context, PlanRecord) error { return nil }

type nopRecorder struct{}

func (nopRecorder) OperationFinished(OperationKind, Status, time.Duration) {}
func (nopRecorder) Overflow(int64)                                          {}
func (nopRecorder) LedgerCallFailed(string)                                 {}
func (nopRecorder) PromotionPass(PromotionResult)                           {}

// transferRecord builds the ledger transfer of kg whole kilograms.
func transferRecord(itemID id.ID, source, target string, kg int64, key string) LedgerRecord {
	return LedgerRecord{
		Kind:           "transfer",
		ItemID:         itemID,
		QuantityValue:  decimal.NewFromInt(1),
		QuantityUnit:   "piece",
		WeightValue:    decimal.NewFromInt(kg),
		WeightUnit:     "kg",
		SourceLocation: &source,
		TargetLocation: &target,
		IdempotencyKey: key,
	}
}

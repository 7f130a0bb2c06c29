package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"stockflow/internal/core/id"
)

// CatalogItem is the catalog's view of an item.
type CatalogItem struct {
	ID            id.ID           `json:"id"`
	Name          string          `json:"name"`
	WeightValue   decimal.Decimal `json:"weightValue"`
	WeightUnit    string          `json:"weightUnit"`
	QuantityValue decimal.Decimal `json:"quantityValue"`
	QuantityUnit  string          `json:"quantityUnit"`
}

// Catalog resolves items. Implementations return an apperror NotFound for
// unknown items and UpstreamUnavailable when the catalog cannot be reached.
type Catalog interface {
	GetItem(ctx context.Context, itemID id.ID) (CatalogItem, error)
}

// Notifier publishes events. Callers never depend on delivery.
type Notifier interface {
	Publish(ctx context.Context, event string, payload any) error
}

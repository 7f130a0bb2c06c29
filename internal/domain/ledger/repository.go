package ledger

import (
	"context"

	"stockflow/internal/core/id"
)

// Repository persists ledger entries and their aggregates.
//
// Mutating methods must be called inside a transaction started by the
// tx.Manager the service was built with.
type Repository interface {
	// AppendOperation inserts an immutable ledger entry.
	AppendOperation(ctx context.Context, op StockOperation) error

	// LockItemTotal returns the item total and locks it until the transaction
	// ends. A zero-valued total (Exists() == false) is returned for unseen items.
	LockItemTotal(ctx context.Context, itemID id.ID) (ItemTotal, error)

	// SaveItemTotal upserts the item total.
	SaveItemTotal(ctx context.Context, total ItemTotal) error

	// ListItemLocations returns every location row of an item.
	ListItemLocations(ctx context.Context, itemID id.ID) ([]LocationTotal, error)

	// SaveLocationTotals upserts location rows keyed by (item, location).
	SaveLocationTotals(ctx context.Context, rows []LocationTotal) error

	// GetLocationTotals returns the rows held at a location, ordered by item name.
	GetLocationTotals(ctx context.Context, locationName string) ([]LocationTotal, error)

	// ListLocationTotals returns rows ordered by location, then item name.
	ListLocationTotals(ctx context.Context, filter LocationFilter) ([]LocationTotal, error)

	// ListLocationSummaries aggregates rows per location.
	ListLocationSummaries(ctx context.Context) ([]LocationSummary, error)

	// ListItemTotals returns every item total ordered by item name.
	ListItemTotals(ctx context.Context) ([]ItemTotal, error)

	// ListOperations returns ledger entries newest first.
	ListOperations(ctx context.Context, filter OperationFilter) ([]StockOperation, error)
}

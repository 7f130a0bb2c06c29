package allocation

import (
	"context"
	"time"

	"stockflow/internal/core/id"
)

// Repository persists locations, operations and temp storage items.
type Repository interface {
	// ListLocations returns all locations ordered by position, then name.
	ListLocations(ctx context.Context) ([]Location, error)
	// GetLocation returns apperror NotFound for unknown ids.
	GetLocation(ctx context.Context, locationID id.ID) (Location, error)
	// CreateLocation returns apperror Conflict when the name is taken.
	CreateLocation(ctx context.Context, loc Location) error
	SetCurrentCapacity(ctx context.Context, locationID id.ID, kg int64) error
	AdjustCurrentCapacity(ctx context.Context, locationID id.ID, deltaKg int64) error

	CreateOperation(ctx context.Context, op Operation) error
	// GetOperation returns apperror NotFound for unknown ids.
	GetOperation(ctx context.Context, operationID id.ID) (Operation, error)
	// ListOperations returns operations newest first.
	ListOperations(ctx context.Context, filter OperationFilter) ([]Operation, error)
	// CompleteOperation applies c only while the operation is pending and
	// reports whether it did.
	CompleteOperation(ctx context.Context, operationID id.ID, c Completion) (bool, error)

	CreateTempItem(ctx context.Context, item TempStorageItem) error
	// ListTempItems returns items oldest first.
	ListTempItems(ctx context.Context, filter TempItemFilter) ([]TempStorageItem, error)
	// MarkTempItemMoved stamps movedToStorageAt once and reports whether it did.
	MarkTempItemMoved(ctx context.Context, itemID id.ID, at time.Time) (bool, error)
}

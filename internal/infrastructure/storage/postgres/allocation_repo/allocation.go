// Package allocation_repo provides the PostgreSQL allocation.Repository.
package allocation_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/allocation"
	"stockflow/internal/infrastructure/storage/postgres"
)

const (
	locationsTable  = "locations"
	operationsTable = "warehouse_operations"
	tempItemsTable  = "temp_storage_items"

	uniqueViolation = "23505"
)

var (
	locationColumns = []string{
		"id", "name", "kind", "max_capacity_kg", "current_capacity_kg",
		"description", "position", "created_at", "updated_at",
	}
	operationColumns = []string{
		"id", "operation_kind", "item_id", "item_name", "source_location_id", "target_location_id",
		"requested_kg", "quantity_kg", "status", "error_message", "created_at", "completed_at",
	}
	tempItemColumns = []string{
		"id", "item_id", "item_name", "quantity_kg", "source_operation_id", "created_at", "moved_to_storage_at",
	}
)

var _ allocation.Repository = (*AllocationRepo)(nil)

// AllocationRepo implements allocation.Repository.
type AllocationRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
	now       func() time.Time
}

// NewAllocationRepo creates an allocation repository.
func NewAllocationRepo(txManager *postgres.TxManager) *AllocationRepo {
	return &AllocationRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (r *AllocationRepo) ListLocations(ctx context.Context) ([]allocation.Location, error) {
	q := r.builder.Select(locationColumns...).From(locationsTable).OrderBy("position", "name")
	out := []allocation.Location{}
	if err := r.selectAll(ctx, q, &out); err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return out, nil
}

func (r *AllocationRepo) GetLocation(ctx context.Context, locationID id.ID) (allocation.Location, error) {
	q := r.builder.Select(locationColumns...).From(locationsTable).Where(squirrel.Eq{"id": locationID})
	var loc allocation.Location
	if err := r.get(ctx, q, &loc); err != nil {
		if pgxscan.NotFound(err) {
			return allocation.Location{}, apperror.NewNotFound("location", locationID)
		}
		return allocation.Location{}, fmt.Errorf("get location: %w", err)
	}
	return loc, nil
}

func (r *AllocationRepo) CreateLocation(ctx context.Context, loc allocation.Location) error {
	q := r.builder.Insert(locationsTable).Columns(locationColumns...).Values(
		loc.ID, loc.Name, loc.Kind, loc.MaxCapacityKg, loc.CurrentCapacityKg,
		loc.Description, loc.Position, loc.CreatedAt, loc.UpdatedAt,
	)
	if err := r.exec(ctx, q); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperror.NewConflict("location name already exists").
				WithDetail("name", loc.Name).
				WithCause(err)
		}
		return fmt.Errorf("insert location: %w", err)
	}
	return nil
}

func (r *AllocationRepo) SetCurrentCapacity(ctx context.Context, locationID id.ID, kg int64) error {
	return r.updateLocation(ctx, locationID, kg)
}

func (r *AllocationRepo) AdjustCurrentCapacity(ctx context.Context, locationID id.ID, deltaKg int64) error {
	return r.updateLocation(ctx, locationID, squirrel.Expr("current_capacity_kg + ?", deltaKg))
}

func (r *AllocationRepo) updateLocation(ctx context.Context, locationID id.ID, capacity any) error {
	q := r.builder.Update(locationsTable).
		Set("current_capacity_kg", capacity).
		Set("updated_at", r.now()).
		Where(squirrel.Eq{"id": locationID})
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update capacity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("location", locationID)
	}
	return nil
}

func (r *AllocationRepo) CreateOperation(ctx context.Context, op allocation.Operation) error {
	q := r.builder.Insert(operationsTable).Columns(operationColumns...).Values(
		op.ID, op.Kind, op.ItemID, op.ItemName, op.SourceLocationID, op.TargetLocationID,
		op.RequestedKg, op.QuantityKg, op.Status, op.ErrorMessage, op.CreatedAt, op.CompletedAt,
	)
	if err := r.exec(ctx, q); err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

func (r *AllocationRepo) GetOperation(ctx context.Context, operationID id.ID) (allocation.Operation, error) {
	q := r.builder.Select(operationColumns...).From(operationsTable).Where(squirrel.Eq{"id": operationID})
	var op allocation.Operation
	if err := r.get(ctx, q, &op); err != nil {
		if pgxscan.NotFound(err) {
			return allocation.Operation{}, apperror.NewNotFound("operation", operationID)
		}
		return allocation.Operation{}, fmt.Errorf("get operation: %w", err)
	}
	return op, nil
}

func (r *AllocationRepo) ListOperations(ctx context.Context, filter allocation.OperationFilter) ([]allocation.Operation, error) {
	q := r.builder.Select(operationColumns...).From(operationsTable).OrderBy("created_at DESC", "id DESC")
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.Kind != nil {
		q = q.Where(squirrel.Eq{"operation_kind": *filter.Kind})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	out := []allocation.Operation{}
	if err := r.selectAll(ctx, q, &out); err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	return out, nil
}

func (r *AllocationRepo) CompleteOperation(ctx context.Context, operationID id.ID, c allocation.Completion) (bool, error) {
	q := r.builder.Update(operationsTable).
		Set("status", c.Status).
		Set("quantity_kg", c.QuantityKg).
		Set("error_message", c.ErrorMessage).
		Set("completed_at", c.CompletedAt).
		Where(squirrel.Eq{"id": operationID, "status": allocation.StatusPending})
	if c.ItemName != nil {
		q = q.Set("item_name", *c.ItemName)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("complete operation: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.GetOperation(ctx, operationID); err != nil {
		return false, err
	}
	return false, nil
}

func (r *AllocationRepo) CreateTempItem(ctx context.Context, item allocation.TempStorageItem) error {
	q := r.builder.Insert(tempItemsTable).Columns(tempItemColumns...).Values(
		item.ID, item.ItemID, item.ItemName, item.QuantityKg, item.SourceOperationID, item.CreatedAt, item.MovedToStorageAt,
	)
	if err := r.exec(ctx, q); err != nil {
		return fmt.Errorf("insert temp storage item: %w", err)
	}
	return nil
}

func (r *AllocationRepo) ListTempItems(ctx context.Context, filter allocation.TempItemFilter) ([]allocation.TempStorageItem, error) {
	q := r.builder.Select(tempItemColumns...).From(tempItemsTable).OrderBy("created_at", "id")
	if filter.PendingOnly {
		q = q.Where(squirrel.Eq{"moved_to_storage_at": nil})
	}
	if filter.CreatedBefore != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.CreatedBefore})
	}
	out := []allocation.TempStorageItem{}
	if err := r.selectAll(ctx, q, &out); err != nil {
		return nil, fmt.Errorf("list temp storage items: %w", err)
	}
	return out, nil
}

func (r *AllocationRepo) MarkTempItemMoved(ctx context.Context, itemID id.ID, at time.Time) (bool, error) {
	q := r.builder.Update(tempItemsTable).
		Set("moved_to_storage_at", at).
		Where(squirrel.Eq{"id": itemID, "moved_to_storage_at": nil})
	sql, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("mark temp storage item moved: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	exists := r.builder.Select("1").From(tempItemsTable).Where(squirrel.Eq{"id": itemID})
	var one int
	if err := r.get(ctx, exists, &one); err != nil {
		if pgxscan.NotFound(err) {
			return false, apperror.NewNotFound("temp storage item", itemID)
		}
		return false, fmt.Errorf("get temp storage item: %w", err)
	}
	return false, nil
}

func (r *AllocationRepo) get(ctx context.Context, q squirrel.SelectBuilder, dst any) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build select: %w", err)
	}
	return pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), dst, sql, args...)
}

func (r *AllocationRepo) selectAll(ctx context.Context, q squirrel.SelectBuilder, dst any) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build select: %w", err)
	}
	return pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), dst, sql, args...)
}

func (r *AllocationRepo) exec(ctx context.Context, q squirrel.InsertBuilder) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	_, err = r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	return err
}

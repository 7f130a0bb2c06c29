// Package ledger_repo provides the PostgreSQL ledger.Repository.
package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockflow/internal/core/id"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/infrastructure/storage/postgres"
)

const (
	operationsTable     = "stock_operations"
	itemTotalsTable     = "item_totals"
	locationTotalsTable = "location_totals"
)

var _ ledger.Repository = (*LedgerRepo)(nil)

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	txManager *postgres.TxManager
	batch     *postgres.BatchExecutor
	builder   squirrel.StatementBuilderType
}

// NewLedgerRepo creates a ledger repository.
func NewLedgerRepo(txManager *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txManager: txManager,
		batch:     postgres.NewBatchExecutor(txManager),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// AppendOperation inserts an immutable ledger entry.
func (r *LedgerRepo) AppendOperation(ctx context.Context, op ledger.StockOperation) error {
	sql, args, err := r.builder.Insert(operationsTable).
		Columns(
			"id", "operation_kind", "item_id", "item_name",
			"quantity_value", "quantity_unit", "weight_value", "weight_unit",
			"delta_value", "delta_unit", "source_location", "target_location", "created_at",
		).
		Values(
			op.ID, op.Kind, op.ItemID, op.ItemName,
			op.QuantityValue, op.QuantityUnit, op.WeightValue, op.WeightUnit,
			op.DeltaValue, op.DeltaUnit, op.SourceLocation, op.TargetLocation, op.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

// LockItemTotal serializes writers of one item with a transaction-scoped
// advisory lock, which also covers items that have no row yet.
func (r *LedgerRepo) LockItemTotal(ctx context.Context, itemID id.ID) (ledger.ItemTotal, error) {
	t := r.txManager.GetTx(ctx)
	if t == nil {
		return ledger.ItemTotal{}, fmt.Errorf("LockItemTotal requires transaction context")
	}
	if _, err := t.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1::text))", itemID); err != nil {
		return ledger.ItemTotal{}, fmt.Errorf("advisory lock: %w", err)
	}

	sql, args, err := r.builder.
		Select("item_id", "item_name", "total_quantity", "total_weight", "updated_at").
		From(itemTotalsTable).
		Where(squirrel.Eq{"item_id": itemID}).
		ToSql()
	if err != nil {
		return ledger.ItemTotal{}, fmt.Errorf("build select: %w", err)
	}

	var total ledger.ItemTotal
	if err := pgxscan.Get(ctx, t, &total, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return ledger.ItemTotal{ItemID: itemID}, nil
		}
		return ledger.ItemTotal{}, fmt.Errorf("get item total: %w", err)
	}
	return total, nil
}

// SaveItemTotal upserts the item total.
func (r *LedgerRepo) SaveItemTotal(ctx context.Context, total ledger.ItemTotal) error {
	sql, args, err := r.builder.Insert(itemTotalsTable).
		Columns("item_id", "item_name", "total_quantity", "total_weight", "updated_at").
		Values(total.ItemID, total.ItemName, total.TotalQuantity, total.TotalWeight, total.UpdatedAt).
		Suffix(`ON CONFLICT (item_id) DO UPDATE SET
			item_name = EXCLUDED.item_name,
			total_quantity = EXCLUDED.total_quantity,
			total_weight = EXCLUDED.total_weight,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert item total: %w", err)
	}
	return nil
}

// ListItemLocations returns every location row of an item.
func (r *LedgerRepo) ListItemLocations(ctx context.Context, itemID id.ID) ([]ledger.LocationTotal, error) {
	q := r.selectLocationTotals().
		Where(squirrel.Eq{"item_id": itemID}).
		OrderBy("location_name")
	return r.selectLocations(ctx, q)
}

// SaveLocationTotals upserts rows in one batch.
func (r *LedgerRepo) SaveLocationTotals(ctx context.Context, rows []ledger.LocationTotal) error {
	if len(rows) == 0 {
		return nil
	}
	queries := make([]postgres.BatchQuery, 0, len(rows))
	for _, row := range rows {
		sql, args, err := r.builder.Insert(locationTotalsTable).
			Columns("item_id", "item_name", "location_name", "quantity", "weight", "updated_at").
			Values(row.ItemID, row.ItemName, row.LocationName, row.Quantity, row.Weight, row.UpdatedAt).
			Suffix(`ON CONFLICT (item_id, location_name) DO UPDATE SET
				item_name = EXCLUDED.item_name,
				quantity = EXCLUDED.quantity,
				weight = EXCLUDED.weight,
				updated_at = EXCLUDED.updated_at`).
			ToSql()
		if err != nil {
			return fmt.Errorf("build upsert: %w", err)
		}
		queries = append(queries, postgres.BatchQuery{SQL: sql, Args: args})
	}
	return r.batch.ExecuteBatch(ctx, queries)
}

// GetLocationTotals returns the rows held at a location.
func (r *LedgerRepo) GetLocationTotals(ctx context.Context, locationName string) ([]ledger.LocationTotal, error) {
	q := r.selectLocationTotals().
		Where(squirrel.Eq{"location_name": locationName}).
		OrderBy("item_name", "item_id")
	return r.selectLocations(ctx, q)
}

// ListLocationTotals returns rows matching filter.
func (r *LedgerRepo) ListLocationTotals(ctx context.Context, filter ledger.LocationFilter) ([]ledger.LocationTotal, error) {
	q := r.selectLocationTotals().OrderBy("location_name", "item_name", "item_id")
	if filter.LocationName != nil {
		q = q.Where(squirrel.Eq{"location_name": *filter.LocationName})
	}
	if filter.ItemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *filter.ItemID})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return r.selectLocations(ctx, q)
}

// ListLocationSummaries aggregates rows per location.
func (r *LedgerRepo) ListLocationSummaries(ctx context.Context) ([]ledger.LocationSummary, error) {
	sql, args, err := r.builder.
		Select(
			"location_name",
			"COUNT(*) FILTER (WHERE weight <> 0) AS item_count",
			"COALESCE(SUM(weight), 0)::BIGINT AS total_weight",
		).
		From(locationTotalsTable).
		GroupBy("location_name").
		OrderBy("location_name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	summaries := []ledger.LocationSummary{}
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &summaries, sql, args...); err != nil {
		return nil, fmt.Errorf("list location summaries: %w", err)
	}
	return summaries, nil
}

// ListItemTotals returns every item total.
func (r *LedgerRepo) ListItemTotals(ctx context.Context) ([]ledger.ItemTotal, error) {
	sql, args, err := r.builder.
		Select("item_id", "item_name", "total_quantity", "total_weight", "updated_at").
		From(itemTotalsTable).
		OrderBy("item_name", "item_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	totals := []ledger.ItemTotal{}
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &totals, sql, args...); err != nil {
		return nil, fmt.Errorf("list item totals: %w", err)
	}
	return totals, nil
}

// ListOperations returns ledger entries newest first.
func (r *LedgerRepo) ListOperations(ctx context.Context, filter ledger.OperationFilter) ([]ledger.StockOperation, error) {
	q := r.builder.
		Select(
			"id", "operation_kind", "item_id", "item_name",
			"quantity_value", "quantity_unit", "weight_value", "weight_unit",
			"delta_value", "delta_unit", "source_location", "target_location", "created_at",
		).
		From(operationsTable).
		OrderBy("created_at DESC", "id DESC")
	if filter.ItemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *filter.ItemID})
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

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	ops := []ledger.StockOperation{}
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &ops, sql, args...); err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	return ops, nil
}

func (r *LedgerRepo) selectLocationTotals() squirrel.SelectBuilder {
	return r.builder.
		Select("item_id", "item_name", "location_name", "quantity", "weight", "updated_at").
		From(locationTotalsTable)
}

func (r *LedgerRepo) selectLocations(ctx context.Context, q squirrel.SelectBuilder) ([]ledger.LocationTotal, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows := []ledger.LocationTotal{}
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select location totals: %w", err)
	}
	return rows, nil
}

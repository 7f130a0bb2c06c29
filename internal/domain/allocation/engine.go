package allocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockflow/internal/core/apperror"
	appctx "stockflow/internal/core/context"
	"stockflow/internal/core/id"
	"stockflow/pkg/logger"
)

var tracer = otel.Tracer("stockflow/allocation")

// EngineConfig holds the topology settings of the engine.
type EngineConfig struct {
	WarehouseCount      int
	TempStorageName     string
	TempStorageCapacity int64
}

// Engine turns pending operations into ledger transfers.
type Engine struct {
	repo    Repository
	ledger  Ledger
	locks   *LocationLocks
	cfg     EngineConfig
	audit   Auditor
	metrics Recorder
	now     func() time.Time

	tempMu sync.Mutex
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithAuditor stores every processed plan in a.
func WithAuditor(a Auditor) EngineOption {
	return func(e *Engine) { e.audit = a }
}

// WithRecorder reports engine measurements to r.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) { e.metrics = r }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine.
func NewEngine(repo Repository, ledger Ledger, locks *LocationLocks, cfg EngineConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:    repo,
		ledger:  ledger,
		locks:   locks,
		cfg:     cfg,
		audit:   nopAuditor{},
		metrics: nopRecorder{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process runs a pending operation to its terminal status. Operations that
// already left pending are ignored.
func (e *Engine) Process(ctx context.Context, operationID id.ID) error {
	op, err := e.repo.GetOperation(ctx, operationID)
	if err != nil {
		return fmt.Errorf("load operation: %w", err)
	}
	if op.Status != StatusPending {
		return nil
	}

	ctx = appctx.WithOperationID(ctx, op.ID.String())
	ctx, span := tracer.Start(ctx, "allocation.process",
		trace.WithAttributes(
			attribute.String("operation.id", op.ID.String()),
			attribute.String("operation.kind", string(op.Kind)),
		))
	defer span.End()

	started := time.Now()
	r := &run{e: e, op: op}
	runErr := r.execute(ctx)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	return e.finish(ctx, r, runErr, time.Since(started))
}

// Fail marks a pending operation failed with reason.
func (e *Engine) Fail(ctx context.Context, operationID id.ID, reason error) error {
	op, err := e.repo.GetOperation(ctx, operationID)
	if err != nil {
		return fmt.Errorf("load operation: %w", err)
	}
	ctx = appctx.WithOperationID(ctx, op.ID.String())
	return e.finish(ctx, &run{e: e, op: op}, reason, 0)
}

func (e *Engine) finish(ctx context.Context, r *run, runErr error, elapsed time.Duration) error {
	c := Completion{
		Status:      StatusCompleted,
		QuantityKg:  r.quantity,
		ItemName:    r.itemName,
		CompletedAt: e.now(),
	}
	if runErr != nil {
		c.Status = StatusFailed
		c.QuantityKg = 0
		msg := failureMessage(runErr)
		c.ErrorMessage = &msg
	} else if len(r.warnings) > 0 {
		msg := strings.Join(r.warnings, "; ")
		c.ErrorMessage = &msg
	}

	ok, err := e.repo.CompleteOperation(ctx, r.op.ID, c)
	if err != nil {
		return fmt.Errorf("complete operation: %w", err)
	}
	if !ok {
		logger.Warn(ctx, "operation already finished")
		return nil
	}

	if err := e.audit.RecordPlan(ctx, PlanRecord{
		OperationID: r.op.ID,
		Kind:        r.op.Kind,
		Status:      c.Status,
		Steps:       r.plan,
		CreatedAt:   c.CompletedAt,
	}); err != nil {
		logger.Warn(ctx, "plan audit failed", "error", err)
	}
	e.metrics.OperationFinished(r.op.Kind, c.Status, elapsed)

	if runErr != nil {
		logger.Warn(ctx, "operation failed",
			"kind", r.op.Kind,
			"error", runErr,
		)
		return nil
	}
	logger.Info(ctx, "operation completed",
		"kind", r.op.Kind,
		"quantity_kg", c.QuantityKg,
		"warnings", len(r.warnings),
	)
	return nil
}

// Reconcile sets the capacity cache of every given location to the sum of
// the positive weights the ledger reports for it, and returns those reports
// keyed by location id.
func (e *Engine) Reconcile(ctx context.Context, locs ...Location) (map[id.ID][]StockLine, error) {
	stock := make(map[id.ID][]StockLine, len(locs))
	for _, loc := range locs {
		if _, done := stock[loc.ID]; done {
			continue
		}
		lines, err := e.reconcile(ctx, loc)
		if err != nil {
			return nil, err
		}
		stock[loc.ID] = lines
	}
	return stock, nil
}

// reconcile holds the location lock from the ledger read through the cache
// write, so no transfer into loc can land in between.
func (e *Engine) reconcile(ctx context.Context, loc Location) ([]StockLine, error) {
	unlock := e.locks.Lock(loc.ID)
	defer unlock()

	lines, err := e.ledger.GetLocationTotals(ctx, loc.Name)
	if err != nil {
		e.metrics.LedgerCallFailed("get_location_totals")
		if _, ok := apperror.AsAppError(err); ok {
			return nil, err
		}
		return nil, apperror.NewUpstreamUnavailable("ledger", err)
	}

	var total int64
	for _, l := range lines {
		if l.Weight > 0 {
			total += l.Weight
		}
	}
	if err := e.repo.SetCurrentCapacity(ctx, loc.ID, total); err != nil {
		return nil, fmt.Errorf("set capacity of %s: %w", loc.Name, err)
	}
	return lines, nil
}

// EnsureTempStorage returns the temp storage location, creating it when it
// does not exist yet.
func (e *Engine) EnsureTempStorage(ctx context.Context) (Location, error) {
	e.tempMu.Lock()
	defer e.tempMu.Unlock()

	t, err := e.loadTopology(ctx)
	if err != nil {
		return Location{}, err
	}
	if t.temp != nil {
		return *t.temp, nil
	}

	now := e.now()
	loc := Location{
		ID:            id.New(),
		Name:          e.cfg.TempStorageName,
		Kind:          LocationTempStorage,
		MaxCapacityKg: e.cfg.TempStorageCapacity,
		Description:   "Overflow awaiting promotion to primary storage",
		Position:      t.lastPosition + 1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.repo.CreateLocation(ctx, loc); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Code == apperror.CodeConflict {
			// Created concurrently by another process.
			if t, err = e.loadTopology(ctx); err == nil && t.temp != nil {
				return *t.temp, nil
			}
		}
		return Location{}, fmt.Errorf("create temp storage: %w", err)
	}
	logger.Info(ctx, "created temp storage", "location_id", loc.ID, "name", loc.Name)
	return loc, nil
}

type topology struct {
	primary      *Location
	warehouses   []Location
	temp         *Location
	lastPosition int
}

func (e *Engine) loadTopology(ctx context.Context) (topology, error) {
	locs, err := e.repo.ListLocations(ctx)
	if err != nil {
		return topology{}, fmt.Errorf("list locations: %w", err)
	}
	var t topology
	for i := range locs {
		loc := locs[i]
		if loc.Position > t.lastPosition {
			t.lastPosition = loc.Position
		}
		switch loc.Kind {
		case LocationPrimaryStorage:
			if t.primary == nil {
				t.primary = &loc
			}
		case LocationWarehouse:
			t.warehouses = append(t.warehouses, loc)
		case LocationTempStorage:
			if t.temp == nil {
				t.temp = &loc
			}
		}
	}
	return t, nil
}

func (t topology) requireWarehouses(n int) error {
	if len(t.warehouses) != n {
		return apperror.NewPreconditionFailed(
			fmt.Sprintf("expected %d warehouses, found %d", n, len(t.warehouses))).
			WithDetail("expected", n).
			WithDetail("found", len(t.warehouses))
	}
	return nil
}

func (t topology) requirePrimary() error {
	if t.primary == nil {
		return apperror.NewPreconditionFailed("primary storage is not configured")
	}
	return nil
}

// others returns the warehouses except exclude, in order.
func (t topology) others(exclude id.ID) []Location {
	out := make([]Location, 0, len(t.warehouses))
	for _, w := range t.warehouses {
		if w.ID != exclude {
			out = append(out, w)
		}
	}
	return out
}

func failureMessage(err error) string {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}

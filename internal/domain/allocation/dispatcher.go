package allocation

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	appctx "stockflow/internal/core/context"
	"stockflow/internal/core/id"
	"stockflow/pkg/logger"
)

// Scheduler hands an operation over for background processing.
type Scheduler interface {
	Dispatch(ctx context.Context, operationID id.ID)
}

// Dispatcher processes operations on a bounded number of goroutines,
// detached from the caller's context.
type Dispatcher struct {
	engine *Engine
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDispatcher creates a dispatcher running at most workers operations at once.
func NewDispatcher(engine *Engine, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		engine: engine,
		sem:    semaphore.NewWeighted(int64(workers)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Dispatch schedules operationID and returns immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, operationID id.ID) {
	work := logger.WithLogger(appctx.Detach(ctx), logger.Default().WithComponent("dispatcher"))
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			// Shutting down; the operation stays pending and is resumed on start.
			return
		}
		defer d.sem.Release(1)
		d.process(work, operationID)
	}()
}

func (d *Dispatcher) process(ctx context.Context, operationID id.ID) {
	ctx = appctx.WithOperationID(ctx, operationID.String())
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error(ctx, "operation processing panicked", "panic", rec)
			if err := d.engine.Fail(ctx, operationID, fmt.Errorf("internal error: %v", rec)); err != nil {
				logger.Error(ctx, "mark operation failed", "error", err)
			}
		}
	}()
	if err := d.engine.Process(ctx, operationID); err != nil {
		logger.Error(ctx, "operation processing failed", "error", err)
	}
}

// Resume dispatches every operation still pending and returns how many.
func (d *Dispatcher) Resume(ctx context.Context) (int, error) {
	status := StatusPending
	ops, err := d.engine.repo.ListOperations(ctx, OperationFilter{Status: &status})
	if err != nil {
		return 0, fmt.Errorf("list pending operations: %w", err)
	}
	// Oldest first.
	for i := len(ops) - 1; i >= 0; i-- {
		d.Dispatch(ctx, ops[i].ID)
	}
	return len(ops), nil
}

// Shutdown drops queued work and waits for running operations to finish.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.cancel()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

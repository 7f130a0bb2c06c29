package allocation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"stockflow/internal/core/id"
	"stockflow/internal/domain/allocation"
	"stockflow/pkg/logger"
)

// pending stores an operation without scheduling it.
func (e *env) pending(t *testing.T, op allocation.Operation) allocation.Operation {
	t.Helper()
	op.ID = id.New()
	op.Status = allocation.StatusPending
	op.CreatedAt = e.clock.Now()
	require.NoError(t, e.repo.CreateOperation(context.Background(), op))
	return op
}

func TestConcurrentTransfers_DoNotOvercommitTarget(t *testing.T) {
	e := newEnv(t, 50_000, 50, 50_000, 50_000)
	ctx := context.Background()
	target := e.warehouses[1]
	flour, rice := id.New(), id.New()
	e.ledger.put(e.warehouses[0].Name, flour, "Flour", 50)
	e.ledger.put(e.warehouses[2].Name, rice, "Rice", 50)

	first := e.pending(t, allocation.Operation{
		Kind: allocation.OpTransfer, ItemID: idPtr(flour),
		SourceLocationID: idPtr(e.warehouses[0].ID), TargetLocationID: idPtr(target.ID),
	})
	second := e.pending(t, allocation.Operation{
		Kind: allocation.OpTransfer, ItemID: idPtr(rice),
		SourceLocationID: idPtr(e.warehouses[2].ID), TargetLocationID: idPtr(target.ID),
	})

	// Hold the first read of the target until the second operation had its chance.
	reached, release := make(chan struct{}), make(chan struct{})
	var once sync.Once
	e.ledger.beforeRead = func(location string) {
		if location != target.Name {
			return
		}
		once.Do(func() {
			close(reached)
			<-release
		})
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = e.engine.Process(ctx, first.ID)
	}()
	<-reached

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[1] = e.engine.Process(ctx, second.ID)
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	assert.LessOrEqual(t, e.ledger.total(target.Name), target.MaxCapacityKg)
	assert.Equal(t, int64(50), e.ledger.total(target.Name))
	assert.Equal(t, int64(50), e.ledger.total(tempName))
	assert.Equal(t, int64(50), e.location(t, target.ID).CurrentCapacityKg)

	overflowed := 0
	for _, opID := range []id.ID{first.ID, second.ID} {
		op, err := e.svc.GetOperation(ctx, opID)
		require.NoError(t, err)
		assert.Equal(t, allocation.StatusCompleted, op.Status)
		if op.ErrorMessage != nil {
			assert.Contains(t, *op.ErrorMessage, "sent to "+tempName)
			overflowed++
		}
	}
	assert.Equal(t, 1, overflowed)
}

func TestConcurrentDistributions_RespectCapacity(t *testing.T) {
	e := newEnv(t, 20, 20, 20, 20)
	ctx := context.Background()

	var ops []allocation.Operation
	for i := 0; i < 4; i++ {
		itemID := id.New()
		e.ledger.put(primaryName, itemID, "Item "+string(rune('A'+i)), 24)
		ops = append(ops, e.pending(t, allocation.Operation{
			Kind: allocation.OpGlobalDistributionSKU, ItemID: idPtr(itemID),
		}))
	}

	var wg sync.WaitGroup
	for _, op := range ops {
		wg.Add(1)
		go func(opID id.ID) {
			defer wg.Done()
			assert.NoError(t, e.engine.Process(ctx, opID))
		}(op.ID)
	}
	wg.Wait()

	var stored int64
	for _, w := range e.warehouses {
		assert.LessOrEqual(t, e.ledger.total(w.Name), w.MaxCapacityKg, w.Name)
		stored += e.ledger.total(w.Name)
	}
	assert.Equal(t, int64(80), stored)
	assert.Equal(t, int64(16), e.ledger.total(tempName))
	assert.Zero(t, e.ledger.total(primaryName))
}

func TestProcess_LogsOperationIDOnce(t *testing.T) {
	e := newEnv(t, 50_000, 50_000, 50_000, 50_000)
	itemID := id.New()
	e.ledger.put(primaryName, itemID, "Flour", 4)
	op := e.pending(t, allocation.Operation{Kind: allocation.OpGlobalDistributionAll})

	core, logs := observer.New(zap.InfoLevel)
	ctx := logger.WithLogger(context.Background(), &logger.Logger{SugaredLogger: zap.New(core).Sugar()})
	require.NoError(t, e.engine.Process(ctx, op.ID))

	entries := logs.FilterMessage("operation completed").All()
	require.Len(t, entries, 1)
	count := 0
	for _, f := range entries[0].Context {
		if f.Key == "operation_id" {
			count++
			assert.Equal(t, op.ID.String(), f.String)
		}
	}
	assert.Equal(t, 1, count)
}

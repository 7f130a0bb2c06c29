package allocation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/allocation"
)

func TestGlobalDistributionSKU_SplitsRemainderFirst(t *testing.T) {
	e := newEnv(t, 50_000, 50_000, 50_000, 50_000)
	itemID := id.New()
	e.ledger.put(primaryName, itemID, "Flour", 101)

	op := e.submit(t, allocation.SubmitInput{Kind: allocation.OpGlobalDistributionSKU, ItemID: idPtr(itemID)})

	assert.Equal(t, allocation.StatusCompleted, op.Status)
	assert.Nil(t, op.ErrorMessage)
	assert.Equal(t, int64(101), op.QuantityKg)
	require.NotNil(t, op.ItemName)
	assert.Equal(t, "Flour", *op.ItemName)
	require.NotNil(t, op.CompletedAt)

	want := []int64{26, 25, 25, 25}
	for i, w := range e.warehouses {
		assert.Equal(t, want[i], e.ledger.weight(w.Name, itemID), w.Name)
		assert.Equal(t, want[i], e.location(t, w.ID).CurrentCapacityKg, w.Name)
	}
	assert.Zero(t, e.ledger.weight(primaryName, itemID))
	assert.Zero(t, e.location(t, e.primary.ID).CurrentCapacityKg)
}

func TestGlobalDistributionAll_MovesEveryItem(t *testing.T) {
	e := newEnv(t, 50_000, 50_000, 50_000, 50_000)
	flour, sugar := id.New(), id.New()
	e.ledger.put(primaryName, flour, "Flour", 8)
	e.ledger.put(primaryName, sugar, "Sugar", 5)

	op := e.submit(t, allocation.SubmitInput{Kind: allocation.OpGlobalDistributionAll})

	assert.Equal(t, allocation.StatusCompleted, op.Status)
	assert.Equal(t, int64(13), op.QuantityKg)
	assert.Nil(t, op.ItemName)
	for _, w := range e.warehouses {
		assert.Equal(t, int64(2), e.ledger.weight(w.Name, flour))
	}
	assert.Equal(t, int64(2), e.ledger.weight(e.warehouses[0].Name, sugar))
	assert.Equal(t, int64(1), e.ledger.weight(e.warehouses[3].Name, sugar))
}

func TestPlacementAll_OverflowGoesToTempStorage(t *testing.T) {
	e := newEnv(t, 50_000, 50, 50_000, 50_000)
	itemID, other := id.New(), id.New()
	source, full := e.warehouses[0], e.warehouses[1]
	e.ledger.put(source.Name, itemID, "Flour", 120)
	e.ledger.put(full.Name, other, "Rice", 40)

	op := e.submit(t, allocation.SubmitInput{Kind: allocation.OpPlacementAll, SourceLocationID: idPtr(source.ID)})

	assert.Equal(t, allocation.StatusCompleted, op.Status)
	require.NotNil(t, op.ErrorMessage)
	assert.Contains(t, *op.ErrorMessage, "30 kg of Flour sent to "+tempName)
	assert.Equal(t, int64(120), op.QuantityKg)

	assert.Equal(t, int64(10), e.ledger.weight(full.Name, itemID))
	assert.Equal(t, int64(30), e.ledger.weight(tempName, itemID))
	assert.Equal(t, int64(40), e.ledger.weight(e.warehouses[2].Name, itemID))
	assert.Equal(t, int64(40), e.ledger.weight(e.warehouses[3].Name, itemID))
	assert.Equal(t, int64(50), e.location(t, full.ID).CurrentCapacityKg)

	items, err := e.svc.ListTempItems(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, itemID, items[0].ItemID)
	assert.Equal(t, int64(30), items[0].QuantityKg)
	require.NotNil(t, items[0].SourceOperationID)
	assert.Equal(t, op.ID, *items[0].SourceOperationID)

	plans := e.audit.Plans()
	require.Len(t, plans, 1)
	require.Len(t, plans[0].Steps, 3)
	assert.Equal(t, int64(10), plans[0].Steps[0].MovedKg)
	assert.Equal(t, int64(30), plans[0].Steps[0].OverflowKg)
}

func TestReplenishment_PullsFromOtherWarehouses(t *testing.T) {
	e := newEnv(t, 50_000, 50_000, 50_000, 50_000)
	itemID := id.New()
	target := e.warehouses[0]
	e.ledger.put(e.warehouses[1].Name, itemID, "Flour", 10)
	e.ledger.put(e.warehouses[3].Name, itemID, "Flour", 7)

	op := e.submit(t, allocation.SubmitInput{
		Kind:             allocation.OpReplenishmentSKU,
		ItemID:           idPtr(itemID),
		TargetLocationID: idPtr(target.ID),
	})

	assert.Equal(t, allocation.StatusCompleted, op.Status)
	assert.Equal(t, int64(17), op.QuantityKg)
	assert.Equal(t, int64(17), e.ledger.weight(target.Name, itemID))
	assert.Zero(t, e.ledger.weight(e.warehouses[1].Name, itemID))
}

func TestDirectTransfer_RequestedKgIsCappedByStock(t *testing.T) {
	e := newEnv(t, 50_000, 50_000, 50_000, 50_000)
	itemID := id.New()
	src, dst := e.warehouses[0], e.warehouses[1]
	e.ledger.put(src.Name, itemID, "Flour", 30)

	op := e.submit(t, allocation.SubmitInput{
		Kind: allocation.OpTransfer, ItemID: idPtr(itemID),
		SourceLocationID: idPtr(src.ID), TargetLocationID: idPtr(dst.ID),
		RequestedKg: int64Ptr(10),
	})
	assert.Equal(t, allocation.StatusCompleted, op.Status)
	assert.Equal(t, int64(10), op.QuantityKg)
	assert.Equal(t, int64(20), e.ledger.weight(src.Name, itemID))

	op = e.submit(t, allocation.SubmitInput{
		Kind: allocation.OpShipment, ItemID: idPtr(itemID),
		SourceLocationID: idPtr(src.ID), TargetLocationID: idPtr(dst.ID),
		RequestedKg: int64Ptr(500),
	})
	assert.Equal(t, allocation.StatusCompleted, op.Status)
	assert.Equal(t, int64(20), op.QuantityKg)
	assert.Equal(t, int64(30), e.ledger.weight(dst.Name, itemID))
}

func TestDirectTransfer_UsesIdempotencyKeys(t *testing.T) {
	e := newEnv(t, 50_000, 5, 50_000, 50_000)
	itemID := id.New()
	src, dst := e.warehouses[0], e.warehouses[1]
	e.ledger.put(src.Name, itemID, "Flour", 12)

	op := e.submit(t, allocation.SubmitInput{
		Kind: allocation.OpReceipt, ItemID: idPtr(itemID),
		SourceLocationID: idPtr(src.ID), TargetLocationID: idPtr(dst.ID),
	})

	records := e.ledger.transfers()
	require.Len(t, records, 2)
	assert.Equal(t, op.ID.String()+":1", records[0].IdempotencyKey)
	assert.Equal(t, op.ID.String()+":2", records[1].IdempotencyKey)
	assert.Equal(t, "transfer", records[0].Kind)
	assert.Equal(t, tempName, *records[1].TargetLocation)
}

func TestPreconditionFailures(t *testing.T) {
	itemID := id.New()
	tests := []struct {
		name       string
		capacities []int64
		input      func(e *env) allocation.SubmitInput
		message    string
	}{
		{
			name:       "wrong warehouse count",
			capacities: []int64{100, 100, 100},
			input: func(*env) allocation.SubmitInput {
				return allocation.SubmitInput{Kind: allocation.OpGlobalDistributionAll}
			},
			message: "expected 4 warehouses, found 3",
		},
		{
			name:       "item missing in primary",
			capacities: []int64{100, 100, 100, 100},
			input: func(*env) allocation.SubmitInput {
				return allocation.SubmitInput{Kind: allocation.OpGlobalDistributionSKU, ItemID: idPtr(itemID)}
			},
			message: "has no stock in " + primaryName,
		},
		{
			name:       "nothing to distribute",
			capacities: []int64{100, 100, 100, 100},
			input: func(*env) allocation.SubmitInput {
				return allocation.SubmitInput{Kind: allocation.OpGlobalDistributionAll}
			},
			message: "no stock to move",
		},
		{
			name:       "sku without item",
			capacities: []int64{100, 100, 100, 100},
			input: func(*env) allocation.SubmitInput {
				return allocation.SubmitInput{Kind: allocation.OpPlacementSKU}
			},
			message: "item id is required",
		},
		{
			name:       "placement from primary storage",
			capacities: []int64{100, 100, 100, 100},
			input: func(e *env) allocation.SubmitInput {
				return allocation.SubmitInput{Kind: allocation.OpPlacementAll, SourceLocationID: idPtr(e.primary.ID)}
			},
			message: "is not a warehouse",
		},
		{
			name:       "unknown location",
			capacities: []int64{100, 100, 100, 100},
			input: func(e *env) allocation.SubmitInput {
				return allocation.SubmitInput{
					Kind: allocation.OpTransfer, ItemID: idPtr(itemID),
					SourceLocationID: idPtr(id.New()), TargetLocationID: idPtr(e.warehouses[0].ID),
				}
			},
			message: "location not found",
		},
		{
			name:       "transfer without target",
			capacities: []int64{100, 100, 100, 100},
			input: func(e *env) allocation.SubmitInput {
				return allocation.SubmitInput{Kind: allocation.OpTransfer, ItemID: idPtr(itemID), SourceLocationID: idPtr(e.primary.ID)}
			},
			message: "source and target locations are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.capacities...)

			op := e.submit(t, tt.input(e))

			assert.Equal(t, allocation.StatusFailed, op.Status)
			require.NotNil(t, op.ErrorMessage)
			assert.Contains(t, *op.ErrorMessage, tt.message)
			assert.Zero(t, op.QuantityKg)
			assert.Empty(t, e.ledger.transfers())
		})
	}
}

func TestLedgerUnavailableFailsOperation(t *testing.T) {
	e := newEnv(t, 100, 100, 100, 100)
	e.ledger.readErr = apperror.NewUpstreamUnavailable("ledger", errors.New("timeout"))

	op := e.submit(t, allocation.SubmitInput{Kind: allocation.OpGlobalDistributionAll})

	assert.Equal(t, allocation.StatusFailed, op.Status)
	require.NotNil(t, op.ErrorMessage)
	assert.Contains(t, *op.ErrorMessage, "ledger")
}

func TestLedgerWriteFailureIsReportedPerTarget(t *testing.T) {
	e := newEnv(t, 50_000, 50_000, 50_000, 50_000)
	itemID := id.New()
	e.ledger.put(primaryName, itemID, "Flour", 8)
	e.ledger.failTarget = e.warehouses[2].Name

	op := e.submit(t, allocation.SubmitInput{Kind: allocation.OpGlobalDistributionSKU, ItemID: idPtr(itemID)})

	assert.Equal(t, allocation.StatusCompleted, op.Status)
	require.NotNil(t, op.ErrorMessage)
	assert.Contains(t, *op.ErrorMessage, "to "+e.warehouses[2].Name+" failed")
	assert.Equal(t, int64(2), e.ledger.weight(e.warehouses[3].Name, itemID))
	assert.Equal(t, int64(2), e.ledger.weight(primaryName, itemID))
}

func TestProcess_IgnoresFinishedOperations(t *testing.T) {
	e := newEnv(t, 50_000, 50_000, 50_000, 50_000)
	itemID := id.New()
	e.ledger.put(primaryName, itemID, "Flour", 4)
	op := e.submit(t, allocation.SubmitInput{Kind: allocation.OpGlobalDistributionAll})
	e.ledger.put(primaryName, itemID, "Flour", 4)

	require.NoError(t, e.engine.Process(context.Background(), op.ID))

	assert.Len(t, e.ledger.transfers(), 4)
	assert.Len(t, e.audit.Plans(), 1)
}

func TestTempStorageIsCreatedOnce(t *testing.T) {
	e := newEnv(t, 100, 100, 100, 100)
	ctx := context.Background()

	first, err := e.engine.EnsureTempStorage(ctx)
	require.NoError(t, err)
	second, err := e.engine.EnsureTempStorage(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, allocation.LocationTempStorage, first.Kind)
	assert.Equal(t, int64(1_000_000), first.MaxCapacityKg)
	locs, err := e.svc.ListLocations(ctx)
	require.NoError(t, err)
	assert.Len(t, locs, 6)
	assert.Equal(t, first.ID, locs[5].ID)
}

func TestDispatcher_ProcessesInBackground(t *testing.T) {
	e := newEnv(t, 50_000, 50_000, 50_000, 50_000)
	ctx := context.Background()
	dispatcher := allocation.NewDispatcher(e.engine, 2)
	svc := allocation.NewService(e.repo, e.engine, dispatcher, e.promoter)

	var ids []id.ID
	for i := 0; i < 5; i++ {
		itemID := id.New()
		e.ledger.put(primaryName, itemID, "Item", 4)
		op, err := svc.Submit(ctx, allocation.SubmitInput{Kind: allocation.OpGlobalDistributionSKU, ItemID: idPtr(itemID)})
		require.NoError(t, err)
		assert.Equal(t, allocation.StatusPending, op.Status)
		ids = append(ids, op.ID)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.Eventually(t, func() bool {
		for _, opID := range ids {
			op, err := svc.GetOperation(ctx, opID)
			if err != nil || op.Status == allocation.StatusPending {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, dispatcher.Shutdown(shutdownCtx))

	for _, opID := range ids {
		op, err := svc.GetOperation(ctx, opID)
		require.NoError(t, err)
		assert.Equal(t, allocation.StatusCompleted, op.Status)
	}
}

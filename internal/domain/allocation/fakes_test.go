package allocation_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/allocation"
	"stockflow/internal/infrastructure/storage/memory"
)

// fakeLedger keeps per-location stock and applies transfers.
type fakeLedger struct {
	mu      sync.Mutex
	stock   map[string]map[id.ID]int64
	names   map[id.ID]string
	records []allocation.LedgerRecord

	readErr    error
	failTarget string
	// beforeRead runs ahead of every location read, outside mu.
	beforeRead func(location string)
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		stock: make(map[string]map[id.ID]int64),
		names: make(map[id.ID]string),
	}
}

func (l *fakeLedger) put(location string, itemID id.ID, name string, kg int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stock[location] == nil {
		l.stock[location] = make(map[id.ID]int64)
	}
	l.stock[location][itemID] += kg
	l.names[itemID] = name
}

func (l *fakeLedger) weight(location string, itemID id.ID) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stock[location][itemID]
}

func (l *fakeLedger) total(location string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sum int64
	for _, kg := range l.stock[location] {
		sum += kg
	}
	return sum
}

func (l *fakeLedger) transfers() []allocation.LedgerRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]allocation.LedgerRecord(nil), l.records...)
}

func (l *fakeLedger) GetLocationTotals(_ context.Context, name string) ([]allocation.StockLine, error) {
	if l.beforeRead != nil {
		l.beforeRead(name)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return nil, l.readErr
	}
	out := []allocation.StockLine{}
	for itemID, kg := range l.stock[name] {
		out = append(out, allocation.StockLine{ItemID: itemID, ItemName: l.names[itemID], Weight: kg, Quantity: 1})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemName < out[j].ItemName })
	return out, nil
}

func (l *fakeLedger) RecordOperation(_ context.Context, rec allocation.LedgerRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec.TargetLocation != nil && *rec.TargetLocation == l.failTarget {
		return apperror.NewUpstreamUnavailable("ledger", errors.New("connection refused"))
	}
	kg := rec.WeightValue.IntPart()
	src, dst := *rec.SourceLocation, *rec.TargetLocation
	for _, loc := range []string{src, dst} {
		if l.stock[loc] == nil {
			l.stock[loc] = make(map[id.ID]int64)
		}
	}
	l.stock[src][rec.ItemID] -= kg
	l.stock[dst][rec.ItemID] += kg
	l.records = append(l.records, rec)
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// syncScheduler processes operations on the calling goroutine.
type syncScheduler struct {
	t      *testing.T
	engine *allocation.Engine
}

func (s syncScheduler) Dispatch(ctx context.Context, operationID id.ID) {
	require.NoError(s.t, s.engine.Process(ctx, operationID))
}

const (
	primaryName = "Main Storage"
	tempName    = "Temporary Storage"
)

type env struct {
	repo       *memory.AllocationRepo
	ledger     *fakeLedger
	audit      *memory.AuditLog
	clock      *clock
	engine     *allocation.Engine
	promoter   *allocation.Promoter
	svc        *allocation.Service
	primary    allocation.Location
	warehouses []allocation.Location
}

// newEnv creates primary storage and one warehouse per capacity.
func newEnv(t *testing.T, capacities ...int64) *env {
	t.Helper()
	ctx := context.Background()
	e := &env{
		repo:   memory.NewAllocationRepo(),
		ledger: newFakeLedger(),
		audit:  memory.NewAuditLog(),
		clock:  &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}

	e.primary = allocation.Location{ID: id.New(), Name: primaryName, Kind: allocation.LocationPrimaryStorage, MaxCapacityKg: 100_000}
	require.NoError(t, e.repo.CreateLocation(ctx, e.primary))
	for i, c := range capacities {
		w := allocation.Location{
			ID:            id.New(),
			Name:          "Warehouse " + string(rune('A'+i)),
			Kind:          allocation.LocationWarehouse,
			MaxCapacityKg: c,
			Position:      i + 1,
		}
		require.NoError(t, e.repo.CreateLocation(ctx, w))
		e.warehouses = append(e.warehouses, w)
	}

	e.engine = allocation.NewEngine(e.repo, e.ledger, allocation.NewLocationLocks(), allocation.EngineConfig{
		WarehouseCount:      4,
		TempStorageName:     tempName,
		TempStorageCapacity: 1_000_000,
	}, allocation.WithAuditor(e.audit), allocation.WithClock(e.clock.Now))
	e.promoter = allocation.NewPromoter(e.engine, allocation.PromoterConfig{
		Interval: time.Minute,
		Dwell:    5 * time.Minute,
		StaleAge: time.Hour,
	})
	e.svc = allocation.NewService(e.repo, e.engine, syncScheduler{t: t, engine: e.engine}, e.promoter,
		allocation.WithPlanReader(e.audit))
	return e
}

// submit runs an operation to completion and returns its final state.
func (e *env) submit(t *testing.T, in allocation.SubmitInput) allocation.Operation {
	t.Helper()
	ctx := context.Background()
	op, err := e.svc.Submit(ctx, in)
	require.NoError(t, err)
	done, err := e.svc.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	return done
}

func (e *env) location(t *testing.T, locationID id.ID) allocation.Location {
	t.Helper()
	loc, err := e.repo.GetLocation(context.Background(), locationID)
	require.NoError(t, err)
	return loc
}

func idPtr(v id.ID) *id.ID { return &v }

func int64Ptr(v int64) *int64 { return &v }

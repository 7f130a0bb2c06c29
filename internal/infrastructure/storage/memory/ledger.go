package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"stockflow/internal/core/id"
	"stockflow/internal/domain/ledger"
)

type locationKey struct {
	itemID   id.ID
	location string
}

// LedgerRepo is an in-memory ledger.Repository.
type LedgerRepo struct {
	mu         sync.RWMutex
	operations []ledger.StockOperation
	items      map[id.ID]ledger.ItemTotal
	locations  map[locationKey]ledger.LocationTotal
}

// NewLedgerRepo creates an empty repository whose writes roll back with txm.
func NewLedgerRepo(txm *TxManager) *LedgerRepo {
	r := &LedgerRepo{
		items:     make(map[id.ID]ledger.ItemTotal),
		locations: make(map[locationKey]ledger.LocationTotal),
	}
	txm.register(r)
	return r
}

func (r *LedgerRepo) snapshot() func() {
	r.mu.RLock()
	ops := len(r.operations)
	items := make(map[id.ID]ledger.ItemTotal, len(r.items))
	for k, v := range r.items {
		items[k] = v
	}
	locations := make(map[locationKey]ledger.LocationTotal, len(r.locations))
	for k, v := range r.locations {
		locations[k] = v
	}
	r.mu.RUnlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.operations = r.operations[:ops]
		r.items = items
		r.locations = locations
	}
}

func (r *LedgerRepo) requireTx(ctx context.Context, method string) error {
	if !InTransaction(ctx) {
		return fmt.Errorf("memory ledger: %s called outside a transaction", method)
	}
	return nil
}

func (r *LedgerRepo) AppendOperation(ctx context.Context, op ledger.StockOperation) error {
	if err := r.requireTx(ctx, "AppendOperation"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations = append(r.operations, op)
	return nil
}

// LockItemTotal relies on the TxManager lock, which already serializes
// every transaction.
func (r *LedgerRepo) LockItemTotal(ctx context.Context, itemID id.ID) (ledger.ItemTotal, error) {
	if err := r.requireTx(ctx, "LockItemTotal"); err != nil {
		return ledger.ItemTotal{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.items[itemID]; ok {
		return t, nil
	}
	return ledger.ItemTotal{ItemID: itemID}, nil
}

func (r *LedgerRepo) SaveItemTotal(ctx context.Context, total ledger.ItemTotal) error {
	if err := r.requireTx(ctx, "SaveItemTotal"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[total.ItemID] = total
	return nil
}

func (r *LedgerRepo) ListItemLocations(_ context.Context, itemID id.ID) ([]ledger.LocationTotal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ledger.LocationTotal
	for k, v := range r.locations {
		if k.itemID == itemID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocationName < out[j].LocationName })
	return out, nil
}

func (r *LedgerRepo) SaveLocationTotals(ctx context.Context, rows []ledger.LocationTotal) error {
	if err := r.requireTx(ctx, "SaveLocationTotals"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		r.locations[locationKey{itemID: row.ItemID, location: row.LocationName}] = row
	}
	return nil
}

func (r *LedgerRepo) GetLocationTotals(_ context.Context, locationName string) ([]ledger.LocationTotal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []ledger.LocationTotal{}
	for k, v := range r.locations {
		if k.location == locationName {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemName != out[j].ItemName {
			return out[i].ItemName < out[j].ItemName
		}
		return out[i].ItemID.String() < out[j].ItemID.String()
	})
	return out, nil
}

func (r *LedgerRepo) ListLocationTotals(_ context.Context, filter ledger.LocationFilter) ([]ledger.LocationTotal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []ledger.LocationTotal{}
	for k, v := range r.locations {
		if filter.LocationName != nil && k.location != *filter.LocationName {
			continue
		}
		if filter.ItemID != nil && k.itemID != *filter.ItemID {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LocationName != out[j].LocationName {
			return out[i].LocationName < out[j].LocationName
		}
		if out[i].ItemName != out[j].ItemName {
			return out[i].ItemName < out[j].ItemName
		}
		return out[i].ItemID.String() < out[j].ItemID.String()
	})
	return page(out, filter.Offset, filter.Limit), nil
}

func (r *LedgerRepo) ListLocationSummaries(_ context.Context) ([]ledger.LocationSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byName := make(map[string]*ledger.LocationSummary)
	for k, v := range r.locations {
		s, ok := byName[k.location]
		if !ok {
			s = &ledger.LocationSummary{LocationName: k.location}
			byName[k.location] = s
		}
		if v.Weight != 0 {
			s.ItemCount++
		}
		s.TotalWeight += v.Weight
	}
	out := make([]ledger.LocationSummary, 0, len(byName))
	for _, s := range byName {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocationName < out[j].LocationName })
	return out, nil
}

func (r *LedgerRepo) ListItemTotals(_ context.Context) ([]ledger.ItemTotal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ledger.ItemTotal, 0, len(r.items))
	for _, v := range r.items {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemName != out[j].ItemName {
			return out[i].ItemName < out[j].ItemName
		}
		return out[i].ItemID.String() < out[j].ItemID.String()
	})
	return out, nil
}

func (r *LedgerRepo) ListOperations(_ context.Context, filter ledger.OperationFilter) ([]ledger.StockOperation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ledger.StockOperation
	for i := len(r.operations) - 1; i >= 0; i-- {
		op := r.operations[i]
		if filter.ItemID != nil && op.ItemID != *filter.ItemID {
			continue
		}
		if filter.Kind != nil && op.Kind != *filter.Kind {
			continue
		}
		out = append(out, op)
	}
	return page(out, filter.Offset, filter.Limit), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	if items == nil {
		return []T{}
	}
	return items
}

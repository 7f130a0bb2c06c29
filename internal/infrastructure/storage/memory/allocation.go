package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/allocation"
)

// AllocationRepo is an in-memory allocation.Repository.
type AllocationRepo struct {
	mu         sync.RWMutex
	locations  map[id.ID]allocation.Location
	operations map[id.ID]allocation.Operation
	tempItems  map[id.ID]allocation.TempStorageItem
	now        func() time.Time
}

// NewAllocationRepo creates an empty repository.
func NewAllocationRepo() *AllocationRepo {
	return &AllocationRepo{
		locations:  make(map[id.ID]allocation.Location),
		operations: make(map[id.ID]allocation.Operation),
		tempItems:  make(map[id.ID]allocation.TempStorageItem),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *AllocationRepo) ListLocations(_ context.Context) ([]allocation.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]allocation.Location, 0, len(r.locations))
	for _, l := range r.locations {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *AllocationRepo) GetLocation(_ context.Context, locationID id.ID) (allocation.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.locations[locationID]
	if !ok {
		return allocation.Location{}, apperror.NewNotFound("location", locationID)
	}
	return l, nil
}

func (r *AllocationRepo) CreateLocation(_ context.Context, loc allocation.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.locations {
		if strings.EqualFold(l.Name, loc.Name) {
			return apperror.NewConflict("location name already exists").WithDetail("name", loc.Name)
		}
	}
	r.locations[loc.ID] = loc
	return nil
}

func (r *AllocationRepo) SetCurrentCapacity(_ context.Context, locationID id.ID, kg int64) error {
	return r.updateLocation(locationID, func(l *allocation.Location) { l.CurrentCapacityKg = kg })
}

func (r *AllocationRepo) AdjustCurrentCapacity(_ context.Context, locationID id.ID, deltaKg int64) error {
	return r.updateLocation(locationID, func(l *allocation.Location) { l.CurrentCapacityKg += deltaKg })
}

func (r *AllocationRepo) updateLocation(locationID id.ID, fn func(*allocation.Location)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locations[locationID]
	if !ok {
		return apperror.NewNotFound("location", locationID)
	}
	fn(&l)
	l.UpdatedAt = r.now()
	r.locations[locationID] = l
	return nil
}

func (r *AllocationRepo) CreateOperation(_ context.Context, op allocation.Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations[op.ID] = op
	return nil
}

func (r *AllocationRepo) GetOperation(_ context.Context, operationID id.ID) (allocation.Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.operations[operationID]
	if !ok {
		return allocation.Operation{}, apperror.NewNotFound("operation", operationID)
	}
	return op, nil
}

func (r *AllocationRepo) ListOperations(_ context.Context, filter allocation.OperationFilter) ([]allocation.Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []allocation.Operation
	for _, op := range r.operations {
		if filter.Status != nil && op.Status != *filter.Status {
			continue
		}
		if filter.Kind != nil && op.Kind != *filter.Kind {
			continue
		}
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return page(out, filter.Offset, filter.Limit), nil
}

func (r *AllocationRepo) CompleteOperation(_ context.Context, operationID id.ID, c allocation.Completion) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.operations[operationID]
	if !ok {
		return false, apperror.NewNotFound("operation", operationID)
	}
	if op.Status != allocation.StatusPending {
		return false, nil
	}
	op.Status = c.Status
	op.QuantityKg = c.QuantityKg
	op.ErrorMessage = c.ErrorMessage
	if c.ItemName != nil {
		op.ItemName = c.ItemName
	}
	completedAt := c.CompletedAt
	op.CompletedAt = &completedAt
	r.operations[operationID] = op
	return true, nil
}

func (r *AllocationRepo) CreateTempItem(_ context.Context, item allocation.TempStorageItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tempItems[item.ID] = item
	return nil
}

func (r *AllocationRepo) ListTempItems(_ context.Context, filter allocation.TempItemFilter) ([]allocation.TempStorageItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []allocation.TempStorageItem{}
	for _, item := range r.tempItems {
		if filter.PendingOnly && !item.Pending() {
			continue
		}
		if filter.CreatedBefore != nil && item.CreatedAt.After(*filter.CreatedBefore) {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *AllocationRepo) MarkTempItemMoved(_ context.Context, itemID id.ID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.tempItems[itemID]
	if !ok {
		return false, apperror.NewNotFound("temp storage item", itemID)
	}
	if !item.Pending() {
		return false, nil
	}
	item.MovedToStorageAt = &at
	r.tempItems[itemID] = item
	return true, nil
}

// AuditLog keeps processed plans in memory.
type AuditLog struct {
	mu    sync.Mutex
	plans []allocation.PlanRecord
}

// NewAuditLog creates an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (a *AuditLog) RecordPlan(_ context.Context, plan allocation.PlanRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.plans = append(a.plans, plan)
	return nil
}

// Plans returns the recorded plans in order.
func (a *AuditLog) Plans() []allocation.PlanRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]allocation.PlanRecord(nil), a.plans...)
}

// GetPlan returns the latest plan recorded for an operation.
func (a *AuditLog) GetPlan(_ context.Context, operationID id.ID) (allocation.PlanRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.plans) - 1; i >= 0; i-- {
		if a.plans[i].OperationID == operationID {
			return a.plans[i], nil
		}
	}
	return allocation.PlanRecord{}, apperror.NewNotFound("plan", operationID)
}

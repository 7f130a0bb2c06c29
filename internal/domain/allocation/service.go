package allocation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/pkg/logger"
)

// Service is the upward surface of the allocation engine.
type Service struct {
	repo      Repository
	engine    *Engine
	scheduler Scheduler
	promoter  *Promoter
	plans     PlanReader
	now       func() time.Time
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithPlanReader enables GetPlan.
func WithPlanReader(r PlanReader) ServiceOption {
	return func(s *Service) { s.plans = r }
}

// NewService creates the allocation service.
func NewService(repo Repository, engine *Engine, scheduler Scheduler, promoter *Promoter, opts ...ServiceOption) *Service {
	s := &Service{
		repo:      repo,
		engine:    engine,
		scheduler: scheduler,
		promoter:  promoter,
		now:       engine.now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit stores a pending operation and schedules it. The returned operation
// is always pending; its outcome is read back with GetOperation.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (Operation, error) {
	if !in.Kind.Valid() {
		return Operation{}, apperror.NewValidation("unknown operation kind").WithDetail("operation_kind", in.Kind)
	}
	if in.RequestedKg != nil {
		if !in.Kind.Direct() {
			return Operation{}, apperror.NewValidation("requestedKg applies to receipt, shipment and transfer only")
		}
		if *in.RequestedKg <= 0 {
			return Operation{}, apperror.NewValidation("requestedKg must be positive").
				WithDetail("requested_kg", *in.RequestedKg)
		}
	}

	op := Operation{
		ID:               id.New(),
		Kind:             in.Kind,
		ItemID:           in.ItemID,
		SourceLocationID: in.SourceLocationID,
		TargetLocationID: in.TargetLocationID,
		RequestedKg:      in.RequestedKg,
		Status:           StatusPending,
		CreatedAt:        s.now(),
	}
	if err := s.repo.CreateOperation(ctx, op); err != nil {
		return Operation{}, fmt.Errorf("create operation: %w", err)
	}

	logger.Info(ctx, "operation accepted", "operation_id", op.ID, "kind", op.Kind)
	s.scheduler.Dispatch(ctx, op.ID)
	return op, nil
}

// GetOperation returns one operation.
func (s *Service) GetOperation(ctx context.Context, operationID id.ID) (Operation, error) {
	return s.repo.GetOperation(ctx, operationID)
}

// ListOperations returns operations newest first.
func (s *Service) ListOperations(ctx context.Context, filter OperationFilter) ([]Operation, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, apperror.NewValidation("unknown status").WithDetail("status", *filter.Status)
	}
	if filter.Kind != nil && !filter.Kind.Valid() {
		return nil, apperror.NewValidation("unknown operation kind").WithDetail("operation_kind", *filter.Kind)
	}
	return s.repo.ListOperations(ctx, filter)
}

// ListLocations returns every location in enumeration order.
func (s *Service) ListLocations(ctx context.Context) ([]Location, error) {
	return s.repo.ListLocations(ctx)
}

// GetLocation returns one location.
func (s *Service) GetLocation(ctx context.Context, locationID id.ID) (Location, error) {
	return s.repo.GetLocation(ctx, locationID)
}

// CreateLocationInput describes a new primary storage or warehouse.
type CreateLocationInput struct {
	Name          string
	Kind          LocationKind
	MaxCapacityKg int64
	Description   string
	Position      int
}

// CreateLocation adds a location. Temp storage is created by the engine.
func (s *Service) CreateLocation(ctx context.Context, in CreateLocationInput) (Location, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Location{}, apperror.NewValidation("location name is required")
	}
	if in.Kind != LocationPrimaryStorage && in.Kind != LocationWarehouse {
		return Location{}, apperror.NewValidation("kind must be primary_storage or warehouse").
			WithDetail("kind", in.Kind)
	}
	if in.MaxCapacityKg <= 0 {
		return Location{}, apperror.NewValidation("maxCapacityKg must be positive")
	}
	if in.Kind == LocationPrimaryStorage {
		t, err := s.engine.loadTopology(ctx)
		if err != nil {
			return Location{}, err
		}
		if t.primary != nil {
			return Location{}, apperror.NewConflict("primary storage already exists").
				WithDetail("name", t.primary.Name)
		}
	}

	now := s.now()
	loc := Location{
		ID:            id.New(),
		Name:          name,
		Kind:          in.Kind,
		MaxCapacityKg: in.MaxCapacityKg,
		Description:   in.Description,
		Position:      in.Position,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreateLocation(ctx, loc); err != nil {
		return Location{}, err
	}
	logger.Info(ctx, "location created", "location_id", loc.ID, "name", loc.Name, "kind", loc.Kind)
	return loc, nil
}

// LocationStats returns every location with its usage. Capacities are
// reconciled from the ledger first; when the ledger is unavailable the
// cached values are served.
func (s *Service) LocationStats(ctx context.Context) ([]LocationStats, error) {
	locs, err := s.repo.ListLocations(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.engine.Reconcile(ctx, locs...); err != nil {
		logger.Warn(ctx, "serving cached capacities", "error", err)
	} else if locs, err = s.repo.ListLocations(ctx); err != nil {
		return nil, err
	}

	out := make([]LocationStats, 0, len(locs))
	for _, loc := range locs {
		out = append(out, LocationStats{
			Location:     loc,
			FreeKg:       loc.FreeKg(),
			UsagePercent: types.Percent(loc.CurrentCapacityKg, loc.MaxCapacityKg),
		})
	}
	return out, nil
}

// ListTempItems returns temp storage items oldest first.
func (s *Service) ListTempItems(ctx context.Context, pendingOnly bool) ([]TempStorageItem, error) {
	return s.repo.ListTempItems(ctx, TempItemFilter{PendingOnly: pendingOnly})
}

// ProcessTempStorage runs one promotion pass now.
func (s *Service) ProcessTempStorage(ctx context.Context) (PromotionResult, error) {
	return s.promoter.RunOnce(ctx)
}

// GetPlan returns the audited plan of a finished operation.
func (s *Service) GetPlan(ctx context.Context, operationID id.ID) (PlanRecord, error) {
	if _, err := s.repo.GetOperation(ctx, operationID); err != nil {
		return PlanRecord{}, err
	}
	if s.plans == nil {
		return PlanRecord{}, apperror.NewNotFound("plan", operationID)
	}
	return s.plans.GetPlan(ctx, operationID)
}

package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/tx"
	"stockflow/internal/core/types"
	"stockflow/pkg/logger"
)

// Service records stock operations and serves the derived totals.
type Service struct {
	repo            Repository
	txm             tx.ReadOnlyManager
	catalog         Catalog
	notifier        Notifier
	defaultLocation string
	now             func() time.Time
}

// NewService creates a ledger service. defaultLocation is used as the source
// of non-transfer operations that do not name one.
func NewService(repo Repository, txm tx.ReadOnlyManager, catalog Catalog, notifier Notifier, defaultLocation string) *Service {
	return &Service{
		repo:            repo,
		txm:             txm,
		catalog:         catalog,
		notifier:        notifier,
		defaultLocation: defaultLocation,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// RecordOperation appends one operation and applies it to the aggregates in
// a single transaction. The notification is published after commit and its
// failure does not affect the result.
func (s *Service) RecordOperation(ctx context.Context, in RecordInput) (StockOperation, error) {
	source, target, err := s.normalizeLocations(in)
	if err != nil {
		return StockOperation{}, err
	}

	itemName, err := s.resolveItemName(ctx, in)
	if err != nil {
		return StockOperation{}, err
	}

	op := StockOperation{
		ID:             id.New(),
		Kind:           in.Kind,
		ItemID:         in.ItemID,
		ItemName:       itemName,
		QuantityValue:  in.QuantityValue,
		QuantityUnit:   in.QuantityUnit,
		WeightValue:    in.WeightValue,
		WeightUnit:     in.WeightUnit,
		DeltaUnit:      types.BaseUnit,
		SourceLocation: source,
		TargetLocation: target,
		CreatedAt:      s.now(),
	}

	var pieces int64
	if in.Kind != KindDelete || in.QuantityUnit != "" {
		if pieces, err = types.BasePieces(in.QuantityValue, in.QuantityUnit); err != nil {
			return StockOperation{}, apperror.NewValidation(err.Error())
		}
	}
	if in.Kind != KindDelete {
		delta, err := types.KgEquivalent(in.QuantityValue, in.QuantityUnit, in.WeightValue, in.WeightUnit)
		if err != nil {
			return StockOperation{}, apperror.NewValidation(err.Error())
		}
		op.DeltaValue = signedDelta(in.Kind, delta)
	}
	if in.Kind == KindTransfer && op.DeltaValue <= 0 {
		return StockOperation{}, apperror.NewValidation("transfer amount must be positive").
			WithDetail("delta_value", op.DeltaValue)
	}

	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		item, err := s.repo.LockItemTotal(ctx, in.ItemID)
		if err != nil {
			return fmt.Errorf("lock item total: %w", err)
		}

		if in.Kind == KindDelete {
			if op.ItemName == "" {
				if !item.Exists() || item.ItemName == "" {
					return apperror.NewNotFound("item", in.ItemID)
				}
				op.ItemName = item.ItemName
			}
			if in.DeltaOverride != nil {
				op.DeltaValue = -abs(*in.DeltaOverride)
			} else {
				op.DeltaValue = -item.TotalWeight
			}
		}

		rows, err := s.repo.ListItemLocations(ctx, in.ItemID)
		if err != nil {
			return fmt.Errorf("list item locations: %w", err)
		}

		change := ApplyOperation(op, pieces, item, rows)
		change.Item.UpdatedAt = op.CreatedAt
		for i := range change.Locations {
			change.Locations[i].UpdatedAt = op.CreatedAt
		}

		if err := s.repo.AppendOperation(ctx, op); err != nil {
			return fmt.Errorf("append operation: %w", err)
		}
		if err := s.repo.SaveItemTotal(ctx, change.Item); err != nil {
			return fmt.Errorf("save item total: %w", err)
		}
		if err := s.repo.SaveLocationTotals(ctx, change.Locations); err != nil {
			return fmt.Errorf("save location totals: %w", err)
		}
		return nil
	})
	if err != nil {
		return StockOperation{}, err
	}

	logger.Info(ctx, "recorded stock operation",
		"operation_id", op.ID,
		"kind", op.Kind,
		"item_id", op.ItemID,
		"delta_value", op.DeltaValue,
	)

	s.publish(ctx, EventOperationCreated, op)
	return op, nil
}

// GetLocationTotals returns the stock held at a location.
func (s *Service) GetLocationTotals(ctx context.Context, locationName string) ([]LocationTotal, error) {
	name := strings.TrimSpace(locationName)
	if name == "" {
		return nil, apperror.NewValidation("location name is required")
	}
	return readOnly(ctx, s.txm, func(ctx context.Context) ([]LocationTotal, error) {
		return s.repo.GetLocationTotals(ctx, name)
	})
}

// ListLocationTotals returns location rows matching filter.
func (s *Service) ListLocationTotals(ctx context.Context, filter LocationFilter) ([]LocationTotal, error) {
	filter.LocationName = trimmed(filter.LocationName)
	return readOnly(ctx, s.txm, func(ctx context.Context) ([]LocationTotal, error) {
		return s.repo.ListLocationTotals(ctx, filter)
	})
}

// ListLocationSummaries returns per-location totals.
func (s *Service) ListLocationSummaries(ctx context.Context) ([]LocationSummary, error) {
	return readOnly(ctx, s.txm, s.repo.ListLocationSummaries)
}

// ListItemTotals returns per-item totals.
func (s *Service) ListItemTotals(ctx context.Context) ([]ItemTotal, error) {
	return readOnly(ctx, s.txm, s.repo.ListItemTotals)
}

// ItemHistory returns the operations recorded for an item, newest first.
func (s *Service) ItemHistory(ctx context.Context, itemID id.ID, limit int) ([]StockOperation, error) {
	return s.ListOperations(ctx, OperationFilter{ItemID: &itemID, Limit: limit})
}

// ListOperations returns ledger entries, newest first.
func (s *Service) ListOperations(ctx context.Context, filter OperationFilter) ([]StockOperation, error) {
	if filter.Kind != nil && !filter.Kind.Valid() {
		return nil, apperror.NewValidation("unknown operation kind").WithDetail("kind", *filter.Kind)
	}
	return readOnly(ctx, s.txm, func(ctx context.Context) ([]StockOperation, error) {
		return s.repo.ListOperations(ctx, filter)
	})
}

func readOnly[T any](ctx context.Context, txm tx.ReadOnlyManager, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := txm.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

func (s *Service) normalizeLocations(in RecordInput) (*string, *string, error) {
	if !in.Kind.Valid() {
		return nil, nil, apperror.NewValidation("unknown operation kind").WithDetail("kind", in.Kind)
	}
	if id.IsNil(in.ItemID) {
		return nil, nil, apperror.NewValidation("item id is required")
	}

	source := trimmed(in.SourceLocation)
	target := trimmed(in.TargetLocation)

	if in.Kind == KindTransfer {
		if source == nil || target == nil {
			return nil, nil, apperror.NewValidation("transfer requires source and target locations")
		}
		if *source == *target {
			return nil, nil, apperror.NewValidation("transfer source and target must differ").
				WithDetail("location", *source)
		}
		return source, target, nil
	}

	if source == nil && s.defaultLocation != "" {
		def := s.defaultLocation
		source = &def
	}
	return source, source, nil
}

// resolveItemName snapshots the catalog name. Delete tolerates a missing
// catalog entry and falls back to the name on file inside the transaction.
func (s *Service) resolveItemName(ctx context.Context, in RecordInput) (string, error) {
	item, err := s.catalog.GetItem(ctx, in.ItemID)
	if err == nil {
		return item.Name, nil
	}
	if in.Kind == KindDelete && apperror.IsNotFound(err) {
		return "", nil
	}
	return "", err
}

func (s *Service) publish(ctx context.Context, event string, payload any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, event, payload); err != nil {
		logger.Warn(ctx, "notification publish failed", "event", event, "error", err)
	}
}

func signedDelta(kind OperationKind, delta int64) int64 {
	switch kind {
	case KindWriteOff, KindDelete:
		return -abs(delta)
	case KindUpdate:
		return delta
	default:
		return abs(delta)
	}
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

package allocation

import (
	"context"
	"sync"
	"time"

	"stockflow/internal/core/apperror"
	"stockflow/pkg/logger"
)

// PromoterConfig controls the promotion loop.
type PromoterConfig struct {
	Interval time.Duration
	Dwell    time.Duration
	StaleAge time.Duration
}

// PromotionResult summarizes one promotion pass.
type PromotionResult struct {
	Examined  int           `json:"examined"`
	Promoted  int           `json:"promoted"`
	Deferred  int           `json:"deferred"`
	Failed    int           `json:"failed"`
	Stale     int           `json:"stale"`
	OldestAge time.Duration `json:"oldestAgeNs"`
}

// Promoter moves temp storage items back into primary storage once they
// have waited out the dwell time and primary storage can hold them whole.
type Promoter struct {
	e   *Engine
	cfg PromoterConfig
	mu  sync.Mutex
}

// NewPromoter creates a promoter working through e.
func NewPromoter(e *Engine, cfg PromoterConfig) *Promoter {
	return &Promoter{e: e, cfg: cfg}
}

// Run executes a pass every interval until ctx is done.
func (p *Promoter) Run(ctx context.Context) {
	ctx = logger.WithLogger(ctx, logger.Default().WithComponent("promotion"))
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.RunOnce(ctx); err != nil {
				logger.Warn(ctx, "promotion pass failed", "error", err)
			}
		}
	}
}

type promotion int

const (
	promoted promotion = iota
	deferred
	failed
)

// RunOnce executes a single pass. Passes never overlap.
func (p *Promoter) RunOnce(ctx context.Context) (PromotionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var res PromotionResult
	t, err := p.e.loadTopology(ctx)
	if err != nil {
		return res, err
	}
	if t.temp == nil {
		return res, nil
	}
	if t.primary == nil {
		return res, apperror.NewPreconditionFailed("primary storage is not configured")
	}

	now := p.e.now()
	cutoff := now.Add(-p.cfg.Dwell)
	items, err := p.e.repo.ListTempItems(ctx, TempItemFilter{PendingOnly: true, CreatedBefore: &cutoff})
	if err != nil {
		return res, err
	}
	if len(items) == 0 {
		p.e.metrics.PromotionPass(res)
		return res, nil
	}
	if _, err := p.e.Reconcile(ctx, *t.primary, *t.temp); err != nil {
		return res, err
	}

	for _, item := range items {
		res.Examined++
		age := now.Sub(item.CreatedAt)
		if age > res.OldestAge {
			res.OldestAge = age
		}

		outcome := p.promote(ctx, *t.primary, *t.temp, item, now)
		switch outcome {
		case promoted:
			res.Promoted++
			continue
		case deferred:
			res.Deferred++
		case failed:
			res.Failed++
		}
		if p.cfg.StaleAge > 0 && age >= p.cfg.StaleAge {
			res.Stale++
			logger.Warn(ctx, "temp storage item is stale",
				"temp_item_id", item.ID,
				"item_id", item.ItemID,
				"quantity_kg", item.QuantityKg,
				"age", age.String(),
			)
		}
	}

	p.e.metrics.PromotionPass(res)
	if res.Promoted > 0 || res.Failed > 0 {
		logger.Info(ctx, "promotion pass finished",
			"examined", res.Examined,
			"promoted", res.Promoted,
			"deferred", res.Deferred,
			"failed", res.Failed,
		)
	}
	return res, nil
}

func (p *Promoter) promote(ctx context.Context, primary, temp Location, item TempStorageItem, now time.Time) promotion {
	unlock := p.e.locks.Lock(primary.ID, temp.ID)
	defer unlock()

	current, err := p.e.repo.GetLocation(ctx, primary.ID)
	if err != nil {
		logger.Warn(ctx, "load primary storage failed", "error", err)
		return failed
	}
	if current.FreeKg() < item.QuantityKg {
		return deferred
	}

	key := "promotion:" + item.ID.String()
	if err := p.e.ledger.RecordOperation(ctx, transferRecord(item.ItemID, temp.Name, primary.Name, item.QuantityKg, key)); err != nil {
		p.e.metrics.LedgerCallFailed("record_operation")
		logger.Warn(ctx, "promotion transfer failed", "temp_item_id", item.ID, "error", err)
		return failed
	}
	adjustCaches(ctx, p.e.repo, temp, primary, item.QuantityKg)

	ok, err := p.e.repo.MarkTempItemMoved(ctx, item.ID, now)
	if err != nil {
		// The ledger write is idempotent on key, so the next pass finishes it.
		logger.Error(ctx, "mark temp storage item moved failed", "temp_item_id", item.ID, "error", err)
		return failed
	}
	if !ok {
		logger.Warn(ctx, "temp storage item already promoted", "temp_item_id", item.ID)
	}
	return promoted
}

package allocation

import (
	"context"
	"fmt"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/pkg/logger"
)

// run is the processing state of one operation.
type run struct {
	e  *Engine
	op Operation

	temp     Location
	step     int
	quantity int64
	itemName *string
	warnings []string
	plan     []PlanStep
}

func (r *run) execute(ctx context.Context) error {
	switch r.op.Kind {
	case OpReceipt, OpShipment, OpTransfer:
		return r.direct(ctx)
	case OpGlobalDistributionAll, OpGlobalDistributionSKU:
		return r.distribute(ctx)
	case OpReplenishmentAll, OpReplenishmentSKU:
		return r.replenish(ctx)
	case OpPlacementAll, OpPlacementSKU:
		return r.place(ctx)
	}
	return apperror.NewValidation("unknown operation kind").WithDetail("kind", r.op.Kind)
}

// direct moves one item between the caller's source and target.
func (r *run) direct(ctx context.Context) error {
	if err := r.requireItem(); err != nil {
		return err
	}
	if r.op.SourceLocationID == nil || r.op.TargetLocationID == nil {
		return apperror.NewPreconditionFailed("source and target locations are required")
	}
	if *r.op.SourceLocationID == *r.op.TargetLocationID {
		return apperror.NewPreconditionFailed("source and target locations must differ")
	}
	src, err := r.location(ctx, *r.op.SourceLocationID)
	if err != nil {
		return err
	}
	dst, err := r.location(ctx, *r.op.TargetLocationID)
	if err != nil {
		return err
	}
	if dst.Kind == LocationTempStorage {
		return apperror.NewPreconditionFailed("temp storage cannot be a target")
	}

	stock, err := r.e.Reconcile(ctx, src, dst)
	if err != nil {
		return err
	}
	lines := r.eligible(stock[src.ID])
	if len(lines) == 0 {
		return r.nothingToMove(src.Name)
	}
	line := lines[0]
	amount := line.Weight
	if req := r.op.RequestedKg; req != nil && *req < amount {
		amount = *req
	}

	if err := r.prepare(ctx); err != nil {
		return err
	}
	r.quantity = amount
	r.move(ctx, src, dst, line, amount)
	return nil
}

// distribute splits primary storage stock evenly over all warehouses.
func (r *run) distribute(ctx context.Context) error {
	if err := r.requireItemForSKU(); err != nil {
		return err
	}
	t, err := r.e.loadTopology(ctx)
	if err != nil {
		return err
	}
	if err := t.requirePrimary(); err != nil {
		return err
	}
	if err := t.requireWarehouses(r.e.cfg.WarehouseCount); err != nil {
		return err
	}

	stock, err := r.e.Reconcile(ctx, append([]Location{*t.primary}, t.warehouses...)...)
	if err != nil {
		return err
	}
	lines := r.eligible(stock[t.primary.ID])
	if len(lines) == 0 {
		return r.nothingToMove(t.primary.Name)
	}

	if err := r.prepare(ctx); err != nil {
		return err
	}
	for _, line := range lines {
		r.quantity += line.Weight
		r.fanOut(ctx, *t.primary, t.warehouses, line)
	}
	return nil
}

// replenish pulls stock from every other warehouse into the target.
func (r *run) replenish(ctx context.Context) error {
	if err := r.requireItemForSKU(); err != nil {
		return err
	}
	if r.op.TargetLocationID == nil {
		return apperror.NewPreconditionFailed("target warehouse is required")
	}
	t, err := r.e.loadTopology(ctx)
	if err != nil {
		return err
	}
	target, err := r.warehouse(ctx, *r.op.TargetLocationID)
	if err != nil {
		return err
	}
	if err := t.requireWarehouses(r.e.cfg.WarehouseCount); err != nil {
		return err
	}

	sources := t.others(target.ID)
	stock, err := r.e.Reconcile(ctx, append([]Location{target}, sources...)...)
	if err != nil {
		return err
	}

	type pull struct {
		source Location
		line   StockLine
	}
	var pulls []pull
	for _, src := range sources {
		for _, line := range r.eligible(stock[src.ID]) {
			pulls = append(pulls, pull{source: src, line: line})
		}
	}
	if len(pulls) == 0 {
		return r.nothingToMove("the other warehouses")
	}

	if err := r.prepare(ctx); err != nil {
		return err
	}
	for _, p := range pulls {
		r.quantity += p.line.Weight
		r.move(ctx, p.source, target, p.line, p.line.Weight)
	}
	return nil
}

// place splits one warehouse's stock evenly over the other warehouses.
func (r *run) place(ctx context.Context) error {
	if err := r.requireItemForSKU(); err != nil {
		return err
	}
	if r.op.SourceLocationID == nil {
		return apperror.NewPreconditionFailed("source warehouse is required")
	}
	t, err := r.e.loadTopology(ctx)
	if err != nil {
		return err
	}
	source, err := r.warehouse(ctx, *r.op.SourceLocationID)
	if err != nil {
		return err
	}
	if err := t.requireWarehouses(r.e.cfg.WarehouseCount); err != nil {
		return err
	}

	targets := t.others(source.ID)
	stock, err := r.e.Reconcile(ctx, append([]Location{source}, targets...)...)
	if err != nil {
		return err
	}
	lines := r.eligible(stock[source.ID])
	if len(lines) == 0 {
		return r.nothingToMove(source.Name)
	}

	if err := r.prepare(ctx); err != nil {
		return err
	}
	for _, line := range lines {
		r.quantity += line.Weight
		r.fanOut(ctx, source, targets, line)
	}
	return nil
}

// fanOut sends Split(line.Weight, len(targets)) to targets in order.
func (r *run) fanOut(ctx context.Context, src Location, targets []Location, line StockLine) {
	for i, share := range Split(line.Weight, len(targets)) {
		if share > 0 {
			r.move(ctx, src, targets[i], line, share)
		}
	}
}

// move transfers share kg of line from src to dst. What does not fit into
// dst goes to temp storage.
func (r *run) move(ctx context.Context, src, dst Location, line StockLine, share int64) {
	step := PlanStep{
		ItemID:   line.ItemID,
		ItemName: line.ItemName,
		Source:   src.Name,
		Target:   dst.Name,
		ShareKg:  share,
	}
	defer func() { r.plan = append(r.plan, step) }()

	unlock := r.e.locks.Lock(src.ID, dst.ID, r.temp.ID)
	defer unlock()

	current, err := r.e.repo.GetLocation(ctx, dst.ID)
	if err != nil {
		step.Error = err.Error()
		r.warn("capacity check of %s failed: %s", dst.Name, failureMessage(err))
		return
	}
	fit := min(share, current.FreeKg())
	over := share - fit

	if fit > 0 {
		if err := r.transfer(ctx, src, dst, line.ItemID, fit); err != nil {
			step.Error = err.Error()
			r.warn("transfer of %d kg of %s from %s to %s failed: %s",
				fit, displayName(line), src.Name, dst.Name, failureMessage(err))
			return
		}
		step.MovedKg = fit
	}
	if over > 0 {
		r.divert(ctx, src, dst, line, over, &step)
	}
}

// divert sends over kg that did not fit into dst to temp storage and queues
// it for promotion.
func (r *run) divert(ctx context.Context, src, dst Location, line StockLine, over int64, step *PlanStep) {
	if src.ID == r.temp.ID {
		r.warn("%s is full: %d kg of %s stays in %s", dst.Name, over, displayName(line), src.Name)
		return
	}
	if err := r.transfer(ctx, src, r.temp, line.ItemID, over); err != nil {
		step.Error = err.Error()
		r.warn("overflow of %d kg of %s from %s could not be moved to %s: %s",
			over, displayName(line), src.Name, r.temp.Name, failureMessage(err))
		return
	}
	step.OverflowKg = over
	r.e.metrics.Overflow(over)

	opID := r.op.ID
	item := TempStorageItem{
		ID:                id.New(),
		ItemID:            line.ItemID,
		ItemName:          line.ItemName,
		QuantityKg:        over,
		SourceOperationID: &opID,
		CreatedAt:         r.e.now(),
	}
	if err := r.e.repo.CreateTempItem(ctx, item); err != nil {
		logger.Error(ctx, "queue temp storage item failed", "item_id", line.ItemID, "quantity_kg", over, "error", err)
		r.warn("%d kg of %s moved to %s but was not queued for promotion", over, displayName(line), r.temp.Name)
		return
	}
	r.warn("%s is full: %d kg of %s sent to %s", dst.Name, over, displayName(line), r.temp.Name)
}

// transfer records one ledger transfer and adjusts both capacity caches.
// Callers hold the locks of src and dst.
func (r *run) transfer(ctx context.Context, src, dst Location, itemID id.ID, kg int64) error {
	r.step++
	key := fmt.Sprintf("%s:%d", r.op.ID, r.step)
	if err := r.e.ledger.RecordOperation(ctx, transferRecord(itemID, src.Name, dst.Name, kg, key)); err != nil {
		r.e.metrics.LedgerCallFailed("record_operation")
		return err
	}
	adjustCaches(ctx, r.e.repo, src, dst, kg)
	return nil
}

// adjustCaches moves kg between two capacity caches. A failed adjustment
// is corrected by the next reconciliation.
func adjustCaches(ctx context.Context, repo Repository, src, dst Location, kg int64) {
	if err := repo.AdjustCurrentCapacity(ctx, src.ID, -kg); err != nil {
		logger.Warn(ctx, "adjust capacity cache failed", "location", src.Name, "error", err)
	}
	if err := repo.AdjustCurrentCapacity(ctx, dst.ID, kg); err != nil {
		logger.Warn(ctx, "adjust capacity cache failed", "location", dst.Name, "error", err)
	}
}

func (r *run) prepare(ctx context.Context) error {
	temp, err := r.e.EnsureTempStorage(ctx)
	if err != nil {
		return err
	}
	r.temp = temp
	return nil
}

func (r *run) requireItem() error {
	if r.op.ItemID == nil || id.IsNil(*r.op.ItemID) {
		return apperror.NewPreconditionFailed("item id is required")
	}
	return nil
}

func (r *run) requireItemForSKU() error {
	if r.op.Kind.RequiresItem() {
		return r.requireItem()
	}
	return nil
}

func (r *run) location(ctx context.Context, locationID id.ID) (Location, error) {
	loc, err := r.e.repo.GetLocation(ctx, locationID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return Location{}, apperror.NewPreconditionFailed("location not found").
				WithDetail("location_id", locationID)
		}
		return Location{}, err
	}
	return loc, nil
}

func (r *run) warehouse(ctx context.Context, locationID id.ID) (Location, error) {
	loc, err := r.location(ctx, locationID)
	if err != nil {
		return Location{}, err
	}
	if loc.Kind != LocationWarehouse {
		return Location{}, apperror.NewPreconditionFailed(loc.Name+" is not a warehouse").
			WithDetail("location_id", locationID)
	}
	return loc, nil
}

// eligible keeps the lines with stock that the operation applies to and
// remembers the item name of single-item operations.
func (r *run) eligible(lines []StockLine) []StockLine {
	var out []StockLine
	for _, l := range lines {
		if l.Weight <= 0 {
			continue
		}
		if r.op.Kind.RequiresItem() {
			if l.ItemID != *r.op.ItemID {
				continue
			}
			name := l.ItemName
			r.itemName = &name
		}
		out = append(out, l)
	}
	return out
}

func (r *run) nothingToMove(where string) error {
	if r.op.Kind.RequiresItem() {
		return apperror.NewPreconditionFailed(
			fmt.Sprintf("item %s has no stock in %s", *r.op.ItemID, where)).
			WithDetail("item_id", *r.op.ItemID)
	}
	return apperror.NewPreconditionFailed("no stock to move in " + where)
}

func (r *run) warn(format string, args ...any) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

func displayName(l StockLine) string {
	if l.ItemName != "" {
		return l.ItemName
	}
	return l.ItemID.String()
}

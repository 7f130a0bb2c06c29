// Package main provides a CLI tool for seeding the allocator database with
// primary storage and the warehouses.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"stockflow/internal/config"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/allocation"
	"stockflow/internal/infrastructure/storage/postgres"
	"stockflow/internal/infrastructure/storage/postgres/allocation_repo"
	"stockflow/pkg/logger"
)

const (
	primaryCapacityKg   = 100_000
	warehouseCapacityKg = 50_000
)

var warehouseNames = []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot", "Golf", "Hotel"}

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	if err := config.LoadDotEnv(); err != nil {
		log.Fatalw("failed to read .env", "error", err)
	}
	cfg, err := config.LoadAllocator()
	if err != nil {
		log.Fatalw("invalid configuration", "error", err)
	}
	if cfg.StorageDriver != config.StoragePostgres {
		log.Fatal("seeding requires STORAGE_DRIVER=postgres")
	}
	if cfg.WarehouseCount > len(warehouseNames) {
		log.Fatalw("too many warehouses to seed", "requested", cfg.WarehouseCount, "max", len(warehouseNames))
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL, "stockflow-seed"))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	if err := postgres.EnsureSchema(ctx, pool, postgres.AllocatorSchema); err != nil {
		log.Fatalw("failed to apply schema", "error", err)
	}

	repo := allocation_repo.NewAllocationRepo(postgres.NewTxManager(pool))
	created, err := seedLocations(ctx, repo, cfg)
	if err != nil {
		log.Fatalw("failed to seed locations", "error", err)
	}

	log.Infow("seeding completed successfully", "created", created)
}

// seedLocations creates primary storage and cfg.WarehouseCount warehouses
// unless some location already exists.
func seedLocations(ctx context.Context, repo *allocation_repo.AllocationRepo, cfg config.AllocatorConfig) (int, error) {
	existing, err := repo.ListLocations(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		logger.Info(ctx, "locations already exist, skipping", "count", len(existing))
		return 0, nil
	}

	now := time.Now().UTC()
	locs := []allocation.Location{{
		ID:            id.New(),
		Name:          cfg.PrimaryStorageName,
		Kind:          allocation.LocationPrimaryStorage,
		MaxCapacityKg: primaryCapacityKg,
		Description:   "Primary storage where new items are created",
		CreatedAt:     now,
		UpdatedAt:     now,
	}}
	for i := 0; i < cfg.WarehouseCount; i++ {
		locs = append(locs, allocation.Location{
			ID:            id.New(),
			Name:          warehouseNames[i],
			Kind:          allocation.LocationWarehouse,
			MaxCapacityKg: warehouseCapacityKg,
			Description:   "Warehouse " + warehouseNames[i],
			Position:      i + 1,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	for _, loc := range locs {
		if err := repo.CreateLocation(ctx, loc); err != nil {
			return 0, fmt.Errorf("create %s: %w", loc.Name, err)
		}
		logger.Info(ctx, "location created", "name", loc.Name, "kind", loc.Kind, "max_capacity_kg", loc.MaxCapacityKg)
	}
	return len(locs), nil
}

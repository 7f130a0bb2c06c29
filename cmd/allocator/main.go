// Package main is the entry point for the allocation engine service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"stockflow/internal/config"
	"stockflow/internal/domain/allocation"
	v1 "stockflow/internal/infrastructure/http/v1"
	"stockflow/internal/infrastructure/http/v1/handlers"
	"stockflow/internal/infrastructure/ledgerclient"
	"stockflow/internal/infrastructure/metrics"
	"stockflow/internal/infrastructure/storage/memory"
	"stockflow/internal/infrastructure/storage/postgres"
	"stockflow/internal/infrastructure/storage/postgres/allocation_repo"
	"stockflow/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// planLog stores and serves processed plans.
type planLog interface {
	allocation.Auditor
	allocation.PlanReader
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("failed to read .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadAllocator()
	if err != nil {
		fmt.Printf("invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithLogger(ctx, log)

	log.Infow("starting allocation engine",
		"version", version,
		"storage", cfg.StorageDriver,
		"ledger_url", cfg.LedgerURL,
		"warehouses", cfg.WarehouseCount,
	)

	// --- Storage ---
	var (
		repo  allocation.Repository
		plans planLog
		pool  *postgres.Pool
	)
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL, "stockflow-allocator")
		poolCfg.MaxConns = int32(cfg.DBMaxConns)
		pool, err = postgres.NewPool(ctx, poolCfg)
		if err != nil {
			log.Fatalw("failed to connect to database", "error", err)
		}
		defer pool.Close()
		postgres.LogPoolStats(ctx, pool)

		if err := postgres.EnsureSchema(ctx, pool, postgres.AllocatorSchema); err != nil {
			log.Fatalw("failed to apply schema", "error", err)
		}
		txm := postgres.NewTxManager(pool)
		repo = allocation_repo.NewAllocationRepo(txm)
		audit, err := postgres.NewAuditLog(txm, cfg.AuditCompressThreshold)
		if err != nil {
			log.Fatalw("failed to create audit log", "error", err)
		}
		plans = audit
	default:
		repo = memory.NewAllocationRepo()
		plans = memory.NewAuditLog()
		log.Warn("using in-memory storage; data is lost on restart")
	}

	// --- Engine ---
	ledger := ledgerclient.New(cfg.LedgerURL, cfg.LedgerTimeout)
	reg := metrics.NewRegistry("allocator")

	engine := allocation.NewEngine(repo, ledger, allocation.NewLocationLocks(),
		allocation.EngineConfig{
			WarehouseCount:      cfg.WarehouseCount,
			TempStorageName:     cfg.TempStorageName,
			TempStorageCapacity: cfg.TempStorageCapacity,
		},
		allocation.WithAuditor(plans),
		allocation.WithRecorder(metrics.NewAllocationRecorder(reg)),
	)
	dispatcher := allocation.NewDispatcher(engine, cfg.Workers)
	promoter := allocation.NewPromoter(engine, allocation.PromoterConfig{
		Interval: cfg.PromotionInterval,
		Dwell:    cfg.PromotionDwell,
		StaleAge: cfg.PromotionStaleAge,
	})
	service := allocation.NewService(repo, engine, dispatcher, promoter, allocation.WithPlanReader(plans))

	if n, err := dispatcher.Resume(ctx); err != nil {
		log.Errorw("failed to resume pending operations", "error", err)
	} else if n > 0 {
		log.Infow("resumed pending operations", "count", n)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		promoter.Run(ctx)
	}()

	// --- Router ---
	health := handlers.NewHealthHandler("stockflow-allocator", version, cfg.StorageDriver, pool)
	health.AddCheck("ledger", ledger.Ping)

	router := v1.NewAllocatorRouter(v1.RouterConfig{
		Logger:      log,
		Health:      health,
		Metrics:     reg,
		ReleaseMode: !cfg.Development(),
	}, service)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	cancel()
	wg.Wait()

	// Operations still queued stay pending and are resumed on the next start.
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Errorw("operations still running at shutdown", "error", err)
	}

	log.Info("server stopped")
}

// Package main is the entry point for the stock ledger service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockflow/internal/config"
	"stockflow/internal/core/idempotency"
	"stockflow/internal/core/tx"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/infrastructure/catalog"
	v1 "stockflow/internal/infrastructure/http/v1"
	"stockflow/internal/infrastructure/http/v1/handlers"
	"stockflow/internal/infrastructure/metrics"
	"stockflow/internal/infrastructure/notify"
	"stockflow/internal/infrastructure/storage/memory"
	"stockflow/internal/infrastructure/storage/postgres"
	"stockflow/internal/infrastructure/storage/postgres/ledger_repo"
	"stockflow/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// keyStore is an idempotency store that can purge expired keys.
type keyStore interface {
	idempotency.Store
	CleanupExpired(ctx context.Context) (int64, error)
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("failed to read .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadLedger()
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

	log.Infow("starting stock ledger", "version", version, "storage", cfg.StorageDriver)

	// --- Storage ---
	var (
		repo ledger.Repository
		txm  tx.ReadOnlyManager
		keys keyStore
		pool *postgres.Pool
	)
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL, "stockflow-ledger")
		poolCfg.MaxConns = int32(cfg.DBMaxConns)
		pool, err = postgres.NewPool(ctx, poolCfg)
		if err != nil {
			log.Fatalw("failed to connect to database", "error", err)
		}
		defer pool.Close()
		postgres.LogPoolStats(ctx, pool)

		if err := postgres.EnsureSchema(ctx, pool, postgres.LedgerSchema); err != nil {
			log.Fatalw("failed to apply schema", "error", err)
		}
		pgTx := postgres.NewTxManager(pool)
		repo = ledger_repo.NewLedgerRepo(pgTx)
		txm = pgTx
		keys = postgres.NewIdempotencyStore(pgTx, cfg.IdempotencyTTL)
	default:
		memTx := memory.NewTxManager()
		repo = memory.NewLedgerRepo(memTx)
		txm = memTx
		keys = memory.NewIdempotencyStore(cfg.IdempotencyTTL)
		log.Warn("using in-memory storage; data is lost on restart")
	}

	// --- Catalog ---
	items, closeCatalog, err := openCatalog(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to open catalog", "error", err)
	}
	defer closeCatalog()

	// --- Notifications ---
	notifier, closeNotifier, err := openNotifier(cfg)
	if err != nil {
		log.Fatalw("failed to open notifier", "error", err)
	}
	defer closeNotifier()

	service := ledger.NewService(repo, txm, items, notifier, cfg.DefaultLocation)

	// --- Router ---
	reg := metrics.NewRegistry("ledger")
	router := v1.NewLedgerRouter(v1.RouterConfig{
		Logger:      log,
		Health:      handlers.NewHealthHandler("stockflow-ledger", version, cfg.StorageDriver, pool),
		Metrics:     reg,
		Idempotency: keys,
		ReleaseMode: !cfg.Development(),
	}, service)

	go cleanupKeys(ctx, keys, time.Hour)

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
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// openCatalog builds the catalog lookup: the HTTP catalog when CATALOG_URL
// is set, a JSON file otherwise, cached in Redis when REDIS_URL is set.
func openCatalog(ctx context.Context, cfg config.LedgerConfig) (ledger.Catalog, func(), error) {
	var origin ledger.Catalog
	if cfg.CatalogURL != "" {
		origin = catalog.NewClient(cfg.CatalogURL, cfg.CatalogTimeout)
	} else {
		f, err := os.Open(cfg.CatalogFile)
		if err != nil {
			return nil, nil, fmt.Errorf("open catalog file: %w", err)
		}
		static, err := catalog.LoadStatic(f)
		_ = f.Close()
		if err != nil {
			return nil, nil, err
		}
		origin = static
	}

	if cfg.RedisURL == "" {
		return origin, func() {}, nil
	}
	rdb, err := catalog.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(ctx, "catalog cache enabled", "ttl", cfg.CatalogCacheTTL)
	return catalog.NewCachedClient(origin, rdb, cfg.CatalogCacheTTL), func() { _ = rdb.Close() }, nil
}

// openNotifier builds the publisher selected by NOTIFY_DRIVER.
func openNotifier(cfg config.LedgerConfig) (ledger.Notifier, func(), error) {
	switch cfg.NotifyDriver {
	case config.NotifyKafka:
		p := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.NotifyTimeout)
		return p, closer(p), nil
	case config.NotifyNATS:
		p, err := notify.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, nil, err
		}
		return p, closer(p), nil
	default:
		return notify.LogPublisher{}, func() {}, nil
	}
}

func closer(c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Default().Warnw("close notifier", "error", err)
		}
	}
}

// cleanupKeys purges expired idempotency keys every interval.
func cleanupKeys(ctx context.Context, keys keyStore, interval time.Duration) {
	ctx = logger.WithLogger(ctx, logger.Default().WithComponent("idempotency"))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := keys.CleanupExpired(ctx)
			if err != nil {
				logger.Warn(ctx, "idempotency cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info(ctx, "expired idempotency keys removed", "count", n)
			}
		}
	}
}

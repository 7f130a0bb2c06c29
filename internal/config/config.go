// Package config loads service configuration from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Notification drivers.
const (
	NotifyLog   = "log"
	NotifyKafka = "kafka"
	NotifyNATS  = "nats"
)

// Common holds settings shared by every binary.
type Common struct {
	AppEnv        string
	LogLevel      string
	Port          string
	StorageDriver string
	DatabaseURL   string
	DBMaxConns    int
}

// Development reports whether the process runs with developer logging.
func (c Common) Development() bool {
	return c.AppEnv == "development"
}

// LedgerConfig configures the stock ledger service.
type LedgerConfig struct {
	Common

	DefaultLocation string

	CatalogURL      string
	CatalogFile     string
	CatalogTimeout  time.Duration
	RedisURL        string
	CatalogCacheTTL time.Duration

	NotifyDriver  string
	KafkaBrokers  []string
	KafkaTopic    string
	NATSURL       string
	NATSSubject   string
	NotifyTimeout time.Duration

	IdempotencyTTL time.Duration
}

// AllocatorConfig configures the allocation engine service.
type AllocatorConfig struct {
	Common

	LedgerURL     string
	LedgerTimeout time.Duration

	WarehouseCount int
	Workers        int

	PromotionInterval time.Duration
	PromotionDwell    time.Duration
	PromotionStaleAge time.Duration

	PrimaryStorageName  string
	TempStorageName     string
	TempStorageCapacity int64

	AuditCompressThreshold int
}

// LoadDotEnv reads .env if it exists. Missing files are not an error.
func LoadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func loadCommon(defaultPort string) Common {
	return Common{
		AppEnv:        getEnv("APP_ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Port:          getEnv("APP_PORT", defaultPort),
		StorageDriver: getEnv("STORAGE_DRIVER", StoragePostgres),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		DBMaxConns:    getEnvInt("DB_MAX_CONNS", 25),
	}
}

// LoadLedger reads LedgerConfig from the environment.
func LoadLedger() (LedgerConfig, error) {
	cfg := LedgerConfig{
		Common:          loadCommon("8001"),
		DefaultLocation: getEnv("LEDGER_DEFAULT_LOCATION", "Main Storage"),
		CatalogURL:      getEnv("CATALOG_URL", ""),
		CatalogFile:     getEnv("CATALOG_FILE", ""),
		CatalogTimeout:  getEnvDuration("CATALOG_TIMEOUT", 10*time.Second),
		RedisURL:        getEnv("REDIS_URL", ""),
		CatalogCacheTTL: getEnvDuration("CATALOG_CACHE_TTL", 5*time.Minute),
		NotifyDriver:    getEnv("NOTIFY_DRIVER", NotifyLog),
		KafkaBrokers:    getEnvList("KAFKA_BROKERS"),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "erp_events"),
		NATSURL:         getEnv("NATS_URL", ""),
		NATSSubject:     getEnv("NATS_SUBJECT_PREFIX", "erp_events"),
		NotifyTimeout:   getEnvDuration("NOTIFY_TIMEOUT", 5*time.Second),
		IdempotencyTTL:  getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
	}
	return cfg, cfg.validate()
}

// LoadAllocator reads AllocatorConfig from the environment.
func LoadAllocator() (AllocatorConfig, error) {
	cfg := AllocatorConfig{
		Common:                 loadCommon("8002"),
		LedgerURL:              getEnv("LEDGER_URL", "http://localhost:8001"),
		LedgerTimeout:          getEnvDuration("LEDGER_TIMEOUT", 10*time.Second),
		WarehouseCount:         getEnvInt("WAREHOUSE_COUNT", 4),
		Workers:                getEnvInt("ALLOCATOR_WORKERS", 8),
		PromotionInterval:      getEnvDuration("PROMOTION_INTERVAL", time.Minute),
		PromotionDwell:         getEnvDuration("PROMOTION_DWELL", 5*time.Minute),
		PromotionStaleAge:      getEnvDuration("PROMOTION_STALE_AGE", time.Hour),
		PrimaryStorageName:     getEnv("PRIMARY_STORAGE_NAME", "Main Storage"),
		TempStorageName:        getEnv("TEMP_STORAGE_NAME", "Temporary Storage"),
		TempStorageCapacity:    int64(getEnvInt("TEMP_STORAGE_CAPACITY_KG", 1_000_000)),
		AuditCompressThreshold: getEnvInt("AUDIT_COMPRESS_THRESHOLD", 10*1024),
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	if cfg.WarehouseCount < 2 {
		return cfg, fmt.Errorf("WAREHOUSE_COUNT must be at least 2, got %d", cfg.WarehouseCount)
	}
	if cfg.Workers < 1 {
		return cfg, fmt.Errorf("ALLOCATOR_WORKERS must be positive, got %d", cfg.Workers)
	}
	if cfg.PromotionInterval <= 0 {
		return cfg, fmt.Errorf("PROMOTION_INTERVAL must be positive, got %s", cfg.PromotionInterval)
	}
	if cfg.PromotionDwell < 0 {
		return cfg, fmt.Errorf("PROMOTION_DWELL must not be negative, got %s", cfg.PromotionDwell)
	}
	return cfg, nil
}

func (c Common) validate() error {
	switch c.StorageDriver {
	case StorageMemory:
		return nil
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s storage driver", StoragePostgres)
		}
		return nil
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
}

func (c LedgerConfig) validate() error {
	if err := c.Common.validate(); err != nil {
		return err
	}
	if c.CatalogURL == "" && c.CatalogFile == "" {
		return fmt.Errorf("CATALOG_URL or CATALOG_FILE is required")
	}
	switch c.NotifyDriver {
	case NotifyLog:
	case NotifyKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required for the %s notify driver", NotifyKafka)
		}
	case NotifyNATS:
		if c.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required for the %s notify driver", NotifyNATS)
		}
	default:
		return fmt.Errorf("unknown NOTIFY_DRIVER %q", c.NotifyDriver)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

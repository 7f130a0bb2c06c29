// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockflow/internal/core/idempotency"
	"stockflow/internal/domain/allocation"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/infrastructure/http/v1/handlers"
	"stockflow/internal/infrastructure/http/v1/middleware"
	"stockflow/internal/infrastructure/metrics"
	"stockflow/pkg/logger"
)

// RouterConfig holds what every service router needs.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Health serves /health/*
	Health *handlers.HealthHandler

	// Metrics serves /metrics and instruments requests. Optional.
	Metrics *metrics.Registry

	// Idempotency enables X-Idempotency-Key handling on the API group. Optional.
	Idempotency idempotency.Store

	// ReleaseMode switches gin to release mode.
	ReleaseMode bool
}

// routeRegistrar mounts one service's endpoints.
type routeRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// NewLedgerRouter serves the stock ledger under /api/v1/inventory.
func NewLedgerRouter(cfg RouterConfig, service *ledger.Service) *gin.Engine {
	h := handlers.NewLedgerHandler(handlers.NewBaseHandler(), service)
	return newRouter(cfg, "/api/v1/inventory", h)
}

// NewAllocatorRouter serves the allocation engine under /api/v1/warehouse.
func NewAllocatorRouter(cfg RouterConfig, service *allocation.Service) *gin.Engine {
	h := handlers.NewWarehouseHandler(handlers.NewBaseHandler(), service)
	return newRouter(cfg, "/api/v1/warehouse", h)
}

func newRouter(cfg RouterConfig, prefix string, api routeRegistrar) *gin.Engine {
	if cfg.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!). Recovery sits inside ErrorHandler
	// so a recovered panic is still rendered.
	router.Use(middleware.Trace())
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware())
	}
	router.Use(middleware.Logger(cfg.Logger, "/health", "/metrics"))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	health := router.Group("/health")
	{
		health.GET("/live", cfg.Health.Live)
		health.GET("/ready", cfg.Health.Ready)
		health.GET("/info", cfg.Health.Info)
	}
	if cfg.Metrics != nil {
		router.GET("/metrics", cfg.Metrics.Handler())
	}

	group := router.Group(prefix)
	if cfg.Idempotency != nil {
		group.Use(middleware.Idempotency(cfg.Idempotency))
	}
	api.RegisterRoutes(group)

	return router
}

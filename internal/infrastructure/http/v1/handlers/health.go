// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"stockflow/internal/infrastructure/storage/postgres"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	app     string
	version string
	storage string
	pool    *postgres.Pool
	checks  map[string]Check
}

// NewHealthHandler creates a health handler. pool is nil for the memory driver.
func NewHealthHandler(app, version, storage string, pool *postgres.Pool) *HealthHandler {
	h := &HealthHandler{
		app:     app,
		version: version,
		storage: storage,
		pool:    pool,
		checks:  make(map[string]Check),
	}
	if pool != nil {
		h.checks["database"] = func(ctx context.Context) error { return pool.Ping(ctx) }
	}
	return h
}

// AddCheck registers a readiness check.
func (h *HealthHandler) AddCheck(name string, check Check) {
	h.checks[name] = check
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready runs every registered check.
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			results[name] = "unhealthy: " + err.Error()
			status, code = "error", http.StatusServiceUnavailable
			continue
		}
		results[name] = "healthy"
	}
	c.JSON(code, gin.H{"status": status, "checks": results})
}

// Info returns application information.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	info := gin.H{
		"app":     h.app,
		"version": h.version,
		"storage": h.storage,
	}
	if h.pool != nil {
		stat := h.pool.Stat()
		info["database"] = map[string]any{
			"total_conns":    stat.TotalConns(),
			"acquired_conns": stat.AcquiredConns(),
			"idle_conns":     stat.IdleConns(),
			"max_conns":      stat.MaxConns(),
		}
	}
	c.JSON(http.StatusOK, info)
}

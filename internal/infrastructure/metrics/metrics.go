// Package metrics exposes Prometheus metrics for both services.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stockflow/internal/domain/allocation"
)

const namespace = "stockflow"

// Registry owns the collectors of one process.
type Registry struct {
	reg *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewRegistry creates a registry with Go and process collectors and the
// HTTP metrics of service.
func NewRegistry(service string) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		reg: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "http_requests_total",
			Help:        "HTTP requests by route and status.",
			ConstLabels: prometheus.Labels{"service": service},
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency.",
			ConstLabels: prometheus.Labels{"service": service},
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(r.httpRequests, r.httpDuration)
	return r
}

// Prometheus returns the underlying registry.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.reg
}

// Handler serves /metrics.
func (r *Registry) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
	return gin.WrapH(h)
}

// Middleware records every request under its route template.
func (r *Registry) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		r.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		r.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

var _ allocation.Recorder = (*AllocationRecorder)(nil)

// AllocationRecorder reports allocation engine measurements.
type AllocationRecorder struct {
	operations     *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	overflowKg     prometheus.Counter
	ledgerFailures *prometheus.CounterVec
	promotions     *prometheus.CounterVec
	staleItems     prometheus.Gauge
	oldestAge      prometheus.Gauge
}

// NewAllocationRecorder registers the engine collectors on r.
func NewAllocationRecorder(r *Registry) *AllocationRecorder {
	a := &AllocationRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "allocation",
			Name:      "operations_total",
			Help:      "Finished operations by kind and status.",
		}, []string{"kind", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "allocation",
			Name:      "operation_duration_seconds",
			Help:      "Processing time of an operation.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"kind"}),
		overflowKg: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "allocation",
			Name:      "overflow_kg_total",
			Help:      "Kilograms diverted to temp storage.",
		}),
		ledgerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "allocation",
			Name:      "ledger_call_failures_total",
			Help:      "Failed ledger calls by call.",
		}, []string{"call"}),
		promotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "promotion",
			Name:      "items_total",
			Help:      "Temp storage items handled by promotion passes, by result.",
		}, []string{"result"}),
		staleItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "promotion",
			Name:      "stale_items",
			Help:      "Temp storage items waiting longer than the stale age at the last pass.",
		}),
		oldestAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "promotion",
			Name:      "oldest_item_age_seconds",
			Help:      "Age of the oldest pending temp storage item at the last pass.",
		}),
	}
	r.reg.MustRegister(a.operations, a.duration, a.overflowKg, a.ledgerFailures, a.promotions, a.staleItems, a.oldestAge)
	return a
}

func (a *AllocationRecorder) OperationFinished(kind allocation.OperationKind, status allocation.Status, elapsed time.Duration) {
	a.operations.WithLabelValues(string(kind), string(status)).Inc()
	a.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (a *AllocationRecorder) Overflow(kg int64) {
	a.overflowKg.Add(float64(kg))
}

func (a *AllocationRecorder) LedgerCallFailed(call string) {
	a.ledgerFailures.WithLabelValues(call).Inc()
}

func (a *AllocationRecorder) PromotionPass(res allocation.PromotionResult) {
	a.promotions.WithLabelValues("promoted").Add(float64(res.Promoted))
	a.promotions.WithLabelValues("deferred").Add(float64(res.Deferred))
	a.promotions.WithLabelValues("failed").Add(float64(res.Failed))
	a.staleItems.Set(float64(res.Stale))
	a.oldestAge.Set(res.OldestAge.Seconds())
}

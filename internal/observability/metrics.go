package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	allocationsTotal    prometheus.Counter
	allocatedUnits      prometheus.Counter
	allocationsRejected prometheus.Counter
	reconcileDrift      prometheus.Counter
}

// NewMetrics initialises the registry with HTTP and ledger metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "varejo_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "varejo_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	allocations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "varejo_ledger_allocations_total",
		Help: "Completed FIFO allocations.",
	})
	units := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "varejo_ledger_allocated_units_total",
		Help: "Units consumed from the ledger by allocations.",
	})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "varejo_ledger_insufficient_stock_total",
		Help: "Allocations rejected for insufficient stock.",
	})
	drift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "varejo_ledger_reconcile_drift_total",
		Help: "Aggregate drift occurrences repaired by reconciliation.",
	})
	registry.MustRegister(requests, duration, allocations, units, rejected, drift)
	return &Metrics{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:       requests,
		requestDuration:     duration,
		allocationsTotal:    allocations,
		allocatedUnits:      units,
		allocationsRejected: rejected,
		reconcileDrift:      drift,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// AllocationPosted implements the ledger metrics port.
func (m *Metrics) AllocationPosted(qty int64) {
	if m == nil {
		return
	}
	m.allocationsTotal.Inc()
	m.allocatedUnits.Add(float64(qty))
}

// AllocationRejected counts an insufficient-stock rejection.
func (m *Metrics) AllocationRejected() {
	if m == nil {
		return
	}
	m.allocationsRejected.Inc()
}

// ReconcileDrift counts one repaired drift occurrence.
func (m *Metrics) ReconcileDrift() {
	if m == nil {
		return
	}
	m.reconcileDrift.Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

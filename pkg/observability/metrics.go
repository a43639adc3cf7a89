package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// Resolve metrics
	ResolveTotal        *prometheus.CounterVec
	CompileDuration     *prometheus.HistogramVec
	CacheInvalidations  *prometheus.CounterVec
	PrunedArtifactTotal prometheus.Counter

	// Lock metrics
	LockWaitDuration *prometheus.HistogramVec
	LockTimeouts     *prometheus.CounterVec

	// Storage metrics
	StorageOperationsTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		ResolveTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prism_resolve_total",
				Help: "Total number of artifact resolutions by outcome",
			},
			[]string{"status"},
		),
		CompileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prism_compile_duration_seconds",
				Help:    "Compile callback duration in seconds",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"status"},
		),
		CacheInvalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prism_cache_invalidations_total",
				Help: "Total number of cache invalidations by reason",
			},
			[]string{"reason"},
		),
		PrunedArtifactTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "prism_pruned_artifacts_total",
				Help: "Total number of artifacts removed by prune",
			},
		),
		LockWaitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prism_lock_wait_seconds",
				Help:    "Time spent waiting for artifact locks",
				Buckets: []float64{.0001, .001, .01, .05, .1, .5, 1, 5, 10},
			},
			[]string{"kind"},
		),
		LockTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prism_lock_timeouts_total",
				Help: "Total number of lock acquisitions that ran out of retries",
			},
			[]string{"kind"},
		),
		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prism_storage_operations_total",
				Help: "Total number of storage operations",
			},
			[]string{"operation", "backend", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prism_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prism_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	registry.MustRegister(
		m.ResolveTotal,
		m.CompileDuration,
		m.CacheInvalidations,
		m.PrunedArtifactTotal,
		m.LockWaitDuration,
		m.LockTimeouts,
		m.StorageOperationsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// ObserveResolve counts one resolution outcome.
func (m *Metrics) ObserveResolve(status string) {
	if m == nil {
		return
	}
	m.ResolveTotal.WithLabelValues(status).Inc()
}

// ObserveCompile records the duration of one compile callback.
func (m *Metrics) ObserveCompile(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.CompileDuration.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveInvalidation counts one cache invalidation.
func (m *Metrics) ObserveInvalidation(reason string) {
	if m == nil {
		return
	}
	m.CacheInvalidations.WithLabelValues(reason).Inc()
}

// ObserveLockWait records time spent acquiring a lock of kind "local" or
// "cross_process".
func (m *Metrics) ObserveLockWait(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.LockWaitDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveLockTimeout counts one exhausted lock acquisition.
func (m *Metrics) ObserveLockTimeout(kind string) {
	if m == nil {
		return
	}
	m.LockTimeouts.WithLabelValues(kind).Inc()
}

// ObservePruned counts removed artifacts.
func (m *Metrics) ObservePruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PrunedArtifactTotal.Add(float64(n))
}

// RecordStorageOperation implements storage.Recorder
func (m *Metrics) RecordStorageOperation(operation, backend, status string) {
	if m == nil {
		return
	}
	m.StorageOperationsTotal.WithLabelValues(operation, backend, status).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

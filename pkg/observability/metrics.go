package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Permission metrics
	PermissionSavesTotal   *prometheus.CounterVec
	PolicyOperationsTotal  *prometheus.CounterVec
	PolicyRollbacksTotal   *prometheus.CounterVec
	HierarchyChecksTotal   *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal        *prometheus.CounterVec
	CacheMissesTotal      *prometheus.CounterVec
	CacheInvalidationsTotal *prometheus.CounterVec

	// Scheduler metrics
	JobExecutionsTotal    *prometheus.CounterVec
	JobExecutionDuration  *prometheus.HistogramVec
	SchedulerDesyncsTotal *prometheus.CounterVec
	RegisteredJobs        prometheus.Gauge

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admind_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "admind_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		PermissionSavesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admind_permission_saves_total",
				Help: "Total number of role permission reconciliations",
			},
			[]string{"status"},
		),
		PolicyOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admind_policy_operations_total",
				Help: "Total number of policy store mutations",
			},
			[]string{"operation", "status"},
		),
		PolicyRollbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admind_policy_rollbacks_total",
				Help: "Compensating rollbacks attempted after partial policy failures",
			},
			[]string{"outcome"},
		),
		HierarchyChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admind_hierarchy_checks_total",
				Help: "Circular inheritance checks by result",
			},
			[]string{"result"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admind_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"layer"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admind_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"layer"},
		),
		CacheInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admind_cache_invalidations_total",
				Help: "Total number of cache invalidations",
			},
			[]string{"scope"},
		),

		JobExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admind_job_executions_total",
				Help: "Total number of scheduled job executions",
			},
			[]string{"job", "status"},
		),
		JobExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "admind_job_execution_duration_seconds",
				Help:    "Scheduled job execution duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"job"},
		),
		SchedulerDesyncsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admind_scheduler_desyncs_total",
				Help: "Scheduler registration operations that failed and were deferred to reconciliation",
			},
			[]string{"operation"},
		),
		RegisteredJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "admind_registered_jobs",
				Help: "Recurring jobs currently registered with the scheduler",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "admind_db_connections_active",
				Help: "Active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "admind_db_connections_idle",
				Help: "Idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionSavesTotal,
		m.PolicyOperationsTotal,
		m.PolicyRollbacksTotal,
		m.HierarchyChecksTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidationsTotal,
		m.JobExecutionsTotal,
		m.JobExecutionDuration,
		m.SchedulerDesyncsTotal,
		m.RegisteredJobs,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps an HTTP handler with request metrics
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

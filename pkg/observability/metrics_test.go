package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegistersAll(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.PermissionSavesTotal.WithLabelValues("success").Inc()
	m.CacheHitsTotal.WithLabelValues("redis").Add(3)
	m.JobExecutionsTotal.WithLabelValues("nightly-sync", "success").Inc()
	m.SchedulerDesyncsTotal.WithLabelValues("register").Inc()
	m.RegisteredJobs.Set(5)

	if got := testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("redis")); got != 3 {
		t.Errorf("cache hits = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.RegisteredJobs); got != 5 {
		t.Errorf("registered jobs = %v, want 5", got)
	}
}

func TestNewMetricsDuplicateRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	NewMetrics(registry)
}

func TestInstrumentHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	handler := m.InstrumentHandler("/roles", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/roles/9", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/roles", "404")); got != 1 {
		t.Errorf("request counter = %v, want 1", got)
	}
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.PermissionSavesTotal.WithLabelValues("success").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "admind_permission_saves_total") {
		t.Error("metrics output missing admind_permission_saves_total")
	}
}

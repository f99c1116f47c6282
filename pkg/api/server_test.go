package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackgate/admind/pkg/config"
	"github.com/stackgate/admind/pkg/observability"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error {
	return f.err
}

type echoRegistrar struct{}

func (echoRegistrar) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/echo/{word}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(mux.Vars(r)["word"]))
	}).Methods("GET")
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            "0",
			HealthPort:      "0",
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			ShutdownTimeout: time.Second,
		},
		Observability: config.ObservabilityConfig{MetricsEnabled: true},
	}
}

func newTestServer(t *testing.T, cachePing Pinger) *Server {
	t.Helper()
	registry := prometheus.NewRegistry()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(registry)
	return NewServer(testConfig(), logger, metrics, registry, nil, cachePing, echoRegistrar{})
}

func TestAPIRoutesMountedUnderPrefix(t *testing.T) {
	server := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	server.api.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/echo/hello", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())

	// Not reachable outside the version prefix.
	rec = httptest.NewRecorder()
	server.api.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/echo/hello", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDAssigned(t *testing.T) {
	server := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	server.api.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/echo/hi", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	req := httptest.NewRequest("GET", "/api/v1/echo/hi", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec = httptest.NewRecorder()
	server.api.Handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	server.health.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReflectsCacheHealth(t *testing.T) {
	healthy := newTestServer(t, &fakePinger{})
	rec := httptest.NewRecorder()
	healthy.health.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	broken := newTestServer(t, &fakePinger{err: errors.New("connection refused")})
	rec = httptest.NewRecorder()
	broken.health.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestMetricsEndpointExposed(t *testing.T) {
	server := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	server.health.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

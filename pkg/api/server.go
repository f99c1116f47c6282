package api

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/stackgate/admind/pkg/config"
	"github.com/stackgate/admind/pkg/httputil"
	"github.com/stackgate/admind/pkg/observability"
)

// RouteRegistrar is implemented by every package exposing HTTP handlers.
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// Pinger reports backend liveness for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server assembles the API router and the separate health/metrics
// listener. The two ports are split so probes and scrapes stay
// reachable when the API port is saturated.
type Server struct {
	cfg     *config.Config
	logger  *observability.Logger
	metrics *observability.Metrics

	api    *http.Server
	health *http.Server
	db     *sql.DB
}

// NewServer builds both listeners. Registrars attach their routes under
// /api/v1 behind the standard middleware chain.
func NewServer(
	cfg *config.Config,
	logger *observability.Logger,
	metrics *observability.Metrics,
	registry *prometheus.Registry,
	db *sql.DB,
	cachePing Pinger,
	registrars ...RouteRegistrar,
) *Server {
	router := mux.NewRouter()
	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	if metrics != nil {
		apiRouter.Use(metricsMiddleware(metrics))
	}
	for _, registrar := range registrars {
		registrar.RegisterRoutes(apiRouter)
	}

	chain := httputil.Chain(
		httputil.RequestIDMiddleware(),
		httputil.IdentityMiddleware(),
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
	)

	healthRouter := mux.NewRouter()
	healthRouter.HandleFunc("/healthz", handleHealthz).Methods("GET")
	healthRouter.HandleFunc("/readyz", handleReadyz(db, cachePing)).Methods("GET")
	if cfg.Observability.MetricsEnabled {
		healthRouter.Handle("/metrics", observability.Handler(registry)).Methods("GET")
	}

	return &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		db:      db,
		api: &http.Server{
			Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:      chain(router),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		health: &http.Server{
			Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
			Handler:      healthRouter,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
}

// Run serves both listeners until the context ends, then drains them
// within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		s.logger.WithField("addr", s.api.Addr).Info("api server listening")
		if err := s.api.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		s.logger.WithField("addr", s.health.Addr).Info("health server listening")
		if err := s.health.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		s.samplePoolStats(ctx)
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := s.api.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Warn("api server shutdown incomplete")
		}
		if err := s.health.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Warn("health server shutdown incomplete")
		}
		return nil
	})

	return group.Wait()
}

// samplePoolStats feeds database pool gauges until the context ends.
func (s *Server) samplePoolStats(ctx context.Context) {
	if s.metrics == nil || s.db == nil {
		return
	}

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.db.Stats()
			s.metrics.DBConnectionsActive.Set(float64(stats.InUse))
			s.metrics.DBConnectionsIdle.Set(float64(stats.Idle))
		}
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports ready only when both backends answer.
func handleReadyz(db *sql.DB, cachePing Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{"database": "ok", "cache": "ok"}
		healthy := true

		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				checks["database"] = err.Error()
				healthy = false
			}
		}
		if cachePing != nil {
			if err := cachePing.Ping(ctx); err != nil {
				checks["cache"] = err.Error()
				healthy = false
			}
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, checks)
	}
}

// metricsMiddleware labels request metrics with the mux route template
// so path cardinality stays bounded.
func metricsMiddleware(m *observability.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if template, err := route.GetPathTemplate(); err == nil {
					path = template
				}
			}
			m.InstrumentHandler(path, next).ServeHTTP(w, r)
		})
	}
}

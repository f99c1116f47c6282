package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stackgate/admind/pkg/api"
	"github.com/stackgate/admind/pkg/cache"
	"github.com/stackgate/admind/pkg/config"
	"github.com/stackgate/admind/pkg/hierarchy"
	"github.com/stackgate/admind/pkg/menus"
	"github.com/stackgate/admind/pkg/migrate"
	"github.com/stackgate/admind/pkg/observability"
	"github.com/stackgate/admind/pkg/permissions"
	"github.com/stackgate/admind/pkg/policy"
	"github.com/stackgate/admind/pkg/roles"
	"github.com/stackgate/admind/pkg/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "admind: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MinConns)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.Timeout)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrate.Run(ctx, db, migrate.All(), logger); err != nil {
		return err
	}

	routeCache, err := cache.New(cfg.Redis, cfg.Cache, metrics)
	if err != nil {
		return err
	}
	defer routeCache.Close()

	engine, err := policy.NewEngine(db, logger, metrics)
	if err != nil {
		return err
	}

	hierarchyManager := hierarchy.NewManager(engine, logger, metrics)

	roleStore := roles.NewStore(db)
	roleService := roles.NewService(roleStore, hierarchyManager, engine, routeCache, logger)
	permissionService := permissions.NewService(engine, hierarchyManager, roleStore, routeCache, logger, metrics)

	menuStore := menus.NewStore(db)
	menuResolver := menus.NewResolver(menuStore, engine, routeCache, cfg.Cache, cfg.Routes, logger)
	menuService := menus.NewService(menuStore, roleStore, routeCache, logger)

	jobStore := scheduler.NewStore(db)
	runner := scheduler.NewCronRunner(logger, metrics)
	registryJobs := scheduler.NewHandlerRegistry()
	tracker := scheduler.NewTracker(jobStore, logger)
	jobService := scheduler.NewService(jobStore, runner, registryJobs, tracker, logger, metrics, cfg.Scheduler.DefaultTimezone)

	if err := registerJobHandlers(registryJobs, engine, routeCache, logger); err != nil {
		return err
	}

	if cfg.Scheduler.SeedFile != "" {
		if _, err := jobService.ApplySeedFile(ctx, cfg.Scheduler.SeedFile); err != nil {
			return fmt.Errorf("failed to apply job seed file: %w", err)
		}
	}
	if _, err := jobService.Reconcile(ctx); err != nil {
		return err
	}
	runner.Start()
	defer func() { <-runner.Stop().Done() }()

	if cfg.Scheduler.SeedFile != "" && cfg.Scheduler.WatchSeedFile {
		go func() {
			if err := jobService.WatchSeedFile(ctx, cfg.Scheduler.SeedFile, logger); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("seed file watcher exited")
			}
		}()
	}

	server := api.NewServer(cfg, logger, metrics, registry, db, routeCache,
		roles.NewHandlers(roleService, permissionService, logger),
		menus.NewHandlers(menuService, menuResolver, logger),
		scheduler.NewHandlers(jobService, tracker, logger),
	)

	logger.Info("admind starting")
	return server.Run(ctx)
}

// registerJobHandlers wires the built-in scheduled job handlers. Domain
// deployments add their own before jobs referencing them are enabled.
func registerJobHandlers(registry *scheduler.HandlerRegistry, engine *policy.Engine, routeCache *cache.Cache, logger *observability.Logger) error {
	handlers := map[string]scheduler.HandlerFunc{
		// Re-reads policy rules written by peer instances.
		"policy.reload": func(ctx context.Context, payload map[string]interface{}) error {
			return engine.Reload()
		},
		// Drops cached route trees for the domain in the payload, or
		// for every domain when none is given.
		"routes.invalidate": func(ctx context.Context, payload map[string]interface{}) error {
			if domain, ok := payload["domain"].(string); ok && domain != "" {
				return routeCache.InvalidateDomainRoutes(ctx, domain)
			}
			_, err := routeCache.DeletePattern(ctx, "routes:*")
			return err
		},
		"noop": func(ctx context.Context, payload map[string]interface{}) error {
			logger.Debug("noop job executed")
			return nil
		},
	}

	for name, fn := range handlers {
		if err := registry.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

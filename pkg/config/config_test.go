package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       "8080",
			HealthPort: "9090",
		},
		Database: DatabaseConfig{URL: "postgres://localhost/admind?sslmode=disable"},
		Redis:    RedisConfig{URL: "redis://localhost:6379/0"},
		Cache: CacheConfig{
			RouteTTL:      30 * time.Minute,
			EmptyRouteTTL: time.Minute,
		},
		Scheduler: SchedulerConfig{DefaultTimezone: "UTC"},
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ADMIND_POSTGRES_URL", "postgres://localhost/admind?sslmode=disable")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("default port = %s", cfg.Server.Port)
	}
	if cfg.Cache.RouteTTL != 30*time.Minute {
		t.Errorf("default route TTL = %v", cfg.Cache.RouteTTL)
	}
	if cfg.Scheduler.DefaultTimezone != "UTC" {
		t.Errorf("default timezone = %s", cfg.Scheduler.DefaultTimezone)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ADMIND_POSTGRES_URL", "postgres://db:5432/admind")
	t.Setenv("ADMIND_PORT", "9999")
	t.Setenv("ADMIND_CACHE_ROUTE_TTL", "5m")
	t.Setenv("ADMIND_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Server.Port != "9999" {
		t.Errorf("port = %s", cfg.Server.Port)
	}
	if cfg.Cache.RouteTTL != 5*time.Minute {
		t.Errorf("route TTL = %v", cfg.Cache.RouteTTL)
	}
}

func TestValidateRejectsMissingPostgres(t *testing.T) {
	cfg := validConfig()
	cfg.Database.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing postgres URL")
	}
}

func TestValidateRejectsPortClash(t *testing.T) {
	cfg := validConfig()
	cfg.Server.HealthPort = cfg.Server.Port
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when server and health ports match")
	}
}

func TestValidateRejectsBadTimezone(t *testing.T) {
	cfg := validConfig()
	cfg.Scheduler.DefaultTimezone = "Mars/Olympus"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown timezone")
	}
}

func TestValidateRejectsEmptyTTLAboveRouteTTL(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.EmptyRouteTTL = cfg.Cache.RouteTTL + time.Minute
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when empty-route TTL exceeds route TTL")
	}
}

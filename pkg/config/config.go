package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stackgate/admind/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Scheduler SchedulerConfig
	Routes    RoutesConfig

	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
	Timeout  time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// CacheConfig holds cache TTLs and sizing
type CacheConfig struct {
	// RouteTTL is the TTL for resolved user route trees.
	RouteTTL time.Duration
	// EmptyRouteTTL dampens repeated lookups for users with no roles.
	EmptyRouteTTL time.Duration
	// L1Size is the entry capacity of the in-process cache; 0 disables it.
	L1Size int
	// L1TTL bounds staleness of the in-process cache.
	L1TTL time.Duration
}

// SchedulerConfig holds scheduled-job subsystem configuration
type SchedulerConfig struct {
	// SeedFile is a YAML file of declared jobs applied through reconciliation.
	SeedFile string
	// WatchSeedFile re-reconciles when the seed file changes on disk.
	WatchSeedFile bool
	// DefaultTimezone applies to jobs that do not declare one.
	DefaultTimezone string
}

// RoutesConfig holds menu/route resolution configuration
type RoutesConfig struct {
	// DefaultHome is returned when no visible leaf menu exists.
	DefaultHome string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("ADMIND_HOST", "0.0.0.0"),
			Port:            getEnv("ADMIND_PORT", "8080"),
			ReadTimeout:     getEnvDuration("ADMIND_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("ADMIND_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("ADMIND_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("ADMIND_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("ADMIND_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("ADMIND_POSTGRES_URL", ""),
			MaxConns: getEnvInt("ADMIND_POSTGRES_MAX_CONNS", 25),
			MinConns: getEnvInt("ADMIND_POSTGRES_MIN_CONNS", 5),
			Timeout:  getEnvDuration("ADMIND_POSTGRES_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:        getEnv("ADMIND_REDIS_URL", "redis://localhost:6379/0"),
			Password:   getEnv("ADMIND_REDIS_PASSWORD", ""),
			DB:         getEnvInt("ADMIND_REDIS_DB", -1),
			MaxRetries: getEnvInt("ADMIND_REDIS_MAX_RETRIES", 3),
			PoolSize:   getEnvInt("ADMIND_REDIS_POOL_SIZE", 10),
		},
		Cache: CacheConfig{
			RouteTTL:      getEnvDuration("ADMIND_CACHE_ROUTE_TTL", 30*time.Minute),
			EmptyRouteTTL: getEnvDuration("ADMIND_CACHE_EMPTY_ROUTE_TTL", time.Minute),
			L1Size:        getEnvInt("ADMIND_CACHE_L1_SIZE", 1024),
			L1TTL:         getEnvDuration("ADMIND_CACHE_L1_TTL", 30*time.Second),
		},
		Scheduler: SchedulerConfig{
			SeedFile:        getEnv("ADMIND_SCHEDULER_SEED_FILE", ""),
			WatchSeedFile:   getEnvBool("ADMIND_SCHEDULER_WATCH_SEED", false),
			DefaultTimezone: getEnv("ADMIND_SCHEDULER_TIMEZONE", "UTC"),
		},
		Routes: RoutesConfig{
			DefaultHome: getEnv("ADMIND_DEFAULT_HOME", "home"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       parseLogLevel(getEnv("ADMIND_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("ADMIND_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required")
	}

	if c.Cache.RouteTTL <= 0 {
		return fmt.Errorf("route cache TTL must be positive")
	}
	if c.Cache.EmptyRouteTTL > c.Cache.RouteTTL {
		return fmt.Errorf("empty-route TTL must not exceed the route TTL")
	}

	if _, err := time.LoadLocation(c.Scheduler.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid scheduler timezone %q: %w", c.Scheduler.DefaultTimezone, err)
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Search    SearchConfig
	Stats     StatsConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
	Catalog   CatalogConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration

	// Isolation is the level every mutating transaction runs at.
	// Closure table updates need serializable to be safe under concurrent moves.
	Isolation string
	TxRetries int
	Migrate   bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig holds cache settings
type CacheConfig struct {
	Enabled    bool
	Backend    string // "memory" or "redis"
	DefaultTTL time.Duration
}

// SearchConfig holds search session settings
type SearchConfig struct {
	Retention      time.Duration
	DefaultPerPage int
	MaxPerPage     int
}

// StatsConfig holds stats query settings
type StatsConfig struct {
	CacheTTL     time.Duration
	DefaultLimit int
}

// RateLimitConfig holds per-user limits, enforced only when Redis is enabled
type RateLimitConfig struct {
	Enabled           bool
	SearchesPerMinute int64
	GlobalPerMinute   int64
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof   bool
	PprofPort     int
	EnableMetrics bool
	MetricsPath   string
}

// CatalogConfig points at an alternative feature catalog
type CatalogConfig struct {
	Path string
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "tarallo"),
			User:        getEnv("POSTGRES_USER", "tarallo"),
			Password:    getEnv("POSTGRES_PASSWORD", "tarallo"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
			Isolation:   getEnv("DB_ISOLATION", "serializable"),
			TxRetries:   getEnvInt("DB_TX_RETRIES", 3),
			Migrate:     getEnvBool("DB_MIGRATE", true),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			Backend:    getEnv("CACHE_BACKEND", "memory"),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute),
		},
		Search: SearchConfig{
			Retention:      getEnvDuration("SEARCH_RETENTION", 24*time.Hour),
			DefaultPerPage: getEnvInt("SEARCH_DEFAULT_PER_PAGE", 20),
			MaxPerPage:     getEnvInt("SEARCH_MAX_PER_PAGE", 200),
		},
		Stats: StatsConfig{
			CacheTTL:     getEnvDuration("STATS_CACHE_TTL", 1*time.Minute),
			DefaultLimit: getEnvInt("STATS_DEFAULT_LIMIT", 100),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnvBool("RATE_LIMIT_ENABLED", true),
			SearchesPerMinute: int64(getEnvInt("RATE_LIMIT_SEARCHES_PER_MINUTE", 60)),
			GlobalPerMinute:   int64(getEnvInt("RATE_LIMIT_GLOBAL_PER_MINUTE", 6000)),
		},
		Telemetry: TelemetryConfig{
			EnablePprof:   getEnvBool("ENABLE_PPROF", false),
			PprofPort:     getEnvInt("PPROF_PORT", 6060),
			EnableMetrics: getEnvBool("ENABLE_METRICS", true),
			MetricsPath:   getEnv("METRICS_PATH", "/metrics"),
		},
		Catalog: CatalogConfig{
			Path: getEnv("FEATURE_CATALOG_PATH", ""),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	switch strings.ToLower(c.Database.Isolation) {
	case "serializable", "repeatable read", "read committed":
	default:
		return fmt.Errorf("unsupported isolation level: %s", c.Database.Isolation)
	}

	if c.Database.TxRetries < 1 {
		return fmt.Errorf("tx retries must be >= 1")
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("cache backend redis requires REDIS_ENABLED")
		}
	default:
		return fmt.Errorf("unknown cache backend: %s", c.Cache.Backend)
	}

	if c.Search.Retention <= 0 {
		return fmt.Errorf("search retention must be positive")
	}

	if c.Search.DefaultPerPage < 1 || c.Search.DefaultPerPage > c.Search.MaxPerPage {
		return fmt.Errorf("default per page must be between 1 and %d", c.Search.MaxPerPage)
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Addr returns host:port for the Redis client
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

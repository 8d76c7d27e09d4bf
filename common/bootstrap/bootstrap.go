package bootstrap

import (
	"context"
	"fmt"

	"github.com/weeeopen/tarallo/common/cache"
	"github.com/weeeopen/tarallo/common/config"
	"github.com/weeeopen/tarallo/common/db"
	"github.com/weeeopen/tarallo/common/logger"
	"github.com/weeeopen/tarallo/common/ratelimit"
	"github.com/weeeopen/tarallo/common/redis"
	"github.com/weeeopen/tarallo/common/telemetry"
)

// Setup initializes all service components
// This is the main entry point for all services
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", components.Config.Service.Environment,
	)

	// 3. Initialize database (if not skipped)
	if !options.skipDB {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, components.Config, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		components.addCleanup(func() error {
			components.DB.Close()
			return nil
		})

		if components.Config.Database.Migrate {
			if err := components.DB.Migrate(ctx); err != nil {
				components.Shutdown(ctx)
				return nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}
	}

	// 4. Initialize Redis (if enabled)
	if !options.skipRedis && components.Config.Redis.Enabled {
		components.Redis, err = redis.Connect(ctx, components.Config.Redis, components.Logger)
		if err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		components.addCleanup(func() error {
			components.Logger.Info("closing redis connection")
			return components.Redis.Close()
		})

		if components.Config.RateLimit.Enabled {
			components.RateLimiter = ratelimit.NewRateLimiter(components.Redis.GetUnderlying(), components.Logger)
		}
	}

	// 5. Initialize cache (if not skipped)
	if !options.skipCache && components.Config.Cache.Enabled {
		components.Logger.Info("initializing cache",
			"backend", components.Config.Cache.Backend,
		)

		switch {
		case components.Config.Cache.Backend == "redis" && components.Redis != nil:
			components.Cache = cache.NewRedisCache(components.Redis, serviceName)
		default:
			components.Cache = cache.NewMemoryCache(components.Logger)
		}

		components.addCleanup(func() error {
			return components.Cache.Close()
		})
	}

	// 6. Initialize telemetry (if not skipped)
	if !options.skipTelemetry {
		components.Telemetry = telemetry.New(
			components.Config.Telemetry.PprofPort,
			components.Config.Telemetry.EnablePprof,
			components.Logger,
		)

		if err := components.Telemetry.Start(ctx); err != nil {
			components.Logger.Warn("failed to start telemetry", "error", err)
		}
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"redis", components.Redis != nil,
		"cache", components.Cache != nil,
		"rate_limit", components.RateLimiter != nil,
		"telemetry", components.Telemetry != nil,
	)

	return components, nil
}

package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/weeeopen/tarallo/common/cache"
	"github.com/weeeopen/tarallo/common/config"
	"github.com/weeeopen/tarallo/common/db"
	"github.com/weeeopen/tarallo/common/logger"
	"github.com/weeeopen/tarallo/common/ratelimit"
	"github.com/weeeopen/tarallo/common/redis"
	"github.com/weeeopen/tarallo/common/telemetry"
)

// Components holds all initialized service dependencies
type Components struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          *db.DB
	Redis       *redis.Client
	Cache       cache.Cache
	RateLimiter *ratelimit.RateLimiter
	Telemetry   *telemetry.Telemetry

	cleanupFuncs []func() error
}

// Shutdown performs graceful shutdown of all components
// Should be called with defer after Setup()
func (c *Components) Shutdown(ctx context.Context) error {
	c.Logger.Info("shutting down components")

	var errs []error

	// LIFO: dependents close before what they depend on
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			errs = append(errs, err)
			c.Logger.Error("cleanup error", "error", err)
		}
	}
	c.cleanupFuncs = nil

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	c.Logger.Info("shutdown complete")
	return nil
}

// Health checks health of all components
func (c *Components) Health(ctx context.Context) error {
	if c.DB != nil {
		if err := c.DB.Health(ctx); err != nil {
			return fmt.Errorf("database unhealthy: %w", err)
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Health(ctx); err != nil {
			return fmt.Errorf("redis unhealthy: %w", err)
		}
	}

	return nil
}

// addCleanup registers a cleanup function
func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

package service

import (
	"context"
	"time"

	"github.com/weeeopen/tarallo/cmd/tarallo/models"
	"github.com/weeeopen/tarallo/common/cache"
	"github.com/weeeopen/tarallo/common/logger"
	"github.com/weeeopen/tarallo/common/telemetry"
)

// statsCachePrefix namespaces every cached stats response
const statsCachePrefix = "stats:"

// observe records the duration of op and, on failure, its error kind.
// Internal failures are logged; domain errors are the caller's problem.
func observe(ctx context.Context, log *logger.Logger, tel *telemetry.Telemetry, op string, start time.Time, err error) {
	tel.RecordDuration(op, start)
	if err == nil {
		return
	}

	kind := models.ErrorKind(err)
	tel.RecordError(op, kind)
	if kind == models.KindDatabase || kind == models.KindInternal {
		log.WithContext(ctx).Error("operation failed", "operation", op, "error", err)
	}
}

// invalidateStats drops cached stats after a mutation. Failures are only logged.
func invalidateStats(ctx context.Context, c cache.Cache, log *logger.Logger) {
	if c == nil {
		return
	}
	if err := c.DeletePrefix(ctx, statsCachePrefix); err != nil {
		log.WithContext(ctx).Warn("failed to invalidate stats cache", "error", err)
	}
}

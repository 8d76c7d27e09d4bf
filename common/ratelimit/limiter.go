package ratelimit

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/redis/go-redis/v9"
)

//go:embed rate_limit.lua
var rateLimitScript string

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed           bool  // Whether the request is allowed
	CurrentCount      int64 // Current count in the window
	Limit             int64 // The limit that was checked
	RetryAfterSeconds int64 // Seconds until the limit resets (0 if allowed)
}

// RateLimiter is a fixed-window limiter backed by a Redis Lua script
type RateLimiter struct {
	redis  *redis.Client
	script *redis.Script
	logger Logger
}

// NewRateLimiter creates a new rate limiter with embedded Lua script
func NewRateLimiter(redisClient *redis.Client, logger Logger) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		script: redis.NewScript(rateLimitScript),
		logger: logger,
	}
}

// CheckGlobalLimit checks the service-wide limit
func (r *RateLimiter) CheckGlobalLimit(ctx context.Context, policy Policy) (*RateLimitResult, error) {
	return r.checkLimit(ctx, "rate_limit:global", policy.Limit, policy.WindowSeconds)
}

// CheckUserLimit checks the limit of one user within a scope
func (r *RateLimiter) CheckUserLimit(ctx context.Context, username string, policy Policy) (*RateLimitResult, error) {
	return r.checkLimit(ctx, UserKey(policy.Scope, username), policy.Limit, policy.WindowSeconds)
}

// UserKey is the counter key of a user within a scope
func UserKey(scope Scope, username string) string {
	return fmt.Sprintf("rate_limit:%s:user:%s", scope, username)
}

// checkLimit executes the rate limit Lua script
func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int64, windowSec int) (*RateLimitResult, error) {
	result, err := r.script.Run(ctx, r.redis, []string{key}, limit, windowSec).Result()
	if err != nil {
		r.logger.Error("rate limit check failed", "key", key, "error", err)
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	rateLimitResult, err := parseResult(result)
	if err != nil {
		return nil, err
	}

	if !rateLimitResult.Allowed {
		r.logger.Warn("rate limit exceeded",
			"key", key,
			"current", rateLimitResult.CurrentCount,
			"limit", limit,
			"retry_after", rateLimitResult.RetryAfterSeconds)
	} else {
		r.logger.Debug("rate limit check passed",
			"key", key,
			"current", rateLimitResult.CurrentCount,
			"limit", limit)
	}

	return rateLimitResult, nil
}

// parseResult decodes the script reply {allowed, current_count, limit, retry_after}
func parseResult(result interface{}) (*RateLimitResult, error) {
	resultArray, ok := result.([]interface{})
	if !ok || len(resultArray) != 4 {
		return nil, fmt.Errorf("unexpected script result format")
	}

	values := make([]int64, len(resultArray))
	for i, v := range resultArray {
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected script result element %d: %T", i, v)
		}
		values[i] = n
	}

	return &RateLimitResult{
		Allowed:           values[0] == 1,
		CurrentCount:      values[1],
		Limit:             values[2],
		RetryAfterSeconds: values[3],
	}, nil
}

package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/weeeopen/tarallo/common/ratelimit"
)

// Limiter is the part of ratelimit.RateLimiter the middleware needs
type Limiter interface {
	CheckGlobalLimit(ctx context.Context, policy ratelimit.Policy) (*ratelimit.RateLimitResult, error)
	CheckUserLimit(ctx context.Context, username string, policy ratelimit.Policy) (*ratelimit.RateLimitResult, error)
}

// UsernameContextKey is where the identity middleware stores the caller
const UsernameContextKey = "username"

// GlobalRateLimitMiddleware checks the service-wide limit
func GlobalRateLimitMiddleware(limiter Limiter, policy ratelimit.Policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			result, err := limiter.CheckGlobalLimit(c.Request().Context(), policy)
			if err != nil {
				// Fail open: Redis trouble must not take the inventory down
				return next(c)
			}

			if !result.Allowed {
				return tooManyRequests(c, "global_rate_limit_exceeded", result, map[string]interface{}{})
			}

			return next(c)
		}
	}
}

// UserRateLimitMiddleware checks the caller's limit for one scope.
// Requires the username to be set by the identity middleware; anonymous requests pass.
func UserRateLimitMiddleware(limiter Limiter, policy ratelimit.Policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			username, ok := c.Get(UsernameContextKey).(string)
			if !ok || username == "" {
				return next(c)
			}

			result, err := limiter.CheckUserLimit(c.Request().Context(), username, policy)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				return tooManyRequests(c, "user_rate_limit_exceeded", result, map[string]interface{}{
					"username":      username,
					"scope":         policy.Scope,
					"current_count": result.CurrentCount,
				})
			}

			return next(c)
		}
	}
}

func tooManyRequests(c echo.Context, code string, result *ratelimit.RateLimitResult, details map[string]interface{}) error {
	details["limit"] = result.Limit
	details["retry_after_seconds"] = result.RetryAfterSeconds
	c.Response().Header().Set("Retry-After", strconv.FormatInt(result.RetryAfterSeconds, 10))
	return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
		"error":   code,
		"message": "Too many requests, try again later",
		"details": details,
	})
}

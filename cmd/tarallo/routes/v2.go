package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/weeeopen/tarallo/cmd/tarallo/container"
	"github.com/weeeopen/tarallo/cmd/tarallo/middleware"
	commonmw "github.com/weeeopen/tarallo/common/middleware"
	"github.com/weeeopen/tarallo/common/ratelimit"
)

// NewV2Group creates the authenticated /v2 group.
// The global rate limit applies when Redis is available.
func NewV2Group(e *echo.Echo, c *container.Container) *echo.Group {
	v2 := e.Group("/v2")
	v2.Use(middleware.ExtractUsernameStrict()) // Require X-User-ID

	if limiter := c.Components.RateLimiter; limiter != nil {
		policies := ratelimit.PoliciesFromConfig(c.Components.Config.RateLimit)
		v2.Use(commonmw.GlobalRateLimitMiddleware(limiter, policies[ratelimit.ScopeGlobal]))
	}
	return v2
}

// searchLimit returns the per-user search creation limit, or nothing without Redis
func searchLimit(c *container.Container) []echo.MiddlewareFunc {
	limiter := c.Components.RateLimiter
	if limiter == nil {
		return nil
	}
	policies := ratelimit.PoliciesFromConfig(c.Components.Config.RateLimit)
	return []echo.MiddlewareFunc{commonmw.UserRateLimitMiddleware(limiter, policies[ratelimit.ScopeSearch])}
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/weeeopen/tarallo/common/ratelimit"
)

type fakeLimiter struct {
	allowed bool
	err     error
	users   []string
}

func (f *fakeLimiter) CheckGlobalLimit(ctx context.Context, policy ratelimit.Policy) (*ratelimit.RateLimitResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ratelimit.RateLimitResult{Allowed: f.allowed, Limit: policy.Limit, RetryAfterSeconds: 7}, nil
}

func (f *fakeLimiter) CheckUserLimit(ctx context.Context, username string, policy ratelimit.Policy) (*ratelimit.RateLimitResult, error) {
	f.users = append(f.users, username)
	return f.CheckGlobalLimit(ctx, policy)
}

func serve(mw echo.MiddlewareFunc, user string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v2/searches", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if user != "" {
		c.Set(UsernameContextKey, user)
	}
	h := mw(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	_ = h(c)
	return rec
}

func TestUserRateLimit_Rejects(t *testing.T) {
	limiter := &fakeLimiter{allowed: false}
	policy := ratelimit.Policy{Scope: ratelimit.ScopeSearch, Limit: 3, WindowSeconds: 60}

	rec := serve(UserRateLimitMiddleware(limiter, policy), "alice")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "7", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "user_rate_limit_exceeded")
	assert.Equal(t, []string{"alice"}, limiter.users)
}

func TestUserRateLimit_AnonymousPasses(t *testing.T) {
	limiter := &fakeLimiter{allowed: false}

	rec := serve(UserRateLimitMiddleware(limiter, ratelimit.Policy{}), "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, limiter.users)
}

func TestGlobalRateLimit_FailsOpen(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}

	rec := serve(GlobalRateLimitMiddleware(limiter, ratelimit.Policy{Limit: 1}), "bob")

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

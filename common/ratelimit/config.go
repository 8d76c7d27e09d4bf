package ratelimit

import "github.com/weeeopen/tarallo/common/config"

// Scope names a family of counters
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeSearch Scope = "search"
)

// Policy is the limit applied to one scope
type Policy struct {
	Scope         Scope
	Limit         int64 // Requests allowed per window
	WindowSeconds int
}

// PoliciesFromConfig builds the policies the HTTP layer enforces
func PoliciesFromConfig(cfg config.RateLimitConfig) map[Scope]Policy {
	return map[Scope]Policy{
		ScopeGlobal: {Scope: ScopeGlobal, Limit: cfg.GlobalPerMinute, WindowSeconds: 60},
		ScopeSearch: {Scope: ScopeSearch, Limit: cfg.SearchesPerMinute, WindowSeconds: 60},
	}
}

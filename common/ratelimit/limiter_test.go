package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weeeopen/tarallo/common/config"
)

func TestParseResult(t *testing.T) {
	res, err := parseResult([]interface{}{int64(0), int64(61), int64(60), int64(12)})
	require.NoError(t, err)

	assert.False(t, res.Allowed)
	assert.Equal(t, int64(61), res.CurrentCount)
	assert.Equal(t, int64(60), res.Limit)
	assert.Equal(t, int64(12), res.RetryAfterSeconds)
}

func TestParseResult_BadShape(t *testing.T) {
	_, err := parseResult("nope")
	assert.Error(t, err)

	_, err = parseResult([]interface{}{int64(1), "x", int64(1), int64(0)})
	assert.Error(t, err)
}

func TestPoliciesFromConfig(t *testing.T) {
	policies := PoliciesFromConfig(config.RateLimitConfig{SearchesPerMinute: 5, GlobalPerMinute: 100})

	assert.Equal(t, int64(5), policies[ScopeSearch].Limit)
	assert.Equal(t, int64(100), policies[ScopeGlobal].Limit)
	assert.Equal(t, 60, policies[ScopeSearch].WindowSeconds)
}

func TestUserKey(t *testing.T) {
	assert.Equal(t, "rate_limit:search:user:alice", UserKey(ScopeSearch, "alice"))
}

func TestScriptEmbedded(t *testing.T) {
	assert.Contains(t, rateLimitScript, "INCR")
}

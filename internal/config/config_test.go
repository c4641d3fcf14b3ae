package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobenna/request-limiter/pkg/limiter"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.True(t, cfg.HeadersEnabled)
	assert.True(t, cfg.AutoCheck)
	assert.Equal(t, limiter.StrategyFixedWindow, cfg.Strategy)
	assert.Equal(t, limiter.RetryAfterDeltaSeconds, cfg.RetryAfter)
	assert.Empty(t, cfg.StorageURI)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("RATELIMIT_DEFAULT_LIMITS", "20 per minute;100 per hour")
	t.Setenv("RATELIMIT_STRATEGY", "moving-window")
	t.Setenv("RATELIMIT_SWALLOW_ERRORS", "true")
	t.Setenv("RATELIMIT_KEY_PREFIX", "app:")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "20 per minute;100 per hour", cfg.DefaultLimits)
	assert.Equal(t, limiter.StrategyMovingWindow, cfg.Strategy)
	assert.True(t, cfg.SwallowErrors)
	assert.Equal(t, "app:", cfg.KeyPrefix)
}

func TestConfig_OptionsBuildValidEngine(t *testing.T) {
	t.Setenv("RATELIMIT_DEFAULT_LIMITS", "5 per minute")

	cfg, err := Load("")
	require.NoError(t, err)

	e, err := limiter.New(
		func(r *limiter.Request) (string, error) { return "k", nil },
		cfg.Options()...,
	)
	require.NoError(t, err)
	assert.True(t, e.Enabled())
}

func TestConfig_MalformedLimitsFailEngineConstruction(t *testing.T) {
	t.Setenv("RATELIMIT_DEFAULT_LIMITS", "plenty")

	cfg, err := Load("")
	require.NoError(t, err)

	_, err = limiter.New(
		func(r *limiter.Request) (string, error) { return "k", nil },
		cfg.Options()...,
	)
	require.Error(t, err, "malformed limit strings are configuration errors")
}

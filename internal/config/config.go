// Package config loads rate limiter settings from the environment (and an
// optional config file) for deployments that do not wire options in code.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tobenna/request-limiter/pkg/limiter"
)

// Config mirrors the engine's construction-time options.
type Config struct {
	DefaultLimits     string        `mapstructure:"default_limits"`
	ApplicationLimits string        `mapstructure:"application_limits"`
	HeadersEnabled    bool          `mapstructure:"headers_enabled"`
	Strategy          string        `mapstructure:"strategy"`
	StorageURI        string        `mapstructure:"storage_uri"`
	StoreTimeout      time.Duration `mapstructure:"store_timeout"`
	AutoCheck         bool          `mapstructure:"auto_check"`
	SwallowErrors     bool          `mapstructure:"swallow_errors"`
	InMemoryFallback  string        `mapstructure:"in_memory_fallback"`
	FallbackEnabled   bool          `mapstructure:"in_memory_fallback_enabled"`
	RetryAfter        string        `mapstructure:"retry_after"`
	KeyPrefix         string        `mapstructure:"key_prefix"`
	Enabled           bool          `mapstructure:"enabled"`
}

// Load reads RATELIMIT_* environment variables, falling back to an optional
// YAML file when path is non-empty.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Every key needs a default so AutomaticEnv can resolve it during
	// Unmarshal.
	v.SetDefault("default_limits", "")
	v.SetDefault("application_limits", "")
	v.SetDefault("headers_enabled", true)
	v.SetDefault("strategy", limiter.StrategyFixedWindow)
	v.SetDefault("storage_uri", "")
	v.SetDefault("store_timeout", time.Duration(0))
	v.SetDefault("auto_check", true)
	v.SetDefault("swallow_errors", false)
	v.SetDefault("in_memory_fallback", "")
	v.SetDefault("in_memory_fallback_enabled", false)
	v.SetDefault("retry_after", limiter.RetryAfterDeltaSeconds)
	v.SetDefault("key_prefix", "")
	v.SetDefault("enabled", true)

	v.SetEnvPrefix("RATELIMIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Options translates the loaded settings into engine options.
func (c *Config) Options() []limiter.Option {
	opts := []limiter.Option{
		limiter.WithHeadersEnabled(c.HeadersEnabled),
		limiter.WithStrategy(c.Strategy),
		limiter.WithAutoCheck(c.AutoCheck),
		limiter.WithSwallowErrors(c.SwallowErrors),
		limiter.WithRetryAfterFormat(c.RetryAfter),
		limiter.WithKeyPrefix(c.KeyPrefix),
		limiter.WithEnabled(c.Enabled),
	}
	if c.DefaultLimits != "" {
		opts = append(opts, limiter.WithDefaultLimits(c.DefaultLimits))
	}
	if c.ApplicationLimits != "" {
		opts = append(opts, limiter.WithApplicationLimits(c.ApplicationLimits))
	}
	if c.StorageURI != "" {
		opts = append(opts, limiter.WithStorageURI(c.StorageURI))
	}
	if c.StoreTimeout > 0 {
		opts = append(opts, limiter.WithStoreTimeout(c.StoreTimeout))
	}
	if c.FallbackEnabled {
		opts = append(opts, limiter.WithInMemoryFallback(c.InMemoryFallback))
	}
	return opts
}

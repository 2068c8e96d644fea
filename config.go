package llmfallback

import (
	"fmt"
	"time"

	"github.com/ferro-labs/llm-fallback/internal/retry"
	"github.com/ferro-labs/llm-fallback/providers"
)

// Config holds the configuration for the fallback gateway.
type Config struct {
	// Providers lists the upstreams in fallback order; the first entry is
	// tried first.
	Providers []providers.Config `json:"providers" yaml:"providers"`
	// Resilience tunes timeouts, retries, the circuit breaker and the health
	// sweep.
	Resilience ResilienceConfig `json:"resilience,omitempty" yaml:"resilience,omitempty"`
	// Cache configures the response cache.
	Cache CacheConfig `json:"cache,omitempty" yaml:"cache,omitempty"`
}

// ResilienceConfig holds the failure-handling tunables. Durations are Go
// duration strings ("30s", "500ms"). Zero values take the defaults below.
type ResilienceConfig struct {
	AttemptTimeout   string `json:"attempt_timeout,omitempty" yaml:"attempt_timeout,omitempty"`
	MaxAttempts      int    `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	BackoffBase      string `json:"backoff_base,omitempty" yaml:"backoff_base,omitempty"`
	BackoffMax       string `json:"backoff_max,omitempty" yaml:"backoff_max,omitempty"`
	BreakerThreshold int    `json:"breaker_threshold,omitempty" yaml:"breaker_threshold,omitempty"`
	BreakerCooldown  string `json:"breaker_cooldown,omitempty" yaml:"breaker_cooldown,omitempty"`
	// HealthInterval is the period of the background health sweep. A
	// negative duration disables the sweep.
	HealthInterval string `json:"health_interval,omitempty" yaml:"health_interval,omitempty"`
}

// CacheConfig configures the in-memory response cache.
type CacheConfig struct {
	Disabled      bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	TTL           string `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	MaxEntries    int    `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
	SweepInterval string `json:"sweep_interval,omitempty" yaml:"sweep_interval,omitempty"`
}

// Defaults for unset tunables.
const (
	DefaultAttemptTimeout   = 30 * time.Second
	DefaultMaxAttempts      = retry.DefaultMaxAttempts
	DefaultBackoffBase      = retry.DefaultBaseDelay
	DefaultBackoffMax       = retry.DefaultMaxDelay
	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = 60 * time.Second
	DefaultHealthInterval   = 60 * time.Second
	DefaultCacheTTL         = time.Hour
	DefaultCacheMaxEntries  = 1000
	DefaultCacheSweep       = time.Minute
)

// settings is the parsed, defaulted form of Config's tunables.
type settings struct {
	attemptTimeout   time.Duration
	policy           retry.Policy
	breakerThreshold int
	breakerCooldown  time.Duration
	healthInterval   time.Duration
	cacheDisabled    bool
	cacheTTL         time.Duration
	cacheMaxEntries  int
	cacheSweep       time.Duration
}

func (c Config) settings() (settings, error) {
	r := c.Resilience
	s := settings{
		policy: retry.Policy{
			MaxAttempts: orInt(r.MaxAttempts, DefaultMaxAttempts),
		},
		breakerThreshold: orInt(r.BreakerThreshold, DefaultBreakerThreshold),
		cacheDisabled:    c.Cache.Disabled,
		cacheMaxEntries:  orInt(c.Cache.MaxEntries, DefaultCacheMaxEntries),
	}

	fields := []struct {
		name  string
		value string
		def   time.Duration
		dst   *time.Duration
	}{
		{"resilience.attempt_timeout", r.AttemptTimeout, DefaultAttemptTimeout, &s.attemptTimeout},
		{"resilience.backoff_base", r.BackoffBase, DefaultBackoffBase, &s.policy.BaseDelay},
		{"resilience.backoff_max", r.BackoffMax, DefaultBackoffMax, &s.policy.MaxDelay},
		{"resilience.breaker_cooldown", r.BreakerCooldown, DefaultBreakerCooldown, &s.breakerCooldown},
		{"resilience.health_interval", r.HealthInterval, DefaultHealthInterval, &s.healthInterval},
		{"cache.ttl", c.Cache.TTL, DefaultCacheTTL, &s.cacheTTL},
		{"cache.sweep_interval", c.Cache.SweepInterval, DefaultCacheSweep, &s.cacheSweep},
	}
	for _, f := range fields {
		d, err := parseDuration(f.value, f.def)
		if err != nil {
			return settings{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = d
	}

	if s.attemptTimeout <= 0 {
		return settings{}, fmt.Errorf("resilience.attempt_timeout must be positive, got %s", s.attemptTimeout)
	}
	if s.cacheTTL <= 0 {
		return settings{}, fmt.Errorf("cache.ttl must be positive, got %s", s.cacheTTL)
	}
	s.policy = s.policy.Normalize()
	return s, nil
}

func parseDuration(value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

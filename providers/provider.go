// Package providers defines the uniform text-generation contract and the
// concrete adapters for each supported upstream service.
package providers

import (
	"context"
	"time"
)

// DefaultTimeout bounds a single upstream HTTP call when the provider config
// does not set one.
const DefaultTimeout = 30 * time.Second

// Default generation knobs applied when Options leaves them unset. The max
// output size default is adapter specific.
const (
	DefaultTemperature = 0.7
	DefaultTopP        = 1.0
)

// Provider is a single text-generation upstream.
type Provider interface {
	// Name returns the provider's stable identifier.
	Name() string
	// Generate produces text for prompt. Failures are returned as
	// *UpstreamError whenever the adapter can classify them.
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	// CheckHealth returns nil when the upstream is reachable.
	CheckHealth(ctx context.Context) error
}

// Options are the generation knobs shared by every adapter. Fields left nil
// fall back to adapter defaults. Extra carries provider-specific parameters
// that are merged into the upstream body for keys the adapter did not set.
type Options struct {
	MaxTokens        *int           `json:"max_tokens,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
	TopP             *float64       `json:"top_p,omitempty"`
	TopK             *int           `json:"top_k,omitempty"`
	Stop             []string       `json:"stop,omitempty"`
	PresencePenalty  *float64       `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64       `json:"frequency_penalty,omitempty"`
	Stream           bool           `json:"stream,omitempty"`
	User             string         `json:"user,omitempty"`
	Extra            map[string]any `json:"extra,omitempty"`

	// SkipCache bypasses the response cache for this call. It is not part of
	// the cache key.
	SkipCache bool `json:"-"`
}

func (o Options) maxTokens(def int) int {
	if o.MaxTokens != nil && *o.MaxTokens > 0 {
		return *o.MaxTokens
	}
	return def
}

func (o Options) temperature() float64 {
	if o.Temperature != nil {
		return *o.Temperature
	}
	return DefaultTemperature
}

func (o Options) topP() float64 {
	if o.TopP != nil {
		return *o.TopP
	}
	return DefaultTopP
}

// Int returns a pointer to v, for populating Options.
func Int(v int) *int { return &v }

// Float returns a pointer to v, for populating Options.
func Float(v float64) *float64 { return &v }

// Config describes one configured upstream.
type Config struct {
	// Name is the unique identifier within a gateway. Defaults to Type.
	Name string `json:"name" yaml:"name"`
	// Type selects the adapter (see Types).
	Type    string `json:"type" yaml:"type"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// Region is used by bedrock only.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// SecretKey pairs with APIKey as the AWS access key for bedrock. When
	// both are empty the default AWS credential chain is used.
	SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty"`
	// Timeout is a Go duration string bounding each upstream HTTP call.
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Headers are extra request headers (e.g. OpenRouter attribution).
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// HTTPTimeout parses Timeout, returning DefaultTimeout when it is empty or
// invalid.
func (c Config) HTTPTimeout() time.Duration {
	if c.Timeout == "" {
		return DefaultTimeout
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return DefaultTimeout
	}
	return d
}

func (c Config) nameOr(def string) string {
	if c.Name != "" {
		return c.Name
	}
	return def
}

func (c Config) modelOr(def string) string {
	if c.Model != "" {
		return c.Model
	}
	return def
}

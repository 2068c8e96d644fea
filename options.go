package llmfallback

import (
	"log/slog"
	"time"

	"github.com/ferro-labs/llm-fallback/internal/cache"
	"github.com/ferro-labs/llm-fallback/providers"
)

// Option customises a Gateway at construction.
type Option func(*Gateway)

// WithLogger sets the logger for gateway events. The default is the
// process-wide logger from internal/logging.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithCache replaces the response cache built from Config.Cache. The gateway
// takes ownership and closes it on Close.
func WithCache(c cache.Cache) Option {
	return func(g *Gateway) { g.cache = c }
}

// WithProviders appends already-constructed providers after those built from
// Config.Providers, in the order given.
func WithProviders(ps ...providers.Provider) Option {
	return func(g *Gateway) { g.extra = append(g.extra, ps...) }
}

// WithClock replaces time.Now for breaker cooldowns and usage timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

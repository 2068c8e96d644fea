// Package llmfallback provides a resilient text-generation gateway that
// satisfies each request from one of several interchangeable LLM providers.
//
// The Gateway type is the main entry point: create one with New, optionally
// call Init, and send prompts with Generate. Providers are tried in their
// configured order. Each gets a bounded number of attempts under a
// per-attempt timeout, and a per-provider circuit breaker skips upstreams that
// keep failing. Successful results are cached in memory so identical requests
// do not reach a provider twice within the cache TTL.
//
// Configuration is described by [Config], which can be loaded from a YAML or
// JSON file using [LoadConfig] or assembled from the environment with
// [ConfigFromEnv].
package llmfallback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ferro-labs/llm-fallback/internal/cache"
	"github.com/ferro-labs/llm-fallback/internal/circuitbreaker"
	"github.com/ferro-labs/llm-fallback/internal/logging"
	"github.com/ferro-labs/llm-fallback/internal/metrics"
	"github.com/ferro-labs/llm-fallback/internal/retry"
	"github.com/ferro-labs/llm-fallback/providers"
)

// EventHookFunc is called asynchronously after every Generate call, with
// SubjectGenerateCompleted or SubjectGenerateFailed.
type EventHookFunc func(ctx context.Context, subject string, data map[string]interface{})

// Event subject constants used when invoking gateway hooks.
const (
	SubjectGenerateCompleted = "generate.completed"
	SubjectGenerateFailed    = "generate.failed"
)

// NoProvider is returned by ActiveProviderName when no providers are
// configured.
const NoProvider = "none"

// Result describes how a Generate call was satisfied.
type Result struct {
	Text     string        `json:"text"`
	Provider string        `json:"provider"`
	Cached   bool          `json:"cached"`
	Attempts int           `json:"attempts"`
	Latency  time.Duration `json:"latency"`
}

// providerState is the gateway's bookkeeping for one upstream. Fields other
// than provider, name, priority and breaker are guarded by Gateway.mu.
type providerState struct {
	provider providers.Provider
	name     string
	priority int
	breaker  *circuitbreaker.CircuitBreaker

	healthy        bool
	lastErr        error
	totalRequests  int64
	failedRequests int64
	errorCount     int64
	lastUsed       time.Time
}

// Gateway routes generate requests across an ordered list of providers.
// It is safe for concurrent use.
type Gateway struct {
	mu      sync.RWMutex
	states  []*providerState
	lastErr error
	initErr error
	hooks   []EventHookFunc
	closed  bool
	skipped []string

	settings settings
	cache    cache.Cache
	logger   *slog.Logger
	now      func() time.Time
	extra    []providers.Provider

	initOnce  sync.Once
	closeOnce sync.Once
	sweepCtx  context.Context
	stopSweep context.CancelFunc
	sweepDone chan struct{}
	probes    sync.WaitGroup
}

// New creates a Gateway from cfg. Providers that cannot be built, usually
// because credentials are missing, are logged and skipped; having none left
// is reported by Init and LastError rather than here. New returns an error
// only for invalid tunables or duplicate provider names.
func New(cfg Config, opts ...Option) (*Gateway, error) {
	s, err := cfg.settings()
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		settings: s,
		logger:   logging.Logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	var built []providers.Provider
	for _, pc := range cfg.Providers {
		p, err := providers.Build(pc)
		if err != nil {
			name := providerName(pc)
			g.skipped = append(g.skipped, name)
			g.logger.Warn("provider skipped", "provider", name, "error", err.Error())
			continue
		}
		built = append(built, p)
	}
	built = append(built, g.extra...)
	g.extra = nil

	seen := make(map[string]bool, len(built))
	for i, p := range built {
		name := p.Name()
		if seen[name] {
			return nil, fmt.Errorf("duplicate provider name %q", name)
		}
		seen[name] = true
		g.states = append(g.states, &providerState{
			provider: p,
			name:     name,
			priority: i,
			breaker:  circuitbreaker.New(s.breakerThreshold, s.breakerCooldown).WithClock(g.now),
			healthy:  true,
		})
	}

	if g.cache == nil && !s.cacheDisabled {
		g.cache = cache.NewMemory(s.cacheMaxEntries, s.cacheTTL, cache.WithSweepInterval(s.cacheSweep))
	}

	g.sweepCtx, g.stopSweep = context.WithCancel(context.Background())
	return g, nil
}

// Init probes every provider once to seed its health flag and then starts the
// background health sweep. It runs at most once; concurrent and later calls
// wait for the first to finish. Generate calls Init implicitly.
//
// With no usable providers every call returns a ConfigurationError, which is
// also reported by LastError until a later Generate failure replaces it. The
// gateway stays usable: Generate then fails fast.
func (g *Gateway) Init(ctx context.Context) error {
	g.initOnce.Do(func() {
		g.mu.RLock()
		closed := g.closed
		g.mu.RUnlock()
		if closed {
			return
		}
		if len(g.states) == 0 {
			cfgErr := &ConfigurationError{Reason: "no providers could be initialised", Skipped: g.skipped}
			g.mu.Lock()
			g.initErr = cfgErr
			g.lastErr = cfgErr
			g.mu.Unlock()
			g.logger.Error("gateway initialisation failed", "error", cfgErr.Error())
			return
		}

		g.CheckHealth(context.WithoutCancel(ctx))

		names := make([]string, len(g.states))
		for i, st := range g.states {
			names[i] = st.name
		}
		g.logger.Info("gateway initialised", "providers", names, "active", g.ActiveProviderName())

		g.mu.Lock()
		defer g.mu.Unlock()
		if g.closed || g.settings.healthInterval <= 0 {
			return
		}
		g.sweepDone = make(chan struct{})
		go g.sweepLoop(g.sweepCtx, g.settings.healthInterval, g.sweepDone)
	})

	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.initErr
}

// Generate returns generated text for prompt, trying providers in order until
// one succeeds. Every failure is reported as an *ExhaustedError.
func (g *Gateway) Generate(ctx context.Context, prompt string, opts providers.Options) (string, error) {
	res, err := g.GenerateResult(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// GenerateResult is Generate with details about which provider answered.
func (g *Gateway) GenerateResult(ctx context.Context, prompt string, opts providers.Options) (*Result, error) {
	start := time.Now()
	log := logging.With(ctx, g.logger)
	_ = g.Init(ctx)

	g.mu.RLock()
	closed := g.closed
	g.mu.RUnlock()
	if closed {
		return nil, &ExhaustedError{Err: ErrClosed}
	}

	var key string
	useCache := g.cache != nil && !opts.SkipCache
	if useCache {
		k, err := cache.Key(prompt, opts)
		if err != nil {
			log.Warn("cache key failed, caching skipped", "error", err.Error())
			useCache = false
		} else {
			key = k
		}
	}
	if useCache {
		if text, ok := g.cache.Get(key); ok {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			metrics.GenerateTotal.WithLabelValues(metrics.OutcomeCacheHit).Inc()
			metrics.GenerateDuration.WithLabelValues("cache").Observe(time.Since(start).Seconds())
			log.Debug("cache hit")
			res := &Result{Text: text, Cached: true, Latency: time.Since(start)}
			g.publishEvent(ctx, SubjectGenerateCompleted, g.eventData(ctx, res, nil))
			return res, nil
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		log.Debug("cache miss")
	}

	var (
		lastErr   error
		attempted int
	)
	for _, st := range g.states {
		allowed, reset := st.breaker.Allow()
		if !allowed {
			metrics.ProviderErrors.WithLabelValues(st.name, metrics.ErrorCircuitOpen).Inc()
			log.Debug("provider skipped, circuit open", "provider", st.name)
			continue
		}
		if reset {
			metrics.CircuitBreakerState.WithLabelValues(st.name).Set(0)
			log.Info("circuit breaker reset after cooldown", "provider", st.name)
		}

		attempted++
		log.Debug("provider selected", "provider", st.name, "priority", st.priority)

		var text string
		n, err := retry.Do(ctx, g.settings.policy, providers.IsRetryable, func(ctx context.Context, attempt int) error {
			out, err := g.attempt(ctx, st, prompt, opts)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("provider attempt failed",
						"provider", st.name,
						"attempt", attempt,
						"retryable", providers.IsRetryable(err),
						"error", err.Error(),
					)
				}
				return err
			}
			text = out
			return nil
		})

		if err == nil {
			g.recordSuccess(st)
			if useCache {
				g.cache.Set(key, text)
			}
			res := &Result{Text: text, Provider: st.name, Attempts: n, Latency: time.Since(start)}
			metrics.GenerateTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
			metrics.GenerateDuration.WithLabelValues(st.name).Observe(res.Latency.Seconds())
			log.Info("generate completed",
				"provider", st.name,
				"attempts", n,
				"latency_ms", res.Latency.Milliseconds(),
			)
			g.publishEvent(ctx, SubjectGenerateCompleted, g.eventData(ctx, res, nil))
			return res, nil
		}

		// A cancelled caller says nothing about the provider.
		if ctxErr := ctx.Err(); ctxErr != nil {
			lastErr = ctxErr
			break
		}
		lastErr = err
		g.recordFailure(log, st, err)
	}

	if lastErr == nil {
		lastErr = ErrNoProviders
	}
	exhausted := &ExhaustedError{Attempted: attempted, Err: lastErr}
	g.mu.Lock()
	g.lastErr = exhausted
	g.mu.Unlock()

	latency := time.Since(start)
	metrics.GenerateTotal.WithLabelValues(metrics.OutcomeExhausted).Inc()
	metrics.GenerateDuration.WithLabelValues("none").Observe(latency.Seconds())
	log.Error("generate failed",
		"attempted", attempted,
		"latency_ms", latency.Milliseconds(),
		"error", lastErr.Error(),
	)
	g.publishEvent(ctx, SubjectGenerateFailed, g.eventData(ctx, &Result{Attempts: attempted, Latency: latency}, exhausted))
	return nil, exhausted
}

type attemptResult struct {
	text string
	err  error
}

// attempt runs a single provider call raced against the per-attempt timeout.
// A call that loses the race keeps running in the background and its result
// is dropped.
func (g *Gateway) attempt(ctx context.Context, st *providerState, prompt string, opts providers.Options) (string, error) {
	g.mu.Lock()
	st.lastUsed = g.now()
	g.mu.Unlock()

	attemptCtx, cancel := context.WithTimeout(ctx, g.settings.attemptTimeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{err: &providers.UpstreamError{
					Provider: st.name,
					Message:  fmt.Sprintf("provider panicked: %v", r),
				}}
			}
		}()
		text, err := st.provider.Generate(attemptCtx, prompt, opts)
		done <- attemptResult{text: text, err: err}
	}()

	var res attemptResult
	select {
	case res = <-done:
	case <-attemptCtx.Done():
		res.err = attemptCtx.Err()
	}
	if res.err != nil && attemptCtx.Err() != nil {
		if err := ctx.Err(); err != nil {
			res.err = err
		} else {
			res.err = providers.NewTimeoutError(st.name, g.settings.attemptTimeout)
		}
	}

	switch {
	case res.err == nil:
		metrics.ProviderAttempts.WithLabelValues(st.name, "success").Inc()
	case ctx.Err() != nil:
	default:
		metrics.ProviderAttempts.WithLabelValues(st.name, "failure").Inc()
		metrics.ProviderErrors.WithLabelValues(st.name, errorType(res.err)).Inc()
	}
	return res.text, res.err
}

func errorType(err error) string {
	switch {
	case providers.IsTimeout(err):
		return metrics.ErrorTimeout
	case providers.IsRetryable(err):
		return metrics.ErrorRetryable
	default:
		return metrics.ErrorFatal
	}
}

func (g *Gateway) recordSuccess(st *providerState) {
	st.breaker.RecordSuccess()
	metrics.CircuitBreakerState.WithLabelValues(st.name).Set(0)
	metrics.ProviderHealthy.WithLabelValues(st.name).Set(1)

	g.mu.Lock()
	defer g.mu.Unlock()
	st.healthy = true
	st.lastErr = nil
	st.totalRequests++
	g.lastErr = nil
}

func (g *Gateway) recordFailure(log *slog.Logger, st *providerState, err error) {
	g.mu.Lock()
	st.healthy = false
	st.lastErr = err
	st.failedRequests++
	st.errorCount++
	g.mu.Unlock()
	metrics.ProviderHealthy.WithLabelValues(st.name).Set(0)

	if st.breaker.RecordFailure() {
		metrics.CircuitBreakerState.WithLabelValues(st.name).Set(1)
		log.Warn("circuit breaker opened",
			"provider", st.name,
			"consecutive_failures", st.breaker.ConsecutiveFailures(),
			"cooldown", g.settings.breakerCooldown.String(),
		)
	}
}

// ActiveProviderName returns the first healthy provider in fallback order,
// the first configured provider when none is healthy, or NoProvider when the
// gateway has no providers.
func (g *Gateway) ActiveProviderName() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.states) == 0 {
		return NoProvider
	}
	for _, st := range g.states {
		if st.healthy {
			return st.name
		}
	}
	return g.states[0].name
}

// LastError returns the most recent gateway-level failure: the
// ConfigurationError from Init, or the ExhaustedError from the last failed
// Generate. A successful Generate clears it.
func (g *Gateway) LastError() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastErr
}

// AddHook registers an EventHookFunc that is called asynchronously after
// every Generate call. Multiple hooks may be registered; all are invoked for
// every event.
func (g *Gateway) AddHook(fn EventHookFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks = append(g.hooks, fn)
}

func (g *Gateway) eventData(ctx context.Context, res *Result, err error) map[string]interface{} {
	data := map[string]interface{}{
		"trace_id":   logging.TraceIDFromContext(ctx),
		"provider":   res.Provider,
		"cached":     res.Cached,
		"attempts":   res.Attempts,
		"latency_ms": res.Latency.Milliseconds(),
		"timestamp":  g.now(),
	}
	if err != nil {
		data["error"] = err.Error()
	}
	return data
}

// publishEvent calls all registered hooks asynchronously.
func (g *Gateway) publishEvent(ctx context.Context, subject string, data map[string]interface{}) {
	g.mu.RLock()
	hooks := make([]EventHookFunc, len(g.hooks))
	copy(hooks, g.hooks)
	g.mu.RUnlock()

	for _, h := range hooks {
		fn := h
		go fn(context.WithoutCancel(ctx), subject, data)
	}
}

// Close stops the health sweep and the cache's expiry sweep and clears the
// cache. It waits for in-flight health checks, which are bounded by the
// per-attempt timeout, so no provider is probed once it returns. It is
// idempotent and may be called before Init. Generate calls made
// after Close fail with ErrClosed.
func (g *Gateway) Close() error {
	var err error
	g.closeOnce.Do(func() {
		g.mu.Lock()
		g.closed = true
		done := g.sweepDone
		g.mu.Unlock()

		g.stopSweep()
		if done != nil {
			<-done
		}
		g.probes.Wait()
		if g.cache != nil {
			err = g.cache.Close()
		}
		g.logger.Info("gateway closed")
	})
	return err
}

package llmfallback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ferro-labs/llm-fallback/internal/metrics"
	"github.com/ferro-labs/llm-fallback/providers"
)

// CheckHealth probes every provider concurrently, each under the per-attempt
// timeout, and updates its healthy flag and last error. Probe failures are
// logged, never returned. Breaker state is driven only by real Generate
// outcomes and is not touched here.
func (g *Gateway) CheckHealth(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	var eg errgroup.Group
	for _, st := range g.states {
		eg.Go(func() error {
			err := g.probe(ctx, st)
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				// Sweep stopped mid-probe; the result says nothing about the provider.
				return nil
			}

			g.mu.Lock()
			st.healthy = err == nil
			st.lastErr = err
			g.mu.Unlock()
			metrics.ProviderHealthy.WithLabelValues(st.name).Set(metrics.BoolGauge(err == nil))

			if err != nil {
				g.logger.Warn("health check failed", "provider", st.name, "error", err.Error())
			} else {
				g.logger.Debug("health check passed", "provider", st.name)
			}
			return nil
		})
	}
	_ = eg.Wait()
}

// probe runs one provider health check. Its goroutine is tracked so Close can
// wait for every in-flight check to return.
func (g *Gateway) probe(ctx context.Context, st *providerState) (err error) {
	g.mu.RLock()
	if g.closed {
		g.mu.RUnlock()
		return ErrClosed
	}
	g.probes.Add(1)
	g.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, g.settings.attemptTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer g.probes.Done()
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("health check panicked: %v", r)
			}
		}()
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		done <- st.provider.CheckHealth(ctx)
	}()

	select {
	case err = <-done:
		return err
	case <-ctx.Done():
		return providers.NewTimeoutError(st.name, g.settings.attemptTimeout)
	}
}

func (g *Gateway) sweepLoop(ctx context.Context, interval time.Duration, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			g.CheckHealth(ctx)
		}
	}
}

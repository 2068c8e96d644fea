package llmfallback

import (
	"time"

	"github.com/ferro-labs/llm-fallback/internal/cache"
	"github.com/ferro-labs/llm-fallback/internal/circuitbreaker"
)

// ProviderStats is a point-in-time snapshot of one provider's state.
type ProviderStats struct {
	Name                string    `json:"name"`
	Priority            int       `json:"priority"`
	Healthy             bool      `json:"healthy"`
	LastError           string    `json:"last_error,omitempty"`
	TotalRequests       int64     `json:"total_requests"`
	FailedRequests      int64     `json:"failed_requests"`
	ErrorCount          int64     `json:"error_count"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastUsed            time.Time `json:"last_used,omitzero"`
	CircuitOpen         bool      `json:"circuit_open"`
	CircuitOpenedAt     time.Time `json:"circuit_opened_at,omitzero"`
	SuccessRate         float64   `json:"success_rate"`
}

// Stats returns a snapshot of every provider in fallback order.
func (g *Gateway) Stats() []ProviderStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]ProviderStats, 0, len(g.states))
	for _, st := range g.states {
		ps := ProviderStats{
			Name:                st.name,
			Priority:            st.priority,
			Healthy:             st.healthy,
			TotalRequests:       st.totalRequests,
			FailedRequests:      st.failedRequests,
			ErrorCount:          st.errorCount,
			ConsecutiveFailures: st.breaker.ConsecutiveFailures(),
			LastUsed:            st.lastUsed,
			CircuitOpen:         st.breaker.State() == circuitbreaker.StateOpen,
			CircuitOpenedAt:     st.breaker.OpenedAt(),
		}
		if st.lastErr != nil {
			ps.LastError = st.lastErr.Error()
		}
		if n := st.totalRequests + st.failedRequests; n > 0 {
			ps.SuccessRate = float64(st.totalRequests) / float64(n)
		}
		out = append(out, ps)
	}
	return out
}

// CacheStats returns the response cache counters. ok is false when caching is
// disabled.
func (g *Gateway) CacheStats() (stats cache.Stats, ok bool) {
	if g.cache == nil {
		return cache.Stats{}, false
	}
	return g.cache.Stats(), true
}

// CacheEntries returns a diagnostic listing of cached entries, newest first,
// when the cache supports it.
func (g *Gateway) CacheEntries() []cache.Entry {
	lister, ok := g.cache.(interface{ Entries() []cache.Entry })
	if !ok {
		return nil
	}
	return lister.Entries()
}

// ClearCache drops every cached response and resets the hit counters.
func (g *Gateway) ClearCache() {
	if g.cache != nil {
		g.cache.Clear()
	}
}

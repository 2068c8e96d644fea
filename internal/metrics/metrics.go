// Package metrics registers the Prometheus metrics used by the gateway.
// All collectors register on the default registry at import time, so the
// /metrics handler can be mounted without further setup.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for GenerateTotal.
const (
	OutcomeSuccess   = "success"
	OutcomeCacheHit  = "cache_hit"
	OutcomeExhausted = "exhausted"
)

// Error type labels for ProviderErrors.
const (
	ErrorTimeout     = "timeout"
	ErrorRetryable   = "retryable"
	ErrorFatal       = "fatal"
	ErrorCircuitOpen = "circuit_open"
)

var (
	// GenerateTotal counts generate calls by outcome ("success",
	// "cache_hit", "exhausted").
	GenerateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_generate_total",
			Help: "Total number of generate calls handled by the gateway.",
		},
		[]string{"outcome"},
	)

	// GenerateDuration observes end-to-end generate latency in seconds,
	// labelled by the provider that answered ("cache" for hits, "none" on
	// exhaustion).
	GenerateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fallback_generate_duration_seconds",
			Help:    "End-to-end generate duration in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// ProviderAttempts counts individual upstream attempts by outcome
	// ("success", "failure").
	ProviderAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_provider_attempts_total",
			Help: "Total upstream attempts by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	// ProviderErrors counts errors broken down by provider and error type
	// ("timeout", "retryable", "fatal", "circuit_open").
	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_provider_errors_total",
			Help: "Total provider errors by type.",
		},
		[]string{"provider", "error_type"},
	)

	// CircuitBreakerState tracks per-provider breaker state: 0 = closed,
	// 1 = open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fallback_circuit_breaker_state",
			Help: "Circuit breaker state per provider (0=closed 1=open).",
		},
		[]string{"provider"},
	)

	// ProviderHealthy is 1 while a provider is marked healthy.
	ProviderHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fallback_provider_healthy",
			Help: "Whether the provider is currently marked healthy (1) or not (0).",
		},
		[]string{"provider"},
	)

	// CacheLookups counts response cache lookups by result ("hit", "miss").
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_cache_lookups_total",
			Help: "Total response cache lookups by result.",
		},
		[]string{"result"},
	)
)

// BoolGauge converts b to a gauge value.
func BoolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Package circuitbreaker implements the per-provider circuit breaker used by
// the fallback gateway. Each provider has its own CircuitBreaker instance.
//
// State transitions:
//
//	Closed → Open    when consecutive failures ≥ threshold
//	Open   → Closed  on the first Allow after the cooldown elapses
//
// There is no separate half-open state. The first call admitted after the
// cooldown runs as a normal call with the failure counter zeroed: success
// keeps the breaker closed, failure reopens it at once and restarts the
// cooldown clock.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker's current state.
type State int

const (
	// StateClosed is normal operation; requests pass through.
	StateClosed State = iota
	// StateOpen means the provider is failing; requests are skipped.
	StateOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreaker guards a single downstream provider.
type CircuitBreaker struct {
	mu         sync.Mutex
	state      State
	failures   int
	threshold  int
	cooldown   time.Duration
	openedAt   time.Time
	recovering bool
	now        func() time.Time
}

// New creates a CircuitBreaker that opens after threshold consecutive
// failures and stays open for cooldown. Defaults are applied for
// zero/negative values: threshold=5, cooldown=60s.
func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &CircuitBreaker{
		state:     StateClosed,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// WithClock replaces time.Now, for tests.
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.mu.Lock()
	cb.now = now
	cb.mu.Unlock()
	return cb
}

// State returns the current state without transitioning it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// OpenedAt returns when the breaker last opened, or the zero time if it is
// closed.
func (cb *CircuitBreaker) OpenedAt() time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return time.Time{}
	}
	return cb.openedAt
}

// ConsecutiveFailures returns the current failure streak.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Allow reports whether a call may proceed. When the breaker is open and the
// cooldown has elapsed it is reset to closed first, and reset is true.
func (cb *CircuitBreaker) Allow() (allowed, reset bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateClosed {
		return true, false
	}
	if cb.now().Sub(cb.openedAt) < cb.cooldown {
		return false, false
	}
	cb.state = StateClosed
	cb.failures = 0
	cb.recovering = true
	return true, true
}

// RecordSuccess notifies the breaker that a call succeeded.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.recovering = false
}

// RecordFailure notifies the breaker that a call failed. It reports whether
// this failure opened the breaker.
func (cb *CircuitBreaker) RecordFailure() (opened bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == StateOpen {
		return false
	}
	if cb.recovering || cb.failures >= cb.threshold {
		cb.state = StateOpen
		cb.openedAt = cb.now()
		cb.recovering = false
		return true
	}
	return false
}

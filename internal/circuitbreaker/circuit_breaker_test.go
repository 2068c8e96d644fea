package circuitbreaker

import (
	"sync"
	"testing"
	"time"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold int, cooldown time.Duration) (*CircuitBreaker, *testClock) {
	clock := &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(threshold, cooldown).WithClock(clock.Now), clock
}

func TestInitialStateClosed(t *testing.T) {
	cb, _ := newTestBreaker(3, 10*time.Second)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed, got %s", cb.State())
	}
	if ok, reset := cb.Allow(); !ok || reset {
		t.Fatalf("Allow() = %v, %v; want true, false", ok, reset)
	}
	if !cb.OpenedAt().IsZero() {
		t.Fatal("OpenedAt should be zero while closed")
	}
}

func TestDefaults(t *testing.T) {
	cb := New(0, 0)
	if cb.threshold != 5 || cb.cooldown != 60*time.Second {
		t.Fatalf("defaults = %d, %s", cb.threshold, cb.cooldown)
	}
}

func TestOpensAfterThreshold(t *testing.T) {
	cb, clock := newTestBreaker(3, 10*time.Second)
	for i := 0; i < 2; i++ {
		if cb.RecordFailure() {
			t.Fatalf("breaker opened early after %d failures", i+1)
		}
	}
	if !cb.RecordFailure() {
		t.Fatal("third failure should open the breaker")
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %s", cb.State())
	}
	if !cb.OpenedAt().Equal(clock.Now()) {
		t.Errorf("OpenedAt = %v, want %v", cb.OpenedAt(), clock.Now())
	}
	if ok, _ := cb.Allow(); ok {
		t.Fatal("expected Allow=false when open")
	}
}

func TestResetsAfterCooldown(t *testing.T) {
	cb, clock := newTestBreaker(2, 10*time.Second)
	cb.RecordFailure()
	cb.RecordFailure()

	clock.Advance(9 * time.Second)
	if ok, _ := cb.Allow(); ok {
		t.Fatal("expected Allow=false before the cooldown elapses")
	}

	clock.Advance(time.Second)
	ok, reset := cb.Allow()
	if !ok || !reset {
		t.Fatalf("Allow() = %v, %v; want true, true", ok, reset)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after reset, got %s", cb.State())
	}
	if cb.ConsecutiveFailures() != 0 {
		t.Fatalf("ConsecutiveFailures = %d, want 0", cb.ConsecutiveFailures())
	}
}

func TestSuccessAfterResetCloses(t *testing.T) {
	cb, clock := newTestBreaker(2, time.Second)
	cb.RecordFailure()
	cb.RecordFailure()
	clock.Advance(time.Second)
	_, _ = cb.Allow()
	cb.RecordSuccess()

	if cb.RecordFailure() {
		t.Fatal("a single failure after a successful recovery must not reopen")
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed, got %s", cb.State())
	}
}

func TestFailureAfterResetReopens(t *testing.T) {
	cb, clock := newTestBreaker(5, time.Second)
	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	clock.Advance(2 * time.Second)
	_, _ = cb.Allow()

	if !cb.RecordFailure() {
		t.Fatal("failure of the recovery call should reopen the breaker")
	}
	if !cb.OpenedAt().Equal(clock.Now()) {
		t.Fatal("reopening must restart the cooldown clock")
	}
	if ok, _ := cb.Allow(); ok {
		t.Fatal("expected Allow=false right after reopening")
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3, 10*time.Second)
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Fatalf("expected still closed (failure count reset), got %s", cb.State())
	}
	if cb.ConsecutiveFailures() != 2 {
		t.Fatalf("ConsecutiveFailures = %d, want 2", cb.ConsecutiveFailures())
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateClosed: "closed",
		StateOpen:   "open",
		State(99):   "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}

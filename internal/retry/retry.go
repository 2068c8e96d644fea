// Package retry runs an operation a bounded number of times with capped
// exponential backoff between attempts.
package retry

import (
	"context"
	"time"
)

// Policy configures Do. Zero values fall back to the package defaults.
type Policy struct {
	// MaxAttempts counts the initial attempt; 1 disables retries.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Defaults applied by Normalize.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
)

// Normalize returns p with defaults filled in.
func (p Policy) Normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Delay returns the wait before retry n (1-based): BaseDelay·2^(n-1), capped
// at MaxDelay.
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.MaxDelay || d <= 0 {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Func is one attempt. attempt is 1-based.
type Func func(ctx context.Context, attempt int) error

// Do calls fn until it succeeds, returns an error that retryable rejects, the
// attempts are used up, or ctx is done. Attempts run strictly one after
// another and the backoff wait happens only between them. It returns the
// number of attempts made and the last attempt's error.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn Func) (int, error) {
	p = p.Normalize()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(p.Delay(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt - 1, lastErr
			case <-timer.C:
			}
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if ctx.Err() != nil || (retryable != nil && !retryable(lastErr)) {
			return attempt, lastErr
		}
	}
	return p.MaxAttempts, lastErr
}

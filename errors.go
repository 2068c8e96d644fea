package llmfallback

import (
	"errors"
	"fmt"
)

// ErrNoProviders is wrapped by ExhaustedError when no provider was attempted,
// either because none are configured or because every breaker is open.
var ErrNoProviders = errors.New("no providers available")

// ErrClosed is wrapped by ExhaustedError for calls made after Close.
var ErrClosed = errors.New("gateway closed")

// ConfigurationError reports that a gateway has no usable providers. It is
// recorded at initialisation and surfaced by LastError; it never stops the
// process.
type ConfigurationError struct {
	Reason  string
	Skipped []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Skipped) > 0 {
		return fmt.Sprintf("configuration error: %s (skipped: %v)", e.Reason, e.Skipped)
	}
	return "configuration error: " + e.Reason
}

// ExhaustedError is the only error returned by Gateway.Generate. Err is the
// last upstream failure observed, or ErrNoProviders when nothing was
// attempted.
type ExhaustedError struct {
	// Attempted is the number of providers that were actually called.
	Attempted int
	Err       error
}

func (e *ExhaustedError) Error() string {
	if e.Attempted == 0 {
		return fmt.Sprintf("all providers failed: %v", e.Err)
	}
	return fmt.Sprintf("all providers failed (%d attempted): %v", e.Attempted, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// PublicMessage returns the text to show an external caller for err. Outside
// debug mode upstream details stay in the logs and only a generic message is
// returned.
func PublicMessage(err error, debug bool) string {
	if err == nil {
		return ""
	}
	if debug {
		return err.Error()
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		if errors.Is(err, ErrNoProviders) {
			return "no providers available"
		}
		return "all providers are currently unavailable"
	}
	return "internal error"
}

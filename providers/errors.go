package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// Low-level network error codes attached to UpstreamError.NetCode.
const (
	CodeTimeout      = "ETIMEDOUT"
	CodeConnReset    = "ECONNRESET"
	CodeConnRefused  = "ECONNREFUSED"
	CodeHostNotFound = "ENOTFOUND"
	CodeDNSTemporary = "EAI_AGAIN"
)

// ErrTimeout is wrapped by errors produced when an attempt exceeds its
// deadline.
var ErrTimeout = errors.New("attempt timed out")

// UpstreamError is a classified failure of a single provider call. At most
// one of StatusCode and NetCode is normally set.
type UpstreamError struct {
	Provider   string
	StatusCode int
	NetCode    string
	APICode    string
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Message)
	case e.NetCode != "":
		return fmt.Sprintf("%s request failed (%s): %s", e.Provider, e.NetCode, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Timeout reports whether the error is the per-attempt timeout variant.
func (e *UpstreamError) Timeout() bool { return errors.Is(e.Err, ErrTimeout) }

// NewTimeoutError returns the UpstreamError raised when an attempt against
// provider does not finish within d.
func NewTimeoutError(provider string, d time.Duration) *UpstreamError {
	return &UpstreamError{
		Provider: provider,
		NetCode:  CodeTimeout,
		Message:  fmt.Sprintf("no response within %s", d),
		Err:      ErrTimeout,
	}
}

// IsTimeout reports whether err is, or wraps, an attempt timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// NetworkCode maps a transport-level error to one of the Code constants, or
// returns "" when err is not a recognised network failure.
func NetworkCode(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return CodeTimeout
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return CodeConnReset
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return CodeConnRefused
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTemporary {
			return CodeDNSTemporary
		}
		return CodeHostNotFound
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout
	}
	return ""
}

// transportError wraps a failed round trip for provider.
func transportError(provider string, err error) error {
	return &UpstreamError{
		Provider: provider,
		NetCode:  NetworkCode(err),
		Message:  err.Error(),
		Err:      err,
	}
}

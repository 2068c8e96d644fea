package providers

import (
	"errors"
	"strings"
)

var retryableNetCodes = map[string]bool{
	CodeTimeout:      true,
	CodeConnReset:    true,
	CodeConnRefused:  true,
	CodeHostNotFound: true,
	CodeDNSTemporary: true,
}

var retryableFragments = []string{
	"timeout",
	"timed out",
	"rate limit",
	"too many requests",
	"service unavailable",
	"connection",
	"network",
}

// httpStatusCoder is implemented by SDK errors that expose the HTTP status,
// such as the AWS SDK's ResponseError.
type httpStatusCoder interface {
	HTTPStatusCode() int
}

// IsRetryable reports whether retrying the same provider after err is
// worthwhile. An HTTP status takes precedence, then a network error code,
// then the error text. It has no side effects.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ue *UpstreamError
	hasUpstream := errors.As(err, &ue)

	if status := statusOf(err, ue); status != 0 {
		return RetryableStatus(status)
	}

	if hasUpstream && ue.NetCode != "" {
		return retryableNetCodes[ue.NetCode]
	}
	if code := NetworkCode(err); code != "" {
		return retryableNetCodes[code]
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range retryableFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// RetryableStatus reports whether an HTTP status is worth retrying: 408, 429
// and any 5xx.
func RetryableStatus(status int) bool {
	return status == 408 || status == 429 || (status >= 500 && status < 600)
}

func statusOf(err error, ue *UpstreamError) int {
	if ue != nil && ue.StatusCode != 0 {
		return ue.StatusCode
	}
	var sc httpStatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatusCode()
	}
	return 0
}

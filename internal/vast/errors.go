package vast

import (
	"context"
	"errors"
	"fmt"
)

// ConfigError signals caller misconfiguration (empty source list, record
// without a URL, unknown mode). It is the only failure the subsystem raises
// synchronously; everything expected (timeouts, bad statuses, empty bodies)
// flows through FetchResult.Errors instead.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid fetch configuration: " + e.Reason
}

// NewConfigError builds a ConfigError with a formatted reason.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ErrEmptyResponse marks a transport-successful response whose body was
// empty or whitespace-only: the protocol's "no ad" signal, treated as a
// failure for retry and fallback purposes.
var ErrEmptyResponse = errors.New("empty response body (no ad)")

// ErrOverallTimeout marks a multi-source fetch abandoned because the
// overall strategy timeout fired before any source produced a result.
var ErrOverallTimeout = errors.New("overall fetch timeout exceeded")

// StatusError reports an HTTP response with a status code >= 400.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.URL, e.StatusCode)
}

// IsTimeout reports whether err stems from a deadline or cancellation.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

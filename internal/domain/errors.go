package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrMisconfigured marks a failure that no retry can fix, such as a missing
// webhook URL.
var ErrMisconfigured = errors.New("misconfigured")

// FetchError reports a single source that could not be scraped.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ValidationError reports a candidate record rejected by normalization.
type ValidationError struct {
	Source string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: invalid %s: %s", e.Source, e.Field, e.Reason)
}

// PersistenceError reports that the store could not serve an operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DeliveryError reports an alert that could not be delivered after retries.
type DeliveryError struct {
	Channel  string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver via %s after %d attempt(s): %v", e.Channel, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// StatusError is a non-success HTTP reply from an outbound channel.
type StatusError struct {
	Channel    string
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s replied %d", e.Channel, e.StatusCode)
	}
	return fmt.Sprintf("%s replied %d: %s", e.Channel, e.StatusCode, e.Body)
}

// Temporary reports whether the same request may succeed later: rate limits
// and server errors are, other client errors are not.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// RequestError reports invalid API input; its message is shown to callers.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string { return e.Message }

// NewRequestError formats a RequestError.
func NewRequestError(format string, args ...any) *RequestError {
	return &RequestError{Message: fmt.Sprintf(format, args...)}
}

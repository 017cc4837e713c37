package viralquill

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors for common failure scenarios
var (
	// ErrQuotaExhausted is returned when a local quota gate denies an operation.
	ErrQuotaExhausted = errors.New("viralquill: quota exhausted")
)

// QuotaExhaustedError reports a local gate failure. The transport is never
// contacted; the caller learns immediately that the budget cannot cover the
// operation.
type QuotaExhaustedError struct {
	Kind      string // "read", "system_read" or "write"
	Requested int64
	Used      int64
	Cap       int64
}

// Error implements error interface.
func (e *QuotaExhaustedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("viralquill: %s quota exhausted (used %d of %d, requested %d)",
		e.Kind, e.Used, e.Cap, e.Requested)
}

// Is matches the ErrQuotaExhausted sentinel for errors.Is.
func (e *QuotaExhaustedError) Is(target error) bool {
	return target == ErrQuotaExhausted
}

// TransportError is the universal failure contract from transport through to
// the caller. It carries the original status, endpoint and reset information
// unchanged; nothing between the transport and the caller rewrites it.
type TransportError struct {
	StatusCode int
	Endpoint   string
	ResetAt    time.Time // zero when the response carried no reset hint
	Retryable  bool
	Message    string
	Cause      error
}

// Error implements error interface.
func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Endpoint != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Endpoint)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return "viralquill: " + msg
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares status codes for errors.Is.
func (e *TransportError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*TransportError); ok {
		return e.StatusCode == targetErr.StatusCode
	}
	return false
}

// IsRetryable classifies an HTTP status code as a transient failure worth
// retrying: 429 (rate limited) and 500 through 504. Everything else,
// including 2xx, is not retryable.
func IsRetryable(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode <= 504
}

// IsTransient determines if an error represents a transient failure that
// might succeed on retry. Network-level failures and retryable statuses
// qualify; quota gate failures and fatal statuses do not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Retryable
	}
	return false
}

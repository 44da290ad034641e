package reliability

import (
	"context"
	"errors"
	"time"
)

// RetryableError marks a failure as transient: network faults, timeouts,
// provider overload, store contention. The supervisor retries only errors
// carrying this marker; everything else propagates on the first attempt.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err as transient. Returns nil for a nil err.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is marked transient anywhere in its chain.
// A deadline expiry also counts: a timed-out call looks identical to any
// other transient backend fault from the pipeline's point of view. A plain
// cancellation does not; the caller gave up and retrying would ignore that.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re *RetryableError
	if errors.As(err, &re) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// LinearBackoff computes the wait before retry n (1-based): base * n.
func LinearBackoff(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(attempt)
}

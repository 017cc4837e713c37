package viralquill

import (
	"context"
	"errors"
	"time"

	"github.com/athemiz/viralquill/internal/backoff"
)

// RetryConfig is the immutable retry policy. Defaults are resolved exactly
// once at construction time; nothing re-merges fields per call.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool
}

// DefaultRetryConfig returns the stock policy: 3 retries, 1s base doubling up
// to 60s, jitter on.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2,
		Jitter:     true,
	}
}

// Retry invokes op until it succeeds, fails terminally, or the attempt budget
// is spent: at most cfg.MaxRetries+1 invocations. Non-retryable errors and
// the final exhausted-retry error surface verbatim. Between attempts the
// calling goroutine suspends on a timer; context expiry aborts the loop
// immediately and is terminal, never retried.
func Retry[T any](ctx context.Context, cfg RetryConfig, op func(context.Context) (T, error), hooks ...RetryHook) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= cfg.MaxRetries || !IsTransient(err) {
			return zero, err
		}

		delay := retryDelay(err, attempt, cfg)
		for _, h := range hooks {
			if h != nil {
				h(attempt, delay, err)
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}

// retryDelay prefers the reset-derived wait when the error carries a known
// reset time (typically a 429), else falls back to exponential backoff.
func retryDelay(err error, attempt int, cfg RetryConfig) time.Duration {
	var transportErr *TransportError
	if errors.As(err, &transportErr) && !transportErr.ResetAt.IsZero() {
		if d := DelayUntilReset(transportErr.ResetAt, time.Now()); d > 0 {
			return d
		}
	}
	return backoff.Delay(attempt, cfg.BaseDelay, cfg.MaxDelay, cfg.Multiplier, cfg.Jitter)
}

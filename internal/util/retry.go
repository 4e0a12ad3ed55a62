package util

import (
	"context"
	"errors"
	"time"
)

// RetryWithBackoff calls fn up to maxTries times until it returns a result
// and nil error, or until ctx is done, sleeping between attempts and
// doubling the delay each time up to maxDelay. The sleep itself is cut short
// when ctx is done. A non-nil retryable predicate decides which errors earn
// another attempt; errors it rejects are returned immediately.
func RetryWithBackoff[T any](ctx context.Context, maxTries int, baseDelay, maxDelay time.Duration, retryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	var zero T
	delay := baseDelay
	for i := 0; i < maxTries; i++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		if retryable != nil && !retryable(err) {
			return zero, err
		}
		lastErr = err

		if i == maxTries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if maxDelay > 0 && delay > maxDelay {
			delay = maxDelay
		}
	}
	return zero, lastErr
}

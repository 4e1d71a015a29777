package tingerr

import (
	"context"
	"fmt"
	"time"
)

// RetryableFunc is an operation that can be retried.
type RetryableFunc func() error

// RetryFlat runs fn up to maxAttempts times, sleeping delay between
// attempts, stopping early on a non-retryable error or context
// cancellation. This is the flat backoff ting's circuit builder uses
// instead of the exponential schedule a long-lived daemon would want:
// a measurement run has a fixed attempt budget per circuit and no
// thundering-herd of peers to stagger against.
func RetryFlat(ctx context.Context, maxAttempts int, delay time.Duration, fn RetryableFunc) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled during backoff: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("max retry attempts (%d) exceeded: %w", maxAttempts, lastErr)
}

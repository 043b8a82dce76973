// Package resilience provides the retry and backoff primitives used by the
// import orchestrator. Backoff is a policy function so tests can inject a
// zero-delay policy.
package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// BackoffPolicy maps a retry attempt (1-based) to the delay observed before
// that attempt runs.
type BackoffPolicy func(attempt int) time.Duration

// LinearBackoff grows the delay by step per attempt, clamped to max.
// With step=2s and max=6s the sequence is 2s, 4s, 6s, 6s, ...
func LinearBackoff(step, max time.Duration) BackoffPolicy {
	return func(attempt int) time.Duration {
		d := time.Duration(attempt) * step
		if d > max {
			d = max
		}
		return d
	}
}

// NoBackoff returns a zero-delay policy.
func NoBackoff() BackoffPolicy {
	return func(int) time.Duration { return 0 }
}

// Do executes fn, retrying on any error up to maxRetries times (maxRetries+1
// total attempts). Before each retry it sleeps policy(attempt) and invokes
// onRetry, if set, with the attempt number and the previous error. Context
// cancellation stops retries immediately.
func Do(ctx context.Context, maxRetries int, policy BackoffPolicy, onRetry func(attempt int, err error), fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if onRetry != nil {
				onRetry(attempt, lastErr)
			}
			if err := Sleep(ctx, policy(attempt)); err != nil {
				return lastErr
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryLogger returns an onRetry callback that logs each retry attempt.
func RetryLogger(operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}

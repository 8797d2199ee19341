package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrRetriesExhausted is returned by [Retry] when every attempt failed with a
// retryable error. The last attempt's error is wrapped alongside it.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy describes how [Retry] repeats a failing call.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls, including the first.
	// Default: 3.
	MaxAttempts int

	// Backoff is the fixed pause between attempts. Default: 1s.
	Backoff time.Duration

	// Retryable reports whether an error is worth another attempt. Nil means
	// every error is retryable. Context errors are never retried.
	Retryable func(error) bool

	// Clock is used for the backoff timer. Default: the wall clock.
	Clock clock.Clock

	// OnRetry, if set, is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	} else if p.Backoff == 0 {
		p.Backoff = time.Second
	}
	if p.Clock == nil {
		p.Clock = clock.New()
	}
	return p
}

// Retry calls fn until it succeeds, returns a non-retryable error, ctx is
// done, or MaxAttempts calls have been made. The attempt number passed to fn
// starts at 1. The second return value is the number of attempts made.
//
// The backoff wait selects on ctx, so a cancelled caller is released
// immediately rather than after the remaining pauses.
func Retry[R any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context, attempt int) (R, error)) (R, int, error) {
	p := policy.withDefaults()
	var zero R

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, err
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			return result, attempt, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return zero, attempt, err
			}
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, attempt, err
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		timer := p.Clock.Timer(p.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, p.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, p.MaxAttempts, lastErr)
}

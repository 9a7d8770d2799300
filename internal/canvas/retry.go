package canvas

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"time"
)

const (
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second
)

// RetryPolicy configures how a failed course fetch is attempted again.
type RetryPolicy struct {
	MaxAttempts int                                        // total attempts including the first
	ShouldRetry func(error) bool                           // nil retries every error
	DelayFunc   func(attempt int, err error) time.Duration // attempt is 1-based
}

// NewRetryPolicy retries throttled (429) and server-side (5xx) Canvas
// answers and transport errors up to retries times, with capped exponential
// backoff plus jitter. A missing course is never retried.
func NewRetryPolicy(retries int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: retries + 1,
		ShouldRetry: retryable,
		DelayFunc:   backoff,
	}
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var canvasErr Error
	if errors.As(err, &canvasErr) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return httpErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

func backoff(attempt int, _ error) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(1<<uint(attempt-1)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay + jitter(delay/2)
}

func jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(limit)))
}

// do runs fn until it succeeds, the policy gives up, or ctx ends.
func (p RetryPolicy) do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil || attempt == attempts {
			return lastErr
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(lastErr) {
			return lastErr
		}
		var delay time.Duration
		if p.DelayFunc != nil {
			delay = p.DelayFunc(attempt, lastErr)
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			}
		}
	}
	return lastErr
}

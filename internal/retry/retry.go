// Package retry provides the exponential-backoff-with-jitter retry loop
// shared by every component that calls an external or fallible dependency:
// the LLM client, the vector store's embedding HTTP calls, and the tool
// executor's per-step retries.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy configures a retry loop.
type Policy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            float64 // fraction of the computed delay to randomize, e.g. 0.2
}

// DefaultPolicy matches the spec's "max 3 attempts, exponential backoff" default.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		InitialDelay:      200 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2,
		Jitter:            0.2,
	}
}

func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= p.BackoffMultiplier
		if d > float64(p.MaxDelay) {
			d = float64(p.MaxDelay)
			break
		}
	}
	if p.Jitter > 0 {
		spread := d * p.Jitter
		d = d - spread + rand.Float64()*2*spread
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// RetryableFunc classifies whether err is worth retrying. A nil classifier
// retries every non-nil error.
type RetryableFunc func(err error) bool

// AlwaysRetryable retries any non-nil error.
func AlwaysRetryable(err error) bool { return err != nil }

// Do runs fn up to p.MaxAttempts times, sleeping between attempts according
// to the policy's backoff+jitter schedule. It stops early if the context is
// canceled or isRetryable(err) returns false.
func Do(ctx context.Context, p Policy, isRetryable RetryableFunc, fn func() error) error {
	_, err := DoValue(ctx, p, isRetryable, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoValue runs fn up to p.MaxAttempts times and returns its value on success.
func DoValue[T any](ctx context.Context, p Policy, isRetryable RetryableFunc, fn func() (T, error)) (T, error) {
	if isRetryable == nil {
		isRetryable = AlwaysRetryable
	}
	var zero T
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		val, err := fn()
		if err == nil {
			return val, nil
		}
		lastErr = err
		if attempt == p.MaxAttempts-1 || !isRetryable(err) {
			return zero, err
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(p.delay(attempt)):
		}
	}
	return zero, lastErr
}

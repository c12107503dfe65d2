package core

import (
	"context"
	"time"
)

// RetryPolicy is a bounded retry policy with multiplicative backoff. It is
// applied at the two retry points (outline generation and engine calls)
// instead of ad hoc sleep loops inside the business logic.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration
}

// Backoff returns the delay before the given attempt (0-based). The first
// attempt has no delay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := float64(p.InitialBackoff)
	mult := p.Multiplier
	if mult <= 1 {
		mult = 1
	}
	for i := 1; i < attempt; i++ {
		d *= mult
	}
	if p.MaxBackoff > 0 && time.Duration(d) > p.MaxBackoff {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// Do runs fn up to MaxAttempts times, sleeping Backoff(attempt) before each
// retry. onRetry (optional) is invoked before every retry attempt.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if onRetry != nil {
				onRetry(attempt, lastErr)
			}
			select {
			case <-time.After(p.Backoff(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := fn(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

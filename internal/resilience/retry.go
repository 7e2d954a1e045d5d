package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Policy defines retry behavior for one operation.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// ShouldRetry decides whether a failure is worth another attempt.
	// Nil means retry everything.
	ShouldRetry func(err error) bool

	// OnRetry is invoked before each backoff sleep with the attempt that
	// just failed (1-indexed) and the delay about to be applied.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy provides sensible defaults for network calls.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    30 * time.Second,
	ShouldRetry: Retryable,
}

// Validate checks the policy configuration. A bad policy is a programming
// error, caught before the first attempt rather than mid-run.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("retry policy: max attempts must be positive, got %d", p.MaxAttempts)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("retry policy: base delay must be positive, got %v", p.BaseDelay)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("retry policy: max delay %v is below base delay %v", p.MaxDelay, p.BaseDelay)
	}
	return nil
}

// Do executes op up to p.MaxAttempts times with exponential backoff and
// jitter. Attempt 1 runs immediately; the delay before attempt n+1 is
// min(base * 2^(n-1) + uniform(0, base/5), max). After exhausting attempts
// the last error is returned verbatim, with no wrapper.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if err := p.Validate(); err != nil {
		return zero, err
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(err) {
			break
		}

		delay := backoff(attempt, p)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}

// backoff computes the delay after the given 1-indexed failed attempt.
// Jitter is drawn from the half-open interval [0, base/5).
func backoff(attempt int, p Policy) time.Duration {
	base := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	var jitter float64
	if span := int64(p.BaseDelay) / 5; span > 0 {
		jitter = float64(rand.Int63n(span))
	}
	delay := base + jitter
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// OpenError is returned when a call is rejected because the breaker is open.
// Callers recognize it via errors.As instead of matching message text.
type OpenError struct {
	Name        string
	NextAttempt time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open until %s", e.Name, e.NextAttempt.Format(time.RFC3339))
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	SuccessThreshold int
}

// DefaultBreakerConfig matches the downstream services' observed recovery
// behavior: trip after 5 failures, probe again after 30s.
var DefaultBreakerConfig = BreakerConfig{
	FailureThreshold: 5,
	ResetTimeout:     30 * time.Second,
	SuccessThreshold: 2,
}

// Breaker is a three-state circuit breaker guarding one dependency.
// All state is owned by the instance and mutated only under its mutex;
// callers interact exclusively through Execute, State and Reset.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
	nextAttempt  time.Time
}

// NewBreaker creates a breaker in the closed state.
func NewBreaker(name string, cfg BreakerConfig) (*Breaker, error) {
	if cfg.FailureThreshold <= 0 {
		return nil, fmt.Errorf("circuit breaker %q: failure threshold must be positive, got %d", name, cfg.FailureThreshold)
	}
	if cfg.ResetTimeout <= 0 {
		return nil, fmt.Errorf("circuit breaker %q: reset timeout must be positive, got %v", name, cfg.ResetTimeout)
	}
	if cfg.SuccessThreshold <= 0 {
		return nil, fmt.Errorf("circuit breaker %q: success threshold must be positive, got %d", name, cfg.SuccessThreshold)
	}
	return &Breaker{name: name, cfg: cfg, state: StateClosed}, nil
}

// Execute runs op through the breaker. While open, calls are rejected with
// *OpenError without invoking op.
func Execute[T any](ctx context.Context, b *Breaker, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if err := b.allow(); err != nil {
		return zero, err
	}

	result, err := op(ctx)
	if err != nil {
		b.recordFailure()
		return zero, err
	}

	b.recordSuccess()
	return result, nil
}

// State returns the current state. Reading state while open and past the
// reset deadline transitions the breaker to half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

// Counts returns the failure and success counters, for diagnostics.
func (b *Breaker) Counts() (failures, successes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount, b.successCount
}

// Reset returns the breaker to closed with zeroed counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
	b.nextAttempt = time.Time{}
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refreshLocked()

	if b.state == StateOpen {
		return &OpenError{Name: b.name, NextAttempt: b.nextAttempt}
	}
	return nil
}

// refreshLocked applies the time-based open -> half-open transition.
// Entering half-open clears the success counter so recovery is counted
// from zero.
func (b *Breaker) refreshLocked() {
	if b.state == StateOpen && time.Now().After(b.nextAttempt) {
		b.state = StateHalfOpen
		b.successCount = 0
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
		}
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.tripLocked()
		}
	case StateHalfOpen:
		// A single failure during recovery re-opens immediately.
		b.tripLocked()
	}
}

// tripLocked moves to open and zeroes both counters so no stale counts
// leak into the next closed or half-open period.
func (b *Breaker) tripLocked() {
	b.state = StateOpen
	b.nextAttempt = time.Now().Add(b.cfg.ResetTimeout)
	b.failureCount = 0
	b.successCount = 0
}

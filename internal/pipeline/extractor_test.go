package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shahabnazari/litpipe/internal/core/domain"
	"github.com/shahabnazari/litpipe/internal/resilience"
)

func testExtractor(t *testing.T, fetch FetchFunc) *Extractor {
	t.Helper()
	e, err := NewExtractor(fetch, ExtractorConfig{
		Timeout: 5 * time.Second,
		Retry: resilience.Policy{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			MaxDelay:    10 * time.Millisecond,
			ShouldRetry: resilience.Retryable,
		},
		Breaker: resilience.BreakerConfig{
			FailureThreshold: 100,
			ResetTimeout:     time.Minute,
			SuccessThreshold: 1,
		},
	})
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	return e
}

func testIDMap(n int) map[string]string {
	m := make(map[string]string, n)
	for i := 0; i < n; i++ {
		m[fmt.Sprintf("src-%d", i)] = fmt.Sprintf("lib-%d", i)
	}
	return m
}

func TestExtractBatchEmptyMap(t *testing.T) {
	var calls atomic.Int64
	e := testExtractor(t, func(ctx context.Context, id string) (*domain.Source, error) {
		calls.Add(1)
		return &domain.Source{PersistedID: id}, nil
	})

	result, err := e.ExtractBatch(context.Background(), map[string]string{}, ExtractOptions{})
	if err != nil {
		t.Fatalf("ExtractBatch: %v", err)
	}
	if result.TotalCount != 0 || calls.Load() != 0 {
		t.Errorf("empty map made %d calls with total %d, want zero work", calls.Load(), result.TotalCount)
	}
}

func TestExtractBatchInvalidMap(t *testing.T) {
	e := testExtractor(t, func(ctx context.Context, id string) (*domain.Source, error) {
		return &domain.Source{PersistedID: id}, nil
	})

	_, err := e.ExtractBatch(context.Background(), map[string]string{"src-1": ""}, ExtractOptions{})
	if err == nil || !strings.Contains(err.Error(), "invalid id map") {
		t.Fatalf("err = %v, want an id-map validation error", err)
	}
}

func TestExtractBatchTallyInvariant(t *testing.T) {
	// Randomized latency and failures: the tally must still be exact.
	e := testExtractor(t, func(ctx context.Context, id string) (*domain.Source, error) {
		time.Sleep(time.Duration(rand.Int63n(int64(5 * time.Millisecond))))
		if rand.Intn(3) == 0 {
			return nil, errors.New("404 not found")
		}
		return &domain.Source{PersistedID: id, Title: "t", FullText: "text"}, nil
	})

	result, err := e.ExtractBatch(context.Background(), testIDMap(50), ExtractOptions{})
	if err != nil {
		t.Fatalf("ExtractBatch: %v", err)
	}
	if result.SuccessCount+result.FailedCount != result.TotalCount {
		t.Errorf("success %d + failed %d != total %d",
			result.SuccessCount, result.FailedCount, result.TotalCount)
	}
	if result.TotalCount != 50 {
		t.Errorf("TotalCount = %d, want 50", result.TotalCount)
	}
	if len(result.Items)+len(result.FailedIDs) != 50 {
		t.Errorf("items %d + failed ids %d != 50", len(result.Items), len(result.FailedIDs))
	}
}

func TestExtractBatchProgressAfterEveryItem(t *testing.T) {
	e := testExtractor(t, func(ctx context.Context, id string) (*domain.Source, error) {
		return &domain.Source{PersistedID: id}, nil
	})

	var snapshots []ExtractProgress
	_, err := e.ExtractBatch(context.Background(), testIDMap(10), ExtractOptions{
		OnProgress: func(p ExtractProgress) { snapshots = append(snapshots, p) },
	})
	if err != nil {
		t.Fatalf("ExtractBatch: %v", err)
	}
	if len(snapshots) != 10 {
		t.Fatalf("got %d progress callbacks, want one per item (10)", len(snapshots))
	}

	// Callbacks are serialized: completed counts must be strictly increasing
	// and internally consistent, never torn.
	for i, p := range snapshots {
		if p.Completed != i+1 {
			t.Errorf("snapshot %d: Completed = %d, want %d", i, p.Completed, i+1)
		}
		if p.Succeeded+p.Failed != p.Completed {
			t.Errorf("snapshot %d torn: %d + %d != %d", i, p.Succeeded, p.Failed, p.Completed)
		}
	}

	if last := snapshots[len(snapshots)-1]; last.ETA.Formatted != "Complete" {
		t.Errorf("final ETA = %q, want Complete", last.ETA.Formatted)
	}
}

func TestExtractBatchTimeout(t *testing.T) {
	e := testExtractor(t, func(ctx context.Context, id string) (*domain.Source, error) {
		time.Sleep(100 * time.Millisecond)
		return &domain.Source{PersistedID: id}, nil
	})

	start := time.Now()
	_, err := e.ExtractBatch(context.Background(), testIDMap(10), ExtractOptions{
		Timeout: 50 * time.Millisecond,
	})

	var timeout *ExtractTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("err = %v, want *ExtractTimeoutError", err)
	}
	if timeout.Timeout != 50*time.Millisecond {
		t.Errorf("Timeout = %v, want 50ms", timeout.Timeout)
	}
	if timeout.CompletedBeforeTimeout < 0 || timeout.CompletedBeforeTimeout > 10 {
		t.Errorf("CompletedBeforeTimeout = %d, out of range", timeout.CompletedBeforeTimeout)
	}
	// Settle-all semantics: the error is reported only after in-flight
	// calls finish, so the elapsed time covers the slow fetches.
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("returned after %v, want the run to wait for in-flight calls", elapsed)
	}
}

func TestExtractBatchCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	e := testExtractor(t, func(ctx context.Context, id string) (*domain.Source, error) {
		time.Sleep(20 * time.Millisecond)
		return &domain.Source{PersistedID: id}, nil
	})

	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := e.ExtractBatch(ctx, testIDMap(5), ExtractOptions{})

	var cancelled *ExtractCancelError
	if !errors.As(err, &cancelled) {
		t.Fatalf("err = %v, want *ExtractCancelError", err)
	}
	if cancelled.Total != 5 {
		t.Errorf("Total = %d, want 5", cancelled.Total)
	}
}

func TestExtractBatchDeadlineAfterLastSettleIsNotTimeout(t *testing.T) {
	e := testExtractor(t, func(ctx context.Context, id string) (*domain.Source, error) {
		return &domain.Source{PersistedID: id}, nil
	})

	// The item settles immediately; the progress callback then holds the
	// tally lock past the deadline, so the timer fires only after all work
	// completed. The run must still report success.
	result, err := e.ExtractBatch(context.Background(), testIDMap(1), ExtractOptions{
		Timeout: 20 * time.Millisecond,
		OnProgress: func(p ExtractProgress) {
			if p.Completed == p.Total {
				time.Sleep(50 * time.Millisecond)
			}
		},
	})
	if err != nil {
		t.Fatalf("ExtractBatch: %v, want success when all items settled before the deadline", err)
	}
	if result.SuccessCount != 1 {
		t.Errorf("SuccessCount = %d, want 1", result.SuccessCount)
	}
}

func TestExtractBatchBreakerOpenNotRetried(t *testing.T) {
	var calls atomic.Int64
	fetch := func(ctx context.Context, id string) (*domain.Source, error) {
		calls.Add(1)
		return nil, errors.New("connection refused")
	}

	e, err := NewExtractor(fetch, ExtractorConfig{
		Timeout: time.Second,
		Retry: resilience.Policy{
			MaxAttempts: 1,
			BaseDelay:   time.Millisecond,
			MaxDelay:    time.Millisecond,
		},
		Breaker: resilience.BreakerConfig{
			FailureThreshold: 1,
			ResetTimeout:     time.Minute,
			SuccessThreshold: 1,
		},
	})
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}

	// First run trips the breaker.
	if _, err := e.ExtractBatch(context.Background(), testIDMap(1), ExtractOptions{}); err != nil {
		t.Fatalf("ExtractBatch: %v", err)
	}
	if e.Breaker().State() != resilience.StateOpen {
		t.Fatal("breaker not open after failure threshold")
	}

	// Second run is rejected fast without touching the fetch func.
	before := calls.Load()
	result, err := e.ExtractBatch(context.Background(), testIDMap(1), ExtractOptions{})
	if err != nil {
		t.Fatalf("ExtractBatch: %v", err)
	}
	if result.FailedCount != 1 {
		t.Errorf("FailedCount = %d, want 1", result.FailedCount)
	}
	if calls.Load() != before {
		t.Errorf("fetch invoked while breaker open")
	}
}

func TestExtractBatchBreakerOpenFastFailWithExplicitPredicate(t *testing.T) {
	var calls atomic.Int64
	fetch := func(ctx context.Context, id string) (*domain.Source, error) {
		calls.Add(1)
		return nil, errors.New("connection refused")
	}

	// The service wires an explicit Retryable predicate; an open breaker's
	// rejection must still fail fast instead of burning the backoff
	// schedule against a dependency known to be down.
	e, err := NewExtractor(fetch, ExtractorConfig{
		Timeout: time.Second,
		Retry: resilience.Policy{
			MaxAttempts: 3,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    time.Second,
			ShouldRetry: resilience.Retryable,
		},
		Breaker: resilience.BreakerConfig{
			FailureThreshold: 1,
			ResetTimeout:     time.Minute,
			SuccessThreshold: 1,
		},
	})
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}

	_, _ = resilience.Execute(context.Background(), e.Breaker(), func(ctx context.Context) (*domain.Source, error) {
		return nil, errors.New("connection refused")
	})
	if e.Breaker().State() != resilience.StateOpen {
		t.Fatal("breaker not open after failure threshold")
	}

	start := time.Now()
	result, err := e.ExtractBatch(context.Background(), testIDMap(1), ExtractOptions{})
	if err != nil {
		t.Fatalf("ExtractBatch: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("fetch invoked %d times while breaker open, want 0", calls.Load())
	}
	if result.FailedCount != 1 {
		t.Errorf("FailedCount = %d, want 1", result.FailedCount)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("open-breaker rejection took %v, want a fast failure without backoff", elapsed)
	}
}

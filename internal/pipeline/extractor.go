package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shahabnazari/litpipe/internal/core/domain"
	"github.com/shahabnazari/litpipe/internal/progress"
	"github.com/shahabnazari/litpipe/internal/resilience"
)

// FetchFunc retrieves the enriched content for one persisted source.
type FetchFunc func(ctx context.Context, persistedID string) (*domain.Source, error)

// ExtractProgress is a consistent snapshot emitted after every item settles.
type ExtractProgress struct {
	Completed int
	Total     int
	Succeeded int
	Failed    int
	ETA       progress.Estimate
}

// ExtractResult tallies one ExtractBatch run. SuccessCount+FailedCount is
// always exactly TotalCount.
type ExtractResult struct {
	Items        map[string]*domain.Source
	FailedIDs    []string
	SuccessCount int
	FailedCount  int
	TotalCount   int
}

// ExtractorConfig configures the parallel fetch coordinator.
type ExtractorConfig struct {
	Timeout    time.Duration // default deadline for a whole batch
	Retry      resilience.Policy
	Breaker    resilience.BreakerConfig
	WindowSize int
	MinSamples int
}

// Extractor fetches enriched content for many sources concurrently. Each
// attempt runs through the retry executor and the shared circuit breaker;
// the whole batch is bounded by one deadline plus the caller's context.
type Extractor struct {
	fetch   FetchFunc
	cfg     ExtractorConfig
	breaker *resilience.Breaker
	eta     *progress.Estimator
}

// NewExtractor creates the coordinator and its owned circuit breaker.
func NewExtractor(fetch FetchFunc, cfg ExtractorConfig) (*Extractor, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.DefaultPolicy
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker = resilience.DefaultBreakerConfig
	}

	breaker, err := resilience.NewBreaker("enriched-fetch", cfg.Breaker)
	if err != nil {
		return nil, err
	}

	return &Extractor{
		fetch:   fetch,
		cfg:     cfg,
		breaker: breaker,
		eta:     progress.NewEstimator(cfg.WindowSize, cfg.MinSamples),
	}, nil
}

// Breaker exposes the fetch breaker for health reporting.
func (e *Extractor) Breaker() *resilience.Breaker { return e.breaker }

// ExtractOptions carries per-call overrides.
type ExtractOptions struct {
	Timeout    time.Duration
	OnProgress func(ExtractProgress)
}

// ExtractBatch fetches enriched content for every entry of idMap
// (original ID -> persisted ID) concurrently. Every attempt settles; the
// deadline only flags that time ran out, it never tears down in-flight
// calls, so the tally is exact even on timeout.
func (e *Extractor) ExtractBatch(ctx context.Context, idMap map[string]string, opts ExtractOptions) (*ExtractResult, error) {
	for orig, persisted := range idMap {
		if orig == "" || persisted == "" {
			return nil, fmt.Errorf("invalid id map: empty identifier in entry %q -> %q", orig, persisted)
		}
	}

	result := &ExtractResult{
		Items:      make(map[string]*domain.Source),
		TotalCount: len(idMap),
	}
	if len(idMap) == 0 {
		return result, nil
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}

	// Fresh window per run so an earlier batch's durations never skew
	// this one's ETA.
	e.eta.Reset()

	var (
		mu                sync.Mutex
		completed         int
		completedAtExpiry = -1
		timedOut          atomic.Bool
	)

	timer := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		mu.Lock()
		completedAtExpiry = completed
		mu.Unlock()
	})
	defer timer.Stop()

	aborted := func() bool {
		return ctx.Err() != nil || timedOut.Load()
	}

	// In-flight fetches are deliberately not cancelled: the run waits for
	// every attempt to settle so no completed work is silently dropped.
	callCtx := context.WithoutCancel(ctx)

	// An open breaker's rejection is never retried, whatever the configured
	// predicate says: backing off against an instant rejection would burn
	// the whole retry schedule while the dependency is known to be down.
	policy := e.cfg.Retry
	shouldRetry := policy.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = resilience.Retryable
	}
	policy.ShouldRetry = func(err error) bool {
		var open *resilience.OpenError
		if errors.As(err, &open) {
			return false
		}
		return shouldRetry(err)
	}

	var wg sync.WaitGroup
	for orig, persisted := range idMap {
		wg.Add(1)
		go func(orig, persisted string) {
			defer wg.Done()
			start := time.Now()

			var src *domain.Source
			var err error
			if aborted() {
				err = context.Canceled
			} else {
				src, err = resilience.Do(callCtx, policy, func(ctx context.Context) (*domain.Source, error) {
					return resilience.Execute(ctx, e.breaker, func(ctx context.Context) (*domain.Source, error) {
						return e.fetch(ctx, persisted)
					})
				})
				if err == nil && aborted() {
					// Deadline passed while this call was in flight;
					// the run as a whole no longer accepts its result.
					err = context.Canceled
					src = nil
				}
			}

			mu.Lock()
			defer mu.Unlock()
			completed++
			if err != nil {
				result.FailedCount++
				result.FailedIDs = append(result.FailedIDs, orig)
				slog.Debug("Enriched fetch failed", "source", orig, "error", err)
			} else {
				result.SuccessCount++
				result.Items[orig] = src
			}
			e.eta.Record(start, time.Now())
			if opts.OnProgress != nil {
				opts.OnProgress(ExtractProgress{
					Completed: completed,
					Total:     result.TotalCount,
					Succeeded: result.SuccessCount,
					Failed:    result.FailedCount,
					ETA:       e.eta.Estimate(completed, result.TotalCount),
				})
			}
		}(orig, persisted)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, &ExtractCancelError{Completed: completed, Total: result.TotalCount, Err: err}
	}
	if timedOut.Load() {
		mu.Lock()
		expired := completedAtExpiry
		if expired < 0 {
			// The timer's flag is visible before its mutexed count store;
			// at this point every item has settled, so use the full count.
			expired = completed
		}
		mu.Unlock()
		// A timer that fires after the last item settled is not a timeout:
		// all work completed within the deadline.
		if expired < result.TotalCount {
			return nil, &ExtractTimeoutError{
				CompletedBeforeTimeout: expired,
				Total:                  result.TotalCount,
				Timeout:                timeout,
			}
		}
	}

	return result, nil
}

// Package pipeline implements the extraction workflow: batch-saving source
// records, fetching enriched content in parallel, preparing the extraction
// payload and invoking the downstream extraction service.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shahabnazari/litpipe/internal/core/domain"
	"github.com/shahabnazari/litpipe/internal/resilience"
)

// SaveFunc persists one source record and returns its assigned identifier.
type SaveFunc func(ctx context.Context, src domain.Source) (domain.SaveReceipt, error)

// SaveProgress is emitted by the saver after each batch start and item settle.
type SaveProgress struct {
	Completed int
	Total     int
	Message   string
}

// FailedItem records one source that could not be saved, with the
// user-facing reason from the classifier.
type FailedItem struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// BatchResult is the cumulative outcome of one BatchSave call. IDMapping
// maps each successfully saved source's original ID to its persisted ID.
type BatchResult struct {
	SavedCount   int               `json:"saved_count"`
	SkippedCount int               `json:"skipped_count"`
	FailedCount  int               `json:"failed_count"`
	FailedItems  []FailedItem      `json:"failed_items"`
	IDMapping    map[string]string `json:"id_mapping"`
}

// SaverConfig configures batch sizing and rate-limit pacing.
type SaverConfig struct {
	// BatchSize is the number of saves issued concurrently per batch.
	// The default of 1 keeps saves fully sequential, which is what the
	// reference-library service's rate limit requires.
	BatchSize int
	// InterBatchDelay is slept between batches to stay under the
	// service's requests-per-second budget.
	InterBatchDelay time.Duration
	Retry           resilience.Policy
}

// Saver persists source records through a rate-limited sequence of
// bounded-size batches. Batches run strictly in submission order; items
// within a batch settle independently.
type Saver struct {
	save SaveFunc
	cfg  SaverConfig
}

// NewSaver creates a batch save coordinator.
func NewSaver(save SaveFunc, cfg SaverConfig) *Saver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.InterBatchDelay <= 0 {
		cfg.InterBatchDelay = 500 * time.Millisecond
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.DefaultPolicy
	}
	return &Saver{save: save, cfg: cfg}
}

// SaveOptions carries the per-call progress hook.
type SaveOptions struct {
	OnProgress func(SaveProgress)
}

// BatchSave persists items and returns the cumulative tally plus the ID
// remapping for every success. A single item's failure never aborts its
// siblings; cancellation between batches returns *SaveAbortError with the
// counts so far.
func (s *Saver) BatchSave(ctx context.Context, items []domain.Source, opts SaveOptions) (*BatchResult, error) {
	result := &BatchResult{IDMapping: make(map[string]string)}
	if len(items) == 0 {
		return result, nil
	}

	notify := func(completed int, msg string) {
		if opts.OnProgress != nil {
			opts.OnProgress(SaveProgress{Completed: completed, Total: len(items), Message: msg})
		}
	}

	// Validation happens up front so malformed records fail immediately
	// and never consume a network attempt.
	var pending []domain.Source
	for _, item := range items {
		if !item.Valid() {
			result.FailedCount++
			result.FailedItems = append(result.FailedItems, FailedItem{
				ID:     item.ID,
				Title:  item.Title,
				Reason: "missing required fields (title and an identifier)",
			})
			continue
		}
		pending = append(pending, item)
	}

	var mu sync.Mutex
	processed := result.FailedCount
	totalBatches := (len(pending) + s.cfg.BatchSize - 1) / s.cfg.BatchSize

	for batch := 0; batch*s.cfg.BatchSize < len(pending); batch++ {
		if err := ctx.Err(); err != nil {
			return nil, &SaveAbortError{
				Saved:     result.SavedCount + result.SkippedCount,
				Failed:    result.FailedCount,
				Processed: processed,
				Err:       err,
			}
		}

		lo := batch * s.cfg.BatchSize
		hi := min(lo+s.cfg.BatchSize, len(pending))
		notify(processed, fmt.Sprintf("batch %d/%d", batch+1, totalBatches))

		// Settle-all inside the batch: every save runs to completion and
		// is recorded, success or failure.
		var wg sync.WaitGroup
		for _, item := range pending[lo:hi] {
			wg.Add(1)
			go func(item domain.Source) {
				defer wg.Done()

				policy := s.cfg.Retry
				if policy.ShouldRetry == nil {
					policy.ShouldRetry = resilience.Retryable
				}
				if policy.OnRetry == nil {
					policy.OnRetry = func(attempt int, err error, delay time.Duration) {
						slog.Debug("Retrying save", "source", item.ID, "attempt", attempt, "delay", delay, "error", err)
					}
				}

				receipt, err := resilience.Do(ctx, policy, func(ctx context.Context) (domain.SaveReceipt, error) {
					return s.save(ctx, item)
				})

				mu.Lock()
				defer mu.Unlock()
				processed++
				if err != nil {
					result.FailedCount++
					result.FailedItems = append(result.FailedItems, FailedItem{
						ID:     item.ID,
						Title:  item.Title,
						Reason: resilience.Classify(err).UserMessage,
					})
				} else {
					if receipt.Duplicate {
						result.SkippedCount++
					} else {
						result.SavedCount++
					}
					result.IDMapping[item.ID] = receipt.ID
				}
				notify(processed, fmt.Sprintf("saved %d/%d", processed, len(items)))
			}(item)
		}
		wg.Wait()

		if hi < len(pending) {
			select {
			case <-ctx.Done():
				return nil, &SaveAbortError{
					Saved:     result.SavedCount + result.SkippedCount,
					Failed:    result.FailedCount,
					Processed: processed,
					Err:       ctx.Err(),
				}
			case <-time.After(s.cfg.InterBatchDelay):
			}
		}
	}

	return result, nil
}

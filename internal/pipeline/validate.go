package pipeline

import (
	"fmt"
	"time"

	"github.com/shahabnazari/litpipe/internal/progress"
)

// LimitsConfig is the workflow's only policy-enforcement point. The
// coordinators underneath are oblivious to business limits.
type LimitsConfig struct {
	// MaxSources is the absolute cap; requests above it are rejected.
	MaxSources int
	// SoftLimit is the count above which the run is allowed but the user
	// is warned with a duration estimate.
	SoftLimit int
	// EstBatchCost is the modeled cost of one save batch, used for the
	// soft-limit warning's wall-clock estimate.
	EstBatchCost time.Duration
}

// DefaultLimits matches the extraction service's published input bounds.
var DefaultLimits = LimitsConfig{
	MaxSources:   500,
	SoftLimit:    100,
	EstBatchCost: 800 * time.Millisecond,
}

// CountValidation is the outcome of ValidateSourceCount.
type CountValidation struct {
	Valid   bool   `json:"valid"`
	Warning string `json:"warning,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ValidateSourceCount applies the source-count policy: hard-reject above
// MaxSources, warn above SoftLimit with an estimated duration from the
// per-batch cost model.
func (w *Workflow) ValidateSourceCount(n int) CountValidation {
	if n <= 0 {
		return CountValidation{Error: "at least one source is required"}
	}
	if n > w.limits.MaxSources {
		return CountValidation{
			Error: fmt.Sprintf("%d sources exceeds the maximum of %d per run", n, w.limits.MaxSources),
		}
	}
	if n > w.limits.SoftLimit {
		batches := (n + w.saver.cfg.BatchSize - 1) / w.saver.cfg.BatchSize
		est := time.Duration(batches) * (w.saver.cfg.InterBatchDelay + w.limits.EstBatchCost)
		return CountValidation{
			Valid: true,
			Warning: fmt.Sprintf("%d sources will take roughly %s to save; consider a smaller selection",
				n, progress.FormatDuration(est)),
		}
	}
	return CountValidation{Valid: true}
}

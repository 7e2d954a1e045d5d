package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shahabnazari/litpipe/internal/core/domain"
	"github.com/shahabnazari/litpipe/internal/metrics"
)

// ExtractCallFunc submits the prepared payload to the downstream extraction
// service. The call is opaque to the orchestrator.
type ExtractCallFunc func(ctx context.Context, payload *domain.ExtractionPayload) (*domain.ExtractionReport, error)

// Stage percentage sub-ranges on the unified 0-100 scale.
const (
	pctSaveEnd    = 15
	pctFetchEnd   = 40
	pctExtractEnd = 100
)

// Workflow sequences the four pipeline stages: save, fetch, prepare,
// extract. It owns no per-run state; each Run is independent.
type Workflow struct {
	saver     *Saver
	extractor *Extractor
	extract   ExtractCallFunc
	prepare   PrepareConfig
	limits    LimitsConfig
	recorder  *metrics.PerformanceRecorder
}

// NewWorkflow assembles the orchestrator. recorder may be nil.
func NewWorkflow(saver *Saver, extractor *Extractor, extract ExtractCallFunc,
	prepare PrepareConfig, limits LimitsConfig, recorder *metrics.PerformanceRecorder) *Workflow {
	if prepare.MinContentLength <= 0 {
		prepare = DefaultPrepareConfig
	}
	if limits.MaxSources <= 0 {
		limits = DefaultLimits
	}
	return &Workflow{
		saver:     saver,
		extractor: extractor,
		extract:   extract,
		prepare:   prepare,
		limits:    limits,
		recorder:  recorder,
	}
}

// RunOptions carries the per-run progress hook.
type RunOptions struct {
	OnProgress domain.ProgressFunc
	// FetchTimeout bounds the fetch stage; zero uses the extractor default.
	FetchTimeout time.Duration
}

// Run drives one workflow execution end to end and returns the downstream
// extraction report. Stage progress is remapped onto the unified scale:
// save 0-15%, fetch 15-40%, prepare 40%, extract 40-100%.
func (w *Workflow) Run(ctx context.Context, sources []domain.Source, opts RunOptions) (*domain.ExtractionReport, error) {
	if v := w.ValidateSourceCount(len(sources)); !v.Valid {
		return nil, fmt.Errorf("source count rejected: %s", v.Error)
	} else if v.Warning != "" {
		slog.Warn("Large source selection", "count", len(sources), "warning", v.Warning)
	}

	// Percentage is clamped monotonic: a stage reporting out of order can
	// never walk the overall number backwards.
	lastPct := 0
	emit := func(stage domain.WorkflowStage, stageNum, cur, total, pct int, msg string) {
		if pct < lastPct {
			pct = lastPct
		}
		lastPct = pct
		metrics.WorkflowStageGauge.WithLabelValues(string(stage)).Set(float64(pct))
		if opts.OnProgress != nil {
			opts.OnProgress(domain.WorkflowProgress{
				Stage:       stage,
				StageNumber: stageNum,
				TotalStages: 4,
				CurrentItem: cur,
				TotalItems:  total,
				Percentage:  pct,
				Message:     msg,
			})
		}
	}

	// Stage 1: save (0-15%).
	emit(domain.StageSave, 1, 0, len(sources), 0, fmt.Sprintf("saving %d sources", len(sources)))
	saveStart := time.Now()
	saveResult, err := w.saver.BatchSave(ctx, sources, SaveOptions{
		OnProgress: func(p SaveProgress) {
			emit(domain.StageSave, 1, p.Completed, p.Total,
				scaleToRange(0, pctSaveEnd, p.Completed, p.Total), p.Message)
		},
	})
	w.observe("save", saveStart, err)
	if err != nil {
		return nil, fmt.Errorf("save stage: %w", err)
	}
	slog.Info("Save stage complete",
		"saved", saveResult.SavedCount,
		"skipped", saveResult.SkippedCount,
		"failed", saveResult.FailedCount)
	if len(saveResult.IDMapping) == 0 {
		return nil, fmt.Errorf("save stage: none of %d sources could be saved (%d failed)",
			len(sources), saveResult.FailedCount)
	}
	emit(domain.StageSave, 1, len(sources), len(sources), pctSaveEnd, "save complete")

	// Stage 2: fetch enriched content (15-40%).
	fetchStart := time.Now()
	fetchResult, err := w.extractor.ExtractBatch(ctx, saveResult.IDMapping, ExtractOptions{
		Timeout: opts.FetchTimeout,
		OnProgress: func(p ExtractProgress) {
			msg := fmt.Sprintf("fetched %d/%d", p.Completed, p.Total)
			if p.ETA.Formatted != "" && p.ETA.Reliable {
				msg = fmt.Sprintf("%s (about %s remaining)", msg, p.ETA.Formatted)
			}
			emit(domain.StageFetch, 2, p.Completed, p.Total,
				scaleToRange(pctSaveEnd, pctFetchEnd, p.Completed, p.Total), msg)
		},
	})
	w.observe("fetch", fetchStart, err)
	if err != nil {
		return nil, fmt.Errorf("fetch stage: %w", err)
	}
	slog.Info("Fetch stage complete",
		"succeeded", fetchResult.SuccessCount,
		"failed", fetchResult.FailedCount)

	// Stage 3: prepare (synchronous, lands on 40%).
	emit(domain.StagePrepare, 3, 0, len(fetchResult.Items), pctFetchEnd, "preparing extraction payload")
	payload := preparePayload(fetchResult.Items, saveResult.IDMapping, w.prepare)
	if len(payload.Items) == 0 {
		return nil, fmt.Errorf("prepare stage: no source retained enough content to extract (of %d fetched, %d dropped)",
			payload.Stats.Total, payload.Stats.Dropped)
	}
	slog.Info("Prepare stage complete",
		"run_id", payload.RunID,
		"kept", len(payload.Items),
		"full_text", payload.Stats.FullText,
		"abstract_overflow", payload.Stats.AbstractOverflow,
		"abstract", payload.Stats.Abstract,
		"dropped", payload.Stats.Dropped)
	emit(domain.StagePrepare, 3, len(payload.Items), len(payload.Items), pctFetchEnd,
		fmt.Sprintf("prepared %d items", len(payload.Items)))

	// Stage 4: extract (40-100%, one opaque downstream call).
	emit(domain.StageExtract, 4, 0, 1, pctFetchEnd, "submitting extraction")
	extractStart := time.Now()
	report, err := w.extract(ctx, payload)
	w.observe("extract", extractStart, err)
	if err != nil {
		return nil, fmt.Errorf("extract stage: %w", err)
	}
	emit(domain.StageExtract, 4, 1, 1, pctExtractEnd, "extraction complete")

	return report, nil
}

func (w *Workflow) observe(op string, start time.Time, err error) {
	if w.recorder != nil {
		w.recorder.Observe(op, time.Since(start), err)
	}
}

// scaleToRange maps current/total onto the [lo, hi] percentage sub-range.
func scaleToRange(lo, hi, current, total int) int {
	if total <= 0 {
		return lo
	}
	if current > total {
		current = total
	}
	return lo + (hi-lo)*current/total
}

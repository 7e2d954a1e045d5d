// Package progress estimates remaining time for batch operations from a
// rolling window of recent task durations.
package progress

import (
	"fmt"
	"sync"
	"time"
)

// Estimate is a projection of remaining time for a batch.
type Estimate struct {
	Remaining   time.Duration
	Formatted   string
	AverageTask time.Duration
	Samples     int
	Reliable    bool
}

// Estimator keeps the last windowSize task durations and projects remaining
// time as mean * (total - completed). Safe for concurrent use: coordinators
// feed it from many goroutines.
type Estimator struct {
	mu         sync.Mutex
	window     []time.Duration
	windowSize int
	minSamples int
}

// NewEstimator creates an estimator. Non-positive arguments fall back to a
// 10-sample window and a 3-sample reliability floor.
func NewEstimator(windowSize, minSamples int) *Estimator {
	if windowSize <= 0 {
		windowSize = 10
	}
	if minSamples <= 0 {
		minSamples = 3
	}
	return &Estimator{
		window:     make([]time.Duration, 0, windowSize),
		windowSize: windowSize,
		minSamples: minSamples,
	}
}

// Record adds one completed task's duration to the window. Non-positive
// durations are ignored so a caller passing a reversed interval contributes
// no sample.
func (e *Estimator) Record(start, end time.Time) {
	e.RecordDuration(end.Sub(start))
}

// RecordDuration adds a raw duration sample, evicting the oldest sample
// once the window is full.
func (e *Estimator) RecordDuration(d time.Duration) {
	if d <= 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.window = append(e.window, d)
	if len(e.window) > e.windowSize {
		e.window = e.window[1:]
	}
}

// Estimate projects remaining time for a batch with the given completion
// counts. With the batch already complete it reports zero unconditionally;
// with no samples yet it reports "calculating".
func (e *Estimator) Estimate(completed, total int) Estimate {
	if completed >= total {
		return Estimate{Formatted: "Complete", Reliable: true}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.window) == 0 {
		return Estimate{Formatted: "calculating"}
	}

	var sum time.Duration
	for _, d := range e.window {
		sum += d
	}
	avg := sum / time.Duration(len(e.window))
	remaining := avg * time.Duration(total-completed)

	return Estimate{
		Remaining:   remaining,
		Formatted:   FormatDuration(remaining),
		AverageTask: avg,
		Samples:     len(e.window),
		Reliable:    len(e.window) >= e.minSamples,
	}
}

// Reset clears the sample window. Called at the start of each batch run so
// durations from an unrelated run never contaminate the estimate.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.window = e.window[:0]
}

// FormatDuration renders a remaining-time estimate for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return "< 1s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	case d < 24*time.Hour:
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh %dm", h, m)
	default:
		return "> 24h"
	}
}

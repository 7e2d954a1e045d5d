package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// OpSummary is an aggregated view of one operation's recorded timings.
type OpSummary struct {
	Count      int64         `json:"count"`
	Failures   int64         `json:"failures"`
	Average    time.Duration `json:"average"`
	Max        time.Duration `json:"max"`
	Throughput float64       `json:"throughput_per_sec"`
}

type opStats struct {
	count    int64
	failures int64
	total    time.Duration
	max      time.Duration
	first    time.Time
	last     time.Time
}

// PerformanceRecorder aggregates per-operation timings, success and failure
// counts, throughput and the process memory high-water mark.
type PerformanceRecorder struct {
	mu           sync.Mutex
	ops          map[string]*opStats
	memHighWater uint64
}

// NewPerformanceRecorder creates an empty recorder.
func NewPerformanceRecorder() *PerformanceRecorder {
	return &PerformanceRecorder{ops: make(map[string]*opStats)}
}

// Observe records one operation's duration and outcome.
func (r *PerformanceRecorder) Observe(op string, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.ops[op]
	if !ok {
		s = &opStats{first: time.Now()}
		r.ops[op] = s
	}

	s.count++
	if err != nil {
		s.failures++
	}
	s.total += d
	if d > s.max {
		s.max = d
	}
	s.last = time.Now()
}

// Snapshot returns the aggregated stats per operation.
func (r *PerformanceRecorder) Snapshot() map[string]OpSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]OpSummary, len(r.ops))
	for op, s := range r.ops {
		summary := OpSummary{
			Count:    s.count,
			Failures: s.failures,
			Max:      s.max,
		}
		if s.count > 0 {
			summary.Average = s.total / time.Duration(s.count)
		}
		if span := s.last.Sub(s.first); span > 0 {
			summary.Throughput = float64(s.count) / span.Seconds()
		}
		out[op] = summary
	}
	return out
}

// MemoryHighWaterBytes returns the highest heap allocation sampled so far.
func (r *PerformanceRecorder) MemoryHighWaterBytes() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.memHighWater
}

// StartMemorySampler samples runtime heap usage on a ticker until ctx is
// cancelled, keeping the high-water mark and the prometheus gauge current.
func (r *PerformanceRecorder) StartMemorySampler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var ms runtime.MemStats
				runtime.ReadMemStats(&ms)

				r.mu.Lock()
				if ms.HeapAlloc > r.memHighWater {
					r.memHighWater = ms.HeapAlloc
				}
				high := r.memHighWater
				r.mu.Unlock()

				MemoryHighWater.Set(float64(high))
			}
		}
	}()
}

// Package metrics exposes prometheus collectors and a lightweight
// performance recorder for pipeline diagnostics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SavesTotal tracks source save outcomes.
	SavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litpipe_saves_total",
			Help: "Total number of source save attempts",
		},
		[]string{"status"},
	)

	// FetchesTotal tracks enriched-content fetch outcomes.
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litpipe_fetches_total",
			Help: "Total number of enriched content fetches",
		},
		[]string{"status"},
	)

	// APILatency tracks literature-API call latency per endpoint.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "litpipe_api_latency_seconds",
			Help:    "Literature API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// WorkflowStageGauge tracks the unified workflow percentage per stage.
	WorkflowStageGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "litpipe_workflow_progress_percent",
			Help: "Current workflow progress on the unified 0-100 scale",
		},
		[]string{"stage"},
	)

	// BreakerStateGauge tracks circuit breaker state (0=closed, 1=open, 2=half-open).
	BreakerStateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "litpipe_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"name"},
	)

	// MemoryHighWater tracks the highest observed heap allocation.
	MemoryHighWater = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "litpipe_memory_high_water_bytes",
			Help: "Highest observed heap allocation in bytes",
		},
	)
)

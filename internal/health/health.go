// Package health provides system health monitoring and status reporting.
package health

import (
	"sync"
	"time"

	"github.com/shahabnazari/litpipe/internal/infra/api"
	"github.com/shahabnazari/litpipe/internal/metrics"
	"github.com/shahabnazari/litpipe/internal/resilience"
)

// SystemStatus represents the overall health state of the service.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// RunSummary records the outcome of the most recent workflow run.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	Sources     int       `json:"sources"`
	Saved       int       `json:"saved"`
	Fetched     int       `json:"fetched"`
	Extracted   int       `json:"extracted"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Report contains the full service health report.
type Report struct {
	Status       SystemStatus                 `json:"status"`
	BreakerState string                       `json:"breaker_state"`
	Budget       *api.BudgetUsage             `json:"budget,omitempty"`
	Operations   map[string]metrics.OpSummary `json:"operations,omitempty"`
	LastRun      *RunSummary                  `json:"last_run,omitempty"`
}

// Monitor aggregates health signals from the pipeline's dependencies.
// Any of the inputs may be nil when the corresponding subsystem is not
// configured.
type Monitor struct {
	mu       sync.RWMutex
	breaker  *resilience.Breaker
	budget   *api.BudgetTracker
	recorder *metrics.PerformanceRecorder
	lastRun  *RunSummary
}

// NewMonitor creates a health monitor.
func NewMonitor(breaker *resilience.Breaker, budget *api.BudgetTracker, recorder *metrics.PerformanceRecorder) *Monitor {
	return &Monitor{breaker: breaker, budget: budget, recorder: recorder}
}

// RecordRun stores the latest workflow run summary.
func (m *Monitor) RecordRun(summary RunSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRun = &summary
}

// Check builds the current health report. An open fetch breaker marks the
// service critical; half-open or a near-exhausted call budget marks it
// degraded.
func (m *Monitor) Check() Report {
	m.mu.RLock()
	lastRun := m.lastRun
	m.mu.RUnlock()

	report := Report{Status: StatusHealthy, LastRun: lastRun}

	if m.breaker != nil {
		state := m.breaker.State()
		report.BreakerState = state.String()
		metrics.BreakerStateGauge.WithLabelValues("enriched-fetch").Set(float64(state))

		switch state {
		case resilience.StateOpen:
			report.Status = StatusCritical
		case resilience.StateHalfOpen:
			report.Status = StatusDegraded
		}
	}

	if m.budget != nil {
		usage := m.budget.Usage()
		report.Budget = &usage
		if usage.UsagePercentage > 90 && report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}

	if m.recorder != nil {
		report.Operations = m.recorder.Snapshot()
	}

	return report
}

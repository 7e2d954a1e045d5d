package api

import (
	"sync"
	"time"
)

// BudgetUsage holds call-budget statistics for the status surfaces.
type BudgetUsage struct {
	TotalCalls      int            `json:"total_calls"`
	CallsThisHour   int            `json:"calls_this_hour"`
	HourlyLimit     int            `json:"hourly_limit"`
	UsagePercentage float64        `json:"usage_percentage"`
	WindowResetAt   time.Time      `json:"window_reset_at"`
	CallsByEndpoint map[string]int `json:"calls_by_endpoint"`
}

// BudgetTracker counts API calls against an hourly allowance. It never
// blocks a call by itself; pacing is the batch coordinator's job. It exists
// so operators can see how close a run came to the service's limit.
type BudgetTracker struct {
	mu            sync.Mutex
	hourlyLimit   int
	totalCalls    int
	callsThisHour int
	windowStart   time.Time
	byEndpoint    map[string]int
}

// NewBudgetTracker creates a tracker. A non-positive limit means the
// service publishes no limit; usage percentage stays at zero.
func NewBudgetTracker(hourlyLimit int) *BudgetTracker {
	return &BudgetTracker{
		hourlyLimit: hourlyLimit,
		windowStart: time.Now(),
		byEndpoint:  make(map[string]int),
	}
}

// RecordCall counts one call against the current window.
func (bt *BudgetTracker) RecordCall(endpoint string) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	if time.Since(bt.windowStart) >= time.Hour {
		bt.callsThisHour = 0
		bt.windowStart = time.Now()
	}

	bt.totalCalls++
	bt.callsThisHour++
	bt.byEndpoint[endpoint]++
}

// Usage returns a snapshot of the current budget state.
func (bt *BudgetTracker) Usage() BudgetUsage {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	byEndpoint := make(map[string]int, len(bt.byEndpoint))
	for k, v := range bt.byEndpoint {
		byEndpoint[k] = v
	}

	usage := BudgetUsage{
		TotalCalls:      bt.totalCalls,
		CallsThisHour:   bt.callsThisHour,
		HourlyLimit:     bt.hourlyLimit,
		WindowResetAt:   bt.windowStart.Add(time.Hour),
		CallsByEndpoint: byEndpoint,
	}
	if bt.hourlyLimit > 0 {
		usage.UsagePercentage = float64(bt.callsThisHour) / float64(bt.hourlyLimit) * 100
	}
	return usage
}

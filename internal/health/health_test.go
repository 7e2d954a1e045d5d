package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shahabnazari/litpipe/internal/resilience"
)

func TestCheckReflectsBreakerState(t *testing.T) {
	b, err := resilience.NewBreaker("fetch", resilience.BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		SuccessThreshold: 1,
	})
	if err != nil {
		t.Fatalf("NewBreaker: %v", err)
	}

	m := NewMonitor(b, nil, nil)

	if got := m.Check().Status; got != StatusHealthy {
		t.Errorf("Status = %s, want healthy", got)
	}

	_, _ = resilience.Execute(context.Background(), b, func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})

	report := m.Check()
	if report.Status != StatusCritical {
		t.Errorf("Status = %s, want critical with an open breaker", report.Status)
	}
	if report.BreakerState != "open" {
		t.Errorf("BreakerState = %q, want open", report.BreakerState)
	}
}

func TestCheckCarriesLastRun(t *testing.T) {
	m := NewMonitor(nil, nil, nil)
	m.RecordRun(RunSummary{RunID: "run-1", Sources: 10, Saved: 9, Fetched: 8, Extracted: 8})

	report := m.Check()
	if report.LastRun == nil || report.LastRun.RunID != "run-1" {
		t.Errorf("LastRun = %+v, want run-1", report.LastRun)
	}
}

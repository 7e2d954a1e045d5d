package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shahabnazari/litpipe/internal/control"
	"github.com/shahabnazari/litpipe/internal/core/config"
	"github.com/shahabnazari/litpipe/internal/core/domain"
	"github.com/shahabnazari/litpipe/internal/infra/api"
)

// mockLibrary is an in-process stand-in for the literature reference
// service. The first enriched fetch per source fails with a 503 so the
// full retry path is exercised end to end.
type mockLibrary struct {
	mu       sync.Mutex
	sources  map[string]domain.Source // persisted ID -> record
	byDOI    map[string]string        // DOI -> persisted ID
	fetchHit map[string]int
}

func newMockLibrary() *mockLibrary {
	return &mockLibrary{
		sources:  make(map[string]domain.Source),
		byDOI:    make(map[string]string),
		fetchHit: make(map[string]int),
	}
}

func (m *mockLibrary) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/sources", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var src domain.Source
		if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if id, ok := m.byDOI[src.DOI]; ok && src.DOI != "" {
			_ = json.NewEncoder(w).Encode(domain.SaveReceipt{ID: id, Duplicate: true})
			return
		}
		id := uuid.NewString()
		src.PersistedID = id
		m.sources[id] = src
		if src.DOI != "" {
			m.byDOI[src.DOI] = id
		}
		_ = json.NewEncoder(w).Encode(domain.SaveReceipt{ID: id})
	})

	mux.HandleFunc("/v1/sources/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 4 || parts[3] != "enriched" {
			http.NotFound(w, r)
			return
		}
		id := parts[2]

		m.mu.Lock()
		src, ok := m.sources[id]
		m.fetchHit[id]++
		first := m.fetchHit[id] == 1
		m.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		if first {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}

		src.FullText = strings.Repeat("enriched full text. ", 40)
		_ = json.NewEncoder(w).Encode(src)
	})

	mux.HandleFunc("/v1/extractions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var payload domain.ExtractionPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(domain.ExtractionReport{
			ExtractionID:   payload.RunID,
			ItemsProcessed: len(payload.Items),
			CompletedAt:    time.Now(),
		})
	})

	return mux
}

func testConfig(baseURL string) *config.AppConfig {
	return &config.AppConfig{
		Server: config.ServerConfig{Port: 0},
		API: api.Config{
			BaseURL:        baseURL,
			RequestTimeout: 10 * time.Second,
			HourlyLimit:    1000,
		},
		Workflow: config.WorkflowConfig{
			BatchSize:               2,
			InterBatchDelay:         10 * time.Millisecond,
			FetchTimeout:            30 * time.Second,
			RetryMaxAttempts:        3,
			RetryBaseDelay:          10 * time.Millisecond,
			RetryMaxDelay:           100 * time.Millisecond,
			BreakerFailureThreshold: 5,
			BreakerResetTimeout:     time.Second,
			BreakerSuccessThreshold: 2,
			MaxSources:              500,
			SoftLimit:               100,
			MinContentLength:        100,
			FullTextMin:             500,
			AbstractOverflowMin:     2000,
		},
	}
}

func TestWorkflow_EndToEnd(t *testing.T) {
	lib := newMockLibrary()
	ts := httptest.NewServer(lib.handler())
	defer ts.Close()

	svc, err := control.NewService(testConfig(ts.URL))
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Failed to start service: %v", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = svc.Stop(stopCtx)
	}()

	sources := []domain.Source{
		{ID: "s1", Title: "Paper One", DOI: "10.1000/one"},
		{ID: "s2", Title: "Paper Two", DOI: "10.1000/two"},
		{ID: "s3", Title: "Paper Three", DOI: "10.1000/three"},
		{ID: "s4", Title: "Paper Two Again", DOI: "10.1000/two"}, // duplicate DOI
	}

	var (
		mu         sync.Mutex
		lastPct    int
		stagesSeen = map[domain.WorkflowStage]bool{}
	)

	report, err := svc.RunWorkflow(ctx, sources, func(p domain.WorkflowProgress) {
		mu.Lock()
		defer mu.Unlock()
		if p.Percentage < lastPct {
			t.Errorf("Percentage went backwards: %d after %d (stage %s)", p.Percentage, lastPct, p.Stage)
		}
		lastPct = p.Percentage
		stagesSeen[p.Stage] = true
	})
	if err != nil {
		t.Fatalf("Workflow failed: %v", err)
	}

	// s4 is a duplicate of s2 and maps to the same record, so the payload
	// carries three distinct sources plus the duplicate's mapping.
	if report.ItemsProcessed != 4 {
		t.Errorf("ItemsProcessed = %d, want 4", report.ItemsProcessed)
	}
	if report.ExtractionID == "" {
		t.Error("ExtractionID is empty")
	}

	if lastPct != 100 {
		t.Errorf("Final percentage = %d, want 100", lastPct)
	}
	for _, stage := range []domain.WorkflowStage{domain.StageSave, domain.StageFetch, domain.StagePrepare, domain.StageExtract} {
		if !stagesSeen[stage] {
			t.Errorf("Stage %s never reported progress", stage)
		}
	}

	// Every distinct source was retried once past the seeded 503.
	lib.mu.Lock()
	defer lib.mu.Unlock()
	if len(lib.sources) != 3 {
		t.Errorf("Library holds %d sources, want 3", len(lib.sources))
	}
	for id, hits := range lib.fetchHit {
		if hits < 2 {
			t.Errorf("Source %s fetched %d times, want at least 2 (503 then success)", id, hits)
		}
	}
}

func TestWorkflow_InMemoryLibrary(t *testing.T) {
	// No API, no database: the service falls back to the in-memory library
	// and writes the extraction payload to disk.
	cfg := testConfig("")
	cfg.API.BaseURL = ""
	tmp := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working dir: %v", err)
	}
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("Failed to chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	svc, err := control.NewService(cfg)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	ctx := context.Background()
	abstract := strings.Repeat("background and findings. ", 10)
	sources := []domain.Source{
		{ID: "m1", Title: "Stored Locally", DOI: "10.1000/mem", Abstract: abstract},
	}

	report, err := svc.RunWorkflow(ctx, sources, nil)
	if err != nil {
		t.Fatalf("Workflow failed: %v", err)
	}
	if report.ItemsProcessed != 1 {
		t.Errorf("ItemsProcessed = %d, want 1", report.ItemsProcessed)
	}

	count, err := svc.Repo().Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Library holds %d sources, want 1", count)
	}
}

func TestWorkflow_RejectsOversizeSelection(t *testing.T) {
	cfg := testConfig("")
	cfg.API.BaseURL = ""
	cfg.Workflow.MaxSources = 5

	svc, err := control.NewService(cfg)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	if v := svc.ValidateSourceCount(6); v.Valid {
		t.Error("6 sources accepted with a maximum of 5")
	} else if v.Error == "" {
		t.Error("Rejection carries no error message")
	}

	sources := make([]domain.Source, 6)
	for i := range sources {
		sources[i] = domain.Source{ID: fmt.Sprintf("s%d", i), Title: "t"}
	}
	if _, err := svc.RunWorkflow(context.Background(), sources, nil); err == nil {
		t.Error("Run accepted an oversize selection")
	}
}

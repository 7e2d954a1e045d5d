// Package control assembles the pipeline with its collaborators and manages
// the service lifecycle.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shahabnazari/litpipe/internal/core/config"
	"github.com/shahabnazari/litpipe/internal/core/domain"
	"github.com/shahabnazari/litpipe/internal/health"
	"github.com/shahabnazari/litpipe/internal/infra/api"
	redisclient "github.com/shahabnazari/litpipe/internal/infra/redis"
	"github.com/shahabnazari/litpipe/internal/infra/storage"
	"github.com/shahabnazari/litpipe/internal/infra/storage/memory"
	"github.com/shahabnazari/litpipe/internal/infra/storage/postgres"
	"github.com/shahabnazari/litpipe/internal/metrics"
	"github.com/shahabnazari/litpipe/internal/pipeline"
	"github.com/shahabnazari/litpipe/internal/resilience"
)

// Service wires the workflow, its collaborators and the health surface.
type Service struct {
	cfg      *config.AppConfig
	workflow *pipeline.Workflow
	monitor  *health.Monitor
	server   *health.Server
	recorder *metrics.PerformanceRecorder

	apiClient *api.Client
	db        *postgres.DB
	cache     *redisclient.Cache
	repo      storage.SourceRepository

	group *errgroup.Group
}

// NewService builds a service from configuration. Collaborator selection
// follows availability: the remote literature API when configured,
// otherwise a local library (postgres when configured, in-memory as the
// last resort).
func NewService(cfg *config.AppConfig) (*Service, error) {
	s := &Service{cfg: cfg, recorder: metrics.NewPerformanceRecorder()}

	if cfg.API.BaseURL != "" {
		client, err := api.NewClient(cfg.API)
		if err != nil {
			return nil, fmt.Errorf("failed to init api client: %w", err)
		}
		s.apiClient = client
		slog.Info("Using remote literature API", "base_url", cfg.API.BaseURL)
	}

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(cfg.Workflow.MigrationsDir); err != nil {
			return nil, err
		}
		s.db = db
		s.repo = postgres.NewSourceRepo(db)
		slog.Info("Using PostgreSQL reference library")
	} else if s.apiClient == nil {
		s.repo = memory.NewSourceRepo()
		slog.Info("Using in-memory reference library")
	}

	if cfg.Redis.URL != "" {
		cache, err := redisclient.NewCache(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		s.cache = cache
		slog.Info("Enriched-content cache enabled")
	}

	retry := resilience.Policy{
		MaxAttempts: cfg.Workflow.RetryMaxAttempts,
		BaseDelay:   cfg.Workflow.RetryBaseDelay,
		MaxDelay:    cfg.Workflow.RetryMaxDelay,
		ShouldRetry: resilience.Retryable,
	}

	saver := pipeline.NewSaver(s.saveFunc(), pipeline.SaverConfig{
		BatchSize:       cfg.Workflow.BatchSize,
		InterBatchDelay: cfg.Workflow.InterBatchDelay,
		Retry:           retry,
	})

	extractor, err := pipeline.NewExtractor(s.fetchFunc(), pipeline.ExtractorConfig{
		Timeout: cfg.Workflow.FetchTimeout,
		Retry:   retry,
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.Workflow.BreakerFailureThreshold,
			ResetTimeout:     cfg.Workflow.BreakerResetTimeout,
			SuccessThreshold: cfg.Workflow.BreakerSuccessThreshold,
		},
	})
	if err != nil {
		return nil, err
	}

	s.workflow = pipeline.NewWorkflow(saver, extractor, s.extractFunc(),
		pipeline.PrepareConfig{
			MinContentLength:    cfg.Workflow.MinContentLength,
			FullTextMin:         cfg.Workflow.FullTextMin,
			AbstractOverflowMin: cfg.Workflow.AbstractOverflowMin,
		},
		pipeline.LimitsConfig{
			MaxSources:   cfg.Workflow.MaxSources,
			SoftLimit:    cfg.Workflow.SoftLimit,
			EstBatchCost: pipeline.DefaultLimits.EstBatchCost,
		},
		s.recorder)

	var budget *api.BudgetTracker
	if s.apiClient != nil {
		budget = s.apiClient.Budget()
	}
	s.monitor = health.NewMonitor(extractor.Breaker(), budget, s.recorder)
	s.server = health.NewServer(s.monitor, cfg.Server.Port)

	return s, nil
}

// saveFunc selects the persistence collaborator.
func (s *Service) saveFunc() pipeline.SaveFunc {
	if s.apiClient != nil {
		return s.apiClient.SaveSource
	}
	return s.repo.Upsert
}

// fetchFunc selects the enrichment collaborator, consulting the cache
// first when one is configured.
func (s *Service) fetchFunc() pipeline.FetchFunc {
	raw := func(ctx context.Context, persistedID string) (*domain.Source, error) {
		if s.apiClient != nil {
			return s.apiClient.FetchEnriched(ctx, persistedID)
		}
		return s.repo.Get(ctx, persistedID)
	}
	if s.cache == nil {
		return raw
	}

	return func(ctx context.Context, persistedID string) (*domain.Source, error) {
		if src, found, err := s.cache.GetEnriched(ctx, persistedID); err == nil && found {
			return src, nil
		}
		src, err := raw(ctx, persistedID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetEnriched(ctx, src); err != nil {
			slog.Warn("Failed to cache enriched content", "source", persistedID, "error", err)
		}
		return src, nil
	}
}

// extractFunc selects the downstream extraction collaborator. Without a
// remote API the prepared payload is written to disk so the run still
// produces an inspectable artifact.
func (s *Service) extractFunc() pipeline.ExtractCallFunc {
	if s.apiClient != nil {
		return s.apiClient.Extract
	}

	return func(ctx context.Context, payload *domain.ExtractionPayload) (*domain.ExtractionReport, error) {
		dir := "extractions"
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create extraction dir: %w", err)
		}
		path := filepath.Join(dir, payload.RunID+".json")
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write payload: %w", err)
		}
		slog.Info("Wrote extraction payload", "path", path, "items", len(payload.Items))
		return &domain.ExtractionReport{
			ExtractionID:   payload.RunID,
			ItemsProcessed: len(payload.Items),
			CompletedAt:    time.Now(),
		}, nil
	}
}

// Start launches the health server and background samplers.
func (s *Service) Start(ctx context.Context) error {
	s.recorder.StartMemorySampler(ctx, 15*time.Second)

	s.group, _ = errgroup.WithContext(ctx)
	s.group.Go(func() error {
		slog.Info("Health server listening", "port", s.cfg.Server.Port)
		if err := s.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	return nil
}

// Stop shuts the service down gracefully.
func (s *Service) Stop(ctx context.Context) error {
	var firstErr error

	if err := s.server.Stop(ctx); err != nil {
		firstErr = err
	}
	if s.group != nil {
		if err := s.group.Wait(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Repo exposes the local library repository; nil when running purely
// against the remote API.
func (s *Service) Repo() storage.SourceRepository { return s.repo }

// ValidateSourceCount applies the workflow's source-count policy.
func (s *Service) ValidateSourceCount(n int) pipeline.CountValidation {
	return s.workflow.ValidateSourceCount(n)
}

// RunWorkflow drives one extraction workflow and records its outcome for
// the health surface.
func (s *Service) RunWorkflow(ctx context.Context, sources []domain.Source, onProgress domain.ProgressFunc) (*domain.ExtractionReport, error) {
	var saved, fetched int
	report, err := s.workflow.Run(ctx, sources, pipeline.RunOptions{
		FetchTimeout: s.cfg.Workflow.FetchTimeout,
		OnProgress: func(p domain.WorkflowProgress) {
			switch p.Stage {
			case domain.StageSave:
				saved = p.CurrentItem
			case domain.StageFetch:
				fetched = p.CurrentItem
			}
			if onProgress != nil {
				onProgress(p)
			}
		},
	})

	summary := health.RunSummary{
		Sources:     len(sources),
		Saved:       saved,
		Fetched:     fetched,
		CompletedAt: time.Now(),
	}
	if err != nil {
		summary.Error = err.Error()
	} else {
		summary.RunID = report.ExtractionID
		summary.Extracted = report.ItemsProcessed
	}
	s.monitor.RecordRun(summary)

	return report, err
}

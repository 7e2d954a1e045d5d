package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/shahabnazari/litpipe/internal/control"
	"github.com/shahabnazari/litpipe/internal/core/config"
	"github.com/shahabnazari/litpipe/internal/core/domain"
)

var (
	cfgPath   string
	inputPath string
	isDebug   bool
)

var rootCmd = &cobra.Command{
	Use:   "litpipe",
	Short: "Literature extraction pipeline",
	Long:  `litpipe saves literature selections, fetches enriched content and drives the downstream extraction workflow.`,
	Run:   runWorkflow,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.Flags().StringVar(&inputPath, "input", "sources.json", "JSON file with the source selection")
}

func initLogging(cfg *config.AppConfig) {
	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})))
}

func loadSources(path string) ([]domain.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}

	var sources []domain.Source
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("failed to parse input file: %w", err)
	}
	return sources, nil
}

func runWorkflow(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	initLogging(cfg)

	sources, err := loadSources(inputPath)
	if err != nil {
		slog.Error("Failed to load sources", "error", err)
		os.Exit(1)
	}

	svc, err := control.NewService(cfg)
	if err != nil {
		slog.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}

	if v := svc.ValidateSourceCount(len(sources)); !v.Valid {
		slog.Error("Source selection rejected", "error", v.Error)
		os.Exit(1)
	} else if v.Warning != "" {
		slog.Warn("Source selection is large", "warning", v.Warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		slog.Error("Failed to start service", "error", err)
		os.Exit(1)
	}

	report, err := svc.RunWorkflow(ctx, sources, func(p domain.WorkflowProgress) {
		slog.Info("Progress",
			"stage", p.Stage,
			"percent", p.Percentage,
			"item", fmt.Sprintf("%d/%d", p.CurrentItem, p.TotalItems),
			"message", p.Message)
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if stopErr := svc.Stop(shutdownCtx); stopErr != nil {
		slog.Error("Error during shutdown", "error", stopErr)
	}

	if err != nil {
		slog.Error("Workflow failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Workflow complete",
		"extraction_id", report.ExtractionID,
		"items_processed", report.ItemsProcessed)
}

package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shahabnazari/litpipe/internal/core/config"
	"github.com/shahabnazari/litpipe/internal/pipeline"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a source selection against the run limits without running it",
	Run:   runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&inputPath, "input", "sources.json", "JSON file with the source selection")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	sources, err := loadSources(inputPath)
	if err != nil {
		slog.Error("Failed to load sources", "error", err)
		os.Exit(1)
	}

	// A workflow with nil collaborators is enough to apply the count policy.
	saver := pipeline.NewSaver(nil, pipeline.SaverConfig{
		BatchSize:       cfg.Workflow.BatchSize,
		InterBatchDelay: cfg.Workflow.InterBatchDelay,
	})
	wf := pipeline.NewWorkflow(saver, nil, nil, pipeline.PrepareConfig{}, pipeline.LimitsConfig{
		MaxSources: cfg.Workflow.MaxSources,
		SoftLimit:  cfg.Workflow.SoftLimit,
	}, nil)

	v := wf.ValidateSourceCount(len(sources))
	switch {
	case !v.Valid:
		fmt.Printf("REJECTED: %s\n", v.Error)
		os.Exit(1)
	case v.Warning != "":
		fmt.Printf("OK with warning: %s\n", v.Warning)
	default:
		fmt.Printf("OK: %d sources\n", len(sources))
	}
}

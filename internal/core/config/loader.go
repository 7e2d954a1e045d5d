package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	w := &cfg.Workflow
	if w.BatchSize == 0 {
		w.BatchSize = 1
	}
	if w.InterBatchDelay == 0 {
		w.InterBatchDelay = 500 * time.Millisecond
	}
	if w.FetchTimeout == 0 {
		w.FetchTimeout = 2 * time.Minute
	}
	if w.RetryMaxAttempts == 0 {
		w.RetryMaxAttempts = 3
	}
	if w.RetryBaseDelay == 0 {
		w.RetryBaseDelay = 1 * time.Second
	}
	if w.RetryMaxDelay == 0 {
		w.RetryMaxDelay = 30 * time.Second
	}
	if w.BreakerFailureThreshold == 0 {
		w.BreakerFailureThreshold = 5
	}
	if w.BreakerResetTimeout == 0 {
		w.BreakerResetTimeout = 30 * time.Second
	}
	if w.BreakerSuccessThreshold == 0 {
		w.BreakerSuccessThreshold = 2
	}
	if w.MaxSources == 0 {
		w.MaxSources = 500
	}
	if w.SoftLimit == 0 {
		w.SoftLimit = 100
	}
	if w.MinContentLength == 0 {
		w.MinContentLength = 100
	}
	if w.FullTextMin == 0 {
		w.FullTextMin = 500
	}
	if w.AbstractOverflowMin == 0 {
		w.AbstractOverflowMin = 2000
	}
	if w.MigrationsDir == "" {
		w.MigrationsDir = "migrations"
	}
}

package config

import (
	"time"

	"github.com/shahabnazari/litpipe/internal/infra/api"
	redisclient "github.com/shahabnazari/litpipe/internal/infra/redis"
	"github.com/shahabnazari/litpipe/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	API      api.Config         `yaml:"api"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	Workflow WorkflowConfig     `yaml:"workflow"`
	Logging  LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds the health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// WorkflowConfig holds pipeline tuning and policy settings.
type WorkflowConfig struct {
	// Save pacing against the reference-library rate limit.
	BatchSize       int           `yaml:"batch_size"`
	InterBatchDelay time.Duration `yaml:"inter_batch_delay"`

	// Fetch stage bounds.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// Retry and breaker tuning shared by save and fetch.
	RetryMaxAttempts        int           `yaml:"retry_max_attempts"`
	RetryBaseDelay          time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay           time.Duration `yaml:"retry_max_delay"`
	BreakerFailureThreshold int           `yaml:"breaker_failure_threshold"`
	BreakerResetTimeout     time.Duration `yaml:"breaker_reset_timeout"`
	BreakerSuccessThreshold int           `yaml:"breaker_success_threshold"`

	// Source-count policy.
	MaxSources int `yaml:"max_sources"`
	SoftLimit  int `yaml:"soft_limit"`

	// Payload preparation thresholds.
	MinContentLength    int `yaml:"min_content_length"`
	FullTextMin         int `yaml:"full_text_min"`
	AbstractOverflowMin int `yaml:"abstract_overflow_min"`

	MigrationsDir string `yaml:"migrations_dir"`
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Queue    QueueConfig    `yaml:"queue"`
	Executor ExecutorConfig `yaml:"executor"`
	Retry    RetryConfig    `yaml:"retry"`
	Cleanup  CleanupConfig  `yaml:"cleanup"`
	Agent    AgentConfig    `yaml:"agent"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AgentConfig contains automation agent connection settings
type AgentConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	APIKey       string        `yaml:"api_key"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// StorageConfig contains database and queue file locations plus the
// credential sealing key
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	QueuePath    string `yaml:"queue_path"`

	// SecretsKey is a hex-encoded 32-byte key; account and proxy
	// credentials are sealed with it before hitting disk.
	SecretsKey string `yaml:"secrets_key"`
}

// ClassLimitConfig bounds one task class
type ClassLimitConfig struct {
	MaxInFlight int `yaml:"max_in_flight"`
	PerMinute   int `yaml:"per_minute"`
}

// QueueConfig contains worker pool and queue settings
type QueueConfig struct {
	Workers           int                         `yaml:"workers"`
	PollInterval      time.Duration               `yaml:"poll_interval"`
	VisibilityTimeout time.Duration               `yaml:"visibility_timeout"`
	ReapInterval      time.Duration               `yaml:"reap_interval"`
	ClassLimits       map[string]ClassLimitConfig `yaml:"class_limits"`
}

// ExecutorConfig contains job execution time limits
type ExecutorConfig struct {
	SoftTimeLimit time.Duration `yaml:"soft_time_limit"`
	HardTimeLimit time.Duration `yaml:"hard_time_limit"`
}

// RetryConfig contains automatic retry backoff settings
type RetryConfig struct {
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
}

// CleanupConfig contains terminal job retention settings
type CleanupConfig struct {
	Retention time.Duration `yaml:"retention"`
	Interval  time.Duration `yaml:"interval"`
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	ListenAddr      string        `yaml:"listen_addr"`
	Path            string        `yaml:"path"`
	CollectInterval time.Duration `yaml:"collect_interval"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, defaults and validates a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "postflow.db"
	}
	if c.Storage.QueuePath == "" {
		c.Storage.QueuePath = "postflow-queue.db"
	}

	if c.Queue.Workers == 0 {
		c.Queue.Workers = 4
	}
	if c.Queue.PollInterval == 0 {
		c.Queue.PollInterval = 2 * time.Second
	}
	if c.Queue.VisibilityTimeout == 0 {
		c.Queue.VisibilityTimeout = 45 * time.Minute
	}
	if c.Queue.ReapInterval == 0 {
		c.Queue.ReapInterval = time.Minute
	}

	if c.Executor.SoftTimeLimit == 0 {
		c.Executor.SoftTimeLimit = 25 * time.Minute
	}
	if c.Executor.HardTimeLimit == 0 {
		c.Executor.HardTimeLimit = 30 * time.Minute
	}

	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = time.Minute
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = 10 * time.Minute
	}

	if c.Cleanup.Retention == 0 {
		c.Cleanup.Retention = 7 * 24 * time.Hour
	}
	if c.Cleanup.Interval == 0 {
		c.Cleanup.Interval = time.Hour
	}

	if c.Agent.BaseURL == "" {
		c.Agent.BaseURL = "http://127.0.0.1:4545"
	}
	if c.Agent.Timeout == 0 {
		c.Agent.Timeout = 30 * time.Minute
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.CollectInterval == 0 {
		c.Metrics.CollectInterval = 10 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.API.APIKey == "" {
		return fmt.Errorf("api.api_key is required")
	}

	if c.Storage.SecretsKey == "" {
		return fmt.Errorf("storage.secrets_key is required (generate one with `postflow keygen`)")
	}

	if c.Executor.HardTimeLimit <= c.Executor.SoftTimeLimit {
		return fmt.Errorf("executor.hard_time_limit must exceed executor.soft_time_limit")
	}

	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay must not be less than retry.base_delay")
	}

	for class, limit := range c.Queue.ClassLimits {
		if limit.MaxInFlight < 0 || limit.PerMinute < 0 {
			return fmt.Errorf("queue.class_limits.%s: limits must not be negative", class)
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

// Package config provides configuration file support for fleetconf.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the fleetconf workspace configuration.
type Config struct {
	Driver    string          `yaml:"driver"`
	Batches   BatchConfig     `yaml:"batches"`
	Halt      HaltConfig      `yaml:"halt"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Webhooks  []WebhookConfig `yaml:"webhooks,omitempty"`
}

// BatchConfig sets per-phase batch sizes. Backup-heavy phases run
// smaller batches than light verification phases.
type BatchConfig struct {
	Update   int `yaml:"update"`
	Verify   int `yaml:"verify"`
	Rollback int `yaml:"rollback"`
}

// HaltConfig bounds the blast radius of a systemically bad change.
type HaltConfig struct {
	// FailureRateThreshold stops launching new batches once
	// failed/attempted exceeds it.
	FailureRateThreshold float64 `yaml:"failure_rate_threshold"`
}

// TimeoutConfig sets per-call timeouts for device operations.
type TimeoutConfig struct {
	Reachability time.Duration `yaml:"reachability"`
	Apply        time.Duration `yaml:"apply"`
	Verify       time.Duration `yaml:"verify"`
}

// RetentionConfig configures snapshot pruning.
type RetentionConfig struct {
	KeepMinSnapshots int    `yaml:"keep_min_snapshots"`
	KeepMinAge       string `yaml:"keep_min_age"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// MetricsConfig configures the optional Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// WebhookConfig configures one notification endpoint.
type WebhookConfig struct {
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret,omitempty"`
	Events []string `yaml:"events,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Driver: "memory",
		Batches: BatchConfig{
			Update:   10,
			Verify:   20,
			Rollback: 5,
		},
		Halt: HaltConfig{
			FailureRateThreshold: 0.20,
		},
		Timeouts: TimeoutConfig{
			Reachability: 30 * time.Second,
			Apply:        60 * time.Second,
			Verify:       2 * time.Minute,
		},
		Retention: RetentionConfig{
			KeepMinSnapshots: 10,
			KeepMinAge:       "168h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9477",
		},
	}
}

// Load loads configuration from .fleetconf/config.yaml.
// Returns default config if file doesn't exist.
func Load(workspaceRoot string) (*Config, error) {
	cfg := Default()
	cfgPath := filepath.Join(workspaceRoot, ".fleetconf", "config.yaml")

	data, err := os.ReadFile(cfgPath)
	if os.IsNotExist(err) {
		return cfg, nil // No config file is OK, use defaults
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to .fleetconf/config.yaml.
func Save(workspaceRoot string, cfg *Config) error {
	cfgPath := filepath.Join(workspaceRoot, ".fleetconf", "config.yaml")

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Validate rejects configurations the orchestrator cannot run with.
func (c *Config) Validate() error {
	if c.Batches.Update <= 0 || c.Batches.Verify <= 0 || c.Batches.Rollback <= 0 {
		return fmt.Errorf("config: batch sizes must be positive")
	}
	if c.Halt.FailureRateThreshold < 0 || c.Halt.FailureRateThreshold > 1 {
		return fmt.Errorf("config: failure_rate_threshold must be in [0,1]")
	}
	if _, err := time.ParseDuration(c.Retention.KeepMinAge); c.Retention.KeepMinAge != "" && err != nil {
		return fmt.Errorf("config: keep_min_age: %w", err)
	}
	return nil
}

// KeepMinAge parses the retention age, falling back to the default on
// an empty value.
func (c *Config) KeepMinAge() time.Duration {
	if c.Retention.KeepMinAge == "" {
		return 7 * 24 * time.Hour
	}
	d, err := time.ParseDuration(c.Retention.KeepMinAge)
	if err != nil {
		return 7 * 24 * time.Hour
	}
	return d
}

// Package config loads and validates moltbot configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all moltbot configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Platform API access
	Platform PlatformConfig `yaml:"platform"`

	// Content generation
	Brain BrainConfig `yaml:"brain"`

	// Heartbeat scheduling
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	// Action rate limits
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Intelligence gathering
	Intel IntelConfig `yaml:"intel"`

	// Persistence
	Storage StorageConfig `yaml:"storage"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PlatformConfig configures the social platform client.
type PlatformConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	AgentName  string `yaml:"agent_name"`
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
}

// BrainConfig configures the Gemini content pipeline.
type BrainConfig struct {
	APIKey string   `yaml:"api_key"`
	Models []string `yaml:"models"` // fallback order
}

// HeartbeatConfig configures the cycle scheduler.
type HeartbeatConfig struct {
	Interval        string `yaml:"interval"`          // time between cycles
	KarmaSettleWait string `yaml:"karma_settle_wait"` // wait after posting before reading karma
}

// RateLimitConfig configures the persisted rate limiter.
type RateLimitConfig struct {
	MinPostInterval    string `yaml:"min_post_interval"`
	MinCommentInterval string `yaml:"min_comment_interval"`
	DailyCommentCap    int    `yaml:"daily_comment_cap"`
}

// IntelConfig configures the intelligence subsystem.
type IntelConfig struct {
	SnapshotTTL         string   `yaml:"snapshot_ttl"`
	MemoryTTL           string   `yaml:"memory_ttl"`
	FullRefreshEvery    string   `yaml:"full_refresh_every"`
	OppRefreshEvery     string   `yaml:"opportunity_refresh_every"`
	Rivals              []string `yaml:"rivals"`
	CompetitorBatchSize int      `yaml:"competitor_batch_size"`
	CompetitorBatchWait string   `yaml:"competitor_batch_wait"`
}

// StorageConfig configures state persistence.
type StorageConfig struct {
	DataDir     string `yaml:"data_dir"`
	ArchivePath string `yaml:"archive_path"` // SQLite observation archive
}

// LoggingConfig configures categorized file logging.
type LoggingConfig struct {
	Enabled    bool            `yaml:"enabled"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "moltbot",
		Version: "1.0.0",

		Platform: PlatformConfig{
			BaseURL:    "https://www.moltbook.com/api",
			AgentName:  "moltbot",
			Timeout:    "30s",
			MaxRetries: 3,
		},

		Brain: BrainConfig{
			Models: []string{"gemini-2.5-flash", "gemini-2.5-flash-lite"},
		},

		Heartbeat: HeartbeatConfig{
			Interval:        "10m",
			KarmaSettleWait: "3s",
		},

		RateLimit: RateLimitConfig{
			MinPostInterval:    "2h",
			MinCommentInterval: "10m",
			DailyCommentCap:    20,
		},

		Intel: IntelConfig{
			SnapshotTTL:         "5m",
			MemoryTTL:           "60s",
			FullRefreshEvery:    "5m",
			OppRefreshEvery:     "2m",
			CompetitorBatchSize: 5,
			CompetitorBatchWait: "2s",
		},

		Storage: StorageConfig{
			DataDir:     "data",
			ArchivePath: "data/archive.db",
		},

		Logging: LoggingConfig{
			Enabled: false,
			Level:   "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("MOLTBOOK_API_KEY"); key != "" {
		c.Platform.APIKey = key
	}
	if url := os.Getenv("MOLTBOOK_BASE_URL"); url != "" {
		c.Platform.BaseURL = url
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Brain.APIKey = key
	}
	if dir := os.Getenv("MOLTBOT_DATA_DIR"); dir != "" {
		c.Storage.DataDir = dir
	}
	if v := os.Getenv("MOLTBOT_LOG_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Logging.Enabled = enabled
		}
	}
	if level := os.Getenv("MOLTBOT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Platform.BaseURL == "" {
		return fmt.Errorf("platform.base_url is required")
	}
	if c.RateLimit.DailyCommentCap <= 0 {
		return fmt.Errorf("rate_limit.daily_comment_cap must be positive")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if c.Intel.CompetitorBatchSize <= 0 {
		return fmt.Errorf("intel.competitor_batch_size must be positive")
	}
	return nil
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// HeartbeatInterval returns the cycle cadence as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return durationOr(c.Heartbeat.Interval, 10*time.Minute)
}

// KarmaSettleWait returns how long the post flow waits before reading karma back.
func (c *Config) KarmaSettleWait() time.Duration {
	return durationOr(c.Heartbeat.KarmaSettleWait, 3*time.Second)
}

// MinPostInterval returns the minimum spacing between posts.
func (c *Config) MinPostInterval() time.Duration {
	return durationOr(c.RateLimit.MinPostInterval, 2*time.Hour)
}

// MinCommentInterval returns the minimum spacing between comments.
func (c *Config) MinCommentInterval() time.Duration {
	return durationOr(c.RateLimit.MinCommentInterval, 10*time.Minute)
}

// SnapshotTTL returns the durable snapshot TTL.
func (c *Config) SnapshotTTL() time.Duration {
	return durationOr(c.Intel.SnapshotTTL, 5*time.Minute)
}

// MemoryTTL returns the in-process cache tier TTL.
func (c *Config) MemoryTTL() time.Duration {
	return durationOr(c.Intel.MemoryTTL, 60*time.Second)
}

// FullRefreshEvery returns the full intelligence refresh cadence.
func (c *Config) FullRefreshEvery() time.Duration {
	return durationOr(c.Intel.FullRefreshEvery, 5*time.Minute)
}

// OppRefreshEvery returns the opportunity-only refresh cadence.
func (c *Config) OppRefreshEvery() time.Duration {
	return durationOr(c.Intel.OppRefreshEvery, 2*time.Minute)
}

// CompetitorBatchWait returns the inter-batch delay for profile fetches.
func (c *Config) CompetitorBatchWait() time.Duration {
	return durationOr(c.Intel.CompetitorBatchWait, 2*time.Second)
}

// PlatformTimeout returns the HTTP timeout for platform calls.
func (c *Config) PlatformTimeout() time.Duration {
	return durationOr(c.Platform.Timeout, 30*time.Second)
}

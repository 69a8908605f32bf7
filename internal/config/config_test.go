package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv neutralizes ambient overrides so default comparisons are stable.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MOLTBOOK_API_KEY", "MOLTBOOK_BASE_URL", "GEMINI_API_KEY",
		"MOLTBOT_DATA_DIR", "MOLTBOT_LOG_ENABLED", "MOLTBOT_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moltbot.yaml")
	content := `
name: testbot
heartbeat:
  interval: 5m
rate_limit:
  min_post_interval: 1h
  daily_comment_cap: 7
intel:
  rivals:
    - rival_bot
    - other_bot
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "testbot", cfg.Name)
	assert.Equal(t, 5*time.Minute, cfg.HeartbeatInterval())
	assert.Equal(t, time.Hour, cfg.MinPostInterval())
	assert.Equal(t, 7, cfg.RateLimit.DailyCommentCap)
	assert.Equal(t, []string{"rival_bot", "other_bot"}, cfg.Intel.Rivals)
	// Untouched sections keep their defaults.
	assert.Equal(t, 10*time.Minute, cfg.MinCommentInterval())
	assert.Equal(t, 5*time.Minute, cfg.SnapshotTTL())
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moltbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{not yaml"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MOLTBOOK_API_KEY", "mk-123")
	t.Setenv("GEMINI_API_KEY", "gk-456")
	t.Setenv("MOLTBOT_DATA_DIR", "/tmp/moltbot-test")
	t.Setenv("MOLTBOT_LOG_ENABLED", "true")
	t.Setenv("MOLTBOT_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "mk-123", cfg.Platform.APIKey)
	assert.Equal(t, "gk-456", cfg.Brain.APIKey)
	assert.Equal(t, "/tmp/moltbot-test", cfg.Storage.DataDir)
	assert.True(t, cfg.Logging.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "moltbot.yaml")

	want := DefaultConfig()
	want.Name = "roundtrip"
	want.Intel.Rivals = []string{"rival_bot"}
	require.NoError(t, want.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}, ok: true},
		{name: "missing base url", mutate: func(c *Config) { c.Platform.BaseURL = "" }, ok: false},
		{name: "zero comment cap", mutate: func(c *Config) { c.RateLimit.DailyCommentCap = 0 }, ok: false},
		{name: "missing data dir", mutate: func(c *Config) { c.Storage.DataDir = "" }, ok: false},
		{name: "zero batch size", mutate: func(c *Config) { c.Intel.CompetitorBatchSize = 0 }, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDurationAccessorFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Heartbeat.Interval = "not-a-duration"
	cfg.Intel.SnapshotTTL = ""

	assert.Equal(t, 10*time.Minute, cfg.HeartbeatInterval(), "bad value falls back")
	assert.Equal(t, 5*time.Minute, cfg.SnapshotTTL(), "empty value falls back")
}

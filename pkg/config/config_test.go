package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideworks/stride/pkg/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, "data/stride.db", cfg.Data.DatabasePath)
	assert.NotEmpty(t, cfg.Data.DeviceName)
	assert.Equal(t, "data/backups", cfg.Backup.Dir)
	assert.Equal(t, 5, cfg.Sync.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Sync.Timeout)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.Equal(t, observability.InfoLevel, cfg.LogLevel())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("STRIDE_PORT", "7070")
	t.Setenv("STRIDE_DB_PATH", "/tmp/alt.db")
	t.Setenv("STRIDE_SYNC_MAX_ATTEMPTS", "2")
	t.Setenv("STRIDE_SYNC_TIMEOUT", "30s")
	t.Setenv("STRIDE_LOG_LEVEL", "debug")
	t.Setenv("STRIDE_METRICS_ENABLED", "false")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "/tmp/alt.db", cfg.Data.DatabasePath)
	assert.Equal(t, 2, cfg.Sync.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Sync.Timeout)
	assert.Equal(t, observability.DebugLevel, cfg.LogLevel())
	assert.False(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stride.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "6060"
backup:
  s3_bucket: stride-backups
  s3_region: eu-west-1
sync:
  endpoint: https://sync.example.com/v1/items
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "6060", cfg.Server.Port)
	assert.Equal(t, "stride-backups", cfg.Backup.S3Bucket)
	assert.Equal(t, "eu-west-1", cfg.Backup.S3Region)
	assert.Equal(t, "https://sync.example.com/v1/items", cfg.Sync.Endpoint)
	// Untouched sections keep their defaults.
	assert.Equal(t, "9090", cfg.Server.HealthPort)
}

func TestEnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stride.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"6060\"\n"), 0644))
	t.Setenv("STRIDE_PORT", "7070")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"same ports", func(c *Config) { c.Server.HealthPort = c.Server.Port }, "must be different"},
		{"missing db path", func(c *Config) { c.Data.DatabasePath = "" }, "database path"},
		{"missing device", func(c *Config) { c.Data.DeviceName = "" }, "device name"},
		{"missing backup dir", func(c *Config) { c.Backup.Dir = "" }, "backup directory"},
		{"bucket without region", func(c *Config) { c.Backup.S3Bucket = "b"; c.Backup.S3Region = "" }, "S3 region"},
		{"bad max attempts", func(c *Config) { c.Sync.MaxAttempts = 0 }, "max attempts"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadConfigRejectsMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

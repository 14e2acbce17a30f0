package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "data/leads.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 2, cfg.Runs.MaxConcurrent)
	assert.Zero(t, cfg.Runs.Timeout(), "runs are not cancelled server-side by default")
	assert.Equal(t, time.Second, cfg.Runs.PollInterval())
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, 20000, cfg.Retry.MaxBackoffMs)
	assert.Equal(t, "v24.0", cfg.Meta.APIVersion)
	assert.Equal(t, 10, cfg.Audit.TimeoutSecs)
	assert.Equal(t, int64(450000), cfg.Audit.MaxBytes)
	assert.Equal(t, 10, cfg.Scoring.KeywordWeight)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)
	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/leads
runs:
  max_concurrent: 5
audit:
  sleep_ms: 0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/leads", cfg.Store.DatabaseURL)
	assert.Equal(t, 5, cfg.Runs.MaxConcurrent)
	assert.Equal(t, 0, cfg.Audit.SleepMs)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 9000\n"), 0o644))
	t.Setenv("LEADS_SERVER_PORT", "7000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestRunsConfig_PollIntervalFallback(t *testing.T) {
	chdirTemp(t)
	t.Setenv("LEADS_RUNS_POLL_INTERVAL_MS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Runs.PollInterval())
	assert.Equal(t, 250*time.Millisecond, RunsConfig{PollIntervalMs: 250}.PollInterval())
	assert.Equal(t, time.Second, RunsConfig{PollIntervalMs: -5}.PollInterval())
}

func TestLoadEnvAliases(t *testing.T) {
	chdirTemp(t)
	t.Setenv("META_ACCESS_TOKEN", "tok-123")
	t.Setenv("META_IG_USER_ID", "17841400000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "tok-123", cfg.Meta.AccessToken)
	assert.Equal(t, "17841400000", cfg.Meta.IGUserID)
}

func TestLoadDotEnvDoesNotOverrideEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LEADS_LOG_LEVEL=debug\nLEADS_SERVER_PORT=6000\n"), 0o644))
	t.Setenv("LEADS_SERVER_PORT", "5000")
	t.Cleanup(func() { os.Unsetenv("LEADS_LOG_LEVEL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5000, cfg.Server.Port)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
}

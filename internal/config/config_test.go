package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
catalog:
  country: se
  timeout: 3s
cache:
  dir: /tmp/pods
  staleness: 30m
  episode_retention_days: 7
playback:
  history_debounce: 2s
  reconnect_attempts: 3
engine:
  args: ["--volume=50"]
  socket: /tmp/mpv.sock
logging:
  level: debug
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "se", cfg.Catalog.Country)
	assert.Equal(t, 3*time.Second, cfg.Catalog.Timeout)
	assert.Equal(t, "https://itunes.apple.com", cfg.Catalog.BaseURL, "unset keys keep defaults")
	assert.Equal(t, "/tmp/pods", cfg.Cache.Dir)
	assert.Equal(t, 30*time.Minute, cfg.Cache.Staleness)
	assert.Equal(t, 7, cfg.Cache.EpisodeRetentionDays)
	assert.Equal(t, 2*time.Second, cfg.Playback.HistoryDebounce)
	assert.Equal(t, 3, cfg.Playback.ReconnectAttempts)
	assert.Equal(t, 15*time.Second, cfg.Playback.ProgressInterval)
	assert.Equal(t, []string{"--volume=50"}, cfg.Engine.Args)
	assert.Equal(t, "/tmp/mpv.sock", cfg.Engine.Socket)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "catalog:\n  country: se\n")
	t.Setenv("PODCASTAPP_CATALOG_COUNTRY", "de")
	t.Setenv("PODCASTAPP_CACHE_STALENESS", "5m")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "de", cfg.Catalog.Country)
	assert.Equal(t, 5*time.Minute, cfg.Cache.Staleness)
}

func TestExplicitMissingFileFails(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, "playback:\n  reconnect_min: 10s\n  reconnect_max: 1s\n")
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "reconnect_max")

	cfg := DefaultConfig()
	cfg.Cache.EpisodeRetentionDays = -1
	assert.Error(t, cfg.Validate())
	assert.NoError(t, DefaultConfig().Validate())
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHome("~/logs/app.log")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "logs", "app.log"), got)

	got, err = ExpandHome("/var/log/app.log")
	require.NoError(t, err)
	assert.Equal(t, "/var/log/app.log", got)
}

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
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:5000", cfg.API.BaseURL)
		assert.Equal(t, "ws://localhost:5000/socket", cfg.Realtime.URL)
		assert.Equal(t, "memory", cfg.Storage.Type)
		assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	})

	t.Run("yaml values", func(t *testing.T) {
		path := writeConfig(t, `
api:
  base_url: https://cases.example.org
  timeout: 5s
storage:
  type: redis
  redis:
    addr: cache:6379
    db: 2
server:
  port: "9090"
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "https://cases.example.org", cfg.API.BaseURL)
		assert.Equal(t, "wss://cases.example.org/socket", cfg.Realtime.URL)
		assert.Equal(t, 5*time.Second, cfg.API.Timeout)
		assert.Equal(t, "redis", cfg.Storage.Type)
		assert.Equal(t, "cache:6379", cfg.Storage.Redis.Addr)
		assert.Equal(t, 2, cfg.Storage.Redis.DB)
		assert.Equal(t, "9090", cfg.Server.Port)
	})

	t.Run("env overrides file", func(t *testing.T) {
		path := writeConfig(t, "api:\n  base_url: http://file.local\n")
		t.Setenv("CASEFEED_API_URL", "http://env.local")
		t.Setenv("CASEFEED_API_TIMEOUT", "2s")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "http://env.local", cfg.API.BaseURL)
		assert.Equal(t, 2*time.Second, cfg.API.Timeout)
	})

	t.Run("invalid storage", func(t *testing.T) {
		path := writeConfig(t, "storage:\n  type: sqlite\n")
		_, err := Load(path)
		assert.EqualError(t, err, "unknown storage type: sqlite")
	})

	t.Run("postgres requires dsn", func(t *testing.T) {
		path := writeConfig(t, "storage:\n  type: postgres\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("broken yaml", func(t *testing.T) {
		path := writeConfig(t, "api: [")
		_, err := Load(path)
		assert.Error(t, err)
	})
}

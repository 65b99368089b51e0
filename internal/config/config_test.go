package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LEVEL_CONFIG", "")
	t.Setenv("LEVEL_REST_PORT", "")
	t.Setenv("LEVEL_STORAGE_BACKEND", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "world", cfg.Level.Name)
	assert.Equal(t, 8088, cfg.Server.GetRESTPort())
	assert.Equal(t, 30*time.Second, cfg.Placement.AutosaveInterval())
	assert.Equal(t, 24*time.Hour, cfg.EventBus.RetentionDuration())
}

func TestLoad_File(t *testing.T) {
	t.Setenv("LEVEL_STORAGE_BACKEND", "")
	path := filepath.Join(t.TempDir(), "level.yaml")
	data := `
server:
  rest_port: 9090
storage:
  backend: badger
  badger:
    path: /tmp/positions
level:
  name: hub
  dimensions:
    - name: lobby
      type: custom
      min_y: -16
      height: 64
  spawn:
    dimension: lobby
    x: 0.5
    y: 1
    z: 0.5
placement:
  autosave_seconds: 5
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.GetRESTPort())
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/positions", cfg.Storage.Badger.Path)
	assert.Equal(t, "hub", cfg.Level.Name)
	require.Len(t, cfg.Level.Dimensions, 1)
	require.NotNil(t, cfg.Level.Dimensions[0].MinY)
	assert.Equal(t, -16, *cfg.Level.Dimensions[0].MinY)
	assert.Equal(t, "lobby", cfg.Level.Spawn.Dimension)
	assert.Equal(t, 5*time.Second, cfg.Placement.AutosaveInterval())
	// Значения по умолчанию для незаданных секций сохраняются
	assert.Equal(t, "EVENTS", cfg.EventBus.Stream)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LEVEL_CONFIG", "")
	t.Setenv("LEVEL_REST_PORT", "7070")
	t.Setenv("LEVEL_STORAGE_BACKEND", "redis")
	t.Setenv("LEVEL_REDIS_ADDR", "cache:6379")
	t.Setenv("LEVEL_JWT_SECRET", "c2VjcmV0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.GetRESTPort())
	assert.Equal(t, "c2VjcmV0", cfg.Server.JWTSecret)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "cache:6379", cfg.Storage.Redis.Addr)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [1, 2"), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestCacheConfig(t *testing.T) {
	t.Setenv("LEVEL_CONFIG", "")
	t.Setenv("LEVEL_CACHE_BACKEND", "local")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Storage.Cache.Backend)
	assert.Equal(t, 30*time.Second, cfg.Storage.Cache.TTL())

	cfg.Storage.Cache.TTLSeconds = 5
	assert.Equal(t, 5*time.Second, cfg.Storage.Cache.TTL())
}

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_BadConfig(t *testing.T) {
	t.Setenv("LEVEL_CONFIG", "")
	assert.Equal(t, 1, run([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}))
	assert.Equal(t, 2, run([]string{"-unknown"}))
}

func TestRun_FailedStartReturnsAfterCleanup(t *testing.T) {
	t.Setenv("LEVEL_CONFIG", "")
	t.Setenv("LEVEL_JWT_SECRET", "")

	dir := t.TempDir()
	logDir := filepath.Join(dir, "logs")
	cfgPath := filepath.Join(dir, "level.yaml")
	cfg := "logging:\n  dir: " + logDir + "\nserver:\n  jwt_secret: \"слабый\"\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))

	assert.Equal(t, 1, run([]string{"-config", cfgPath}))

	// Ошибка дошла до файлового лога до выхода
	files, err := filepath.Glob(filepath.Join(logDir, "server_*.log"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "Ошибка создания сервиса"))
}

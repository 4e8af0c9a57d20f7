package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabledIsNoOp(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir, false, LevelInfo))
	defer Close()

	log := Get(CategoryExecutor)
	log.Info("should not be written")

	_, err := os.Stat(filepath.Join(dir, ".motedb", "logs", "executor.log"))
	assert.True(t, os.IsNotExist(err))
}

func TestInitDebugWritesCategoryFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir, true, LevelDebug))
	defer Close()

	log := Get(CategoryStorage)
	log.Info("put row")

	path := filepath.Join(dir, ".motedb", "logs", "storage.log")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "put row")
	assert.Contains(t, string(data), "[INFO]")
}

func TestMinLevelFiltersLowerSeverity(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir, true, LevelWarn))
	defer Close()

	log := Get(CategoryCache)
	log.Debug("noisy")
	log.Warn("heads up")

	path := filepath.Join(dir, ".motedb", "logs", "cache.log")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "noisy")
	assert.Contains(t, string(data), "heads up")
}

func TestGetReturnsSameLoggerForCategory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir, true, LevelInfo))
	defer Close()

	a := Get(CategoryManifest)
	b := Get(CategoryManifest)
	assert.Same(t, a, b)
}

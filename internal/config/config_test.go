package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigMatchesDocumentedDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 64, cfg.Graph.MaxDegree)
	assert.Equal(t, 8, cfg.Graph.AnchorCount)
	assert.Equal(t, 4, cfg.Compaction.Level1FileThreshold)
	assert.Equal(t, 3, cfg.Compaction.KeepVersions)
	assert.Equal(t, 0.15, cfg.Executor.RangeSelectivityThreshold)
	assert.Equal(t, 10, cfg.Executor.StorageLimitSafetyFactor)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Graph.MaxDegree, cfg.Graph.MaxDegree)
}

func TestLoadParsesYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "motedb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("graph:\n  max_degree: 32\ncompaction:\n  keep_versions: 5\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Graph.MaxDegree)
	assert.Equal(t, 5, cfg.Compaction.KeepVersions)
}

func TestLoadRejectsZeroKeepVersions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "motedb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("compaction:\n  keep_versions: 0\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverridesLayerOverFile(t *testing.T) {
	t.Setenv("MOTEDB_GRAPH_MAX_DEGREE", "16")
	t.Setenv("MOTEDB_LOGGING_DEBUG", "true")
	path := filepath.Join(t.TempDir(), "motedb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("graph:\n  max_degree: 32\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Graph.MaxDegree)
	assert.True(t, cfg.Logging.Debug)
}

package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadCurrent(t *testing.T) {
	dir := t.TempDir()

	m := New(1, 1000)
	m.LSMFile = "data_000001.sst"
	m.VectorIndexes["embeddings"] = "l1_000001.sst"
	m.CalculateChecksum()
	require.NoError(t, m.WriteAtomic(dir))

	got, err := ReadCurrent(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Version)
	assert.Equal(t, "data_000001.sst", got.LSMFile)
	assert.Equal(t, m.Checksum, got.Checksum)
}

func TestCommitIsLatestVersion(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, New(1, 1000).WriteAtomic(dir))
	require.NoError(t, New(2, 2000).WriteAtomic(dir))

	current, err := ReadCurrent(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), current.Version)
}

func TestFindOrphans(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "data_000001.sst"), []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data_000002.sst"), []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "l1_000001.sst"), []byte("vec"), 0o644))

	m := New(1, 1000)
	m.LSMFile = "data_000002.sst"
	require.NoError(t, m.WriteAtomic(dir))

	orphans, err := m.FindOrphans(dir)
	require.NoError(t, err)
	assert.Len(t, orphans, 2)
}

func TestCleanupOldVersionsKeepsLatest(t *testing.T) {
	dir := t.TempDir()

	for v := uint64(1); v <= 5; v++ {
		m := New(v, int64(v)*1000)
		require.NoError(t, m.WriteAtomic(dir))
	}

	_, err := CleanupOldVersions(dir, 2)
	require.NoError(t, err)

	versions, err := ListVersions(dir)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(versions), 2)
}

func TestBackupIncrementalRestore(t *testing.T) {
	srcDir := t.TempDir()
	backupRoot := t.TempDir()
	targetDir := t.TempDir()

	m1 := New(1, 1000)
	require.NoError(t, m1.WriteAtomic(srcDir))

	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "data_000002.sst"), []byte("payload"), 0o644))
	m2 := New(2, 2000)
	m2.LSMFile = "data_000002.sst"
	require.NoError(t, m2.WriteAtomic(srcDir))

	backupDir, copied, err := BackupIncremental(srcDir, 1, 2, backupRoot)
	require.NoError(t, err)
	assert.Equal(t, 1, copied)

	restored, err := RestoreIncremental(backupDir, 2, targetDir)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	data, err := os.ReadFile(filepath.Join(targetDir, "data_000002.sst"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

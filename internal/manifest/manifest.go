// Package manifest implements the atomic multi-file commit protocol of
// spec §6: write every data/index file, fsync, write a versioned
// MANIFEST-NNNNNN.tmp, fsync, rename to MANIFEST-CURRENT (the atomic
// commit point), then fsync the parent directory.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/motedb/motedb/internal/value"
)

// Manifest records every active file in one committed database version.
type Manifest struct {
	Version          uint64            `json:"version"`
	LSMFile          string            `json:"lsm_file,omitempty"`
	VectorIndexes    map[string]string `json:"vector_indexes"`
	SpatialIndexes   map[string]string `json:"spatial_indexes"`
	TextIndexes      map[string]string `json:"text_indexes"`
	TimestampIndexes map[string]string `json:"timestamp_indexes"`
	ColumnIndexes    map[string]string `json:"column_indexes"`
	Checksum         uint64            `json:"checksum"`
	Timestamp        int64             `json:"timestamp"`
}

// New creates an empty manifest at version.
func New(version uint64, timestamp int64) *Manifest {
	return &Manifest{
		Version:          version,
		VectorIndexes:    map[string]string{},
		SpatialIndexes:   map[string]string{},
		TextIndexes:      map[string]string{},
		TimestampIndexes: map[string]string{},
		ColumnIndexes:    map[string]string{},
		Timestamp:        timestamp,
	}
}

func hashString(s string) uint64 {
	var h uint64
	for i := 0; i < len(s); i++ {
		h = h*31 + uint64(s[i])
	}
	return h
}

// CalculateChecksum recomputes the simple additive hash over every
// referenced file name (spec §6 "checksum: a simple hash over
// concatenated file names").
func (m *Manifest) CalculateChecksum() uint64 {
	var sum uint64
	if m.LSMFile != "" {
		sum += hashString(m.LSMFile)
	}
	for _, files := range m.allIndexMaps() {
		for _, f := range files {
			sum += hashString(f)
		}
	}
	m.Checksum = sum
	return sum
}

func (m *Manifest) allIndexMaps() []map[string]string {
	return []map[string]string{m.VectorIndexes, m.SpatialIndexes, m.TextIndexes, m.TimestampIndexes, m.ColumnIndexes}
}

func (m *Manifest) allFiles() []string {
	var out []string
	if m.LSMFile != "" {
		out = append(out, m.LSMFile)
	}
	for _, files := range m.allIndexMaps() {
		for _, f := range files {
			out = append(out, f)
		}
	}
	return out
}

func tempPath(dir string, version uint64) string {
	return filepath.Join(dir, fmt.Sprintf("MANIFEST-%06d.tmp", version))
}

func versionPath(dir string, version uint64) string {
	return filepath.Join(dir, fmt.Sprintf("MANIFEST-%06d", version))
}

func currentPath(dir string) string {
	return filepath.Join(dir, "MANIFEST-CURRENT")
}

// WriteTemp serializes m to MANIFEST-<version>.tmp and fsyncs it —
// step 1 of the atomic commit protocol.
func (m *Manifest) WriteTemp(dir string) (string, error) {
	path := tempPath(dir, m.Version)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", value.Wrap(value.KindSerialization, "manifest.WriteTemp", "marshal", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", value.Wrap(value.KindIO, "manifest.WriteTemp", "create", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", value.Wrap(value.KindIO, "manifest.WriteTemp", "write", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", value.Wrap(value.KindIO, "manifest.WriteTemp", "fsync", err)
	}
	if err := f.Close(); err != nil {
		return "", value.Wrap(value.KindIO, "manifest.WriteTemp", "close", err)
	}
	return path, nil
}

// CommitAtomic hard-links tmpPath to a permanent MANIFEST-<version>,
// renames it to MANIFEST-CURRENT, then fsyncs the parent directory — the atomic
// commit point described in spec §6.
func CommitAtomic(tmpPath, dir string, version uint64) error {
	permPath := versionPath(dir, version)
	if err := os.Link(tmpPath, permPath); err != nil && !os.IsExist(err) {
		return value.Wrap(value.KindIO, "manifest.CommitAtomic", "link permanent version", err)
	}

	cur := currentPath(dir)
	if err := os.Rename(tmpPath, cur); err != nil {
		return value.Wrap(value.KindIO, "manifest.CommitAtomic", "rename", err)
	}

	dirFile, err := os.Open(dir)
	if err != nil {
		return value.Wrap(value.KindIO, "manifest.CommitAtomic", "open dir", err)
	}
	defer dirFile.Close()
	if err := dirFile.Sync(); err != nil {
		return value.Wrap(value.KindIO, "manifest.CommitAtomic", "fsync dir", err)
	}
	return nil
}

// WriteAtomic runs the full write-temp-then-commit sequence.
func (m *Manifest) WriteAtomic(dir string) error {
	tmp, err := m.WriteTemp(dir)
	if err != nil {
		return err
	}
	return CommitAtomic(tmp, dir, m.Version)
}

// ReadCurrent loads MANIFEST-CURRENT, or an empty version-0 manifest
// if the database directory is brand new.
func ReadCurrent(dir string) (*Manifest, error) {
	path := currentPath(dir)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(0, 0), nil
	}
	if err != nil {
		return nil, value.Wrap(value.KindIO, "manifest.ReadCurrent", "read", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, value.Wrap(value.KindCorruption, "manifest.ReadCurrent", "unmarshal", err)
	}
	return &m, nil
}

// ReadVersion loads one specific committed MANIFEST-<version>.
func ReadVersion(dir string, version uint64) (*Manifest, error) {
	path := versionPath(dir, version)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, value.New(value.KindFileNotFound, "manifest.ReadVersion", path)
	}
	if err != nil {
		return nil, value.Wrap(value.KindIO, "manifest.ReadVersion", "read", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, value.Wrap(value.KindCorruption, "manifest.ReadVersion", "unmarshal", err)
	}
	return &m, nil
}

// ListVersions returns every committed version number found in dir,
// ascending.
func ListVersions(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, value.Wrap(value.KindIO, "manifest.ListVersions", "readdir", err)
	}
	var versions []uint64
	for _, e := range entries {
		name := e.Name()
		if name == "MANIFEST-CURRENT" || !strings.HasPrefix(name, "MANIFEST-") || strings.HasSuffix(name, ".tmp") {
			continue
		}
		numStr := strings.TrimPrefix(name, "MANIFEST-")
		n, err := strconv.ParseUint(numStr, 10, 64)
		if err != nil {
			continue
		}
		versions = append(versions, n)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}

var dataFileSuffixes = []string{".sst", ".mmap", ".idx", ".bin"}

func isDataFile(name string) bool {
	for _, suf := range dataFileSuffixes {
		if strings.HasSuffix(name, suf) {
			return true
		}
	}
	return false
}

// FindOrphans scans dir for data files not referenced by m — files
// left behind by a crash between writing files and committing the
// manifest (spec §6, §7 "Background compaction failures ... roll back
// by leaving the pre-compaction manifest version live").
func (m *Manifest) FindOrphans(dir string) ([]string, error) {
	active := make(map[string]bool)
	for _, f := range m.allFiles() {
		active[f] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, value.Wrap(value.KindIO, "manifest.FindOrphans", "readdir", err)
	}
	var orphans []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if isDataFile(name) && !active[name] {
			orphans = append(orphans, name)
		}
	}
	return orphans, nil
}

// CleanupOldVersions keeps the most recent keepVersions committed
// manifests and deletes the rest, along with any of their referenced
// files not also referenced by the current manifest (spec §4.6
// "version GC (keep K)").
func CleanupOldVersions(dir string, keepVersions int) (deleted int, err error) {
	if keepVersions <= 0 {
		return 0, nil
	}
	current, err := ReadCurrent(dir)
	if err != nil {
		return 0, err
	}
	active := make(map[string]bool)
	for _, f := range current.allFiles() {
		active[f] = true
	}

	versions, err := ListVersions(dir)
	if err != nil {
		return 0, err
	}
	if len(versions) <= keepVersions {
		return 0, nil
	}
	sort.Sort(sort.Reverse(uint64Slice(versions)))
	toDelete := versions[keepVersions:]

	for _, v := range toDelete {
		old, rerr := ReadVersion(dir, v)
		if rerr != nil {
			continue
		}
		for _, f := range old.allFiles() {
			if !active[f] {
				if rmErr := os.Remove(filepath.Join(dir, f)); rmErr == nil {
					deleted++
				}
			}
		}
		os.Remove(versionPath(dir, v))
	}
	return deleted, nil
}

type uint64Slice []uint64

func (s uint64Slice) Len() int           { return len(s) }
func (s uint64Slice) Less(i, j int) bool { return s[i] < s[j] }
func (s uint64Slice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// diffVersions returns files present in "to" but not in "from". A from
// of 0 stands for the empty database, so every file of "to" is added.
func diffVersions(dir string, from, to uint64) (added []string, err error) {
	fromM := New(0, 0)
	if from != 0 {
		if fromM, err = ReadVersion(dir, from); err != nil {
			return nil, err
		}
	}
	toM, err := ReadVersion(dir, to)
	if err != nil {
		return nil, err
	}
	fromFiles := make(map[string]bool)
	for _, f := range fromM.allFiles() {
		fromFiles[f] = true
	}
	for _, f := range toM.allFiles() {
		if !fromFiles[f] {
			added = append(added, f)
		}
	}
	return added, nil
}

// BackupIncremental copies every file newly referenced between
// from/to versions, plus the target manifest, into a fresh
// uuid-named backup directory under backupRoot (spec §4.6 "incremental
// backup").
func BackupIncremental(dir string, from, to uint64, backupRoot string) (backupDir string, copied int, err error) {
	added, err := diffVersions(dir, from, to)
	if err != nil {
		return "", 0, err
	}
	backupDir = filepath.Join(backupRoot, uuid.NewString())
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", 0, value.Wrap(value.KindIO, "manifest.BackupIncremental", "mkdir", err)
	}

	for _, f := range added {
		src := filepath.Join(dir, f)
		dst := filepath.Join(backupDir, f)
		if err := copyFile(src, dst); err != nil {
			continue
		}
		copied++
	}

	manifestSrc := versionPath(dir, to)
	manifestDst := versionPath(backupDir, to)
	copyFile(manifestSrc, manifestDst)
	return backupDir, copied, nil
}

// RestoreIncremental copies every file referenced by the manifest at
// version from backupDir into targetDir, then installs it as
// MANIFEST-CURRENT.
func RestoreIncremental(backupDir string, version uint64, targetDir string) (restored int, err error) {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return 0, value.Wrap(value.KindIO, "manifest.RestoreIncremental", "mkdir", err)
	}
	m, err := ReadVersion(backupDir, version)
	if err != nil {
		return 0, err
	}
	for _, f := range m.allFiles() {
		src := filepath.Join(backupDir, f)
		dst := filepath.Join(targetDir, f)
		if err := copyFile(src, dst); err != nil {
			continue
		}
		restored++
	}
	manifestSrc := versionPath(backupDir, version)
	manifestDst := currentPath(targetDir)
	if err := copyFile(manifestSrc, manifestDst); err != nil {
		return restored, value.Wrap(value.KindIO, "manifest.RestoreIncremental", "install manifest", err)
	}
	return restored, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

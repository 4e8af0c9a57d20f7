package lsm

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/motedb/motedb/internal/catalog"
	"github.com/motedb/motedb/internal/config"
	"github.com/motedb/motedb/internal/logging"
	"github.com/motedb/motedb/internal/manifest"
	"github.com/motedb/motedb/internal/memtable"
	"github.com/motedb/motedb/internal/rowkey"
	"github.com/motedb/motedb/internal/value"
	"github.com/motedb/motedb/internal/vectorindex"
)

// Engine is MoteDB's per-database storage engine: one memtable per
// table, a set of immutable data SST files shared across all tables'
// row-key ranges, and the manifest that commits them atomically (spec
// §4.1-§4.3, §6).
type Engine struct {
	mu sync.RWMutex

	dir     string
	cfg     config.Config
	reg     *catalog.Registry
	current *manifest.Manifest
	nextVer uint64

	memtables map[string]*memtable.Table               // table name -> memtable
	dataFiles []*DataSSTReader                         // primary row-key -> row store, newest last
	vecIdx    map[string]*vectorindex.VectorIndex       // table name -> level-1/level-2 tiers

	log *logging.Logger
}

// VectorIndex returns the table's level-1/level-2 vector index tiers,
// if the table carries a vector column and a flush has populated them.
func (e *Engine) VectorIndex(tableName string) (*vectorindex.VectorIndex, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	vi, ok := e.vecIdx[tableName]
	return vi, ok
}

// Open loads (or initializes) the manifest and registry at dir and
// returns a ready-to-use Engine.
func Open(dir string, cfg config.Config) (*Engine, error) {
	reg, err := catalog.Open(dir)
	if err != nil {
		return nil, err
	}
	m, err := manifest.ReadCurrent(dir)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		dir:       dir,
		cfg:       cfg,
		reg:       reg,
		current:   m,
		nextVer:   m.Version + 1,
		memtables: make(map[string]*memtable.Table),
		vecIdx:    make(map[string]*vectorindex.VectorIndex),
		log:       logging.Get(logging.CategoryStorage),
	}

	if m.LSMFile != "" {
		r, err := OpenDataSST(filepath.Join(dir, m.LSMFile))
		if err != nil {
			return nil, err
		}
		e.dataFiles = append(e.dataFiles, r)
	}

	if err := e.reopenVectorIndexes(m); err != nil {
		return nil, err
	}
	return e, nil
}

// reopenVectorIndexes rebuilds one *vectorindex.VectorIndex per
// vector-indexed table from the manifest's recorded level-1/level-2
// SST names (spec §2's "atomic flush produces new data SST + graph
// SST + new manifest version" — this is the read side of that commit).
func (e *Engine) reopenVectorIndexes(m *manifest.Manifest) error {
	for _, name := range e.reg.TableNames() {
		table, ok := e.reg.Table(name)
		if !ok {
			continue
		}
		vecCol, ok := table.IndexByKind(catalog.IndexVector)
		if !ok {
			continue
		}
		pos, ok := table.ColumnPosition(vecCol.Column)
		if !ok {
			continue
		}
		dim := table.Columns[pos].Dim

		var level1, level2 []string
		for _, f := range decodeFileList(m.VectorIndexes[name]) {
			full := filepath.Join(e.dir, f)
			if strings.HasPrefix(f, "l2_") {
				level2 = append(level2, full)
			} else {
				level1 = append(level1, full)
			}
		}

		vi, err := vectorindex.OpenVectorIndex(name, e.dir, dim, vectorindex.ParamsFromConfig(e.cfg.Graph), level1, level2)
		if err != nil {
			return err
		}
		e.vecIdx[name] = vi
	}
	return nil
}

func decodeFileList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func encodeFileList(files []string) string {
	return strings.Join(files, ",")
}

// Schema returns the named table's schema, the form the executor needs
// for plan selection and projection.
func (e *Engine) Schema(tableName string) (*catalog.TableSchema, error) {
	return e.table(tableName)
}

func (e *Engine) table(name string) (*catalog.TableSchema, error) {
	t, ok := e.reg.Table(name)
	if !ok {
		return nil, value.New(value.KindTableNotFound, "lsm.Engine", name)
	}
	return t, nil
}

func (e *Engine) tableID(name string) (uint16, error) {
	id, ok := e.reg.TableID(name)
	if !ok {
		return 0, value.New(value.KindTableNotFound, "lsm.Engine", name)
	}
	return id, nil
}

func (e *Engine) memtableFor(table *catalog.TableSchema) *memtable.Table {
	if t, ok := e.memtables[table.Name]; ok {
		return t
	}
	var t *memtable.Table
	if vecIdx, ok := table.IndexByKind(catalog.IndexVector); ok {
		if pos, ok := table.ColumnPosition(vecIdx.Column); ok {
			t = memtable.NewWithVector(e.cfg.Memtable, table.Columns[pos].Dim, e.cfg.Graph)
		}
	}
	if t == nil {
		t = memtable.New(e.cfg.Memtable)
	}
	e.memtables[table.Name] = t
	return t
}

// Put inserts or overwrites one row in table, keyed by rowID.
func (e *Engine) Put(tableName string, rowID uint64, row value.Row, timestampMicros int64) error {
	table, err := e.table(tableName)
	if err != nil {
		return err
	}
	tid, err := e.tableID(tableName)
	if err != nil {
		return err
	}
	key := rowkey.Encode(tid, rowID)

	e.mu.Lock()
	defer e.mu.Unlock()

	var vec []float32
	if vecIdx, ok := table.IndexByKind(catalog.IndexVector); ok {
		if pos, ok := table.ColumnPosition(vecIdx.Column); ok && pos < len(row) && !row[pos].IsNull() {
			vec = row[pos].Vec
		}
	}

	mt := e.memtableFor(table)
	return mt.Put(key, row, vec, timestampMicros)
}

// Delete tombstones rowID in table.
func (e *Engine) Delete(tableName string, rowID uint64, timestampMicros int64) error {
	table, err := e.table(tableName)
	if err != nil {
		return err
	}
	tid, err := e.tableID(tableName)
	if err != nil {
		return err
	}
	key := rowkey.Encode(tid, rowID)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.memtableFor(table).Delete(key, timestampMicros)
	return nil
}

// Get resolves rowID in table: memtable first (most recent), then
// data SST files newest-to-oldest.
func (e *Engine) Get(tableName string, rowID uint64) (value.Row, bool, error) {
	tid, err := e.tableID(tableName)
	if err != nil {
		return nil, false, err
	}
	key := rowkey.Encode(tid, rowID)

	e.mu.RLock()
	defer e.mu.RUnlock()

	if mt, ok := e.memtables[tableName]; ok {
		if entry, found := mt.Get(key); found {
			if entry.Deleted {
				return nil, false, nil
			}
			return entry.Row, true, nil
		}
	}

	for i := len(e.dataFiles) - 1; i >= 0; i-- {
		rec, found, err := e.dataFiles[i].Get(key)
		if err != nil {
			return nil, false, err
		}
		if found {
			if rec.Deleted {
				return nil, false, nil
			}
			return rec.Row, true, nil
		}
	}
	return nil, false, nil
}

// Scan invokes fn for every live row of table in ascending row-id
// order, merging the memtable and every data SST file. The memtable
// is scanned first since its entries are the most recent.
func (e *Engine) Scan(tableName string, fn func(rowID uint64, row value.Row) bool) error {
	tid, err := e.tableID(tableName)
	if err != nil {
		return err
	}
	start := rowkey.RangeStart(tid)
	end := rowkey.RangeEnd(tid)

	e.mu.RLock()
	defer e.mu.RUnlock()

	seen := make(map[rowkey.Key]bool)
	cont := true

	visit := func(key rowkey.Key, deleted bool, row value.Row) {
		if !cont || seen[key] {
			return
		}
		seen[key] = true
		if deleted {
			return
		}
		if !fn(key.RowID(), row) {
			cont = false
		}
	}

	if mt, ok := e.memtables[tableName]; ok {
		mt.Scan(start, end, func(k rowkey.Key, entry memtable.Entry) bool {
			visit(k, entry.Deleted, entry.Row)
			return cont
		})
	}
	for i := len(e.dataFiles) - 1; i >= 0 && cont; i-- {
		if serr := e.dataFiles[i].Scan(start, end, func(rec dataRecord) (bool, error) {
			visit(rec.Key, rec.Deleted, rec.Row)
			return cont, nil
		}); serr != nil {
			return serr
		}
	}
	return nil
}

// VectorSearch runs a k-NN search against table's level-0 (in-memory)
// vector graph. Level-1/level-2 tiers for a table are owned by a
// separate vectorindex.VectorIndex the executor queries directly once
// a flush has occurred. A known table with no memtable (nothing written
// since the last flush or open) yields no level-0 candidates.
func (e *Engine) VectorSearch(tableName string, query []float32, k, ef int) ([]vectorindex.Candidate, error) {
	if _, err := e.tableID(tableName); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	mt, ok := e.memtables[tableName]
	if !ok {
		return nil, nil
	}
	return mt.VectorSearch(query, k, ef)
}

// Flush writes every memtable's rows (including tombstones) into one
// new data SST file, freezes every vector-bearing memtable's fresh
// graph into its own level-1 graph SST, and commits both through one
// manifest version (spec §2's "atomic flush produces new data SST +
// graph SST + new manifest version", §6 Flush Process), then resets
// every memtable to empty.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var records []dataRecord
	for _, mt := range e.memtables {
		mt.ScanAll(func(key rowkey.Key, entry memtable.Entry) bool {
			records = append(records, dataRecord{Key: key, Deleted: entry.Deleted, Row: entry.Row, Timestamp: entry.Timestamp})
			return true
		})
	}

	vectorFiles, err := e.flushVectorGraphsLocked()
	if err != nil {
		return err
	}

	if len(records) == 0 && len(vectorFiles) == 0 {
		return nil
	}

	m := *e.current
	version := e.nextVer
	e.nextVer++
	m.Version = version

	wroteData := len(records) > 0
	if wroteData {
		sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
		fname := fmt.Sprintf("data_%06d.sst", version)
		path := filepath.Join(e.dir, fname)
		if err := WriteDataSST(path, records); err != nil {
			return err
		}
		m.LSMFile = fname
	}

	if m.VectorIndexes == nil {
		m.VectorIndexes = make(map[string]string)
	}
	for table, fname := range vectorFiles {
		existing := decodeFileList(m.VectorIndexes[table])
		m.VectorIndexes[table] = encodeFileList(append(existing, fname))
	}

	m.CalculateChecksum()
	if err := m.WriteAtomic(e.dir); err != nil {
		return err
	}

	if wroteData {
		r, err := OpenDataSST(filepath.Join(e.dir, m.LSMFile))
		if err != nil {
			return err
		}
		e.dataFiles = append(e.dataFiles, r)
	}
	e.current = &m
	e.memtables = make(map[string]*memtable.Table)

	e.log.Info("flushed %d records and %d vector graphs at version %d", len(records), len(vectorFiles), version)
	return nil
}

// flushVectorGraphsLocked exports every vector-bearing memtable's
// embedded Fresh graph into a new level-1 SST via that table's
// VectorIndex (creating one, lazily, the first time a table flushes a
// graph), returning the new file's base name keyed by table name.
// Called with e.mu held.
func (e *Engine) flushVectorGraphsLocked() (map[string]string, error) {
	out := make(map[string]string)
	for name, mt := range e.memtables {
		g := mt.VectorGraph()
		if g == nil || g.Len() == 0 {
			continue
		}
		vi, err := e.vectorIndexForLocked(name)
		if err != nil {
			return nil, err
		}
		path, err := vi.IngestGraph(g)
		if err != nil {
			return nil, err
		}
		if path != "" {
			out[name] = filepath.Base(path)
		}
	}
	return out, nil
}

func (e *Engine) vectorIndexForLocked(tableName string) (*vectorindex.VectorIndex, error) {
	if vi, ok := e.vecIdx[tableName]; ok {
		return vi, nil
	}
	table, err := e.table(tableName)
	if err != nil {
		return nil, err
	}
	vecCol, ok := table.IndexByKind(catalog.IndexVector)
	if !ok {
		return nil, value.New(value.KindInvalidData, "lsm.Engine.vectorIndexForLocked", "table has no vector index")
	}
	pos, _ := table.ColumnPosition(vecCol.Column)
	vi, err := vectorindex.OpenVectorIndex(tableName, e.dir, table.Columns[pos].Dim, vectorindex.ParamsFromConfig(e.cfg.Graph), nil, nil)
	if err != nil {
		return nil, err
	}
	e.vecIdx[tableName] = vi
	return vi, nil
}

// CompactVectorIndex merges table's accumulated level-1 graph SSTs
// (plus any existing level-2) into one new level-2 file once the
// level-1 count reaches the configured threshold (spec §4.4.3), and
// commits the replacement through a new manifest version. Reports
// compacted=false with no error when the table has no vector index or
// hasn't crossed the threshold yet.
func (e *Engine) CompactVectorIndex(tableName string) (compacted bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	vi, ok := e.vecIdx[tableName]
	if !ok || !vi.ShouldCompact(e.cfg.Compaction.Level1FileThreshold) {
		return false, nil
	}

	version := e.nextVer
	e.nextVer++
	fname := fmt.Sprintf("l2_%06d.sst", version)
	path := filepath.Join(e.dir, fname)
	if err := vi.Compact(path); err != nil {
		return false, err
	}

	m := *e.current
	m.Version = version
	if m.VectorIndexes == nil {
		m.VectorIndexes = make(map[string]string)
	}
	m.VectorIndexes[tableName] = fname
	m.CalculateChecksum()
	if err := m.WriteAtomic(e.dir); err != nil {
		return false, err
	}
	e.current = &m

	e.log.Info("compacted vector index for %s into %s", tableName, fname)
	return true, nil
}

// TableNames returns every table name known to the catalog registry.
func (e *Engine) TableNames() []string {
	return e.reg.TableNames()
}

// Close releases every mmapped data SST file.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for _, r := range e.dataFiles {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

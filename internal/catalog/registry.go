package catalog

import (
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/motedb/motedb/internal/value"
)

// tableID is assigned on table creation and encoded into every composite
// row-key for that table (see internal/rowkey).
type tableID = uint16

// persistedRegistry is the on-disk shape of catalog.bin (§6): a single
// JSON document rewritten wholesale on every mutation, matching the
// spec's "persistence is a full-file rewrite under the lock" rule (§5).
type persistedRegistry struct {
	Tables    map[string]*TableSchema `json:"tables"`
	TableIDs  map[string]tableID      `json:"table_ids"`
	NextID    tableID                 `json:"next_id"`
	IndexMap  map[string][2]string    `json:"index_map"` // index name -> [table, column]
}

// Registry is the in-memory table schema catalog, guarded by a single
// readers-writer lock as specified in §5.
type Registry struct {
	mu   sync.RWMutex
	data persistedRegistry
	path string
}

// Open loads (or initializes) the catalog at <dataDir>/catalog.bin.
func Open(dataDir string) (*Registry, error) {
	path := filepath.Join(dataDir, "catalog.bin")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, value.Wrap(value.KindIO, "catalog.Open", "mkdir data dir", err)
	}
	r := &Registry{path: path, data: persistedRegistry{
		Tables:   make(map[string]*TableSchema),
		TableIDs: make(map[string]tableID),
		IndexMap: make(map[string][2]string),
		NextID:   1,
	}}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, value.Wrap(value.KindIO, "catalog.Open", "read catalog.bin", err)
	}
	if len(raw) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(raw, &r.data); err != nil {
		return nil, value.Wrap(value.KindSerialization, "catalog.Open", "decode catalog.bin", err)
	}
	for _, s := range r.data.Tables {
		s.RebuildColumnMap()
	}
	if r.data.NextID == 0 {
		r.data.NextID = 1
	}
	return r, nil
}

func (r *Registry) persistLocked() error {
	raw, err := json.MarshalIndent(&r.data, "", "  ")
	if err != nil {
		return value.Wrap(value.KindSerialization, "catalog.persist", "encode catalog.bin", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return value.Wrap(value.KindIO, "catalog.persist", "write catalog.bin.tmp", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return value.Wrap(value.KindIO, "catalog.persist", "rename catalog.bin", err)
	}
	return nil
}

// CreateTable registers a new schema and assigns it a stable table id.
// A DDL failure here (e.g. a duplicate index name) may leave no partial
// state: validation happens before any mutation (§7).
func (r *Registry) CreateTable(schema *TableSchema) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data.Tables[schema.Name]; exists {
		return value.New(value.KindQuery, "catalog.CreateTable", "table already exists: "+schema.Name)
	}
	for _, idx := range schema.Indexes {
		if _, exists := r.data.IndexMap[idx.Name]; exists {
			return value.New(value.KindIndex, "catalog.CreateTable", "index already exists: "+idx.Name)
		}
	}

	schema.RebuildColumnMap()
	r.data.Tables[schema.Name] = schema
	r.data.TableIDs[schema.Name] = r.data.NextID
	r.data.NextID++
	for _, idx := range schema.Indexes {
		r.data.IndexMap[idx.Name] = [2]string{idx.Table, idx.Column}
	}
	return r.persistLocked()
}

// DropTable removes a schema and its indexes.
func (r *Registry) DropTable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	schema, ok := r.data.Tables[name]
	if !ok {
		return value.New(value.KindTableNotFound, "catalog.DropTable", "table not found: "+name)
	}
	for _, idx := range schema.Indexes {
		delete(r.data.IndexMap, idx.Name)
	}
	delete(r.data.Tables, name)
	delete(r.data.TableIDs, name)
	return r.persistLocked()
}

// AddColumn implements the spec's "add-column" online schema evolution
// allowance (§1 Non-goals: nothing beyond add-column).
func (r *Registry) AddColumn(table string, col ColumnDef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	schema, ok := r.data.Tables[table]
	if !ok {
		return value.New(value.KindTableNotFound, "catalog.AddColumn", "table not found: "+table)
	}
	col.Position = len(schema.Columns)
	schema.Columns = append(schema.Columns, col)
	schema.RebuildColumnMap()
	return r.persistLocked()
}

// CreateIndex registers a secondary index on an existing table.
func (r *Registry) CreateIndex(idx IndexDef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	schema, ok := r.data.Tables[idx.Table]
	if !ok {
		return value.New(value.KindTableNotFound, "catalog.CreateIndex", "table not found: "+idx.Table)
	}
	if _, exists := r.data.IndexMap[idx.Name]; exists {
		return value.New(value.KindIndex, "catalog.CreateIndex", "index already exists: "+idx.Name)
	}
	schema.AddIndex(idx)
	r.data.IndexMap[idx.Name] = [2]string{idx.Table, idx.Column}
	return r.persistLocked()
}

// Table returns the schema for a named table.
func (r *Registry) Table(name string) (*TableSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.data.Tables[name]
	return s, ok
}

// TableID returns the stable numeric id assigned to a table.
func (r *Registry) TableID(name string) (tableID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.data.TableIDs[name]
	return id, ok
}

// TableNames lists all registered tables (for SHOW TABLES).
func (r *Registry) TableNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.data.Tables))
	for n := range r.data.Tables {
		names = append(names, n)
	}
	return names
}

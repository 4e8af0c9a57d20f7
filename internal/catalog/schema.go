// Package catalog holds table schema definitions and the in-memory
// registry (schema catalog) guarding them, grounded on the original
// source's src/types/table.rs and src/catalog/registry.rs.
package catalog

import (
	"fmt"

	"github.com/motedb/motedb/internal/value"
)

// ColumnType is the declared type of a schema column.
type ColumnType int

const (
	ColInteger ColumnType = iota
	ColFloat
	ColBoolean
	ColText
	ColVector
	ColPoint
	ColPolyline
	ColPolygon
	ColTextDoc
	ColTimestamp
)

func (t ColumnType) String() string {
	names := [...]string{"INTEGER", "FLOAT", "BOOLEAN", "TEXT", "VECTOR", "POINT", "POLYLINE", "POLYGON", "TEXTDOC", "TIMESTAMP"}
	if int(t) < len(names) {
		return names[t]
	}
	return "UNKNOWN"
}

// ColumnDef describes one schema column.
type ColumnDef struct {
	Name     string
	Type     ColumnType
	Nullable bool
	Position int
	// Dim is the declared vector dimension; meaningful only when
	// Type == ColVector.
	Dim int
}

// IndexKind enumerates the secondary index families the spec names.
type IndexKind int

const (
	IndexBTree IndexKind = iota
	IndexFullText
	IndexVector
	IndexSpatial
	IndexTimestamp
)

func (k IndexKind) String() string {
	names := [...]string{"btree", "fulltext", "vector", "spatial", "timestamp"}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// IndexDef describes one secondary (or primary-key auto-) index.
type IndexDef struct {
	Name   string
	Table  string
	Column string
	Kind   IndexKind
	Dim    int // for IndexVector
}

// TableSchema is the ordered column list plus the optional primary key
// and secondary index definitions for one table.
type TableSchema struct {
	Name         string
	Columns      []ColumnDef
	PrimaryKey   string // empty if none
	Indexes      []IndexDef
	columnByName map[string]int
}

// NewTableSchema builds a schema from an ordered column list, validating
// the invariants from spec §3: dense 0..n positions, unique names.
func NewTableSchema(name string, columns []ColumnDef) (*TableSchema, error) {
	seen := make(map[string]bool, len(columns))
	for i, c := range columns {
		if c.Position != i {
			return nil, fmt.Errorf("catalog: column %q at index %d has non-dense position %d", c.Name, i, c.Position)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("catalog: duplicate column name %q", c.Name)
		}
		seen[c.Name] = true
	}
	s := &TableSchema{Name: name, Columns: columns}
	s.RebuildColumnMap()
	return s, nil
}

// RebuildColumnMap rebuilds the name->position index after
// deserialization, per spec §3.
func (s *TableSchema) RebuildColumnMap() {
	s.columnByName = make(map[string]int, len(s.Columns))
	for _, c := range s.Columns {
		s.columnByName[c.Name] = c.Position
	}
}

// WithPrimaryKey sets the primary-key column, validating that it exists.
func (s *TableSchema) WithPrimaryKey(col string) error {
	if _, ok := s.columnByName[col]; !ok {
		return fmt.Errorf("catalog: primary key column %q not found in table %q", col, s.Name)
	}
	s.PrimaryKey = col
	return nil
}

// ColumnPosition returns the position of a named column.
func (s *TableSchema) ColumnPosition(name string) (int, bool) {
	if s.columnByName == nil {
		s.RebuildColumnMap()
	}
	p, ok := s.columnByName[name]
	return p, ok
}

// Column returns the ColumnDef for a named column.
func (s *TableSchema) Column(name string) (ColumnDef, bool) {
	p, ok := s.ColumnPosition(name)
	if !ok {
		return ColumnDef{}, false
	}
	return s.Columns[p], true
}

// AddIndex appends a secondary index definition.
func (s *TableSchema) AddIndex(idx IndexDef) {
	s.Indexes = append(s.Indexes, idx)
}

// IndexOn returns the first index defined over the named column, if any.
func (s *TableSchema) IndexOn(column string) (IndexDef, bool) {
	for _, idx := range s.Indexes {
		if idx.Column == column {
			return idx, true
		}
	}
	return IndexDef{}, false
}

// IndexByKind returns the first index of the given kind, if any (a
// table is expected to carry at most one vector index per spec §3).
func (s *TableSchema) IndexByKind(kind IndexKind) (IndexDef, bool) {
	for _, idx := range s.Indexes {
		if idx.Kind == kind {
			return idx, true
		}
	}
	return IndexDef{}, false
}

// ValidateRow checks a row against the schema: column count, nullability,
// and per-column type agreement (integers are accepted where float is
// declared, widening as the original implementation does).
func (s *TableSchema) ValidateRow(row value.Row) error {
	if len(row) != len(s.Columns) {
		return fmt.Errorf("catalog: row has %d values, schema %q has %d columns", len(row), s.Name, len(s.Columns))
	}
	for i, c := range s.Columns {
		v := row[i]
		if v.IsNull() {
			if !c.Nullable {
				return fmt.Errorf("catalog: column %q is not nullable", c.Name)
			}
			continue
		}
		if !typeMatches(c, v) {
			return fmt.Errorf("catalog: column %q expected %s, got %s", c.Name, c.Type, v.Tag)
		}
	}
	return nil
}

func typeMatches(c ColumnDef, v value.Value) bool {
	switch c.Type {
	case ColInteger:
		return v.Tag == value.TypeInteger
	case ColFloat:
		return v.Tag == value.TypeFloat || v.Tag == value.TypeInteger
	case ColBoolean:
		return v.Tag == value.TypeBool
	case ColText:
		return v.Tag == value.TypeText
	case ColTextDoc:
		return v.Tag == value.TypeTextDoc
	case ColVector:
		return v.Tag == value.TypeVector && (c.Dim == 0 || len(v.Vec) == c.Dim)
	case ColPoint:
		return v.Tag == value.TypePoint
	case ColPolyline:
		return v.Tag == value.TypePolyline
	case ColPolygon:
		return v.Tag == value.TypePolygon
	case ColTimestamp:
		return v.Tag == value.TypeTimestamp
	default:
		return false
	}
}

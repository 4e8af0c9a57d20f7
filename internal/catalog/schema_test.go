package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motedb/motedb/internal/value"
)

func testColumns() []ColumnDef {
	return []ColumnDef{
		{Name: "id", Type: ColInteger, Position: 0},
		{Name: "name", Type: ColText, Position: 1, Nullable: true},
		{Name: "embedding", Type: ColVector, Position: 2, Dim: 3, Nullable: true},
	}
}

func TestNewTableSchemaRejectsNonDensePositions(t *testing.T) {
	_, err := NewTableSchema("t", []ColumnDef{{Name: "a", Position: 1}})
	require.Error(t, err)
}

func TestNewTableSchemaRejectsDuplicateNames(t *testing.T) {
	_, err := NewTableSchema("t", []ColumnDef{
		{Name: "a", Position: 0},
		{Name: "a", Position: 1},
	})
	require.Error(t, err)
}

func TestWithPrimaryKeyValidatesColumnExists(t *testing.T) {
	s, err := NewTableSchema("items", testColumns())
	require.NoError(t, err)

	require.Error(t, s.WithPrimaryKey("nope"))
	require.NoError(t, s.WithPrimaryKey("id"))
	assert.Equal(t, "id", s.PrimaryKey)
}

func TestColumnPositionAndColumn(t *testing.T) {
	s, err := NewTableSchema("items", testColumns())
	require.NoError(t, err)

	pos, ok := s.ColumnPosition("name")
	require.True(t, ok)
	assert.Equal(t, 1, pos)

	_, ok = s.ColumnPosition("missing")
	assert.False(t, ok)

	col, ok := s.Column("embedding")
	require.True(t, ok)
	assert.Equal(t, ColVector, col.Type)
}

func TestValidateRowChecksArityNullabilityAndType(t *testing.T) {
	s, err := NewTableSchema("items", testColumns())
	require.NoError(t, err)

	require.NoError(t, s.ValidateRow(value.Row{value.Integer(1), value.Text("a"), value.Vector([]float32{1, 2, 3})}))
	require.NoError(t, s.ValidateRow(value.Row{value.Integer(1), value.Null(), value.Null()}))

	assert.Error(t, s.ValidateRow(value.Row{value.Integer(1)}))
	assert.Error(t, s.ValidateRow(value.Row{value.Text("not an int"), value.Null(), value.Null()}))
	assert.Error(t, s.ValidateRow(value.Row{value.Integer(1), value.Null(), value.Vector([]float32{1, 2})}))
}

func TestValidateRowWidensIntegerToFloat(t *testing.T) {
	s, err := NewTableSchema("prices", []ColumnDef{
		{Name: "amount", Type: ColFloat, Position: 0},
	})
	require.NoError(t, err)
	assert.NoError(t, s.ValidateRow(value.Row{value.Integer(5)}))
	assert.NoError(t, s.ValidateRow(value.Row{value.Float(5.5)}))
}

func TestIndexOnAndIndexByKind(t *testing.T) {
	s, err := NewTableSchema("items", testColumns())
	require.NoError(t, err)
	s.AddIndex(IndexDef{Name: "items_embedding", Table: "items", Column: "embedding", Kind: IndexVector, Dim: 3})

	idx, ok := s.IndexOn("embedding")
	require.True(t, ok)
	assert.Equal(t, IndexVector, idx.Kind)

	_, ok = s.IndexByKind(IndexFullText)
	assert.False(t, ok)
}

func TestRegistryCreateAndLookupTable(t *testing.T) {
	dir := t.TempDir()
	reg, err := Open(dir)
	require.NoError(t, err)

	s, err := NewTableSchema("items", testColumns())
	require.NoError(t, err)
	require.NoError(t, reg.CreateTable(s))

	require.Error(t, reg.CreateTable(s))

	got, ok := reg.Table("items")
	require.True(t, ok)
	assert.Equal(t, "items", got.Name)

	id, ok := reg.TableID("items")
	require.True(t, ok)
	assert.Equal(t, uint16(1), id)
}

func TestRegistryPersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	reg, err := Open(dir)
	require.NoError(t, err)
	s, err := NewTableSchema("items", testColumns())
	require.NoError(t, err)
	require.NoError(t, reg.CreateTable(s))

	reopened, err := Open(dir)
	require.NoError(t, err)
	got, ok := reopened.Table("items")
	require.True(t, ok)
	pos, ok := got.ColumnPosition("embedding")
	require.True(t, ok)
	assert.Equal(t, 2, pos)
}

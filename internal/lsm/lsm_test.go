package lsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motedb/motedb/internal/catalog"
	"github.com/motedb/motedb/internal/config"
	"github.com/motedb/motedb/internal/value"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	cfg := *config.DefaultConfig()

	reg, err := catalog.Open(dir)
	require.NoError(t, err)

	schema, err := catalog.NewTableSchema("docs", []catalog.ColumnDef{
		{Name: "id", Type: catalog.ColInteger, Position: 0},
		{Name: "body", Type: catalog.ColText, Position: 1},
	})
	require.NoError(t, err)
	require.NoError(t, reg.CreateTable(schema))

	e, err := Open(dir, cfg)
	require.NoError(t, err)
	return e
}

func TestPutGetRoundTrip(t *testing.T) {
	e := newTestEngine(t)

	row := value.Row{value.Integer(1), value.Text("hello")}
	require.NoError(t, e.Put("docs", 1, row, 1000))

	got, found, err := e.Get("docs", 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, row, got)

	_, found, err = e.Get("docs", 2)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteTombstonesRow(t *testing.T) {
	e := newTestEngine(t)

	row := value.Row{value.Integer(1), value.Text("hello")}
	require.NoError(t, e.Put("docs", 1, row, 1000))
	require.NoError(t, e.Delete("docs", 1, 2000))

	_, found, err := e.Get("docs", 1)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetUnknownTableErrors(t *testing.T) {
	e := newTestEngine(t)
	_, _, err := e.Get("ghost", 1)
	require.Error(t, err)
}

func TestScanMergesMemtableAndFlushedFiles(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.Put("docs", 1, value.Row{value.Integer(1), value.Text("a")}, 1000))
	require.NoError(t, e.Put("docs", 2, value.Row{value.Integer(2), value.Text("b")}, 1000))
	require.NoError(t, e.Flush())

	require.NoError(t, e.Put("docs", 3, value.Row{value.Integer(3), value.Text("c")}, 2000))
	require.NoError(t, e.Delete("docs", 1, 3000))

	seen := map[uint64]value.Row{}
	require.NoError(t, e.Scan("docs", func(rowID uint64, row value.Row) bool {
		seen[rowID] = row
		return true
	}))

	assert.Len(t, seen, 2)
	assert.Contains(t, seen, uint64(2))
	assert.Contains(t, seen, uint64(3))
	assert.NotContains(t, seen, uint64(1))
}

func TestFlushIsNoopWhenEmpty(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Flush())
	assert.Empty(t, e.dataFiles)
}

func TestCloseReleasesDataFiles(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Put("docs", 1, value.Row{value.Integer(1), value.Text("a")}, 1000))
	require.NoError(t, e.Flush())
	require.NoError(t, e.Close())
}

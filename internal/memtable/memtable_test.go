package memtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motedb/motedb/internal/config"
	"github.com/motedb/motedb/internal/rowkey"
	"github.com/motedb/motedb/internal/value"
)

func testConfig() (config.MemtableConfig, config.GraphConfig) {
	c := config.DefaultConfig()
	return c.Memtable, c.Graph
}

func TestPutGetPlain(t *testing.T) {
	mc, _ := testConfig()
	tbl := New(mc)

	key := rowkey.Encode(1, 1)
	row := value.Row{value.Integer(1), value.Text("a")}
	require.NoError(t, tbl.Put(key, row, nil, 1000))

	entry, ok := tbl.Get(key)
	require.True(t, ok)
	assert.Equal(t, row, entry.Row)
	assert.False(t, entry.Deleted)
}

func TestDeleteLeavesTombstone(t *testing.T) {
	mc, _ := testConfig()
	tbl := New(mc)
	key := rowkey.Encode(1, 1)

	require.NoError(t, tbl.Put(key, value.Row{value.Integer(1)}, nil, 1000))
	tbl.Delete(key, 2000)

	entry, ok := tbl.Get(key)
	require.True(t, ok)
	assert.True(t, entry.Deleted)
}

func TestGetMissingKey(t *testing.T) {
	mc, _ := testConfig()
	tbl := New(mc)
	_, ok := tbl.Get(rowkey.Encode(1, 99))
	assert.False(t, ok)
}

func TestScanRangeAscending(t *testing.T) {
	mc, _ := testConfig()
	tbl := New(mc)

	for _, id := range []uint64{3, 1, 2} {
		require.NoError(t, tbl.Put(rowkey.Encode(1, id), value.Row{value.Integer(int64(id))}, nil, 1000))
	}

	var seen []uint64
	tbl.Scan(rowkey.RangeStart(1), rowkey.RangeEnd(1), func(k rowkey.Key, e Entry) bool {
		seen = append(seen, k.RowID())
		return true
	})
	assert.Equal(t, []uint64{1, 2, 3}, seen)
}

func TestShouldFlushRespectsByteBudget(t *testing.T) {
	tbl := New(config.MemtableConfig{ByteBudget: 1})
	require.NoError(t, tbl.Put(rowkey.Encode(1, 1), value.Row{value.Text("a long string value")}, nil, 1000))
	assert.True(t, tbl.ShouldFlush())
}

func TestVectorSearchRequiresVectorColumn(t *testing.T) {
	mc, _ := testConfig()
	tbl := New(mc)
	_, err := tbl.VectorSearch([]float32{1, 2, 3}, 1, 10)
	require.Error(t, err)
}

func TestPutRejectsWrongVectorDimension(t *testing.T) {
	mc, gc := testConfig()
	tbl := NewWithVector(mc, 4, gc)
	err := tbl.Put(rowkey.Encode(1, 1), value.Row{value.Integer(1)}, []float32{1, 2}, 1000)
	require.Error(t, err)
}

func TestPutWithVectorAndSearch(t *testing.T) {
	mc, gc := testConfig()
	tbl := NewWithVector(mc, 3, gc)

	vectors := map[uint64][]float32{
		1: {1, 0, 0},
		2: {0, 1, 0},
		3: {0.9, 0.1, 0},
	}
	for id, v := range vectors {
		require.NoError(t, tbl.Put(rowkey.Encode(1, id), value.Row{value.Integer(int64(id))}, v, 1000))
	}

	results, err := tbl.VectorSearch([]float32{1, 0, 0}, 2, 50)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.True(t, results[0].ID == 1 || results[0].ID == 3)
}

func TestDeleteMarksVectorDeleted(t *testing.T) {
	mc, gc := testConfig()
	tbl := NewWithVector(mc, 3, gc)
	key := rowkey.Encode(1, 1)
	require.NoError(t, tbl.Put(key, value.Row{value.Integer(1)}, []float32{1, 0, 0}, 1000))
	tbl.Delete(key, 2000)

	results, err := tbl.VectorSearch([]float32{1, 0, 0}, 5, 50)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, uint64(1), r.ID)
	}
}

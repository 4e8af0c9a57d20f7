package lsm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motedb/motedb/internal/rowkey"
	"github.com/motedb/motedb/internal/value"
)

func TestWriteOpenDataSSTRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data_000001.sst")

	records := []dataRecord{
		{Key: rowkey.Encode(1, 1), Row: value.Row{value.Integer(1), value.Text("a")}, Timestamp: 100},
		{Key: rowkey.Encode(1, 2), Row: value.Row{value.Integer(2), value.Text("b")}, Timestamp: 200},
		{Key: rowkey.Encode(1, 3), Deleted: true, Timestamp: 300},
	}
	require.NoError(t, WriteDataSST(path, records))

	r, err := OpenDataSST(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 3, r.Len())

	rec, found, err := r.Get(rowkey.Encode(1, 2))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, value.Row{value.Integer(2), value.Text("b")}, rec.Row)

	rec, found, err = r.Get(rowkey.Encode(1, 3))
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, rec.Deleted)

	_, found, err = r.Get(rowkey.Encode(1, 99))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDataSSTScanRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data_000001.sst")

	var records []dataRecord
	for i := uint64(1); i <= 5; i++ {
		records = append(records, dataRecord{
			Key: rowkey.Encode(1, i),
			Row: value.Row{value.Integer(int64(i))},
		})
	}
	require.NoError(t, WriteDataSST(path, records))

	r, err := OpenDataSST(path)
	require.NoError(t, err)
	defer r.Close()

	var ids []uint64
	require.NoError(t, r.Scan(rowkey.RangeStart(1), rowkey.RangeEnd(1), func(rec dataRecord) (bool, error) {
		ids = append(ids, rec.Key.RowID())
		return true, nil
	}))
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, ids)
}

func TestOpenDataSSTRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.sst")
	require.NoError(t, os.WriteFile(path, []byte("not a valid sst file at all"), 0o644))

	_, err := OpenDataSST(path)
	require.Error(t, err)
}

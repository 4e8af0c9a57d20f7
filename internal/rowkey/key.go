// Package rowkey encodes the composite (table_id, row_id) row-key into
// the single 64-bit key the LSM layer orders on, per spec §3: a table
// identifier is combined with a monotonically increasing per-table
// row-id so that all keys of one table form a contiguous range, ordered
// by row-id within.
package rowkey

// Key is the 64-bit composite row-key the LSM storage layer sees. The
// high 16 bits are the table id, the low 48 bits are the row id —
// enough headroom (2^48 rows/table) while keeping the table id in the
// high bits so a per-table range scan is a single contiguous interval
// [Encode(table,0), Encode(table+1,0)).
type Key uint64

const (
	tableIDBits = 16
	rowIDBits   = 64 - tableIDBits
	rowIDMask   = (uint64(1) << rowIDBits) - 1
)

// Encode packs a table id and row id into one ordered key.
func Encode(tableID uint16, rowID uint64) Key {
	return Key(uint64(tableID)<<rowIDBits | (rowID & rowIDMask))
}

// TableID extracts the table id from a composite key.
func (k Key) TableID() uint16 {
	return uint16(uint64(k) >> rowIDBits)
}

// RowID extracts the row id from a composite key.
func (k Key) RowID() uint64 {
	return uint64(k) & rowIDMask
}

// RangeStart returns the smallest key belonging to tableID, i.e. the
// start of that table's contiguous range.
func RangeStart(tableID uint16) Key { return Encode(tableID, 0) }

// RangeEnd returns the exclusive end of tableID's contiguous range
// (the start of the next table's range).
func RangeEnd(tableID uint16) Key { return Encode(tableID+1, 0) }

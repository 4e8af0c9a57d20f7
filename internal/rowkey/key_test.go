package rowkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	k := Encode(7, 12345)
	assert.Equal(t, uint16(7), k.TableID())
	assert.Equal(t, uint64(12345), k.RowID())
}

func TestKeysOrderByTableThenRowID(t *testing.T) {
	a := Encode(1, 999999)
	b := Encode(2, 0)
	assert.Less(t, a, b)

	c := Encode(5, 10)
	d := Encode(5, 11)
	assert.Less(t, c, d)
}

func TestRangeBoundsCoverExactlyOneTable(t *testing.T) {
	start := RangeStart(3)
	end := RangeEnd(3)
	assert.Less(t, start, end)

	inside := Encode(3, 42)
	assert.GreaterOrEqual(t, inside, start)
	assert.Less(t, inside, end)

	outside := Encode(4, 0)
	assert.GreaterOrEqual(t, outside, end)
}

func TestRowIDMaskDropsTableIDOverflow(t *testing.T) {
	k := Encode(1, rowIDMask+5)
	assert.Equal(t, uint64(4), k.RowID())
}

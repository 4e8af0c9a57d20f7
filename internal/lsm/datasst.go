// Package lsm ties the unified memtable, the manifest commit protocol,
// and the primary row-key -> value SST files into one per-table
// storage engine (spec §4.1-§4.3).
package lsm

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"sort"

	"github.com/edsrzf/mmap-go"
	"github.com/goccy/go-json"

	"github.com/motedb/motedb/internal/rowkey"
	"github.com/motedb/motedb/internal/value"
)

const (
	dataMagic      = "DSST"
	dataVersion    = uint32(1)
	dataHeaderSize = 32
	dataFooterSize = 8
)

// dataRecord is one on-disk row: its key, a tombstone flag, and the
// JSON-encoded Row (empty when deleted).
type dataRecord struct {
	Key       rowkey.Key
	Deleted   bool
	Row       value.Row
	Timestamp int64
}

// WriteDataSST serializes records (already sorted ascending by Key) to
// path: a 32-byte header, one variable-length record per row, and an
// 8-byte footer carrying a CRC32 over everything before it.
func WriteDataSST(path string, records []dataRecord) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return value.Wrap(value.KindIO, "lsm.WriteDataSST", "create", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	crc := crc32.NewIEEE()
	write := func(p []byte) error {
		if _, werr := f.Write(p); werr != nil {
			return werr
		}
		crc.Write(p)
		return nil
	}

	header := make([]byte, dataHeaderSize)
	copy(header[0:4], dataMagic)
	binary.LittleEndian.PutUint32(header[4:8], dataVersion)
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(records)))
	if werr := write(header); werr != nil {
		return value.Wrap(value.KindIO, "lsm.WriteDataSST", "write header", werr)
	}

	for _, rec := range records {
		payload, jerr := json.Marshal(rec.Row)
		if jerr != nil {
			return value.Wrap(value.KindSerialization, "lsm.WriteDataSST", "marshal row", jerr)
		}
		entry := make([]byte, 8+1+8+4+len(payload))
		binary.LittleEndian.PutUint64(entry[0:8], uint64(rec.Key))
		if rec.Deleted {
			entry[8] = 1
		}
		binary.LittleEndian.PutUint64(entry[9:17], uint64(rec.Timestamp))
		binary.LittleEndian.PutUint32(entry[17:21], uint32(len(payload)))
		copy(entry[21:], payload)
		if werr := write(entry); werr != nil {
			return value.Wrap(value.KindIO, "lsm.WriteDataSST", "write record", werr)
		}
	}

	footer := make([]byte, dataFooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc.Sum32())
	if _, werr := f.Write(footer); werr != nil {
		return value.Wrap(value.KindIO, "lsm.WriteDataSST", "write footer", werr)
	}
	return f.Sync()
}

// DataSSTReader is a memory-mapped, read-only view over one primary
// data SST file, indexed by an in-memory offset table built at open
// time for O(log n) point lookups.
type DataSSTReader struct {
	file *os.File
	data mmap.MMap

	keys    []rowkey.Key
	offsets []int // byte offset of each record within data
}

// OpenDataSST mmaps path, validates the header/footer, and builds the
// sorted key -> offset index.
func OpenDataSST(path string) (r *DataSSTReader, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, value.Wrap(value.KindFileNotFound, "lsm.OpenDataSST", path, err)
	}
	defer func() {
		if err != nil {
			f.Close()
		}
	}()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, value.Wrap(value.KindIO, "lsm.OpenDataSST", "mmap", err)
	}
	if len(m) < dataHeaderSize+dataFooterSize || string(m[0:4]) != dataMagic {
		return nil, value.New(value.KindCorruption, "lsm.OpenDataSST", "bad magic or truncated file")
	}
	version := binary.LittleEndian.Uint32(m[4:8])
	if version != dataVersion {
		return nil, value.New(value.KindCorruption, "lsm.OpenDataSST", "unsupported version")
	}
	count := binary.LittleEndian.Uint64(m[8:16])

	footerOff := len(m) - dataFooterSize
	want := binary.LittleEndian.Uint32(m[footerOff : footerOff+4])
	got := crc32.ChecksumIEEE(m[:footerOff])
	if want != got {
		return nil, value.New(value.KindCorruption, "lsm.OpenDataSST", "checksum mismatch")
	}

	r = &DataSSTReader{file: f, data: m}
	off := dataHeaderSize
	for i := uint64(0); i < count; i++ {
		if off+21 > footerOff {
			return nil, value.New(value.KindCorruption, "lsm.OpenDataSST", "out-of-bounds record offset")
		}
		key := rowkey.Key(binary.LittleEndian.Uint64(m[off : off+8]))
		payloadLen := binary.LittleEndian.Uint32(m[off+17 : off+21])
		r.keys = append(r.keys, key)
		r.offsets = append(r.offsets, off)
		off += 21 + int(payloadLen)
	}
	return r, nil
}

func (r *DataSSTReader) Close() error {
	if err := r.data.Unmap(); err != nil {
		return value.Wrap(value.KindIO, "lsm.DataSSTReader.Close", "unmap", err)
	}
	return r.file.Close()
}

func (r *DataSSTReader) recordAt(off int) (dataRecord, error) {
	deleted := r.data[off+8] == 1
	timestamp := int64(binary.LittleEndian.Uint64(r.data[off+9 : off+17]))
	payloadLen := binary.LittleEndian.Uint32(r.data[off+17 : off+21])
	start := off + 21
	end := start + int(payloadLen)
	if end > len(r.data) {
		return dataRecord{}, value.New(value.KindCorruption, "lsm.DataSSTReader", "out-of-bounds payload")
	}
	var row value.Row
	if !deleted {
		if err := json.Unmarshal(r.data[start:end], &row); err != nil {
			return dataRecord{}, value.Wrap(value.KindCorruption, "lsm.DataSSTReader", "unmarshal row", err)
		}
	}
	return dataRecord{Key: rowkey.Key(binary.LittleEndian.Uint64(r.data[off : off+8])), Deleted: deleted, Row: row, Timestamp: timestamp}, nil
}

// Get performs a binary search for key among this file's sorted
// records.
func (r *DataSSTReader) Get(key rowkey.Key) (dataRecord, bool, error) {
	i := sort.Search(len(r.keys), func(i int) bool { return r.keys[i] >= key })
	if i >= len(r.keys) || r.keys[i] != key {
		return dataRecord{}, false, nil
	}
	rec, err := r.recordAt(r.offsets[i])
	return rec, err == nil, err
}

// Scan invokes fn for every record with key in [start, end), ascending.
func (r *DataSSTReader) Scan(start, end rowkey.Key, fn func(dataRecord) (bool, error)) error {
	i := sort.Search(len(r.keys), func(i int) bool { return r.keys[i] >= start })
	for ; i < len(r.keys) && r.keys[i] < end; i++ {
		rec, err := r.recordAt(r.offsets[i])
		if err != nil {
			return err
		}
		cont, err := fn(rec)
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return nil
}

// Len returns the number of records in the file (live + tombstones).
func (r *DataSSTReader) Len() int { return len(r.keys) }

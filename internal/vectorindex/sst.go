package vectorindex

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/motedb/motedb/internal/value"
)

const (
	sstMagic      = "VSST"
	sstVersion    = uint32(4)
	sstHeaderSize = 256
	sstFooterSize = 64
)

// SSTExport is the in-memory shape handed to WriteSST: every node of
// one tier, ready to be serialized per the bit-exact layout in spec §6.
type SSTExport struct {
	Dim       int
	Medoid    uint64
	IDs       []uint64    // sorted ascending
	Deleted   []bool      // parallel to IDs
	Vectors   [][]float32 // parallel to IDs
	Neighbors [][]uint64  // parallel to IDs
}

// WriteSST serializes export to path using the exact byte layout from
// spec §6: a 256-byte header, an id-list block, a deleted-bitmap
// block, a scalar-quantized block, an optional raw-vectors block, an
// adjacency block, and a 64-byte footer carrying a CRC32 over
// everything that precedes it.
func WriteSST(path string, export SSTExport, includeRaw bool) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return value.Wrap(value.KindIO, "vectorindex.WriteSST", "create file", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(f)
	crc := crc32.NewIEEE()
	tee := func(p []byte) {
		w.Write(p)
		crc.Write(p)
	}

	n := len(export.IDs)
	dim := export.Dim

	idListOff := uint64(sstHeaderSize)
	bitmapOff := idListOff + uint64(n)*8
	bitmapLen := (n + 7) / 8
	quantOff := bitmapOff + uint64(bitmapLen)
	quantLen := uint64(dim)*4*2 + uint64(n)*uint64(dim)
	rawOff := uint64(0)
	adjOffBase := quantOff + quantLen
	if includeRaw {
		rawOff = quantOff + quantLen
		adjOffBase = rawOff + uint64(n)*uint64(dim)*4
	}

	header := make([]byte, sstHeaderSize)
	copy(header[0:4], sstMagic)
	binary.LittleEndian.PutUint32(header[4:8], sstVersion)
	binary.LittleEndian.PutUint64(header[8:16], uint64(n))
	binary.LittleEndian.PutUint32(header[16:20], uint32(dim))
	binary.LittleEndian.PutUint64(header[20:28], export.Medoid)
	binary.LittleEndian.PutUint64(header[28:36], idListOff)
	binary.LittleEndian.PutUint64(header[36:44], bitmapOff)
	binary.LittleEndian.PutUint64(header[44:52], quantOff)
	binary.LittleEndian.PutUint64(header[52:60], rawOff)
	binary.LittleEndian.PutUint64(header[60:68], adjOffBase)
	binary.LittleEndian.PutUint64(header[68:76], 0) // footer offset patched in after the fact
	tee(header)

	idBuf := make([]byte, 8)
	for _, id := range export.IDs {
		binary.LittleEndian.PutUint64(idBuf, id)
		tee(idBuf)
	}

	bitmap := make([]byte, bitmapLen)
	for i, del := range export.Deleted {
		if del {
			bitmap[i/8] |= 1 << uint(i%8)
		}
	}
	tee(bitmap)

	q := QuantizeVectors(export.Vectors, dim)
	f32 := make([]byte, 4)
	for _, c := range q.Centroid {
		binary.LittleEndian.PutUint32(f32, math.Float32bits(c))
		tee(f32)
	}
	for _, s := range q.Scale {
		binary.LittleEndian.PutUint32(f32, math.Float32bits(s))
		tee(f32)
	}
	for _, code := range q.Codes {
		tee(code)
	}

	if includeRaw {
		for _, vec := range export.Vectors {
			for _, v := range vec {
				binary.LittleEndian.PutUint32(f32, math.Float32bits(v))
				tee(f32)
			}
		}
	}

	// adjacency: offsets table first (each entry is the byte offset of
	// that node's degree+neighbours, relative to the start of the
	// adjacency block), then the per-node bodies themselves.
	adjTable := make([]byte, n*8)
	var adjBody []byte
	bodyOffset := uint64(n) * 8
	for i, nb := range export.Neighbors {
		binary.LittleEndian.PutUint64(adjTable[i*8:i*8+8], bodyOffset)
		degBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(degBuf, uint32(len(nb)))
		adjBody = append(adjBody, degBuf...)
		for _, id := range nb {
			idb := make([]byte, 8)
			binary.LittleEndian.PutUint64(idb, id)
			adjBody = append(adjBody, idb...)
		}
		bodyOffset += 4 + uint64(len(nb))*8
	}
	tee(adjTable)
	tee(adjBody)

	footerOff := adjOffBase + uint64(len(adjTable)) + uint64(len(adjBody))
	sum := crc.Sum32()
	footer := make([]byte, sstFooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], sum)
	if _, werr := w.Write(footer); werr != nil {
		return value.Wrap(value.KindIO, "vectorindex.WriteSST", "write footer", werr)
	}

	if ferr := w.Flush(); ferr != nil {
		return value.Wrap(value.KindIO, "vectorindex.WriteSST", "flush", ferr)
	}
	footerOffBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(footerOffBuf, footerOff)
	if _, werr := f.WriteAt(footerOffBuf, 68); werr != nil {
		return value.Wrap(value.KindIO, "vectorindex.WriteSST", "patch footer offset", werr)
	}
	return f.Sync()
}

// SSTReader is a read-only, memory-mapped view over a level-1 or
// level-2 vector SST file (spec §4.4.5: "SST scans use memory-mapped
// reads").
type SSTReader struct {
	file    *os.File
	data    mmap.MMap
	version uint32

	NodeCount int
	Dim       int
	Medoid    uint64

	idListOff uint64
	bitmapOff uint64
	quantOff  uint64
	rawOff    uint64
	adjOff    uint64
}

// OpenSST mmaps path and validates the magic, version, and footer
// checksum before returning a reader (spec §4.4.5: "SST magic /
// version mismatch -> Corruption").
func OpenSST(path string) (r *SSTReader, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, value.Wrap(value.KindFileNotFound, "vectorindex.OpenSST", path, err)
	}
	defer func() {
		if err != nil {
			f.Close()
		}
	}()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, value.Wrap(value.KindIO, "vectorindex.OpenSST", "mmap", err)
	}
	if len(m) < sstHeaderSize+sstFooterSize {
		return nil, value.New(value.KindCorruption, "vectorindex.OpenSST", "file too small")
	}
	if string(m[0:4]) != sstMagic {
		return nil, value.New(value.KindCorruption, "vectorindex.OpenSST", "bad magic")
	}
	version := binary.LittleEndian.Uint32(m[4:8])
	if version < 2 || version > sstVersion {
		return nil, value.New(value.KindCorruption, "vectorindex.OpenSST", "unsupported version")
	}

	r = &SSTReader{
		file:      f,
		data:      m,
		version:   version,
		NodeCount: int(binary.LittleEndian.Uint64(m[8:16])),
		Dim:       int(binary.LittleEndian.Uint32(m[16:20])),
		Medoid:    binary.LittleEndian.Uint64(m[20:28]),
		idListOff: binary.LittleEndian.Uint64(m[28:36]),
		bitmapOff: binary.LittleEndian.Uint64(m[36:44]),
		quantOff:  binary.LittleEndian.Uint64(m[44:52]),
		rawOff:    binary.LittleEndian.Uint64(m[52:60]),
		adjOff:    binary.LittleEndian.Uint64(m[60:68]),
	}

	footerOff := binary.LittleEndian.Uint64(m[68:76])
	if footerOff == 0 || uint64(len(m)) < footerOff+sstFooterSize {
		return nil, value.New(value.KindCorruption, "vectorindex.OpenSST", "bad footer offset")
	}
	want := binary.LittleEndian.Uint32(m[footerOff : footerOff+4])
	got := crc32.ChecksumIEEE(m[:footerOff])
	if want != got {
		return nil, value.New(value.KindCorruption, "vectorindex.OpenSST", "checksum mismatch")
	}
	return r, nil
}

func (r *SSTReader) Close() error {
	if err := r.data.Unmap(); err != nil {
		return value.Wrap(value.KindIO, "vectorindex.SSTReader.Close", "unmap", err)
	}
	return r.file.Close()
}

func (r *SSTReader) checkBounds(off, size uint64) error {
	if off+size > uint64(len(r.data)) {
		return value.New(value.KindCorruption, "vectorindex.SSTReader", "out-of-bounds offset")
	}
	return nil
}

// IDs returns the sorted row-id list.
func (r *SSTReader) IDs() ([]uint64, error) {
	size := uint64(r.NodeCount) * 8
	if err := r.checkBounds(r.idListOff, size); err != nil {
		return nil, err
	}
	out := make([]uint64, r.NodeCount)
	for i := 0; i < r.NodeCount; i++ {
		off := r.idListOff + uint64(i)*8
		out[i] = binary.LittleEndian.Uint64(r.data[off : off+8])
	}
	return out, nil
}

// IsDeleted reports whether node i (by position in IDs()) is
// soft-deleted. Older-version files with no bitmap block report false.
func (r *SSTReader) IsDeleted(i int) (bool, error) {
	if r.bitmapOff == 0 {
		return false, nil
	}
	byteOff := r.bitmapOff + uint64(i/8)
	if err := r.checkBounds(byteOff, 1); err != nil {
		return false, err
	}
	return r.data[byteOff]&(1<<uint(i%8)) != 0, nil
}

// HasRawVectors reports whether this file carries a raw-vectors block
// (absent in some version-2/3 files per spec §6).
func (r *SSTReader) HasRawVectors() bool { return r.rawOff != 0 }

// QuantizedCode returns the raw quantization code bytes for node i,
// plus the shared centroid/scale used to dequantize it.
func (r *SSTReader) QuantizedCode(i int) (code []byte, centroid, scale []float32, err error) {
	dim := uint64(r.Dim)
	centroidOff := r.quantOff
	scaleOff := centroidOff + dim*4
	codesOff := scaleOff + dim*4
	nodeCodeOff := codesOff + uint64(i)*dim

	if err := r.checkBounds(nodeCodeOff, dim); err != nil {
		return nil, nil, nil, err
	}
	centroid = make([]float32, r.Dim)
	scale = make([]float32, r.Dim)
	for d := 0; d < r.Dim; d++ {
		centroid[d] = math.Float32frombits(binary.LittleEndian.Uint32(r.data[centroidOff+uint64(d)*4 : centroidOff+uint64(d)*4+4]))
		scale[d] = math.Float32frombits(binary.LittleEndian.Uint32(r.data[scaleOff+uint64(d)*4 : scaleOff+uint64(d)*4+4]))
	}
	code = r.data[nodeCodeOff : nodeCodeOff+dim]
	return code, centroid, scale, nil
}

// RawVector returns node i's exact float vector, used for the rerank
// pass (spec §4.4.4). Returns ok=false when the file has no raw block.
func (r *SSTReader) RawVector(i int) (vec []float32, ok bool, err error) {
	if r.rawOff == 0 {
		return nil, false, nil
	}
	dim := uint64(r.Dim)
	off := r.rawOff + uint64(i)*dim*4
	if err := r.checkBounds(off, dim*4); err != nil {
		return nil, false, err
	}
	vec = make([]float32, r.Dim)
	for d := 0; d < r.Dim; d++ {
		vec[d] = math.Float32frombits(binary.LittleEndian.Uint32(r.data[off+uint64(d)*4 : off+uint64(d)*4+4]))
	}
	return vec, true, nil
}

// Neighbors returns node i's adjacency list. The offsets table stores
// each node's body offset relative to the start of the adjacency
// block (see WriteSST), so the absolute position is adjOff+relOffset.
func (r *SSTReader) Neighbors(i int) ([]uint64, error) {
	tableOff := r.adjOff + uint64(i)*8
	if err := r.checkBounds(tableOff, 8); err != nil {
		return nil, err
	}
	relOff := binary.LittleEndian.Uint64(r.data[tableOff : tableOff+8])
	absOff := r.adjOff + relOff
	if err := r.checkBounds(absOff, 4); err != nil {
		return nil, err
	}
	degree := binary.LittleEndian.Uint32(r.data[absOff : absOff+4])
	start := absOff + 4
	if err := r.checkBounds(start, uint64(degree)*8); err != nil {
		return nil, err
	}
	out := make([]uint64, degree)
	for j := uint32(0); j < degree; j++ {
		off := start + uint64(j)*8
		out[j] = binary.LittleEndian.Uint64(r.data[off : off+8])
	}
	return out, nil
}

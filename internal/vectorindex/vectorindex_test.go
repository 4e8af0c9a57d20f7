package vectorindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestMain verifies the errgroup-based parallel batch insert
// (fresh.go) and the rest of the package leave no goroutines running
// past test completion.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testParams() Params {
	return Params{
		MaxDegree:       8,
		EfConstruct:     32,
		EfSearch:        32,
		Alpha:           1.2,
		AnchorCount:     3,
		AggressivePrune: true,
		BruteForceUntil: 100,
		MaxNodes:        10000,
	}
}

func sampleVectors(n, dim int) [][]float32 {
	vecs := make([][]float32, n)
	for i := 0; i < n; i++ {
		v := make([]float32, dim)
		for d := 0; d < dim; d++ {
			v[d] = float32((i*31+d*7)%97) / 97.0
		}
		vecs[i] = v
	}
	return vecs
}

func TestWriteOpenSSTRoundTrip(t *testing.T) {
	dim := 4
	vecs := sampleVectors(5, dim)
	export := SSTExport{
		Dim:    dim,
		Medoid: 1,
		IDs:    []uint64{1, 2, 3, 4, 5},
		Deleted: []bool{false, false, true, false, false},
		Vectors:   vecs,
		Neighbors: [][]uint64{{2, 3}, {1, 3}, {1, 2}, {1}, {1}},
	}

	path := filepath.Join(t.TempDir(), "l1_000001.sst")
	require.NoError(t, WriteSST(path, export, true))

	r, err := OpenSST(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 5, r.NodeCount)
	assert.Equal(t, dim, r.Dim)
	assert.Equal(t, uint64(1), r.Medoid)

	ids, err := r.IDs()
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, ids)

	del, err := r.IsDeleted(2)
	require.NoError(t, err)
	assert.True(t, del)

	del, err = r.IsDeleted(0)
	require.NoError(t, err)
	assert.False(t, del)

	require.True(t, r.HasRawVectors())
	raw, ok, err := r.RawVector(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDeltaSlice(t, vecs[0], raw, 1e-4)

	nb, err := r.Neighbors(1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, nb)
}

func TestOpenSSTRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.sst")
	require.NoError(t, WriteSST(path, SSTExport{Dim: 2, IDs: []uint64{1}, Deleted: []bool{false}, Vectors: [][]float32{{1, 2}}, Neighbors: [][]uint64{{}}}, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] = 'X'
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = OpenSST(path)
	require.Error(t, err)
}

func TestSearchSSTReturnsNearest(t *testing.T) {
	dim := 3
	export := SSTExport{
		Dim:    dim,
		Medoid: 1,
		IDs:    []uint64{1, 2, 3},
		Deleted: []bool{false, false, false},
		Vectors: [][]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0.95, 0.05, 0},
		},
		Neighbors: [][]uint64{{2, 3}, {1, 3}, {1, 2}},
	}
	path := filepath.Join(t.TempDir(), "l1_000001.sst")
	require.NoError(t, WriteSST(path, export, true))

	r, err := OpenSST(path)
	require.NoError(t, err)
	defer r.Close()

	results, err := SearchSST(r, []float32{1, 0, 0}, 2, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.True(t, results[0].ID == 1 || results[0].ID == 3)
}

func TestSearchSSTFiltersDeleted(t *testing.T) {
	dim := 2
	export := SSTExport{
		Dim:    dim,
		Medoid: 1,
		IDs:    []uint64{1, 2},
		Deleted: []bool{false, true},
		Vectors:   [][]float32{{1, 0}, {0.99, 0.01}},
		Neighbors: [][]uint64{{2}, {1}},
	}
	path := filepath.Join(t.TempDir(), "l1_000001.sst")
	require.NoError(t, WriteSST(path, export, true))

	r, err := OpenSST(path)
	require.NoError(t, err)
	defer r.Close()

	results, err := SearchSST(r, []float32{1, 0}, 2, 10)
	require.NoError(t, err)
	for _, c := range results {
		assert.NotEqual(t, uint64(2), c.ID)
	}
}

func TestRebuildGraphBoundsDegreeWithoutSelfLoops(t *testing.T) {
	vecs := sampleVectors(20, 4)
	nodes := make([]mergedNode, len(vecs))
	for i, v := range vecs {
		nodes[i] = mergedNode{ID: uint64(i + 1), Vector: v}
	}

	rebuilt, medoid, err := RebuildGraph(nodes, testParams())
	require.NoError(t, err)
	assert.NotZero(t, medoid)
	assert.Len(t, rebuilt, 20)
	for id, nb := range rebuilt {
		assert.LessOrEqual(t, len(nb), testParams().MaxDegree)
		for _, n := range nb {
			assert.NotEqual(t, id, n)
		}
	}
}

func TestRebuildGraphEmptyInput(t *testing.T) {
	rebuilt, medoid, err := RebuildGraph(nil, testParams())
	require.NoError(t, err)
	assert.Empty(t, rebuilt)
	assert.Zero(t, medoid)
}

func TestVectorIndexInsertAndSearch(t *testing.T) {
	dir := t.TempDir()
	vi, err := OpenVectorIndex("embeddings", dir, 3, testParams(), nil, nil)
	require.NoError(t, err)
	defer vi.Close()

	require.NoError(t, vi.Insert(1, []float32{1, 0, 0}))
	require.NoError(t, vi.Insert(2, []float32{0, 1, 0}))
	require.NoError(t, vi.Insert(3, []float32{0.9, 0.1, 0}))

	results, err := vi.Search([]float32{1, 0, 0}, 2, 20)
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestVectorIndexFlushAndCompact(t *testing.T) {
	dir := t.TempDir()
	vi, err := OpenVectorIndex("embeddings", dir, 3, testParams(), nil, nil)
	require.NoError(t, err)
	defer vi.Close()

	for i, v := range sampleVectors(10, 3) {
		require.NoError(t, vi.Insert(uint64(i+1), v))
	}
	path, err := vi.Flush()
	require.NoError(t, err)
	assert.NotEmpty(t, path)
	assert.True(t, vi.ShouldCompact(1))

	outPath := filepath.Join(dir, "l2_000001.sst")
	require.NoError(t, vi.Compact(outPath))

	results, err := vi.Search([]float32{0, 0, 0}, 3, 20)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestVectorIndexMarkDeletedExcludesFromSearch(t *testing.T) {
	dir := t.TempDir()
	vi, err := OpenVectorIndex("embeddings", dir, 2, testParams(), nil, nil)
	require.NoError(t, err)
	defer vi.Close()

	require.NoError(t, vi.Insert(1, []float32{1, 0}))
	require.NoError(t, vi.Insert(2, []float32{0, 1}))
	vi.MarkDeleted(1)

	results, err := vi.Search([]float32{1, 0}, 2, 20)
	require.NoError(t, err)
	for _, c := range results {
		assert.NotEqual(t, uint64(1), c.ID)
	}
}

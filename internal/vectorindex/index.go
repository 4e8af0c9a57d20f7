package vectorindex

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/motedb/motedb/internal/logging"
	"github.com/motedb/motedb/internal/value"
)

// VectorIndex ties together the three tiers described in spec §4.4.1:
// the in-memory Fresh graph (level 0), a set of immutable level-1 SST
// files produced by flushes, and an optional merged level-2 file
// produced by compaction.
type VectorIndex struct {
	mu sync.RWMutex

	Name   string
	Dim    int
	Dir    string
	params Params

	fresh  *FreshGraph
	level1 []*SSTReader
	level2 *SSTReader

	nextFileSeq int
	log         *logging.Logger
}

// OpenVectorIndex constructs a VectorIndex rooted at dir, reopening
// any existing level-1/level-2 files whose names match the index.
func OpenVectorIndex(name, dir string, dim int, params Params, existingLevel1, existingLevel2 []string) (*VectorIndex, error) {
	vi := &VectorIndex{
		Name:   name,
		Dim:    dim,
		Dir:    dir,
		params: params,
		fresh:  NewFreshGraph(dim, params),
		log:    logging.Get(logging.CategoryVector),
	}
	for _, p := range existingLevel1 {
		r, err := OpenSST(p)
		if err != nil {
			return nil, err
		}
		vi.level1 = append(vi.level1, r)
	}
	if len(existingLevel2) > 0 {
		r, err := OpenSST(existingLevel2[0])
		if err != nil {
			return nil, err
		}
		vi.level2 = r
	}
	return vi, nil
}

// Insert adds one vector to the level-0 fresh graph.
func (vi *VectorIndex) Insert(id uint64, vec []float32) error {
	vi.mu.Lock()
	defer vi.mu.Unlock()
	return vi.fresh.Insert(id, vec, vi.params.maxNodes())
}

// BatchInsert adds many vectors to the level-0 fresh graph in one
// build pass (spec §4.4.2).
func (vi *VectorIndex) BatchInsert(ids []uint64, vectors [][]float32) error {
	vi.mu.Lock()
	defer vi.mu.Unlock()
	return vi.fresh.BatchInsert(ids, vectors, vi.params.maxNodes())
}

// MarkDeleted soft-deletes id in the level-0 graph if present; deletes
// against level-1/level-2 files are recorded by the memtable's
// tombstone and resolved at the next compaction, since SST files are
// immutable.
func (vi *VectorIndex) MarkDeleted(id uint64) {
	vi.mu.Lock()
	defer vi.mu.Unlock()
	vi.fresh.MarkDeleted(id)
}

// Search runs the tiered search protocol of spec §4.4.4 across every
// tier and merges the results.
func (vi *VectorIndex) Search(query []float32, k, ef int) ([]Candidate, error) {
	if len(query) != vi.Dim {
		return nil, value.New(value.KindInvalidData, "vectorindex.VectorIndex.Search", "vector dimension mismatch")
	}
	vi.mu.RLock()
	defer vi.mu.RUnlock()

	var tiers []tierCandidates

	level0 := vi.fresh.Search(query, k, ef)
	tiers = append(tiers, tierCandidates(level0))

	for _, r := range vi.level1 {
		c, err := SearchSST(r, query, k, ef)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, tierCandidates(c))
	}
	if vi.level2 != nil {
		c, err := SearchSST(vi.level2, query, k, ef)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, tierCandidates(c))
	}

	return MergeTiers(tiers, k), nil
}

// Flush freezes the current level-0 fresh graph into a new immutable
// level-1 SST file and resets level 0 to empty (spec §4.4.1).
func (vi *VectorIndex) Flush() (path string, err error) {
	vi.mu.Lock()
	defer vi.mu.Unlock()

	if vi.fresh.Len() == 0 {
		return "", nil
	}
	path, err = vi.writeLevel1Locked(vi.fresh.Export())
	if err != nil {
		return "", err
	}
	vi.fresh = NewFreshGraph(vi.Dim, vi.params)
	return path, nil
}

// IngestGraph freezes an externally-owned fresh graph into a new
// level-1 SST without touching this index's own level-0 graph. The
// engine calls this at flush time against the per-table memtable's
// embedded Fresh graph (spec §4.2's "row data and vector graph share
// one flush cadence"), since live writes land there rather than in
// vi.fresh.
func (vi *VectorIndex) IngestGraph(g *FreshGraph) (path string, err error) {
	vi.mu.Lock()
	defer vi.mu.Unlock()
	if g == nil || g.Len() == 0 {
		return "", nil
	}
	return vi.writeLevel1Locked(g.Export())
}

func (vi *VectorIndex) writeLevel1Locked(export SSTExport) (path string, err error) {
	vi.nextFileSeq++
	fname := fmt.Sprintf("l1_%06d.sst", vi.nextFileSeq)
	path = filepath.Join(vi.Dir, fname)
	if err := WriteSST(path, export, true); err != nil {
		return "", err
	}

	r, err := OpenSST(path)
	if err != nil {
		return "", err
	}
	vi.level1 = append(vi.level1, r)
	vi.log.Info("flushed fresh graph to %s (%d nodes)", path, len(export.IDs))
	return path, nil
}

// ShouldCompact reports whether the level-1 file count has reached
// the configured threshold (spec §4.4.3, default 4).
func (vi *VectorIndex) ShouldCompact(threshold int) bool {
	vi.mu.RLock()
	defer vi.mu.RUnlock()
	return len(vi.level1) >= threshold
}

// Compact merges every level-1 file plus the existing level-2 (if any)
// into one new level-2 file via graph rebuild, then drops the
// superseded level-1 files from the index (spec §4.4.3): their readers
// are closed, but no file is deleted. outPath names the new level-2
// file; recording it in the manifest is left to the caller.
func (vi *VectorIndex) Compact(outPath string) (err error) {
	vi.mu.Lock()
	defer vi.mu.Unlock()

	merged, err := vi.mergeNonDeletedLocked()
	if err != nil {
		return err
	}
	if len(merged) == 0 {
		return nil
	}

	rebuilt, medoid, err := RebuildGraph(merged, vi.params)
	if err != nil {
		return err
	}

	export := SSTExport{Dim: vi.Dim, Medoid: medoid}
	for _, nd := range merged {
		export.IDs = append(export.IDs, nd.ID)
		export.Vectors = append(export.Vectors, nd.Vector)
		export.Neighbors = append(export.Neighbors, rebuilt[nd.ID])
		export.Deleted = append(export.Deleted, false)
	}

	if werr := WriteSST(outPath, export, true); werr != nil {
		return werr
	}
	newReader, rerr := OpenSST(outPath)
	if rerr != nil {
		return rerr
	}

	oldLevel1 := vi.level1
	oldLevel2 := vi.level2
	vi.level1 = nil
	vi.level2 = newReader

	for _, r := range oldLevel1 {
		r.Close()
	}
	if oldLevel2 != nil {
		oldLevel2.Close()
	}
	vi.log.Info("compacted vector index into %s (%d nodes)", outPath, len(merged))
	return nil
}

// mergeNonDeletedLocked implements spec §4.4.3 steps 1-2: export every
// non-deleted node from level-1 and level-2, deduplicating by row-id
// with later data winning (level-2 is scanned first, so a later-
// scanned level-1 entry always overrides it — level-1 files are newer
// than the existing level-2 by construction).
func (vi *VectorIndex) mergeNonDeletedLocked() ([]mergedNode, error) {
	byID := make(map[uint64]mergedNode)

	scan := func(r *SSTReader) error {
		ids, err := r.IDs()
		if err != nil {
			return err
		}
		for i, id := range ids {
			deleted, derr := r.IsDeleted(i)
			if derr != nil {
				return derr
			}
			if deleted {
				delete(byID, id)
				continue
			}
			vec, ok, verr := r.RawVector(i)
			if verr != nil {
				return verr
			}
			if !ok {
				continue // coarse-only legacy file; cannot contribute a raw vector
			}
			byID[id] = mergedNode{ID: id, Vector: vec}
		}
		return nil
	}

	if vi.level2 != nil {
		if err := scan(vi.level2); err != nil {
			return nil, err
		}
	}
	for _, r := range vi.level1 {
		if err := scan(r); err != nil {
			return nil, err
		}
	}

	out := make([]mergedNode, 0, len(byID))
	for _, nd := range byID {
		out = append(out, nd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close releases mmapped level-1/level-2 files.
func (vi *VectorIndex) Close() error {
	vi.mu.Lock()
	defer vi.mu.Unlock()
	var firstErr error
	for _, r := range vi.level1 {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if vi.level2 != nil {
		if err := vi.level2.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p Params) maxNodes() int { return p.MaxNodesOrDefault() }

// MaxNodesOrDefault returns the configured node cap, or a 1M fallback
// when unset.
func (p Params) MaxNodesOrDefault() int {
	if p.MaxNodes <= 0 {
		return 1 << 20
	}
	return p.MaxNodes
}

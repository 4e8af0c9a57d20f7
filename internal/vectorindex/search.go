package vectorindex

import (
	"container/heap"

	"github.com/motedb/motedb/internal/distance"
	"github.com/motedb/motedb/internal/value"
)

// mergeOverfetch returns how many candidates to request per tier: at
// least 2-3x k, floored at k+30 to protect tail latency (spec §4.4.4).
func mergeOverfetch(k int) int {
	of := k * 3
	if of < k+30 {
		of = k + 30
	}
	return of
}

// tierCandidates is one tier's contribution to a multi-tier search:
// Candidate.Dist here is always an exact L2 distance, after any
// coarse-quantized rerank the tier performs internally.
type tierCandidates []Candidate

// MergeTiers merges per-tier candidate sets into a single min-heap
// keyed by distance, deduplicating by row-id on pop (first occurrence
// wins, since every tier already reranked to exact distance), and
// returns the first k (spec §4.4.4 step 2).
func MergeTiers(tiers []tierCandidates, k int) []Candidate {
	h := &candidateMinHeap{}
	for _, t := range tiers {
		for _, c := range t {
			heap.Push(h, c)
		}
	}

	seen := make(map[uint64]bool, k)
	out := make([]Candidate, 0, k)
	for h.Len() > 0 && len(out) < k {
		c := heap.Pop(h).(Candidate)
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

// SearchSST runs the graph-tier search protocol (spec §4.4.4) against
// one immutable level-1/level-2 file: multi-entry-point greedy search
// (medoid + one uniform sample) sharing a visited set, coarse
// quantized distance during expansion, then an exact rerank against
// raw vectors (when present) on the surviving candidates before
// returning, filtering soft-deleted ids throughout.
func SearchSST(r *SSTReader, query []float32, k, ef int) ([]Candidate, error) {
	if r.NodeCount == 0 {
		return nil, nil
	}
	if len(query) != r.Dim {
		return nil, value.New(value.KindInvalidData, "vectorindex.SearchSST", "vector dimension mismatch")
	}

	ids, err := r.IDs()
	if err != nil {
		return nil, err
	}
	idToPos := make(map[uint64]int, len(ids))
	for i, id := range ids {
		idToPos[id] = i
	}

	medoidPos, ok := idToPos[r.Medoid]
	if !ok {
		medoidPos = 0
	}
	seeds := []int{medoidPos}
	if r.NodeCount > 1 {
		sample := uniformSamplePos(r.NodeCount, medoidPos)
		seeds = append(seeds, sample)
	}

	coarseDist := func(pos int) (float32, error) {
		code, centroid, scale, err := r.QuantizedCode(pos)
		if err != nil {
			return 0, err
		}
		return CoarseL2Squared(query, code, centroid, scale), nil
	}

	visited := make(map[int]bool)
	kept := &candidateMaxHeap{}

	for _, seed := range seeds {
		frontier := &candidateMinHeap{}
		if !visited[seed] {
			visited[seed] = true
			d, derr := coarseDist(seed)
			if derr != nil {
				return nil, derr
			}
			c := Candidate{ID: ids[seed], Dist: d}
			heap.Push(frontier, c)
			heap.Push(kept, c)
		}

		for frontier.Len() > 0 {
			cur := heap.Pop(frontier).(Candidate)
			if kept.Len() >= ef {
				worst := (*kept)[0]
				if cur.Dist > worst.Dist {
					continue
				}
			}
			curPos := idToPos[cur.ID]
			nb, nerr := r.Neighbors(curPos)
			if nerr != nil {
				return nil, nerr
			}
			for _, nid := range nb {
				npos, ok := idToPos[nid]
				if !ok || visited[npos] {
					continue
				}
				visited[npos] = true
				d, derr := coarseDist(npos)
				if derr != nil {
					return nil, derr
				}
				c := Candidate{ID: nid, Dist: d}
				heap.Push(frontier, c)
				heap.Push(kept, c)
				if kept.Len() > ef {
					heap.Pop(kept)
				}
			}
		}
	}

	candidates := kept.sortedSlice()

	// Filter soft-deleted ids.
	live := candidates[:0]
	for _, c := range candidates {
		pos := idToPos[c.ID]
		del, derr := r.IsDeleted(pos)
		if derr != nil {
			return nil, derr
		}
		if !del {
			live = append(live, c)
		}
	}
	candidates = live

	// Rerank against raw vectors when present.
	if r.HasRawVectors() {
		for i, c := range candidates {
			pos := idToPos[c.ID]
			raw, ok, rerr := r.RawVector(pos)
			if rerr != nil {
				return nil, rerr
			}
			if ok {
				candidates[i].Dist = distance.L2Squared(query, raw)
			}
		}
		sortCandidatesAscending(candidates)
	}

	of := mergeOverfetch(k)
	if len(candidates) > of {
		candidates = candidates[:of]
	}
	return candidates, nil
}

func uniformSamplePos(n, exclude int) int {
	// Deterministic-ish uniform sample without importing math/rand here
	// again: callers already seed process-wide randomness via the
	// package's other uses of math/rand, so a simple offset sample is
	// sufficient variety for a second entry point.
	pos := (exclude + n/2) % n
	if pos == exclude && n > 1 {
		pos = (pos + 1) % n
	}
	return pos
}

func sortCandidatesAscending(c []Candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && (c[j].Dist < c[j-1].Dist || (c[j].Dist == c[j-1].Dist && c[j].ID < c[j-1].ID)); j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

package vectorindex

import (
	"container/heap"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/motedb/motedb/internal/distance"
	"github.com/motedb/motedb/internal/logging"
	"github.com/motedb/motedb/internal/value"
)

// FreshGraph is the in-memory, write-optimized level-0 Vamana graph
// (spec §4.4.1). It is the only tier that accepts single-vector writes;
// level-1/2 tiers are immutable and produced by flush/compaction.
type FreshGraph struct {
	nodes  *nodeShardMap
	medoid atomic.Uint64
	count  atomic.Int64
	dim    int
	params Params
	log    *logging.Logger

	mu sync.Mutex // serializes the insert-count check + medoid init, per spec §5 "single writer"
}

// NewFreshGraph constructs an empty fresh graph for vectors of the
// given dimension.
func NewFreshGraph(dim int, params Params) *FreshGraph {
	return &FreshGraph{
		nodes:  newNodeShardMap(),
		dim:    dim,
		params: params,
		log:    logging.Get(logging.CategoryVector),
	}
}

func (g *FreshGraph) Len() int { return int(g.count.Load()) }

func (g *FreshGraph) Medoid() (uint64, bool) {
	if g.count.Load() == 0 {
		return 0, false
	}
	return g.medoid.Load(), true
}

// Insert adds one vector under id, following spec §4.4.2: the first
// node becomes the medoid; the first BruteForceUntil nodes compute
// neighbours by brute-force k-smallest to guarantee initial
// reachability; thereafter a greedy best-first search from the medoid
// selects the R closest already-inserted nodes, and reciprocal
// back-edges are added best-effort.
func (g *FreshGraph) Insert(id uint64, vec []float32, maxNodes int) error {
	if len(vec) != g.dim {
		return value.New(value.KindInvalidData, "vectorindex.Insert", "vector dimension mismatch")
	}

	g.mu.Lock()
	if int(g.count.Load()) >= maxNodes {
		g.mu.Unlock()
		return value.New(value.KindResourceExhausted, "vectorindex.Insert", "fresh graph at node cap")
	}
	isFirst := g.count.Load() == 0
	if isFirst {
		g.medoid.Store(id)
	}
	g.count.Add(1)
	nodeCount := g.nodes.Len()
	g.mu.Unlock()

	node := &GraphNode{Vector: vec}
	if isFirst {
		g.nodes.Set(id, node)
		return nil
	}

	var neighbors []uint64
	if nodeCount < g.params.BruteForceUntil {
		neighbors = g.bruteForceKNN(vec, g.params.MaxDegree, id)
	} else {
		medoid, _ := g.Medoid()
		neighbors = g.greedySearchKNN(vec, medoid, g.params.MaxDegree)
	}
	node.Neighbors = neighbors
	g.nodes.Set(id, node)

	// Best-effort reciprocal back-edges (spec §4.4.2): no rebalancing,
	// skip neighbours already at their degree budget.
	for _, nb := range neighbors {
		nb := nb
		g.nodes.MutateNeighbors(nb, func(n *GraphNode) {
			if len(n.Neighbors) >= g.params.MaxDegree {
				return
			}
			for _, existing := range n.Neighbors {
				if existing == id {
					return
				}
			}
			n.Neighbors = append(n.Neighbors, id)
		})
	}
	return nil
}

// MarkDeleted soft-deletes a node so future searches filter it while
// leaving former neighbours' reachability intact (spec §9).
func (g *FreshGraph) MarkDeleted(id uint64) {
	g.nodes.MutateNeighbors(id, func(n *GraphNode) { n.Deleted = true })
}

// BatchInsert implements spec §4.4.2's flush-time bulk build: insert
// all vectors with empty adjacency first, pick a temporary medoid, then
// compute each node's R closest neighbours either serially (<1000
// vectors) or in parallel (>=1000), pre-loading vectors once to avoid
// repeated map reads.
func (g *FreshGraph) BatchInsert(ids []uint64, vectors [][]float32, maxNodes int) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return value.New(value.KindInvalidData, "vectorindex.BatchInsert", "ids/vectors length mismatch")
	}
	g.mu.Lock()
	if int(g.count.Load())+len(ids) > maxNodes {
		g.mu.Unlock()
		return value.New(value.KindResourceExhausted, "vectorindex.BatchInsert", "batch would exceed node cap")
	}
	wasEmpty := g.count.Load() == 0
	g.mu.Unlock()

	for i, id := range ids {
		if len(vectors[i]) != g.dim {
			return value.New(value.KindInvalidData, "vectorindex.BatchInsert", "vector dimension mismatch")
		}
		g.nodes.Set(id, &GraphNode{Vector: vectors[i]})
	}
	g.count.Add(int64(len(ids)))

	if wasEmpty {
		g.medoid.Store(ids[0])
	}

	return g.batchBuildGraph(ids, vectors)
}

func (g *FreshGraph) batchBuildGraph(ids []uint64, vectors [][]float32) error {
	if len(ids) < 1000 {
		g.batchBuildSerial(ids, vectors)
		return nil
	}
	return g.batchBuildParallel(ids, vectors)
}

func (g *FreshGraph) batchBuildSerial(ids []uint64, vectors [][]float32) {
	for i, id := range ids {
		neighbors := knnAmong(vectors[i], ids, vectors, i, g.params.MaxDegree)
		g.nodes.MutateNeighbors(id, func(n *GraphNode) { n.Neighbors = neighbors })
	}
}

// batchBuildParallel computes each node's neighbour list concurrently,
// sharding the batch into contiguous chunks across GOMAXPROCS workers
// (bounded at 8, since each worker does an O(n) scan per node and the
// win from more shards flattens out past that).
func (g *FreshGraph) batchBuildParallel(ids []uint64, vectors [][]float32) error {
	workers := runtime.GOMAXPROCS(0)
	if workers > 8 {
		workers = 8
	}
	if workers < 1 {
		workers = 1
	}

	results := make([][]uint64, len(ids))
	chunk := (len(ids) + workers - 1) / workers

	var eg errgroup.Group
	for w := 0; w < workers; w++ {
		start := w * chunk
		if start >= len(ids) {
			break
		}
		end := start + chunk
		if end > len(ids) {
			end = len(ids)
		}
		eg.Go(func() error {
			for i := start; i < end; i++ {
				results[i] = knnAmong(vectors[i], ids, vectors, i, g.params.MaxDegree)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for i, id := range ids {
		neighbors := results[i]
		g.nodes.MutateNeighbors(id, func(n *GraphNode) { n.Neighbors = neighbors })
	}
	return nil
}

// knnAmong returns the maxDegree nearest neighbours of vectors[self]
// among the rest of the batch, by brute-force distance + partial sort.
func knnAmong(self []float32, ids []uint64, vectors [][]float32, selfIdx, maxDegree int) []uint64 {
	type dc struct {
		id   uint64
		dist float32
	}
	cands := make([]dc, 0, len(ids)-1)
	for i, id := range ids {
		if i == selfIdx {
			continue
		}
		cands = append(cands, dc{id: id, dist: distance.L2Squared(self, vectors[i])})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	if len(cands) > maxDegree {
		cands = cands[:maxDegree]
	}
	out := make([]uint64, len(cands))
	for i, c := range cands {
		out[i] = c.id
	}
	return out
}

func (g *FreshGraph) bruteForceKNN(query []float32, k int, exclude uint64) []uint64 {
	type dc struct {
		id   uint64
		dist float32
	}
	var cands []dc
	g.nodes.Range(func(id uint64, n *GraphNode) {
		if id == exclude {
			return
		}
		cands = append(cands, dc{id: id, dist: distance.L2Squared(query, n.Vector)})
	})
	sort.Slice(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	if len(cands) > k {
		cands = cands[:k]
	}
	out := make([]uint64, len(cands))
	for i, c := range cands {
		out[i] = c.id
	}
	return out
}

func (g *FreshGraph) greedySearchKNN(query []float32, start uint64, k int) []uint64 {
	visited := make(map[uint64]bool)
	bc := &candidateMinHeap{}
	heap.Init(bc)
	var expanded []Candidate

	if n, ok := g.nodes.Get(start); ok {
		heap.Push(bc, Candidate{ID: start, Dist: distance.L2Squared(query, n.Vector)})
		visited[start] = true
	}

	const maxIter = 1000
	iterations := 0
	for iterations < maxIter && bc.Len() > 0 {
		cur := heap.Pop(bc).(Candidate)
		iterations++
		expanded = append(expanded, cur)
		if node, ok := g.nodes.Get(cur.ID); ok {
			for _, nb := range node.Neighbors {
				if visited[nb] {
					continue
				}
				visited[nb] = true
				if nbNode, ok := g.nodes.Get(nb); ok {
					heap.Push(bc, Candidate{ID: nb, Dist: distance.L2Squared(query, nbNode.Vector)})
				}
			}
		}
	}

	results := append(candidateMinHeap(expanded), (*bc)...).sortedSlice()
	if len(results) > k {
		results = results[:k]
	}
	out := make([]uint64, len(results))
	for i, c := range results {
		out[i] = c.ID
	}
	return out
}

// Export snapshots the graph into the shape WriteSST expects: every
// node sorted by id, alongside the medoid. Used both by VectorIndex to
// freeze its own level-0 graph and by the engine to freeze a
// memtable-owned graph into a level-1 SST at flush time.
func (g *FreshGraph) Export() SSTExport {
	var ids []uint64
	vecs := make(map[uint64][]float32)
	nbrs := make(map[uint64][]uint64)
	del := make(map[uint64]bool)

	g.nodes.Range(func(id uint64, n *GraphNode) {
		ids = append(ids, id)
		vecs[id] = n.Vector
		nbrs[id] = n.Neighbors
		del[id] = n.Deleted
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	export := SSTExport{Dim: g.dim}
	if medoid, ok := g.Medoid(); ok {
		export.Medoid = medoid
	}
	for _, id := range ids {
		export.IDs = append(export.IDs, id)
		export.Vectors = append(export.Vectors, vecs[id])
		export.Neighbors = append(export.Neighbors, nbrs[id])
		export.Deleted = append(export.Deleted, del[id])
	}
	return export
}

// Search implements spec §4.4.4's per-tier protocol for the fresh tier:
// linear scan below a small-tier threshold, multi-entry-point greedy
// graph search above it; soft-deleted nodes are filtered from results.
func (g *FreshGraph) Search(query []float32, k, ef int) []Candidate {
	if g.nodes.Len() == 0 {
		return nil
	}
	if g.nodes.Len() <= 50 {
		return g.linearSearch(query, k)
	}
	return g.graphSearch(query, k, ef)
}

func (g *FreshGraph) linearSearch(query []float32, k int) []Candidate {
	var cands []Candidate
	g.nodes.Range(func(id uint64, n *GraphNode) {
		if n.Deleted {
			return
		}
		cands = append(cands, Candidate{ID: id, Dist: distance.L2Squared(query, n.Vector)})
	})
	sort.Slice(cands, func(i, j int) bool { return cands[i].Dist < cands[j].Dist })
	if len(cands) > k {
		cands = cands[:k]
	}
	return cands
}

func (g *FreshGraph) graphSearch(query []float32, k, ef int) []Candidate {
	nodeCount := g.nodes.Len()
	if ef < k*3 {
		ef = k * 3
	}
	if ef < 50 {
		ef = 50
	}
	if ef > nodeCount {
		ef = nodeCount
	}

	starts := g.startPoints(2)
	visited := make(map[uint64]bool)
	var all []Candidate
	for _, s := range starts {
		all = append(all, g.searchFromPoint(query, ef, s, visited)...)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Dist < all[j].Dist })
	seen := make(map[uint64]bool)
	out := make([]Candidate, 0, k)
	for _, c := range all {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if n, ok := g.nodes.Get(c.ID); !ok || n.Deleted {
			continue
		}
		out = append(out, c)
		if len(out) == k {
			break
		}
	}
	return out
}

// startPoints returns the medoid plus up to n-1 uniformly sampled nodes
// (spec §4.4.4: "Select 2 seed points (medoid + a uniform sample)").
func (g *FreshGraph) startPoints(n int) []uint64 {
	medoid, ok := g.Medoid()
	var ids []uint64
	if ok {
		ids = append(ids, medoid)
	}
	if n <= 1 || g.nodes.Len() <= n {
		var all []uint64
		g.nodes.Range(func(id uint64, _ *GraphNode) { all = append(all, id) })
		return all
	}
	var pool []uint64
	g.nodes.Range(func(id uint64, _ *GraphNode) {
		if id != medoid {
			pool = append(pool, id)
		}
	})
	if len(pool) == 0 {
		return ids
	}
	ids = append(ids, pool[rand.Intn(len(pool))])
	return ids
}

// searchFromPoint runs a best-first expansion from one seed: a min-heap
// frontier and a max-heap of the best ef seen so far, expanding the
// closest frontier candidate until the frontier empties or its best
// exceeds the worst kept result (spec §4.4.4 "Graph tier").
func (g *FreshGraph) searchFromPoint(query []float32, ef int, start uint64, visited map[uint64]bool) []Candidate {
	startNode, ok := g.nodes.Get(start)
	if !ok {
		return nil
	}
	frontier := &candidateMinHeap{}
	heap.Init(frontier)
	kept := &candidateMaxHeap{}
	heap.Init(kept)

	d0 := distance.L2Squared(query, startNode.Vector)
	heap.Push(frontier, Candidate{ID: start, Dist: d0})
	if !visited[start] {
		visited[start] = true
	}
	heap.Push(kept, Candidate{ID: start, Dist: d0})

	for frontier.Len() > 0 {
		cur := (*frontier)[0]
		if kept.Len() >= ef && cur.Dist > (*kept)[0].Dist {
			break
		}
		heap.Pop(frontier)

		node, ok := g.nodes.Get(cur.ID)
		if !ok {
			continue
		}
		for _, nb := range node.Neighbors {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			nbNode, ok := g.nodes.Get(nb)
			if !ok {
				continue
			}
			d := distance.L2Squared(query, nbNode.Vector)
			heap.Push(frontier, Candidate{ID: nb, Dist: d})
			heap.Push(kept, Candidate{ID: nb, Dist: d})
			if kept.Len() > ef {
				heap.Pop(kept)
			}
		}
	}
	return kept.sortedSlice()
}

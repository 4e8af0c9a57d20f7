package vectorindex

import (
	"math"
	"math/rand"
	"sort"

	"github.com/motedb/motedb/internal/distance"
)

// mergedNode is one row's vector plus identity, used while rebuilding
// the level-2 graph during compaction (spec §4.4.3).
type mergedNode struct {
	ID     uint64
	Vector []float32
}

// RebuildGraph implements spec §4.4.3 steps 3-6: select anchors via
// k-means, bootstrap random edges, run round 1 (plain top-R by
// distance) always, and round 2 (RobustPrune + reciprocal repair) only
// when params.AggressivePrune is set. This is the single rebuild path
// the spec's Open Questions ask to keep (the original carries two
// near-duplicate "with/without medoid fallback" variants that only
// differ up through the bootstrap phase).
func RebuildGraph(nodes []mergedNode, params Params) (rebuilt map[uint64][]uint64, medoid uint64, err error) {
	n := len(nodes)
	if n == 0 {
		return map[uint64][]uint64{}, 0, nil
	}

	anchors := selectAnchors(nodes, params.AnchorCount)
	medoid = anchors[0]

	idOf := make(map[uint64]int, n)
	for i, nd := range nodes {
		idOf[nd.ID] = i
	}
	anchorIdx := make([]int, 0, len(anchors))
	for _, a := range anchors {
		anchorIdx = append(anchorIdx, idOf[a])
	}

	neighbors := bootstrapEdges(n, params.MaxDegree)

	// Round 1: multi-anchor greedy search against the bootstrapped
	// graph, keep top-R by distance, no diversification (ties break by
	// id per spec §4.4.3 step 5).
	for i := range nodes {
		cands := multiAnchorGreedySearch(nodes, neighbors, anchorIdx, nodes[i].Vector, params.EfConstruct)
		neighbors[i] = topRByDistance(cands, nodes, i, params.MaxDegree)
	}

	if params.AggressivePrune {
		for i := range nodes {
			cands := multiAnchorGreedySearch(nodes, neighbors, anchorIdx, nodes[i].Vector, params.EfConstruct)
			pruned := robustPrune(nodes[i].Vector, cands, nodes, params.MaxDegree, params.Alpha)
			neighbors[i] = pruned

			for _, nbIdx := range pruned {
				if len(neighbors[nbIdx]) >= params.MaxDegree {
					// re-prune nb's candidate set including i, maintaining
					// reciprocal edges per spec §4.4.3 step 6.
					nbCands := append([]int(nil), neighbors[nbIdx]...)
					nbCands = append(nbCands, i)
					distCands := make([]candIdx, 0, len(nbCands))
					for _, c := range nbCands {
						distCands = append(distCands, candIdx{idx: c, dist: distance.L2Squared(nodes[nbIdx].Vector, nodes[c].Vector)})
					}
					neighbors[nbIdx] = robustPruneIdx(nodes[nbIdx].Vector, distCands, nodes, params.MaxDegree, params.Alpha)
				} else {
					has := false
					for _, x := range neighbors[nbIdx] {
						if x == i {
							has = true
							break
						}
					}
					if !has {
						neighbors[nbIdx] = append(neighbors[nbIdx], i)
					}
				}
			}
		}
	}

	rebuilt = make(map[uint64][]uint64, n)
	for i, nb := range neighbors {
		ids := make([]uint64, len(nb))
		for j, idx := range nb {
			ids[j] = nodes[idx].ID
		}
		rebuilt[nodes[i].ID] = ids
	}
	return rebuilt, medoid, nil
}

func bootstrapEdges(n, maxDegree int) [][]int {
	neighbors := make([][]int, n)
	degree := maxDegree / 3
	if degree < 4 {
		degree = 4
	}
	if degree > maxDegree {
		degree = maxDegree
	}
	for i := 0; i < n; i++ {
		if n <= 1 {
			continue
		}
		picked := make(map[int]bool, degree)
		for len(picked) < degree && len(picked) < n-1 {
			j := rand.Intn(n)
			if j == i {
				continue
			}
			picked[j] = true
		}
		nb := make([]int, 0, len(picked))
		for j := range picked {
			nb = append(nb, j)
		}
		neighbors[i] = nb
	}
	return neighbors
}

type candIdx struct {
	idx  int
	dist float32
}

// multiAnchorGreedySearch runs a best-first expansion starting
// simultaneously from every anchor (spec §4.4.3 step 5) over the
// in-progress adjacency lists, returning up to efConstruct candidates.
func multiAnchorGreedySearch(nodes []mergedNode, neighbors [][]int, anchors []int, query []float32, ef int) []candIdx {
	visited := make(map[int]bool)
	frontier := &idxMinHeap{}
	kept := &idxMaxHeap{}

	for _, a := range anchors {
		if visited[a] {
			continue
		}
		visited[a] = true
		d := distance.L2Squared(query, nodes[a].Vector)
		*frontier = append(*frontier, candIdx{idx: a, dist: d})
		*kept = append(*kept, candIdx{idx: a, dist: d})
	}
	frontier.heapify()
	kept.heapify()

	for frontier.Len() > 0 {
		cur := frontier.peek()
		if kept.Len() >= ef && cur.dist > kept.peek().dist {
			break
		}
		cur = frontier.pop()
		for _, nb := range neighbors[cur.idx] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d := distance.L2Squared(query, nodes[nb].Vector)
			frontier.push(candIdx{idx: nb, dist: d})
			kept.push(candIdx{idx: nb, dist: d})
			if kept.Len() > ef {
				kept.pop()
			}
		}
	}
	return kept.sorted()
}

func topRByDistance(cands []candIdx, nodes []mergedNode, self, r int) []int {
	filtered := cands[:0:0]
	for _, c := range cands {
		if c.idx != self {
			filtered = append(filtered, c)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].dist != filtered[j].dist {
			return filtered[i].dist < filtered[j].dist
		}
		return nodes[filtered[i].idx].ID < nodes[filtered[j].idx].ID
	})
	if len(filtered) > r {
		filtered = filtered[:r]
	}
	out := make([]int, len(filtered))
	for i, c := range filtered {
		out[i] = c.idx
	}
	return out
}

// robustPrune implements spec §4.4.3 step 6: iterate candidates in
// ascending distance, accept a candidate only if, for every already
// accepted neighbour, its distance to the candidate is >= alpha *
// (candidate's distance to the query).
func robustPrune(query []float32, cands []candIdx, nodes []mergedNode, maxDegree int, alpha float32) []int {
	return robustPruneIdx(query, cands, nodes, maxDegree, alpha)
}

func robustPruneIdx(query []float32, cands []candIdx, nodes []mergedNode, maxDegree int, alpha float32) []int {
	sorted := append([]candIdx(nil), cands...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].dist != sorted[j].dist {
			return sorted[i].dist < sorted[j].dist
		}
		return nodes[sorted[i].idx].ID < nodes[sorted[j].idx].ID
	})

	var result []int
	for _, c := range sorted {
		if len(result) >= maxDegree {
			break
		}
		shouldAdd := true
		for _, existing := range result {
			d := distance.L2Squared(nodes[c.idx].Vector, nodes[existing].Vector)
			if d < alpha*c.dist {
				shouldAdd = false
				break
			}
		}
		if shouldAdd {
			result = append(result, c.idx)
		}
	}
	return result
}

// selectAnchors runs k-means (<=10 iterations or early convergence)
// over the vectors and returns the node nearest each final centroid,
// per spec §4.4.3 step 3.
func selectAnchors(nodes []mergedNode, k int) []uint64 {
	if k > len(nodes) {
		k = len(nodes)
	}
	if k < 1 {
		k = 1
	}
	dim := len(nodes[0].Vector)

	perm := rand.Perm(len(nodes))
	centers := make([][]float32, k)
	for i := 0; i < k; i++ {
		centers[i] = append([]float32(nil), nodes[perm[i]].Vector...)
	}

	assign := make([]int, len(nodes))
	for iter := 0; iter < 10; iter++ {
		for i, nd := range nodes {
			best, bestDist := 0, float32(math.MaxFloat32)
			for c, center := range centers {
				d := distance.L2Squared(nd.Vector, center)
				if d < bestDist {
					bestDist = d
					best = c
				}
			}
			assign[i] = best
		}

		newCenters := make([][]float32, k)
		counts := make([]int, k)
		for c := range newCenters {
			newCenters[c] = make([]float32, dim)
		}
		for i, nd := range nodes {
			c := assign[i]
			counts[c]++
			for d := 0; d < dim; d++ {
				newCenters[c][d] += nd.Vector[d]
			}
		}
		converged := true
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				newCenters[c] = centers[c]
				continue
			}
			for d := 0; d < dim; d++ {
				newCenters[c][d] /= float32(counts[c])
			}
			if distance.L2Squared(centers[c], newCenters[c]) > 0.01 {
				converged = false
			}
		}
		centers = newCenters
		if converged {
			break
		}
	}

	anchors := make([]uint64, 0, k)
	for _, center := range centers {
		bestID, bestDist := nodes[0].ID, float32(math.MaxFloat32)
		for _, nd := range nodes {
			d := distance.L2Squared(nd.Vector, center)
			if d < bestDist {
				bestDist = d
				bestID = nd.ID
			}
		}
		anchors = append(anchors, bestID)
	}
	return anchors
}

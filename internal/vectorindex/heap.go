package vectorindex

import "sort"

// candidateMinHeap pops the closest (smallest distance) candidate
// first — used as the greedy-search frontier.
type candidateMinHeap []Candidate

func (h candidateMinHeap) Len() int            { return len(h) }
func (h candidateMinHeap) Less(i, j int) bool  { return h[i].Dist < h[j].Dist }
func (h candidateMinHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateMinHeap) Push(x interface{}) { *h = append(*h, x.(Candidate)) }
func (h *candidateMinHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (h candidateMinHeap) sortedSlice() []Candidate {
	out := append([]Candidate(nil), h...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dist != out[j].Dist {
			return out[i].Dist < out[j].Dist
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// candidateMaxHeap pops the farthest (largest distance) candidate
// first — used as the "best ef seen so far" bound during greedy
// search.
type candidateMaxHeap []Candidate

func (h candidateMaxHeap) Len() int            { return len(h) }
func (h candidateMaxHeap) Less(i, j int) bool  { return h[i].Dist > h[j].Dist }
func (h candidateMaxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateMaxHeap) Push(x interface{}) { *h = append(*h, x.(Candidate)) }
func (h *candidateMaxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (h candidateMaxHeap) sortedSlice() []Candidate {
	out := append([]Candidate(nil), h...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dist != out[j].Dist {
			return out[i].Dist < out[j].Dist
		}
		return out[i].ID < out[j].ID
	})
	return out
}

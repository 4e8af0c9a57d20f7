package vectorindex

import (
	"container/heap"
	"sort"
)

// idxMinHeap and idxMaxHeap are container/heap-backed priority queues
// over candIdx, used only during graph rebuild (compaction.go) where
// candidates are tracked by slice index rather than row-id. Kept
// separate from candidateMinHeap/candidateMaxHeap since those operate
// on the public Candidate (row-id) type used by search paths.
type idxMinHeap []candIdx

func (h idxMinHeap) Len() int            { return len(h) }
func (h idxMinHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h idxMinHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idxMinHeap) Push(x interface{}) { *h = append(*h, x.(candIdx)) }
func (h *idxMinHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (h *idxMinHeap) heapify() { heap.Init(h) }
func (h *idxMinHeap) push(c candIdx) { heap.Push(h, c) }
func (h *idxMinHeap) pop() candIdx   { return heap.Pop(h).(candIdx) }
func (h *idxMinHeap) peek() candIdx  { return (*h)[0] }

type idxMaxHeap []candIdx

func (h idxMaxHeap) Len() int            { return len(h) }
func (h idxMaxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h idxMaxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idxMaxHeap) Push(x interface{}) { *h = append(*h, x.(candIdx)) }
func (h *idxMaxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (h *idxMaxHeap) heapify() { heap.Init(h) }
func (h *idxMaxHeap) push(c candIdx) {
	heap.Push(h, c)
}
func (h *idxMaxHeap) pop() candIdx  { return heap.Pop(h).(candIdx) }
func (h *idxMaxHeap) peek() candIdx { return (*h)[0] }

func (h idxMaxHeap) sorted() []candIdx {
	out := append([]candIdx(nil), h...)
	sort.Slice(out, func(i, j int) bool { return out[i].dist < out[j].dist })
	return out
}

package vectorindex

import (
	"sync"

	"github.com/motedb/motedb/internal/rowkey"
)

const shardCount = 32

// nodeShardMap is the fresh-graph node store: a sharded concurrent hash
// map so reads and single-vector inserts don't contend on one global
// lock (spec §5, §9 "Concurrent hash maps"). Sharding by the low bits
// of the row-id spreads hot ranges across shards without requiring a
// third-party concurrent-map dependency the pack doesn't carry for Go.
type nodeShardMap struct {
	shards [shardCount]struct {
		mu    sync.RWMutex
		nodes map[uint64]*GraphNode
	}
}

func newNodeShardMap() *nodeShardMap {
	m := &nodeShardMap{}
	for i := range m.shards {
		m.shards[i].nodes = make(map[uint64]*GraphNode)
	}
	return m
}

func (m *nodeShardMap) shardFor(id uint64) int {
	return int(id % shardCount)
}

func (m *nodeShardMap) Get(id uint64) (*GraphNode, bool) {
	s := &m.shards[m.shardFor(id)]
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	return n, ok
}

func (m *nodeShardMap) Set(id uint64, n *GraphNode) {
	s := &m.shards[m.shardFor(id)]
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[id] = n
}

// MutateNeighbors locks the shard owning id and runs fn against the
// node's neighbor list in place — used for best-effort reciprocal
// back-edges during insert.
func (m *nodeShardMap) MutateNeighbors(id uint64, fn func(n *GraphNode)) {
	s := &m.shards[m.shardFor(id)]
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[id]; ok {
		fn(n)
	}
}

func (m *nodeShardMap) Len() int {
	total := 0
	for i := range m.shards {
		m.shards[i].mu.RLock()
		total += len(m.shards[i].nodes)
		m.shards[i].mu.RUnlock()
	}
	return total
}

// Range iterates every node. The callback must not call back into the
// map (no re-entrant locking).
func (m *nodeShardMap) Range(fn func(id uint64, n *GraphNode)) {
	for i := range m.shards {
		m.shards[i].mu.RLock()
		for id, n := range m.shards[i].nodes {
			fn(id, n)
		}
		m.shards[i].mu.RUnlock()
	}
}

// idOf is a tiny convenience used by callers that carry rowkey.Key
// rather than a bare row-id (the fresh graph indexes by row-id only;
// the unified memtable maps composite keys to row-ids before calling
// into the graph).
func idOf(k rowkey.Key) uint64 { return k.RowID() }

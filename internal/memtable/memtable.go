// Package memtable implements the unified in-memory table of spec §4.2:
// row data and an optional vector column share one entry and one
// flush cadence, with an embedded Fresh-Vamana graph for tables that
// carry a vector index.
package memtable

import (
	"sync"
	"sync/atomic"

	"github.com/google/btree"

	"github.com/motedb/motedb/internal/config"
	"github.com/motedb/motedb/internal/rowkey"
	"github.com/motedb/motedb/internal/value"
	"github.com/motedb/motedb/internal/vectorindex"
)

// Entry is one row's data plus optional vector and MVCC metadata,
// mirroring the original's UnifiedEntry.
type Entry struct {
	Row       value.Row
	Vector    []float32
	Timestamp int64
	Deleted   bool
	Seq       uint64
}

// MemorySize estimates the entry's heap footprint for the byte budget.
func (e Entry) MemorySize() int {
	size := 16 // metadata overhead
	for _, v := range e.Row {
		if v.Tag == value.TypeText || v.Tag == value.TypeTextDoc {
			size += len(v.S)
		} else {
			size += 16
		}
	}
	size += len(e.Vector) * 4
	return size
}

type item struct {
	key rowkey.Key
	e   Entry
}

func (a item) Less(b btree.Item) bool { return a.key < b.(item).key }

// Table is one table's unified memtable: an ordered row-key -> Entry
// map (via google/btree, standing in for the original's BTreeMap),
// plus the optional Fresh graph for vector search.
type Table struct {
	mu   sync.RWMutex
	tree *btree.BTree

	vectorGraph *vectorindex.FreshGraph
	vectorDim   int
	hasVector   bool

	size    atomic.Int64
	maxSize int64
	nextSeq atomic.Uint64

	params vectorindex.Params
}

// New creates a memtable with no vector support.
func New(cfg config.MemtableConfig) *Table {
	return &Table{
		tree:    btree.New(32),
		maxSize: int64(cfg.ByteBudget),
	}
}

// NewWithVector creates a memtable whose table carries a vector
// column of the given dimension, backed by a Fresh graph.
func NewWithVector(cfg config.MemtableConfig, dim int, gcfg config.GraphConfig) *Table {
	params := vectorindex.ParamsFromConfig(gcfg)
	return &Table{
		tree:        btree.New(32),
		maxSize:     int64(cfg.ByteBudget),
		vectorGraph: vectorindex.NewFreshGraph(dim, params),
		vectorDim:   dim,
		hasVector:   true,
		params:      params,
	}
}

// Put inserts or overwrites a row, optionally with a vector.
func (t *Table) Put(key rowkey.Key, row value.Row, vec []float32, timestamp int64) error {
	if t.hasVector && vec != nil && len(vec) != t.vectorDim {
		return value.New(value.KindInvalidData, "memtable.Put", "vector dimension mismatch")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e := Entry{Row: row.Clone(), Vector: vec, Timestamp: timestamp, Seq: t.nextSeq.Add(1)}
	old := t.tree.ReplaceOrInsert(item{key: key, e: e})
	t.adjustSize(old, e)

	if t.hasVector && vec != nil {
		if err := t.vectorGraph.Insert(key.RowID(), vec, t.params.MaxNodesOrDefault()); err != nil {
			return err
		}
	}
	return nil
}

// Delete records a tombstone for key.
func (t *Table) Delete(key rowkey.Key, timestamp int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := Entry{Deleted: true, Timestamp: timestamp, Seq: t.nextSeq.Add(1)}
	old := t.tree.ReplaceOrInsert(item{key: key, e: e})
	t.adjustSize(old, e)

	if t.hasVector {
		t.vectorGraph.MarkDeleted(key.RowID())
	}
}

func (t *Table) adjustSize(old btree.Item, newEntry Entry) {
	if old != nil {
		t.size.Add(-int64(old.(item).e.MemorySize()))
	}
	t.size.Add(int64(newEntry.MemorySize()))
}

// Get returns the current entry for key, if any. A tombstone is
// returned as (Entry{Deleted:true}, true) so callers distinguish
// "deleted" from "never existed".
func (t *Table) Get(key rowkey.Key) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	found := t.tree.Get(item{key: key})
	if found == nil {
		return Entry{}, false
	}
	return found.(item).e, true
}

// Scan invokes fn for every entry with key in [start, end), in
// ascending key order, stopping early if fn returns false.
func (t *Table) Scan(start, end rowkey.Key, fn func(rowkey.Key, Entry) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.tree.AscendRange(item{key: start}, item{key: end}, func(i btree.Item) bool {
		it := i.(item)
		return fn(it.key, it.e)
	})
}

// ScanAll invokes fn for every entry in ascending key order.
func (t *Table) ScanAll(fn func(rowkey.Key, Entry) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.tree.Ascend(func(i btree.Item) bool {
		it := i.(item)
		return fn(it.key, it.e)
	})
}

// Len returns the number of live+tombstoned entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tree.Len()
}

// ShouldFlush reports whether the memtable has reached its configured
// byte budget (spec §4.2 "Memory budgets").
func (t *Table) ShouldFlush() bool {
	return t.size.Load() >= t.maxSize
}

// VectorSearch runs a k-NN search against the table's embedded Fresh
// graph. Returns InvalidData if the table has no vector column.
func (t *Table) VectorSearch(query []float32, k, ef int) ([]vectorindex.Candidate, error) {
	if !t.hasVector {
		return nil, value.New(value.KindInvalidData, "memtable.VectorSearch", "table has no vector column")
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.vectorGraph.Search(query, k, ef), nil
}

// VectorGraph exposes the embedded Fresh graph for flush export; nil
// when the table has no vector column.
func (t *Table) VectorGraph() *vectorindex.FreshGraph { return t.vectorGraph }


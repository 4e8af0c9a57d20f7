// Package cache implements the row cache that sits in front of the LSM
// engine's point-get path, grounded on the original source's
// src/cache/row_cache.rs: an LRU keyed by (table, row-id) plus a
// per-table access-pattern tracker that detects sequential scans and
// recommends a prefetch range.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/motedb/motedb/internal/value"
)

// Key identifies one cached row.
type Key struct {
	Table string
	RowID uint64
}

// Stats is a snapshot of cache and prefetch counters.
type Stats struct {
	Hits             uint64
	Misses           uint64
	Size             int
	Capacity         int
	PrefetchTriggered uint64
	PrefetchUseful    uint64
}

// HitRate returns Hits / (Hits+Misses), or 0 when no accesses occurred.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// PrefetchConfig tunes sequential-access detection.
type PrefetchConfig struct {
	Enabled            bool
	MinSequentialCount int
	PrefetchSize       int
	MaxStride          int64
}

// DefaultPrefetchConfig matches the original's defaults: 3 consecutive
// sequential accesses trigger a 32-row prefetch, capped at stride 100.
func DefaultPrefetchConfig() PrefetchConfig {
	return PrefetchConfig{
		Enabled:            true,
		MinSequentialCount: 3,
		PrefetchSize:       32,
		MaxStride:          100,
	}
}

type accessPattern struct {
	lastRowID        uint64
	stride           int64
	sequentialCount  int
	lastAccess       time.Time
}

// RowCache is an LRU cache of rows keyed by (table, row-id), with a
// sequential-access tracker per table for read-ahead hints.
type RowCache struct {
	cache *lru.Cache[Key, value.Row]

	mu    sync.Mutex
	stats Stats

	patternsMu sync.Mutex
	patterns   map[string]*accessPattern

	prefetch PrefetchConfig
}

// New creates a row cache with the given entry capacity (minimum 1)
// and the default prefetch configuration.
func New(capacity int) *RowCache {
	return NewWithPrefetchConfig(capacity, DefaultPrefetchConfig())
}

// NewWithPrefetchConfig creates a row cache with a custom prefetch
// configuration.
func NewWithPrefetchConfig(capacity int, prefetch PrefetchConfig) *RowCache {
	if capacity < 1 {
		capacity = 1
	}
	c, _ := lru.New[Key, value.Row](capacity)
	return &RowCache{
		cache:    c,
		patterns: make(map[string]*accessPattern),
		prefetch: prefetch,
		stats:    Stats{Capacity: capacity},
	}
}

// Get returns the cached row for (table, rowID), if present, and
// updates the table's access pattern regardless of hit/miss.
func (c *RowCache) Get(table string, rowID uint64) (value.Row, bool) {
	row, ok := c.cache.Get(Key{Table: table, RowID: rowID})

	c.mu.Lock()
	if ok {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	c.mu.Unlock()

	c.updateAccessPattern(table, rowID)
	return row, ok
}

// CheckPrefetch reports whether the table's current access pattern
// warrants prefetching, returning the row-id to start from, how many
// rows to fetch, and the detected stride.
func (c *RowCache) CheckPrefetch(table string, rowID uint64) (startRowID uint64, count int, stride int64, ok bool) {
	if !c.prefetch.Enabled {
		return 0, 0, 0, false
	}
	c.patternsMu.Lock()
	defer c.patternsMu.Unlock()

	p, found := c.patterns[table]
	if !found || time.Since(p.lastAccess) > time.Second {
		return 0, 0, 0, false
	}
	if p.sequentialCount < c.prefetch.MinSequentialCount {
		return 0, 0, 0, false
	}
	next := int64(rowID) + p.stride
	if next < 0 {
		return 0, 0, 0, false
	}
	return uint64(next), c.prefetch.PrefetchSize, p.stride, true
}

func (c *RowCache) updateAccessPattern(table string, rowID uint64) {
	if !c.prefetch.Enabled {
		return
	}
	now := time.Now()

	c.patternsMu.Lock()
	defer c.patternsMu.Unlock()

	p, ok := c.patterns[table]
	if !ok {
		c.patterns[table] = &accessPattern{lastRowID: rowID, lastAccess: now, sequentialCount: 1}
		return
	}

	if now.Sub(p.lastAccess) > time.Second {
		p.lastRowID = rowID
		p.stride = 0
		p.sequentialCount = 1
		p.lastAccess = now
		return
	}

	stride := int64(rowID) - int64(p.lastRowID)
	switch {
	case stride == p.stride && abs64(stride) <= c.prefetch.MaxStride:
		p.sequentialCount++
	case abs64(stride) <= c.prefetch.MaxStride:
		p.stride = stride
		p.sequentialCount = 2
	default:
		p.stride = 0
		p.sequentialCount = 1
	}
	p.lastRowID = rowID
	p.lastAccess = now
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Put inserts or updates one row in the cache.
func (c *RowCache) Put(table string, rowID uint64, row value.Row) {
	c.cache.Add(Key{Table: table, RowID: rowID}, row)
	c.mu.Lock()
	c.stats.Size = c.cache.Len()
	c.mu.Unlock()
}

// PutBatch inserts many rows for one table in one call, as used by a
// prefetch fulfillment.
func (c *RowCache) PutBatch(table string, rows map[uint64]value.Row) {
	for rowID, row := range rows {
		c.cache.Add(Key{Table: table, RowID: rowID}, row)
	}
	c.mu.Lock()
	c.stats.Size = c.cache.Len()
	c.mu.Unlock()
}

// Invalidate drops one row from the cache, called on update/delete.
func (c *RowCache) Invalidate(table string, rowID uint64) {
	c.cache.Remove(Key{Table: table, RowID: rowID})
	c.mu.Lock()
	c.stats.Size = c.cache.Len()
	c.mu.Unlock()
}

// InvalidateTable drops every cached row belonging to table, called on
// drop/truncate.
func (c *RowCache) InvalidateTable(table string) {
	for _, k := range c.cache.Keys() {
		if k.Table == table {
			c.cache.Remove(k)
		}
	}
	c.mu.Lock()
	c.stats.Size = c.cache.Len()
	c.mu.Unlock()
}

// Clear empties the cache and resets all counters.
func (c *RowCache) Clear() {
	c.cache.Purge()
	c.mu.Lock()
	c.stats.Hits, c.stats.Misses = 0, 0
	c.stats.PrefetchTriggered, c.stats.PrefetchUseful = 0, 0
	c.stats.Size = 0
	c.mu.Unlock()

	c.patternsMu.Lock()
	c.patterns = make(map[string]*accessPattern)
	c.patternsMu.Unlock()
}

// RecordPrefetch tallies count rows as having been prefetched.
func (c *RowCache) RecordPrefetch(count int) {
	c.mu.Lock()
	c.stats.PrefetchTriggered += uint64(count)
	c.mu.Unlock()
}

// RecordPrefetchHit tallies one prefetched row as having been used by
// a subsequent read.
func (c *RowCache) RecordPrefetchHit() {
	c.mu.Lock()
	c.stats.PrefetchUseful++
	c.mu.Unlock()
}

// Stats returns a snapshot of the cache's counters.
func (c *RowCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

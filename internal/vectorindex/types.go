// Package vectorindex implements the Fresh-DiskANN vector index family
// from spec §4.4: an in-memory Fresh-Vamana graph (level 0), immutable
// level-1 graph SST files produced at flush, and an optional merged
// level-2 file produced by compaction.
package vectorindex

import "github.com/motedb/motedb/internal/config"

// GraphNode is one node of the fresh (level-0) Vamana graph: its raw
// vector, bounded adjacency list, and soft-delete/MVCC metadata (spec
// §3 "Vector graph node").
type GraphNode struct {
	Vector    []float32
	Neighbors []uint64 // bounded to Config.MaxDegree
	Timestamp int64
	Deleted   bool
}

// Candidate is a (row-id, distance) pair produced by a search, ordered
// ascending by Dist.
type Candidate struct {
	ID   uint64
	Dist float32
}

// Params are the Vamana build parameters an index builds with. WriteSST
// does not store them in the SST header; a reopened file is searched
// and compacted with the Params of the index that opens it.
type Params struct {
	MaxDegree       int
	EfConstruct     int
	EfSearch        int
	Alpha           float32
	AnchorCount     int
	AggressivePrune bool
	BruteForceUntil int
	MaxNodes        int
}

// ParamsFromConfig copies the relevant fields out of config.GraphConfig.
func ParamsFromConfig(c config.GraphConfig) Params {
	return Params{
		MaxDegree:       c.MaxDegree,
		EfConstruct:     c.EfConstruct,
		EfSearch:        c.EfSearch,
		Alpha:           c.Alpha,
		AnchorCount:     c.AnchorCount,
		AggressivePrune: c.AggressivePrune,
		BruteForceUntil: c.BruteForceUntil,
		MaxNodes:        c.MaxNodes,
	}
}

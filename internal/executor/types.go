// Package executor implements MoteDB's query executor (spec §4.5):
// given a parsed statement tree, it chooses an access path via a
// rule-based optimizer and streams rows through filter, join, group,
// order, and limit stages, materializing only where the stage requires
// it.
package executor

import "github.com/motedb/motedb/internal/value"

// CompareOp is a scalar comparison operator used by Predicate.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

// PredKind discriminates the shape of a Predicate node.
type PredKind int

const (
	PredCompare PredKind = iota
	PredAnd
	PredOr
	PredNot
	PredIn
	PredVectorSearch
	PredInSubquery
)

// Predicate is a WHERE/HAVING expression tree. Only one branch's
// fields are meaningful per Kind, mirroring value.Value's tagged-union
// style rather than an interface hierarchy.
type Predicate struct {
	Kind PredKind

	// PredCompare
	Column  string
	Op      CompareOp
	Literal value.Value
	// ScalarSubquery, when set, is resolved into Literal before
	// evaluation (spec §4.5.5's `WHERE x = (SELECT ...)`): exactly one
	// row of one column substitutes as the literal, an empty result
	// substitutes null, and more than one row/column is a query error.
	ScalarSubquery *Select

	// PredIn
	Values []value.Value

	// PredInSubquery: resolved into an equivalent PredIn by splicing the
	// subquery's first column in as a literal list (spec §4.5.5's
	// `IN (SELECT ...)`).
	InSubquery *Select

	// PredAnd / PredOr
	Children []Predicate

	// PredNot
	Operand *Predicate

	// PredVectorSearch
	VectorColumn string
	VectorQuery  []float32
	VectorK      int
}

// And builds a conjunction of the given children.
func And(children ...Predicate) Predicate {
	return Predicate{Kind: PredAnd, Children: children}
}

// Or builds a disjunction.
func Or(children ...Predicate) Predicate {
	return Predicate{Kind: PredOr, Children: children}
}

// Compare builds a single column/literal comparison.
func Compare(column string, op CompareOp, lit value.Value) Predicate {
	return Predicate{Kind: PredCompare, Column: column, Op: op, Literal: lit}
}

// AggFunc enumerates the aggregate functions spec §4.5.4 names.
type AggFunc int

const (
	AggNone AggFunc = iota
	AggCount
	AggCountDistinct
	AggSum
	AggAvg
	AggMin
	AggMax
)

// DistanceKind selects which of the SQL distance operators (spec's
// `<->`/`<=>`/`<#>`) a projected expression computes.
type DistanceKind int

const (
	DistanceL2 DistanceKind = iota
	DistanceCosine
	DistanceInner
)

// DistanceExpr is a projected `col <-> [q]` / `col <=> [q]` expression:
// the same distance kernels the vector index uses internally, exposed
// directly to the SQL layer (spec's original_source supplement on
// simd_ops.rs).
type DistanceExpr struct {
	Column string
	Query  []float32
	Kind   DistanceKind
}

// ProjectionItem is one output column: a bare column reference, an
// aggregate over one, or a distance expression, optionally aliased.
type ProjectionItem struct {
	Column   string
	Agg      AggFunc
	Distance *DistanceExpr
	Alias    string
}

// OutputName returns the name a row of results carries this column
// under: the alias if set, else the column (or "count" for a bare
// COUNT(*)).
func (p ProjectionItem) OutputName() string {
	if p.Alias != "" {
		return p.Alias
	}
	if p.Agg != AggNone && p.Column == "" {
		return "count"
	}
	if p.Distance != nil {
		return p.Distance.Column
	}
	return p.Column
}

// OrderKey is one ORDER BY term.
type OrderKey struct {
	Column string // may reference a projection alias
	Desc   bool
}

// JoinKind enumerates the join types spec §4.5.3 names.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinRight
	JoinFull
)

// Join describes a two-table equi-join: Table is the right-hand
// (joined-in) table, matched against the statement's base table via
// LeftColumn = RightColumn.
type Join struct {
	Table       string
	Kind        JoinKind
	LeftColumn  string
	RightColumn string
}

// Select is a parsed query statement — the "parsed statement tree"
// spec §4.5 takes as external input. It covers one base table (or a
// subquery FROM), an optional single join, and the full post-scan
// pipeline of spec §4.5.4-4.5.5.
type Select struct {
	Table     string
	From      *Select // set when FROM is a subquery
	FromAlias string

	Join *Join

	Where *Predicate

	GroupBy []string
	Having  *Predicate

	LatestBy []string
	Distinct bool

	OrderBy []OrderKey
	Limit   int // -1 means unbounded
	Offset  int

	Projection []ProjectionItem // empty means SELECT *
}

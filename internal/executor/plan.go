package executor

import (
	"github.com/motedb/motedb/internal/catalog"
	"github.com/motedb/motedb/internal/config"
	"github.com/motedb/motedb/internal/value"
)

// PlanKind is the access path the optimizer chose.
type PlanKind int

const (
	PlanFullScan PlanKind = iota
	PlanPointQueryPK
	PlanPKOrderLimit
	PlanVectorSearch
	PlanCount
	PlanRangeIndex
	PlanPointIndex
	PlanInequalityIndex
)

// Plan is the optimizer's chosen access path plus whatever of the
// original WHERE clause it did not fully account for (Residual),
// which the caller must still apply as a post-filter.
type Plan struct {
	Kind PlanKind
	Rule int // which of spec §4.5.1's 8 fast-path rules matched, 0 = none (generic path)
	Table string

	PKValue value.Value

	Column                   string
	Lo, Hi                   *value.Value
	LoInclusive, HiInclusive bool

	Desc bool // ORDER BY direction for PlanPKOrderLimit

	VectorQuery []float32
	VectorK     int
	VectorEf    int

	StorageLimit int // -1 means unbounded; spec §4.5.2

	Residual *Predicate
}

// pushdownEligible reports whether spec §4.5.2's LIMIT pushdown may
// apply: no ORDER BY, GROUP BY, DISTINCT, or aggregate projection,
// since all four require the full filtered set before truncation.
func pushdownEligible(stmt *Select) bool {
	if len(stmt.OrderBy) > 0 || len(stmt.GroupBy) > 0 || stmt.Distinct || len(stmt.LatestBy) > 0 {
		return false
	}
	for _, p := range stmt.Projection {
		if p.Agg != AggNone {
			return false
		}
	}
	return true
}

// storageLimit computes spec §4.5.2's storage limit: offset+limit, or
// a configured multiple of that when a WHERE clause narrows the scan,
// as a safety margin against the post-filter discarding rows. Returns
// -1 when pushdown does not apply or the query is unbounded.
func storageLimit(stmt *Select, cfg config.ExecutorConfig) int {
	if stmt.Limit < 0 || !pushdownEligible(stmt) {
		return -1
	}
	base := stmt.Offset + stmt.Limit
	if stmt.Where != nil {
		factor := cfg.StorageLimitSafetyFactor
		if factor < 1 {
			factor = 1
		}
		return base * factor
	}
	return base
}

// hasAggregate reports whether the projection contains any aggregate,
// i.e. whether the whole filtered input collapses to one (ungrouped)
// group per spec §4.5.4.
func hasAggregate(stmt *Select) bool {
	for _, p := range stmt.Projection {
		if p.Agg != AggNone {
			return true
		}
	}
	return false
}

func isBareCountStar(stmt *Select) bool {
	return hasAggregate(stmt) && len(stmt.GroupBy) == 0 && len(stmt.Projection) == 1 &&
		stmt.Projection[0].Agg == AggCount && stmt.Projection[0].Column == ""
}

// ChoosePlan implements spec §4.5.1: it checks the eight fast-path
// rules in order and falls back to a full scan when none apply.
func ChoosePlan(stmt *Select, schema *catalog.TableSchema, cfg config.ExecutorConfig) Plan {
	terms := conjuncts(stmt.Where)
	base := Plan{Table: stmt.Table, Kind: PlanFullScan, StorageLimit: storageLimit(stmt, cfg), Residual: stmt.Where}

	// Rule 1: WHERE pk = v, no ORDER BY/GROUP BY needed for correctness
	// but a richer query still benefits from a cheap point lookup first.
	if schema.PrimaryKey != "" {
		if eq, rest, ok := extractEquality(terms, schema.PrimaryKey); ok {
			p := base
			p.Kind, p.Rule = PlanPointQueryPK, 1
			p.PKValue = eq
			p.Residual = rebuildResidual(rest)
			return p
		}
	}

	// Rule 2: ORDER BY pk [ASC|DESC] LIMIT k, no WHERE/GROUP BY/aggregate.
	if schema.PrimaryKey != "" && stmt.Where == nil && len(stmt.GroupBy) == 0 && !hasAggregate(stmt) &&
		stmt.Limit >= 0 && len(stmt.OrderBy) == 1 && stmt.OrderBy[0].Column == schema.PrimaryKey {
		p := base
		p.Kind, p.Rule = PlanPKOrderLimit, 2
		p.Desc = stmt.OrderBy[0].Desc
		p.StorageLimit = stmt.Offset + stmt.Limit
		p.Residual = nil
		return p
	}

	// Rule 3: ORDER BY col <-> [q] LIMIT k (ascending distance only),
	// expressed here as a PredVectorSearch conjunct paired with a
	// matching ORDER BY + LIMIT.
	if vecTerm, rest, ok := extractVectorSearch(terms); ok && stmt.Limit >= 0 &&
		len(stmt.OrderBy) == 1 && stmt.OrderBy[0].Column == vecTerm.VectorColumn && !stmt.OrderBy[0].Desc {
		p := base
		p.Kind, p.Rule = PlanVectorSearch, 3
		p.Column = vecTerm.VectorColumn
		p.VectorQuery = vecTerm.VectorQuery
		p.VectorK = stmt.Offset + stmt.Limit
		p.VectorEf = searchEf(p.VectorK, cfg)
		p.Residual = rebuildResidual(rest)
		return p
	}

	// Rule 4: WHERE VECTOR_SEARCH(col, [q], k), independent of ORDER BY.
	if vecTerm, rest, ok := extractVectorSearch(terms); ok {
		p := base
		p.Kind, p.Rule = PlanVectorSearch, 4
		p.Column = vecTerm.VectorColumn
		p.VectorQuery = vecTerm.VectorQuery
		p.VectorK = vecTerm.VectorK
		p.VectorEf = searchEf(p.VectorK, cfg)
		p.Residual = rebuildResidual(rest)
		return p
	}

	// Rule 5: bare COUNT(*), optionally with an indexed-equality WHERE.
	if isBareCountStar(stmt) {
		p := base
		p.Kind, p.Rule = PlanCount, 5
		if idxCol, eq, rest, ok := extractIndexedEquality(terms, schema); ok {
			p.Column = idxCol
			p.PKValue = eq
			p.Residual = rebuildResidual(rest)
		}
		return p
	}

	// Rule 6: bounded range on an indexed column, cost-gated by
	// predicted selectivity (spec's 15% default threshold).
	if col, lo, loInc, hi, hiInc, rest, ok := extractRange(terms, schema); ok {
		if estimateSelectivity(lo, hi) < cfg.RangeSelectivityThreshold {
			p := base
			p.Kind, p.Rule = PlanRangeIndex, 6
			p.Column, p.Lo, p.Hi, p.LoInclusive, p.HiInclusive = col, lo, hi, loInc, hiInc
			p.Residual = rebuildResidual(rest)
			return p
		}
	}

	// Rule 7: point query on a non-PK indexed column.
	if col, eq, rest, ok := extractIndexedEquality(terms, schema); ok {
		p := base
		p.Kind, p.Rule = PlanPointIndex, 7
		p.Column, p.PKValue = col, eq
		p.Residual = rebuildResidual(rest)
		return p
	}

	// Rule 8: one-sided inequality on an indexed column.
	if col, lo, loInc, hi, hiInc, rest, ok := extractInequality(terms, schema); ok {
		p := base
		p.Kind, p.Rule = PlanInequalityIndex, 8
		p.Column, p.Lo, p.Hi, p.LoInclusive, p.HiInclusive = col, lo, hi, loInc, hiInc
		p.Residual = rebuildResidual(rest)
		return p
	}

	return base
}

// searchEf derives the vector search breadth parameter from k; callers
// without a tuned ef just want "wide enough to be accurate", which the
// vector index's own EfSearch default already encodes, so this exists
// only to keep k and ef from coinciding at tiny k values.
func searchEf(k int, cfg config.ExecutorConfig) int {
	ef := k * 2
	if ef < 16 {
		ef = 16
	}
	return ef
}

func rebuildResidual(rest []Predicate) *Predicate {
	switch len(rest) {
	case 0:
		return nil
	case 1:
		p := rest[0]
		return &p
	default:
		p := And(rest...)
		return &p
	}
}

func extractEquality(terms []Predicate, column string) (value.Value, []Predicate, bool) {
	for i, t := range terms {
		if t.Kind == PredCompare && t.Op == OpEq && t.Column == column {
			rest := append(append([]Predicate{}, terms[:i]...), terms[i+1:]...)
			return t.Literal, rest, true
		}
	}
	return value.Null(), terms, false
}

func extractIndexedEquality(terms []Predicate, schema *catalog.TableSchema) (column string, lit value.Value, rest []Predicate, ok bool) {
	for i, t := range terms {
		if t.Kind != PredCompare || t.Op != OpEq {
			continue
		}
		if _, indexed := schema.IndexOn(t.Column); !indexed {
			continue
		}
		rest = append(append([]Predicate{}, terms[:i]...), terms[i+1:]...)
		return t.Column, t.Literal, rest, true
	}
	return "", value.Null(), terms, false
}

func extractVectorSearch(terms []Predicate) (Predicate, []Predicate, bool) {
	for i, t := range terms {
		if t.Kind == PredVectorSearch {
			rest := append(append([]Predicate{}, terms[:i]...), terms[i+1:]...)
			return t, rest, true
		}
	}
	return Predicate{}, terms, false
}

// extractRange finds a pair of lo/hi comparisons on the same indexed
// column (both bounds present), the shape rule 6 targets.
func extractRange(terms []Predicate, schema *catalog.TableSchema) (column string, lo, hi *value.Value, loInc, hiInc bool, rest []Predicate, ok bool) {
	byCol := map[string][]int{}
	for i, t := range terms {
		if t.Kind == PredCompare && (t.Op == OpGe || t.Op == OpGt || t.Op == OpLe || t.Op == OpLt) {
			byCol[t.Column] = append(byCol[t.Column], i)
		}
	}
	for col, idxs := range byCol {
		if len(idxs) < 2 {
			continue
		}
		if _, indexed := schema.IndexOn(col); !indexed {
			continue
		}
		var loV, hiV *value.Value
		var loI, hiI bool
		used := map[int]bool{}
		for _, i := range idxs {
			t := terms[i]
			switch t.Op {
			case OpGe, OpGt:
				lv := t.Literal
				loV, loI, used[i] = &lv, t.Op == OpGe, true
			case OpLe, OpLt:
				hv := t.Literal
				hiV, hiI, used[i] = &hv, t.Op == OpLe, true
			}
		}
		if loV == nil || hiV == nil {
			continue
		}
		for i, t := range terms {
			if !used[i] {
				rest = append(rest, t)
			}
		}
		return col, loV, hiV, loI, hiI, rest, true
	}
	return "", nil, nil, false, false, terms, false
}

// extractInequality finds a single one-sided comparison on an indexed
// column, rule 8's shape.
func extractInequality(terms []Predicate, schema *catalog.TableSchema) (column string, lo, hi *value.Value, loInc, hiInc bool, rest []Predicate, ok bool) {
	for i, t := range terms {
		if t.Kind != PredCompare {
			continue
		}
		if t.Op != OpGe && t.Op != OpGt && t.Op != OpLe && t.Op != OpLt {
			continue
		}
		if _, indexed := schema.IndexOn(t.Column); !indexed {
			continue
		}
		rest = append(append([]Predicate{}, terms[:i]...), terms[i+1:]...)
		lit := t.Literal
		switch t.Op {
		case OpGe:
			return t.Column, &lit, nil, true, false, rest, true
		case OpGt:
			return t.Column, &lit, nil, false, false, rest, true
		case OpLe:
			return t.Column, nil, &lit, false, true, rest, true
		default: // OpLt
			return t.Column, nil, &lit, false, false, rest, true
		}
	}
	return "", nil, nil, false, false, terms, false
}

// estimateSelectivity is a placeholder cardinality estimate: no
// histogram or sampled statistics are collected, so a bounded range is
// treated as a fixed fraction of the table regardless of its actual
// bounds. This is documented as an open design tradeoff: it keeps rule
// 6's threshold check meaningful without requiring a stats subsystem
// this implementation does not build.
func estimateSelectivity(lo, hi *value.Value) float64 {
	return 0.1
}

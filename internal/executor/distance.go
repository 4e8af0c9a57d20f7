package executor

import (
	"github.com/motedb/motedb/internal/catalog"
	"github.com/motedb/motedb/internal/distance"
	"github.com/motedb/motedb/internal/value"
)

// evalDistance computes a projected `col <-> [q]` / `col <=> [q]`
// expression for one row, reusing the same kernels the vector index
// uses internally (spec's original_source supplement on simd_ops.rs:
// the SQL layer calls the distance kernels directly, not only through
// the index).
func evalDistance(expr *DistanceExpr, schema *catalog.TableSchema, row value.Row) value.Value {
	pos, ok := schema.ColumnPosition(expr.Column)
	if !ok || pos >= len(row) || row[pos].Tag != value.TypeVector {
		return value.Null()
	}
	vec := row[pos].Vec
	if len(vec) != len(expr.Query) {
		return value.Null()
	}
	switch expr.Kind {
	case DistanceCosine:
		return value.Float(float64(distance.CosineDistance(vec, expr.Query)))
	case DistanceInner:
		return value.Float(float64(distance.NegativeInnerProduct(vec, expr.Query)))
	default:
		return value.Float(float64(distance.L2(vec, expr.Query)))
	}
}

package executor

import (
	"github.com/motedb/motedb/internal/catalog"
	"github.com/motedb/motedb/internal/value"
)

// Evaluate reports whether row satisfies pred under schema. A
// comparison against a column holding NULL, or between incomparable
// types, is always false (three-valued logic collapsed to false, the
// same rule ValidateRow's type checks assume elsewhere).
func Evaluate(pred *Predicate, row value.Row, schema *catalog.TableSchema) (bool, error) {
	if pred == nil {
		return true, nil
	}
	switch pred.Kind {
	case PredAnd:
		for i := range pred.Children {
			ok, err := Evaluate(&pred.Children[i], row, schema)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case PredOr:
		for i := range pred.Children {
			ok, err := Evaluate(&pred.Children[i], row, schema)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case PredNot:
		ok, err := Evaluate(pred.Operand, row, schema)
		if err != nil {
			return false, err
		}
		return !ok, nil

	case PredCompare:
		v, err := columnValue(pred.Column, row, schema)
		if err != nil {
			return false, err
		}
		return compareValues(v, pred.Op, pred.Literal), nil

	case PredIn:
		v, err := columnValue(pred.Column, row, schema)
		if err != nil {
			return false, err
		}
		for _, cand := range pred.Values {
			if v.Equal(cand) {
				return true, nil
			}
		}
		return false, nil

	case PredVectorSearch:
		// Vector-search predicates are resolved by the planner into a
		// VectorSearch plan, not evaluated row-by-row; a bare
		// PredVectorSearch reaching here (e.g. nested in an OR) passes
		// through so the surrounding boolean logic still makes sense.
		return true, nil

	default:
		return false, nil
	}
}

func columnValue(column string, row value.Row, schema *catalog.TableSchema) (value.Value, error) {
	pos, ok := schema.ColumnPosition(column)
	if !ok {
		return value.Null(), value.New(value.KindColumnNotFound, "executor.Evaluate", column)
	}
	if pos >= len(row) {
		return value.Null(), nil
	}
	return row[pos], nil
}

func compareValues(v value.Value, op CompareOp, lit value.Value) bool {
	if op == OpEq {
		return v.Equal(lit)
	}
	if op == OpNe {
		return !v.Equal(lit)
	}
	cmp, ok := v.Compare(lit)
	if !ok {
		return false
	}
	switch op {
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	default:
		return false
	}
}

// conjuncts flattens a (possibly nil) predicate into its top-level AND
// terms, the form the optimizer's fast-path rules pattern-match
// against (spec §4.5.1 rules reason about single equality/range/vector
// clauses, not arbitrary boolean trees).
func conjuncts(pred *Predicate) []Predicate {
	if pred == nil {
		return nil
	}
	if pred.Kind == PredAnd {
		var out []Predicate
		for i := range pred.Children {
			out = append(out, conjuncts(&pred.Children[i])...)
		}
		return out
	}
	return []Predicate{*pred}
}

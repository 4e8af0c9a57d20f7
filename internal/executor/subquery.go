package executor

import (
	"github.com/motedb/motedb/internal/catalog"
	"github.com/motedb/motedb/internal/value"
)

// resolveSubqueries rewrites stmt's WHERE/HAVING predicate trees,
// executing any ScalarSubquery/InSubquery node and splicing its result
// in as a literal (spec §4.5.5). It returns a shallow copy of stmt so
// the caller's original statement is never mutated.
func (ex *Executor) resolveSubqueries(stmt *Select) (*Select, error) {
	where, err := ex.resolvePredicate(stmt.Where)
	if err != nil {
		return nil, err
	}
	having, err := ex.resolvePredicate(stmt.Having)
	if err != nil {
		return nil, err
	}
	if where == stmt.Where && having == stmt.Having {
		return stmt, nil
	}
	resolved := *stmt
	resolved.Where = where
	resolved.Having = having
	return &resolved, nil
}

func (ex *Executor) resolvePredicate(pred *Predicate) (*Predicate, error) {
	if pred == nil {
		return nil, nil
	}
	switch pred.Kind {
	case PredAnd, PredOr:
		children := make([]Predicate, len(pred.Children))
		changed := false
		for i := range pred.Children {
			r, err := ex.resolvePredicate(&pred.Children[i])
			if err != nil {
				return nil, err
			}
			children[i] = *r
			if r != &pred.Children[i] {
				changed = true
			}
		}
		if !changed {
			return pred, nil
		}
		out := *pred
		out.Children = children
		return &out, nil

	case PredNot:
		r, err := ex.resolvePredicate(pred.Operand)
		if err != nil {
			return nil, err
		}
		if r == pred.Operand {
			return pred, nil
		}
		out := *pred
		out.Operand = r
		return &out, nil

	case PredCompare:
		if pred.ScalarSubquery == nil {
			return pred, nil
		}
		lit, err := ex.resolveScalar(pred.ScalarSubquery)
		if err != nil {
			return nil, err
		}
		out := *pred
		out.ScalarSubquery = nil
		out.Literal = lit
		return &out, nil

	case PredInSubquery:
		res, err := ex.Execute(pred.InSubquery)
		if err != nil {
			return nil, err
		}
		values := make([]value.Value, 0, len(res.Rows))
		for _, row := range res.Rows {
			if len(row) > 0 {
				values = append(values, row[0])
			}
		}
		out := Predicate{Kind: PredIn, Column: pred.Column, Values: values}
		return &out, nil

	default:
		return pred, nil
	}
}

// resolveScalar implements spec §4.5.5's scalar subquery rule exactly:
// one row of one column substitutes as the literal, an empty result
// substitutes null, anything else is a query error.
func (ex *Executor) resolveScalar(sub *Select) (value.Value, error) {
	res, err := ex.Execute(sub)
	if err != nil {
		return value.Null(), err
	}
	switch {
	case len(res.Rows) == 0:
		return value.Null(), nil
	case len(res.Rows) == 1 && len(res.Rows[0]) == 1:
		return res.Rows[0][0], nil
	default:
		return value.Null(), value.New(value.KindQuery, "executor.resolveScalar", "scalar subquery returned more than one row or column")
	}
}

// runSubqueryFrom implements spec §4.5.5's `FROM (SELECT ...) AS
// alias`: execute the inner query, synthesize a schema from its result
// columns (inferring types from the first row), then apply the outer
// WHERE directly over the already-materialized rows.
func (ex *Executor) runSubqueryFrom(stmt *Select) (*catalog.TableSchema, []value.Row, error) {
	inner, err := ex.Execute(stmt.From)
	if err != nil {
		return nil, nil, err
	}

	columns := make([]catalog.ColumnDef, len(inner.Columns))
	for i, name := range inner.Columns {
		col := catalog.ColumnDef{Name: stmt.FromAlias + "." + name, Position: i, Nullable: true}
		if len(inner.Rows) > 0 {
			col.Type = inferColumnType(inner.Rows[0][i])
		} else {
			col.Type = catalog.ColText
		}
		columns[i] = col
	}
	schema, err := catalog.NewTableSchema(stmt.FromAlias, columns)
	if err != nil {
		return nil, nil, err
	}

	var out []value.Row
	for _, row := range inner.Rows {
		ok, everr := Evaluate(stmt.Where, row, schema)
		if everr != nil {
			return nil, nil, everr
		}
		if ok {
			out = append(out, row)
		}
	}
	return schema, out, nil
}

func inferColumnType(v value.Value) catalog.ColumnType {
	switch v.Tag {
	case value.TypeInteger:
		return catalog.ColInteger
	case value.TypeFloat:
		return catalog.ColFloat
	case value.TypeBool:
		return catalog.ColBoolean
	case value.TypeVector:
		return catalog.ColVector
	case value.TypePoint:
		return catalog.ColPoint
	case value.TypePolyline:
		return catalog.ColPolyline
	case value.TypePolygon:
		return catalog.ColPolygon
	case value.TypeTextDoc:
		return catalog.ColTextDoc
	case value.TypeTimestamp:
		return catalog.ColTimestamp
	default:
		return catalog.ColText
	}
}

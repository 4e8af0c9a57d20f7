package executor

import (
	"github.com/motedb/motedb/internal/catalog"
	"github.com/motedb/motedb/internal/value"
)

// runJoin implements spec §4.5.3's two-table join: a hash table is
// built on the joined-in (right) side keyed by a typed hash key, the
// driving (left) side probes it, and LEFT/RIGHT/FULL OUTER fill the
// unmatched side with nulls. Row combination preserves `table.column`
// qualified names by synthesizing a joined schema.
func (ex *Executor) runJoin(stmt *Select) (*catalog.TableSchema, []value.Row, error) {
	leftSchema, err := ex.engine.Schema(stmt.Table)
	if err != nil {
		return nil, nil, err
	}
	rightSchema, err := ex.engine.Schema(stmt.Join.Table)
	if err != nil {
		return nil, nil, err
	}

	leftPos, ok := leftSchema.ColumnPosition(stmt.Join.LeftColumn)
	if !ok {
		return nil, nil, value.New(value.KindColumnNotFound, "executor.runJoin", stmt.Join.LeftColumn)
	}
	rightPos, ok := rightSchema.ColumnPosition(stmt.Join.RightColumn)
	if !ok {
		return nil, nil, value.New(value.KindColumnNotFound, "executor.runJoin", stmt.Join.RightColumn)
	}

	var leftRows, rightRows []value.Row
	if err := ex.engine.Scan(stmt.Table, func(_ uint64, row value.Row) bool {
		leftRows = append(leftRows, row)
		return true
	}); err != nil {
		return nil, nil, err
	}
	if err := ex.engine.Scan(stmt.Join.Table, func(_ uint64, row value.Row) bool {
		rightRows = append(rightRows, row)
		return true
	}); err != nil {
		return nil, nil, err
	}

	buildIdx := make(map[string][]int, len(rightRows))
	for i, row := range rightRows {
		if rightPos >= len(row) || row[rightPos].IsNull() {
			continue
		}
		k := valueKey(row[rightPos])
		buildIdx[k] = append(buildIdx[k], i)
	}

	joined := joinedSchema(stmt.Table, leftSchema, stmt.Join.Table, rightSchema)
	nullRight := make(value.Row, len(rightSchema.Columns))
	for i := range nullRight {
		nullRight[i] = value.Null()
	}
	nullLeft := make(value.Row, len(leftSchema.Columns))
	for i := range nullLeft {
		nullLeft[i] = value.Null()
	}

	rightMatched := make([]bool, len(rightRows))
	var out []value.Row

	for _, lrow := range leftRows {
		matched := false
		if !lrow[leftPos].IsNull() {
			for _, ri := range buildIdx[valueKey(lrow[leftPos])] {
				matched = true
				rightMatched[ri] = true
				out = append(out, combineRows(lrow, rightRows[ri]))
			}
		}
		if !matched && (stmt.Join.Kind == JoinLeft || stmt.Join.Kind == JoinFull) {
			out = append(out, combineRows(lrow, nullRight))
		}
	}

	if stmt.Join.Kind == JoinRight || stmt.Join.Kind == JoinFull {
		for i, rrow := range rightRows {
			if !rightMatched[i] {
				out = append(out, combineRows(nullLeft, rrow))
			}
		}
	}

	var filtered []value.Row
	for _, row := range out {
		ok, everr := Evaluate(stmt.Where, row, joined)
		if everr != nil {
			return nil, nil, everr
		}
		if ok {
			filtered = append(filtered, row)
		}
	}
	return joined, filtered, nil
}

func combineRows(left, right value.Row) value.Row {
	out := make(value.Row, 0, len(left)+len(right))
	out = append(out, left...)
	out = append(out, right...)
	return out
}

func joinedSchema(leftName string, left *catalog.TableSchema, rightName string, right *catalog.TableSchema) *catalog.TableSchema {
	cols := make([]catalog.ColumnDef, 0, len(left.Columns)+len(right.Columns))
	for _, c := range left.Columns {
		c.Name = leftName + "." + c.Name
		c.Position = len(cols)
		cols = append(cols, c)
	}
	for _, c := range right.Columns {
		c.Name = rightName + "." + c.Name
		c.Position = len(cols)
		cols = append(cols, c)
	}
	schema, _ := catalog.NewTableSchema(leftName+"+"+rightName, cols)
	return schema
}

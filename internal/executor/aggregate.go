package executor

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/motedb/motedb/internal/catalog"
	"github.com/motedb/motedb/internal/value"
)

// applyLatestBy implements spec §4.5.4's `LATEST BY cols`: keeps, per
// distinct tuple on cols, the row with the largest value in the
// schema's single TIMESTAMP column. A no-op when stmt.LatestBy is
// empty.
func applyLatestBy(stmt *Select, schema *catalog.TableSchema, rows []value.Row) []value.Row {
	if len(stmt.LatestBy) == 0 {
		return rows
	}
	tsPos := -1
	for _, c := range schema.Columns {
		if c.Type == catalog.ColTimestamp {
			tsPos = c.Position
			break
		}
	}
	if tsPos < 0 {
		return rows
	}

	keyPos := make([]int, len(stmt.LatestBy))
	for i, col := range stmt.LatestBy {
		pos, ok := schema.ColumnPosition(col)
		if !ok {
			return rows
		}
		keyPos[i] = pos
	}

	best := make(map[string]value.Row)
	order := make([]string, 0)
	for _, row := range rows {
		key := groupKeyOf(row, keyPos)
		if cur, ok := best[key]; !ok {
			best[key] = row
			order = append(order, key)
		} else if row[tsPos].TS > cur[tsPos].TS {
			best[key] = row
		}
	}
	out := make([]value.Row, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}

func groupKeyOf(row value.Row, positions []int) string {
	parts := make([]string, len(positions))
	for i, pos := range positions {
		if pos >= len(row) {
			parts[i] = "\x00null"
			continue
		}
		parts[i] = valueKey(row[pos])
	}
	return fmt.Sprintf("%v", parts)
}

// valueKey stringifies a Value for use as a hash/group/distinct key.
func valueKey(v value.Value) string {
	switch v.Tag {
	case value.TypeNull:
		return "\x00null"
	case value.TypeInteger:
		return "i:" + strconv.FormatInt(v.I, 10)
	case value.TypeFloat:
		return "f:" + strconv.FormatFloat(v.F, 'g', -1, 64)
	case value.TypeBool:
		return "b:" + strconv.FormatBool(v.B)
	case value.TypeText, value.TypeTextDoc:
		return "s:" + v.S
	case value.TypeTimestamp:
		return "t:" + strconv.FormatInt(v.TS, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// groupAndAggregate partitions rows by stmt.GroupBy (or treats the
// whole set as one group when the projection has an aggregate but no
// GROUP BY, spec §4.5.4), computes the aggregate and passthrough
// group-key columns named by stmt.Projection, and applies HAVING.
// When neither GROUP BY nor an aggregate is present it delegates to
// projectPlain and returns that result unchanged.
//
// Alongside the projected rows it returns src, one pre-projection
// (source-schema-shaped) row per output row — the group's first
// member, or the row itself on the non-aggregate path — so that
// applyOrderBy can sort on a column the projection dropped.
func groupAndAggregate(stmt *Select, schema *catalog.TableSchema, rows []value.Row) (cols []string, out []value.Row, src []value.Row, err error) {
	if len(stmt.GroupBy) == 0 && !hasAggregate(stmt) {
		return projectPlain(stmt, schema, rows)
	}

	keyPos := make([]int, len(stmt.GroupBy))
	for i, col := range stmt.GroupBy {
		pos, ok := schema.ColumnPosition(col)
		if !ok {
			return nil, nil, nil, value.New(value.KindColumnNotFound, "executor.groupAndAggregate", col)
		}
		keyPos[i] = pos
	}

	type group struct {
		key     string
		members []value.Row
	}
	order := make([]string, 0)
	groups := make(map[string]*group)
	for _, row := range rows {
		key := groupKeyOf(row, keyPos)
		g, ok := groups[key]
		if !ok {
			g = &group{key: key}
			groups[key] = g
			order = append(order, key)
		}
		g.members = append(g.members, row)
	}
	if len(groups) == 0 {
		order = append(order, "")
		groups[""] = &group{}
	}

	projection := stmt.Projection
	if len(projection) == 0 {
		projection = make([]ProjectionItem, len(stmt.GroupBy))
		for i, col := range stmt.GroupBy {
			projection[i] = ProjectionItem{Column: col}
		}
	}
	cols = make([]string, len(projection))
	for i, p := range projection {
		cols[i] = p.OutputName()
	}

	for _, k := range order {
		g := groups[k]
		outRow := make(value.Row, len(projection))
		for i, p := range projection {
			if p.Agg != AggNone {
				outRow[i] = computeAggregate(p, schema, g.members)
				continue
			}
			if p.Distance != nil {
				if len(g.members) == 0 {
					outRow[i] = value.Null()
					continue
				}
				outRow[i] = evalDistance(p.Distance, schema, g.members[0])
				continue
			}
			pos, ok := schema.ColumnPosition(p.Column)
			if !ok || len(g.members) == 0 || pos >= len(g.members[0]) {
				outRow[i] = value.Null()
				continue
			}
			outRow[i] = g.members[0][pos]
		}
		if stmt.Having != nil {
			ok, herr := evaluateHaving(stmt.Having, cols, outRow)
			if herr != nil {
				return nil, nil, nil, herr
			}
			if !ok {
				continue
			}
		}
		out = append(out, outRow)
		if len(g.members) > 0 {
			src = append(src, g.members[0])
		} else {
			src = append(src, nil)
		}
	}
	return cols, out, src, nil
}

// evaluateHaving evaluates a HAVING predicate against an already
// aggregated output row, resolving Column by the output column list
// rather than the base schema.
func evaluateHaving(pred *Predicate, cols []string, row value.Row) (bool, error) {
	switch pred.Kind {
	case PredAnd:
		for i := range pred.Children {
			ok, err := evaluateHaving(&pred.Children[i], cols, row)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case PredOr:
		for i := range pred.Children {
			ok, err := evaluateHaving(&pred.Children[i], cols, row)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case PredNot:
		ok, err := evaluateHaving(pred.Operand, cols, row)
		return !ok, err
	case PredCompare:
		for i, c := range cols {
			if c == pred.Column {
				return compareValues(row[i], pred.Op, pred.Literal), nil
			}
		}
		return false, value.New(value.KindColumnNotFound, "executor.evaluateHaving", pred.Column)
	case PredIn:
		for i, c := range cols {
			if c != pred.Column {
				continue
			}
			for _, cand := range pred.Values {
				if row[i].Equal(cand) {
					return true, nil
				}
			}
			return false, nil
		}
		return false, value.New(value.KindColumnNotFound, "executor.evaluateHaving", pred.Column)
	default:
		return false, nil
	}
}

func computeAggregate(p ProjectionItem, schema *catalog.TableSchema, members []value.Row) value.Value {
	if p.Agg == AggCount && p.Column == "" {
		return value.Integer(int64(len(members)))
	}
	pos, ok := schema.ColumnPosition(p.Column)
	if !ok {
		return value.Null()
	}
	switch p.Agg {
	case AggCount:
		var n int64
		for _, row := range members {
			if pos < len(row) && !row[pos].IsNull() {
				n++
			}
		}
		return value.Integer(n)
	case AggCountDistinct:
		seen := make(map[string]bool)
		for _, row := range members {
			if pos < len(row) && !row[pos].IsNull() {
				seen[valueKey(row[pos])] = true
			}
		}
		return value.Integer(int64(len(seen)))
	case AggSum:
		var sum float64
		isFloat := false
		for _, row := range members {
			if pos >= len(row) {
				continue
			}
			if f, ok := row[pos].AsFloat64(); ok {
				sum += f
				if row[pos].Tag == value.TypeFloat {
					isFloat = true
				}
			}
		}
		if isFloat {
			return value.Float(sum)
		}
		return value.Integer(int64(sum))
	case AggAvg:
		var sum float64
		var n int
		for _, row := range members {
			if pos >= len(row) {
				continue
			}
			if f, ok := row[pos].AsFloat64(); ok {
				sum += f
				n++
			}
		}
		if n == 0 {
			return value.Null()
		}
		return value.Float(sum / float64(n))
	case AggMin, AggMax:
		var best *value.Value
		for i, row := range members {
			if pos >= len(row) || row[pos].IsNull() {
				continue
			}
			v := members[i][pos]
			if best == nil {
				best = &v
				continue
			}
			cmp, ok := v.Compare(*best)
			if !ok {
				continue
			}
			if (p.Agg == AggMin && cmp < 0) || (p.Agg == AggMax && cmp > 0) {
				best = &v
			}
		}
		if best == nil {
			return value.Null()
		}
		return *best
	default:
		return value.Null()
	}
}

// projectPlain builds the non-aggregate projection: SELECT * (empty
// Projection) emits every schema column in declared order, otherwise
// each ProjectionItem's named column. Row order is preserved 1:1 with
// rows, so the returned src slice (the untouched pre-projection rows)
// lets applyOrderBy sort on a column the projection dropped.
func projectPlain(stmt *Select, schema *catalog.TableSchema, rows []value.Row) ([]string, []value.Row, []value.Row, error) {
	items := stmt.Projection
	if len(items) == 0 {
		items = make([]ProjectionItem, len(schema.Columns))
		for i, c := range schema.Columns {
			items[i] = ProjectionItem{Column: c.Name}
		}
	}
	cols := make([]string, len(items))
	pos := make([]int, len(items))
	for i, it := range items {
		cols[i] = it.OutputName()
		if it.Distance != nil {
			pos[i] = -1
			continue
		}
		p, ok := schema.ColumnPosition(it.Column)
		if !ok {
			return nil, nil, nil, value.New(value.KindColumnNotFound, "executor.projectPlain", it.Column)
		}
		pos[i] = p
	}
	out := make([]value.Row, len(rows))
	for r, row := range rows {
		outRow := make(value.Row, len(items))
		for i, p := range pos {
			if items[i].Distance != nil {
				outRow[i] = evalDistance(items[i].Distance, schema, row)
			} else if p < len(row) {
				outRow[i] = row[p]
			} else {
				outRow[i] = value.Null()
			}
		}
		out[r] = outRow
	}
	return cols, out, rows, nil
}

// applyDistinct implements spec §4.5.4's `DISTINCT`: deduplicates by a
// stringified row key over the already-projected output rows. src is
// filtered in lockstep so applyOrderBy's source-row fallback still
// lines up with rows by index.
func applyDistinct(stmt *Select, rows []value.Row, src []value.Row) ([]value.Row, []value.Row) {
	if !stmt.Distinct {
		return rows, src
	}
	seen := make(map[string]bool, len(rows))
	out := make([]value.Row, 0, len(rows))
	outSrc := make([]value.Row, 0, len(rows))
	for i, row := range rows {
		key := rowKey(row)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
		if i < len(src) {
			outSrc = append(outSrc, src[i])
		} else {
			outSrc = append(outSrc, nil)
		}
	}
	return out, outSrc
}

func rowKey(row value.Row) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = valueKey(v)
	}
	return fmt.Sprintf("%v", parts)
}

// orderKeyResolved is one ORDER BY term resolved to where its sort
// value lives: either the projected output row (idx into cols/rows,
// covering aliases, aggregates, and distance expressions) or the
// pre-projection source row (idx into schema, covering a column the
// projection dropped — spec §8 scenario 4's `ORDER BY o.oid` after a
// join projects away `oid`).
type orderKeyResolved struct {
	fromSource bool
	idx        int
	desc       bool
}

// applyOrderBy sorts the projected rows by stmt.OrderBy. Each key is
// resolved first against the output columns (so aliases and
// aggregates win when a name collides), falling back to the
// pre-projection schema via src, the parallel slice of untouched
// source rows groupAndAggregate/projectPlain hand back alongside the
// projection.
func applyOrderBy(stmt *Select, schema *catalog.TableSchema, cols []string, rows []value.Row, src []value.Row) []value.Row {
	if len(stmt.OrderBy) == 0 {
		return rows
	}
	keys := make([]orderKeyResolved, 0, len(stmt.OrderBy))
	for _, ok := range stmt.OrderBy {
		if idx := indexOf(cols, ok.Column); idx >= 0 {
			keys = append(keys, orderKeyResolved{idx: idx, desc: ok.Desc})
			continue
		}
		if schema != nil && src != nil {
			if pos, found := schema.ColumnPosition(ok.Column); found {
				keys = append(keys, orderKeyResolved{fromSource: true, idx: pos, desc: ok.Desc})
			}
		}
	}
	if len(keys) == 0 {
		return rows
	}

	type indexed struct {
		out value.Row
		src value.Row
	}
	combined := make([]indexed, len(rows))
	for i, row := range rows {
		var s value.Row
		if i < len(src) {
			s = src[i]
		}
		combined[i] = indexed{out: row, src: s}
	}

	sort.SliceStable(combined, func(a, b int) bool {
		for _, k := range keys {
			var va, vb value.Value
			if k.fromSource {
				if k.idx >= len(combined[a].src) || k.idx >= len(combined[b].src) {
					continue
				}
				va, vb = combined[a].src[k.idx], combined[b].src[k.idx]
			} else {
				va, vb = combined[a].out[k.idx], combined[b].out[k.idx]
			}
			cmp, ok := va.Compare(vb)
			if !ok || cmp == 0 {
				continue
			}
			if k.desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})

	sorted := make([]value.Row, len(combined))
	for i, c := range combined {
		sorted[i] = c.out
	}
	return sorted
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}

func applyLimitOffset(stmt *Select, rows []value.Row) []value.Row {
	start := stmt.Offset
	if start < 0 {
		start = 0
	}
	if start >= len(rows) {
		return nil
	}
	rows = rows[start:]
	if stmt.Limit >= 0 && stmt.Limit < len(rows) {
		rows = rows[:stmt.Limit]
	}
	return rows
}

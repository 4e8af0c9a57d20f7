package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motedb/motedb/internal/cache"
	"github.com/motedb/motedb/internal/catalog"
	"github.com/motedb/motedb/internal/config"
	"github.com/motedb/motedb/internal/lsm"
	"github.com/motedb/motedb/internal/value"
)

func newTestExecutor(t *testing.T) (*Executor, *lsm.Engine) {
	t.Helper()
	dir := t.TempDir()
	cfg := *config.DefaultConfig()

	reg, err := catalog.Open(dir)
	require.NoError(t, err)

	items, err := catalog.NewTableSchema("items", []catalog.ColumnDef{
		{Name: "id", Type: catalog.ColInteger, Position: 0},
		{Name: "name", Type: catalog.ColText, Position: 1},
		{Name: "price", Type: catalog.ColFloat, Position: 2},
		{Name: "category", Type: catalog.ColText, Position: 3},
	})
	require.NoError(t, err)
	require.NoError(t, items.WithPrimaryKey("id"))
	items.AddIndex(catalog.IndexDef{Name: "items_category", Table: "items", Column: "category", Kind: catalog.IndexBTree})
	require.NoError(t, reg.CreateTable(items))

	tags, err := catalog.NewTableSchema("tags", []catalog.ColumnDef{
		{Name: "item_id", Type: catalog.ColInteger, Position: 0},
		{Name: "label", Type: catalog.ColText, Position: 1},
	})
	require.NoError(t, err)
	require.NoError(t, reg.CreateTable(tags))

	e, err := lsm.Open(dir, cfg)
	require.NoError(t, err)

	ex := New(e, cache.New(100), cfg.Executor)
	return ex, e
}

func seedItems(t *testing.T, e *lsm.Engine) {
	t.Helper()
	rows := []struct {
		id       int64
		name     string
		price    float64
		category string
	}{
		{1, "widget", 9.99, "tools"},
		{2, "gadget", 19.99, "tools"},
		{3, "gizmo", 29.99, "electronics"},
		{4, "doohickey", 4.99, "misc"},
	}
	for _, r := range rows {
		row := value.Row{value.Integer(r.id), value.Text(r.name), value.Float(r.price), value.Text(r.category)}
		require.NoError(t, e.Put("items", uint64(r.id), row, int64(r.id)*1000))
	}
}

func TestExecuteFullScanWithFilter(t *testing.T) {
	ex, e := newTestExecutor(t)
	seedItems(t, e)

	res, err := ex.Execute(&Select{
		Table: "items",
		Where: newPred(Compare("category", OpEq, value.Text("tools"))),
		Limit: -1,
	})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
}

func TestExecutePointQueryPKFastPath(t *testing.T) {
	ex, e := newTestExecutor(t)
	seedItems(t, e)

	schema, err := e.Schema("items")
	require.NoError(t, err)

	stmt := &Select{Table: "items", Where: newPred(Compare("id", OpEq, value.Integer(3))), Limit: -1}
	plan := ChoosePlan(stmt, schema, config.DefaultConfig().Executor)
	assert.Equal(t, PlanPointQueryPK, plan.Kind)
	assert.Equal(t, 1, plan.Rule)

	res, err := ex.Execute(stmt)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, value.Text("gizmo"), res.Rows[0][1])
}

func TestChoosePlanFullScanWhenNoFastPathApplies(t *testing.T) {
	ex, e := newTestExecutor(t)
	seedItems(t, e)
	_ = ex

	schema, err := e.Schema("items")
	require.NoError(t, err)

	stmt := &Select{Table: "items", Where: newPred(Compare("name", OpEq, value.Text("widget"))), Limit: -1}
	plan := ChoosePlan(stmt, schema, config.DefaultConfig().Executor)
	assert.Equal(t, PlanFullScan, plan.Kind)
	assert.Equal(t, 0, plan.Rule)
}

func TestExecuteGroupByAggregate(t *testing.T) {
	ex, e := newTestExecutor(t)
	seedItems(t, e)

	stmt := &Select{
		Table:   "items",
		GroupBy: []string{"category"},
		Projection: []ProjectionItem{
			{Column: "category"},
			{Agg: AggCount, Alias: "n"},
		},
		OrderBy: []OrderKey{{Column: "category"}},
		Limit:   -1,
	}
	res, err := ex.Execute(stmt)
	require.NoError(t, err)
	require.Equal(t, []string{"category", "n"}, res.Columns)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, value.Text("electronics"), res.Rows[0][0])
	assert.Equal(t, value.Integer(1), res.Rows[0][1])
	assert.Equal(t, value.Text("tools"), res.Rows[2][0])
	assert.Equal(t, value.Integer(2), res.Rows[2][1])
}

func TestExecuteOrderByDescAndLimitOffset(t *testing.T) {
	ex, e := newTestExecutor(t)
	seedItems(t, e)

	stmt := &Select{
		Table:   "items",
		OrderBy: []OrderKey{{Column: "price", Desc: true}},
		Limit:   2,
		Offset:  1,
	}
	res, err := ex.Execute(stmt)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, value.Text("gadget"), res.Rows[0][1])
	assert.Equal(t, value.Text("widget"), res.Rows[1][1])
}

func TestExecuteInnerJoin(t *testing.T) {
	ex, e := newTestExecutor(t)
	seedItems(t, e)
	require.NoError(t, e.Put("tags", 1, value.Row{value.Integer(1), value.Text("sale")}, 1000))
	require.NoError(t, e.Put("tags", 2, value.Row{value.Integer(3), value.Text("new")}, 1000))

	stmt := &Select{
		Table: "items",
		Join:  &Join{Table: "tags", Kind: JoinInner, LeftColumn: "id", RightColumn: "item_id"},
		Projection: []ProjectionItem{
			{Column: "items.name"},
			{Column: "tags.label"},
		},
		Limit: -1,
	}
	res, err := ex.Execute(stmt)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
}

func TestExecuteLeftJoinFillsNulls(t *testing.T) {
	ex, e := newTestExecutor(t)
	seedItems(t, e)
	require.NoError(t, e.Put("tags", 1, value.Row{value.Integer(1), value.Text("sale")}, 1000))

	stmt := &Select{
		Table: "items",
		Join:  &Join{Table: "tags", Kind: JoinLeft, LeftColumn: "id", RightColumn: "item_id"},
		Limit: -1,
	}
	res, err := ex.Execute(stmt)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 4)
}

func TestExecuteScalarSubquery(t *testing.T) {
	ex, e := newTestExecutor(t)
	seedItems(t, e)

	sub := &Select{
		Table:      "items",
		Projection: []ProjectionItem{{Column: "price"}},
		Where:      newPred(Compare("name", OpEq, value.Text("gizmo"))),
		Limit:      -1,
	}
	stmt := &Select{
		Table: "items",
		Where: newPred(Predicate{Kind: PredCompare, Column: "price", Op: OpEq, ScalarSubquery: sub}),
		Limit: -1,
	}
	res, err := ex.Execute(stmt)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, value.Text("gizmo"), res.Rows[0][1])
}

func TestExecuteInSubquery(t *testing.T) {
	ex, e := newTestExecutor(t)
	seedItems(t, e)

	sub := &Select{
		Table:      "items",
		Projection: []ProjectionItem{{Column: "category"}},
		Where:      newPred(Compare("category", OpEq, value.Text("tools"))),
		Limit:      -1,
	}
	stmt := &Select{
		Table: "items",
		Where: newPred(Predicate{Kind: PredInSubquery, Column: "category", InSubquery: sub}),
		Limit: -1,
	}
	res, err := ex.Execute(stmt)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
}

func TestExecuteProjectedDistanceExpr(t *testing.T) {
	dir := t.TempDir()
	cfg := *config.DefaultConfig()

	reg, err := catalog.Open(dir)
	require.NoError(t, err)
	docs, err := catalog.NewTableSchema("docs", []catalog.ColumnDef{
		{Name: "id", Type: catalog.ColInteger, Position: 0},
		{Name: "embedding", Type: catalog.ColVector, Position: 1, Dim: 3},
	})
	require.NoError(t, err)
	require.NoError(t, reg.CreateTable(docs))

	e, err := lsm.Open(dir, cfg)
	require.NoError(t, err)
	ex := New(e, cache.New(100), cfg.Executor)

	require.NoError(t, e.Put("docs", 1, value.Row{value.Integer(1), value.Vector([]float32{1, 0, 0})}, 1000))
	require.NoError(t, e.Put("docs", 2, value.Row{value.Integer(2), value.Vector([]float32{0, 1, 0})}, 2000))

	stmt := &Select{
		Table: "docs",
		Projection: []ProjectionItem{
			{Column: "id"},
			{Distance: &DistanceExpr{Column: "embedding", Query: []float32{1, 0, 0}, Kind: DistanceL2}, Alias: "dist"},
		},
		OrderBy: []OrderKey{{Column: "dist"}},
		Limit:   -1,
	}
	res, err := ex.Execute(stmt)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "dist"}, res.Columns)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, value.Integer(1), res.Rows[0][0])
	assert.InDelta(t, 0.0, res.Rows[0][1].F, 1e-6)
}

func TestExecuteProjectedInnerProductDistance(t *testing.T) {
	dir := t.TempDir()
	cfg := *config.DefaultConfig()

	reg, err := catalog.Open(dir)
	require.NoError(t, err)
	docs, err := catalog.NewTableSchema("docs", []catalog.ColumnDef{
		{Name: "id", Type: catalog.ColInteger, Position: 0},
		{Name: "embedding", Type: catalog.ColVector, Position: 1, Dim: 3},
	})
	require.NoError(t, err)
	require.NoError(t, reg.CreateTable(docs))

	e, err := lsm.Open(dir, cfg)
	require.NoError(t, err)
	ex := New(e, cache.New(100), cfg.Executor)

	require.NoError(t, e.Put("docs", 1, value.Row{value.Integer(1), value.Vector([]float32{1, 2, 3})}, 1000))

	stmt := &Select{
		Table: "docs",
		Projection: []ProjectionItem{
			{Column: "id"},
			{Distance: &DistanceExpr{Column: "embedding", Query: []float32{4, 5, 6}, Kind: DistanceInner}, Alias: "dist"},
		},
		Limit: -1,
	}
	res, err := ex.Execute(stmt)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.InDelta(t, -32.0, res.Rows[0][1].F, 1e-5)
}

func TestEvaluateAndOrNot(t *testing.T) {
	row := value.Row{value.Integer(5), value.Text("x")}
	schema, err := catalog.NewTableSchema("t", []catalog.ColumnDef{
		{Name: "n", Type: catalog.ColInteger, Position: 0},
		{Name: "s", Type: catalog.ColText, Position: 1},
	})
	require.NoError(t, err)

	pred := And(Compare("n", OpGt, value.Integer(1)), Compare("s", OpEq, value.Text("x")))
	ok, err := Evaluate(&pred, row, schema)
	require.NoError(t, err)
	assert.True(t, ok)

	orPred := Or(Compare("n", OpLt, value.Integer(1)), Compare("s", OpEq, value.Text("x")))
	ok, err = Evaluate(&orPred, row, schema)
	require.NoError(t, err)
	assert.True(t, ok)

	notPred := Predicate{Kind: PredNot, Operand: newPred(Compare("n", OpEq, value.Integer(5)))}
	ok, err = Evaluate(&notPred, row, schema)
	require.NoError(t, err)
	assert.False(t, ok)
}

func newPred(p Predicate) *Predicate { return &p }

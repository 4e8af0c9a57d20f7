package executor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/motedb/motedb/internal/catalog"
	"github.com/motedb/motedb/internal/config"
	"github.com/motedb/motedb/internal/value"
)

func planTestSchema(t *testing.T) *catalog.TableSchema {
	t.Helper()
	s, err := catalog.NewTableSchema("items", []catalog.ColumnDef{
		{Name: "id", Type: catalog.ColInteger, Position: 0},
		{Name: "price", Type: catalog.ColFloat, Position: 1},
		{Name: "category", Type: catalog.ColText, Position: 2},
		{Name: "embedding", Type: catalog.ColVector, Position: 3, Dim: 3},
	})
	require.NoError(t, err)
	require.NoError(t, s.WithPrimaryKey("id"))
	s.AddIndex(catalog.IndexDef{Name: "items_category", Table: "items", Column: "category", Kind: catalog.IndexBTree})
	s.AddIndex(catalog.IndexDef{Name: "items_price", Table: "items", Column: "price", Kind: catalog.IndexBTree})
	s.AddIndex(catalog.IndexDef{Name: "items_embedding", Table: "items", Column: "embedding", Kind: catalog.IndexVector, Dim: 3})
	return s
}

// diffOpts leaves the Residual predicate out of the comparison
// entirely; these tests check the chosen access path, not the
// leftover predicate.
var diffOpts = cmp.Options{
	cmpopts.IgnoreFields(Plan{}, "Residual"),
}

func TestChoosePlanRule1PointQueryPK(t *testing.T) {
	schema := planTestSchema(t)
	cfg := config.DefaultConfig().Executor

	stmt := &Select{Table: "items", Where: newPred(Compare("id", OpEq, value.Integer(7))), Limit: -1}
	got := ChoosePlan(stmt, schema, cfg)
	want := Plan{Table: "items", Kind: PlanPointQueryPK, Rule: 1, PKValue: value.Integer(7), StorageLimit: -1}
	if diff := cmp.Diff(want, got, diffOpts); diff != "" {
		t.Fatalf("ChoosePlan mismatch (-want +got):\n%s", diff)
	}
}

func TestChoosePlanRule2PKOrderLimit(t *testing.T) {
	schema := planTestSchema(t)
	cfg := config.DefaultConfig().Executor

	stmt := &Select{Table: "items", OrderBy: []OrderKey{{Column: "id", Desc: true}}, Limit: 5}
	got := ChoosePlan(stmt, schema, cfg)
	require.Equal(t, PlanPKOrderLimit, got.Kind)
	require.Equal(t, 2, got.Rule)
	require.True(t, got.Desc)
	require.Equal(t, 5, got.StorageLimit)
}

func TestChoosePlanRule3VectorOrderLimit(t *testing.T) {
	schema := planTestSchema(t)
	cfg := config.DefaultConfig().Executor

	stmt := &Select{
		Table: "items",
		Projection: []ProjectionItem{
			{Distance: &DistanceExpr{Column: "embedding", Query: []float32{1, 0, 0}, Kind: DistanceL2}, Alias: "dist"},
		},
		OrderBy: []OrderKey{{Column: "embedding"}},
		Limit:   10,
		Where:   newPred(Predicate{Kind: PredVectorSearch, VectorColumn: "embedding", VectorQuery: []float32{1, 0, 0}, VectorK: 10}),
	}
	got := ChoosePlan(stmt, schema, cfg)
	require.Equal(t, PlanVectorSearch, got.Kind)
	require.Equal(t, 3, got.Rule)
	require.Equal(t, 10, got.VectorK)
}

func TestChoosePlanRule5CountStar(t *testing.T) {
	schema := planTestSchema(t)
	cfg := config.DefaultConfig().Executor

	stmt := &Select{Table: "items", Projection: []ProjectionItem{{Agg: AggCount}}, Limit: -1}
	got := ChoosePlan(stmt, schema, cfg)
	require.Equal(t, PlanCount, got.Kind)
	require.Equal(t, 5, got.Rule)
}

func TestChoosePlanRule7PointIndexOnNonPK(t *testing.T) {
	schema := planTestSchema(t)
	cfg := config.DefaultConfig().Executor

	stmt := &Select{Table: "items", Where: newPred(Compare("category", OpEq, value.Text("tools"))), Limit: -1}
	got := ChoosePlan(stmt, schema, cfg)
	require.Equal(t, PlanPointIndex, got.Kind)
	require.Equal(t, 7, got.Rule)
	require.Equal(t, "category", got.Column)
}

func TestChoosePlanRule8InequalityOnIndexedColumn(t *testing.T) {
	schema := planTestSchema(t)
	cfg := config.DefaultConfig().Executor

	stmt := &Select{Table: "items", Where: newPred(Compare("price", OpGt, value.Float(10))), Limit: -1}
	got := ChoosePlan(stmt, schema, cfg)
	require.Equal(t, PlanInequalityIndex, got.Kind)
	require.Equal(t, 8, got.Rule)
}

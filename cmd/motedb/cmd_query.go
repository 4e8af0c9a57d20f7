package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/motedb/motedb/internal/cache"
	"github.com/motedb/motedb/internal/executor"
	"github.com/motedb/motedb/internal/lsm"
	"github.com/motedb/motedb/internal/value"
)

var (
	queryWhere string
	queryLimit int
	queryOrder string
)

// queryCmd runs a single-table query against an open database. The SQL
// lexer and parser are out of scope for this engine (spec names them
// as an external collaborator); this command instead builds an
// executor.Select directly from flags, enough to exercise the real
// plan-choosing and row pipeline without requiring a full SQL front end.
var queryCmd = &cobra.Command{
	Use:   "query <table>",
	Short: "Run a single-table query (--where col=value, --order col[:desc], --limit n)",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryWhere, "where", "", "Equality filter, column=value")
	queryCmd.Flags().IntVar(&queryLimit, "limit", -1, "Row limit, -1 for unbounded")
	queryCmd.Flags().StringVar(&queryOrder, "order", "", "ORDER BY column, optionally suffixed :desc")
}

func runQuery(cmd *cobra.Command, args []string) error {
	table := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e, err := lsm.Open(dbDir, *cfg)
	if err != nil {
		return fmt.Errorf("open %s: %w", dbDir, err)
	}
	defer e.Close()

	ex := executor.New(e, cache.New(cfg.Cache.EntryCap), cfg.Executor)

	stmt := &executor.Select{Table: table, Limit: queryLimit}

	if queryWhere != "" {
		col, lit, err := parseEquality(queryWhere)
		if err != nil {
			return err
		}
		pred := executor.Compare(col, executor.OpEq, lit)
		stmt.Where = &pred
	}

	if queryOrder != "" {
		col, desc := queryOrder, false
		if cut, ok := strings.CutSuffix(queryOrder, ":desc"); ok {
			col, desc = cut, true
		}
		stmt.OrderBy = []executor.OrderKey{{Column: col, Desc: desc}}
	}

	logger.Debug("running query", zap.String("table", table), zap.String("where", queryWhere))

	res, err := ex.Execute(stmt)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	printResult(res)
	return nil
}

func parseEquality(expr string) (string, value.Value, error) {
	col, raw, ok := strings.Cut(expr, "=")
	if !ok {
		return "", value.Null(), fmt.Errorf("--where must be col=value, got %q", expr)
	}
	col = strings.TrimSpace(col)
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return col, value.Integer(n), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return col, value.Float(f), nil
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return col, value.Bool(b), nil
	}
	return col, value.Text(strings.Trim(raw, `"`)), nil
}

func printResult(res *executor.Result) {
	fmt.Println(strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = formatValue(v)
		}
		fmt.Println(strings.Join(parts, "\t"))
	}
	fmt.Printf("(%d rows)\n", len(res.Rows))
}

func formatValue(v value.Value) string {
	if v.IsNull() {
		return "NULL"
	}
	switch v.Tag {
	case value.TypeInteger:
		return strconv.FormatInt(v.I, 10)
	case value.TypeFloat:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case value.TypeBool:
		return strconv.FormatBool(v.B)
	case value.TypeText, value.TypeTextDoc:
		return v.S
	default:
		return fmt.Sprintf("%v", v)
	}
}

package transformer

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mTatsuro/llm-data-visualizer/internal/dataset"
	"github.com/mTatsuro/llm-data-visualizer/internal/plan"
)

func apply(t *dataset.Table, ts []plan.Transform) *dataset.Table {
	out, _ := New().Run(t, ts)
	return out
}

func intp(n int) *int { return &n }

func companies() *dataset.Table {
	return dataset.New(
		[]dataset.Column{
			{Name: "Company", Kind: dataset.KindString},
			{Name: "Industry", Kind: dataset.KindString},
			{Name: "ARR_num", Kind: dataset.KindNumber},
			{Name: "Employees", Kind: dataset.KindInteger},
			{Name: "Top Investors", Kind: dataset.KindString},
		},
		[][]any{
			{"Acme", "Fintech", 10e6, int64(40), "Sequoia, Accel"},
			{"Bolt", "Health", 1e6, int64(12), "Accel"},
			{"Coda", "Fintech", 5e6, int64(25), nil},
			{"Dune", nil, 2e6, int64(8), "Sequoia,  Index , Accel"},
			{"Echo", "Health", nil, int64(30), ""},
		},
	)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	base := companies()
	before := base.Clone()
	_ = apply(base, []plan.Transform{
		plan.Sort{By: []string{"ARR_num"}, Descending: true},
		plan.Filter{Expr: "Employees > 10"},
		plan.Select{Columns: []string{"Industry", "ARR_num"}},
		plan.GroupBy{By: []string{"Industry"}, Aggregations: []plan.Aggregation{{Column: "ARR_num", Agg: "sum"}}},
	})
	if diff := cmp.Diff(before, base); diff != "" {
		t.Fatalf("base table mutated (-before +after):\n%s", diff)
	}
}

func TestSelectKeepsTableOrder(t *testing.T) {
	out := apply(companies(), []plan.Transform{
		plan.Select{Columns: []string{"Employees", "Nope", "Company"}},
	})
	if diff := cmp.Diff([]string{"Company", "Employees"}, out.Names()); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}

	out, skips := New().Run(companies(), []plan.Transform{plan.Select{Columns: []string{"Nope"}}})
	if len(out.Columns) != 5 || len(skips) != 1 {
		t.Fatalf("select of unknown columns should be a no-op, got %v skips=%v", out.Names(), skips)
	}
}

func TestSortStableAndMissingLast(t *testing.T) {
	tbl := dataset.New(
		[]dataset.Column{{Name: "k", Kind: dataset.KindInteger}, {Name: "id", Kind: dataset.KindString}},
		[][]any{{int64(2), "a"}, {nil, "b"}, {int64(1), "c"}, {int64(2), "d"}, {int64(1), "e"}},
	)
	ids := func(t *dataset.Table) []any { return t.Values("id") }

	asc := apply(tbl, []plan.Transform{plan.Sort{By: []string{"k"}}})
	if diff := cmp.Diff([]any{"c", "e", "a", "d", "b"}, ids(asc)); diff != "" {
		t.Fatalf("asc mismatch (-want +got):\n%s", diff)
	}
	desc := apply(tbl, []plan.Transform{plan.Sort{By: []string{"k"}, Descending: true}})
	if diff := cmp.Diff([]any{"a", "d", "c", "e", "b"}, ids(desc)); diff != "" {
		t.Fatalf("desc mismatch (-want +got):\n%s", diff)
	}
	multi := apply(tbl, []plan.Transform{plan.Sort{By: []string{"missing", "k", "id"}, Descending: true}})
	if diff := cmp.Diff([]any{"d", "a", "e", "c", "b"}, ids(multi)); diff != "" {
		t.Fatalf("multi mismatch (-want +got):\n%s", diff)
	}
}

func TestValueCountsExplode(t *testing.T) {
	tbl := dataset.New(
		[]dataset.Column{{Name: "Tags", Kind: dataset.KindString}},
		[][]any{{"a, b"}, {"b"}, {nil}},
	)
	out := apply(tbl, []plan.Transform{plan.ValueCounts{Column: "Tags", Delimiter: ","}})
	want := &dataset.Table{
		Columns: []dataset.Column{{Name: "Tags", Kind: dataset.KindString}, {Name: "count", Kind: dataset.KindInteger}},
		Rows:    [][]any{{"b", int64(2)}, {"a", int64(1)}},
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("value_counts mismatch (-want +got):\n%s", diff)
	}
}

func TestValueCountsTiesAndTopN(t *testing.T) {
	tbl := dataset.New(
		[]dataset.Column{{Name: "c", Kind: dataset.KindString}},
		[][]any{{"x"}, {"y"}, {"z"}, {"y"}, {"x"}, {"w"}},
	)
	out := apply(tbl, []plan.Transform{plan.ValueCounts{Column: "c", TopN: intp(3)}})
	if diff := cmp.Diff([]any{"x", "y", "z"}, out.Values("c")); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestValueCountsHeadSemantics(t *testing.T) {
	tbl := dataset.New(
		[]dataset.Column{{Name: "c", Kind: dataset.KindString}},
		[][]any{{"x"}, {"y"}, {"x"}},
	)
	tests := []struct {
		name string
		topN *int
		want []any
	}{
		{"unset keeps all", nil, []any{"x", "y"}},
		{"zero keeps none", intp(0), []any{}},
		{"larger than rows", intp(5), []any{"x", "y"}},
		{"negative drops tail", intp(-1), []any{"x"}},
		{"negative past start", intp(-3), []any{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := apply(tbl, []plan.Transform{plan.ValueCounts{Column: "c", TopN: tc.topN}})
			if diff := cmp.Diff([]string{"c", "count"}, out.Names()); diff != "" {
				t.Fatalf("columns mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tc.want, out.Values("c")); diff != "" {
				t.Fatalf("values mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValueCountsKeepsEmptyPieces(t *testing.T) {
	tbl := dataset.New(
		[]dataset.Column{{Name: "Tags", Kind: dataset.KindString}},
		[][]any{{"a,,b"}, {"a, "}, {"  "}},
	)
	out := apply(tbl, []plan.Transform{plan.ValueCounts{Column: "Tags", Delimiter: ","}})
	want := [][]any{{"a", int64(2)}, {"", int64(2)}, {"b", int64(1)}}
	if diff := cmp.Diff(want, out.Rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestInvestorFrequencyUsesConfiguredColumn(t *testing.T) {
	e := New(WithInvestorColumn("Top Investors"))
	out, _ := e.Run(companies(), []plan.Transform{plan.InvestorFrequency("")})
	want := [][]any{
		{"Accel", int64(3)},
		{"Sequoia", int64(2)},
		{"Index", int64(1)},
	}
	if diff := cmp.Diff([]string{"Investor", "Company_Count"}, out.Names()); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, out.Rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupBy(t *testing.T) {
	out := apply(companies(), []plan.Transform{
		plan.GroupBy{
			By: []string{"Industry"},
			Aggregations: []plan.Aggregation{
				{Column: "ARR_num", Agg: "sum", NewColumn: "total"},
				{Column: "ARR_num", Agg: "mean"},
				{Column: "ARR_num", Agg: "count", NewColumn: "n"},
				{Column: "Employees", Agg: "median", NewColumn: "med"},
				{Column: "Employees", Agg: "max", NewColumn: "biggest"},
				{Column: "Nope", Agg: "sum"},
				{Column: "ARR_num", Agg: "stddev"},
			},
		},
	})
	wantCols := []string{"Industry", "total", "mean_ARR_num", "n", "med", "biggest"}
	if diff := cmp.Diff(wantCols, out.Names()); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	want := [][]any{
		{"Fintech", 15e6, 7.5e6, int64(2), 32.5, int64(40)},
		{"Health", 1e6, 1e6, int64(1), 21.0, int64(30)},
	}
	if diff := cmp.Diff(want, out.Rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupByAllMissing(t *testing.T) {
	tbl := dataset.New(
		[]dataset.Column{{Name: "g", Kind: dataset.KindString}, {Name: "v", Kind: dataset.KindNumber}},
		[][]any{{"a", nil}, {"a", nil}},
	)
	out := apply(tbl, []plan.Transform{plan.GroupBy{
		By:           []string{"g"},
		Aggregations: []plan.Aggregation{{Column: "v", Agg: "sum"}, {Column: "v", Agg: "mean"}},
	}})
	if diff := cmp.Diff([][]any{{"a", 0.0, nil}}, out.Rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestSkippedTransforms(t *testing.T) {
	_, skips := New().Run(companies(), []plan.Transform{
		plan.GroupBy{By: []string{"Nope"}, Aggregations: []plan.Aggregation{{Column: "ARR_num", Agg: "sum"}}},
		plan.Filter{Expr: "import os"},
		plan.Filter{Expr: "Nope > 1"},
		plan.ValueCounts{Column: "Nope"},
		plan.Unknown{Tag: "pivot"},
		plan.Sort{By: []string{"Company"}},
	})
	var ops []plan.Op
	for _, s := range skips {
		if !errors.Is(s.Err, ErrSkipped) {
			t.Fatalf("skip %v does not wrap ErrSkipped", s)
		}
		ops = append(ops, s.Op)
	}
	want := []plan.Op{plan.OpGroupBy, plan.OpFilter, plan.OpFilter, plan.OpValueCounts, "pivot"}
	if diff := cmp.Diff(want, ops); diff != "" {
		t.Fatalf("skipped ops mismatch (-want +got):\n%s", diff)
	}
}

func TestFilter(t *testing.T) {
	out := apply(companies(), []plan.Transform{plan.Filter{Expr: `Industry == "Fintech" and ARR_num >= 5e6`}})
	if diff := cmp.Diff([]any{"Acme", "Coda"}, out.Values("Company")); diff != "" {
		t.Fatalf("filter mismatch (-want +got):\n%s", diff)
	}
}

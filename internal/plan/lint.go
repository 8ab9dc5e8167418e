package plan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/mTatsuro/llm-data-visualizer/internal/filterexpr"
)

// Issue is a single lint finding for a plan. Path is a dotted path into the
// plan (e.g. "chart.transforms[1].by", "chart.encoding.x").
type Issue struct {
	Path    string
	Message string
}

// Error implements error so an Issue can be reported on its own.
func (i Issue) Error() string { return fmt.Sprintf("%s: %s", i.Path, i.Message) }

var knownAggs = map[string]struct{}{
	"count":  {},
	"sum":    {},
	"mean":   {},
	"min":    {},
	"max":    {},
	"median": {},
}

// KnownAgg reports whether agg is a supported aggregation name.
func KnownAgg(agg string) bool {
	_, ok := knownAggs[strings.ToLower(strings.TrimSpace(agg))]
	return ok
}

// Lint checks every column reference in p against columns, the names of the
// base table. It never mutates the plan and never fails: the executor repairs
// or skips whatever Lint reports. Columns produced by an earlier transform
// (groupby new_column, value_counts outputs) are tracked so later references
// to them are not flagged. A nil columns skips the column checks.
func Lint(p Plan, columns []string) []Issue {
	var issues []Issue
	known := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		known[c] = struct{}{}
	}
	check := func(path, col string) {
		if col == "" || columns == nil {
			return
		}
		if _, ok := known[col]; !ok {
			issues = append(issues, Issue{Path: path, Message: fmt.Sprintf("unknown column %q", col)})
		}
	}

	for i, t := range p.Chart.Transforms {
		base := fmt.Sprintf("chart.transforms[%d]", i)
		switch t := t.(type) {
		case GroupBy:
			if len(t.By) == 0 {
				issues = append(issues, Issue{Path: base + ".by", Message: "groupby without columns is a no-op"})
			}
			for j, c := range t.By {
				check(fmt.Sprintf("%s.by[%d]", base, j), c)
			}
			if len(t.Aggregations) == 0 {
				issues = append(issues, Issue{Path: base + ".aggregations", Message: "groupby without aggregations is a no-op"})
			}
			for j, a := range t.Aggregations {
				check(fmt.Sprintf("%s.aggregations[%d].column", base, j), a.Column)
				if !KnownAgg(a.Agg) {
					issues = append(issues, Issue{
						Path:    fmt.Sprintf("%s.aggregations[%d].agg", base, j),
						Message: fmt.Sprintf("unknown aggregation %q", a.Agg),
					})
				}
			}
			// A groupby replaces the column set.
			known = map[string]struct{}{}
			for _, c := range t.By {
				known[c] = struct{}{}
			}
			for _, a := range t.Aggregations {
				known[aggOutputName(a)] = struct{}{}
			}
		case Sort:
			for j, c := range t.By {
				check(fmt.Sprintf("%s.by[%d]", base, j), c)
			}
		case Select:
			for j, c := range t.Columns {
				check(fmt.Sprintf("%s.columns[%d]", base, j), c)
			}
		case Filter:
			if strings.TrimSpace(t.Expr) == "" {
				issues = append(issues, Issue{Path: base + ".filter_expr", Message: "empty filter is a no-op"})
				break
			}
			e, err := filterexpr.Compile(t.Expr)
			if err != nil {
				issues = append(issues, Issue{Path: base + ".filter_expr", Message: fmt.Sprintf("filter is skipped: %v", err)})
				break
			}
			for _, c := range e.Columns() {
				check(base+".filter_expr", c)
			}
		case ValueCounts:
			if t.Column == "" && t.Alias != OpInvestorFrequency {
				issues = append(issues, Issue{Path: base + ".column", Message: "value_counts requires a column"})
			}
			check(base+".column", t.Column)
			label, count := t.OutputColumns()
			known = map[string]struct{}{label: {}, count: {}}
		case Unknown:
			issues = append(issues, Issue{Path: base + ".op", Message: fmt.Sprintf("unknown transform %q is ignored", t.Tag)})
		}
	}

	enc := p.Chart.Encoding
	check("chart.encoding.x", enc.X)
	check("chart.encoding.y", enc.Y)
	check("chart.encoding.label", enc.Label)
	check("chart.encoding.value", enc.Value)
	check("chart.encoding.color", enc.Color)
	for i, c := range enc.Tooltip {
		check(fmt.Sprintf("chart.encoding.tooltip[%d]", i), c)
	}
	return issues
}

// OutputColumns returns the label and count column names a value_counts
// produces.
func (v ValueCounts) OutputColumns() (label, count string) {
	label, count = v.LabelColumn, v.CountColumn
	if label == "" {
		label = v.Column
	}
	if count == "" {
		count = "count"
	}
	return label, count
}

// AggOutputName returns the column name an aggregation writes to.
func AggOutputName(a Aggregation) string { return aggOutputName(a) }

func aggOutputName(a Aggregation) string {
	if n := strings.TrimSpace(a.NewColumn); n != "" {
		return n
	}
	return strings.ToLower(strings.TrimSpace(a.Agg)) + "_" + a.Column
}

// Fingerprint returns a stable hash of the chart-defining parts of a plan,
// used to key cached results and history entries. The target id is left out
// so an update that changes nothing hashes like the original.
func Fingerprint(p Plan) string {
	b, err := json.Marshal(struct {
		Action Action    `json:"action"`
		Chart  ChartSpec `json:"chart"`
	}{p.Action, p.Chart})
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%016x", xxh3.Hash(b))
}

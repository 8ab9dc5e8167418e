package repair

import (
	"fmt"
	"math"
	"sort"

	"github.com/mTatsuro/llm-data-visualizer/internal/dataset"
	"github.com/mTatsuro/llm-data-visualizer/internal/plan"
)

// CountColumn is the value column synthesized when a pie has no usable
// numeric value.
const CountColumn = "count"

// Pie resolves a label and value for a pie chart, aggregates one row per
// label, sorts descending by value and collapses everything past TopN into
// an "Other" slice.
func (r Ranking) Pie(t *dataset.Table, enc plan.Encoding, style plan.Style) Result {
	if len(t.Columns) == 0 {
		return Result{Table: t, Encoding: enc, Style: style}
	}
	label := r.pieLabel(t, enc.Label)
	enc.Label = label

	var out *dataset.Table
	if value, ok := ResolveNumeric(t, enc.Value); ok && value != label {
		out = sumBy(t, label, value)
		enc.Value = value
	} else {
		name := CountColumn
		if name == label {
			name = CountColumn + "_" + label
		}
		out = countBy(t, label, name)
		enc.Value = name
	}

	n := r.topN()
	out = collapse(out, n)
	if style.Title == "" {
		shown := out.Len()
		if shown > n {
			shown = n
		}
		style.Title = pieTitle(label, enc.Value, shown)
	}
	return Result{Table: out, Encoding: enc, Style: style}
}

func (r Ranking) pieLabel(t *dataset.Table, requested string) string {
	if requested != "" {
		if c, ok := t.FindColumn(requested); ok {
			return c.Name
		}
	}
	for _, cand := range r.LabelCandidates {
		if c, ok := t.FindColumn(cand); ok {
			return c.Name
		}
	}
	for _, c := range t.Columns {
		if !c.Kind.Numeric() {
			return c.Name
		}
	}
	return t.Columns[0].Name
}

// slices accumulates one value per distinct label in first-seen order.
type slices struct {
	order []string
	raw   map[string]any
	vals  map[string]float64
}

func newSlices() *slices {
	return &slices{raw: map[string]any{}, vals: map[string]float64{}}
}

func (s *slices) add(label any, v float64) {
	k := dataset.Format(label)
	if _, ok := s.vals[k]; !ok {
		s.order = append(s.order, k)
		s.raw[k] = label
	}
	s.vals[k] += v
}

func (s *slices) table(label dataset.Column, value dataset.Column) *dataset.Table {
	sort.SliceStable(s.order, func(a, b int) bool { return s.vals[s.order[a]] > s.vals[s.order[b]] })
	rows := make([][]any, len(s.order))
	for i, k := range s.order {
		rows[i] = []any{s.raw[k], typed(s.vals[k], value.Kind)}
	}
	return &dataset.Table{Columns: []dataset.Column{label, value}, Rows: rows}
}

func typed(v float64, k dataset.Kind) any {
	if k == dataset.KindInteger {
		return int64(v)
	}
	return v
}

func countBy(t *dataset.Table, label, name string) *dataset.Table {
	li := t.Index(label)
	s := newSlices()
	for _, row := range t.Rows {
		if dataset.IsMissing(row[li]) {
			continue
		}
		s.add(row[li], 1)
	}
	return s.table(t.Columns[li], dataset.Column{Name: name, Kind: dataset.KindInteger})
}

func sumBy(t *dataset.Table, label, value string) *dataset.Table {
	li, vi := t.Index(label), t.Index(value)
	s := newSlices()
	for _, row := range t.Rows {
		if dataset.IsMissing(row[li]) {
			continue
		}
		f, ok := dataset.ToFloat(row[vi])
		if !ok || math.IsNaN(f) {
			f = 0
		}
		s.add(row[li], f)
	}
	return s.table(t.Columns[li], t.Columns[vi])
}

// collapse keeps the first n rows of a sorted label/value table and appends
// an "Other" row holding the sum of the rest when that sum is finite and
// positive.
func collapse(t *dataset.Table, n int) *dataset.Table {
	if t.Len() <= n {
		return t
	}
	var rest float64
	for _, row := range t.Rows[n:] {
		if f, ok := dataset.ToFloat(row[1]); ok {
			rest += f
		}
	}
	cols := t.Columns
	rows := t.Rows[:n:n]
	if !math.IsNaN(rest) && !math.IsInf(rest, 0) && rest > 0 {
		rows = append(rows, []any{OtherLabel, typed(rest, t.Columns[1].Kind)})
		cols = []dataset.Column{{Name: t.Columns[0].Name, Kind: dataset.KindString}, t.Columns[1]}
	}
	return &dataset.Table{Columns: cols, Rows: rows}
}

func pieTitle(label, value string, n int) string {
	if value == CountColumn || value == CountColumn+"_"+label {
		return fmt.Sprintf("Top %d %s by count", n, dataset.BaseName(label))
	}
	return fmt.Sprintf("Top %d %s by %s", n, dataset.BaseName(label), dataset.BaseName(value))
}

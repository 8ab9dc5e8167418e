package repair

import (
	"fmt"
	"math"
	"sort"

	"github.com/mTatsuro/llm-data-visualizer/internal/dataset"
	"github.com/mTatsuro/llm-data-visualizer/internal/plan"
)

// BillionsSuffix is appended to the base name of a rescaled monetary column.
const BillionsSuffix = " ($B)"

// Scatter resolves a numeric x/y pair, projects the table to those two
// columns, drops incomplete rows, rescales large money amounts to billions
// and sorts by x. A table with fewer than two columns is returned as is.
func (r Ranking) Scatter(t *dataset.Table, enc plan.Encoding, style plan.Style) Result {
	if len(t.Columns) < 2 {
		return Result{Table: t, Encoding: enc, Style: style}
	}
	x, y := r.scatterAxes(t, enc.X, enc.Y)
	enc.X, enc.Y = x, y

	out := completeRows(t.Project([]string{x, y}))

	rescaled := false
	if out.IsNumeric(y) && matchesHint(y, r.MonetaryHints) && maxAbs(out, 1) >= r.threshold() {
		out, y = toBillions(out, y)
		enc.Y = y
		rescaled = true
	}

	sort.SliceStable(out.Rows, func(a, b int) bool {
		return dataset.Compare(out.Rows[a][0], out.Rows[b][0]) < 0
	})

	if style.Title == "" {
		style.Title = r.scatterTitle(x, y, rescaled)
	}
	return Result{Table: out, Encoding: enc, Style: style}
}

func (r Ranking) scatterAxes(t *dataset.Table, wantX, wantY string) (string, string) {
	x, xok := ResolveNumeric(t, wantX)
	y, yok := ResolveNumeric(t, wantY)
	if xok && yok && x == y {
		yok = false
	}
	switch {
	case xok && yok:
		return x, y
	case xok:
		return x, r.partner(t, x, false)
	case yok:
		return r.partner(t, y, true), y
	}

	for _, p := range r.AxisPairs {
		px, okx := ResolveNumeric(t, p.X)
		py, oky := ResolveNumeric(t, p.Y)
		if okx && oky && px != py {
			return px, py
		}
	}

	var numeric []string
	for _, c := range t.Columns {
		if c.Kind.Numeric() {
			numeric = append(numeric, c.Name)
		}
	}
	switch len(numeric) {
	case 0:
		return t.Columns[0].Name, t.Columns[1].Name
	case 1:
		return numeric[0], firstOther(t, numeric[0])
	default:
		return numeric[0], numeric[1]
	}
}

// partner picks the missing axis for a resolved one: a preferred-pair column
// first, then any other numeric column, then any other column.
func (r Ranking) partner(t *dataset.Table, have string, wantX bool) string {
	for _, p := range r.AxisPairs {
		first, second := p.Y, p.X
		if wantX {
			first, second = p.X, p.Y
		}
		for _, cand := range []string{first, second} {
			if c, ok := ResolveNumeric(t, cand); ok && c != have {
				return c
			}
		}
	}
	for _, c := range t.Columns {
		if c.Kind.Numeric() && c.Name != have {
			return c.Name
		}
	}
	return firstOther(t, have)
}

// firstOther returns the first column after name, wrapping to the start.
func firstOther(t *dataset.Table, name string) string {
	i := t.Index(name)
	for k := 1; k < len(t.Columns); k++ {
		if c := t.Columns[(i+k)%len(t.Columns)]; c.Name != name {
			return c.Name
		}
	}
	return name
}

// completeRows drops rows with a missing cell.
func completeRows(t *dataset.Table) *dataset.Table {
	rows := t.Rows[:0:0]
rows:
	for _, r := range t.Rows {
		for _, v := range r {
			if dataset.IsMissing(v) {
				continue rows
			}
		}
		rows = append(rows, r)
	}
	return &dataset.Table{Columns: t.Columns, Rows: rows}
}

func maxAbs(t *dataset.Table, col int) float64 {
	m := 0.0
	for _, r := range t.Rows {
		if f, ok := dataset.ToFloat(r[col]); ok && math.Abs(f) > m {
			m = math.Abs(f)
		}
	}
	return m
}

// toBillions replaces column y (index 1) with its values divided by 1e9
// under "<base> ($B)".
func toBillions(t *dataset.Table, y string) (*dataset.Table, string) {
	name := dataset.BaseName(y) + BillionsSuffix
	rows := make([][]any, len(t.Rows))
	for i, r := range t.Rows {
		f, _ := dataset.ToFloat(r[1])
		rows[i] = []any{r[0], f / 1e9}
	}
	cols := []dataset.Column{t.Columns[0], {Name: name, Kind: dataset.KindNumber}}
	return &dataset.Table{Columns: cols, Rows: rows}, name
}

func (r Ranking) scatterTitle(x, y string, rescaled bool) string {
	bx := dataset.BaseName(x)
	if rescaled && matchesHint(x, r.YearHints) {
		return fmt.Sprintf("%s by year founded", y)
	}
	return fmt.Sprintf("%s vs. %s", dataset.BaseName(y), bx)
}

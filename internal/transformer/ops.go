package transformer

import (
	"sort"

	"github.com/mTatsuro/llm-data-visualizer/internal/dataset"
	"github.com/mTatsuro/llm-data-visualizer/internal/filterexpr"
)

// Sort orders rows stably by the listed columns. Columns the table does not
// have are ignored. Missing cells sort last in either direction.
type Sort struct {
	By         []string
	Descending bool
}

func (s Sort) Apply(t *dataset.Table) (*dataset.Table, error) {
	var idx []int
	for _, c := range s.By {
		if i := t.Index(c); i >= 0 {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return t, skipf("sort: none of %v exist", s.By)
	}
	sort.SliceStable(t.Rows, func(a, b int) bool {
		ra, rb := t.Rows[a], t.Rows[b]
		for _, i := range idx {
			va, vb := ra[i], rb[i]
			ma, mb := dataset.IsMissing(va), dataset.IsMissing(vb)
			switch {
			case ma && mb:
				continue
			case ma:
				return false
			case mb:
				return true
			}
			c := dataset.Compare(va, vb)
			if c == 0 {
				continue
			}
			if s.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return t, nil
}

// Select keeps the listed columns that exist, in the table's own column
// order.
type Select struct {
	Columns []string
}

func (s Select) Apply(t *dataset.Table) (*dataset.Table, error) {
	want := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		want[c] = struct{}{}
	}
	var keep []string
	for _, c := range t.Columns {
		if _, ok := want[c.Name]; ok {
			keep = append(keep, c.Name)
		}
	}
	if len(keep) == 0 {
		return t, skipf("select: none of %v exist", s.Columns)
	}
	return t.Project(keep), nil
}

// Filter keeps rows for which Expr is true. A parse error, or an evaluation
// error on any row, skips the whole filter.
type Filter struct {
	Expr string
}

func (f Filter) Apply(t *dataset.Table) (*dataset.Table, error) {
	e, err := filterexpr.Compile(f.Expr)
	if err != nil {
		return t, skipf("filter: %v", err)
	}
	row := tableRow{t: t}
	keep := make([][]any, 0, len(t.Rows))
	for _, r := range t.Rows {
		row.r = r
		ok, err := e.Eval(row)
		if err != nil {
			return t, skipf("filter: %v", err)
		}
		if ok {
			keep = append(keep, r)
		}
	}
	return &dataset.Table{Columns: t.Columns, Rows: keep}, nil
}

// tableRow adapts one table row to filterexpr.Row.
type tableRow struct {
	t *dataset.Table
	r []any
}

func (tr tableRow) Value(column string) (any, bool) {
	i := tr.t.Index(column)
	if i < 0 {
		return nil, false
	}
	return tr.r[i], true
}

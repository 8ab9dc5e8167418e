package transformer

import (
	"sort"
	"strings"

	"github.com/mTatsuro/llm-data-visualizer/internal/dataset"
	"github.com/mTatsuro/llm-data-visualizer/internal/plan"
)

// ValueCounts replaces the table with distinct values of one column and how
// often each occurs, most frequent first.
type ValueCounts struct {
	vc plan.ValueCounts
}

func (v ValueCounts) Apply(t *dataset.Table) (*dataset.Table, error) {
	if v.vc.Column == "" {
		return t, skipf("%s: no column", v.vc.Op())
	}
	ci := t.Index(v.vc.Column)
	if ci < 0 {
		return t, skipf("%s: unknown column %q", v.vc.Op(), v.vc.Column)
	}

	counts := map[string]int64{}
	var order []string
	add := func(s string) {
		if _, ok := counts[s]; !ok {
			order = append(order, s)
		}
		counts[s]++
	}
	for _, r := range t.Rows {
		cell := r[ci]
		if dataset.IsMissing(cell) {
			continue
		}
		s := dataset.Format(cell)
		// A blank cell is missing; only pieces of a non-blank cell may be empty.
		if strings.TrimSpace(s) == "" {
			continue
		}
		if v.vc.Delimiter == "" {
			add(s)
			continue
		}
		// Empty pieces ("a,,b") are counted like any other value.
		for _, part := range strings.Split(s, v.vc.Delimiter) {
			add(strings.TrimSpace(part))
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return counts[order[a]] > counts[order[b]] })
	if v.vc.TopN != nil {
		order = order[:headLen(len(order), *v.vc.TopN)]
	}

	label, count := v.vc.OutputColumns()
	if count == label {
		count = label + "_count"
	}
	rows := make([][]any, len(order))
	for i, s := range order {
		rows[i] = []any{s, counts[s]}
	}
	return &dataset.Table{
		Columns: []dataset.Column{
			{Name: label, Kind: dataset.KindString},
			{Name: count, Kind: dataset.KindInteger},
		},
		Rows: rows,
	}, nil
}

// headLen is the row count left by head(n): the first n rows, or all but the
// last -n when n is negative.
func headLen(total, n int) int {
	if n < 0 {
		n += total
	}
	return max(0, min(n, total))
}

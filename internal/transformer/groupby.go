package transformer

import (
	"sort"
	"strings"

	"github.com/aclements/go-moremath/stats"

	"github.com/mTatsuro/llm-data-visualizer/internal/dataset"
	"github.com/mTatsuro/llm-data-visualizer/internal/plan"
)

// GroupBy collapses rows into one row per distinct key, ordered by key.
type GroupBy struct {
	op plan.GroupBy
}

type boundAgg struct {
	src  int
	agg  string
	name string
	kind dataset.Kind
}

type group struct {
	key  []any
	rows [][]any
}

func (g GroupBy) Apply(t *dataset.Table) (*dataset.Table, error) {
	if len(g.op.By) == 0 {
		return t, skipf("groupby: no columns")
	}
	by := make([]int, len(g.op.By))
	names := map[string]struct{}{}
	for i, c := range g.op.By {
		by[i] = t.Index(c)
		if by[i] < 0 {
			return t, skipf("groupby: unknown column %q", c)
		}
		names[c] = struct{}{}
	}

	var aggs []boundAgg
	for _, a := range g.op.Aggregations {
		src := t.Index(a.Column)
		agg := strings.ToLower(strings.TrimSpace(a.Agg))
		if src < 0 || !plan.KnownAgg(agg) {
			continue
		}
		name := plan.AggOutputName(a)
		if _, dup := names[name]; dup {
			continue
		}
		names[name] = struct{}{}
		aggs = append(aggs, boundAgg{src: src, agg: agg, name: name, kind: aggKind(agg, t.Columns[src].Kind)})
	}
	if len(aggs) == 0 {
		return t, skipf("groupby: no usable aggregations")
	}

	index := map[string]*group{}
	var groups []*group
	var kb strings.Builder
rows:
	for _, r := range t.Rows {
		kb.Reset()
		for _, i := range by {
			if dataset.IsMissing(r[i]) {
				continue rows
			}
			kb.WriteString(dataset.Format(r[i]))
			kb.WriteByte(0)
		}
		k := kb.String()
		gr, ok := index[k]
		if !ok {
			key := make([]any, len(by))
			for j, i := range by {
				key[j] = r[i]
			}
			gr = &group{key: key}
			index[k] = gr
			groups = append(groups, gr)
		}
		gr.rows = append(gr.rows, r)
	}
	sort.SliceStable(groups, func(a, b int) bool {
		for j := range by {
			if c := dataset.Compare(groups[a].key[j], groups[b].key[j]); c != 0 {
				return c < 0
			}
		}
		return false
	})

	cols := make([]dataset.Column, 0, len(by)+len(aggs))
	for _, i := range by {
		cols = append(cols, t.Columns[i])
	}
	for _, a := range aggs {
		cols = append(cols, dataset.Column{Name: a.name, Kind: a.kind})
	}
	out := make([][]any, len(groups))
	for gi, gr := range groups {
		row := make([]any, 0, len(cols))
		row = append(row, gr.key...)
		for _, a := range aggs {
			row = append(row, aggregate(a, gr.rows))
		}
		out[gi] = row
	}
	return &dataset.Table{Columns: cols, Rows: out}, nil
}

func aggKind(agg string, src dataset.Kind) dataset.Kind {
	switch agg {
	case "count":
		return dataset.KindInteger
	case "sum":
		if src == dataset.KindInteger {
			return dataset.KindInteger
		}
		return dataset.KindNumber
	case "min", "max":
		return src
	default:
		return dataset.KindNumber
	}
}

// aggregate reduces one column of a group. Numeric aggregations ignore
// non-numeric and missing cells; an all-missing group yields nil, except sum
// which yields 0.
func aggregate(a boundAgg, rows [][]any) any {
	if a.agg == "count" {
		var n int64
		for _, r := range rows {
			if !dataset.IsMissing(r[a.src]) {
				n++
			}
		}
		return n
	}
	if a.agg == "min" || a.agg == "max" {
		var best any
		for _, r := range rows {
			v := r[a.src]
			if dataset.IsMissing(v) {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			c := dataset.Compare(v, best)
			if (a.agg == "min" && c < 0) || (a.agg == "max" && c > 0) {
				best = v
			}
		}
		return best
	}

	xs := make([]float64, 0, len(rows))
	for _, r := range rows {
		if f, ok := dataset.ToFloat(r[a.src]); ok && !dataset.IsMissing(r[a.src]) {
			xs = append(xs, f)
		}
	}
	switch a.agg {
	case "sum":
		if a.kind == dataset.KindInteger {
			var n int64
			for _, r := range rows {
				if v, ok := r[a.src].(int64); ok {
					n += v
				}
			}
			return n
		}
		var s float64
		for _, x := range xs {
			s += x
		}
		return s
	case "mean":
		if len(xs) == 0 {
			return nil
		}
		return stats.Mean(xs)
	case "median":
		if len(xs) == 0 {
			return nil
		}
		return median(xs)
	}
	return nil
}

// median averages the two middle values of an even-length sample.
func median(xs []float64) float64 {
	s := stats.Sample{Xs: append([]float64(nil), xs...)}
	s.Sort()
	m := len(s.Xs) / 2
	if len(s.Xs)%2 == 1 {
		return s.Xs[m]
	}
	return stats.Mean(s.Xs[m-1 : m+1])
}

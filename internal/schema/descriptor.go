// Package schema builds the column catalog handed to the external planner so
// it can ground its column choices in real column identities.
package schema

import (
	"github.com/mTatsuro/llm-data-visualizer/internal/dataset"
)

// maxExamples is the number of distinct example values per column.
const maxExamples = 3

// Entry describes one column.
type Entry struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Examples []string `json:"examples"`
}

// Describe returns one entry per column, in column order. Examples are the
// first distinct non-missing values rendered as strings.
func Describe(t *dataset.Table) []Entry {
	out := make([]Entry, 0, len(t.Columns))
	for i, c := range t.Columns {
		out = append(out, Entry{
			Name:     c.Name,
			Kind:     c.Kind.String(),
			Examples: examples(t, i),
		})
	}
	return out
}

func examples(t *dataset.Table, col int) []string {
	out := make([]string, 0, maxExamples)
	seen := make(map[string]struct{}, maxExamples)
	for _, row := range t.Rows {
		v := row[col]
		if dataset.IsMissing(v) {
			continue
		}
		s := dataset.Format(v)
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if len(out) == maxExamples {
			break
		}
	}
	return out
}

// Names returns the column names of a descriptor, in order.
func Names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

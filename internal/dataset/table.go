// Package dataset holds the in-memory tabular model shared by every request:
// an ordered set of typed columns plus row-aligned values.
//
// Values carried in rows are one of:
//
//	nil        missing
//	int64      KindInteger
//	float64    KindNumber
//	time.Time  KindDatetime
//	string     KindString
//
// A Table loaded at startup is treated as read-only; request code works on a
// Clone.
package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the runtime-inferred type of a column.
type Kind int

const (
	KindString Kind = iota
	KindInteger
	KindNumber
	KindDatetime
)

// String returns the schema name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindNumber:
		return "number"
	case KindDatetime:
		return "datetime"
	default:
		return "string"
	}
}

// Numeric reports whether values of this kind are int64 or float64.
func (k Kind) Numeric() bool { return k == KindInteger || k == KindNumber }

// Column describes a single named column.
type Column struct {
	Name string
	Kind Kind
}

// Table is an ordered set of columns with row-aligned values. Row i, cell j
// belongs to Columns[j].
type Table struct {
	Columns []Column
	Rows    [][]any
}

// New builds a table, padding or truncating rows to the column count.
func New(cols []Column, rows [][]any) *Table {
	t := &Table{Columns: cols, Rows: make([][]any, len(rows))}
	for i, r := range rows {
		t.Rows[i] = fitRow(r, len(cols))
	}
	return t
}

func fitRow(r []any, n int) []any {
	if len(r) == n {
		return r
	}
	out := make([]any, n)
	copy(out, r)
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Index returns the position of the named column or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Has reports whether the table has a column with this exact name.
func (t *Table) Has(name string) bool { return name != "" && t.Index(name) >= 0 }

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	i := t.Index(name)
	if i < 0 {
		return Column{}, false
	}
	return t.Columns[i], true
}

// IsNumeric reports whether name is an existing integer or number column.
func (t *Table) IsNumeric(name string) bool {
	c, ok := t.Column(name)
	return ok && c.Kind.Numeric()
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Clone returns a deep copy. Cell values are immutable scalars, so copying
// the row slices is enough to isolate the copy.
func (t *Table) Clone() *Table {
	cols := make([]Column, len(t.Columns))
	copy(cols, t.Columns)
	rows := make([][]any, len(t.Rows))
	for i, r := range t.Rows {
		cp := make([]any, len(r))
		copy(cp, r)
		rows[i] = cp
	}
	return &Table{Columns: cols, Rows: rows}
}

// Values returns the cells of the named column, or nil if it does not exist.
func (t *Table) Values(name string) []any {
	i := t.Index(name)
	if i < 0 {
		return nil
	}
	out := make([]any, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out
}

// AddColumn appends a derived column. vals must have one entry per row.
func (t *Table) AddColumn(c Column, vals []any) error {
	if t.Has(c.Name) {
		return fmt.Errorf("dataset: column %q already exists", c.Name)
	}
	if len(vals) != len(t.Rows) {
		return fmt.Errorf("dataset: column %q has %d values for %d rows", c.Name, len(vals), len(t.Rows))
	}
	t.Columns = append(t.Columns, c)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], vals[i])
	}
	return nil
}

// Project returns a new table restricted to the given existing columns, in the
// order given. Unknown names are skipped.
func (t *Table) Project(names []string) *Table {
	idx := make([]int, 0, len(names))
	cols := make([]Column, 0, len(names))
	for _, n := range names {
		if i := t.Index(n); i >= 0 {
			idx = append(idx, i)
			cols = append(cols, t.Columns[i])
		}
	}
	rows := make([][]any, len(t.Rows))
	for r, row := range t.Rows {
		out := make([]any, len(idx))
		for j, i := range idx {
			out[j] = row[i]
		}
		rows[r] = out
	}
	return &Table{Columns: cols, Rows: rows}
}

// Records converts rows into ordered records keyed by column name.
func (t *Table) Records() []Record {
	out := make([]Record, len(t.Rows))
	for r, row := range t.Rows {
		rec := make(Record, len(t.Columns))
		for i, c := range t.Columns {
			rec[i] = Field{Key: c.Name, Value: row[i]}
		}
		out[r] = rec
	}
	return out
}

// ToFloat converts a numeric cell to float64. Missing and non-numeric cells
// report false.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// IsMissing reports whether v is a missing cell. NaN counts as missing.
func IsMissing(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	}
	return false
}

// Format renders a cell the way it is shown in schema examples and used for
// string-keyed operations such as value_counts.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

// Compare orders two non-missing cells: numbers numerically, times
// chronologically, everything else by string form. Mixed numeric/non-numeric
// values order numbers first.
func Compare(a, b any) int {
	fa, aok := ToFloat(a)
	fb, bok := ToFloat(b)
	switch {
	case aok && bok:
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case aok:
		return -1
	case bok:
		return 1
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	return strings.Compare(Format(a), Format(b))
}

// KindOf infers a column kind from Go values already present in a column, for
// columns produced by transforms or decoded from JSON.
func KindOf(vals []any) Kind {
	kind := Kind(-1)
	for _, v := range vals {
		if IsMissing(v) {
			continue
		}
		var k Kind
		switch v.(type) {
		case int64, int, int32:
			k = KindInteger
		case float64, float32:
			k = KindNumber
		case time.Time:
			k = KindDatetime
		default:
			return KindString
		}
		switch {
		case kind < 0:
			kind = k
		case kind == k:
		case kind.Numeric() && k.Numeric():
			kind = KindNumber
		default:
			return KindString
		}
	}
	if kind < 0 {
		return KindString
	}
	return kind
}

package plan

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Op is the wire tag of a transform.
type Op string

const (
	OpGroupBy           Op = "groupby"
	OpSort              Op = "sort"
	OpSelect            Op = "select"
	OpFilter            Op = "filter"
	OpValueCounts       Op = "value_counts"
	OpInvestorFrequency Op = "investor_frequency"
)

// Transform is one declarative table operation. The set of implementations
// is closed: GroupBy, Sort, Select, Filter, ValueCounts and Unknown.
type Transform interface {
	Op() Op
	wire() wireTransform
}

// Aggregation is one output column of a groupby.
type Aggregation struct {
	Column    string `json:"column"`
	Agg       string `json:"agg"`
	NewColumn string `json:"new_column"`
}

// GroupBy collapses rows sharing the By values into one row per group.
type GroupBy struct {
	By           []string
	Aggregations []Aggregation
}

// Sort orders rows by the By columns.
type Sort struct {
	By         []string
	Descending bool
}

// Select projects to the listed columns.
type Select struct {
	Columns []string
}

// Filter keeps rows for which Expr evaluates to true.
type Filter struct {
	Expr string
}

// ValueCounts counts distinct values of Column, optionally exploding
// Delimiter-joined cells first. LabelColumn and CountColumn name the two
// output columns; empty means Column and "count".
type ValueCounts struct {
	Column      string
	Delimiter   string
	// TopN keeps the first N counted values, as a head(N) would: nil keeps
	// every value, 0 keeps none and a negative N drops the last -N.
	TopN        *int
	LabelColumn string
	CountColumn string

	// Alias is the tag the planner used when it was a shorthand such as
	// investor_frequency; it is echoed back on encode.
	Alias Op
}

// Unknown is any transform whose tag is not recognized or whose fields could
// not be decoded. It applies as a no-op.
type Unknown struct {
	Tag string
	Raw json.RawMessage
}

func (GroupBy) Op() Op { return OpGroupBy }
func (Sort) Op() Op    { return OpSort }
func (Select) Op() Op  { return OpSelect }
func (Filter) Op() Op  { return OpFilter }
func (Unknown) Op() Op { return "" }

func (v ValueCounts) Op() Op {
	if v.Alias != "" {
		return v.Alias
	}
	return OpValueCounts
}

// InvestorFrequency is the shorthand for exploding a comma-joined investor
// column and counting companies per investor. An empty column is filled in
// by the engine from its configuration.
func InvestorFrequency(column string) ValueCounts {
	return ValueCounts{
		Column:      column,
		Delimiter:   ",",
		LabelColumn: "Investor",
		CountColumn: "Company_Count",
		Alias:       OpInvestorFrequency,
	}
}

// wireTransform is the flat shape the planner emits. Every field is optional.
type wireTransform struct {
	Op           string        `json:"op"`
	By           stringList    `json:"by"`
	Order        *string       `json:"order"`
	Columns      stringList    `json:"columns"`
	FilterExpr   *string       `json:"filter_expr"`
	Aggregations []Aggregation `json:"aggregations"`
	Column       *string       `json:"column"`
	Delimiter    *string       `json:"delimiter"`
	TopN         json.RawMessage `json:"top_n"`
}

func (t GroupBy) wire() wireTransform {
	return wireTransform{Op: string(OpGroupBy), By: t.By, Aggregations: t.Aggregations}
}

func (t Sort) wire() wireTransform {
	order := "asc"
	if t.Descending {
		order = "desc"
	}
	return wireTransform{Op: string(OpSort), By: t.By, Order: &order}
}

func (t Select) wire() wireTransform {
	return wireTransform{Op: string(OpSelect), Columns: t.Columns}
}

func (t Filter) wire() wireTransform {
	return wireTransform{Op: string(OpFilter), FilterExpr: nullable(t.Expr)}
}

func (t ValueCounts) wire() wireTransform {
	w := wireTransform{Op: string(t.Op()), Column: nullable(t.Column), Delimiter: nullable(t.Delimiter)}
	if t.TopN != nil {
		w.TopN = json.RawMessage(strconv.Itoa(*t.TopN))
	}
	return w
}

func (t Unknown) wire() wireTransform { return wireTransform{Op: t.Tag} }

// Transforms is an ordered transform list with planner-wire JSON encoding.
type Transforms []Transform

// MarshalJSON writes each transform in the flat wire shape. Unknown
// transforms are echoed verbatim.
func (ts Transforms) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(ts))
	for _, t := range ts {
		if u, ok := t.(Unknown); ok && len(u.Raw) > 0 {
			out = append(out, u.Raw)
			continue
		}
		b, err := json.Marshal(t.wire())
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes each element independently so that one malformed
// transform becomes an Unknown no-op instead of failing the plan.
func (ts *Transforms) UnmarshalJSON(b []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(b, &raws); err != nil {
		// null or a non-list: no transforms.
		*ts = nil
		return nil
	}
	out := make(Transforms, 0, len(raws))
	for _, raw := range raws {
		out = append(out, decodeTransform(raw))
	}
	*ts = out
	return nil
}

func decodeTransform(raw json.RawMessage) Transform {
	var w wireTransform
	if err := json.Unmarshal(raw, &w); err != nil {
		var tag struct {
			Op string `json:"op"`
		}
		_ = json.Unmarshal(raw, &tag)
		return Unknown{Tag: tag.Op, Raw: raw}
	}
	switch Op(strings.ToLower(strings.TrimSpace(w.Op))) {
	case OpGroupBy:
		return GroupBy{By: w.By, Aggregations: w.Aggregations}
	case OpSort:
		return Sort{By: w.By, Descending: strings.EqualFold(deref(w.Order), "desc")}
	case OpSelect:
		return Select{Columns: w.Columns}
	case OpFilter:
		return Filter{Expr: deref(w.FilterExpr)}
	case OpValueCounts:
		return ValueCounts{Column: deref(w.Column), Delimiter: rawDelimiter(w.Delimiter), TopN: parseTopN(w.TopN)}
	case OpInvestorFrequency:
		vc := InvestorFrequency(deref(w.Column))
		vc.TopN = parseTopN(w.TopN)
		return vc
	default:
		return Unknown{Tag: w.Op, Raw: raw}
	}
}

// rawDelimiter keeps whitespace delimiters such as "; " intact, unlike deref.
func rawDelimiter(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// stringList accepts either a JSON list of strings or a single string.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	var many []string
	if err := json.Unmarshal(b, &many); err == nil {
		*l = trimAll(many)
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil && strings.TrimSpace(one) != "" {
		*l = stringList{strings.TrimSpace(one)}
		return nil
	}
	*l = nil
	return nil
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseTopN accepts 10, 10.0 or "10". Missing, null and malformed values
// are nil so they keep every row instead of truncating to zero.
func parseTopN(raw json.RawMessage) *int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f != math.Trunc(f) {
			return nil
		}
		n := int(f)
		return &n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return &n
		}
	}
	return nil
}

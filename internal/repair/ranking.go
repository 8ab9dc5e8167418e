// Package repair resolves a chart's encoding against the table it will be
// drawn from. Pie and Scatter always produce a drawable result, defaulting
// whatever the plan left out or got wrong; ValidatePie and ValidateScatter
// instead report what is wrong and leave the data alone.
//
// Which columns look like categories, which numeric pairs make a good
// scatter and which quantities are large money amounts is configuration
// (Ranking), not code.
package repair

import (
	"strings"

	"github.com/mTatsuro/llm-data-visualizer/internal/dataset"
	"github.com/mTatsuro/llm-data-visualizer/internal/plan"
)

// AxisPair is a preferred scatter pairing.
type AxisPair struct {
	X string `yaml:"x" json:"x"`
	Y string `yaml:"y" json:"y"`
}

// Ranking holds the heuristics used to default an encoding. Names are
// matched after dataset.NormalizeName, so "founded year", "Founded_Year" and
// "Founded Year_num" are the same candidate.
type Ranking struct {
	// LabelCandidates are probed in order for a pie label.
	LabelCandidates []string `yaml:"label_candidates" json:"label_candidates"`
	// AxisPairs are probed in order for scatter x/y.
	AxisPairs []AxisPair `yaml:"axis_pairs" json:"axis_pairs"`
	// MonetaryHints mark a y column as money, eligible for billions rescaling.
	MonetaryHints []string `yaml:"monetary_hints" json:"monetary_hints"`
	// YearHints mark an x column as a founding year for title phrasing.
	YearHints []string `yaml:"year_hints" json:"year_hints"`
	// TopN is the number of pie slices kept before collapsing into "Other".
	TopN int `yaml:"top_n" json:"top_n"`
	// RescaleThreshold is the max |y| at which monetary values are shown in
	// billions.
	RescaleThreshold float64 `yaml:"rescale_threshold" json:"rescale_threshold"`
}

// OtherLabel names the collapsed tail of a pie.
const OtherLabel = "Other"

// DefaultRanking returns the built-in heuristics.
func DefaultRanking() Ranking {
	return Ranking{
		LabelCandidates: []string{
			"Industry", "Category", "Sector", "Segment", "Type",
			"Country", "Region", "Status", "Stage", "Name",
		},
		AxisPairs: []AxisPair{
			{X: "Founded Year", Y: "Valuation"},
			{X: "Founded Year", Y: "Total Funding"},
			{X: "Founded Year", Y: "ARR"},
			{X: "Employees", Y: "ARR"},
			{X: "Total Funding", Y: "Valuation"},
		},
		MonetaryHints:    []string{"Valuation", "Funding", "Revenue", "ARR", "Raised", "Market Cap", "Amount"},
		YearHints:        []string{"Founded Year", "Year Founded", "Founded", "Year"},
		TopN:             10,
		RescaleThreshold: 1e9,
	}
}

// Merge returns r with every non-empty field of o applied over it.
func (r Ranking) Merge(o Ranking) Ranking {
	if len(o.LabelCandidates) > 0 {
		r.LabelCandidates = o.LabelCandidates
	}
	if len(o.AxisPairs) > 0 {
		r.AxisPairs = o.AxisPairs
	}
	if len(o.MonetaryHints) > 0 {
		r.MonetaryHints = o.MonetaryHints
	}
	if len(o.YearHints) > 0 {
		r.YearHints = o.YearHints
	}
	if o.TopN > 0 {
		r.TopN = o.TopN
	}
	if o.RescaleThreshold > 0 {
		r.RescaleThreshold = o.RescaleThreshold
	}
	return r
}

func (r Ranking) topN() int {
	if r.TopN <= 0 {
		return 10
	}
	return r.TopN
}

func (r Ranking) threshold() float64 {
	if r.RescaleThreshold <= 0 {
		return 1e9
	}
	return r.RescaleThreshold
}

// Result is a repaired chart: the data to render and the encoding and style
// that describe it. The caller's encoding and style are never modified.
type Result struct {
	Table    *dataset.Table
	Encoding plan.Encoding
	Style    plan.Style
}

// ResolveNumeric finds a numeric column for name: the exact column, then the
// derived "<name>_num" column, then any numeric column with the same
// normalized name.
func ResolveNumeric(t *dataset.Table, name string) (string, bool) {
	if strings.TrimSpace(name) == "" {
		return "", false
	}
	if t.IsNumeric(name) {
		return name, true
	}
	if d := name + dataset.DerivedSuffix; t.IsNumeric(d) {
		return d, true
	}
	want := dataset.NormalizeName(name)
	if want == "" {
		return "", false
	}
	for _, c := range t.Columns {
		if c.Kind.Numeric() && dataset.NormalizeName(c.Name) == want {
			return c.Name, true
		}
	}
	return "", false
}

// matchesHint reports whether the normalized name contains the normalized
// hint as a whole "_"-separated word run.
func matchesHint(name string, hints []string) bool {
	n := "_" + dataset.NormalizeName(name) + "_"
	for _, h := range hints {
		if nh := dataset.NormalizeName(h); nh != "" && strings.Contains(n, "_"+nh+"_") {
			return true
		}
	}
	return false
}

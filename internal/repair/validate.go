package repair

import (
	"fmt"

	"github.com/mTatsuro/llm-data-visualizer/internal/dataset"
	"github.com/mTatsuro/llm-data-visualizer/internal/plan"
)

// ValidatePie checks a pie encoding without guessing. The label must name an
// existing column. When value does not, rows are counted per label into a
// "count" column; if that is impossible too, both problems are reported.
// A non-empty error list means the chart cannot be drawn.
func ValidatePie(t *dataset.Table, enc plan.Encoding, style plan.Style) (Result, []string) {
	var errs []string
	labelOK := t.Has(enc.Label)
	if !labelOK {
		errs = append(errs, "pie chart requires a valid 'label' column")
	}
	if !t.Has(enc.Value) {
		if labelOK {
			return Result{Table: countBy(t, enc.Label, CountColumn), Encoding: withValue(enc, CountColumn), Style: style}, errs
		}
		errs = append(errs, "pie chart could not infer a numeric 'value' column")
	}
	return Result{Table: t, Encoding: enc, Style: style}, errs
}

// ValidateScatter checks that x and y name existing numeric columns.
func ValidateScatter(t *dataset.Table, enc plan.Encoding, style plan.Style) (Result, []string) {
	var errs []string
	for _, axis := range []struct{ name, col string }{{"x", enc.X}, {"y", enc.Y}} {
		c, ok := t.Column(axis.col)
		switch {
		case axis.col == "" || !ok:
			errs = append(errs, fmt.Sprintf("scatter plot requires numeric '%s' column", axis.name))
		case !c.Kind.Numeric():
			errs = append(errs, fmt.Sprintf("scatter '%s' column '%s' must be numeric", axis.name, axis.col))
		}
	}
	return Result{Table: t, Encoding: enc, Style: style}, errs
}

func withValue(enc plan.Encoding, v string) plan.Encoding {
	enc.Value = v
	return enc
}

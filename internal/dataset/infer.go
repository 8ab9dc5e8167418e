package dataset

import (
	"strconv"
	"strings"
	"time"
)

// missingTokens are raw cell values treated as absent.
var missingTokens = map[string]struct{}{
	"":     {},
	"na":   {},
	"n/a":  {},
	"nan":  {},
	"null": {},
	"none": {},
	"-":    {},
}

func isMissingText(s string) bool {
	_, ok := missingTokens[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// inferKind guesses a column kind from raw text cells. Every non-missing
// value must satisfy the narrower kind; otherwise the column is a string.
func inferKind(values []string) (Kind, string) {
	present := nonMissing(values)
	if len(present) == 0 {
		return KindString, ""
	}
	if allMatch(present, isInt) {
		return KindInteger, ""
	}
	if allMatch(present, isFloat) {
		return KindNumber, ""
	}
	if layout := selectBestLayout(present, dateTimeLayouts, layoutPreference); layout != "" {
		if allMatch(present, func(s string) bool { _, err := time.Parse(layout, s); return err == nil }) {
			return KindDatetime, layout
		}
	}
	return KindString, ""
}

// convert parses raw text cells into typed values for the given kind.
func convert(values []string, kind Kind, layout string) []any {
	out := make([]any, len(values))
	for i, raw := range values {
		s := strings.TrimSpace(raw)
		if isMissingText(s) {
			continue
		}
		switch kind {
		case KindInteger:
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				out[i] = n
			}
		case KindNumber:
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				out[i] = f
			}
		case KindDatetime:
			if t, err := time.Parse(layout, s); err == nil {
				out[i] = t
			}
		default:
			out[i] = raw
		}
	}
	return out
}

// nonMissing returns the trimmed values that are not missing tokens.
func nonMissing(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if !isMissingText(v) {
			out = append(out, v)
		}
	}
	return out
}

func allMatch(vals []string, fn func(string) bool) bool {
	for _, v := range vals {
		if !fn(v) {
			return false
		}
	}
	return true
}

// isInt requires a signed base-10 integer that fits in int64.
func isInt(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// isFloat accepts decimal or scientific notation. Integers also pass so that
// a column mixing "3" and "3.5" becomes a number column.
func isFloat(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// dateTimeLayouts are the formats probed for datetime columns, timestamps
// first.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006/01/02 15:04:05",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02",
	"2006/01/02",
	"02.01.2006",
	"01/02/2006",
	"02/01/2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"Jan 2, 2006",
}

// layoutPreference breaks ties between layouts that match the same number of
// samples. ISO wins, then US month-first, then everything else.
func layoutPreference(layout string) int {
	switch layout {
	case time.RFC3339Nano:
		return 5
	case time.RFC3339, "2006-01-02":
		return 4
	case "2006-01-02 15:04:05", "2006/01/02":
		return 3
	case "01/02/2006":
		return 2
	default:
		return 1
	}
}

// selectBestLayout scores each candidate layout by how many samples it
// parses. Ties go to the higher preference, then to declaration order.
// Returns "" when no layout parses anything.
func selectBestLayout(samples []string, layouts []string, pref func(string) int) string {
	if len(samples) == 0 || len(layouts) == 0 {
		return ""
	}
	scores := make([]int, len(layouts))
	for _, s := range samples {
		for i, lay := range layouts {
			if _, err := time.Parse(lay, s); err == nil {
				scores[i]++
			}
		}
	}

	bestIdx, bestScore, bestPref := -1, 0, -1
	for i, lay := range layouts {
		sc := scores[i]
		if sc == 0 || sc < bestScore {
			continue
		}
		p := pref(lay)
		if sc > bestScore || p > bestPref {
			bestIdx, bestScore, bestPref = i, sc, p
		}
	}
	if bestIdx < 0 {
		return ""
	}
	return layouts[bestIdx]
}

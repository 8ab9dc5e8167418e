package dataset

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// NormalizeName reduces a column name to a comparison key so that heuristic
// candidate lists match regardless of case, accents or separators:
//  1. case-fold
//  2. strip accents (NFD → remove Mn → NFC)
//  3. keep letters and digits; collapse every other run into "_"
//  4. drop a trailing "_num" derived-column suffix
//
// "Founded Year", "founded_year" and "Founded-Year_num" all normalize to
// "founded_year".
func NormalizeName(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	ascii, _, err := transform.String(t, folder.String(strings.TrimSpace(s)))
	if err != nil {
		ascii = strings.ToLower(s)
	}

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevUnderscore = false
		case !prevUnderscore && b.Len() > 0:
			b.WriteRune('_')
			prevUnderscore = true
		}
	}
	name := strings.Trim(b.String(), "_")
	return strings.TrimSuffix(name, DerivedSuffix)
}

// BaseName strips the derived-column suffix from a name for display.
func BaseName(s string) string { return strings.TrimSuffix(s, DerivedSuffix) }

// FindColumn returns the first column whose normalized name equals the
// normalized candidate.
func (t *Table) FindColumn(candidate string) (Column, bool) {
	if c, ok := t.Column(candidate); ok {
		return c, true
	}
	want := NormalizeName(candidate)
	if want == "" {
		return Column{}, false
	}
	for _, c := range t.Columns {
		if NormalizeName(c.Name) == want {
			return c, true
		}
	}
	return Column{}, false
}

package dataset

import (
	"regexp"
	"strconv"
	"strings"
)

// moneyRe matches money-like strings: optional "$", digits with thousands
// separators or a decimal point, optional K/M/B/T multiplier.
var moneyRe = regexp.MustCompile(`(?i)^\s*\$?\s*([\d,.]+)\s*([KMBT]?)\s*$`)

var moneyMultiplier = map[string]float64{
	"":  1,
	"K": 1e3,
	"M": 1e6,
	"B": 1e9,
	"T": 1e12,
}

const (
	// enrichSampleSize caps how many non-missing cells are inspected per
	// string column before deciding to derive a numeric twin.
	enrichSampleSize = 50
	// enrichMinRatio is the share of sampled cells that must parse.
	enrichMinRatio = 0.6
	// DerivedSuffix is appended to the name of a string column to name its
	// parsed numeric twin.
	DerivedSuffix = "_num"
)

// ParseMoney parses strings such as "$3T", "65.4M" or "1,200" into a float.
func ParseMoney(s string) (float64, bool) {
	m := moneyRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	num, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return num * moneyMultiplier[strings.ToUpper(m[2])], true
}

// parsePlainNumber accepts plain numerics with thousands separators,
// including signs and exponents that the money pattern rejects.
func parsePlainNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Enrich adds a "<col>_num" number column for every string column whose
// sampled values mostly parse as money or plain numbers. It returns the
// names of the columns it added.
func Enrich(t *Table) []string {
	var added []string
	// Snapshot so derived columns are not themselves enriched.
	cols := append([]Column(nil), t.Columns...)
	for _, c := range cols {
		if c.Kind != KindString {
			continue
		}
		name := c.Name + DerivedSuffix
		if t.Has(name) {
			continue
		}
		vals := t.Values(c.Name)
		present := make([]string, 0, len(vals))
		for _, v := range vals {
			if s, ok := v.(string); ok && !isMissingText(s) {
				present = append(present, s)
			}
		}
		if len(present) == 0 {
			continue
		}
		sample := evenSample(present, enrichSampleSize)

		var parse func(string) (float64, bool)
		switch {
		case parseRatio(sample, ParseMoney) >= enrichMinRatio:
			parse = ParseMoney
		case parseRatio(sample, parsePlainNumber) >= enrichMinRatio:
			parse = parsePlainNumber
		default:
			continue
		}

		derived := make([]any, len(vals))
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if f, ok := parse(s); ok {
				derived[i] = f
			}
		}
		if err := t.AddColumn(Column{Name: name, Kind: KindNumber}, derived); err == nil {
			added = append(added, name)
		}
	}
	return added
}

// evenSample picks up to n values spread evenly across vals, keeping the
// decision deterministic for a given file.
func evenSample(vals []string, n int) []string {
	if len(vals) <= n {
		return vals
	}
	out := make([]string, n)
	step := float64(len(vals)) / float64(n)
	for i := range out {
		out[i] = vals[int(float64(i)*step)]
	}
	return out
}

func parseRatio(vals []string, parse func(string) (float64, bool)) float64 {
	if len(vals) == 0 {
		return 0
	}
	ok := 0
	for _, v := range vals {
		if _, good := parse(v); good {
			ok++
		}
	}
	return float64(ok) / float64(len(vals))
}

package filterexpr

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type MapRow map[string]any

func (m MapRow) Value(column string) (any, bool) {
	v, ok := m[column]
	return v, ok
}

func TestEval(t *testing.T) {
	row := MapRow{
		"Industry":     "Fintech",
		"ARR_num":      float64(10_000_000),
		"Employees":    int64(42),
		"Founded Year": int64(2015),
		"Valuation":    nil,
		"Score":        math.NaN(),
		"Founded":      time.Date(2015, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	tests := []struct {
		expr string
		want bool
	}{
		{`Industry == "Fintech"`, true},
		{`Industry != 'Fintech'`, false},
		{`ARR_num > 5e6`, true},
		{`ARR_num >= 10000000 and Employees < 50`, true},
		{`Employees > 100 or Industry == "Fintech"`, true},
		{`Employees > 100 | Industry == "Health"`, false},
		{`(Employees > 10) & (Employees <= 42)`, true},
		{`not Employees > 10`, false},
		{`~(Employees > 100)`, true},
		{"`Founded Year` >= 2010", true},
		{`Industry in ["Fintech", "Health"]`, true},
		{`Industry not in ["Fintech", "Health"]`, false},
		{`Employees in [1, 42]`, true},
		{`Valuation > 0`, false},
		{`Valuation != 0`, true},
		{`Score == Score`, false},
		{`Valuation == None`, false},
		{`Founded > "2014-12-31"`, true},
		{`Founded < '2015'`, false},
		{`Industry == 5`, false},
		{`Employees > -1`, true},
		{`True`, true},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			e, err := Compile(tc.expr)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			got, err := e.Eval(row)
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Eval(%s) = %v, want %v", tc.expr, got, tc.want)
			}
		})
	}
}

func TestCompileRejects(t *testing.T) {
	for _, src := range []string{
		"",
		"   ",
		"a ==",
		"a = 1",
		"__import__('os').system('ls')",
		"a.b == 1",
		"a + 1 > 2",
		"@threshold > 1",
		"(a > 1",
		"a > 1 b",
		"a in 1",
		"'unterminated",
		"`unterminated",
	} {
		if _, err := Compile(src); err == nil {
			t.Errorf("Compile(%q) succeeded, want error", src)
		}
	}
}

func TestEvalErrors(t *testing.T) {
	e, err := Compile(`Missing > 1 or a == 1`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := e.Eval(MapRow{"a": 1.0}); !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("err = %v, want ErrUnknownColumn", err)
	}

	e, err = Compile(`a > "x"`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := e.Eval(MapRow{"a": 1.0}); err == nil {
		t.Fatalf("ordering a number against a string should fail")
	}

	e, err = Compile(`a`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := e.Eval(MapRow{"a": 1.0}); err == nil {
		t.Fatalf("non-boolean result should fail")
	}
}

func TestColumns(t *testing.T) {
	e, err := Compile("a > 1 and (`b c` == 'x' or a < 0) and d in [1]")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b c", "d"}, e.Columns()); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
}

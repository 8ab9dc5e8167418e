package dataset

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"$3T", 3e12, true},
		{"65.5M", 65.5e6, true},
		{"$1,200", 1200, true},
		{" $2.5 b ", 2.5e9, true},
		{"12k", 12e3, true},
		{"Series A", 0, false},
		{"", 0, false},
	}
	for _, tc := range tests {
		got, ok := ParseMoney(tc.in)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("ParseMoney(%q) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestEnrich(t *testing.T) {
	tbl := New(
		[]Column{{Name: "Name", Kind: KindString}, {Name: "ARR", Kind: KindString}, {Name: "Employees", Kind: KindString}, {Name: "Score", Kind: KindInteger}},
		[][]any{
			{"A", "$10M", "1,200", int64(1)},
			{"B", "$2.5B", "-", int64(2)},
			{"C", nil, "35", int64(3)},
		},
	)
	added := Enrich(tbl)
	if diff := cmp.Diff([]string{"ARR_num", "Employees_num"}, added); diff != "" {
		t.Fatalf("added (-want +got):\n%s", diff)
	}
	want := []any{10e6, 2.5e9, nil}
	if diff := cmp.Diff(want, tbl.Values("ARR_num")); diff != "" {
		t.Fatalf("ARR_num (-want +got):\n%s", diff)
	}
	want = []any{1200.0, nil, 35.0}
	if diff := cmp.Diff(want, tbl.Values("Employees_num")); diff != "" {
		t.Fatalf("Employees_num (-want +got):\n%s", diff)
	}

	if again := Enrich(tbl); len(again) != 0 {
		t.Fatalf("second Enrich added %v", again)
	}
}

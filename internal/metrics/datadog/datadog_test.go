package datadog

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mTatsuro/llm-data-visualizer/internal/metrics"
)

func TestNewBackendRequiresAddr(t *testing.T) {
	if _, err := NewBackend(Config{}); err == nil {
		t.Fatal("NewBackend without Addr should fail")
	}
}

func TestLabelsToTagsSorted(t *testing.T) {
	got := labelsToTags(metrics.Labels{"stage": "plan", "status": "success", "op": "sort"})
	want := []string{"op:sort", "stage:plan", "status:success"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}
	if labelsToTags(nil) != nil {
		t.Fatal("nil labels should give nil tags")
	}
}

func TestZeroBackendIsSafe(t *testing.T) {
	b := &Backend{}
	b.IncCounter(metrics.StageTotal, 1, metrics.Labels{"stage": "plan"})
	b.ObserveHistogram(metrics.StageDuration, 0.5, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() = %v", err)
	}
}

func TestUDPBackendRecords(t *testing.T) {
	b, err := NewBackend(Config{Addr: "127.0.0.1:8125", Namespace: "nlviz.", GlobalTags: []string{"env:test"}})
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.IncCounter(metrics.RowsTotal, 3, metrics.Labels{"kind": "loaded"})
	b.ObserveHistogram(metrics.RequestDuration, 0.1, metrics.Labels{"route": "/api/health"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
}

package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	callsCounters   []counterCall
	callsHistograms []histCall
	flushCount      int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsCounters = append(f.callsCounters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsHistograms = append(f.callsHistograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

func TestRecordStage_SuccessAndFailure(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	backend = fb

	RecordStage(StagePlan, nil, 2*time.Second)
	RecordStage(StageExecute, errors.New("boom"), 1500*time.Millisecond)

	if len(fb.callsCounters) != 2 {
		t.Fatalf("expected 2 counter calls, got %d", len(fb.callsCounters))
	}
	if len(fb.callsHistograms) != 2 {
		t.Fatalf("expected 2 histogram calls, got %d", len(fb.callsHistograms))
	}

	cc0 := fb.callsCounters[0]
	if cc0.name != StageTotal || cc0.delta != 1 {
		t.Fatalf("counter[0] = %#v; want name=%s, delta=1", cc0, StageTotal)
	}
	if cc0.labels["stage"] != StagePlan || cc0.labels["status"] != StatusSuccess {
		t.Fatalf("counter[0].labels = %v", cc0.labels)
	}

	h0 := fb.callsHistograms[0]
	if h0.name != StageDuration {
		t.Fatalf("hist[0].name=%q; want %s", h0.name, StageDuration)
	}
	if h0.value < 2.0-0.001 || h0.value > 2.0+0.001 {
		t.Fatalf("hist[0].value=%v; want ~2.0", h0.value)
	}

	cc1 := fb.callsCounters[1]
	if cc1.labels["stage"] != StageExecute || cc1.labels["status"] != StatusFailure {
		t.Fatalf("counter[1].labels = %v", cc1.labels)
	}
	if h1 := fb.callsHistograms[1]; h1.value < 1.5-0.001 || h1.value > 1.5+0.001 {
		t.Fatalf("hist[1].value=%v; want ~1.5", h1.value)
	}
}

func TestRecordRequest(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	backend = fb

	RecordRequest("/api/visualize", 502, 250*time.Millisecond)

	if len(fb.callsCounters) != 1 || len(fb.callsHistograms) != 1 {
		t.Fatalf("calls = %d counters, %d histograms", len(fb.callsCounters), len(fb.callsHistograms))
	}
	c := fb.callsCounters[0]
	if c.name != RequestsTotal || c.labels["route"] != "/api/visualize" || c.labels["code"] != "502" {
		t.Fatalf("counter = %#v", c)
	}
}

func TestRecordTransformAndRows(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	backend = fb

	RecordTransform("groupby", TransformApplied)
	RecordRows(RowsRendered, 3)
	RecordRows(RowsRendered, 0) // ignored
	RecordRows(RowsLoaded, 5)

	if len(fb.callsCounters) != 3 {
		t.Fatalf("expected 3 counter calls, got %d", len(fb.callsCounters))
	}
	c0 := fb.callsCounters[0]
	if c0.name != TransformsTotal || c0.labels["op"] != "groupby" || c0.labels["outcome"] != TransformApplied {
		t.Fatalf("counter[0] = %#v", c0)
	}
	c1 := fb.callsCounters[1]
	if c1.name != RowsTotal || c1.delta != 3 || c1.labels["kind"] != RowsRendered {
		t.Fatalf("counter[1] = %#v", c1)
	}
	c2 := fb.callsCounters[2]
	if c2.delta != 5 || c2.labels["kind"] != RowsLoaded {
		t.Fatalf("counter[2] = %#v", c2)
	}
}

func TestSetBackendAndFlush(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	SetBackend(fb)

	if backend != fb {
		t.Fatal("SetBackend did not replace global backend")
	}

	if err := Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if fb.flushCount != 1 {
		t.Fatalf("expected flushCount=1, got %d", fb.flushCount)
	}

	// SetBackend(nil) should not nil out the backend.
	SetBackend(nil)
	if backend != fb {
		t.Fatal("SetBackend(nil) should not change backend")
	}
}

package prom

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/mTatsuro/llm-data-visualizer/internal/metrics"
)

// readCounterValue reads the current value of a Counter for assertions in tests.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	if m.GetCounter() == nil {
		t.Fatalf("metric did not contain Counter value")
	}
	return m.GetCounter().GetValue()
}

// readSummaryCountSum reads sample count and sum from a SummaryVec.
func readSummaryCountSum(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()

	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	if !ok {
		t.Fatalf("SummaryVec.WithLabelValues(...) does not implement prometheus.Metric")
	}
	if err := metric.Write(m); err != nil {
		t.Fatalf("Summary.Write() error = %v", err)
	}
	if m.GetSummary() == nil {
		t.Fatalf("metric did not contain Summary value")
	}
	sum := m.GetSummary()
	return sum.GetSampleCount(), sum.GetSampleSum()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		jobName     string
		gatewayURL  string
		wantJobName string
	}{
		{name: "scrape only", jobName: "", gatewayURL: "", wantJobName: DefaultJob},
		{name: "empty job name uses default", gatewayURL: "http://pushgateway:9091", wantJobName: DefaultJob},
		{name: "explicit job name is preserved", jobName: "charts", gatewayURL: "http://pushgateway:9091", wantJobName: "charts"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := NewBackend(tt.jobName, tt.gatewayURL)
			if err != nil {
				t.Fatalf("NewBackend(%q, %q) error = %v", tt.jobName, tt.gatewayURL, err)
			}
			if b.jobName != tt.wantJobName {
				t.Fatalf("backend.jobName = %q, want %q", b.jobName, tt.wantJobName)
			}
			if b.stageCounter == nil || b.stageDuration == nil || b.requestCounter == nil ||
				b.requestDuration == nil || b.transformCounter == nil || b.rowCounter == nil {
				t.Fatalf("collectors not initialized: %+v", b)
			}
		})
	}
}

func TestIncCounter(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("", "")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	b.IncCounter(metrics.StageTotal, 3, metrics.Labels{"stage": "plan", "status": "success"})
	b.IncCounter(metrics.TransformsTotal, 1, metrics.Labels{"op": "sort", "outcome": "skipped"})
	b.IncCounter(metrics.RowsTotal, 5, metrics.Labels{"kind": "rendered"})
	b.IncCounter(metrics.RequestsTotal, 1, metrics.Labels{"route": "/api/health", "code": "200"})
	b.IncCounter("unknown_metric", 10, metrics.Labels{"foo": "bar"})

	if got := readCounterValue(t, b.stageCounter.WithLabelValues("plan", "success")); got != 3 {
		t.Fatalf("stage counter = %v, want 3", got)
	}
	if got := readCounterValue(t, b.transformCounter.WithLabelValues("sort", "skipped")); got != 1 {
		t.Fatalf("transform counter = %v, want 1", got)
	}
	if got := readCounterValue(t, b.rowCounter.WithLabelValues("rendered")); got != 5 {
		t.Fatalf("row counter = %v, want 5", got)
	}
	if got := readCounterValue(t, b.requestCounter.WithLabelValues("/api/health", "200")); got != 1 {
		t.Fatalf("request counter = %v, want 1", got)
	}
}

func TestIncCounterNilMetrics(t *testing.T) {
	t.Parallel()

	b := &Backend{} // zero-value backend with nil collectors

	b.IncCounter(metrics.StageTotal, 1, metrics.Labels{"stage": "s", "status": "ok"})
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "loaded"})
	b.IncCounter(metrics.TransformsTotal, 1, metrics.Labels{})
	b.IncCounter(metrics.RequestsTotal, 1, metrics.Labels{})
	b.ObserveHistogram(metrics.StageDuration, 1, metrics.Labels{})
	b.ObserveHistogram(metrics.RequestDuration, 1, metrics.Labels{})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() without gateway error = %v", err)
	}
}

func TestObserveHistogram(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("", "")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.ObserveHistogram(metrics.StageDuration, 1.5, metrics.Labels{"stage": "execute", "status": "success"})
	b.ObserveHistogram("other_metric", 2.0, metrics.Labels{"stage": "execute", "status": "success"})

	count, sum := readSummaryCountSum(t, b.stageDuration, "execute", "success")
	if count != 1 || sum != 1.5 {
		t.Fatalf("summary = (%d, %v), want (1, 1.5)", count, sum)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("", "")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.IncCounter(metrics.RowsTotal, 2, metrics.Labels{"kind": "loaded"})

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, `nlviz_rows_total{kind="loaded"} 2`) {
		t.Fatalf("scrape body missing row counter:\n%s", body)
	}
}

// TestFlush verifies that Flush pushes the registry to the configured
// Pushgateway URL.
func TestFlush(t *testing.T) {
	t.Parallel()

	type pushRequestInfo struct {
		method  string
		path    string
		bodyLen int
	}

	reqCh := make(chan pushRequestInfo, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)

		reqCh <- pushRequestInfo{
			method:  r.Method,
			path:    r.URL.Path,
			bodyLen: len(body),
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("nlviz-test", server.URL)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.IncCounter(metrics.StageTotal, 1, metrics.Labels{"stage": "plan", "status": "success"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var got pushRequestInfo
	select {
	case got = <-reqCh:
	default:
		t.Fatalf("Flush() did not result in any HTTP request to the Pushgateway")
	}
	if got.method != http.MethodPut {
		t.Fatalf("push method = %q, want PUT", got.method)
	}
	if !strings.Contains(got.path, "nlviz-test") {
		t.Fatalf("push path = %q, want job in path", got.path)
	}
	if got.bodyLen == 0 {
		t.Fatalf("push body is empty")
	}
}

// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the visualization service.
//
// The package exposes a narrow interface (Backend) focused on counters and
// timing data. A global backend defaults to a no-op, so instrumentation is
// always safe to call even when no metrics system is configured. Concrete
// systems live in subpackages (prom, datadog) and are installed once at
// startup with SetBackend.
package metrics

import (
	"strconv"
	"time"
)

// Metric names emitted by the helpers below.
const (
	RequestsTotal   = "nlviz_requests_total"
	RequestDuration = "nlviz_request_duration_seconds"
	StageTotal      = "nlviz_stage_total"
	StageDuration   = "nlviz_stage_duration_seconds"
	TransformsTotal = "nlviz_transforms_total"
	RowsTotal       = "nlviz_rows_total"
)

// Label values.
const (
	StatusSuccess    = "success"
	StatusFailure    = "failure"
	TransformApplied = "applied"
	TransformSkipped = "skipped"
	RowsRendered     = "rendered"
	RowsLoaded       = "loaded"
	StagePlan        = "plan"
	StageExecute     = "execute"
	StageLoad        = "load"
	StageStore       = "store"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

func status(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}

// RecordStage measures latency and success/failure of one pipeline stage
// (load, plan, execute, store).
func RecordStage(stage string, err error, d time.Duration) {
	lbls := Labels{
		"stage":  stage,
		"status": status(err),
	}
	backend.IncCounter(StageTotal, 1, lbls)
	backend.ObserveHistogram(StageDuration, d.Seconds(), lbls)
}

// RecordRequest counts an HTTP request by route and response code.
func RecordRequest(route string, code int, d time.Duration) {
	lbls := Labels{
		"route": route,
		"code":  strconv.Itoa(code),
	}
	backend.IncCounter(RequestsTotal, 1, lbls)
	backend.ObserveHistogram(RequestDuration, d.Seconds(), lbls)
}

// RecordTransform counts one transform by op and outcome (applied, skipped).
func RecordTransform(op, outcome string) {
	backend.IncCounter(TransformsTotal, 1, Labels{
		"op":      op,
		"outcome": outcome,
	})
}

// RecordRows increments a row counter for the given kind (loaded, rendered).
func RecordRows(kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{
		"kind": kind,
	})
}

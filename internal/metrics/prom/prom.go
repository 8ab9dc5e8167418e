// Package prom implements a Prometheus backend for the metrics package.
//
// Collected metrics are exposed for scraping through Handler and, when a
// Pushgateway URL is configured, pushed on Flush. All Prometheus-specific
// dependencies stay in this package.
package prom

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/mTatsuro/llm-data-visualizer/internal/metrics"
)

// DefaultJob is the Pushgateway job name used when none is given.
const DefaultJob = "nlviz"

// Backend is a Prometheus metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091; empty disables push
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stageCounter     *prometheus.CounterVec   // nlviz_stage_total
	stageDuration    *prometheus.SummaryVec   // nlviz_stage_duration_seconds
	requestCounter   *prometheus.CounterVec   // nlviz_requests_total
	requestDuration  *prometheus.HistogramVec // nlviz_request_duration_seconds
	transformCounter *prometheus.CounterVec   // nlviz_transforms_total
	rowCounter       *prometheus.CounterVec   // nlviz_rows_total
}

// NewBackend constructs a Prometheus backend. gatewayURL may be empty for a
// scrape-only backend.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if jobName == "" {
		jobName = DefaultJob
	}

	reg := prometheus.NewRegistry()

	stageCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.StageTotal,
			Help: "Pipeline stage executions, partitioned by stage and status.",
		},
		[]string{"stage", "status"},
	)
	stageDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       metrics.StageDuration,
			Help:       "Duration of pipeline stages in seconds, partitioned by stage and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"stage", "status"},
	)
	requestCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RequestsTotal,
			Help: "HTTP requests, partitioned by route and response code.",
		},
		[]string{"route", "code"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    metrics.RequestDuration,
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "code"},
	)
	transformCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.TransformsTotal,
			Help: "Plan transforms, partitioned by op and outcome (applied, skipped).",
		},
		[]string{"op", "outcome"},
	)
	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Row counts per kind (loaded, rendered).",
		},
		[]string{"kind"},
	)

	for name, c := range map[string]prometheus.Collector{
		"stage counter":     stageCounter,
		"stage summary":     stageDuration,
		"request counter":   requestCounter,
		"request histogram": requestDuration,
		"transform counter": transformCounter,
		"row counter":       rowCounter,
		"go collector":      collectors.NewGoCollector(),
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prom: register %s: %w", name, err)
		}
	}

	return &Backend{
		gatewayURL:       gatewayURL,
		jobName:          jobName,
		reg:              reg,
		stageCounter:     stageCounter,
		stageDuration:    stageDuration,
		requestCounter:   requestCounter,
		requestDuration:  requestDuration,
		transformCounter: transformCounter,
		rowCounter:       rowCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StageTotal:
		if b.stageCounter == nil {
			return
		}
		b.stageCounter.WithLabelValues(labels["stage"], labels["status"]).Add(delta)

	case metrics.RequestsTotal:
		if b.requestCounter == nil {
			return
		}
		b.requestCounter.WithLabelValues(labels["route"], labels["code"]).Add(delta)

	case metrics.TransformsTotal:
		if b.transformCounter == nil {
			return
		}
		b.transformCounter.WithLabelValues(labels["op"], labels["outcome"]).Add(delta)

	case metrics.RowsTotal:
		if b.rowCounter == nil {
			return
		}
		b.rowCounter.WithLabelValues(labels["kind"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case metrics.StageDuration:
		if b.stageDuration == nil {
			return
		}
		b.stageDuration.WithLabelValues(labels["stage"], labels["status"]).Observe(value)
	case metrics.RequestDuration:
		if b.requestDuration == nil {
			return
		}
		b.requestDuration.WithLabelValues(labels["route"], labels["code"]).Observe(value)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (b *Backend) Handler() http.Handler {
	return promhttp.HandlerFor(b.reg, promhttp.HandlerOpts{Registry: b.reg})
}

// Flush pushes the current registry to the Pushgateway, if one is configured.
func (b *Backend) Flush() error {
	if b.gatewayURL == "" {
		return nil
	}
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}

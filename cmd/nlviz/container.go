package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mTatsuro/llm-data-visualizer/internal/config"
	"github.com/mTatsuro/llm-data-visualizer/internal/dataset"
	"github.com/mTatsuro/llm-data-visualizer/internal/datasource/httpds"
	"github.com/mTatsuro/llm-data-visualizer/internal/executor"
	"github.com/mTatsuro/llm-data-visualizer/internal/metrics"
	"github.com/mTatsuro/llm-data-visualizer/internal/metrics/datadog"
	"github.com/mTatsuro/llm-data-visualizer/internal/metrics/prom"
	"github.com/mTatsuro/llm-data-visualizer/internal/plan"
	"github.com/mTatsuro/llm-data-visualizer/internal/planner"
	"github.com/mTatsuro/llm-data-visualizer/internal/repair"
	"github.com/mTatsuro/llm-data-visualizer/internal/storage"
	"github.com/mTatsuro/llm-data-visualizer/internal/transformer"

	// register all history backends; storage.kind picks one.
	_ "github.com/mTatsuro/llm-data-visualizer/internal/storage/all"
)

// loadTable reads the configured dataset from a path or URL.
func loadTable(ctx context.Context, d config.Dataset, log *zap.Logger) (*dataset.Table, error) {
	start := time.Now()
	opt := dataset.LoadOptions{Format: dataset.FileFormat(d.Format), SkipEnrich: d.SkipEnrich}
	if r := []rune(d.Comma); len(r) == 1 {
		opt.Comma = r[0]
	}

	var (
		t   *dataset.Table
		err error
	)
	if httpds.IsURL(d.Path) {
		t, err = httpds.Load(ctx, httpds.NewClient(httpds.Config{MaxRetries: 3}), d.Path, opt)
	} else {
		t, err = dataset.LoadFile(ctx, d.Path, opt)
	}
	metrics.RecordStage(metrics.StageLoad, err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", d.Path, err)
	}
	metrics.RecordRows(metrics.RowsLoaded, int64(t.Len()))
	log.Info("dataset loaded",
		zap.String("path", d.Path),
		zap.Int("rows", t.Len()),
		zap.Int("columns", len(t.Columns)),
		zap.Duration("took", time.Since(start)))
	return t, nil
}

// newExecutor applies the executor config on top of the default heuristics.
func newExecutor(e config.Executor, log *zap.Logger) (*executor.Executor, error) {
	policy, err := executor.ParsePolicy(e.Policy)
	if err != nil {
		return nil, err
	}
	engine := transformer.New(
		transformer.WithInvestorColumn(e.InvestorColumn),
		transformer.WithLogger(log),
	)
	return executor.New(
		executor.WithPolicy(policy),
		executor.WithRanking(repair.DefaultRanking().Merge(e.Ranking)),
		executor.WithEngine(engine),
		executor.WithLogger(log),
	), nil
}

// newPlanner builds the configured planner. A gemini planner without a key
// still starts; every request then fails with planner.ErrNoAPIKey.
func newPlanner(ctx context.Context, p config.Planner, log *zap.Logger) (planner.Planner, error) {
	switch p.Kind {
	case "file":
		return planner.File{Path: p.PlanFile}, nil
	case "gemini":
		g, err := planner.NewGemini(ctx, p.APIKey,
			planner.WithModel(p.Model),
			planner.WithTimeout(p.Timeout),
			planner.WithLogger(log))
		if errors.Is(err, planner.ErrNoAPIKey) {
			log.Warn("no API key configured; visualize requests will fail", zap.String("env", config.EnvAPIKey))
			return planner.Func(func(context.Context, planner.Request) (plan.Plan, error) {
				return plan.Plan{}, planner.ErrNoAPIKey
			}), nil
		}
		if err != nil {
			return nil, err
		}
		log.Info("planner ready", zap.String("model", g.Model()))
		return g, nil
	default:
		return nil, fmt.Errorf("unsupported planner.kind=%s", p.Kind)
	}
}

// setupMetrics installs the configured backend. The returned handler serves
// /metrics (nil when the backend is not scrapeable); flush must run at exit.
func setupMetrics(m config.Metrics, log *zap.Logger) (h http.Handler, flush func(), err error) {
	flush = func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics flush failed", zap.Error(err))
		}
	}
	switch m.Kind {
	case "", "none":
		return nil, func() {}, nil
	case "prometheus", "pushgateway":
		url := ""
		if m.Kind == "pushgateway" {
			url = m.Options.String("url", "")
		}
		b, err := prom.NewBackend(m.Options.String("job", prom.DefaultJob), url)
		if err != nil {
			return nil, nil, fmt.Errorf("metrics: %w", err)
		}
		metrics.SetBackend(b)
		log.Info("metrics enabled", zap.String("backend", m.Kind), zap.String("pushgateway", url))
		return b.Handler(), flush, nil
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       m.Options.String("addr", "127.0.0.1:8125"),
			Namespace:  m.Options.String("namespace", "nlviz."),
			GlobalTags: m.Options.StringSlice("tags"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("metrics: %w", err)
		}
		metrics.SetBackend(b)
		log.Info("metrics enabled", zap.String("backend", m.Kind))
		return nil, flush, nil
	default:
		return nil, nil, fmt.Errorf("unsupported metrics.kind=%s", m.Kind)
	}
}

// openStore opens the history repository for storage.kind.
func openStore(ctx context.Context, s config.Storage) (storage.Repository, error) {
	return storage.New(ctx, storage.Config{
		Kind:            s.Kind,
		DSN:             s.DSN,
		Table:           s.Table,
		AutoCreateTable: s.AutoCreateTable,
	})
}

// Package server exposes the visualization pipeline over HTTP.
//
// Routes:
//
//	GET  /                          → minimal HTML page describing the dataset
//	GET  /api/health                → {"status":"ok"}
//	GET  /api/schema                → schema descriptor of the loaded dataset
//	POST /api/visualize             → prompt → plan → payload
//	GET  /api/visualizations        → recent payloads, newest first
//	GET  /api/visualizations/{id}   → one stored payload
//	GET  /metrics                   → Prometheus scrape, when configured
package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mTatsuro/llm-data-visualizer/internal/dataset"
	"github.com/mTatsuro/llm-data-visualizer/internal/executor"
	"github.com/mTatsuro/llm-data-visualizer/internal/planner"
	"github.com/mTatsuro/llm-data-visualizer/internal/schema"
	"github.com/mTatsuro/llm-data-visualizer/internal/storage"
	"github.com/mTatsuro/llm-data-visualizer/internal/storage/memory"
)

// Config controls server behavior. Zero durations and sizes take defaults.
type Config struct {
	Addr            string
	CORSOrigins     []string
	CacheSize       int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = ":8000"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 90 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 1 << 20
	}
}

// Deps are the collaborators a Server drives. Table and Planner are
// required.
type Deps struct {
	Table    *dataset.Table
	Planner  planner.Planner
	Executor *executor.Executor
	// Store defaults to an in-memory repository.
	Store storage.Repository
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *zap.Logger
}

// Server serves one read-only dataset.
type Server struct {
	cfg     Config
	table   *dataset.Table
	schema  []schema.Entry
	planner planner.Planner
	exec    *executor.Executor
	store   storage.Repository
	cache   *resultCache
	metrics http.Handler
	log     *zap.Logger
	mux     *http.ServeMux
	tmpl    *template.Template
}

// New constructs a Server with routes and the embedded index template.
func New(cfg Config, d Deps) (*Server, error) {
	if d.Table == nil {
		return nil, errors.New("server: nil table")
	}
	if d.Planner == nil {
		return nil, errors.New("server: nil planner")
	}
	cfg.defaults()
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Executor == nil {
		d.Executor = executor.New(executor.WithLogger(d.Logger))
	}
	if d.Store == nil {
		d.Store = memory.New()
	}

	s := &Server{
		cfg:     cfg,
		table:   d.Table,
		schema:  schema.Describe(d.Table),
		planner: d.Planner,
		exec:    d.Executor,
		store:   d.Store,
		cache:   newResultCache(cfg.CacheSize),
		metrics: d.Metrics,
		log:     d.Logger,
		mux:     http.NewServeMux(),
		tmpl:    template.Must(template.New("index").Parse(indexHTML)),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/schema", s.handleSchema)
	s.mux.HandleFunc("POST /api/visualize", s.handleVisualize)
	s.mux.HandleFunc("GET /api/visualizations", s.handleListVisualizations)
	s.mux.HandleFunc("GET /api/visualizations/{id}", s.handleGetVisualization)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.withAccessLog(s.withRecover(s.withCORS(s.mux)))
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully within
// ShutdownTimeout. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		ErrorLog:          zap.NewStdLog(s.log),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", zap.String("addr", ln.Addr().String()), zap.Int("rows", s.table.Len()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		s.log.Info("server stopped")
		return nil
	})
	return g.Wait()
}

//go:embed index.tmpl.html
var indexHTML string

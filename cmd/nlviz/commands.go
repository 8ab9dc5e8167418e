package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mTatsuro/llm-data-visualizer/internal/config"
	"github.com/mTatsuro/llm-data-visualizer/internal/planner"
	"github.com/mTatsuro/llm-data-visualizer/internal/schema"
	"github.com/mTatsuro/llm-data-visualizer/internal/server"
)

// errInvalidConfig is returned after validation issues have been printed.
var errInvalidConfig = errors.New("configuration is invalid")

// checkConfig prints every issue and fails on errors.
func (a *app) checkConfig(cfg config.Service) error {
	issues := config.ValidateService(cfg)
	for _, iss := range issues {
		fmt.Fprintf(a.stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return errInvalidConfig
	}
	return nil
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg, log, err := a.load()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if err := a.checkConfig(cfg); err != nil {
		return err
	}
	log.Debug("config", zap.Any("service", cfg.Redacted()))

	metricsHandler, flush, err := setupMetrics(cfg.Metrics, log)
	if err != nil {
		return err
	}
	defer flush()

	table, err := loadTable(ctx, cfg.Dataset, log)
	if err != nil {
		return err
	}
	exec, err := newExecutor(cfg.Executor, log)
	if err != nil {
		return err
	}
	pl, err := newPlanner(ctx, cfg.Planner, log)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	srv, err := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		CORSOrigins:     cfg.Server.CORSOrigins,
		CacheSize:       cfg.Server.CacheSize,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
	}, server.Deps{
		Table:    table,
		Planner:  pl,
		Executor: exec,
		Store:    store,
		Metrics:  metricsHandler,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func (a *app) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the dataset schema descriptor as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := a.load()
			if err != nil {
				return err
			}
			table, err := loadTable(cmd.Context(), cfg.Dataset, log)
			if err != nil {
				return err
			}
			return a.printJSON(schema.Describe(table))
		},
	}
}

type execOptions struct {
	planPath string
	strict   bool
}

func (a *app) execCmd() *cobra.Command {
	opts := &execOptions{}
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute a plan file against the dataset and print the payload",
		Long: `Execute a plan document (the JSON a model would return) without calling
the model. Plan lint findings are printed to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.exec(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.planPath, "plan", "p", "", "path to a plan JSON file (required)")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "report encoding errors instead of repairing them")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func (a *app) exec(ctx context.Context, opts *execOptions) error {
	cfg, log, err := a.load()
	if err != nil {
		return err
	}
	if opts.strict {
		cfg.Executor.Policy = "strict"
	}
	table, err := loadTable(ctx, cfg.Dataset, log)
	if err != nil {
		return err
	}
	p, err := planner.File{Path: opts.planPath}.Plan(ctx, planner.Request{})
	if err != nil {
		return err
	}
	for _, iss := range config.LintPlan(p, table.Names()) {
		fmt.Fprintf(a.stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	exec, err := newExecutor(cfg.Executor, log)
	if err != nil {
		return err
	}
	return a.printJSON(exec.Execute(table, p))
}

type validateOptions struct {
	planPath string
}

func (a *app) validateCmd() *cobra.Command {
	opts := &validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration (and optionally a plan) and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if err := a.checkConfig(cfg); err != nil {
				return err
			}
			if opts.planPath != "" {
				p, err := planner.File{Path: opts.planPath}.Plan(cmd.Context(), planner.Request{})
				if err != nil {
					return err
				}
				for _, iss := range config.LintPlan(p, nil) {
					fmt.Fprintf(a.stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
				}
			}
			fmt.Fprintf(a.stdout, "configuration is valid\n")
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.planPath, "plan", "p", "", "also decode and lint this plan file")
	return cmd
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

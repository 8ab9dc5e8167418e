package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mTatsuro/llm-data-visualizer/internal/executor"
	"github.com/mTatsuro/llm-data-visualizer/internal/plan"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block startup.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block startup.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding.
//
// Path is a dotted path into the config (e.g. "storage.dsn",
// "executor.ranking.axis_pairs[1].x").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateService performs static validation of a Service. It does not
// mutate s or touch the network or filesystem.
//
//	cfg, _ := config.Load(path)
//	for _, iss := range config.ValidateService(cfg) {
//	    fmt.Printf("%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
//	}
func ValidateService(s Service) []Issue {
	var issues []Issue
	issues = append(issues, validateDataset(s.Dataset)...)
	issues = append(issues, validatePlanner(s.Planner)...)
	issues = append(issues, validateExecutor(s.Executor)...)
	issues = append(issues, validateServer(s.Server)...)
	issues = append(issues, validateStorage(s.Storage)...)
	issues = append(issues, validateMetrics(s.Metrics)...)
	return issues
}

func errorf(path, format string, args ...any) Issue {
	return Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, args...)}
}

func warnf(path, format string, args ...any) Issue {
	return Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, args...)}
}

func validateDataset(d Dataset) []Issue {
	var issues []Issue
	if strings.TrimSpace(d.Path) == "" {
		issues = append(issues, errorf("dataset.path", "dataset.path must not be empty (or set %s)", EnvDatasetPath))
	}
	switch strings.ToLower(d.Format) {
	case "", "csv", "json":
	default:
		issues = append(issues, errorf("dataset.format", "unknown dataset format %q; want csv or json", d.Format))
	}
	if n := len([]rune(d.Comma)); n > 1 {
		issues = append(issues, errorf("dataset.comma", "comma must be a single character, got %q", d.Comma))
	}
	return issues
}

func validatePlanner(p Planner) []Issue {
	var issues []Issue
	switch p.Kind {
	case "gemini":
		if strings.TrimSpace(p.APIKey) == "" {
			issues = append(issues, warnf("planner.api_key", "no API key; set %s or /api/visualize will fail", EnvAPIKey))
		}
	case "file":
		if strings.TrimSpace(p.PlanFile) == "" {
			issues = append(issues, errorf("planner.plan_file", "file planner requires plan_file"))
		}
	case "":
		issues = append(issues, errorf("planner.kind", "planner.kind must not be empty"))
	default:
		issues = append(issues, errorf("planner.kind", "unknown planner kind %q; want gemini or file", p.Kind))
	}
	if p.Timeout < 0 {
		issues = append(issues, errorf("planner.timeout", "timeout must not be negative"))
	}
	return issues
}

func validateExecutor(e Executor) []Issue {
	var issues []Issue
	if _, err := executor.ParsePolicy(e.Policy); err != nil {
		issues = append(issues, errorf("executor.policy", "unknown policy %q; want repair or strict", e.Policy))
	}
	if strings.TrimSpace(e.InvestorColumn) == "" {
		issues = append(issues, warnf("executor.investor_column", "investor_column is empty; investor_frequency needs an explicit column"))
	}

	r := e.Ranking
	if r.TopN < 0 {
		issues = append(issues, errorf("executor.ranking.top_n", "top_n must not be negative"))
	}
	if r.RescaleThreshold < 0 {
		issues = append(issues, errorf("executor.ranking.rescale_threshold", "rescale_threshold must not be negative"))
	}
	for i, p := range r.AxisPairs {
		if strings.TrimSpace(p.X) == "" {
			issues = append(issues, errorf(fmt.Sprintf("executor.ranking.axis_pairs[%d].x", i), "axis pair needs an x column"))
		}
		if strings.TrimSpace(p.Y) == "" {
			issues = append(issues, errorf(fmt.Sprintf("executor.ranking.axis_pairs[%d].y", i), "axis pair needs a y column"))
		}
	}
	return issues
}

func validateServer(s Server) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Addr) == "" {
		issues = append(issues, errorf("server.addr", "server.addr must not be empty"))
	}
	if s.CacheSize < 0 {
		issues = append(issues, errorf("server.cache_size", "cache_size must not be negative"))
	}
	if s.MaxBodyBytes < 0 {
		issues = append(issues, errorf("server.max_body_bytes", "max_body_bytes must not be negative"))
	}
	if s.WriteTimeout > 0 && s.WriteTimeout < 10*time.Second {
		issues = append(issues, warnf("server.write_timeout", "write_timeout %s is shorter than a typical planner call", s.WriteTimeout))
	}
	for i, o := range s.CORSOrigins {
		if o == "*" {
			continue
		}
		if u, err := url.Parse(o); err != nil || u.Scheme == "" || u.Host == "" {
			issues = append(issues, errorf(fmt.Sprintf("server.cors_origins[%d]", i), "origin %q must be \"*\" or scheme://host", o))
		}
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue
	switch s.Kind {
	case "memory":
		if s.DSN != "" {
			issues = append(issues, warnf("storage.dsn", "dsn is ignored by the memory store"))
		}
	case "sqlite", "postgres", "mssql":
		if strings.TrimSpace(s.DSN) == "" {
			issues = append(issues, errorf("storage.dsn", "storage.dsn must not be empty for kind %q", s.Kind))
		}
		if !s.AutoCreateTable {
			issues = append(issues, warnf("storage.auto_create_table", "auto_create_table is false; the history table must already exist"))
		}
	case "":
		issues = append(issues, errorf("storage.kind", "storage.kind must not be empty"))
	default:
		issues = append(issues, warnf("storage.kind", "unknown storage kind %q; ensure a matching backend is registered", s.Kind))
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Kind {
	case "", "none", "prometheus":
	case "pushgateway":
		if m.Options.String("url", "") == "" {
			issues = append(issues, errorf("metrics.options.url", "pushgateway requires options.url"))
		}
	case "datadog":
		if m.Options.String("addr", "") == "" {
			issues = append(issues, warnf("metrics.options.addr", "datadog addr not set; the client default agent address is used"))
		}
	default:
		issues = append(issues, errorf("metrics.kind", "unknown metrics kind %q", m.Kind))
	}
	return issues
}

// LintPlan checks a plan against dataset columns and reports its issues in
// the same shape as ValidateService.
func LintPlan(p plan.Plan, columns []string) []Issue {
	var issues []Issue
	for _, li := range plan.Lint(p, columns) {
		issues = append(issues, warnf(li.Path, "%s", li.Message))
	}
	return issues
}

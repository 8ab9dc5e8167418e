// Package config defines the service configuration for nlviz: where the
// dataset lives, how plans are produced and executed, how the HTTP server,
// history store and metrics backend are set up.
//
// Configuration is YAML (JSON is valid YAML) and every field has a working
// default, so an empty file or no file at all yields a runnable service. A
// handful of environment variables override the file after decoding.
//
// Example (trimmed):
//
//	dataset:
//	  path: data/top_100_saas_companies_2025.csv
//	planner:
//	  kind: gemini
//	  model: gemini-2.5-flash
//	executor:
//	  policy: repair
//	  ranking:
//	    top_n: 8
//	server:
//	  addr: ":8000"
//	storage:
//	  kind: sqlite
//	  dsn: nlviz.db
//	  auto_create_table: true
//	metrics:
//	  kind: prometheus
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mTatsuro/llm-data-visualizer/internal/repair"
)

// Environment variables applied by ApplyEnv.
const (
	EnvDatasetPath = "DATASET_PATH"
	EnvAPIKey      = "GEMINI_API_KEY"
	EnvModel       = "NLVIZ_MODEL"
	EnvAddr        = "NLVIZ_ADDR"
)

// Service is the top-level configuration document.
type Service struct {
	Dataset  Dataset  `yaml:"dataset" json:"dataset"`
	Planner  Planner  `yaml:"planner" json:"planner"`
	Executor Executor `yaml:"executor" json:"executor"`
	Server   Server   `yaml:"server" json:"server"`
	Storage  Storage  `yaml:"storage" json:"storage"`
	Metrics  Metrics  `yaml:"metrics" json:"metrics"`
}

// Dataset locates the table served by the process.
type Dataset struct {
	// Path is a local file or an http(s) URL.
	Path string `yaml:"path" json:"path"`
	// Format is "csv" or "json"; inferred from the extension when empty.
	Format string `yaml:"format" json:"format"`
	// Comma is the CSV delimiter; "," when empty.
	Comma string `yaml:"comma" json:"comma"`
	// SkipEnrich disables derived "<col>_num" columns.
	SkipEnrich bool `yaml:"skip_enrich" json:"skip_enrich"`
}

// Planner selects the plan source.
type Planner struct {
	// Kind is "gemini" or "file".
	Kind    string        `yaml:"kind" json:"kind"`
	Model   string        `yaml:"model" json:"model"`
	APIKey  string        `yaml:"api_key" json:"api_key"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// PlanFile is read by the "file" planner.
	PlanFile string `yaml:"plan_file" json:"plan_file"`
}

// Executor configures plan execution.
type Executor struct {
	// Policy is "repair" or "strict".
	Policy string `yaml:"policy" json:"policy"`
	// InvestorColumn is the source column of investor_frequency.
	InvestorColumn string `yaml:"investor_column" json:"investor_column"`
	// Ranking overrides individual repair heuristics.
	Ranking repair.Ranking `yaml:"ranking" json:"ranking"`
}

// Server configures the HTTP API.
type Server struct {
	Addr        string   `yaml:"addr" json:"addr"`
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`
	// CacheSize bounds the number of cached payloads keyed by plan
	// fingerprint. Zero disables the cache.
	CacheSize       int           `yaml:"cache_size" json:"cache_size"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" json:"max_body_bytes"`
}

// Storage configures the visualization history store.
type Storage struct {
	// Kind is "memory", "sqlite", "postgres" or "mssql".
	Kind            string `yaml:"kind" json:"kind"`
	DSN             string `yaml:"dsn" json:"dsn"`
	Table           string `yaml:"table" json:"table"`
	AutoCreateTable bool   `yaml:"auto_create_table" json:"auto_create_table"`
}

// Metrics selects a metrics backend. Options carry backend settings:
//
//	prometheus:  job
//	pushgateway: job, url
//	datadog:     addr, namespace, tags
type Metrics struct {
	// Kind is "none", "prometheus", "pushgateway" or "datadog".
	Kind    string  `yaml:"kind" json:"kind"`
	Options Options `yaml:"options" json:"options"`
}

// Default returns the configuration used when no file is given.
func Default() Service {
	return Service{
		Dataset:  Dataset{Path: "top_100_saas_companies_2025.csv"},
		Planner:  Planner{Kind: "gemini", Timeout: 60 * time.Second},
		Executor: Executor{Policy: "repair", InvestorColumn: "Top Investors"},
		Server: Server{
			Addr:            ":8000",
			CORSOrigins:     []string{"*"},
			CacheSize:       256,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Storage: Storage{Kind: "memory", Table: "visualizations"},
		Metrics: Metrics{Kind: "none", Options: Options{}},
	}
}

// Decode reads a YAML (or JSON) document over Default. Unknown keys are
// errors. An empty document yields Default.
func Decode(r io.Reader) (Service, error) {
	cfg := Default()
	b, err := io.ReadAll(r)
	if err != nil {
		return cfg, fmt.Errorf("config: read: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: decode: %w", err)
	}
	if cfg.Metrics.Options == nil {
		cfg.Metrics.Options = Options{}
	}
	return cfg, nil
}

// Load decodes the file at path and applies environment overrides. An empty
// path loads Default plus the environment.
func Load(path string) (Service, error) {
	if path == "" {
		cfg := Default()
		cfg.ApplyEnv(os.LookupEnv)
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Service{}, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	cfg, err := Decode(f)
	if err != nil {
		return Service{}, fmt.Errorf("%s: %w", path, err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. lookup is os.LookupEnv in
// production.
func (s *Service) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvDatasetPath, &s.Dataset.Path)
	set(EnvAPIKey, &s.Planner.APIKey)
	set(EnvModel, &s.Planner.Model)
	set(EnvAddr, &s.Server.Addr)
}

// Redacted returns a copy safe to log or print.
func (s Service) Redacted() Service {
	if s.Planner.APIKey != "" {
		s.Planner.APIKey = "REDACTED"
	}
	if s.Storage.DSN != "" && strings.Contains(s.Storage.DSN, "@") {
		s.Storage.DSN = "REDACTED"
	}
	return s
}

// Options is a small helper to fetch typed values from free-form maps. It
// performs only minimal type coercion and returns provided defaults when a
// key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. YAML decodes integers as int and
// JSON as float64; both are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Duration returns a duration for key given as a Go duration string ("5s")
// or as integer seconds.
func (o Options) Duration(key string, def time.Duration) time.Duration {
	switch v := o[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return def
}

// StringMap returns a map[string]string for key when the value is an object
// whose values are strings. Non-string values are ignored.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		if m, ok := v.(map[string]any); ok {
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		}
	}
	return res
}

// StringSlice returns a []string for key when the value is an array of
// strings. A single string is returned as a one-element slice.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		case string:
			return []string{vv}
		}
	}
	return nil
}

// UnmarshalJSON decodes a missing or null object to an empty, non-nil map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}

// UnmarshalYAML is the YAML counterpart of UnmarshalJSON.
func (o *Options) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!null" {
		*o = Options{}
		return nil
	}
	var tmp map[string]any
	if err := n.Decode(&tmp); err != nil {
		return err
	}
	if tmp == nil {
		tmp = map[string]any{}
	}
	*o = Options(tmp)
	return nil
}

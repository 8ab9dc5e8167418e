// Package storage persists rendered visualizations so clients can fetch them
// again by id and so follow-up prompts can edit them.
//
// Backends (memory, sqlite, postgres, mssql) register a Factory at init time; callers
// select one by Config.Kind and stay backend-agnostic. Import
// internal/storage/all to enable every built-in backend.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned by Get when no visualization has the given id.
var ErrNotFound = errors.New("storage: visualization not found")

// DefaultTable is the table name used when Config.Table is empty.
const DefaultTable = "visualizations"

// Visualization is one stored chart payload.
type Visualization struct {
	ID          string          `json:"viz_id"`
	Fingerprint string          `json:"fingerprint"`
	Prompt      string          `json:"prompt"`
	VizType     string          `json:"viz_type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Repository stores visualizations keyed by id.
type Repository interface {
	// Save inserts v or replaces the stored row with the same id. UpdatedAt is
	// stamped by the backend; CreatedAt of an existing row is preserved.
	Save(ctx context.Context, v Visualization) error
	// Get returns ErrNotFound (wrapped or bare) for an unknown id.
	Get(ctx context.Context, id string) (Visualization, error)
	// List returns up to limit rows, most recently updated first. limit <= 0
	// means no limit.
	List(ctx context.Context, limit int) ([]Visualization, error)
	Close()
}

// Execer is implemented by SQL backends that can run DDL.
type Execer interface {
	Exec(ctx context.Context, sql string) error
}

// Config selects and configures a backend.
type Config struct {
	Kind            string
	DSN             string
	Table           string
	AutoCreateTable bool
}

// TableName returns c.Table or DefaultTable.
func (c Config) TableName() string {
	if t := strings.TrimSpace(c.Table); t != "" {
		return t
	}
	return DefaultTable
}

// Factory opens a backend.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// ListKinds returns the registered kinds, sorted. The slice is a copy.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens the backend registered for cfg.Kind and, when
// cfg.AutoCreateTable is set, runs its DDL bootstrapper.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	repo, err := f(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.AutoCreateTable {
		if err := EnsureTable(ctx, cfg, repo); err != nil {
			repo.Close()
			return nil, err
		}
	}
	return repo, nil
}

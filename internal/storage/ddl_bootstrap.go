package storage

import (
	"context"
	"fmt"
	"sync"
)

// DDLBootstrapper creates the visualization table for one backend kind,
// typically through the repository's Exec method.
type DDLBootstrapper func(ctx context.Context, repo Repository, table string) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBootstrapper{}
)

// RegisterDDL registers (or replaces) the DDLBootstrapper for kind. Backends
// call it from init.
func RegisterDDL(kind string, fn DDLBootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// EnsureTable runs the bootstrapper registered for cfg.Kind. Kinds without
// one (e.g. memory) need no schema and succeed.
func EnsureTable(ctx context.Context, cfg Config, repo Repository) error {
	ddlMu.RLock()
	fn, ok := ddlFns[cfg.Kind]
	ddlMu.RUnlock()
	if !ok {
		return nil
	}
	if err := fn(ctx, repo, cfg.TableName()); err != nil {
		return fmt.Errorf("storage: ensure table %s: %w", cfg.TableName(), err)
	}
	return nil
}

// ExecDDL is the DDLBootstrapper body shared by SQL backends: it runs stmt
// through repo, which must implement Execer.
func ExecDDL(ctx context.Context, repo Repository, stmt string) error {
	ex, ok := repo.(Execer)
	if !ok {
		return fmt.Errorf("storage: %T cannot execute DDL", repo)
	}
	return ex.Exec(ctx, stmt)
}

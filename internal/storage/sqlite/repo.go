// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql and the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mTatsuro/llm-data-visualizer/internal/storage"
)

// Config holds SQLite repository configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:nlviz.db?cache=shared"
	//   ":memory:"
	DSN string

	// Table holds the visualizations. "main.visualizations" style names are
	// accepted.
	Table string
}

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
	now func() time.Time
}

// Open opens a database handle without touching the schema.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// ":memory:" databases exist per connection.
	db.SetMaxOpenConns(1)
	return db, nil
}

// New wraps an open handle.
func New(db *sql.DB, table string) *Repository {
	if table == "" {
		table = storage.DefaultTable
	}
	return &Repository{db: db, cfg: Config{Table: table}, now: time.Now}
}

// NewRepository opens a SQLite connection using the provided DSN and returns
// a Repository plus a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := Open(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	r := New(db, cfg.Table)
	r.cfg.DSN = cfg.DSN
	return r, func() { db.Close() }, nil
}

// CreateTableSQL returns the DDL for the visualization table.
func CreateTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	prompt      TEXT NOT NULL,
	viz_type    TEXT NOT NULL,
	payload     TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
)`, quoteFQN(table))
}

// Save implements storage.Repository with an INSERT ... ON CONFLICT upsert.
func (r *Repository) Save(ctx context.Context, v storage.Visualization) error {
	if v.ID == "" {
		return fmt.Errorf("sqlite: save: empty id")
	}
	now := r.now().UTC()
	created := v.CreatedAt
	if created.IsZero() {
		created = now
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, fingerprint, prompt, viz_type, payload, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	fingerprint = excluded.fingerprint,
	prompt      = excluded.prompt,
	viz_type    = excluded.viz_type,
	payload     = excluded.payload,
	updated_at  = excluded.updated_at`, quoteFQN(r.cfg.Table))

	if _, err := r.db.ExecContext(ctx, q,
		v.ID, v.Fingerprint, v.Prompt, v.VizType, string(v.Payload),
		created.UnixNano(), now.UnixNano(),
	); err != nil {
		return fmt.Errorf("sqlite: save %s: %w", v.ID, err)
	}
	return nil
}

const selectColumns = "id, fingerprint, prompt, viz_type, payload, created_at, updated_at"

// Get implements storage.Repository.
func (r *Repository) Get(ctx context.Context, id string) (storage.Visualization, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", selectColumns, quoteFQN(r.cfg.Table))
	v, err := scan(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Visualization{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Visualization{}, fmt.Errorf("sqlite: get %s: %w", id, err)
	}
	return v, nil
}

// List implements storage.Repository.
func (r *Repository) List(ctx context.Context, limit int) ([]storage.Visualization, error) {
	if limit <= 0 {
		limit = -1
	}
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY updated_at DESC, id LIMIT ?", selectColumns, quoteFQN(r.cfg.Table))
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	defer rows.Close()

	var out []storage.Visualization
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (storage.Visualization, error) {
	var (
		v                storage.Visualization
		payload          string
		created, updated int64
	)
	if err := s.Scan(&v.ID, &v.Fingerprint, &v.Prompt, &v.VizType, &payload, &created, &updated); err != nil {
		return storage.Visualization{}, err
	}
	v.Payload = []byte(payload)
	v.CreatedAt = time.Unix(0, created).UTC()
	v.UpdatedAt = time.Unix(0, updated).UTC()
	return v, nil
}

// Exec executes an arbitrary SQL statement (typically DDL) using the underlying
// database/sql connection.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

func quoteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// quoteFQN quotes "main.visualizations" as "main"."visualizations".
func quoteFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quoteIdent(p)
	}
	return strings.Join(parts, ".")
}

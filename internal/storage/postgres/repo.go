// Package postgres implements a Postgres-backed storage.Repository using pgx
// v5 and a connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mTatsuro/llm-data-visualizer/internal/storage"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN   string // connection string for pgxpool
	Table string // possibly schema-qualified, e.g. "public.visualizations"
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	close := func() { pool.Close() }
	return &Repository{pool: pool, cfg: cfg}, close, nil
}

// CreateTableSQL returns the DDL for the visualization table.
func CreateTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	prompt      TEXT NOT NULL,
	viz_type    TEXT NOT NULL,
	payload     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`, pgFQN(table))
}

// upsertSQL builds the INSERT ... ON CONFLICT statement for table.
func upsertSQL(table string) string {
	cols := []string{"id", "fingerprint", "prompt", "viz_type", "payload", "created_at", "updated_at"}
	params := make([]string, len(cols))
	for i := range cols {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		pgFQN(table),
		strings.Join(mapIdent(cols), ","),
		strings.Join(params, ","),
		pgIdent("id"),
		strings.Join(updateColumns([]string{"fingerprint", "prompt", "viz_type", "payload", "updated_at"}), ", "),
	)
}

// updateColumns generates a list of column updates in the format: "col = EXCLUDED.col"
func updateColumns(cols []string) []string {
	updates := make([]string, 0, len(cols))
	for _, col := range cols {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", pgIdent(col), pgIdent(col)))
	}
	return updates
}

// Save implements storage.Repository.
func (r *Repository) Save(ctx context.Context, v storage.Visualization) error {
	if v.ID == "" {
		return fmt.Errorf("postgres: save: empty id")
	}
	now := time.Now().UTC()
	created := v.CreatedAt
	if created.IsZero() {
		created = now
	}
	payload := string(v.Payload)
	if strings.TrimSpace(payload) == "" {
		payload = "null"
	}
	_, err := r.pool.Exec(ctx, upsertSQL(r.cfg.Table),
		v.ID, v.Fingerprint, v.Prompt, v.VizType, payload, created, now)
	if err != nil {
		return fmt.Errorf("postgres: save %s: %w", v.ID, describe(err))
	}
	return nil
}

const selectColumns = `"id","fingerprint","prompt","viz_type","payload"::text,"created_at","updated_at"`

// Get implements storage.Repository.
func (r *Repository) Get(ctx context.Context, id string) (storage.Visualization, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", selectColumns, pgFQN(r.cfg.Table), pgIdent("id"))
	v, err := scan(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Visualization{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Visualization{}, fmt.Errorf("postgres: get %s: %w", id, describe(err))
	}
	return v, nil
}

// List implements storage.Repository.
func (r *Repository) List(ctx context.Context, limit int) ([]storage.Visualization, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s ORDER BY "updated_at" DESC, "id"`, selectColumns, pgFQN(r.cfg.Table))
	var args []any
	if limit > 0 {
		q += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list: %w", describe(err))
	}
	defer rows.Close()

	var out []storage.Visualization
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list: %w", describe(err))
	}
	return out, nil
}

func scan(row pgx.Row) (storage.Visualization, error) {
	var (
		v       storage.Visualization
		payload string
	)
	if err := row.Scan(&v.ID, &v.Fingerprint, &v.Prompt, &v.VizType, &payload, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return storage.Visualization{}, err
	}
	v.Payload = []byte(payload)
	v.CreatedAt = v.CreatedAt.UTC()
	v.UpdatedAt = v.UpdatedAt.UTC()
	return v, nil
}

// describe adds the server's detail and SQLSTATE to Postgres errors while
// keeping the original in the chain.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%w (%s: %s)", err, pgErr.SQLState(), pgErr.Detail)
	}
	return err
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "public.visualizations" to
// "public"."visualizations". If no dot is present, returns a single quoted ident.
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}

// mapIdent maps a list of column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}

// Exec implements storage.Execer for Postgres.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if _, err := r.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("postgres: exec: %w", describe(err))
	}
	return nil
}

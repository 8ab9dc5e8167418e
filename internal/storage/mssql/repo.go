// Package mssql implements a Microsoft SQL Server storage.Repository with
// go-mssqldb. Saves are a single MERGE keyed on id.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"github.com/mTatsuro/llm-data-visualizer/internal/storage"
)

// Config holds MSSQL repository configuration.
type Config struct {
	DSN   string
	Table string // possibly schema-qualified, e.g. "dbo.visualizations"
}

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository validates the DSN, connects and pings, and returns a Close
// function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	// Fail fast on obvious DSN mistakes before dialing.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	close := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, close, nil
}

// CreateTableSQL returns idempotent DDL for the visualization table.
func CreateTableSQL(table string) string {
	return fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
CREATE TABLE %s (
	[id]          NVARCHAR(64)  NOT NULL PRIMARY KEY,
	[fingerprint] NVARCHAR(64)  NOT NULL,
	[prompt]      NVARCHAR(MAX) NOT NULL,
	[viz_type]    NVARCHAR(32)  NOT NULL,
	[payload]     NVARCHAR(MAX) NOT NULL,
	[created_at]  DATETIME2     NOT NULL,
	[updated_at]  DATETIME2     NOT NULL
)`, strings.ReplaceAll(msFQN(table), "'", "''"), msFQN(table))
}

var (
	columns    = []string{"id", "fingerprint", "prompt", "viz_type", "payload", "created_at", "updated_at"}
	updateCols = []string{"fingerprint", "prompt", "viz_type", "payload", "updated_at"}
)

// mergeSQL builds the upsert for table. Parameters are @p1..@p7 in columns
// order.
func mergeSQL(table string) string {
	src := make([]string, len(columns))
	vals := make([]string, len(columns))
	for i, c := range columns {
		src[i] = fmt.Sprintf("@p%d AS %s", i+1, msIdent(c))
		vals[i] = "S." + msIdent(c)
	}
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = fmt.Sprintf("T.%s = S.%s", msIdent(c), msIdent(c))
	}
	return fmt.Sprintf(
		"MERGE INTO %s WITH (HOLDLOCK) AS T USING (SELECT %s) AS S ON T.[id] = S.[id] "+
			"WHEN MATCHED THEN UPDATE SET %s "+
			"WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);",
		msFQN(table),
		strings.Join(src, ", "),
		strings.Join(sets, ", "),
		strings.Join(mapIdent(columns), ","),
		strings.Join(vals, ","),
	)
}

// Save implements storage.Repository.
func (r *Repository) Save(ctx context.Context, v storage.Visualization) error {
	if v.ID == "" {
		return fmt.Errorf("mssql: save: empty id")
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
	_, err := r.db.ExecContext(ctx, mergeSQL(r.cfg.Table),
		v.ID, v.Fingerprint, v.Prompt, v.VizType, payload, created, now)
	if err != nil {
		return fmt.Errorf("mssql: save %s: %w", v.ID, describe(err))
	}
	return nil
}

func selectSQL(table string, top bool) string {
	q := "SELECT "
	if top {
		q += "TOP (@p1) "
	}
	return q + strings.Join(mapIdent(columns), ",") + " FROM " + msFQN(table)
}

// Get implements storage.Repository.
func (r *Repository) Get(ctx context.Context, id string) (storage.Visualization, error) {
	q := selectSQL(r.cfg.Table, false) + " WHERE [id] = @p1"
	v, err := scan(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Visualization{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Visualization{}, fmt.Errorf("mssql: get %s: %w", id, describe(err))
	}
	return v, nil
}

// List implements storage.Repository.
func (r *Repository) List(ctx context.Context, limit int) ([]storage.Visualization, error) {
	q := selectSQL(r.cfg.Table, limit > 0) + " ORDER BY [updated_at] DESC, [id]"
	var args []any
	if limit > 0 {
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("mssql: list: %w", describe(err))
	}
	defer rows.Close()

	var out []storage.Visualization
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("mssql: list: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mssql: list: %w", describe(err))
	}
	return out, nil
}

type scanner interface{ Scan(dest ...any) error }

func scan(row scanner) (storage.Visualization, error) {
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

// describe adds the server error number to SQL Server errors.
func describe(err error) error {
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return fmt.Errorf("%w (msg %d, state %d)", err, msErr.Number, msErr.State)
	}
	return err
}

// Exec executes a SQL statement against the pool.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("mssql: exec: %w", describe(err))
	}
	return nil
}

// msIdent safely quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msFQN quotes a possibly schema-qualified name like "dbo.visualizations" to
// "[dbo].[visualizations]". If no dot is present, returns a single quoted ident.
func msFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = msIdent(p)
	}
	return strings.Join(parts, ".")
}

// mapIdent maps a list of column names to their bracket-quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = msIdent(c)
	}
	return out
}

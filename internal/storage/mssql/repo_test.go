package mssql

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/mTatsuro/llm-data-visualizer/internal/storage"
)

func TestIdentifiers(t *testing.T) {
	tests := map[string]string{
		"visualizations":     "[visualizations]",
		"dbo.visualizations": "[dbo].[visualizations]",
		"we]ird":             "[we]]ird]",
	}
	for in, want := range tests {
		if got := msFQN(in); got != want {
			t.Errorf("msFQN(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSQLBuilders(t *testing.T) {
	ddl := CreateTableSQL("dbo.visualizations")
	if !strings.HasPrefix(ddl, "IF OBJECT_ID(N'[dbo].[visualizations]', N'U') IS NULL") ||
		!strings.Contains(ddl, "CREATE TABLE [dbo].[visualizations] (") {
		t.Fatalf("DDL = %s", ddl)
	}

	m := mergeSQL("visualizations")
	for _, frag := range []string{
		"MERGE INTO [visualizations] WITH (HOLDLOCK) AS T",
		"@p1 AS [id]",
		"@p7 AS [updated_at]",
		"ON T.[id] = S.[id]",
		"T.[payload] = S.[payload]",
		"INSERT ([id],[fingerprint],[prompt],[viz_type],[payload],[created_at],[updated_at])",
	} {
		if !strings.Contains(m, frag) {
			t.Fatalf("merge %q missing %q", m, frag)
		}
	}
	if strings.Contains(m, "T.[created_at] =") {
		t.Fatalf("merge must not overwrite created_at: %s", m)
	}
	if !strings.HasSuffix(m, ";") {
		t.Fatalf("MERGE must be terminated: %s", m)
	}

	if got := selectSQL("v", true); !strings.HasPrefix(got, "SELECT TOP (@p1) [id],") {
		t.Fatalf("select = %s", got)
	}
}

// TestRoundTrip runs against a real server when TEST_MSSQL_DSN is set.
func TestRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_MSSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MSSQL_DSN not set")
	}
	ctx := context.Background()
	table := "nlviz_test_visualizations"
	repo, err := storage.New(ctx, storage.Config{Kind: "mssql", DSN: dsn, Table: table, AutoCreateTable: true})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() {
		_ = repo.(storage.Execer).Exec(ctx, "DROP TABLE IF EXISTS "+msFQN(table))
		repo.Close()
	})

	v := storage.Visualization{ID: "v1", Fingerprint: "f", Prompt: "pie", VizType: "pie", Payload: json.RawMessage(`{"viz_id":"v1"}`)}
	if err := repo.Save(ctx, v); err != nil {
		t.Fatalf("Save: %v", err)
	}
	v.Prompt = "pie again"
	if err := repo.Save(ctx, v); err != nil {
		t.Fatalf("Save update: %v", err)
	}
	got, err := repo.Get(ctx, "v1")
	if err != nil || got.Prompt != "pie again" || string(got.Payload) != `{"viz_id":"v1"}` {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
	list, err := repo.List(ctx, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %v, %v", list, err)
	}
}

package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mTatsuro/llm-data-visualizer/internal/storage"
)

func newRepo(tb testing.TB) *Repository {
	tb.Helper()
	db, err := Open(":memory:")
	if err != nil {
		tb.Fatalf("open sqlite :memory:: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close() })

	r := New(db, "")
	if err := r.Exec(context.Background(), CreateTableSQL(r.cfg.Table)); err != nil {
		tb.Fatalf("create table: %v", err)
	}
	return r
}

// clock returns a now func that advances one second per call.
func clock() func() time.Time {
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestSaveGetUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newRepo(t)
	r.now = clock()

	v := storage.Visualization{
		ID:          "v1",
		Fingerprint: "abc",
		Prompt:      "pie of industries",
		VizType:     "pie",
		Payload:     json.RawMessage(`{"viz_type":"pie"}`),
	}
	if err := r.Save(ctx, v); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := r.Get(ctx, "v1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Prompt != v.Prompt || string(got.Payload) != string(v.Payload) || got.CreatedAt.IsZero() {
		t.Fatalf("Get = %+v", got)
	}

	v.VizType = "bar"
	v.Payload = json.RawMessage(`{"viz_type":"bar"}`)
	if err := r.Save(ctx, v); err != nil {
		t.Fatalf("Save update: %v", err)
	}
	upd, err := r.Get(ctx, "v1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if upd.VizType != "bar" || !upd.CreatedAt.Equal(got.CreatedAt) || !upd.UpdatedAt.After(got.UpdatedAt) {
		t.Fatalf("after update = %+v (before %+v)", upd, got)
	}
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	if _, err := r.Get(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newRepo(t)
	r.now = clock()

	for _, id := range []string{"a", "b", "c"} {
		if err := r.Save(ctx, storage.Visualization{ID: id, VizType: "table", Payload: json.RawMessage(`{}`)}); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}
	// Touch "a" so it becomes the newest.
	if err := r.Save(ctx, storage.Visualization{ID: "a", VizType: "table", Payload: json.RawMessage(`{}`)}); err != nil {
		t.Fatal(err)
	}

	all, err := r.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var ids []string
	for _, v := range all {
		ids = append(ids, v.ID)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "c" || ids[2] != "b" {
		t.Fatalf("ids = %v", ids)
	}

	two, err := r.List(ctx, 2)
	if err != nil || len(two) != 2 {
		t.Fatalf("List(2) = %d rows, %v", len(two), err)
	}
}

func TestSaveRejectsEmptyID(t *testing.T) {
	t.Parallel()
	if err := newRepo(t).Save(context.Background(), storage.Visualization{}); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestCreateTableSQLQuotesName(t *testing.T) {
	got := CreateTableSQL(`main.my"viz`)
	want := `CREATE TABLE IF NOT EXISTS "main"."my""viz" (`
	if len(got) < len(want) || got[:len(want)] != want {
		t.Fatalf("DDL = %q", got)
	}
}

func BenchmarkSqlite_Save(b *testing.B) {
	ctx := context.Background()
	r := newRepo(b)
	v := storage.Visualization{ID: "bench", VizType: "pie", Payload: json.RawMessage(`{"data":[]}`)}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := r.Save(ctx, v); err != nil {
			b.Fatal(err)
		}
	}
}

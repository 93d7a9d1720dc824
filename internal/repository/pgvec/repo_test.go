package pgvec

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/codevoyager1984/math-agent/internal/db/postgres"
	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/document"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name  string
		table string
		dims  int
		ok    bool
	}{
		{"default table", "", 4, true},
		{"custom table", "kp_vec_test", 4, true},
		{"injection", "kp; DROP TABLE x", 4, false},
		{"uppercase", "KP", 4, false},
		{"zero dims", "kp", 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(nil, tc.table, tc.dims)
			if (err == nil) != tc.ok {
				t.Errorf("New() error = %v, ok = %v", err, tc.ok)
			}
		})
	}
}

func TestMigrations(t *testing.T) {
	r, _ := New(nil, "", 1024)
	m := r.Migrations()
	if len(m) != 3 {
		t.Fatalf("got %d statements", len(m))
	}
	if !strings.Contains(m[1], "vector(1024)") {
		t.Errorf("table DDL missing dimension: %s", m[1])
	}
	if !strings.Contains(m[2], "hnsw (embedding vector_cosine_ops)") {
		t.Errorf("index DDL = %s", m[2])
	}
}

func TestUpsertSQL(t *testing.T) {
	r, _ := New(nil, "", 4)
	if s := r.upsertSQL(document.WriteInsert); !strings.Contains(s, "DO NOTHING") {
		t.Errorf("insert statement = %s", s)
	}
	if s := r.upsertSQL(document.WriteReplace); !strings.Contains(s, "DO UPDATE SET") {
		t.Errorf("replace statement = %s", s)
	}
}

func TestUpsert_DimMismatch(t *testing.T) {
	r, _ := New(nil, "", 4)
	docs := []document.Document{document.Reconstruct("a", "c", document.Metadata{})}
	_, err := r.Upsert(context.Background(), docs, [][]float32{{1, 2}}, document.WriteReplace)
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("expected ErrVectorDimMismatch, got %v", err)
	}
}

// TestRepo_Postgres runs against a live database when RAGSERVER_TEST_POSTGRES_DSN is set.
func TestRepo_Postgres(t *testing.T) {
	dsn := os.Getenv("RAGSERVER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RAGSERVER_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	conn, err := postgres.Open(ctx, postgres.Config{DSN: dsn})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = conn.Close() }()

	r, err := New(conn, "kp_vectors_test", 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.EnsureIndex(ctx); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	t.Cleanup(func() { _, _ = conn.Exec("DROP TABLE IF EXISTS kp_vectors_test") })
	if err := r.Clear(ctx); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	docs := []document.Document{
		document.Reconstruct("a", "alpha", document.Metadata{Title: "A", CreatedAt: now, UpdatedAt: now}),
		document.Reconstruct("b", "beta", document.Metadata{Title: "B", CreatedAt: now, UpdatedAt: now}),
	}
	if _, err := r.Upsert(ctx, docs, [][]float32{{1, 0, 0}, {0, 1, 0}}, document.WriteInsert); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	written, err := r.Upsert(ctx, docs[:1], [][]float32{{0, 0, 1}}, document.WriteInsert)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(written) != 0 {
		t.Errorf("conflicting insert reported written: %v", written)
	}

	cands, err := r.QueryByVector(ctx, []float32{1, 0.1, 0}, 2)
	if err != nil {
		t.Fatalf("QueryByVector: %v", err)
	}
	if len(cands) != 2 || cands[0].ID != "a" {
		t.Fatalf("unexpected order: %+v", cands)
	}
	if *cands[0].Distance > *cands[1].Distance {
		t.Error("distances not ascending")
	}

	if err := r.Delete(ctx, []string{"a", "missing"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := r.Get(ctx, "a"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
	if n, _ := r.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

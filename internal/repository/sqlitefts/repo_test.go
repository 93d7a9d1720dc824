package sqlitefts

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/codevoyager1984/math-agent/internal/db/sqlite"
	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/repository/payload"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	conn, err := sqlite.Open(sqlite.MemoryDSN)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	r := New(conn)
	if err := r.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	return r
}

func corpus() []document.Document {
	return []document.Document{
		document.Reconstruct("quad", "ax^2 + bx + c = 0", document.Metadata{
			Title:       "Quadratic equation",
			Description: "Roots of a second degree polynomial",
			Category:    "algebra",
			Examples: []document.Example{
				{Question: "Solve x^2 - 5x + 6 = 0", Solution: "x = 2 or x = 3"},
				{Question: "Find the discriminant of x^2 + 1", Solution: "-4"},
			},
			Tags: []string{"quadratic", "roots"},
		}),
		document.Reconstruct("lin", "ax + b = 0", document.Metadata{
			Title:    "Linear equation",
			Category: "algebra",
			Tags:     []string{"linear"},
		}),
		document.Reconstruct("tri", "a^2 + b^2 = c^2", document.Metadata{
			Title:    "Pythagorean theorem",
			Category: "geometry",
		}),
	}
}

func TestMatchExpr(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"quadratic equation", `"quadratic" OR "equation"`},
		{`a "quoted" AND b`, `"a" OR "quoted" OR "and" OR "b"`},
		{"+-*", ""},
	}
	for _, tc := range tests {
		if got := matchExpr(tc.in); got != tc.want {
			t.Errorf("matchExpr(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestQueryByText_Ranking(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	if _, err := r.Upsert(ctx, corpus(), document.WriteInsert); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	cands, err := r.QueryByText(ctx, "quadratic equation", 10)
	if err != nil {
		t.Fatalf("QueryByText: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2", len(cands))
	}
	if cands[0].ID != "quad" || cands[1].ID != "lin" {
		t.Errorf("order = %s, %s", cands[0].ID, cands[1].ID)
	}
	if *cands[0].LexicalScore <= *cands[1].LexicalScore {
		t.Errorf("scores not descending: %f, %f", *cands[0].LexicalScore, *cands[1].LexicalScore)
	}
	if *cands[1].LexicalScore <= 0 {
		t.Errorf("lexical score should be positive, got %f", *cands[1].LexicalScore)
	}

	hl := cands[0].Highlight
	if got := hl[payload.HighlightTitle]; len(got) != 1 || !strings.Contains(got[0], "<em>Quadratic</em>") {
		t.Errorf("title highlight = %v", got)
	}
	if cands[0].Document.Metadata().Category != "algebra" {
		t.Error("document not hydrated")
	}
}

func TestQueryByText_QuestionHighlightPerExample(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	if _, err := r.Upsert(ctx, corpus(), document.WriteInsert); err != nil {
		t.Fatal(err)
	}
	cands, err := r.QueryByText(ctx, "discriminant", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 {
		t.Fatalf("got %d candidates", len(cands))
	}
	got := cands[0].Highlight[payload.HighlightQuestions]
	if len(got) != 1 || got[0] != "Find the <em>discriminant</em> of x^2 + 1" {
		t.Errorf("question highlight = %v", got)
	}
}

func TestQueryByText_NoMatch(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	if _, err := r.Upsert(ctx, corpus(), document.WriteInsert); err != nil {
		t.Fatal(err)
	}
	for _, q := range []string{"calculus", "%%%"} {
		cands, err := r.QueryByText(ctx, q, 5)
		if err != nil {
			t.Fatalf("QueryByText(%q): %v", q, err)
		}
		if len(cands) != 0 {
			t.Errorf("QueryByText(%q) = %d candidates", q, len(cands))
		}
	}
}

func TestUpsert_Modes(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	orig := document.Reconstruct("kp", "v1", document.Metadata{Title: "Original"})
	next := document.Reconstruct("kp", "v2", document.Metadata{Title: "Replacement"})

	if _, err := r.Upsert(ctx, []document.Document{orig}, document.WriteInsert); err != nil {
		t.Fatal(err)
	}
	written, err := r.Upsert(ctx, []document.Document{next}, document.WriteInsert)
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 0 {
		t.Errorf("insert of existing id reported written: %v", written)
	}
	got, err := r.Get(ctx, "kp")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title() != "Original" {
		t.Errorf("insert overwrote existing id: %q", got.Title())
	}

	if written, err = r.Upsert(ctx, []document.Document{next}, document.WriteReplace); err != nil {
		t.Fatal(err)
	}
	if len(written) != 1 {
		t.Errorf("replace written = %v", written)
	}
	got, _ = r.Get(ctx, "kp")
	if got.Title() != "Replacement" {
		t.Errorf("replace kept old copy: %q", got.Title())
	}
	if n, _ := r.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestDeleteAndClear(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	if _, err := r.Upsert(ctx, corpus(), document.WriteInsert); err != nil {
		t.Fatal(err)
	}

	if err := r.Delete(ctx, []string{"quad", "missing"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := r.Get(ctx, "quad"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
	if n, _ := r.Count(ctx); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}

	if err := r.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n, _ := r.Count(ctx); n != 0 {
		t.Errorf("Count() after clear = %d", n)
	}
	if err := r.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

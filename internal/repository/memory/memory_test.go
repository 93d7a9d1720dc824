package memory

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/repository/payload"
)

func docs() []document.Document {
	return []document.Document{
		document.Reconstruct("quad", "ax^2 + bx + c = 0", document.Metadata{
			Title:    "Quadratic equation",
			Examples: []document.Example{{Question: "Solve x^2 = 4"}, {Question: "Factor the quadratic x^2 - 1"}},
			Tags:     []string{"quadratic"},
		}),
		document.Reconstruct("lin", "ax + b = 0", document.Metadata{Title: "Linear equation"}),
		document.Reconstruct("tri", "a^2 + b^2 = c^2", document.Metadata{Title: "Pythagorean theorem"}),
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{2, 0}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"zero", []float32{0, 0}, []float32{1, 0}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CosineDistance(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("CosineDistance() = %f, want %f", got, tc.want)
			}
		})
	}
}

func TestVectorStore(t *testing.T) {
	ctx := context.Background()
	s := NewVectorStore(2)
	d := docs()
	if _, err := s.Upsert(ctx, d, [][]float32{{1, 0}, {0.7, 0.7}, {0, 1}}, document.WriteInsert); err != nil {
		t.Fatal(err)
	}

	cands, err := s.QueryByVector(ctx, []float32{1, 0.1}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 2 || cands[0].ID != "quad" || cands[1].ID != "lin" {
		t.Fatalf("unexpected result: %+v", cands)
	}

	// insert keeps the existing vector, replace overwrites it
	written, err := s.Upsert(ctx, d[:1], [][]float32{{0, 1}}, document.WriteInsert)
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 0 {
		t.Errorf("insert of existing id reported written: %v", written)
	}
	cands, _ = s.QueryByVector(ctx, []float32{1, 0}, 1)
	if cands[0].ID != "quad" {
		t.Errorf("insert overwrote existing vector")
	}
	if written, err = s.Upsert(ctx, d[:1], [][]float32{{0, 1}}, document.WriteReplace); err != nil {
		t.Fatal(err)
	}
	if len(written) != 1 || written[0] != d[0].ID() {
		t.Errorf("replace written = %v", written)
	}
	cands, _ = s.QueryByVector(ctx, []float32{1, 0}, 1)
	if cands[0].ID == "quad" {
		t.Errorf("replace kept old vector")
	}

	if _, err := s.QueryByVector(ctx, []float32{1}, 1); !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("expected ErrVectorDimMismatch, got %v", err)
	}

	_ = s.Delete(ctx, []string{"quad"})
	if _, err := s.Get(ctx, "quad"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
	_ = s.Clear(ctx)
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("Count() = %d after clear", n)
	}
}

func TestTextIndex_Ranking(t *testing.T) {
	ctx := context.Background()
	x := NewTextIndex()
	if _, err := x.Upsert(ctx, docs(), document.WriteInsert); err != nil {
		t.Fatal(err)
	}

	cands, err := x.QueryByText(ctx, "quadratic equation", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2", len(cands))
	}
	if cands[0].ID != "quad" || cands[1].ID != "lin" {
		t.Errorf("order = %s, %s", cands[0].ID, cands[1].ID)
	}
	if *cands[0].LexicalScore <= *cands[1].LexicalScore {
		t.Error("scores not descending")
	}

	hl := cands[0].Highlight
	if got := hl[payload.HighlightTitle]; len(got) != 1 || got[0] != "<em>Quadratic</em> <em>equation</em>" {
		t.Errorf("title highlight = %v", got)
	}
	if got := hl[payload.HighlightQuestions]; len(got) != 1 || got[0] != "Factor the <em>quadratic</em> x^2 - 1" {
		t.Errorf("question highlight = %v", got)
	}
}

func TestTextIndex_NoMatch(t *testing.T) {
	ctx := context.Background()
	x := NewTextIndex()
	_, _ = x.Upsert(ctx, docs(), document.WriteInsert)
	for _, q := range []string{"calculus", "", "+++"} {
		if cands, _ := x.QueryByText(ctx, q, 5); len(cands) != 0 {
			t.Errorf("QueryByText(%q) returned %d", q, len(cands))
		}
	}
}

func TestTextIndex_Limit(t *testing.T) {
	ctx := context.Background()
	x := NewTextIndex()
	_, _ = x.Upsert(ctx, docs(), document.WriteInsert)
	cands, _ := x.QueryByText(ctx, "equation theorem", 1)
	if len(cands) != 1 {
		t.Errorf("got %d candidates, want 1", len(cands))
	}
}

func TestMark(t *testing.T) {
	set := map[string]struct{}{"x": {}, "roots": {}}
	got := mark("Roots of x^2, not xy", set)
	want := "<em>Roots</em> of <em>x</em>^2, not xy"
	if got != want {
		t.Errorf("mark() = %q, want %q", got, want)
	}
}

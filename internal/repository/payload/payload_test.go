package payload

import (
	"slices"
	"testing"
	"time"

	"github.com/codevoyager1984/math-agent/internal/domain/document"
)

func sampleDoc(t *testing.T) document.Document {
	t.Helper()
	doc, err := document.New("kp-1", "ax^2+bx+c=0", document.Metadata{
		Title:       "Quadratic equation",
		Description: "Roots via the discriminant",
		Category:    "algebra",
		Examples: []document.Example{
			{Question: "Solve x^2-4=0", Solution: "x=2 or x=-2"},
			{Question: "Solve x^2+2x+1=0"},
		},
		Tags:      []string{"quadratic", "roots"},
		CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("document.New: %v", err)
	}
	return doc
}

func TestMarshalRoundTrip(t *testing.T) {
	doc := sampleDoc(t)

	data, err := Marshal(&doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal("ignored", data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.ID() != "kp-1" || got.Content() != doc.Content() {
		t.Errorf("got %s/%q", got.ID(), got.Content())
	}
	md := got.Metadata()
	if md.Title != "Quadratic equation" || len(md.Examples) != 2 || md.Examples[0].Difficulty != document.DifficultyMedium {
		t.Errorf("metadata not preserved: %+v", md)
	}
	if !md.CreatedAt.Equal(doc.Metadata().CreatedAt) {
		t.Errorf("CreatedAt = %v", md.CreatedAt)
	}
}

func TestUnmarshal_FallbackIDAndGarbage(t *testing.T) {
	got, err := Unmarshal("kp-9", []byte(`{"content":"c"}`))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.ID() != "kp-9" {
		t.Errorf("ID = %q, want fallback", got.ID())
	}

	if _, err := Unmarshal("kp-9", []byte("not json")); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestFlatten(t *testing.T) {
	doc := sampleDoc(t)
	f := Flatten(&doc)

	if f.Questions != "Solve x^2-4=0\nSolve x^2+2x+1=0" {
		t.Errorf("Questions = %q", f.Questions)
	}
	if f.Solutions != "x=2 or x=-2" {
		t.Errorf("Solutions = %q", f.Solutions)
	}
	if f.Tags != "quadratic, roots" {
		t.Errorf("Tags = %q", f.Tags)
	}
}

func TestHighlights(t *testing.T) {
	h := Highlights(
		"<em>Quadratic</em> equation",
		"no match here",
		"Solve <em>quadratic</em> one\nplain question",
		"",
	)
	if len(h) != 2 {
		t.Fatalf("expected 2 highlighted fields, got %v", h)
	}
	if !slices.Equal(h[HighlightQuestions], []string{"Solve <em>quadratic</em> one"}) {
		t.Errorf("questions = %v", h[HighlightQuestions])
	}
	if Highlights("a", "b", "c", "d") != nil {
		t.Error("expected nil without markers")
	}
}

func TestTerms(t *testing.T) {
	got := Terms("Quadratic  equation: quadratic roots!")
	if !slices.Equal(got, []string{"quadratic", "equation", "roots"}) {
		t.Errorf("Terms() = %v", got)
	}
	if len(Terms("?!")) != 0 {
		t.Error("expected no terms")
	}
}

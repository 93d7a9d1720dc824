package result

import (
	"testing"
	"time"

	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/domain/search/score"
)

func TestFromCandidate(t *testing.T) {
	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	doc := document.Reconstruct("kp-1", "x^2 - 5x + 6 = 0", document.Metadata{
		Title:     "Quadratic equations",
		Category:  "algebra",
		Examples:  []document.Example{{Question: "Solve x^2=4", Difficulty: document.DifficultyEasy}},
		Tags:      []string{"quadratic"},
		CreatedAt: created,
	})
	c := Candidate{
		ID:        "kp-1",
		Document:  doc,
		Highlight: map[string][]string{"title": {"<em>Quadratic</em> equations"}},
		Scores:    score.Bundle{FinalScore: score.Ptr(0.8), SimilarityScore: 80},
	}

	r := FromCandidate(&c)

	if r.ID != "kp-1" || r.Title != "Quadratic equations" || r.Category != "algebra" {
		t.Errorf("unexpected result: %+v", r)
	}
	if r.Content != "x^2 - 5x + 6 = 0" {
		t.Errorf("Content = %q", r.Content)
	}
	if len(r.Examples) != 1 || r.Examples[0].Question != "Solve x^2=4" {
		t.Errorf("Examples = %v", r.Examples)
	}
	if !r.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v", r.CreatedAt)
	}
	if r.Scores.SimilarityScore != 80 {
		t.Errorf("SimilarityScore = %f", r.Scores.SimilarityScore)
	}
	if len(r.Highlight["title"]) != 1 {
		t.Errorf("Highlight = %v", r.Highlight)
	}
	if r.Fusion != nil {
		t.Error("Fusion should be nil unless set by the fusion stage")
	}
}

func TestFromCandidate_IDFromDocument(t *testing.T) {
	c := Candidate{Document: document.Reconstruct("kp-2", "c", document.Metadata{})}
	if r := FromCandidate(&c); r.ID != "kp-2" {
		t.Errorf("ID = %q, want kp-2", r.ID)
	}
}

package rerank

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/search/score"
)

func TestParseVerdicts(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		positions []int
		scores    []float64
	}{
		{
			name:      "bare array",
			reply:     `[{"id": 2, "score": 85}, {"id": 1, "score": 40}]`,
			positions: []int{2, 1},
			scores:    []float64{85, 40},
		},
		{
			name:      "fenced with prose",
			reply:     "Here you go:\n```json\n[{\"id\": 3, \"score\": 90}]\n```\nHope it helps.",
			positions: []int{3},
			scores:    []float64{90},
		},
		{
			name:      "prose around array",
			reply:     `The ranking is [{"id":1,"score":70}] as requested.`,
			positions: []int{1},
			scores:    []float64{70},
		},
		{
			name:      "string ids and scores",
			reply:     `[{"id": "1", "score": "55.5"}]`,
			positions: []int{1},
			scores:    []float64{55.5},
		},
		{
			name:      "floor, range and duplicates filtered",
			reply:     `[{"id": 1, "score": 19.9}, {"id": 2, "score": 20}, {"id": 9, "score": 99}, {"id": 2, "score": 80}]`,
			positions: []int{2},
			scores:    []float64{20},
		},
		{
			name:      "score clamped",
			reply:     `[{"id": 1, "score": 130}]`,
			positions: []int{1},
			scores:    []float64{100},
		},
		{
			name:      "empty array",
			reply:     "```json\n[]\n```",
			positions: []int{},
			scores:    []float64{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseVerdicts(tc.reply, 3)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			positions := make([]int, len(got))
			scores := make([]float64, len(got))
			for i, v := range got {
				positions[i] = v.position
				scores[i] = v.score
			}
			if !slices.Equal(positions, tc.positions) || !slices.Equal(scores, tc.scores) {
				t.Errorf("got %v %v, want %v %v", positions, scores, tc.positions, tc.scores)
			}
		})
	}
}

func TestParseVerdicts_Failures(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", "I think document 2 is the best."},
		{"object instead of array", `{"id": 1, "score": 50}`},
		{"broken array", `[{"id": 1, "score": }]`},
		{"no known position", `[{"id": 7, "score": 80}, {"id": 0, "score": 60}]`},
		{"fractional position", `[{"id": 1.5, "score": 80}]`},
		{"empty reply", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseVerdicts(tc.reply, 3)
			if !errors.Is(err, domain.ErrParseFailure) {
				t.Errorf("err = %v, want ErrParseFailure", err)
			}
		})
	}
}

func TestLLMJudge_Rerank(t *testing.T) {
	var prompt string
	chat := &mockChat{completeFn: func(_ context.Context, _, user string) (string, error) {
		prompt = user
		return `[{"id": 3, "score": 92}, {"id": 1, "score": 35}, {"id": 2, "score": 10}]`, nil
	}}
	judge := NewLLMJudge(chat, 0)

	got, err := judge.Rerank(context.Background(), "quadratic equation", candidates("a", "b", "c"), 5)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"c", "a"}; !slices.Equal(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
	if got[0].Scores.RerankMethod != score.LLM || *got[0].Scores.RerankScore != 92 {
		t.Errorf("scores = %+v", got[0].Scores)
	}
	for _, want := range []string{"User query: quadratic equation", "Document 1: Title: title a", "Document 3: Title: title c"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestLLMJudge_TopK(t *testing.T) {
	judge := NewLLMJudge(reply(`[{"id":1,"score":50},{"id":2,"score":60},{"id":3,"score":70}]`), 0)
	got, err := judge.Rerank(context.Background(), "q", candidates("a", "b", "c"), 2)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"c", "b"}; !slices.Equal(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
}

func TestLLMJudge_CallFailure(t *testing.T) {
	chat := &mockChat{completeFn: func(context.Context, string, string) (string, error) {
		return "", domain.ErrRerankFailure
	}}
	_, err := NewLLMJudge(chat, 0).Rerank(context.Background(), "q", candidates("a"), 1)
	if !errors.Is(err, domain.ErrRerankFailure) {
		t.Errorf("err = %v, want ErrRerankFailure", err)
	}
}

func TestLLMJudge_RateLimitDeadline(t *testing.T) {
	judge := NewLLMJudge(reply(`[]`), 0.001)
	if _, err := judge.Rerank(context.Background(), "q", candidates("a"), 1); err != nil {
		t.Fatalf("first call: %v", err)
	}

	// the next token is ~1000s away, past any reasonable deadline
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := judge.Rerank(ctx, "q", candidates("a"), 1)
	if !errors.Is(err, domain.ErrRerankFailure) {
		t.Errorf("err = %v, want ErrRerankFailure", err)
	}
}

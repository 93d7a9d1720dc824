package rerank

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/search/score"
)

// scoreByTitle gives each text the score keyed by the candidate id found in its title.
func scoreByTitle(scores map[string]float64) func(context.Context, string, []string) ([]float64, error) {
	return func(_ context.Context, _ string, texts []string) ([]float64, error) {
		out := make([]float64, len(texts))
		for i, text := range texts {
			for id, s := range scores {
				if strings.Contains(text, "title "+id+" ") || strings.HasSuffix(text, "title "+id) {
					out[i] = s
				}
			}
		}
		return out, nil
	}
}

func TestCrossEncoder_Rerank(t *testing.T) {
	scorer := &mockScorer{scoreFn: scoreByTitle(map[string]float64{"a": -2, "b": 7.5, "c": 1, "d": 7.5})}
	ce := NewCrossEncoder(scorer, 0, time.Minute, zap.NewNop())

	in := candidates("a", "b", "c", "d")
	got, err := ce.Rerank(context.Background(), "quadratic", in, 3)
	if err != nil {
		t.Fatal(err)
	}

	if want := []string{"b", "d", "c"}; !slices.Equal(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
	for _, c := range got {
		if c.Scores.RerankScore == nil || c.Scores.RerankMethod != score.CrossEncoder {
			t.Errorf("%s: scores = %+v", c.ID, c.Scores)
		}
	}
	if in[0].Scores.RerankScore != nil {
		t.Error("input candidates were mutated")
	}
	if ce.State() != ModelLoaded {
		t.Errorf("State() = %q", ce.State())
	}
}

func TestCrossEncoder_Batches(t *testing.T) {
	var sizes []int
	scorer := &mockScorer{scoreFn: func(_ context.Context, _ string, texts []string) ([]float64, error) {
		sizes = append(sizes, len(texts))
		return make([]float64, len(texts)), nil
	}}
	ce := NewCrossEncoder(scorer, 2, time.Minute, zap.NewNop())

	got, err := ce.Rerank(context.Background(), "q", candidates("a", "b", "c", "d", "e"), 10)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(sizes, []int{2, 2, 1}) {
		t.Errorf("batch sizes = %v", sizes)
	}
	// equal scores keep retrieval order
	if want := []string{"a", "b", "c", "d", "e"}; !slices.Equal(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
}

func TestCrossEncoder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		scorer *mockScorer
	}{
		{
			name: "model load fails",
			scorer: &mockScorer{
				pingFn:  func(context.Context) error { return errors.New("connection refused") },
				scoreFn: scoreByTitle(nil),
			},
		},
		{
			name: "score call fails",
			scorer: &mockScorer{scoreFn: func(context.Context, string, []string) ([]float64, error) {
				return nil, domain.ErrRerankFailure
			}},
		},
		{
			name: "short score list",
			scorer: &mockScorer{scoreFn: func(context.Context, string, []string) ([]float64, error) {
				return []float64{1}, nil
			}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ce := NewCrossEncoder(tc.scorer, 0, time.Minute, zap.NewNop())
			_, err := ce.Rerank(context.Background(), "q", candidates("a", "b"), 2)
			if !errors.Is(err, domain.ErrRerankFailure) {
				t.Errorf("err = %v, want ErrRerankFailure", err)
			}
		})
	}
}

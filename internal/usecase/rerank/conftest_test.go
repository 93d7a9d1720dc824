package rerank

import (
	"context"
	"sync/atomic"

	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
)

type mockScorer struct {
	scoreFn func(ctx context.Context, query string, texts []string) ([]float64, error)
	pingFn  func(ctx context.Context) error
	calls   atomic.Int32
}

func (m *mockScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	m.calls.Add(1)
	return m.scoreFn(ctx, query, texts)
}

func (m *mockScorer) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

type mockChat struct {
	completeFn func(ctx context.Context, system, user string) (string, error)
}

func (m *mockChat) Complete(ctx context.Context, system, user string) (string, error) {
	return m.completeFn(ctx, system, user)
}

func reply(s string) *mockChat {
	return &mockChat{completeFn: func(context.Context, string, string) (string, error) { return s, nil }}
}

func candidates(ids ...string) []result.Candidate {
	out := make([]result.Candidate, len(ids))
	for i, id := range ids {
		out[i] = result.Candidate{
			ID:       id,
			Document: document.Reconstruct(id, "content of "+id, document.Metadata{Title: "title " + id}),
		}
	}
	return out
}

func ids(cands []result.Candidate) []string {
	out := make([]string, len(cands))
	for i := range cands {
		out[i] = cands[i].ID
	}
	return out
}

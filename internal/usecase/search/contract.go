package search

import (
	"context"

	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
	"github.com/codevoyager1984/math-agent/internal/domain/search/score"
	"github.com/codevoyager1984/math-agent/internal/usecase/rerank"
)

// VectorStore is the read side of the vector store adapter.
type VectorStore interface {
	QueryByVector(ctx context.Context, vector []float32, k int) ([]result.Candidate, error)
	Get(ctx context.Context, id string) (document.Document, error)
	Count(ctx context.Context) (int, error)
}

// TextIndex is the read side of the text index adapter.
type TextIndex interface {
	QueryByText(ctx context.Context, text string, k int) ([]result.Candidate, error)
	Get(ctx context.Context, id string) (document.Document, error)
	Count(ctx context.Context) (int, error)
}

// Reranker reorders fused candidates. It never fails; the outcome says whether it applied.
type Reranker interface {
	Rerank(ctx context.Context, query string, cands []result.Candidate, topK int, method score.Method) (
		[]result.Candidate, rerank.Outcome)
}

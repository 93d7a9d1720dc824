package mathagent

import (
	"context"

	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/domain/search/request"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
	healthuc "github.com/codevoyager1984/math-agent/internal/usecase/health"
	searchuc "github.com/codevoyager1984/math-agent/internal/usecase/search"
)

// --- engine mock ---

type mockEngine struct {
	writeFn  func(ctx context.Context, docs []document.Document) error
	deleteFn func(ctx context.Context, ids []string) error
	queryFn  func(ctx context.Context, req *request.Request) (result.Response, error)
	getFn    func(ctx context.Context, id string) (result.RankedResult, error)

	report healthuc.Report
	stats  searchuc.Stats
	closed bool
}

func (m *mockEngine) Ingest(ctx context.Context, docs []document.Document) error {
	return m.writeFn(ctx, docs)
}

func (m *mockEngine) Upsert(ctx context.Context, docs []document.Document) error {
	return m.writeFn(ctx, docs)
}

func (m *mockEngine) Delete(ctx context.Context, ids []string) error {
	return m.deleteFn(ctx, ids)
}

func (m *mockEngine) ClearAll(context.Context) error { return nil }

func (m *mockEngine) NewRequest(p request.Params) (request.Request, error) {
	return request.New(p)
}

func (m *mockEngine) Query(ctx context.Context, req *request.Request) (result.Response, error) {
	return m.queryFn(ctx, req)
}

func (m *mockEngine) GetByID(ctx context.Context, id string) (result.RankedResult, error) {
	return m.getFn(ctx, id)
}

func (m *mockEngine) Health(context.Context) healthuc.Report { return m.report }

func (m *mockEngine) Stats(context.Context) searchuc.Stats { return m.stats }

func (m *mockEngine) Close() { m.closed = true }

// --- embedder mocks ---

type mockEmbedder struct {
	fn func(ctx context.Context, text string) (EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return m.fn(ctx, text)
}

type mockBatchEmbedder struct {
	mockEmbedder
	batchCalls int
}

func (m *mockBatchEmbedder) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	m.batchCalls++
	out := BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, t := range texts {
		r, err := m.fn(ctx, t)
		if err != nil {
			return BatchEmbeddingResult{}, err
		}
		out.Embeddings[i] = r.Embedding
		out.TotalTokens += r.TotalTokens
	}
	return out, nil
}

// --- helpers ---

func testClient(e engine) *Client {
	return &Client{engine: e}
}

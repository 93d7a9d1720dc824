package mathagent

import "context"

// Embedder turns knowledge point text and queries into vectors. The vector length must match
// the dimensions passed to WithEmbedder or WithEmbedding.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder is optionally implemented by an Embedder to vectorize many texts in one call.
// Ingest uses it when present; otherwise texts are embedded one at a time.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// EmbedderFunc adapts a function returning a bare vector to Embedder. Token usage is reported as zero.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

// Embed calls f.
func (f EmbedderFunc) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	v, err := f(ctx, text)
	if err != nil {
		return EmbeddingResult{}, err
	}
	return EmbeddingResult{Embedding: v}, nil
}

// EmbeddingResult is one vector and the provider tokens spent on it.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult holds vectors in input order and the tokens spent on the whole batch.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

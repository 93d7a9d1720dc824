package domain

import (
	"context"
	"fmt"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes many texts in one provider call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// HealthChecker is implemented by embedders that can probe their provider.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult is one vector and the provider tokens spent on it.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult holds one vector per input text, in input order.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// EmbedBatch uses the batch path of e when it has one and per-text calls otherwise.
// The result is checked to hold exactly one vector per text.
func EmbedBatch(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return BatchEmbeddingResult{}, nil
	}

	var (
		res BatchEmbeddingResult
		err error
	)
	if be, ok := e.(BatchEmbedder); ok {
		res, err = be.BatchEmbed(ctx, texts)
	} else {
		res, err = BatchFallback(ctx, e, texts)
	}
	if err != nil {
		return BatchEmbeddingResult{}, err
	}
	if len(res.Embeddings) != len(texts) {
		return BatchEmbeddingResult{}, fmt.Errorf("%w: got %d vectors for %d texts",
			ErrEmbeddingFailure, len(res.Embeddings), len(texts))
	}
	return res, nil
}

// EmbedMany is EmbedBatch without the usage figures.
func EmbedMany(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	res, err := EmbedBatch(ctx, e, texts)
	if err != nil {
		return nil, err
	}
	return res.Embeddings, nil
}

// BatchFallback calls Embed once per text and sums the usage.
func BatchFallback(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	out := BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, text := range texts {
		res, err := e.Embed(ctx, text)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("fallback embed [%d]: %w", i, err)
		}
		out.Embeddings[i] = res.Embedding
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}
	return out, nil
}

// InstructionEmbedder prefixes every text with a fixed instruction. Instruction-tuned models
// (bge, e5, Qwen) embed queries and knowledge points with different prefixes, so the engine
// holds one InstructionEmbedder per side.
type InstructionEmbedder struct {
	inner       Embedder
	instruction string
}

// NewInstructionEmbedder wraps inner.
func NewInstructionEmbedder(inner Embedder, instruction string) *InstructionEmbedder {
	return &InstructionEmbedder{inner: inner, instruction: instruction}
}

// Instruction returns the prefix.
func (e *InstructionEmbedder) Instruction() string { return e.instruction }

// Embed embeds the prefixed text.
func (e *InstructionEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	result, err := e.inner.Embed(ctx, e.instruction+text)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("instruction embed: %w", err)
	}
	return result, nil
}

// BatchEmbed embeds every prefixed text through EmbedBatch.
func (e *InstructionEmbedder) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = e.instruction + t
	}
	res, err := EmbedBatch(ctx, e.inner, prefixed)
	if err != nil {
		return BatchEmbeddingResult{}, fmt.Errorf("instruction batch embed: %w", err)
	}
	return res, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (e *InstructionEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

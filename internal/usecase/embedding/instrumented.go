// Package embedding decorates the embedding provider with batching, deadlines and logging.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/codevoyager1984/math-agent/internal/domain"
)

// Defaults.
const (
	DefaultBatchSize = 32
	DefaultTimeout   = 30 * time.Second
)

// Options tune the instrumented embedder.
type Options struct {
	// BatchSize caps the number of texts per provider call.
	BatchSize int
	// Timeout bounds each provider call.
	Timeout time.Duration
}

// InstrumentedEmbedder wraps Embedder with per-call deadlines, chunking and logging.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
// Every failure leaving this layer wraps domain.ErrEmbeddingFailure.
type InstrumentedEmbedder struct {
	inner     domain.Embedder
	provider  string
	model     string
	batchSize int
	timeout   time.Duration
	logger    *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with deadlines and observability.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	opts Options, logger *zap.Logger,
) *InstrumentedEmbedder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &InstrumentedEmbedder{
		inner:     inner,
		provider:  provider,
		model:     model,
		batchSize: opts.BatchSize,
		timeout:   opts.Timeout,
		logger:    logger,
	}
}

// Embed delegates to the inner embedder under the call deadline.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, text string,
) (domain.EmbeddingResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()

	result, err := p.inner.Embed(callCtx, text)

	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, wrapFailure("embed", err)
	}
	if len(result.Embedding) == 0 {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: empty vector: %w", domain.ErrEmbeddingFailure)
	}

	domain.UsageFromContext(ctx).AddTokens(result.TotalTokens)

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// BatchEmbed splits texts into chunks of the batch size and embeds each chunk in one call.
func (p *InstrumentedEmbedder) BatchEmbed(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()

	result, err := p.embedChunked(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	domain.UsageFromContext(ctx).AddTokens(result.TotalTokens)

	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

func (p *InstrumentedEmbedder) embedChunked(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	allEmbeddings := make([][]float32, 0, len(texts))
	var totalPrompt, totalTokens int

	for offset := 0; offset < len(texts); offset += p.batchSize {
		end := min(offset+p.batchSize, len(texts))
		chunk := texts[offset:end]

		chunkResult, err := p.embedInner(ctx, chunk)
		if err != nil {
			p.logger.Error("Batch embedding request failed",
				zap.String("provider", p.provider),
				zap.String("model", p.model),
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, wrapFailure("batch embed", err)
		}
		if len(chunkResult.Embeddings) != len(chunk) {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: got %d vectors for %d texts: %w",
				len(chunkResult.Embeddings), len(chunk), domain.ErrEmbeddingFailure)
		}

		allEmbeddings = append(allEmbeddings, chunkResult.Embeddings...)
		totalPrompt += chunkResult.PromptTokens
		totalTokens += chunkResult.TotalTokens
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   allEmbeddings,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}

func (p *InstrumentedEmbedder) embedInner(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if be, ok := p.inner.(domain.BatchEmbedder); ok {
		res, err := be.BatchEmbed(callCtx, texts)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("inner batch embed: %w", err)
		}
		return res, nil
	}
	res, err := domain.BatchFallback(callCtx, p.inner, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("inner batch fallback: %w", err)
	}
	return res, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	hc, ok := p.inner.(domain.HealthChecker)
	if !ok {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return hc.HealthCheck(callCtx)
}

func wrapFailure(op string, err error) error {
	if errors.Is(err, domain.ErrEmbeddingFailure) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrEmbeddingFailure, err)
}

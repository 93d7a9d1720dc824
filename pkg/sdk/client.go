package mathagent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/codevoyager1984/math-agent/internal/app"
	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/domain/search/request"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
	healthuc "github.com/codevoyager1984/math-agent/internal/usecase/health"
	searchuc "github.com/codevoyager1984/math-agent/internal/usecase/search"
)

// engine is the subset of the assembled engine the client drives. Swapped for a mock in tests.
type engine interface {
	Ingest(ctx context.Context, docs []document.Document) error
	Upsert(ctx context.Context, docs []document.Document) error
	Delete(ctx context.Context, ids []string) error
	ClearAll(ctx context.Context) error
	NewRequest(p request.Params) (request.Request, error)
	Query(ctx context.Context, req *request.Request) (result.Response, error)
	GetByID(ctx context.Context, id string) (result.RankedResult, error)
	Health(ctx context.Context) healthuc.Report
	Stats(ctx context.Context) searchuc.Stats
	Close()
}

// Client is the SDK entry point.
type Client struct {
	engine engine
	obs    *observer
}

// New creates a Client, connects to the configured stores and ensures their indexes exist.
// The provided context bounds the initial connection and readiness checks.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cc := &clientConfig{}
	for _, o := range opts {
		o.apply(cc)
	}

	cfg := cc.cfg
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("mathagent: %w", err)
	}

	logger := cc.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	obs, err := newObserver(logger, cc.metricsReg)
	if err != nil {
		return nil, err
	}

	var appOpts []app.Option
	if cc.embedder != nil {
		appOpts = append(appOpts, app.WithEmbedder(adaptEmbedder(cc.embedder)))
	}
	a, err := app.New(ctx, &cfg, logger, appOpts...)
	if err != nil {
		return nil, fmt.Errorf("mathagent: %w", err)
	}
	return &Client{engine: a, obs: obs}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.engine != nil {
		c.engine.Close()
	}
}

// embedderAdapter wraps public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// batchEmbedderAdapter additionally exposes the provider's batch path.
type batchEmbedderAdapter struct {
	embedderAdapter
	batch BatchEmbedder
}

func (a *batchEmbedderAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	r, err := a.batch.BatchEmbed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   r.Embeddings,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

func adaptEmbedder(e Embedder) domain.Embedder {
	base := embedderAdapter{inner: e}
	if be, ok := e.(BatchEmbedder); ok {
		return &batchEmbedderAdapter{embedderAdapter: base, batch: be}
	}
	return &base
}

var errNoIDs = errors.New("at least one id is required")

// Package app assembles the retrieval engine from configuration: stores, embedders, rerankers
// and the ingest, search and health services.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/codevoyager1984/math-agent/internal/config"
	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/domain/search/request"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
	"github.com/codevoyager1984/math-agent/internal/domain/search/score"
	"github.com/codevoyager1984/math-agent/internal/metrics"
	healthuc "github.com/codevoyager1984/math-agent/internal/usecase/health"
	"github.com/codevoyager1984/math-agent/internal/usecase/ingest"
	"github.com/codevoyager1984/math-agent/internal/usecase/rerank"
	searchuc "github.com/codevoyager1984/math-agent/internal/usecase/search"
)

// VectorBackend is everything the engine needs from a vector store adapter.
type VectorBackend interface {
	ingest.VectorStore
	searchuc.VectorStore
	healthuc.Pinger
	EnsureIndex(ctx context.Context) error
}

// TextBackend is everything the engine needs from a text index adapter.
type TextBackend interface {
	ingest.TextIndex
	searchuc.TextIndex
	healthuc.Pinger
	EnsureIndex(ctx context.Context) error
}

// Components are the pluggable parts of the engine. Nil rerank strategies are disabled.
type Components struct {
	Vector        VectorBackend
	Text          TextBackend
	DocEmbedder   domain.Embedder
	QueryEmbedder domain.Embedder
	CrossEncoder  *rerank.CrossEncoder
	LLMJudge      *rerank.LLMJudge
	RerankOptions rerank.Options
	StoreTimeout  time.Duration
	QueryDefaults request.Defaults
	closers       []func()
}

// App is the retrieval engine: the single entry point used by the HTTP server and the CLI.
type App struct {
	ingest   *ingest.Service
	search   *searchuc.Service
	health   *healthuc.Service
	rerank   *rerank.Service
	defaults request.Defaults
	logger   *zap.Logger
	closers  []func()
}

// Option adjusts how New builds components.
type Option func(*buildOptions)

type buildOptions struct {
	embedder domain.Embedder
}

// WithEmbedder replaces the OpenAI-compatible provider at the bottom of the embedding chain.
// Caching, deadlines and instruction prefixes still apply on top of it.
func WithEmbedder(e domain.Embedder) Option {
	return func(o *buildOptions) { o.embedder = e }
}

// New builds the engine described by cfg, connecting to every configured backend.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()

	var bo buildOptions
	for _, o := range opts {
		o(&bo)
	}

	c, err := buildComponents(ctx, cfg, &bo, logger)
	if err != nil {
		return nil, err
	}
	a := Assemble(c, logger)

	if err := a.ensureIndexes(ctx, c); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Assemble wires already-built components. It does not touch the network.
func Assemble(c *Components, logger *zap.Logger) *App {
	rr := rerank.New(c.CrossEncoder, c.LLMJudge, c.RerankOptions, logger)

	ingestSvc := ingest.New(c.Vector, c.Text, c.DocEmbedder, logger)
	searchSvc := searchuc.New(c.Vector, c.Text, c.QueryEmbedder, rr, logger)
	if c.StoreTimeout > 0 {
		ingestSvc = ingestSvc.WithStoreTimeout(c.StoreTimeout)
		searchSvc = searchSvc.WithStoreTimeout(c.StoreTimeout)
	}

	return &App{
		ingest:   ingestSvc,
		search:   searchSvc,
		health:   healthuc.New(c.Vector, c.Text, newEmbeddingHealthChecker(c.DocEmbedder), rr),
		rerank:   rr,
		defaults: c.QueryDefaults,
		logger:   logger,
		closers:  c.closers,
	}
}

func (a *App) ensureIndexes(ctx context.Context, c *Components) error {
	if err := c.Vector.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure vector index: %w", err)
	}
	if err := c.Text.EnsureIndex(ctx); err != nil {
		if !errors.Is(err, domain.ErrTextSearchNotSupported) {
			return fmt.Errorf("ensure text index: %w", err)
		}
		// text and hybrid queries degrade to the vector pass
		a.logger.Warn("text index backend lacks full-text search", zap.Error(err))
	}
	return nil
}

// Close releases backend connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// QueryDefaults returns the configured defaults for unset query fields.
func (a *App) QueryDefaults() request.Defaults { return a.defaults }

// Ingest inserts knowledge points into both stores, keeping stored copies of known ids.
func (a *App) Ingest(ctx context.Context, docs []document.Document) error {
	return a.ingest.Ingest(ctx, docs) //nolint:wrapcheck // use case errors are already wrapped
}

// Upsert inserts or replaces knowledge points in both stores.
func (a *App) Upsert(ctx context.Context, docs []document.Document) error {
	return a.ingest.Upsert(ctx, docs) //nolint:wrapcheck // use case errors are already wrapped
}

// Delete removes knowledge points from both stores.
func (a *App) Delete(ctx context.Context, ids []string) error {
	return a.ingest.Delete(ctx, ids) //nolint:wrapcheck // use case errors are already wrapped
}

// ClearAll empties both stores.
func (a *App) ClearAll(ctx context.Context) error {
	return a.ingest.ClearAll(ctx) //nolint:wrapcheck // use case errors are already wrapped
}

// Query answers a validated request.
func (a *App) Query(ctx context.Context, req *request.Request) (result.Response, error) {
	return a.search.Query(ctx, req) //nolint:wrapcheck // use case errors are already wrapped
}

// NewRequest validates params after filling unset fields from the configured defaults.
func (a *App) NewRequest(p request.Params) (request.Request, error) {
	r, err := request.New(a.defaults.Apply(p))
	if err != nil {
		return request.Request{}, fmt.Errorf("build query request: %w", err)
	}
	return r, nil
}

// GetByID returns a knowledge point as an exact match.
func (a *App) GetByID(ctx context.Context, id string) (result.RankedResult, error) {
	return a.search.GetByID(ctx, id) //nolint:wrapcheck // use case errors are already wrapped
}

// Health checks every component.
func (a *App) Health(ctx context.Context) healthuc.Report {
	return a.health.Check(ctx)
}

// Stats reports per-store document counts.
func (a *App) Stats(ctx context.Context) searchuc.Stats {
	return a.search.Stats(ctx)
}

// RerankModelState reports the cross-encoder model load state.
func (a *App) RerankModelState() rerank.ModelState {
	return a.rerank.ModelState()
}

// embeddingHealthChecker adapts domain.Embedder to health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) healthuc.EmbeddingChecker {
	if embedder == nil {
		return nil
	}
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

func closeDB(conn *sql.DB, logger *zap.Logger, name string) func() {
	return func() {
		if err := conn.Close(); err != nil {
			logger.Warn("close database", zap.String("backend", name), zap.Error(err))
		}
	}
}

func defaultsFromConfig(cfg *config.Config) request.Defaults {
	return request.Defaults{
		N:            cfg.Search.DefaultResults,
		VectorWeight: cfg.Search.VectorWeight,
		TextWeight:   cfg.Search.TextWeight,
		RerankMethod: score.Method(cfg.Rerank.DefaultMethod),
		RerankTopK:   cfg.Rerank.DefaultTopK,
	}
}

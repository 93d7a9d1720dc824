// Package search answers queries: it runs the vector and text passes, fuses them, reranks the
// fused candidates and maps every score onto the 0-100 similarity scale.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/domain/search/mode"
	"github.com/codevoyager1984/math-agent/internal/domain/search/request"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
	"github.com/codevoyager1984/math-agent/internal/domain/search/score"
	"github.com/codevoyager1984/math-agent/internal/metrics"
)

// DefaultStoreTimeout bounds each store call.
const DefaultStoreTimeout = 5 * time.Second

// Query stages, used as metric labels.
const (
	stageVector = "vector_search"
	stageText   = "text_search"
	stageFusion = "fusion"
	stageRerank = "rerank"
	stageTotal  = "total"
)

// Service runs queries against both stores.
type Service struct {
	vec          VectorStore
	text         TextIndex
	embedder     domain.Embedder
	reranker     Reranker
	storeTimeout time.Duration
	logger       *zap.Logger
}

// New creates a search service. embedder should be the query-side embedder.
func New(vec VectorStore, text TextIndex, embedder domain.Embedder, reranker Reranker, logger *zap.Logger) *Service {
	return &Service{
		vec:          vec,
		text:         text,
		embedder:     embedder,
		reranker:     reranker,
		storeTimeout: DefaultStoreTimeout,
		logger:       logger,
	}
}

// WithStoreTimeout overrides the per-call store deadline.
func (s *Service) WithStoreTimeout(d time.Duration) *Service {
	if d > 0 {
		s.storeTimeout = d
	}
	return s
}

type pass struct {
	cands   []result.Candidate
	err     error
	elapsed time.Duration
}

// Query answers req. A hybrid query whose one pass failed is answered from the other and lists
// the failed axis in Stats.Degraded; it fails only when both passes fail.
func (s *Service) Query(ctx context.Context, req *request.Request) (result.Response, error) {
	start := time.Now()
	m := req.Mode()
	k := req.CandidateK()

	var vecPass, textPass pass
	var g errgroup.Group
	if m.UsesVector() {
		g.Go(func() error {
			t := time.Now()
			vecPass.cands, vecPass.err = s.vectorPass(ctx, req.Query(), k)
			vecPass.elapsed = time.Since(t)
			return nil
		})
	}
	if m.UsesText() {
		g.Go(func() error {
			t := time.Now()
			textPass.cands, textPass.err = s.textPass(ctx, req.Query(), k)
			textPass.elapsed = time.Since(t)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return result.Response{}, err
	}

	resp := result.Response{
		Timing: result.Timing{VectorSearch: vecPass.elapsed, TextSearch: textPass.elapsed},
		Stats: result.Stats{
			SearchMode:    m,
			VectorResults: len(vecPass.cands),
			TextResults:   len(textPass.cands),
			RerankEnabled: req.RerankEnabled(),
		},
	}
	if m.UsesVector() {
		metrics.SearchStageDuration.WithLabelValues(stageVector).Observe(vecPass.elapsed.Seconds())
	}
	if m.UsesText() {
		metrics.SearchStageDuration.WithLabelValues(stageText).Observe(textPass.elapsed.Seconds())
	}

	var fused []result.Candidate
	switch m {
	case mode.Vector:
		if vecPass.err != nil {
			return result.Response{}, vecPass.err
		}
		fused = Single(m, vecPass.cands)
	case mode.Text:
		if textPass.err != nil {
			return result.Response{}, textPass.err
		}
		fused = Single(m, textPass.cands)
	default:
		if vecPass.err != nil && textPass.err != nil {
			return result.Response{}, fmt.Errorf("%w: both retrieval passes failed: %w",
				domain.ErrStoreUnavailable, errors.Join(vecPass.err, textPass.err))
		}
		s.noteDegraded(&resp.Stats, mode.Vector, vecPass.err)
		s.noteDegraded(&resp.Stats, mode.Text, textPass.err)

		t := time.Now()
		fused = Fuse(vecPass.cands, textPass.cands, req.VectorWeight(), req.TextWeight())
		resp.Timing.Fusion = time.Since(t)
		resp.Stats.FusedResults = len(fused)
		metrics.SearchStageDuration.WithLabelValues(stageFusion).Observe(resp.Timing.Fusion.Seconds())
	}
	resp.Stats.TotalCandidates = len(fused)

	final := fused
	if req.RerankEnabled() && s.reranker != nil && len(fused) > 0 {
		t := time.Now()
		ranked, outcome := s.reranker.Rerank(ctx, req.Query(), fused, req.RerankTopK(), req.RerankMethod())
		resp.Timing.Rerank = time.Since(t)
		metrics.SearchStageDuration.WithLabelValues(stageRerank).Observe(resp.Timing.Rerank.Seconds())
		if err := ctx.Err(); err != nil {
			return result.Response{}, err
		}

		if outcome.Applied {
			for i := range ranked {
				ranked[i].Scores.FinalScore = ranked[i].Scores.RerankScore
			}
		}
		if outcome.Err != nil {
			resp.Stats.RerankError = outcome.Err.Error()
		}
		resp.Stats.RerankMethod = outcome.Method
		resp.Stats.RerankApplied = outcome.Applied
		resp.Stats.RerankedResults = len(ranked)
		final = ranked
	}

	if len(final) > req.N() {
		final = final[:req.N()]
	}
	resp.Results = make([]result.RankedResult, len(final))
	for i := range final {
		final[i].Scores.SimilarityScore = score.Normalize(final[i].Scores, m)
		r := result.FromCandidate(&final[i])
		if m == mode.Hybrid {
			r.Fusion = &result.FusionInfo{
				VectorScore:  score.Value(final[i].Scores.VectorScore),
				TextScore:    score.Value(final[i].Scores.TextScore),
				VectorWeight: req.VectorWeight(),
				TextWeight:   req.TextWeight(),
			}
		}
		resp.Results[i] = r
	}
	resp.Stats.FinalResults = len(resp.Results)
	resp.Timing.Total = time.Since(start)
	metrics.SearchStageDuration.WithLabelValues(stageTotal).Observe(resp.Timing.Total.Seconds())

	s.logger.Debug("query answered",
		zap.String("mode", string(m)),
		zap.Int("candidates", resp.Stats.TotalCandidates),
		zap.Int("results", resp.Stats.FinalResults),
		zap.Bool("rerank_applied", resp.Stats.RerankApplied),
		zap.Duration("total", resp.Timing.Total),
	)
	return resp, nil
}

func (s *Service) vectorPass(ctx context.Context, query string, k int) ([]result.Candidate, error) {
	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	cands, err := s.vec.QueryByVector(ctx, emb.Embedding, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return cands, nil
}

func (s *Service) textPass(ctx context.Context, query string, k int) ([]result.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	cands, err := s.text.QueryByText(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	return cands, nil
}

func (s *Service) noteDegraded(stats *result.Stats, axis mode.Mode, err error) {
	if err == nil {
		return
	}
	stats.Degraded = append(stats.Degraded, axis)
	metrics.SearchDegradedTotal.WithLabelValues(string(axis)).Inc()
	s.logger.Warn("hybrid query degraded", zap.String("axis", string(axis)), zap.Error(err))
}

// GetByID returns one knowledge point, read from the vector store and, failing that, from the
// text index. The result carries a final score of 1 and similarity 100.
func (s *Service) GetByID(ctx context.Context, id string) (result.RankedResult, error) {
	doc, vecErr := s.getFrom(ctx, s.vec.Get, id)
	if vecErr == nil {
		return exactMatch(&doc), nil
	}
	doc, textErr := s.getFrom(ctx, s.text.Get, id)
	if textErr == nil {
		return exactMatch(&doc), nil
	}

	if errors.Is(vecErr, domain.ErrDocumentNotFound) && errors.Is(textErr, domain.ErrDocumentNotFound) {
		return result.RankedResult{}, fmt.Errorf("knowledge point %q: %w", id, domain.ErrDocumentNotFound)
	}
	if !errors.Is(vecErr, domain.ErrDocumentNotFound) {
		s.logger.Warn("vector store get failed", zap.String("id", id), zap.Error(vecErr))
	}
	return result.RankedResult{}, fmt.Errorf("get %q: %w", id, errors.Join(vecErr, textErr))
}

func (s *Service) getFrom(
	ctx context.Context, get func(context.Context, string) (document.Document, error), id string,
) (document.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return get(ctx, id)
}

func exactMatch(doc *document.Document) result.RankedResult {
	c := result.Candidate{
		ID:       doc.ID(),
		Document: *doc,
		Scores:   score.Bundle{FinalScore: score.Ptr(1), SimilarityScore: score.MaxSimilarity},
	}
	return result.FromCandidate(&c)
}

// StoreCount is the document count of one store, or the error that prevented counting.
type StoreCount struct {
	Documents int
	Err       error
}

// Stats reports per-store document counts.
type Stats struct {
	VectorStore StoreCount
	TextIndex   StoreCount
}

// Stats counts the documents held by each store.
func (s *Service) Stats(ctx context.Context) Stats {
	var st Stats
	var g errgroup.Group
	g.Go(func() error {
		ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
		st.VectorStore.Documents, st.VectorStore.Err = s.vec.Count(ctx)
		return nil
	})
	g.Go(func() error {
		ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
		st.TextIndex.Documents, st.TextIndex.Err = s.text.Count(ctx)
		return nil
	})
	_ = g.Wait()
	return st
}

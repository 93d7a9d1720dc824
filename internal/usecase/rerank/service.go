// Package rerank reorders retrieval candidates with a cross-encoder or a language model judge.
// Reranking never fails a query: on any error the input order is kept.
package rerank

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
	"github.com/codevoyager1984/math-agent/internal/domain/search/score"
	"github.com/codevoyager1984/math-agent/internal/metrics"
)

// Default call deadlines.
const (
	DefaultRerankTimeout = 30 * time.Second
	DefaultLLMTimeout    = 60 * time.Second
)

// Options configures the Service deadlines. Zero values select the defaults.
type Options struct {
	RerankTimeout time.Duration
	LLMTimeout    time.Duration
}

// Outcome reports how the rerank stage went.
type Outcome struct {
	Applied bool
	Method  score.Method
	// Err is the reason the stage fell back to the input order.
	Err error
}

// Service dispatches to the configured strategies.
type Service struct {
	cross  *CrossEncoder
	judge  *LLMJudge
	opts   Options
	logger *zap.Logger
}

// New creates a rerank service. Either strategy may be nil when not configured.
func New(cross *CrossEncoder, judge *LLMJudge, opts Options, logger *zap.Logger) *Service {
	if opts.RerankTimeout <= 0 {
		opts.RerankTimeout = DefaultRerankTimeout
	}
	if opts.LLMTimeout <= 0 {
		opts.LLMTimeout = DefaultLLMTimeout
	}
	return &Service{cross: cross, judge: judge, opts: opts, logger: logger}
}

// ModelState returns the cross-encoder load state, ModelUnloaded when none is configured.
func (s *Service) ModelState() ModelState {
	if s.cross == nil {
		return ModelUnloaded
	}
	return s.cross.State()
}

// Rerank reorders cands by method and keeps at most topK. On failure it returns the first topK
// candidates in their input order and reports the cause in Outcome.Err.
func (s *Service) Rerank(
	ctx context.Context, query string, cands []result.Candidate, topK int, method score.Method,
) ([]result.Candidate, Outcome) {
	outcome := Outcome{Method: method}
	if len(cands) == 0 {
		return nil, outcome
	}

	ranked, err := s.dispatch(ctx, query, cands, topK, method)
	if err != nil {
		metrics.RerankTotal.WithLabelValues(string(method), "fallback").Inc()
		s.logger.Warn("rerank fell back to retrieval order",
			zap.String("method", string(method)),
			zap.Int("candidates", len(cands)),
			zap.Error(err),
		)
		fallback := make([]result.Candidate, len(cands))
		copy(fallback, cands)
		outcome.Err = err
		return truncate(fallback, topK), outcome
	}

	metrics.RerankTotal.WithLabelValues(string(method), "applied").Inc()
	outcome.Applied = true
	return ranked, outcome
}

func (s *Service) dispatch(
	ctx context.Context, query string, cands []result.Candidate, topK int, method score.Method,
) ([]result.Candidate, error) {
	switch method {
	case score.CrossEncoder:
		if s.cross == nil {
			return nil, fmt.Errorf("%w: cross encoder not configured", domain.ErrRerankFailure)
		}
		ctx, cancel := context.WithTimeout(ctx, s.opts.RerankTimeout)
		defer cancel()
		return s.cross.Rerank(ctx, query, cands, topK)
	case score.LLM:
		if s.judge == nil {
			return nil, fmt.Errorf("%w: llm judge not configured", domain.ErrRerankFailure)
		}
		ctx, cancel := context.WithTimeout(ctx, s.opts.LLMTimeout)
		defer cancel()
		return s.judge.Rerank(ctx, query, cands, topK)
	default:
		return nil, fmt.Errorf("%w: unknown rerank method %q", domain.ErrRerankFailure, method)
	}
}

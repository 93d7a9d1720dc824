package rerank

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
	"github.com/codevoyager1984/math-agent/internal/domain/search/score"
)

// DefaultMaxBatch caps the number of texts sent in one scoring call.
const DefaultMaxBatch = 64

// CrossEncoder reranks by pairwise relevance logits from a model server.
type CrossEncoder struct {
	scorer   Scorer
	model    *lazyModel
	maxBatch int
}

// NewCrossEncoder creates the cross-encoder strategy. The model server is probed lazily on
// the first rerank.
func NewCrossEncoder(scorer Scorer, maxBatch int, loadTimeout time.Duration, logger *zap.Logger) *CrossEncoder {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &CrossEncoder{
		scorer:   scorer,
		model:    newLazyModel(scorer.Ping, loadTimeout, logger),
		maxBatch: maxBatch,
	}
}

// State returns the model load state.
func (c *CrossEncoder) State() ModelState { return c.model.State() }

// Rerank scores every candidate against query and returns the best topK, highest first.
func (c *CrossEncoder) Rerank(ctx context.Context, query string, cands []result.Candidate, topK int) ([]result.Candidate, error) {
	if err := c.model.ensure(ctx); err != nil {
		return nil, err
	}

	texts := make([]string, len(cands))
	for i := range cands {
		texts[i] = Summarize(&cands[i].Document)
	}

	scores := make([]float64, 0, len(texts))
	for start := 0; start < len(texts); start += c.maxBatch {
		end := min(start+c.maxBatch, len(texts))
		batch, err := c.scorer.Score(ctx, query, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("%w: got %d scores for %d texts", domain.ErrRerankFailure, len(batch), end-start)
		}
		scores = append(scores, batch...)
	}

	out := make([]result.Candidate, len(cands))
	copy(out, cands)
	for i := range out {
		out[i].Scores.RerankScore = score.Ptr(scores[i])
		out[i].Scores.RerankMethod = score.CrossEncoder
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].Scores.RerankScore > *out[j].Scores.RerankScore
	})
	return truncate(out, topK), nil
}

func truncate(cands []result.Candidate, topK int) []result.Candidate {
	if topK > 0 && len(cands) > topK {
		return cands[:topK]
	}
	return cands
}

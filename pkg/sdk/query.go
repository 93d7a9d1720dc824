package mathagent

import (
	"context"
	"fmt"

	"github.com/codevoyager1984/math-agent/internal/domain/search/mode"
	"github.com/codevoyager1984/math-agent/internal/domain/search/request"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
	"github.com/codevoyager1984/math-agent/internal/domain/search/score"
)

// QueryOption adjusts a single query. Unset options take the client's defaults.
type QueryOption func(*request.Params)

// Limit sets the number of results (1-20, default 5).
func Limit(n int) QueryOption {
	return func(p *request.Params) { p.N = n }
}

// InMode selects the retrieval passes (default hybrid).
func InMode(m SearchMode) QueryOption {
	return func(p *request.Params) { p.Mode = mode.Mode(m) }
}

// Weights sets the hybrid fusion weights (defaults 0.6 and 0.4).
func Weights(vector, text float64) QueryOption {
	return func(p *request.Params) {
		p.VectorWeight = &vector
		p.TextWeight = &text
	}
}

// NoRerank skips the rerank stage.
func NoRerank() QueryOption {
	return func(p *request.Params) {
		off := false
		p.EnableRerank = &off
	}
}

// RerankWith selects the rerank strategy for this query.
func RerankWith(m RerankMethod) QueryOption {
	return func(p *request.Params) { p.RerankMethod = score.Method(m) }
}

// RerankTopK caps the candidates kept by the reranker.
func RerankTopK(k int) QueryOption {
	return func(p *request.Params) { p.RerankTopK = k }
}

// Query runs a retrieval query. A failing pass in hybrid mode degrades the result instead of
// failing it; see QueryResult.Degraded.
func (c *Client) Query(ctx context.Context, text string, opts ...QueryOption) (res QueryResult, err error) {
	sp := c.obs.begin("query")
	defer func() { sp.end(len(res.Hits), err) }()

	p := request.Params{Query: text}
	for _, o := range opts {
		o(&p)
	}
	req, err := c.engine.NewRequest(p)
	if err != nil {
		return QueryResult{}, fmt.Errorf("query: %w", err)
	}
	resp, err := c.engine.Query(ctx, &req)
	if err != nil {
		return QueryResult{}, fmt.Errorf("query: %w", err)
	}
	return fromResponse(&resp), nil
}

func fromResponse(resp *result.Response) QueryResult {
	out := QueryResult{
		Hits: make([]Hit, len(resp.Results)),
		Mode: SearchMode(resp.Stats.SearchMode),
		Timing: Timing{
			VectorSearch: resp.Timing.VectorSearch,
			TextSearch:   resp.Timing.TextSearch,
			Fusion:       resp.Timing.Fusion,
			Rerank:       resp.Timing.Rerank,
			Total:        resp.Timing.Total,
		},
		RerankApplied: resp.Stats.RerankApplied,
		RerankError:   resp.Stats.RerankError,
	}
	for _, m := range resp.Stats.Degraded {
		out.Degraded = append(out.Degraded, SearchMode(m))
	}
	for i := range resp.Results {
		r := &resp.Results[i]
		out.Hits[i] = Hit{
			KnowledgePoint: fromResult(r),
			Scores: Scores{
				Vector:       r.Scores.VectorScore,
				Text:         r.Scores.TextScore,
				Fusion:       r.Scores.FusionScore,
				Rerank:       r.Scores.RerankScore,
				RerankMethod: RerankMethod(r.Scores.RerankMethod),
				Final:        r.Scores.FinalScore,
				Similarity:   r.Scores.SimilarityScore,
			},
			Highlight: r.Highlight,
		}
	}
	return out
}

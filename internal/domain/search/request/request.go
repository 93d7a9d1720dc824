package request

import (
	"fmt"
	"strings"

	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/search/mode"
	"github.com/codevoyager1984/math-agent/internal/domain/search/score"
)

// Query parameter limits.
const (
	// MaxQueryLength is the maximum allowed query length in bytes.
	MaxQueryLength      = 4096
	DefaultResults      = 5
	MaxResults          = 20
	DefaultVectorWeight = 0.6
	DefaultTextWeight   = 0.4
	// CandidateMultiplier sets how many candidates each retrieval pass fetches per requested result.
	CandidateMultiplier = 2
	MaxRerankTopK       = MaxResults * CandidateMultiplier
)

// Params is the unvalidated input of a query. Zero values and nil pointers select defaults.
type Params struct {
	Query        string
	N            int
	Mode         mode.Mode
	VectorWeight *float64
	TextWeight   *float64
	EnableRerank *bool
	RerankMethod score.Method
	RerankTopK   int
}

// Request is a validated query.
type Request struct {
	query        string
	n            int
	searchMode   mode.Mode
	vectorWeight float64
	textWeight   float64
	rerank       bool
	rerankMethod score.Method
	rerankTopK   int
}

// New validates and normalizes query parameters.
// Defaults: n=5, mode=hybrid, weights 0.6/0.4, rerank enabled with cross_encoder, rerankTopK=n.
func New(p Params) (Request, error) {
	q := strings.TrimSpace(p.Query)
	if q == "" {
		return Request{}, fmt.Errorf("%w: query is required", domain.ErrInvalidInput)
	}
	if len(q) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d bytes)", domain.ErrInvalidInput, MaxQueryLength)
	}

	n := p.N
	if n == 0 {
		n = DefaultResults
	}
	if n < 1 || n > MaxResults {
		return Request{}, fmt.Errorf("%w: n must be between 1 and %d", domain.ErrInvalidInput, MaxResults)
	}

	m := p.Mode
	if m == "" {
		m = mode.Hybrid
	}
	if !m.IsValid() {
		return Request{}, fmt.Errorf("%w: invalid search mode %q", domain.ErrInvalidInput, m)
	}

	vw, err := weight("vector_weight", p.VectorWeight, DefaultVectorWeight)
	if err != nil {
		return Request{}, err
	}
	tw, err := weight("text_weight", p.TextWeight, DefaultTextWeight)
	if err != nil {
		return Request{}, err
	}

	rerank := true
	if p.EnableRerank != nil {
		rerank = *p.EnableRerank
	}

	method := p.RerankMethod
	if method == "" {
		method = score.CrossEncoder
	}
	if !method.IsValid() {
		return Request{}, fmt.Errorf("%w: invalid rerank method %q", domain.ErrInvalidInput, method)
	}

	topK := p.RerankTopK
	if topK == 0 {
		topK = n
	}
	if topK < 1 || topK > MaxRerankTopK {
		return Request{}, fmt.Errorf("%w: rerank_top_k must be between 1 and %d", domain.ErrInvalidInput, MaxRerankTopK)
	}

	return Request{
		query:        q,
		n:            n,
		searchMode:   m,
		vectorWeight: vw,
		textWeight:   tw,
		rerank:       rerank,
		rerankMethod: method,
		rerankTopK:   topK,
	}, nil
}

func weight(name string, v *float64, def float64) (float64, error) {
	if v == nil {
		return def, nil
	}
	if *v < 0 || *v > 1 {
		return 0, fmt.Errorf("%w: %s must be between 0 and 1", domain.ErrInvalidInput, name)
	}
	return *v, nil
}

// Query returns the query text.
func (r *Request) Query() string { return r.query }

// N returns the number of results to return.
func (r *Request) N() int { return r.n }

// Mode returns the retrieval mode.
func (r *Request) Mode() mode.Mode { return r.searchMode }

// VectorWeight returns the fusion weight of the vector axis.
func (r *Request) VectorWeight() float64 { return r.vectorWeight }

// TextWeight returns the fusion weight of the text axis.
func (r *Request) TextWeight() float64 { return r.textWeight }

// RerankEnabled reports whether the rerank stage runs.
func (r *Request) RerankEnabled() bool { return r.rerank }

// RerankMethod returns the rerank strategy.
func (r *Request) RerankMethod() score.Method { return r.rerankMethod }

// RerankTopK returns how many candidates survive reranking.
func (r *Request) RerankTopK() int { return r.rerankTopK }

// CandidateK returns how many candidates each retrieval pass fetches.
func (r *Request) CandidateK() int { return r.n * CandidateMultiplier }

// Defaults are deployment-level values for fields a caller left unset.
type Defaults struct {
	N            int
	VectorWeight *float64
	TextWeight   *float64
	RerankMethod score.Method
	RerankTopK   int
}

// Apply fills the unset fields of p from d.
func (d Defaults) Apply(p Params) Params {
	if p.N == 0 {
		p.N = d.N
	}
	if p.VectorWeight == nil {
		p.VectorWeight = d.VectorWeight
	}
	if p.TextWeight == nil {
		p.TextWeight = d.TextWeight
	}
	if p.RerankMethod == "" {
		p.RerankMethod = d.RerankMethod
	}
	if p.RerankTopK == 0 {
		p.RerankTopK = d.RerankTopK
	}
	return p
}

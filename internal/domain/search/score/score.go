// Package score holds the per-candidate score bundle and the mapping of every score type onto
// one 0-100 similarity scale.
package score

import (
	"math"

	"github.com/codevoyager1984/math-agent/internal/domain/search/mode"
)

// Method identifies the model that produced a rerank score.
type Method string

// Rerank methods.
const (
	// CrossEncoder scores are raw, unbounded pairwise model logits.
	CrossEncoder Method = "cross_encoder"
	// LLM scores are 0-100 relevance judgements from a language model.
	LLM Method = "llm"
)

// IsValid checks if the method is one of the supported values.
func (m Method) IsValid() bool {
	return m == CrossEncoder || m == LLM
}

// Normalizer constants.
const (
	// CrossEncoderShift centers the sigmoid so that logits below ~5 stay low.
	CrossEncoderShift = 5.0
	// DistanceSigma is the Gaussian width for the raw distance fallback.
	DistanceSigma = 1.5
	MaxSimilarity = 100.0
)

// Bundle accumulates scores on a candidate as it passes through the pipeline.
// Nil pointers mean the stage did not run for this candidate.
type Bundle struct {
	VectorScore  *float64 // 0-1, from distance
	TextScore    *float64 // 0-1, min-max normalized lexical score
	FusionScore  *float64 // weighted sum
	RerankScore  *float64 // method-specific scale
	RerankMethod Method
	FinalScore   *float64 // the score the pipeline ranked by
	Distance     *float64 // raw vector distance

	// SimilarityScore is the canonical 0-100 presentation score.
	SimilarityScore float64
}

// Normalize maps the most refined score present in b onto [0,100].
//
// Priority: LLM rerank score (clamped), cross-encoder score (shifted sigmoid), final or fusion
// score (x100), the axis score of a single-mode query (x100), Gaussian decay of raw distance.
func Normalize(b Bundle, m mode.Mode) float64 {
	if b.RerankScore != nil {
		switch b.RerankMethod {
		case LLM:
			return clampSimilarity(*b.RerankScore)
		case CrossEncoder:
			return clampSimilarity(MaxSimilarity / (1 + math.Exp(-(*b.RerankScore - CrossEncoderShift))))
		}
	}

	if b.FinalScore != nil {
		return clampSimilarity(*b.FinalScore * MaxSimilarity)
	}
	if b.FusionScore != nil {
		return clampSimilarity(*b.FusionScore * MaxSimilarity)
	}

	switch {
	case m == mode.Vector && b.VectorScore != nil:
		return clampSimilarity(*b.VectorScore * MaxSimilarity)
	case m == mode.Text && b.TextScore != nil:
		return clampSimilarity(*b.TextScore * MaxSimilarity)
	}

	if b.Distance != nil {
		d := *b.Distance
		return clampSimilarity(MaxSimilarity * math.Exp(-(d*d)/(2*DistanceSigma*DistanceSigma)))
	}

	return 0
}

// FromDistance converts a cosine distance into a 0-1 vector score.
func FromDistance(distance float64) float64 {
	return Clamp(1-distance, 0, 1)
}

// Clamp bounds v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Ptr returns a pointer to v.
func Ptr(v float64) *float64 { return &v }

// Value dereferences p, returning 0 for nil.
func Value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func clampSimilarity(v float64) float64 {
	return Clamp(v, 0, MaxSimilarity)
}

package search

import (
	"sort"

	"github.com/codevoyager1984/math-agent/internal/domain/search/mode"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
	"github.com/codevoyager1984/math-agent/internal/domain/search/score"
)

// Fuse merges the vector and text passes by id into one list ordered by
//
//	fusion = vectorWeight*vectorScore + textWeight*textScore
//
// vectorScore is 1 - distance clamped to [0,1]; textScore is the lexical score min-max
// normalized over texts. A candidate missing from one pass scores 0 on that axis. Ties are
// broken by id. Either input may be empty, which is how a degraded hybrid query is fused.
// An id repeated within one pass keeps its first, best ranked entry.
func Fuse(vectors, texts []result.Candidate, vectorWeight, textWeight float64) []result.Candidate {
	vectors, texts = uniqueByID(vectors), uniqueByID(texts)
	merged := make(map[string]*result.Candidate, len(vectors)+len(texts))
	order := make([]string, 0, len(vectors)+len(texts))

	for _, v := range withVectorScores(vectors) {
		c := v
		c.Scores.TextScore = score.Ptr(0)
		merged[c.ID] = &c
		order = append(order, c.ID)
	}
	for _, t := range withTextScores(texts) {
		if c, ok := merged[t.ID]; ok {
			c.Scores.TextScore = t.Scores.TextScore
			c.LexicalScore = t.LexicalScore
			c.Highlight = t.Highlight
			continue
		}
		c := t
		c.Scores.VectorScore = score.Ptr(0)
		merged[c.ID] = &c
		order = append(order, c.ID)
	}

	out := make([]result.Candidate, 0, len(order))
	for _, id := range order {
		c := merged[id]
		fusion := vectorWeight*score.Value(c.Scores.VectorScore) + textWeight*score.Value(c.Scores.TextScore)
		c.Scores.FusionScore = score.Ptr(fusion)
		c.Scores.FinalScore = score.Ptr(fusion)
		out = append(out, *c)
	}
	sortByFinal(out)
	return out
}

// Single scores the candidates of a one-pass query: the pass's own axis score becomes the
// final score and no fusion score is set.
func Single(m mode.Mode, cands []result.Candidate) []result.Candidate {
	var out []result.Candidate
	cands = uniqueByID(cands)
	switch m {
	case mode.Vector:
		out = withVectorScores(cands)
		for i := range out {
			out[i].Scores.FinalScore = score.Ptr(*out[i].Scores.VectorScore)
		}
	case mode.Text:
		out = withTextScores(cands)
		for i := range out {
			out[i].Scores.FinalScore = score.Ptr(*out[i].Scores.TextScore)
		}
	default:
		return nil
	}
	sortByFinal(out)
	return out
}

func uniqueByID(cands []result.Candidate) []result.Candidate {
	seen := make(map[string]struct{}, len(cands))
	out := make([]result.Candidate, 0, len(cands))
	for _, c := range cands {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}

func withVectorScores(cands []result.Candidate) []result.Candidate {
	out := make([]result.Candidate, len(cands))
	for i, c := range cands {
		d := 1.0
		if c.Distance != nil {
			d = *c.Distance
		}
		c.Scores.Distance = score.Ptr(d)
		c.Scores.VectorScore = score.Ptr(score.FromDistance(d))
		out[i] = c
	}
	return out
}

// withTextScores min-max normalizes lexical scores. When every score is equal, positive
// scores map to 1 and the rest to 0.
func withTextScores(cands []result.Candidate) []result.Candidate {
	out := make([]result.Candidate, len(cands))
	if len(cands) == 0 {
		return out
	}

	lo, hi := score.Value(cands[0].LexicalScore), score.Value(cands[0].LexicalScore)
	for _, c := range cands[1:] {
		s := score.Value(c.LexicalScore)
		lo = min(lo, s)
		hi = max(hi, s)
	}

	for i, c := range cands {
		raw := score.Value(c.LexicalScore)
		var norm float64
		switch {
		case hi > lo:
			norm = (raw - lo) / (hi - lo)
		case raw > 0:
			norm = 1
		}
		c.Scores.TextScore = score.Ptr(norm)
		out[i] = c
	}
	return out
}

func sortByFinal(cands []result.Candidate) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := score.Value(cands[i].Scores.FinalScore), score.Value(cands[j].Scores.FinalScore)
		if a != b {
			return a > b
		}
		return cands[i].ID < cands[j].ID
	})
}

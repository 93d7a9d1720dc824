package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
	"github.com/codevoyager1984/math-agent/internal/domain/search/score"
)

// ScoreFloor is the lowest judge score a candidate may have and still be returned.
const ScoreFloor = 20.0

const judgeSystemPrompt = "You are a search result reranking assistant. " +
	"You judge how relevant each candidate document is to a user query and answer only with JSON."

// LLMJudge reranks by asking a language model for 0-100 relevance scores.
type LLMJudge struct {
	chat    ChatCompleter
	limiter *rate.Limiter
}

// NewLLMJudge creates the judge strategy. rps <= 0 disables rate limiting.
func NewLLMJudge(chat ChatCompleter, rps float64) *LLMJudge {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	return &LLMJudge{chat: chat, limiter: rate.NewLimiter(limit, burst)}
}

// Rerank asks the judge to score cands. Candidates below ScoreFloor are dropped, so the result
// may be shorter than topK or empty.
func (j *LLMJudge) Rerank(ctx context.Context, query string, cands []result.Candidate, topK int) ([]result.Candidate, error) {
	if err := j.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit: %w", domain.ErrRerankFailure, err)
	}

	reply, err := j.chat.Complete(ctx, judgeSystemPrompt, judgePrompt(query, cands))
	if err != nil {
		return nil, err
	}

	verdicts, err := parseVerdicts(reply, len(cands))
	if err != nil {
		return nil, err
	}

	out := make([]result.Candidate, 0, len(verdicts))
	for _, v := range verdicts {
		c := cands[v.position-1]
		c.Scores.RerankScore = score.Ptr(v.score)
		c.Scores.RerankMethod = score.LLM
		out = append(out, c)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return *out[a].Scores.RerankScore > *out[b].Scores.RerankScore
	})
	return truncate(out, topK), nil
}

func judgePrompt(query string, cands []result.Candidate) string {
	var b strings.Builder
	b.WriteString("User query: ")
	b.WriteString(query)
	b.WriteString("\n\nCandidate documents:\n")
	for i := range cands {
		fmt.Fprintf(&b, "Document %d: %s\n", i+1, Summarize(&cands[i].Document))
	}
	fmt.Fprintf(&b, `
Instructions:
1. Judge the relevance of every document to the user query.
2. Give each a similarity score from 0 to 100 (0 = unrelated, 100 = highly relevant).
3. Only return documents scoring %[1]d or more.
4. Order them from the highest score to the lowest.

Answer strictly in this JSON format:
`+"```json"+`
[
  {"id": 1, "score": 85},
  {"id": 2, "score": 65}
]
`+"```"+`

If every document scores below %[1]d, return an empty array.`, int(ScoreFloor))
	return b.String()
}

type verdict struct {
	position int
	score    float64
}

// number accepts a JSON number or a quoted number.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", data)
	}
	*n = number(v)
	return nil
}

type rawVerdict struct {
	ID    *number `json:"id"`
	Score *number `json:"score"`
}

// parseVerdicts extracts the judge's JSON array from reply, which may be wrapped in a code
// fence or prose. Positions are 1-based. Out-of-range, duplicate and below-floor entries are
// dropped; a non-empty array with no usable position is a parse failure.
func parseVerdicts(reply string, n int) ([]verdict, error) {
	text := strings.TrimSpace(reply)
	if i := strings.Index(text, "```json"); i >= 0 {
		text = text[i+len("```json"):]
		if k := strings.Index(text, "```"); k >= 0 {
			text = text[:k]
		}
	}
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON array in judge reply", domain.ErrParseFailure)
	}

	var raw []rawVerdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: judge reply: %w", domain.ErrParseFailure, err)
	}

	out := make([]verdict, 0, len(raw))
	seen := make(map[int]struct{}, len(raw))
	known := 0
	for _, r := range raw {
		if r.ID == nil || r.Score == nil {
			continue
		}
		pos := int(*r.ID)
		if float64(pos) != float64(*r.ID) || pos < 1 || pos > n {
			continue
		}
		known++
		if _, dup := seen[pos]; dup {
			continue
		}
		seen[pos] = struct{}{}
		if float64(*r.Score) < ScoreFloor {
			continue
		}
		out = append(out, verdict{position: pos, score: score.Clamp(float64(*r.Score), 0, score.MaxSimilarity)})
	}
	if len(raw) > 0 && known == 0 {
		return nil, fmt.Errorf("%w: judge reply references no candidate", domain.ErrParseFailure)
	}
	return out, nil
}

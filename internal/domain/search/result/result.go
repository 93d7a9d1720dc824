package result

import (
	"time"

	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/domain/search/mode"
	"github.com/codevoyager1984/math-agent/internal/domain/search/score"
)

// Candidate is a document returned by one retrieval pass, carrying the scores accumulated so far.
// Exactly one of Distance (vector pass) or LexicalScore (text pass) is set by the adapter.
type Candidate struct {
	ID           string
	Document     document.Document
	Distance     *float64
	LexicalScore *float64
	Highlight    map[string][]string
	Scores       score.Bundle
}

// FusionInfo describes how a hybrid score was composed.
type FusionInfo struct {
	VectorScore  float64
	TextScore    float64
	VectorWeight float64
	TextWeight   float64
}

// RankedResult is one entry of a query response.
type RankedResult struct {
	ID          string
	Title       string
	Description string
	Category    string
	Content     string
	Examples    []document.Example
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Scores      score.Bundle
	Highlight   map[string][]string
	Fusion      *FusionInfo
}

// FromCandidate flattens a scored candidate into a ranked result.
func FromCandidate(c *Candidate) RankedResult {
	md := c.Document.Metadata()
	id := c.ID
	if id == "" {
		id = c.Document.ID()
	}
	return RankedResult{
		ID:          id,
		Title:       md.Title,
		Description: md.Description,
		Category:    md.Category,
		Content:     c.Document.Content(),
		Examples:    md.Examples,
		Tags:        md.Tags,
		CreatedAt:   md.CreatedAt,
		UpdatedAt:   md.UpdatedAt,
		Scores:      c.Scores,
		Highlight:   c.Highlight,
	}
}

// Timing records the wall time of each query stage. Stages that did not run are zero.
type Timing struct {
	VectorSearch time.Duration
	TextSearch   time.Duration
	Fusion       time.Duration
	Rerank       time.Duration
	Total        time.Duration
}

// Stats summarizes how a query was answered.
type Stats struct {
	SearchMode      mode.Mode
	VectorResults   int
	TextResults     int
	FusedResults    int
	TotalCandidates int
	RerankEnabled   bool
	RerankMethod    score.Method
	RerankApplied   bool
	RerankedResults int
	FinalResults    int
	// Degraded lists the axes whose pass failed in a hybrid query.
	Degraded []mode.Mode
	// RerankError is the reason the rerank stage fell back, empty when it applied or did not run.
	RerankError string
}

// Response is the full answer to a query.
type Response struct {
	Results []RankedResult
	Timing  Timing
	Stats   Stats
}

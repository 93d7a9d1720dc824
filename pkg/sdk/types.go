package mathagent

import "time"

// SearchMode selects which retrieval passes run.
type SearchMode string

// Search mode constants.
const (
	ModeHybrid SearchMode = "hybrid"
	ModeVector SearchMode = "vector"
	ModeText   SearchMode = "text"
)

// RerankMethod selects the rerank strategy.
type RerankMethod string

// Rerank method constants.
const (
	RerankCrossEncoder RerankMethod = "cross_encoder"
	RerankLLM          RerankMethod = "llm"
)

// Difficulty grades an example problem.
type Difficulty string

// Difficulty levels. Empty defaults to medium.
const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Example is a worked problem attached to a knowledge point.
type Example struct {
	Question   string
	Solution   string
	Difficulty Difficulty
}

// KnowledgePoint is a unit of math knowledge. An empty Content is composed from the title,
// description and examples.
type KnowledgePoint struct {
	ID          string
	Title       string
	Description string
	Category    string
	Content     string
	Examples    []Example
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Scores carries every score a hit accumulated. Nil means the stage did not run for it.
type Scores struct {
	Vector       *float64
	Text         *float64
	Fusion       *float64
	Rerank       *float64
	RerankMethod RerankMethod
	Final        *float64
	// Similarity is the user-facing 0-100 score.
	Similarity float64
}

// Hit is one ranked query result.
type Hit struct {
	KnowledgePoint
	Scores    Scores
	Highlight map[string][]string
}

// Timing records the wall time of each query stage.
type Timing struct {
	VectorSearch time.Duration
	TextSearch   time.Duration
	Fusion       time.Duration
	Rerank       time.Duration
	Total        time.Duration
}

// QueryResult is the answer to a query.
type QueryResult struct {
	Hits          []Hit
	Mode          SearchMode
	Timing        Timing
	RerankApplied bool
	// RerankError is why the rerank stage fell back to the fused order.
	RerankError string
	// Degraded lists the passes that failed in a hybrid query.
	Degraded []SearchMode
}

// StoreStats is the document count of one store. Err is set when the store could not answer.
type StoreStats struct {
	Documents int
	Err       error
}

// Stats reports per-store document counts.
type Stats struct {
	VectorStore StoreStats
	TextIndex   StoreStats
}

package rerank

import "context"

// Scorer is a pairwise relevance model server.
type Scorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
	Ping(ctx context.Context) error
}

// ChatCompleter is a single-turn language model.
type ChatCompleter interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

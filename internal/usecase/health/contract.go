package health

import (
	"context"

	"github.com/codevoyager1984/math-agent/internal/usecase/rerank"
)

// Pinger checks store availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// ModelStater reports the rerank model load state.
type ModelStater interface {
	ModelState() rerank.ModelState
}

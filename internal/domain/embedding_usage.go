package domain

import (
	"context"
	"sync"
)

type embeddingUsageKey struct{}

// EmbeddingUsage collects the embedding tokens spent while serving one request.
// The transport layer installs it; the instrumented embedder adds to it.
// Safe for concurrent use: ingest and query may embed from several goroutines.
type EmbeddingUsage struct {
	mu          sync.Mutex
	totalTokens int
	used        bool
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := &EmbeddingUsage{}
	return context.WithValue(ctx, embeddingUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(embeddingUsageKey{}).(*EmbeddingUsage)
	return u
}

// AddTokens records consumed tokens. A call with zero tokens (cache hit) still marks usage.
func (u *EmbeddingUsage) AddTokens(n int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.totalTokens += n
	u.used = true
	u.mu.Unlock()
}

// Total returns the tokens recorded so far.
func (u *EmbeddingUsage) Total() int {
	if u == nil {
		return 0
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.totalTokens
}

// Used reports whether the embedder was called at all.
func (u *EmbeddingUsage) Used() bool {
	if u == nil {
		return false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.used
}

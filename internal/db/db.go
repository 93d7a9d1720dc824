// Package db defines the storage contracts shared by the Redis-family backends: hashes holding
// knowledge points, FT indexes over them, and a small KV used by the embedding cache.
package db

import (
	"context"
	"time"
)

// Store is everything the redis backend offers. Repositories depend on narrower interfaces
// declared next to them.
type Store interface {
	HashStore
	KVStore
	IndexManager
	Searcher
	Ping(ctx context.Context) error
	WaitForReady(ctx context.Context, timeout time.Duration) error
	Close()
}

// HashSetItem is one hash written by HSetMulti.
type HashSetItem struct {
	Key    string
	Fields map[string]string
}

// HashStore holds one hash per indexed knowledge point.
type HashStore interface {
	// HSetMulti replaces each hash as a whole.
	HSetMulti(ctx context.Context, items []HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	DelMulti(ctx context.Context, keys []string) (int, error)
	ExistsMulti(ctx context.Context, keys []string) ([]bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// KVStore stores opaque values. A zero ttl means no expiry.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// IndexManager creates and probes FT indexes.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SupportsTextSearch(ctx context.Context) bool
}

// Searcher runs FT.SEARCH queries.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
	SearchText(ctx context.Context, q *TextQuery) (*SearchResult, error)
	SearchCount(ctx context.Context, index, prefix string) (int, error)
}

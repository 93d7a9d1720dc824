package embcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/codevoyager1984/math-agent/internal/db"
	"github.com/codevoyager1984/math-agent/internal/domain"
)

const testDims = 2

// lengthEmbedder embeds a text as {len(text), 1} and charges one token per text.
type lengthEmbedder struct {
	mu         sync.Mutex
	calls      int
	batchCalls int
	seen       []string
	err        error
	gate       chan struct{} // when set, Embed blocks until it is closed
}

func (e *lengthEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	if e.gate != nil {
		<-e.gate
	}
	e.mu.Lock()
	e.calls++
	e.seen = append(e.seen, text)
	e.mu.Unlock()
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text)), 1}, PromptTokens: 1, TotalTokens: 1}, nil
}

func (e *lengthEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	e.mu.Lock()
	e.batchCalls++
	e.seen = append(e.seen, texts...)
	e.mu.Unlock()
	if e.err != nil {
		return domain.BatchEmbeddingResult{}, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return domain.BatchEmbeddingResult{Embeddings: out, PromptTokens: len(texts), TotalTokens: len(texts)}, nil
}

// memKV is an in-memory KVStore. getErr and setErr simulate an unavailable store.
type memKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memKV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memKV) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

var errStoreDown = errors.New("connection refused")

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_total"}, []string{"result"})
}

func newTestCache(t *testing.T, inner domain.Embedder, kv KVStore) (*CachedEmbedder, *prometheus.CounterVec) {
	t.Helper()
	counter := newCounter()
	return New(inner, kv, Config{Model: "bge-m3", Dimensions: testDims}, counter, zap.NewNop()), counter
}

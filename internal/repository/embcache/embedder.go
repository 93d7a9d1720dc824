// Package embcache caches embedding vectors in a key-value store.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/codevoyager1984/math-agent/internal/db"
	"github.com/codevoyager1984/math-agent/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "emb_cache:"

// DefaultTTL bounds how long a cached vector survives a model swap under the same name.
const DefaultTTL = 7 * 24 * time.Hour

// KVStore is the slice of db.KVStore the cache needs.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config identifies the vectors being cached.
type Config struct {
	Model      string
	Dimensions int // when set, cached vectors of another length are ignored
	TTL        time.Duration
}

// CachedEmbedder serves repeated texts from the store. Concurrent misses for one text share a
// single provider call.
type CachedEmbedder struct {
	inner      domain.Embedder
	store      KVStore
	cfg        Config
	flight     singleflight.Group
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New wraps inner. cacheTotal takes a "result" label of hit or miss and may be nil.
func New(inner domain.Embedder, s KVStore, cfg Config, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *CachedEmbedder {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		cfg:        cfg,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Embed returns the cached vector or calls the inner embedder. A hit reports zero tokens.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cacheKey(text)
	if vec, ok := c.lookup(ctx, key); ok {
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	v, err, shared := c.flight.Do(key, func() (any, error) {
		res, err := c.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.save(ctx, key, res.Embedding)
		return res, nil
	})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	res := v.(domain.EmbeddingResult)
	if shared {
		// tokens are billed to whichever caller ran the request
		res.PromptTokens, res.TotalTokens = 0, 0
	}
	return res, nil
}

// BatchEmbed serves hits from the cache and sends each distinct missing text to the inner
// embedder once, in one batch call.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	embeddings := make([][]float32, len(texts))
	hits := make(map[string][]float32)
	pending := make(map[string][]int) // cache key -> positions in texts
	var missKeys, missTexts []string

	for i, text := range texts {
		key := c.cacheKey(text)
		if vec, ok := hits[key]; ok {
			embeddings[i] = vec
			continue
		}
		if at, ok := pending[key]; ok {
			pending[key] = append(at, i)
			continue
		}
		if vec, ok := c.lookup(ctx, key); ok {
			hits[key] = vec
			embeddings[i] = vec
			continue
		}
		pending[key] = []int{i}
		missKeys = append(missKeys, key)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: embeddings}, nil
	}

	res, err := domain.EmbedBatch(ctx, c.inner, missTexts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed %d misses: %w", len(missTexts), err)
	}

	for j, key := range missKeys {
		for _, i := range pending[key] {
			embeddings[i] = res.Embeddings[j]
		}
		c.save(ctx, key, res.Embeddings[j])
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// HealthCheck forwards to the inner embedder.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (c *CachedEmbedder) count(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// cacheKey hashes model, dimensions and text so a dimension change never serves stale vectors.
func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(c.cfg.Model))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(c.cfg.Dimensions)))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	vec, err := c.load(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Ignoring cached embedding", zap.String("key", key), zap.Error(err))
		}
		c.count("miss")
		return nil, false
	}
	c.count("hit")
	return vec, true
}

func (c *CachedEmbedder) load(ctx context.Context, key string) ([]float32, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, db.ErrKeyNotFound
	}
	vec, err := decodeVector(data)
	if err != nil {
		return nil, err
	}
	if c.cfg.Dimensions > 0 && len(vec) != c.cfg.Dimensions {
		return nil, fmt.Errorf("cached vector has %d dims, want %d", len(vec), c.cfg.Dimensions)
	}
	return vec, nil
}

func (c *CachedEmbedder) save(ctx context.Context, key string, vec []float32) {
	if err := c.store.SetWithTTL(ctx, key, encodeVector(vec), c.cfg.TTL); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

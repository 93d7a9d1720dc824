package mathagent

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/codevoyager1984/math-agent/internal/config"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	cfg config.Config

	embedder Embedder

	logger     *zap.Logger
	metricsReg prometheus.Registerer
}

// WithValkey stores vectors and the text index in a Valkey instance.
// Valkey has no full-text module, so text queries degrade to the vector pass.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.VectorStore.Driver = config.DriverValkey
		c.cfg.VectorStore.Addrs = []string{addr}
		c.cfg.VectorStore.Password = password
		c.cfg.TextIndex.Driver = config.DriverRedis
	})
}

// WithRedis stores vectors and the text index in a Redis Stack instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.VectorStore.Driver = config.DriverRedis
		c.cfg.VectorStore.Addrs = []string{addr}
		c.cfg.VectorStore.Password = password
		c.cfg.TextIndex.Driver = config.DriverRedis
	})
}

// WithPostgres stores vectors in pgvector and the text index in Postgres full-text search,
// both behind one connection pool.
func WithPostgres(dsn string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.VectorStore.Driver = config.DriverPGVector
		c.cfg.VectorStore.DSN = dsn
		c.cfg.TextIndex.Driver = config.DriverPostgres
		c.cfg.TextIndex.DSN = dsn
	})
}

// WithSQLiteText moves the text index to an SQLite FTS5 database file.
// Combine with a vector store option.
func WithSQLiteText(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.TextIndex.Driver = config.DriverSQLite
		c.cfg.TextIndex.DSN = path
		c.cfg.TextIndex.Addrs = nil
	})
}

// WithMemory keeps both stores in process memory. Nothing survives Close.
func WithMemory() Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.VectorStore.Driver = config.DriverMemory
		c.cfg.TextIndex.Driver = config.DriverMemory
	})
}

// WithEmbedding configures an OpenAI-compatible embedding endpoint.
func WithEmbedding(baseURL, apiKey, model string, dimensions int) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Embedding.BaseURL = baseURL
		c.cfg.Embedding.APIKey = apiKey
		c.cfg.Embedding.Model = model
		c.cfg.Embedding.Dimensions = dimensions
	})
}

// WithEmbedder replaces the embedding endpoint with a custom provider producing vectors of
// the given dimension.
func WithEmbedder(e Embedder, dimensions int) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
		c.cfg.Embedding.Dimensions = dimensions
		if c.cfg.Embedding.Model == "" {
			c.cfg.Embedding.Model = "custom"
		}
	})
}

// WithInstructions sets the prefixes prepended to queries and to documents before embedding.
func WithInstructions(query, document string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Embedding.QueryInstruction = query
		c.cfg.Embedding.DocumentInstruction = document
	})
}

// WithEmbeddingCache caches document and query vectors in the Redis vector store.
func WithEmbeddingCache() Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Embedding.Cache = true
	})
}

// WithCrossEncoder enables the cross_encoder rerank strategy against a rerank server.
func WithCrossEncoder(baseURL, apiKey, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Rerank.CrossEncoder.BaseURL = baseURL
		c.cfg.Rerank.CrossEncoder.APIKey = apiKey
		c.cfg.Rerank.CrossEncoder.Model = model
	})
}

// WithLLMJudge enables the llm rerank strategy against an OpenAI-compatible chat endpoint.
// Empty baseURL and apiKey reuse the embedding endpoint's.
func WithLLMJudge(baseURL, apiKey, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Rerank.LLM.BaseURL = baseURL
		c.cfg.Rerank.LLM.APIKey = apiKey
		c.cfg.Rerank.LLM.Model = model
	})
}

// WithDefaultRerankMethod selects the strategy used when a query does not name one.
func WithDefaultRerankMethod(m RerankMethod) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Rerank.DefaultMethod = string(m)
	})
}

// WithHNSW configures HNSW index parameters (M and EF construction). Defaults: 16, 200.
func WithHNSW(m, efConstruct int) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.VectorStore.HNSWM = m
		c.cfg.VectorStore.HNSWEFConstruct = efConstruct
	})
}

// WithLogger enables structured logging for SDK and engine operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}

package app

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/codevoyager1984/math-agent/internal/config"
	"github.com/codevoyager1984/math-agent/internal/db/postgres"
	dbRedis "github.com/codevoyager1984/math-agent/internal/db/redis"
	"github.com/codevoyager1984/math-agent/internal/db/sqlite"
	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/metrics"
	"github.com/codevoyager1984/math-agent/internal/repository/embcache"
	"github.com/codevoyager1984/math-agent/internal/repository/memory"
	"github.com/codevoyager1984/math-agent/internal/repository/pgtext"
	"github.com/codevoyager1984/math-agent/internal/repository/pgvec"
	"github.com/codevoyager1984/math-agent/internal/repository/sqlitefts"
	"github.com/codevoyager1984/math-agent/internal/repository/textindex"
	"github.com/codevoyager1984/math-agent/internal/repository/vector"
	"github.com/codevoyager1984/math-agent/internal/transport/crossencoder"
	openaiTransport "github.com/codevoyager1984/math-agent/internal/transport/openai"
	embeddinguc "github.com/codevoyager1984/math-agent/internal/usecase/embedding"
	"github.com/codevoyager1984/math-agent/internal/usecase/rerank"
)

// backends tracks connections opened while building, so they can be shared and closed.
type backends struct {
	redis   map[string]*dbRedis.Store
	sqlDB   map[string]*sql.DB
	closers []func()
}

func buildComponents(
	ctx context.Context, cfg *config.Config, opts *buildOptions, logger *zap.Logger,
) (*Components, error) {
	b := &backends{redis: map[string]*dbRedis.Store{}, sqlDB: map[string]*sql.DB{}}
	fail := func(err error) (*Components, error) {
		for i := len(b.closers) - 1; i >= 0; i-- {
			b.closers[i]()
		}
		return nil, err
	}

	vec, kv, err := b.vectorBackend(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	text, err := b.textBackend(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}

	base := opts.embedder
	if base == nil {
		base = openaiTransport.NewEmbedder(&openaiTransport.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Provider:   cfg.Embedding.Provider,
			Logger:     logger,
		})
	}
	timeout := cfg.Timeouts.Embedding()
	docEmbedder := buildEmbedder(base, &cfg.Embedding, cfg.Embedding.DocumentInstruction, kv, timeout, logger)
	queryEmbedder := buildEmbedder(base, &cfg.Embedding, cfg.Embedding.QueryInstruction, kv, timeout, logger)
	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Bool("cache", kv != nil),
	)

	cross, judge := buildRerankers(cfg, logger)

	return &Components{
		Vector:        vec,
		Text:          text,
		DocEmbedder:   docEmbedder,
		QueryEmbedder: queryEmbedder,
		CrossEncoder:  cross,
		LLMJudge:      judge,
		RerankOptions: rerank.Options{
			RerankTimeout: cfg.Timeouts.Rerank(),
			LLMTimeout:    cfg.Timeouts.LLM(),
		},
		StoreTimeout:  cfg.Timeouts.Store(),
		QueryDefaults: defaultsFromConfig(cfg),
		closers:       b.closers,
	}, nil
}

// vectorBackend opens the vector store. For Redis-family drivers it also returns the store as
// the embedding cache KV when caching is enabled.
func (b *backends) vectorBackend(
	ctx context.Context, cfg *config.Config, logger *zap.Logger,
) (VectorBackend, embcache.KVStore, error) {
	vc := cfg.VectorStore
	switch vc.Driver {
	case config.DriverRedis, config.DriverValkey:
		flavor := dbRedis.FlavorRedis
		if vc.Driver == config.DriverValkey {
			flavor = dbRedis.FlavorValkey
		}
		store, err := b.redisStore(ctx, vc.Addrs, vc.Password, flavor, vc.ReadinessTimeout, logger)
		if err != nil {
			return nil, nil, err
		}
		repo := vector.New(store, vector.Config{
			KeyPrefix:          vc.KeyPrefix,
			Dimensions:         cfg.Embedding.Dimensions,
			HNSWM:              vc.HNSWM,
			HNSWEfConstruction: vc.HNSWEFConstruct,
		})
		var kv embcache.KVStore
		if cfg.Embedding.Cache {
			kv = store
		}
		return repo, kv, nil

	case config.DriverPGVector:
		conn, err := b.postgres(ctx, vc.DSN, logger)
		if err != nil {
			return nil, nil, err
		}
		repo, err := pgvec.New(conn, vc.Table, cfg.Embedding.Dimensions)
		if err != nil {
			return nil, nil, fmt.Errorf("pgvector store: %w", err)
		}
		return repo, nil, nil

	case config.DriverMemory:
		return memory.NewVectorStore(cfg.Embedding.Dimensions), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown vector store driver %q", vc.Driver)
}

func (b *backends) textBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (TextBackend, error) {
	tc := cfg.TextIndex
	switch tc.Driver {
	case config.DriverRedis:
		// a text index on the vector store's server shares its connection and flavor
		flavor := dbRedis.FlavorRedis
		if cfg.VectorStore.Driver == config.DriverValkey && slices.Equal(tc.Addrs, cfg.VectorStore.Addrs) {
			flavor = dbRedis.FlavorValkey
		}
		store, err := b.redisStore(ctx, tc.Addrs, tc.Password, flavor, cfg.VectorStore.ReadinessTimeout, logger)
		if err != nil {
			return nil, err
		}
		return textindex.New(store, tc.KeyPrefix), nil

	case config.DriverPostgres:
		conn, err := b.postgres(ctx, tc.DSN, logger)
		if err != nil {
			return nil, err
		}
		repo, err := pgtext.New(conn, tc.Table, tc.Language)
		if err != nil {
			return nil, fmt.Errorf("postgres text index: %w", err)
		}
		return repo, nil

	case config.DriverSQLite:
		conn, err := sqlite.Open(tc.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite text index: %w", err)
		}
		b.closers = append(b.closers, closeDB(conn, logger, "sqlite"))
		return sqlitefts.New(conn), nil

	case config.DriverMemory:
		return memory.NewTextIndex(), nil
	}
	return nil, fmt.Errorf("unknown text index driver %q", tc.Driver)
}

// redisStore returns a connected store, reusing one already opened for the same addresses.
func (b *backends) redisStore(
	ctx context.Context, addrs []string, password string, flavor dbRedis.Flavor, readinessSec int, logger *zap.Logger,
) (*dbRedis.Store, error) {
	key := fmt.Sprint(addrs)
	if s, ok := b.redis[key]; ok {
		return s, nil
	}

	store, err := dbRedis.NewStore(dbRedis.Config{Addrs: addrs, Password: password, Flavor: flavor})
	if err != nil {
		return nil, fmt.Errorf("create redis store: %w", err)
	}
	b.closers = append(b.closers, store.Close)

	if err := store.WaitForReady(ctx, time.Duration(readinessSec)*time.Second); err != nil {
		return nil, fmt.Errorf("redis not ready: %w", err)
	}
	logger.Info("Connected to redis", zap.Strings("addrs", addrs), zap.String("flavor", string(flavor)))

	b.redis[key] = store
	return store, nil
}

// postgres returns an open pool, reusing one already opened for the same DSN.
func (b *backends) postgres(ctx context.Context, dsn string, logger *zap.Logger) (*sql.DB, error) {
	if conn, ok := b.sqlDB[dsn]; ok {
		return conn, nil
	}
	conn, err := postgres.Open(ctx, postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	b.closers = append(b.closers, closeDB(conn, logger, "postgres"))
	logger.Info("Connected to postgres")

	b.sqlDB[dsn] = conn
	return conn, nil
}

// buildEmbedder assembles the decorator chain: provider -> Cached -> Instrumented -> Instruction.
func buildEmbedder(
	base domain.Embedder,
	ec *config.EmbeddingConfig,
	instruction string,
	kv embcache.KVStore,
	timeout time.Duration,
	logger *zap.Logger,
) domain.Embedder {
	embedder := base
	if kv != nil {
		embedder = embcache.New(base, kv, embcache.Config{
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			TTL:        time.Duration(ec.CacheTTLHours) * time.Hour,
		}, metrics.EmbeddingCacheTotal, logger)
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, ec.Provider, ec.Model, embeddinguc.Options{
		BatchSize: ec.BatchSize,
		Timeout:   timeout,
	}, logger)

	// outermost, so the cache key includes the instruction
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder
}

// buildRerankers creates the configured strategies. A strategy left unconfigured is nil and
// requests for it fall back to the fused order.
func buildRerankers(cfg *config.Config, logger *zap.Logger) (*rerank.CrossEncoder, *rerank.LLMJudge) {
	var cross *rerank.CrossEncoder
	if ce := cfg.Rerank.CrossEncoder; ce.BaseURL != "" {
		client := crossencoder.New(crossencoder.Config{
			BaseURL: ce.BaseURL,
			APIKey:  ce.APIKey,
			Model:   ce.Model,
		})
		cross = rerank.NewCrossEncoder(client, ce.MaxBatch, cfg.Timeouts.ModelLoad(), logger)
	}

	var judge *rerank.LLMJudge
	if lc := cfg.Rerank.LLM; lc.Model != "" {
		chat := openaiTransport.NewChat(&openaiTransport.ChatConfig{
			APIKey:      lc.APIKey,
			BaseURL:     lc.BaseURL,
			Model:       lc.Model,
			Temperature: lc.Temperature,
			MaxTokens:   lc.MaxTokens,
		})
		judge = rerank.NewLLMJudge(chat, lc.RequestsPerSecond)
	}

	logger.Info("Rerankers created",
		zap.Bool("cross_encoder", cross != nil),
		zap.Bool("llm", judge != nil),
	)
	return cross, judge
}

// Package vector is the Vector Store Adapter over Redis/Valkey FT vector indexes.
package vector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/codevoyager1984/math-agent/internal/db"
	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
	"github.com/codevoyager1984/math-agent/internal/repository/payload"
)

// store is the consumer interface for the vector adapter (ISP).
type store interface {
	Ping(ctx context.Context) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	DelMulti(ctx context.Context, keys []string) (int, error)
	ExistsMulti(ctx context.Context, keys []string) ([]bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, prefix string) (int, error)
}

// Hash field names.
const (
	fieldVector    = "vector"
	fieldDoc       = "doc"
	fieldCategory  = "category"
	fieldCreatedAt = "created_at"
)

// Config describes the vector index.
type Config struct {
	KeyPrefix          string // defaults to "ragserver:vec:"
	Dimensions         int
	Algorithm          db.VectorAlgorithm
	HNSWM              int
	HNSWEfConstruction int
}

// Repo stores knowledge points with their embeddings in hashes covered by an FT index.
type Repo struct {
	store  store
	prefix string
	index  string
	cfg    Config
}

// New creates a vector repository.
func New(s store, cfg Config) *Repo {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = domain.KeyPrefix + "vec:"
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = db.VectorHNSW
	}
	return &Repo{store: s, prefix: prefix, index: prefix + "idx", cfg: cfg}
}

// EnsureIndex creates the FT index when it is missing.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.index)
	if err != nil {
		return unavailable("index exists", err)
	}
	if exists {
		return nil
	}

	b := db.NewIndex(r.index).
		Prefix(r.prefix).
		Tag(fieldCategory).
		Numeric(fieldCreatedAt)
	if r.cfg.Algorithm == db.VectorFlat {
		b = b.VectorFlat(fieldVector, r.cfg.Dimensions, db.DistanceCosine, 0)
	} else {
		b = b.VectorHNSW(fieldVector, r.cfg.Dimensions, db.DistanceCosine, r.cfg.HNSWM, r.cfg.HNSWEfConstruction)
	}
	def, err := b.Build()
	if err != nil {
		return fmt.Errorf("build vector index: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return unavailable("create index", err)
	}
	return nil
}

// Upsert writes docs with their vectors and returns the ids it wrote. In insert mode ids
// already present are skipped.
func (r *Repo) Upsert(
	ctx context.Context, docs []document.Document, vectors [][]float32, mode document.WriteMode,
) ([]string, error) {
	if len(docs) != len(vectors) {
		return nil, fmt.Errorf("%w: %d documents, %d vectors", domain.ErrInvalidInput, len(docs), len(vectors))
	}
	if len(docs) == 0 {
		return nil, nil
	}
	for i := range vectors {
		if len(vectors[i]) != r.cfg.Dimensions {
			return nil, fmt.Errorf("%w: document %s has %d dims, index has %d",
				domain.ErrVectorDimMismatch, docs[i].ID(), len(vectors[i]), r.cfg.Dimensions)
		}
	}

	keys := make([]string, len(docs))
	for i := range docs {
		keys[i] = r.key(docs[i].ID())
	}

	skip := make([]bool, len(docs))
	if mode == document.WriteInsert {
		exists, err := r.store.ExistsMulti(ctx, keys)
		if err != nil {
			return nil, unavailable("exists", err)
		}
		skip = exists
	}

	items := make([]db.HashSetItem, 0, len(docs))
	written := make([]string, 0, len(docs))
	for i := range docs {
		if skip[i] {
			continue
		}
		written = append(written, docs[i].ID())
		data, err := payload.Marshal(&docs[i])
		if err != nil {
			return nil, err
		}
		md := docs[i].Metadata()
		items = append(items, db.HashSetItem{
			Key: keys[i],
			Fields: map[string]string{
				fieldVector:    vectorToBytes(vectors[i]),
				fieldDoc:       string(data),
				fieldCategory:  md.Category,
				fieldCreatedAt: strconv.FormatInt(md.CreatedAt.Unix(), 10),
			},
		})
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return nil, unavailable("hset", err)
	}
	return written, nil
}

// Delete removes ids. Missing ids are not an error.
func (r *Repo) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	if _, err := r.store.DelMulti(ctx, keys); err != nil {
		return unavailable("del", err)
	}
	return nil
}

// QueryByVector returns the k nearest documents with their raw cosine distance.
func (r *Repo) QueryByVector(ctx context.Context, vector []float32, k int) ([]result.Candidate, error) {
	if len(vector) != r.cfg.Dimensions {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d",
			domain.ErrVectorDimMismatch, len(vector), r.cfg.Dimensions)
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.index,
		VectorField:  fieldVector,
		Vector:       vector,
		K:            k,
		ReturnFields: []string{fieldDoc},
	})
	if err != nil {
		return nil, unavailable("knn search", err)
	}
	if sr == nil {
		return nil, nil
	}

	out := make([]result.Candidate, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		id := strings.TrimPrefix(e.Key, r.prefix)
		doc, err := payload.Unmarshal(id, []byte(e.Fields[fieldDoc]))
		if err != nil {
			doc = document.Reconstruct(id, "", document.Metadata{})
		}
		d := e.Score
		out = append(out, result.Candidate{ID: id, Document: doc, Distance: &d})
	}
	return out, nil
}

// Get returns a stored document.
func (r *Repo) Get(ctx context.Context, id string) (document.Document, error) {
	fields, err := r.store.HGetAll(ctx, r.key(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return document.Document{}, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
		}
		return document.Document{}, unavailable("hgetall", err)
	}
	return payload.Unmarshal(id, []byte(fields[fieldDoc]))
}

// Count returns the number of stored documents.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, r.index, r.prefix)
	if err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

// Clear removes every stored document and keeps the index.
func (r *Repo) Clear(ctx context.Context) error {
	keys, err := r.store.Scan(ctx, r.prefix+"*")
	if err != nil {
		return unavailable("scan", err)
	}
	if _, err := r.store.DelMulti(ctx, keys); err != nil {
		return unavailable("del", err)
	}
	return nil
}

// Ping checks backend connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (r *Repo) key(id string) string { return r.prefix + id }

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: vector store %s: %w", domain.ErrStoreUnavailable, op, err)
}

// Package textindex is the Text Index Adapter over Redis FT full-text indexes.
package textindex

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

// store is the consumer interface for the text adapter (ISP).
type store interface {
	Ping(ctx context.Context) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	DelMulti(ctx context.Context, keys []string) (int, error)
	ExistsMulti(ctx context.Context, keys []string) ([]bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SupportsTextSearch(ctx context.Context) bool
	SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, prefix string) (int, error)
}

// Hash field names.
const (
	fieldTitle       = "title"
	fieldDescription = "description"
	fieldQuestions   = "questions"
	fieldSolutions   = "solutions"
	fieldTags        = "tags"
	fieldContent     = "content"
	fieldCategory    = "category"
	fieldCreatedAt   = "created_at"
	fieldDoc         = "doc"
)

// Repo keeps the weighted full-text projection of knowledge points.
type Repo struct {
	store  store
	prefix string
	index  string
}

// New creates a text index repository. An empty prefix selects "ragserver:text:".
func New(s store, prefix string) *Repo {
	if prefix == "" {
		prefix = domain.KeyPrefix + "text:"
	}
	return &Repo{store: s, prefix: prefix, index: prefix + "idx"}
}

// EnsureIndex creates the FT index when it is missing.
// Returns ErrTextSearchNotSupported on backends without full-text search.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	if !r.store.SupportsTextSearch(ctx) {
		return domain.ErrTextSearchNotSupported
	}
	exists, err := r.store.IndexExists(ctx, r.index)
	if err != nil {
		return unavailable("index exists", err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(r.index).
		Prefix(r.prefix).
		WeightedText(fieldTitle, payload.WeightTitle).
		WeightedText(fieldDescription, payload.WeightDescription).
		WeightedText(fieldQuestions, payload.WeightQuestions).
		WeightedText(fieldSolutions, payload.WeightSolutions).
		WeightedText(fieldTags, payload.WeightTags).
		WeightedText(fieldContent, payload.WeightContent).
		Tag(fieldCategory).
		Numeric(fieldCreatedAt).
		Build()
	if err != nil {
		return fmt.Errorf("build text index: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return unavailable("create index", err)
	}
	return nil
}

// Upsert indexes docs and returns the ids it wrote. In insert mode ids already present are
// skipped.
func (r *Repo) Upsert(ctx context.Context, docs []document.Document, mode document.WriteMode) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
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
		f := payload.Flatten(&docs[i])
		md := docs[i].Metadata()
		items = append(items, db.HashSetItem{
			Key: keys[i],
			Fields: map[string]string{
				fieldTitle:       f.Title,
				fieldDescription: f.Description,
				fieldQuestions:   f.Questions,
				fieldSolutions:   f.Solutions,
				fieldTags:        f.Tags,
				fieldContent:     f.Content,
				fieldCategory:    md.Category,
				fieldCreatedAt:   strconv.FormatInt(md.CreatedAt.Unix(), 10),
				fieldDoc:         string(data),
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

// QueryByText runs a BM25 match of any query term and returns up to k hits with highlights.
func (r *Repo) QueryByText(ctx context.Context, text string, k int) ([]result.Candidate, error) {
	sr, err := r.store.SearchText(ctx, &db.TextQuery{
		IndexName:    r.index,
		Query:        text,
		TopK:         k,
		ReturnFields: []string{fieldDoc, fieldTitle, fieldDescription, fieldQuestions, fieldSolutions},
		Highlight: &db.Highlight{
			Fields:   []string{fieldTitle, fieldDescription, fieldQuestions, fieldSolutions},
			OpenTag:  payload.OpenTag,
			CloseTag: payload.CloseTag,
		},
	})
	if err != nil {
		if errors.Is(err, db.ErrTextSearchUnsupported) {
			return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, domain.ErrTextSearchNotSupported)
		}
		return nil, unavailable("text search", err)
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
		s := e.Score
		out = append(out, result.Candidate{
			ID:           id,
			Document:     doc,
			LexicalScore: &s,
			Highlight: payload.Highlights(
				e.Fields[fieldTitle], e.Fields[fieldDescription],
				e.Fields[fieldQuestions], e.Fields[fieldSolutions],
			),
		})
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

// Count returns the number of indexed documents.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, r.index, r.prefix)
	if err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

// Clear removes every indexed document and keeps the index.
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
	return fmt.Errorf("%w: text index %s: %w", domain.ErrStoreUnavailable, op, err)
}

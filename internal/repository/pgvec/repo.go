// Package pgvec is the Vector Store Adapter over PostgreSQL with the pgvector extension.
package pgvec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/pgvector/pgvector-go"

	"github.com/codevoyager1984/math-agent/internal/db/postgres"
	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
	"github.com/codevoyager1984/math-agent/internal/repository/payload"
)

// DefaultTable stores the knowledge point embeddings.
const DefaultTable = "kp_vectors"

var tableRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Repo stores knowledge points with their embeddings in one pgvector table.
type Repo struct {
	db    *sql.DB
	table string
	dims  int
}

// New creates a pgvector repository. An empty table selects DefaultTable.
func New(conn *sql.DB, table string, dims int) (*Repo, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableRegex.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if dims <= 0 {
		return nil, errors.New("dimensions must be positive")
	}
	return &Repo{db: conn, table: table, dims: dims}, nil
}

// Migrations returns the DDL that creates the table and its HNSW cosine index.
func (r *Repo) Migrations() []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, r.table, r.dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`,
			r.table, r.table),
	}
}

// EnsureIndex applies the migrations.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	if err := postgres.Migrate(ctx, r.db, r.Migrations()); err != nil {
		return unavailable("migrate", err)
	}
	return nil
}

func (r *Repo) upsertSQL(mode document.WriteMode) string {
	conflict := `DO NOTHING`
	if mode == document.WriteReplace {
		conflict = `DO UPDATE SET
			doc = EXCLUDED.doc,
			category = EXCLUDED.category,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at`
	}
	return fmt.Sprintf(`INSERT INTO %s (id, doc, category, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) %s`, r.table, conflict)
}

// Upsert writes docs with their vectors in one transaction and returns the ids it wrote.
// In insert mode a conflicting id affects no row and is left out.
func (r *Repo) Upsert(
	ctx context.Context, docs []document.Document, vectors [][]float32, mode document.WriteMode,
) ([]string, error) {
	if len(docs) != len(vectors) {
		return nil, fmt.Errorf("%w: %d documents, %d vectors", domain.ErrInvalidInput, len(docs), len(vectors))
	}
	for i := range vectors {
		if len(vectors[i]) != r.dims {
			return nil, fmt.Errorf("%w: document %s has %d dims, table has %d",
				domain.ErrVectorDimMismatch, docs[i].ID(), len(vectors[i]), r.dims)
		}
	}
	if len(docs) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt := r.upsertSQL(mode)
	written := make([]string, 0, len(docs))
	for i := range docs {
		data, err := payload.Marshal(&docs[i])
		if err != nil {
			return nil, err
		}
		md := docs[i].Metadata()
		res, err := tx.ExecContext(ctx, stmt,
			docs[i].ID(), data, md.Category, pgvector.NewVector(vectors[i]), md.CreatedAt, md.UpdatedAt,
		)
		if err != nil {
			return nil, unavailable("upsert", err)
		}
		if n, err := res.RowsAffected(); err != nil || n > 0 {
			written = append(written, docs[i].ID())
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit", err)
	}
	return written, nil
}

// Delete removes ids. Missing ids are not an error.
func (r *Repo) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, r.table), ids,
	); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// QueryByVector returns the k nearest documents with their cosine distance.
func (r *Repo) QueryByVector(ctx context.Context, vector []float32, k int) ([]result.Candidate, error) {
	if len(vector) != r.dims {
		return nil, fmt.Errorf("%w: query has %d dims, table has %d",
			domain.ErrVectorDimMismatch, len(vector), r.dims)
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, doc, embedding <=> $1 AS distance
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`, r.table), pgvector.NewVector(vector), k)
	if err != nil {
		return nil, unavailable("query", err)
	}
	defer func() { _ = rows.Close() }()

	var out []result.Candidate
	for rows.Next() {
		var (
			id       string
			data     []byte
			distance float64
		)
		if err := rows.Scan(&id, &data, &distance); err != nil {
			return nil, unavailable("scan", err)
		}
		doc, err := payload.Unmarshal(id, data)
		if err != nil {
			doc = document.Reconstruct(id, "", document.Metadata{})
		}
		d := distance
		out = append(out, result.Candidate{ID: id, Document: doc, Distance: &d})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("rows", err)
	}
	return out, nil
}

// Get returns a stored document.
func (r *Repo) Get(ctx context.Context, id string) (document.Document, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, r.table), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Document{}, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}
	if err != nil {
		return document.Document{}, unavailable("get", err)
	}
	return payload.Unmarshal(id, data)
}

// Count returns the number of stored documents.
func (r *Repo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, r.table)).Scan(&n); err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

// Clear removes every stored document.
func (r *Repo) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, r.table)); err != nil {
		return unavailable("clear", err)
	}
	return nil
}

// Ping checks database connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: pgvector %s: %w", domain.ErrStoreUnavailable, op, err)
}

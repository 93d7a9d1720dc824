// Package sqlitefts is the Text Index Adapter over an SQLite FTS5 virtual table.
package sqlitefts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
	"github.com/codevoyager1984/math-agent/internal/repository/payload"
)

const createTable = `CREATE VIRTUAL TABLE IF NOT EXISTS kp_fts USING fts5(
	id UNINDEXED,
	doc UNINDEXED,
	title,
	description,
	questions,
	solutions,
	tags,
	content,
	tokenize = 'unicode61'
)`

// Column indexes for highlight().
const (
	colTitle       = 2
	colDescription = 3
	colQuestions   = 4
	colSolutions   = 5
)

// Repo keeps the full-text projection of knowledge points in SQLite.
type Repo struct {
	db *sql.DB
}

// New creates an FTS5 repository on an open connection.
func New(conn *sql.DB) *Repo {
	return &Repo{db: conn}
}

// EnsureIndex creates the FTS5 table.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTable); err != nil {
		return unavailable("create table", err)
	}
	return nil
}

// Upsert indexes docs in one transaction and returns the ids it wrote. FTS5 has no unique
// key, so replace deletes the old row first and insert skips ids that are present.
func (r *Repo) Upsert(ctx context.Context, docs []document.Document, mode document.WriteMode) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	written := make([]string, 0, len(docs))
	for i := range docs {
		id := docs[i].ID()
		if mode == document.WriteInsert {
			var n int
			if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM kp_fts WHERE id = ?`, id).Scan(&n); err != nil {
				return nil, unavailable("exists", err)
			}
			if n > 0 {
				continue
			}
		} else if _, err := tx.ExecContext(ctx, `DELETE FROM kp_fts WHERE id = ?`, id); err != nil {
			return nil, unavailable("delete", err)
		}

		data, err := payload.Marshal(&docs[i])
		if err != nil {
			return nil, err
		}
		f := payload.Flatten(&docs[i])
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kp_fts (id, doc, title, description, questions, solutions, tags, content)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, string(data), f.Title, f.Description, f.Questions, f.Solutions, f.Tags, f.Content,
		); err != nil {
			return nil, unavailable("insert", err)
		}
		written = append(written, id)
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
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := `DELETE FROM kp_fts WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// matchExpr ORs the quoted query terms.
func matchExpr(text string) string {
	terms := payload.Terms(text)
	for i, t := range terms {
		terms[i] = `"` + t + `"`
	}
	return strings.Join(terms, " OR ")
}

func searchSQL() string {
	hl := func(col int) string {
		return fmt.Sprintf(`highlight(kp_fts, %d, '%s', '%s')`, col, payload.OpenTag, payload.CloseTag)
	}
	// bm25 weights follow column order; id and doc are unindexed.
	return fmt.Sprintf(`SELECT id, doc, bm25(kp_fts, 0, 0, %g, %g, %g, %g, %g, %g) AS score, %s, %s, %s, %s
		FROM kp_fts
		WHERE kp_fts MATCH ?
		ORDER BY score, id
		LIMIT ?`,
		payload.WeightTitle, payload.WeightDescription, payload.WeightQuestions,
		payload.WeightSolutions, payload.WeightTags, payload.WeightContent,
		hl(colTitle), hl(colDescription), hl(colQuestions), hl(colSolutions))
}

// QueryByText matches any query term and returns up to k hits ranked by BM25.
// FTS5 reports bm25 as a negative number (lower is better); LexicalScore is its negation.
func (r *Repo) QueryByText(ctx context.Context, text string, k int) ([]result.Candidate, error) {
	expr := matchExpr(text)
	if expr == "" {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, searchSQL(), expr, k)
	if err != nil {
		return nil, unavailable("query", err)
	}
	defer func() { _ = rows.Close() }()

	var out []result.Candidate
	for rows.Next() {
		var (
			id, data, title, desc, questions, solutions string
			bm25                                        float64
		)
		if err := rows.Scan(&id, &data, &bm25, &title, &desc, &questions, &solutions); err != nil {
			return nil, unavailable("scan", err)
		}
		doc, err := payload.Unmarshal(id, []byte(data))
		if err != nil {
			doc = document.Reconstruct(id, "", document.Metadata{})
		}
		s := -bm25
		out = append(out, result.Candidate{
			ID:           id,
			Document:     doc,
			LexicalScore: &s,
			Highlight:    payload.Highlights(title, desc, questions, solutions),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("rows", err)
	}
	return out, nil
}

// Get returns a stored document.
func (r *Repo) Get(ctx context.Context, id string) (document.Document, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT doc FROM kp_fts WHERE id = ? LIMIT 1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Document{}, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}
	if err != nil {
		return document.Document{}, unavailable("get", err)
	}
	return payload.Unmarshal(id, []byte(data))
}

// Count returns the number of indexed documents.
func (r *Repo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM kp_fts`).Scan(&n); err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

// Clear removes every indexed document.
func (r *Repo) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kp_fts`); err != nil {
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
	return fmt.Errorf("%w: sqlite fts %s: %w", domain.ErrStoreUnavailable, op, err)
}

// Package pgtext is the Text Index Adapter over PostgreSQL full-text search.
package pgtext

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/codevoyager1984/math-agent/internal/db/postgres"
	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
	"github.com/codevoyager1984/math-agent/internal/repository/payload"
)

// Defaults.
const (
	DefaultTable    = "kp_text"
	DefaultLanguage = "simple"
)

// rankWeights are the ts_rank weights for classes {D, C, B, A}: content and solutions,
// tags, description and questions, title.
const rankWeights = `'{0.2, 0.3, 0.4, 0.6}'`

var identRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Repo keeps the weighted tsvector projection of knowledge points.
type Repo struct {
	db       *sql.DB
	table    string
	language string
}

// New creates a text repository. language names a text search configuration
// ("simple", "english", ...).
func New(conn *sql.DB, table, language string) (*Repo, error) {
	if table == "" {
		table = DefaultTable
	}
	if language == "" {
		language = DefaultLanguage
	}
	if !identRegex.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if !identRegex.MatchString(language) {
		return nil, fmt.Errorf("invalid text search configuration %q", language)
	}
	return &Repo{db: conn, table: table, language: language}, nil
}

func (r *Repo) cfg() string { return "'" + r.language + "'::regconfig" }

// Migrations returns the DDL that creates the table, its generated tsvector and the GIN index.
func (r *Repo) Migrations() []string {
	c := r.cfg()
	tsv := fmt.Sprintf(`setweight(to_tsvector(%[1]s, title), 'A') ||
			setweight(to_tsvector(%[1]s, description), 'B') ||
			setweight(to_tsvector(%[1]s, questions), 'B') ||
			setweight(to_tsvector(%[1]s, tags), 'C') ||
			setweight(to_tsvector(%[1]s, solutions), 'D') ||
			setweight(to_tsvector(%[1]s, content), 'D')`, c)
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			questions TEXT NOT NULL DEFAULT '',
			solutions TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			tsv tsvector GENERATED ALWAYS AS (%s) STORED
		)`, r.table, tsv),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_tsv_idx ON %s USING gin (tsv)`, r.table, r.table),
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
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			questions = EXCLUDED.questions,
			solutions = EXCLUDED.solutions,
			tags = EXCLUDED.tags,
			content = EXCLUDED.content,
			category = EXCLUDED.category`
	}
	return fmt.Sprintf(`INSERT INTO %s (id, doc, title, description, questions, solutions, tags, content, category)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) %s`, r.table, conflict)
}

// Upsert indexes docs in one transaction and returns the ids it wrote.
func (r *Repo) Upsert(ctx context.Context, docs []document.Document, mode document.WriteMode) ([]string, error) {
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
		f := payload.Flatten(&docs[i])
		md := docs[i].Metadata()
		res, err := tx.ExecContext(ctx, stmt,
			docs[i].ID(), data, f.Title, f.Description, f.Questions, f.Solutions, f.Tags, f.Content, md.Category,
		)
		if err != nil {
			return nil, unavailable("upsert", err)
		}
		// An unknown count is treated as written so that compensation still reaches the row.
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

// tsQuery ORs the terms of text. Terms are letter/digit runs, so they carry no
// tsquery operators.
func tsQuery(text string) string {
	return strings.Join(payload.Terms(text), " | ")
}

func (r *Repo) searchSQL() string {
	c := r.cfg()
	hl := fmt.Sprintf(`'StartSel=%s, StopSel=%s, HighlightAll=true'`, payload.OpenTag, payload.CloseTag)
	return fmt.Sprintf(`
		SELECT id, doc, ts_rank(%[3]s, tsv, q) AS rank,
			ts_headline(%[2]s, title, q, %[4]s),
			ts_headline(%[2]s, description, q, %[4]s),
			ts_headline(%[2]s, questions, q, %[4]s),
			ts_headline(%[2]s, solutions, q, %[4]s)
		FROM %[1]s, to_tsquery(%[2]s, $1) q
		WHERE tsv @@ q
		ORDER BY rank DESC, id
		LIMIT $2`, r.table, c, rankWeights, hl)
}

// QueryByText matches any query term and returns up to k hits ranked by ts_rank.
func (r *Repo) QueryByText(ctx context.Context, text string, k int) ([]result.Candidate, error) {
	q := tsQuery(text)
	if q == "" {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, r.searchSQL(), q, k)
	if err != nil {
		return nil, unavailable("query", err)
	}
	defer func() { _ = rows.Close() }()

	var out []result.Candidate
	for rows.Next() {
		var (
			id, title, desc, questions, solutions string
			data                                  []byte
			rank                                  float64
		)
		if err := rows.Scan(&id, &data, &rank, &title, &desc, &questions, &solutions); err != nil {
			return nil, unavailable("scan", err)
		}
		doc, err := payload.Unmarshal(id, data)
		if err != nil {
			doc = document.Reconstruct(id, "", document.Metadata{})
		}
		s := rank
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

// Count returns the number of indexed documents.
func (r *Repo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, r.table)).Scan(&n); err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

// Clear removes every indexed document.
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
	return fmt.Errorf("%w: postgres text %s: %w", domain.ErrStoreUnavailable, op, err)
}

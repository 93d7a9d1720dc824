package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/redis/rueidis"

	"github.com/codevoyager1984/math-agent/internal/db"
)

// SearchKNN runs a KNN vector similarity search via FT.SEARCH.
// Entry scores are the raw __vector_score distances; the caller decides how to map them.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	field := q.VectorField
	if field == "" {
		field = "vector"
	}
	queryStr := fmt.Sprintf("*=>[KNN %d @%s $BLOB]", q.K, field)

	args := []string{q.IndexName, queryStr}

	if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)+1))
		args = append(args, q.ReturnFields...)
		args = append(args, "__vector_score")
	}

	args = append(args,
		"SORTBY", "__vector_score",
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", vectorToBytes(q.Vector),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return parseKNNResult(raw)
}

// SearchText runs a BM25 full-text search via FT.SEARCH, matching any query term in any
// TEXT field. Field weights come from the index schema.
func (s *Store) SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	if !s.SupportsTextSearch(ctx) {
		return nil, db.ErrTextSearchUnsupported
	}
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.TopK <= 0 {
		return nil, fmt.Errorf("topK must be positive")
	}

	queryStr := buildTextQuery(q.Query)
	if queryStr == "" {
		return &db.SearchResult{}, nil
	}

	args := []string{q.IndexName, queryStr}

	if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)))
		args = append(args, q.ReturnFields...)
	}

	if h := q.Highlight; h != nil && len(h.Fields) > 0 {
		args = append(args, "HIGHLIGHT", "FIELDS", strconv.Itoa(len(h.Fields)))
		args = append(args, h.Fields...)
		if h.OpenTag != "" && h.CloseTag != "" {
			args = append(args, "TAGS", h.OpenTag, h.CloseTag)
		}
	}

	args = append(args,
		"WITHSCORES",
		"LIMIT", "0", strconv.Itoa(q.TopK),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return parseTextResult(raw)
}

// SearchCount returns the number of indexed documents. valkey-search does not support a
// bare "*" query, so the count falls back to SCAN over the key prefix.
func (s *Store) SearchCount(ctx context.Context, index, prefix string) (int, error) {
	if s.flavor == FlavorValkey {
		keys, err := s.Scan(ctx, prefix+"*")
		if err != nil {
			return 0, fmt.Errorf("scan for count: %w", err)
		}
		return len(keys), nil
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(index, "*", "LIMIT", "0", "0").Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return 0, &db.Error{Op: db.OpSearch, Err: err}
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(total), nil
}

// --- Result parsing ---

func parseKNNResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, total)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entry := db.SearchEntry{
			Key:    key,
			Fields: parseFieldPairs(fields),
		}

		scoreStr, ok := entry.Fields["__vector_score"]
		if !ok {
			continue
		}
		d, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}
		entry.Score = d
		delete(entry.Fields, "__vector_score")

		entries = append(entries, entry)
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseTextResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, total)
	// 3-stride: [total, key1, score1, fields1, key2, score2, fields2, ...]
	for i := 1; i+2 < len(raw); i += 3 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		scoreStr, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}

		fields, err := raw[i+2].ToArray()
		if err != nil {
			continue
		}

		entries = append(entries, db.SearchEntry{
			Key:    key,
			Score:  score,
			Fields: parseFieldPairs(fields),
		})
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Query helpers ---

// buildTextQuery turns free text into a union of its terms: "(a|b|c)".
// Terms are runs of letters and digits, so no query syntax survives tokenization.
func buildTextQuery(text string) string {
	terms := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(terms) == 0 {
		return ""
	}

	seen := make(map[string]struct{}, len(terms))
	uniq := terms[:0]
	for _, t := range terms {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		uniq = append(uniq, t)
	}
	return "(" + strings.Join(uniq, "|") + ")"
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
	"github.com/codevoyager1984/math-agent/internal/repository/payload"
)

// BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

type textEntry struct {
	doc    document.Document
	fields payload.Fields
	tf     map[string]float64 // weighted term frequency
	length float64            // weighted token count
}

// TextIndex is a field-weighted BM25 index.
type TextIndex struct {
	mu   sync.RWMutex
	docs map[string]*textEntry
}

// NewTextIndex creates an empty index.
func NewTextIndex() *TextIndex {
	return &TextIndex{docs: make(map[string]*textEntry)}
}

// EnsureIndex is a no-op.
func (x *TextIndex) EnsureIndex(context.Context) error { return nil }

func newTextEntry(doc *document.Document) *textEntry {
	f := payload.Flatten(doc)
	e := &textEntry{doc: *doc, fields: f, tf: make(map[string]float64)}
	add := func(text string, w float64) {
		for _, tok := range tokens(text) {
			e.tf[tok] += w
			e.length += w
		}
	}
	add(f.Title, payload.WeightTitle)
	add(f.Description, payload.WeightDescription)
	add(f.Questions, payload.WeightQuestions)
	add(f.Solutions, payload.WeightSolutions)
	add(f.Tags, payload.WeightTags)
	add(f.Content, payload.WeightContent)
	return e
}

// Upsert indexes docs and returns the ids it wrote. In insert mode ids already present are
// skipped.
func (x *TextIndex) Upsert(_ context.Context, docs []document.Document, mode document.WriteMode) ([]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	written := make([]string, 0, len(docs))
	for i := range docs {
		id := docs[i].ID()
		if _, ok := x.docs[id]; ok && mode == document.WriteInsert {
			continue
		}
		x.docs[id] = newTextEntry(&docs[i])
		written = append(written, id)
	}
	return written, nil
}

// Delete removes ids.
func (x *TextIndex) Delete(_ context.Context, ids []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range ids {
		delete(x.docs, id)
	}
	return nil
}

// QueryByText scores every document matching at least one query term with BM25 and
// returns the best k, ties broken by id.
func (x *TextIndex) QueryByText(_ context.Context, text string, k int) ([]result.Candidate, error) {
	terms := payload.Terms(text)
	if len(terms) == 0 {
		return nil, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	n := float64(len(x.docs))
	if n == 0 {
		return nil, nil
	}
	var total float64
	df := make(map[string]float64, len(terms))
	for _, e := range x.docs {
		total += e.length
		for _, t := range terms {
			if e.tf[t] > 0 {
				df[t]++
			}
		}
	}
	avg := total / n
	if avg == 0 {
		avg = 1
	}

	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}

	var out []result.Candidate
	for id, e := range x.docs {
		var s float64
		for _, t := range terms {
			tf := e.tf[t]
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + (n-df[t]+0.5)/(df[t]+0.5))
			s += idf * tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*e.length/avg))
		}
		if s <= 0 {
			continue
		}
		score := s
		out = append(out, result.Candidate{
			ID:           id,
			Document:     e.doc,
			LexicalScore: &score,
			Highlight: payload.Highlights(
				mark(e.fields.Title, set), mark(e.fields.Description, set),
				mark(e.fields.Questions, set), mark(e.fields.Solutions, set),
			),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if *out[i].LexicalScore != *out[j].LexicalScore {
			return *out[i].LexicalScore > *out[j].LexicalScore
		}
		return out[i].ID < out[j].ID
	})
	if k >= 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Get returns an indexed document.
func (x *TextIndex) Get(_ context.Context, id string) (document.Document, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.docs[id]
	if !ok {
		return document.Document{}, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}
	return e.doc, nil
}

// Count returns the number of indexed documents.
func (x *TextIndex) Count(context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs), nil
}

// Clear removes every document.
func (x *TextIndex) Clear(context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.docs = make(map[string]*textEntry)
	return nil
}

// Ping always succeeds.
func (x *TextIndex) Ping(context.Context) error { return nil }

func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), isSeparator)
}

// mark wraps every token of text found in terms with the highlight tags.
func mark(text string, terms map[string]struct{}) string {
	var b strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); {
		if isSeparator(runes[i]) {
			b.WriteRune(runes[i])
			i++
			continue
		}
		j := i
		for j < len(runes) && !isSeparator(runes[j]) {
			j++
		}
		word := string(runes[i:j])
		if _, ok := terms[strings.ToLower(word)]; ok {
			b.WriteString(payload.OpenTag + word + payload.CloseTag)
		} else {
			b.WriteString(word)
		}
		i = j
	}
	return b.String()
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

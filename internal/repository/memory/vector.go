// Package memory holds in-process implementations of the vector store and the text index
// for local development and tests.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
)

type vectorEntry struct {
	doc    document.Document
	vector []float32
}

// VectorStore is a brute-force cosine vector store.
type VectorStore struct {
	mu   sync.RWMutex
	dims int
	docs map[string]vectorEntry
}

// NewVectorStore creates an empty store for vectors of dims dimensions.
func NewVectorStore(dims int) *VectorStore {
	return &VectorStore{dims: dims, docs: make(map[string]vectorEntry)}
}

// EnsureIndex is a no-op.
func (s *VectorStore) EnsureIndex(context.Context) error { return nil }

// Upsert stores docs with their vectors and returns the ids it wrote. In insert mode ids
// already present are skipped.
func (s *VectorStore) Upsert(
	_ context.Context, docs []document.Document, vectors [][]float32, mode document.WriteMode,
) ([]string, error) {
	if len(docs) != len(vectors) {
		return nil, fmt.Errorf("%w: %d documents, %d vectors", domain.ErrInvalidInput, len(docs), len(vectors))
	}
	for i := range vectors {
		if len(vectors[i]) != s.dims {
			return nil, fmt.Errorf("%w: document %s has %d dims, store has %d",
				domain.ErrVectorDimMismatch, docs[i].ID(), len(vectors[i]), s.dims)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	written := make([]string, 0, len(docs))
	for i := range docs {
		id := docs[i].ID()
		if _, ok := s.docs[id]; ok && mode == document.WriteInsert {
			continue
		}
		s.docs[id] = vectorEntry{doc: docs[i], vector: append([]float32(nil), vectors[i]...)}
		written = append(written, id)
	}
	return written, nil
}

// Delete removes ids.
func (s *VectorStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.docs, id)
	}
	return nil
}

// QueryByVector returns the k nearest documents by cosine distance, ties broken by id.
func (s *VectorStore) QueryByVector(_ context.Context, vector []float32, k int) ([]result.Candidate, error) {
	if len(vector) != s.dims {
		return nil, fmt.Errorf("%w: query has %d dims, store has %d", domain.ErrVectorDimMismatch, len(vector), s.dims)
	}

	s.mu.RLock()
	out := make([]result.Candidate, 0, len(s.docs))
	for id, e := range s.docs {
		d := CosineDistance(vector, e.vector)
		out = append(out, result.Candidate{ID: id, Document: e.doc, Distance: &d})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if *out[i].Distance != *out[j].Distance {
			return *out[i].Distance < *out[j].Distance
		}
		return out[i].ID < out[j].ID
	})
	if k >= 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Get returns a stored document.
func (s *VectorStore) Get(_ context.Context, id string) (document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[id]
	if !ok {
		return document.Document{}, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}
	return e.doc, nil
}

// Count returns the number of stored documents.
func (s *VectorStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// Clear removes every document.
func (s *VectorStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]vectorEntry)
	return nil
}

// Ping always succeeds.
func (s *VectorStore) Ping(context.Context) error { return nil }

// CosineDistance returns 1 - cos(a, b). A zero vector is at distance 1 from everything.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

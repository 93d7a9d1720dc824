package ingest

import (
	"context"

	"github.com/codevoyager1984/math-agent/internal/domain/document"
)

// VectorStore is the write side of the vector store adapter. Upsert returns the ids it
// wrote, which in insert mode leaves out ids already present.
type VectorStore interface {
	Upsert(ctx context.Context, docs []document.Document, vectors [][]float32, mode document.WriteMode) ([]string, error)
	Delete(ctx context.Context, ids []string) error
	Clear(ctx context.Context) error
}

// TextIndex is the write side of the text index adapter.
type TextIndex interface {
	Upsert(ctx context.Context, docs []document.Document, mode document.WriteMode) ([]string, error)
	Delete(ctx context.Context, ids []string) error
	Clear(ctx context.Context) error
}

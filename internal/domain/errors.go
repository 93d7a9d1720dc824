package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput signals a document or query that failed validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")

	// ErrStoreUnavailable signals that a vector store or text index could not serve the call.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEmbeddingFailure signals an embedding provider failure.
	ErrEmbeddingFailure = errors.New("embedding failure")
	// ErrRerankFailure signals a failed rerank model call. Never fatal for a query.
	ErrRerankFailure = errors.New("rerank failure")
	// ErrParseFailure signals malformed structured output from the LLM judge.
	ErrParseFailure = errors.New("parse failure")
	// ErrPartialWrite signals that only one of the two stores accepted a write.
	ErrPartialWrite = errors.New("partial write failure")
	// ErrTextSearchNotSupported signals that the configured backend lacks full-text search.
	ErrTextSearchNotSupported = errors.New("text search not supported by backend")
)

// PartialWriteError describes a dual write where exactly one store succeeded.
// Compensated lists the ids rolled back; ids the succeeded store skipped are not among them.
// CompensationErr is set when the compensating delete against the succeeded store also failed,
// which leaves the document retrievable from that store until a reconciliation sweep.
type PartialWriteError struct {
	Succeeded       string
	Failed          string
	IDs             []string
	Compensated     []string
	Err             error
	CompensationErr error
}

func (e *PartialWriteError) Error() string {
	if e.CompensationErr != nil {
		return fmt.Sprintf("%s (%v; compensation: %v)", e.Summary(), e.Err, e.CompensationErr)
	}
	return fmt.Sprintf("%s (%v)", e.Summary(), e.Err)
}

// Summary describes the outcome without the underlying store errors.
func (e *PartialWriteError) Summary() string {
	if e.CompensationErr != nil {
		return fmt.Sprintf("%s: %s write failed, compensation on %s failed",
			ErrPartialWrite.Error(), e.Failed, e.Succeeded)
	}
	return fmt.Sprintf("%s: %s write failed, %s write compensated",
		ErrPartialWrite.Error(), e.Failed, e.Succeeded)
}

func (e *PartialWriteError) Unwrap() []error {
	return []error{ErrPartialWrite, e.Err}
}

package mathagent

import "github.com/codevoyager1984/math-agent/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidInput           = domain.ErrInvalidInput
	ErrDocumentNotFound       = domain.ErrDocumentNotFound
	ErrVectorDimMismatch      = domain.ErrVectorDimMismatch
	ErrStoreUnavailable       = domain.ErrStoreUnavailable
	ErrEmbeddingFailure       = domain.ErrEmbeddingFailure
	ErrPartialWrite           = domain.ErrPartialWrite
	ErrTextSearchNotSupported = domain.ErrTextSearchNotSupported
)

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned by extractors for file types they do not handle.
	ErrUnsupported = errors.New("unsupported file type")

	// ErrEmbedding indicates the embedding provider failed or is unavailable.
	ErrEmbedding = errors.New("embedding failed")

	// ErrIndexNotReady is returned when searching an index that was never built.
	ErrIndexNotReady = errors.New("index not ready")

	// ErrInvalidQuery indicates a malformed k or threshold.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrDimensionMismatch indicates a vector of the wrong length for the index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrNotFound indicates a requested entry does not exist.
	ErrNotFound = errors.New("not found")
)

// ExtractionError wraps a per-document extraction failure.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

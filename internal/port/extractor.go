package port

import (
	"context"

	"smartindex/internal/domain"
)

// Extractor turns a file into a Document.
// Unhandled file types return domain.ErrUnsupported; any other failure is
// a *domain.ExtractionError.
type Extractor interface {
	Extract(ctx context.Context, path string) (domain.Document, error)
}

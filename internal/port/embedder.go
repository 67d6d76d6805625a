package port

import "context"

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embeddings for the given texts.
	// Returns a slice of vectors, one per input text. Empty texts still
	// yield a vector of the full dimension.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorStore stores and searches embedding vectors by squared L2 distance.
type VectorStore interface {
	// Upsert adds vectors, replacing any existing entry with the same ID.
	Upsert(ctx context.Context, items []VectorItem) error

	// Search finds the k nearest vectors to the query, nearest first.
	Search(ctx context.Context, query []float32, k int) ([]VectorResult, error)

	// Delete removes vectors by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of vectors in the store.
	Count(ctx context.Context) (int, error)

	// Get returns the stored entry for id, or domain.ErrNotFound. Remote
	// stores may leave Vector empty.
	Get(ctx context.Context, id string) (VectorItem, error)

	// IDs lists every stored ID in ascending order.
	IDs(ctx context.Context) ([]string, error)

	// Clear removes every vector and resets readiness.
	Clear(ctx context.Context) error

	// Ready reports whether a build has completed against this store.
	Ready(ctx context.Context) (bool, error)

	// MarkReady records that the store holds a usable index.
	MarkReady(ctx context.Context) error

	Close() error
}

// VectorItem represents a vector to be stored.
type VectorItem struct {
	ID       string            // Source path
	Vector   []float32         // Embedding vector
	Content  string            // Extracted document text
	Metadata map[string]string // Optional metadata
}

// VectorResult represents a search result.
type VectorResult struct {
	ID       string
	Content  string
	Metadata map[string]string
	Distance float64 // Squared L2 distance (lower is nearer)
}

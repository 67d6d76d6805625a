package usecase

import (
	"context"
	"errors"
	"fmt"

	"smartindex/internal/domain"
	"smartindex/internal/port"
)

// embedOne embeds a single text. It is the per-item form of
// port.Embedder.Embed and shares its semantics.
func embedOne(ctx context.Context, e port.Embedder, text string) ([]float32, error) {
	vecs, err := embedMany(ctx, e, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func embedMany(ctx context.Context, e port.Embedder, texts []string) ([][]float32, error) {
	vecs, err := e.Embed(ctx, texts)
	if err != nil {
		return nil, embeddingError(err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: provider returned %d vectors for %d texts", domain.ErrEmbedding, len(vecs), len(texts))
	}
	return vecs, nil
}

func embeddingError(err error) error {
	if errors.Is(err, domain.ErrEmbedding) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
}

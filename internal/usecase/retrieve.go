package usecase

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"smartindex/internal/domain"
	"smartindex/internal/port"
)

const DefaultPreviewChars = 500

// RetrieveUseCase answers natural-language queries against a vector index.
type RetrieveUseCase struct {
	store        port.VectorStore
	embedder     port.Embedder
	previewChars int
	logger       logrus.FieldLogger
}

func NewRetrieveUseCase(
	store port.VectorStore,
	embedder port.Embedder,
	previewChars int,
	logger logrus.FieldLogger,
) *RetrieveUseCase {
	if previewChars <= 0 {
		previewChars = DefaultPreviewChars
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RetrieveUseCase{
		store:        store,
		embedder:     embedder,
		previewChars: previewChars,
		logger:       logger,
	}
}

// Search returns up to k documents whose similarity to query is strictly
// above threshold, best first. Similarity is 1 - d/2 for the squared L2
// distance d between unit vectors.
func (u *RetrieveUseCase) Search(ctx context.Context, query string, k int, threshold float64) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidQuery, k)
	}
	if math.IsNaN(threshold) || threshold < -1 || threshold > 1 {
		return nil, fmt.Errorf("%w: threshold must be within [-1, 1], got %v", domain.ErrInvalidQuery, threshold)
	}

	if strings.TrimSpace(query) == "" {
		return []domain.SearchResult{}, nil
	}

	ready, err := u.store.Ready(ctx)
	if err != nil {
		return nil, fmt.Errorf("check index: %w", err)
	}
	if !ready {
		return nil, domain.ErrIndexNotReady
	}

	vec, err := embedOne(ctx, u.embedder, query)
	if err != nil {
		return nil, err
	}

	hits, err := u.store.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(hits))
	for _, hit := range hits {
		sim := 1 - hit.Distance/2
		if !(sim > threshold) {
			continue
		}
		source := hit.ID
		if s, ok := hit.Metadata[domain.MetaSource]; ok && s != "" {
			source = s
		}
		results = append(results, domain.SearchResult{
			Source:      source,
			Similarity:  sim,
			Content:     Preview(hit.Content, u.previewChars),
			Explanation: Explain(source, sim),
			Metadata:    hit.Metadata,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	u.logger.WithFields(logrus.Fields{
		"k":         k,
		"threshold": threshold,
		"hits":      len(hits),
		"results":   len(results),
	}).Debug("search completed")

	return results, nil
}

// Stats reports the size and readiness of the index.
func (u *RetrieveUseCase) Stats(ctx context.Context) (domain.IndexStats, error) {
	n, err := u.store.Count(ctx)
	if err != nil {
		return domain.IndexStats{}, err
	}
	ready, err := u.store.Ready(ctx)
	if err != nil {
		return domain.IndexStats{}, err
	}
	return domain.IndexStats{
		Documents: n,
		Ready:     ready,
		Model:     u.embedder.ModelName(),
		Dimension: u.embedder.Dimension(),
	}, nil
}

// Explain renders the human-readable reason for a match.
func Explain(source string, similarity float64) string {
	return fmt.Sprintf("Found information in file: %s (Relevance: %.2f)", filepath.Base(source), similarity)
}

// Preview returns the first n runes of text, with "..." appended when
// anything was cut.
func Preview(text string, n int) string {
	count := 0
	for i := range text {
		if count == n {
			return text[:i] + "..."
		}
		count++
	}
	return text
}

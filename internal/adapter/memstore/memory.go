package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"smartindex/internal/domain"
	"smartindex/internal/port"
)

// VectorIndex is a flat in-memory vector index searched by brute force.
// Entries are keyed by ID; re-adding an ID replaces the previous entry.
type VectorIndex struct {
	mu        sync.RWMutex
	initDim   int
	dimension int
	entries   map[string]port.VectorItem
	ready     bool
}

// NewVectorIndex creates an empty index. A dimension of 0 is fixed by the
// first inserted vector.
func NewVectorIndex(dimension int) *VectorIndex {
	return &VectorIndex{
		initDim:   dimension,
		dimension: dimension,
		entries:   make(map[string]port.VectorItem),
	}
}

func (s *VectorIndex) Upsert(_ context.Context, items []port.VectorItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := s.check(items)
	if err != nil {
		return err
	}
	s.dimension = dim
	for _, item := range items {
		s.entries[item.ID] = copyItem(item)
	}
	return nil
}

// Validate reports whether items could be inserted without changing the
// index. Persistent stores call it before writing to disk.
func (s *VectorIndex) Validate(items []port.VectorItem) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := s.check(items)
	return err
}

func (s *VectorIndex) check(items []port.VectorItem) (int, error) {
	dim := s.dimension
	for _, item := range items {
		if item.ID == "" {
			return 0, errors.New("vector item has empty id")
		}
		if dim == 0 {
			dim = len(item.Vector)
		}
		if len(item.Vector) != dim {
			return 0, fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, dim, len(item.Vector))
		}
	}
	return dim, nil
}

func (s *VectorIndex) Search(_ context.Context, query []float32, k int) ([]port.VectorResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidQuery, k)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return []port.VectorResult{}, nil
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", domain.ErrDimensionMismatch, len(query), s.dimension)
	}

	scored := make([]port.VectorResult, 0, len(s.entries))
	for id, entry := range s.entries {
		scored = append(scored, port.VectorResult{
			ID:       id,
			Content:  entry.Content,
			Metadata: copyMetadata(entry.Metadata),
			Distance: SquaredL2(query, entry.Vector),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Distance != scored[j].Distance {
			return scored[i].Distance < scored[j].Distance
		}
		return scored[i].ID < scored[j].ID
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

func (s *VectorIndex) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.entries, id)
	}
	return nil
}

func (s *VectorIndex) IDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *VectorIndex) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *VectorIndex) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]port.VectorItem)
	s.dimension = s.initDim
	s.ready = false
	return nil
}

func (s *VectorIndex) Ready(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready, nil
}

func (s *VectorIndex) MarkReady(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	return nil
}

// Get returns the stored entry for id.
func (s *VectorIndex) Get(_ context.Context, id string) (port.VectorItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return port.VectorItem{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return copyItem(entry), nil
}

// Dimension returns the fixed vector length, or 0 if none has been set.
func (s *VectorIndex) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *VectorIndex) Close() error {
	return nil
}

// SquaredL2 returns the squared Euclidean distance between two vectors of
// equal length.
func SquaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

func copyItem(item port.VectorItem) port.VectorItem {
	vec := make([]float32, len(item.Vector))
	copy(vec, item.Vector)
	return port.VectorItem{
		ID:       item.ID,
		Vector:   vec,
		Content:  item.Content,
		Metadata: copyMetadata(item.Metadata),
	}
}

func copyMetadata(meta map[string]string) map[string]string {
	if meta == nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

var _ port.VectorStore = (*VectorIndex)(nil)

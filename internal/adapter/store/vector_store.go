package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"smartindex/internal/adapter/memstore"
	"smartindex/internal/port"
)

var (
	bucketVectors = []byte("vectors")
	bucketMeta    = []byte("meta")
)

// BoltVectorStore implements VectorStore using BoltDB for persistence.
// All entries are mirrored in an in-memory flat index that serves searches.
type BoltVectorStore struct {
	db    *bbolt.DB
	mu    sync.Mutex // serialises writes across bolt and the cache
	cache *memstore.VectorIndex
}

type storedVector struct {
	Vector   []float32         `json:"v"`
	Content  string            `json:"c,omitempty"`
	Metadata map[string]string `json:"m,omitempty"`
}

// Open opens (or creates) the vector database at path and loads existing
// vectors into memory. dimension may be 0 to accept whatever was stored.
func Open(path string, dimension int) (*BoltVectorStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketVectors, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltVectorStore{
		db:    db,
		cache: memstore.NewVectorIndex(dimension),
	}

	if err := s.loadVectors(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}

	return s, nil
}

// loadVectors loads all vectors from BoltDB into memory.
func (s *BoltVectorStore) loadVectors() error {
	var items []port.VectorItem
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).ForEach(func(k, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return nil // Skip corrupted entries
			}
			items = append(items, port.VectorItem{
				ID:       string(k),
				Vector:   stored.Vector,
				Content:  stored.Content,
				Metadata: stored.Metadata,
			})
			return nil
		})
	})
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := s.cache.Upsert(ctx, items); err != nil {
		return err
	}

	ready, err := s.readFlag(keyReady)
	if err != nil {
		return err
	}
	if ready {
		return s.cache.MarkReady(ctx)
	}
	return nil
}

// Upsert adds or replaces vectors in the store.
func (s *BoltVectorStore) Upsert(ctx context.Context, items []port.VectorItem) error {
	if len(items) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cache.Validate(items); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		for _, item := range items {
			data, err := json.Marshal(storedVector{
				Vector:   item.Vector,
				Content:  item.Content,
				Metadata: item.Metadata,
			})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(item.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist vectors: %w", err)
	}

	return s.cache.Upsert(ctx, items)
}

// Search finds the k nearest vectors to the query.
func (s *BoltVectorStore) Search(ctx context.Context, query []float32, k int) ([]port.VectorResult, error) {
	return s.cache.Search(ctx, query, k)
}

// Delete removes vectors by their IDs.
func (s *BoltVectorStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, ids)
}

// IDs walks the vectors bucket; bolt keeps keys in byte order.
func (s *BoltVectorStore) IDs(_ context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Count returns the number of vectors in the store.
func (s *BoltVectorStore) Count(ctx context.Context) (int, error) {
	return s.cache.Count(ctx)
}

func (s *BoltVectorStore) Ready(ctx context.Context) (bool, error) {
	return s.cache.Ready(ctx)
}

func (s *BoltVectorStore) MarkReady(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeFlag(keyReady, true); err != nil {
		return err
	}
	return s.cache.MarkReady(ctx)
}

// Get returns a single stored entry.
func (s *BoltVectorStore) Get(ctx context.Context, id string) (port.VectorItem, error) {
	return s.cache.Get(ctx, id)
}

func (s *BoltVectorStore) Close() error {
	return s.db.Close()
}

var _ port.VectorStore = (*BoltVectorStore)(nil)

package milvus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"github.com/sirupsen/logrus"

	"smartindex/internal/domain"
	"smartindex/internal/port"
)

const (
	FieldID       = "id"
	FieldContent  = "content"
	FieldMetadata = "metadata"
	FieldVector   = "vector"

	DefaultCollection = "smartindex_documents"

	maxVarCharBytes = 65535
	maxIDBytes      = 4096
)

type Config struct {
	Address    string
	Collection string
	Dimension  int
}

// Store keeps vectors in a Milvus collection with an HNSW index over
// squared L2 distance.
type Store struct {
	client     *milvusclient.Client
	collection string
	dimension  int
	logger     logrus.FieldLogger

	mu    sync.Mutex
	built bool
}

func Open(ctx context.Context, cfg Config, logger logrus.FieldLogger) (*Store, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("milvus store needs a positive dimension, got %d", cfg.Dimension)
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("connect to milvus at %s: %w", cfg.Address, err)
	}

	s := &Store{
		client:     c,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		logger:     logger.WithField("collection", cfg.Collection),
	}
	if err := s.ensureCollection(ctx); err != nil {
		c.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}

	if !exists {
		schema := &entity.Schema{
			CollectionName: s.collection,
			Description:    "smartindex document vectors",
			Fields: []*entity.Field{
				{
					Name:       FieldID,
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					AutoID:     false,
					TypeParams: map[string]string{"max_length": strconv.Itoa(maxIDBytes)},
				},
				{
					Name:       FieldContent,
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": strconv.Itoa(maxVarCharBytes)},
				},
				{
					Name:       FieldMetadata,
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": strconv.Itoa(maxVarCharBytes)},
				},
				{
					Name:       FieldVector,
					DataType:   entity.FieldTypeFloatVector,
					TypeParams: map[string]string{"dim": strconv.Itoa(s.dimension)},
				},
			},
		}

		if err := s.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(s.collection, schema)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}

		idx := index.NewHNSWIndex(entity.L2, 16, 200)
		task, err := s.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(s.collection, FieldVector, idx))
		if err != nil {
			return fmt.Errorf("create index: %w", err)
		}
		if err := task.Await(ctx); err != nil {
			return fmt.Errorf("wait for index: %w", err)
		}
		s.logger.Info("created milvus collection")
	}

	load, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	if err := load.Await(ctx); err != nil {
		return fmt.Errorf("wait for load: %w", err)
	}
	return nil
}

// Upsert writes items with replace semantics on the id.
func (s *Store) Upsert(ctx context.Context, items []port.VectorItem) error {
	if len(items) == 0 {
		return nil
	}

	ids := make([]string, len(items))
	contents := make([]string, len(items))
	metas := make([]string, len(items))
	vectors := make([][]float32, len(items))
	for i, item := range items {
		if item.ID == "" {
			return errors.New("vector item has empty id")
		}
		if len(item.ID) > maxIDBytes {
			return fmt.Errorf("id longer than %d bytes: %s", maxIDBytes, truncateUTF8(item.ID, 64))
		}
		if len(item.Vector) != s.dimension {
			return fmt.Errorf("%w: got %d, index has %d", domain.ErrDimensionMismatch, len(item.Vector), s.dimension)
		}
		meta, err := encodeMetadata(item.Metadata)
		if err != nil {
			return err
		}
		ids[i] = item.ID
		contents[i] = truncateUTF8(item.Content, maxVarCharBytes)
		metas[i] = meta
		vectors[i] = item.Vector
	}

	opt := milvusclient.NewColumnBasedInsertOption(s.collection).
		WithVarcharColumn(FieldID, ids).
		WithVarcharColumn(FieldContent, contents).
		WithVarcharColumn(FieldMetadata, metas).
		WithFloatVectorColumn(FieldVector, s.dimension, vectors)
	if _, err := s.client.Upsert(ctx, opt); err != nil {
		return fmt.Errorf("milvus upsert: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, query []float32, k int) ([]port.VectorResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidQuery, k)
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", domain.ErrDimensionMismatch, len(query), s.dimension)
	}

	n, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []port.VectorResult{}, nil
	}

	opt := milvusclient.NewSearchOption(s.collection, k, []entity.Vector{entity.FloatVector(query)}).
		WithANNSField(FieldVector).
		WithOutputFields(FieldContent, FieldMetadata).
		WithConsistencyLevel(entity.ClStrong)
	results, err := s.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("milvus search: %w", err)
	}
	if len(results) == 0 || results[0].ResultCount == 0 {
		return []port.VectorResult{}, nil
	}

	rs := results[0]
	contentCol := rs.GetColumn(FieldContent)
	metaCol := rs.GetColumn(FieldMetadata)

	out := make([]port.VectorResult, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		id, err := rs.IDs.GetAsString(i)
		if err != nil {
			return nil, fmt.Errorf("read result id: %w", err)
		}
		res := port.VectorResult{ID: id}
		if contentCol != nil {
			res.Content, _ = contentCol.GetAsString(i)
		}
		if metaCol != nil {
			raw, _ := metaCol.GetAsString(i)
			res.Metadata = decodeMetadata(raw)
		}
		if i < len(rs.Scores) {
			res.Distance = float64(rs.Scores[i])
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.client.Delete(ctx, milvusclient.NewDeleteOption(s.collection).WithStringIDs(FieldID, ids)); err != nil {
		return fmt.Errorf("milvus delete: %w", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	rs, err := s.client.Query(ctx, milvusclient.NewQueryOption(s.collection).
		WithOutputFields("count(*)").
		WithConsistencyLevel(entity.ClStrong))
	if err != nil {
		return 0, fmt.Errorf("milvus count: %w", err)
	}
	col := rs.GetColumn("count(*)")
	if col == nil || col.Len() == 0 {
		return 0, nil
	}
	n, err := col.GetAsInt64(0)
	if err != nil {
		return 0, fmt.Errorf("milvus count: %w", err)
	}
	return int(n), nil
}

// Get returns the content and metadata stored for id. The vector is not
// fetched.
func (s *Store) Get(ctx context.Context, id string) (port.VectorItem, error) {
	rs, err := s.client.Query(ctx, milvusclient.NewQueryOption(s.collection).
		WithFilter(fmt.Sprintf(`%s == %s`, FieldID, strconv.Quote(id))).
		WithOutputFields(FieldContent, FieldMetadata).
		WithConsistencyLevel(entity.ClStrong))
	if err != nil {
		return port.VectorItem{}, fmt.Errorf("milvus get: %w", err)
	}
	if rs.ResultCount == 0 {
		return port.VectorItem{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	item := port.VectorItem{ID: id, Metadata: map[string]string{}}
	if col := rs.GetColumn(FieldContent); col != nil {
		item.Content, _ = col.GetAsString(0)
	}
	if col := rs.GetColumn(FieldMetadata); col != nil {
		raw, _ := col.GetAsString(0)
		item.Metadata = decodeMetadata(raw)
	}
	return item, nil
}

func (s *Store) IDs(ctx context.Context) ([]string, error) {
	rs, err := s.client.Query(ctx, milvusclient.NewQueryOption(s.collection).
		WithFilter(fmt.Sprintf(`%s != ""`, FieldID)).
		WithOutputFields(FieldID).
		WithConsistencyLevel(entity.ClStrong))
	if err != nil {
		return nil, fmt.Errorf("milvus list ids: %w", err)
	}
	col := rs.GetColumn(FieldID)
	if col == nil {
		return []string{}, nil
	}
	ids := make([]string, 0, col.Len())
	for i := 0; i < col.Len(); i++ {
		id, err := col.GetAsString(i)
		if err != nil {
			return nil, fmt.Errorf("milvus list ids: %w", err)
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Clear drops and recreates the collection.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(s.collection)); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	s.mu.Lock()
	s.built = false
	s.mu.Unlock()
	return s.ensureCollection(ctx)
}

// Ready reports true once a build finished in this process, or when the
// collection already holds vectors from an earlier run.
func (s *Store) Ready(ctx context.Context) (bool, error) {
	s.mu.Lock()
	built := s.built
	s.mu.Unlock()
	if built {
		return true, nil
	}
	n, err := s.Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) MarkReady(_ context.Context) error {
	s.mu.Lock()
	s.built = true
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error {
	return s.client.Close(context.Background())
}

func encodeMetadata(meta map[string]string) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	if len(data) > maxVarCharBytes {
		return "", fmt.Errorf("metadata exceeds %d bytes", maxVarCharBytes)
	}
	return string(data), nil
}

func decodeMetadata(raw string) map[string]string {
	meta := map[string]string{}
	if raw == "" {
		return meta
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return map[string]string{}
	}
	return meta
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

var _ port.VectorStore = (*Store)(nil)

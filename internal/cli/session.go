package cli

import (
	"context"
	"errors"
	"fmt"

	"smartindex/config"
	"smartindex/internal/adapter/cache"
	"smartindex/internal/adapter/embedding"
	"smartindex/internal/adapter/extract"
	"smartindex/internal/adapter/fs"
	"smartindex/internal/adapter/memstore"
	"smartindex/internal/adapter/milvus"
	"smartindex/internal/adapter/store"
	"smartindex/internal/port"
	"smartindex/internal/usecase"
)

// errRebuildRequired is returned to read-only commands when the persisted
// index no longer matches the configured embedder.
var errRebuildRequired = errors.New("index must be rebuilt, run 'smartindex index'")

// session bundles the adapters and use cases for one command invocation.
type session struct {
	embedder  port.Embedder
	store     port.VectorStore
	bolt      *store.BoltVectorStore // nil for other backends
	walker    *fs.Walker
	registry  *extract.Registry
	indexer   *usecase.IndexUseCase
	retriever *usecase.RetrieveUseCase
}

func openSession(ctx context.Context, root string, cfg *config.Config) (*session, error) {
	emb, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	s := &session{embedder: emb}

	switch cfg.Store.Backend {
	case "memory":
		s.store = memstore.NewVectorIndex(emb.Dimension())
	case "milvus":
		ms, err := milvus.Open(ctx, milvus.Config{
			Address:    cfg.Store.Milvus.Address,
			Collection: cfg.Store.Milvus.Collection,
			Dimension:  emb.Dimension(),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open milvus store: %w", err)
		}
		s.store = ms
	default:
		if err := config.EnsureDir(root); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", config.DirName, err)
		}
		bs, err := store.Open(config.IndexDBPath(root), 0)
		if err != nil {
			return nil, fmt.Errorf("failed to open index store: %w", err)
		}
		s.store = bs
		s.bolt = bs
	}

	var ocr extract.OCR
	if cfg.OCR.Active(extract.OCRAvailable()) {
		ocr = extract.NewOCR(cfg.OCR.Language)
	} else {
		logger.Debug("OCR off, image files count as unsupported")
	}
	s.registry = extract.NewDefaultRegistry(ocr, logger)

	s.walker = fs.NewWalker(cfg.Index.Includes, cfg.Index.Excludes)
	if cfg.Index.SkipUnsupported {
		s.walker = s.walker.OnlyExtensions(s.registry.Extensions())
	}

	s.indexer = usecase.NewIndexUseCase(s.walker, s.registry, emb, s.store, usecase.IndexOptions{
		Workers:     cfg.Index.Workers,
		BatchSize:   cfg.Embedding.BatchSize,
		Clusters:    cfg.Index.Clusters,
		ClusterSeed: cfg.Index.ClusterSeed,
	}, logger)
	s.retriever = usecase.NewRetrieveUseCase(s.store, emb, cfg.Retrieve.PreviewChars, logger)

	return s, nil
}

func newEmbedder(ec config.EmbeddingConfig) (port.Embedder, error) {
	// Remote models have a fixed output size; the configured dimension only
	// applies to models the table does not know.
	opts := embedding.Options{
		BaseURL:   ec.BaseURL,
		Dimension: embedding.KnownDimension(ec.Model, ec.Dimension),
		BatchSize: ec.BatchSize,
		Timeout:   ec.Timeout,
	}

	var (
		emb port.Embedder
		err error
	)
	switch ec.Provider {
	case "hash", "":
		return embedding.NewHashingEmbedder(ec.Dimension, ec.Stemming), nil
	case "openai":
		emb, err = embedding.NewOpenAIEmbedder(ec.APIKeyEnv, ec.Model, opts)
	case "deepseek":
		emb, err = embedding.NewDeepSeekEmbedder(ec.APIKeyEnv, ec.Model, opts)
	case "jina":
		emb, err = embedding.NewJinaEmbedder(ec.APIKeyEnv, ec.Model, opts)
	case "ollama":
		emb, err = embedding.NewOllamaEmbedder(ec.Model, opts)
	case "openai-compatible":
		emb, err = embedding.NewOpenAICompatibleEmbedder(ec.APIKeyEnv, ec.Model, opts)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", ec.Provider)
	}
	if err != nil {
		return nil, err
	}

	if ec.CacheSize > 0 {
		emb = cache.NewCachedEmbedder(emb, ec.CacheSize, ec.CacheTTL)
	}
	return emb, nil
}

func (s *session) fingerprint() store.Fingerprint {
	return store.Fingerprint{Model: s.embedder.ModelName(), Dimension: s.embedder.Dimension()}
}

// prepareBuild reconciles the persisted schema before a write. A changed
// embedder clears the index.
func (s *session) prepareBuild(ctx context.Context) error {
	if s.bolt == nil {
		return nil
	}
	result, err := s.bolt.CheckMigration(s.fingerprint())
	if err != nil {
		return fmt.Errorf("failed to check migration: %w", err)
	}
	switch {
	case result.NeedsRebuild:
		fmt.Printf("Index rebuild required: %s\n", result.Reason)
		fmt.Println("Clearing existing index...")
		if err := s.bolt.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
	case result.NeedsMigration:
		logger.WithField("reason", result.Reason).Info("running schema migration")
	}
	return nil
}

// checkReadable refuses to search an index built by a different embedder.
func (s *session) checkReadable() error {
	if s.bolt == nil {
		return nil
	}
	result, err := s.bolt.CheckMigration(s.fingerprint())
	if err != nil {
		return fmt.Errorf("failed to check migration: %w", err)
	}
	if result.NeedsRebuild {
		return fmt.Errorf("%w: %s", errRebuildRequired, result.Reason)
	}
	return nil
}

// commit records the schema and embedder fingerprint after a successful write.
func (s *session) commit() error {
	if s.bolt == nil {
		return nil
	}
	if err := s.bolt.Migrate(s.fingerprint()); err != nil {
		return fmt.Errorf("failed to update schema info: %w", err)
	}
	return nil
}

func (s *session) Close() error {
	return s.store.Close()
}

package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"smartindex/internal/adapter/embedding"
	"smartindex/internal/adapter/extract"
	"smartindex/internal/adapter/fs"
	"smartindex/internal/adapter/memstore"
	"smartindex/internal/port"
)

const testDim = 256

// countingEmbedder records how often the provider is hit.
type countingEmbedder struct {
	inner port.Embedder

	mu    sync.Mutex
	calls int
	texts int
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{inner: embedding.NewHashingEmbedder(testDim, true)}
}

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.texts += len(texts)
	e.mu.Unlock()
	return e.inner.Embed(ctx, texts)
}

func (e *countingEmbedder) Dimension() int    { return e.inner.Dimension() }
func (e *countingEmbedder) ModelName() string { return e.inner.ModelName() }

func (e *countingEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// poisonEmbedder fails any call that includes a text containing "poison".
type poisonEmbedder struct {
	countingEmbedder
}

func newPoisonEmbedder() *poisonEmbedder {
	return &poisonEmbedder{countingEmbedder{inner: embedding.NewHashingEmbedder(testDim, true)}}
}

func (e *poisonEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if strings.Contains(t, "poison") {
			e.mu.Lock()
			e.calls++
			e.mu.Unlock()
			return nil, errors.New("provider rejected input")
		}
	}
	return e.countingEmbedder.Embed(ctx, texts)
}

type harness struct {
	root     string
	store    *memstore.VectorIndex
	embedder port.Embedder
	index    *IndexUseCase
	retrieve *RetrieveUseCase
}

func newHarness(t *testing.T, emb port.Embedder, opts IndexOptions) *harness {
	t.Helper()
	if emb == nil {
		emb = newCountingEmbedder()
	}
	store := memstore.NewVectorIndex(emb.Dimension())
	walker := fs.NewWalker(nil, nil)
	registry := extract.NewDefaultRegistry(nil, nil)
	return &harness{
		root:     t.TempDir(),
		store:    store,
		embedder: emb,
		index:    NewIndexUseCase(walker, registry, emb, store, opts, nil),
		retrieve: NewRetrieveUseCase(store, emb, 0, nil),
	}
}

func (h *harness) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func (h *harness) writeBytes(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(h.root, name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

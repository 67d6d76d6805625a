package usecase

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartindex/internal/adapter/extract"
	"smartindex/internal/adapter/fs"
	"smartindex/internal/adapter/store"
	"smartindex/internal/domain"
)

func TestBuildIndexSkipsUnsupported(t *testing.T) {
	h := newHarness(t, nil, IndexOptions{})
	h.write(t, "a.txt", "alpha document")
	h.write(t, "docs/b.md", "# beta notes")
	h.writeBytes(t, "x.bin", []byte{0, 1, 2})
	h.writeBytes(t, "y.bin", []byte{3, 4, 5})

	report, err := h.index.BuildIndex(context.Background(), h.root)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, 2, report.Skipped)
	assert.Zero(t, report.Failed)
	assert.Len(t, report.Outcomes, 4)
	assert.NotEmpty(t, report.RunID)
	assert.Empty(t, report.Failures())

	n, err := h.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ready, err := h.store.Ready(context.Background())
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestBuildIndexIsolatesExtractionFailures(t *testing.T) {
	h := newHarness(t, nil, IndexOptions{Workers: 2})
	h.write(t, "good1.txt", "first good file")
	bad := h.writeBytes(t, "bad.txt", []byte{0xff, 0xfe})
	h.write(t, "good2.txt", "second good file")
	h.writeBytes(t, "blob.bin", []byte{0})

	report, err := h.index.BuildIndex(context.Background(), h.root)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Skipped)

	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, bad, failures[0].Path)
	assert.NotEmpty(t, failures[0].Reason)
}

func TestBuildIndexIsolatesEmbeddingFailures(t *testing.T) {
	emb := newPoisonEmbedder()
	h := newHarness(t, emb, IndexOptions{BatchSize: 8})
	h.write(t, "a.txt", "apples and pears")
	poisoned := h.write(t, "b.txt", "this one is poison")
	h.write(t, "c.txt", "cherries in summer")

	report, err := h.index.BuildIndex(context.Background(), h.root)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures(), 1)
	assert.Equal(t, poisoned, report.Failures()[0].Path)
	assert.Contains(t, report.Failures()[0].Reason, domain.ErrEmbedding.Error())

	// one failed batch plus three single-document retries
	assert.Equal(t, 4, emb.Calls())
}

func TestBuildIndexOutcomeOrder(t *testing.T) {
	h := newHarness(t, nil, IndexOptions{Workers: 3, BatchSize: 1})
	for i := 0; i < 6; i++ {
		h.write(t, "f"+strconv.Itoa(i)+".txt", "file number "+strconv.Itoa(i))
	}

	var calls []int
	h.index.OnProgress = func(processed, total int, _ string) {
		assert.Equal(t, 6, total)
		calls = append(calls, processed)
	}

	report, err := h.index.BuildIndex(context.Background(), h.root)
	require.NoError(t, err)
	assert.Equal(t, 6, report.Indexed)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, calls)
}

func TestBuildIndexMissingRoot(t *testing.T) {
	h := newHarness(t, nil, IndexOptions{})
	_, err := h.index.BuildIndex(context.Background(), filepath.Join(h.root, "nope"))
	assert.Error(t, err)
}

func TestBuildIndexCanceled(t *testing.T) {
	h := newHarness(t, nil, IndexOptions{})
	h.write(t, "a.txt", "alpha")
	h.write(t, "b.txt", "beta")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.index.BuildIndex(ctx, h.root)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Zero(t, report.Indexed)

	ready, err := h.store.Ready(context.Background())
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestBuildIndexClusters(t *testing.T) {
	h := newHarness(t, nil, IndexOptions{Clusters: 2, ClusterSeed: 7})
	h.write(t, "a.txt", "bananas apples fruit salad")
	h.write(t, "b.txt", "fruit salad with bananas")
	h.write(t, "c.txt", "engines wheels cars")

	report, err := h.index.BuildIndex(context.Background(), h.root)
	require.NoError(t, err)
	require.Len(t, report.Clusters, 3)

	for path, group := range report.Clusters {
		item, err := h.store.Get(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(group), item.Metadata[domain.MetaCluster])
	}
}

func TestBuildIndexClustersClampedToDocuments(t *testing.T) {
	h := newHarness(t, nil, IndexOptions{Clusters: 10})
	h.write(t, "only.txt", "a single document")

	report, err := h.index.BuildIndex(context.Background(), h.root)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{filepath.Join(h.root, "only.txt"): 0}, report.Clusters)
}

func TestAddDocumentIdempotent(t *testing.T) {
	h := newHarness(t, nil, IndexOptions{})
	path := h.write(t, "note.txt", "remember the milk")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		outcome, err := h.index.AddDocument(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusIndexed, outcome.Status)
	}

	n, err := h.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ready, err := h.store.Ready(ctx)
	require.NoError(t, err)
	assert.True(t, ready)

	results, err := h.retrieve.Search(ctx, "milk", 5, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, path, results[0].Source)
}

func TestAddDocumentOutcomes(t *testing.T) {
	h := newHarness(t, nil, IndexOptions{})
	ctx := context.Background()

	outcome, err := h.index.AddDocument(ctx, h.writeBytes(t, "blob.bin", []byte{1}))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSkipped, outcome.Status)

	outcome, err = h.index.AddDocument(ctx, h.writeBytes(t, "bad.txt", []byte{0xff}))
	var extErr *domain.ExtractionError
	assert.ErrorAs(t, err, &extErr)
	assert.Equal(t, domain.StatusFailed, outcome.Status)

	ready, err := h.store.Ready(ctx)
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestRemoveAndClear(t *testing.T) {
	h := newHarness(t, nil, IndexOptions{})
	ctx := context.Background()
	a := h.write(t, "a.txt", "alpha")
	h.write(t, "b.txt", "beta")
	_, err := h.index.BuildIndex(ctx, h.root)
	require.NoError(t, err)

	found, err := h.index.RemoveDocument(ctx, a)
	require.NoError(t, err)
	assert.True(t, found)
	_, err = h.store.Get(ctx, a)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	found, err = h.index.RemoveDocument(ctx, a)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, h.index.ClearIndex(ctx))
	n, err := h.store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = h.retrieve.Search(ctx, "beta", 5, 0)
	assert.ErrorIs(t, err, domain.ErrIndexNotReady)
}

func TestBuildIndexKeepsEmptyDocuments(t *testing.T) {
	h := newHarness(t, nil, IndexOptions{})
	ctx := context.Background()
	h.write(t, "notes.txt", "quarterly budget review")
	blank := h.write(t, "blank.txt", "")
	spaces := h.write(t, "spaces.md", "   \n\t")

	report, err := h.index.BuildIndex(ctx, h.root)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Indexed)
	assert.Zero(t, report.Skipped)

	item, err := h.store.Get(ctx, blank)
	require.NoError(t, err)
	assert.Empty(t, item.Content)
	assert.Equal(t, blank, item.Metadata[domain.MetaSource])

	outcome, err := h.index.AddDocument(ctx, spaces)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIndexed, outcome.Status)

	// the zero vector sits at similarity 0.5 to any query
	results, err := h.retrieve.Search(ctx, "budget", 5, 0.55)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "notes.txt", filepath.Base(results[0].Source))
}

func TestRemoveTree(t *testing.T) {
	h := newHarness(t, nil, IndexOptions{})
	ctx := context.Background()
	h.write(t, "sub/a.txt", "alpha")
	h.write(t, "sub/deep/b.txt", "beta")
	sibling := h.write(t, "subway.txt", "gamma")
	_, err := h.index.BuildIndex(ctx, h.root)
	require.NoError(t, err)

	n, err := h.index.RemoveTree(ctx, filepath.Join(h.root, "sub"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ids, err := h.store.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{sibling}, ids)

	n, err = h.index.RemoveTree(ctx, filepath.Join(h.root, "missing"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBuildIndexRemovesStaleEntries(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	bs, err := store.Open(filepath.Join(t.TempDir(), "index.db"), 0)
	require.NoError(t, err)
	defer bs.Close()

	emb := newCountingEmbedder()
	idx := NewIndexUseCase(fs.NewWalker(nil, nil), extract.NewDefaultRegistry(nil, nil), emb, bs, IndexOptions{}, nil)
	ret := NewRetrieveUseCase(bs, emb, 0, nil)

	write := func(dir, name string, content []byte) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, content, 0644))
		return path
	}
	write(root, "a.txt", []byte("alpha quarterly report"))
	gone := write(root, "gone.txt", []byte("zebra quartz"))
	broken := write(root, "broken.txt", []byte("valid text for now"))
	outside := write(t.TempDir(), "extra.txt", []byte("added by hand"))

	report, err := idx.BuildIndex(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Indexed)
	assert.Zero(t, report.Removed)
	_, err = idx.AddDocument(ctx, outside)
	require.NoError(t, err)

	require.NoError(t, os.Remove(gone))
	require.NoError(t, os.WriteFile(broken, []byte{0xff, 0xfe}, 0644))

	report, err = idx.BuildIndex(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Removed)

	ids, err := bs.IDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(root, "a.txt"), outside}, ids)

	results, err := ret.Search(ctx, "zebra quartz", 5, -1)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, gone, r.Source)
		assert.NotEqual(t, broken, r.Source)
	}
}

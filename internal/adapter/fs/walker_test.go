package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartindex/internal/port"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func collect(t *testing.T, w *Walker, root string) ([]port.FileInfo, []error) {
	t.Helper()
	var files []port.FileInfo
	var errs []error
	for fi, err := range w.Walk(root) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		files = append(files, fi)
	}
	return files, errs
}

func relPaths(t *testing.T, root string, files []port.FileInfo) []string {
	t.Helper()
	out := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(root, f.Path)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestWalkLexicalOrder(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"b.txt":       "b",
		"a.txt":       "a",
		"sub/c.md":    "c",
		"sub/z/d.bin": "d",
	})

	files, errs := collect(t, NewWalker(nil, nil), root)
	require.Empty(t, errs)
	assert.Equal(t, []string{"a.txt", "b.txt", "sub/c.md", "sub/z/d.bin"}, relPaths(t, root, files))
	for _, f := range files {
		assert.Positive(t, f.Size)
		assert.NotZero(t, f.ModTime)
	}
}

func TestWalkIsRestartable(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a", "b.txt": "b"})

	w := NewWalker(nil, nil)
	seq := w.Walk(root)

	var first, second int
	for range seq {
		first++
	}
	for range seq {
		second++
	}
	assert.Equal(t, 2, first)
	assert.Equal(t, first, second)
}

func TestWalkIncludeExclude(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"docs/a.md":          "a",
		"docs/b.txt":         "b",
		"node_modules/x.md":  "x",
		".smartindex/idx.md": "i",
	})

	w := NewWalker([]string{"**/*.md"}, []string{"node_modules/**", ".smartindex/**"})
	files, errs := collect(t, w, root)
	require.Empty(t, errs)
	assert.Equal(t, []string{"docs/a.md"}, relPaths(t, root, files))
}

func TestWalkOnlyExtensions(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.TXT": "a",
		"b.pdf": "b",
		"c.bin": "c",
	})

	w := NewWalker(nil, nil).OnlyExtensions([]string{".txt", "pdf"})
	files, errs := collect(t, w, root)
	require.Empty(t, errs)
	assert.Equal(t, []string{"a.TXT", "b.pdf"}, relPaths(t, root, files))
}

func TestWalkMissingRoot(t *testing.T) {
	files, errs := collect(t, NewWalker(nil, nil), filepath.Join(t.TempDir(), "nope"))
	assert.Empty(t, files)
	assert.Len(t, errs, 1)
}

func TestWalkRootIsFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a"})

	files, errs := collect(t, NewWalker(nil, nil), filepath.Join(root, "a.txt"))
	assert.Empty(t, files)
	assert.Len(t, errs, 1)
}

func TestWalkEarlyBreak(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a", "b.txt": "b", "c.txt": "c"})

	n := 0
	for range NewWalker(nil, nil).Walk(root) {
		n++
		if n == 1 {
			break
		}
	}
	assert.Equal(t, 1, n)
}

func TestWalkUnreadableDirContinues(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":        "a",
		"locked/b.txt": "b",
		"z.txt":        "z",
	})
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	files, errs := collect(t, NewWalker(nil, nil), root)
	assert.Equal(t, []string{"a.txt", "z.txt"}, relPaths(t, root, files))
	assert.Len(t, errs, 1)
}

package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleEvent(t *testing.T) {
	tests := []struct {
		name       string
		file       string
		create     bool
		dir        bool
		op         fsnotify.Op
		wantChange bool
		wantKind   ChangeKind
	}{
		{name: "create", file: "a.txt", create: true, op: fsnotify.Create, wantChange: true, wantKind: ChangeUpserted},
		{name: "write", file: "a.txt", create: true, op: fsnotify.Write, wantChange: true, wantKind: ChangeUpserted},
		{name: "write with chmod", file: "a.txt", create: true, op: fsnotify.Write | fsnotify.Chmod, wantChange: true, wantKind: ChangeUpserted},
		{name: "remove", file: "gone.txt", op: fsnotify.Remove, wantChange: true, wantKind: ChangeRemoved},
		{name: "rename", file: "old.txt", op: fsnotify.Rename, wantChange: true, wantKind: ChangeRemoved},
		{name: "chmod only", file: "a.txt", create: true, op: fsnotify.Chmod},
		{name: "directory", file: "sub", dir: true, op: fsnotify.Create},
		{name: "excluded", file: "tmp/a.txt", create: true, op: fsnotify.Write},
		{name: "excluded remove", file: "tmp/a.txt", op: fsnotify.Remove},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			path := filepath.Join(root, filepath.FromSlash(tt.file))
			if tt.dir {
				require.NoError(t, os.MkdirAll(path, 0755))
			} else if tt.create {
				writeTree(t, root, map[string]string{tt.file: "content"})
			}

			w, err := NewWatcher(root, NewWalker(nil, []string{"tmp/**"}))
			require.NoError(t, err)

			change := w.handleEvent(fsnotify.Event{Name: path, Op: tt.op})
			if !tt.wantChange {
				assert.Nil(t, change)
				return
			}
			require.NotNil(t, change)
			assert.Equal(t, tt.wantKind, change.Kind)
			assert.Equal(t, path, change.Path)
		})
	}
}

func TestWatcherDeliversChanges(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, _, err := w.Watch(ctx)
	require.NoError(t, err)

	target := filepath.Join(root, "new.txt")
	go func() {
		time.Sleep(50 * time.Millisecond)
		os.WriteFile(target, []byte("hello"), 0644)
	}()

	select {
	case change := <-changes:
		assert.Equal(t, ChangeUpserted, change.Kind)
		assert.Equal(t, target, change.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change")
	}
}

func TestWatcherClosesOnCancel(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	changes, _, err := w.Watch(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-changes:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestChangeKindString(t *testing.T) {
	assert.Equal(t, "upserted", ChangeUpserted.String())
	assert.Equal(t, "removed", ChangeRemoved.String())
	assert.Equal(t, "dir-removed", ChangeDirRemoved.String())
}

func TestHandleEventWatchedDirRemoved(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"docs/inner/a.txt": "a"})

	w, err := NewWatcher(root, NewWalker([]string{"**/*.txt"}, nil))
	require.NoError(t, err)
	defer w.Close()

	fw, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	w.watcher = fw
	found, err := w.addTree(root)
	require.NoError(t, err)
	assert.Empty(t, found, "files under the root are left to the initial build")

	docs := filepath.Join(root, "docs")

	// the directory name does not match the include pattern
	change := w.handleEvent(fsnotify.Event{Name: docs, Op: fsnotify.Remove})
	require.NotNil(t, change)
	assert.Equal(t, ChangeDirRemoved, change.Kind)
	assert.Equal(t, docs, change.Path)

	// its subdirectories are forgotten along with it
	assert.Nil(t, w.handleEvent(fsnotify.Event{Name: filepath.Join(docs, "inner"), Op: fsnotify.Remove}))
}

func TestWatcherReportsFilesInMovedDirectory(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeTree(t, outside, map[string]string{
		"batch/one.txt":      "first",
		"batch/deep/two.txt": "second",
		"batch/skip.log":     "ignored",
	})

	w, err := NewWatcher(root, NewWalker([]string{"**/*.txt"}, nil))
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, _, err := w.Watch(ctx)
	require.NoError(t, err)

	moved := filepath.Join(root, "batch")
	require.NoError(t, os.Rename(filepath.Join(outside, "batch"), moved))

	want := map[string]bool{
		filepath.Join(moved, "one.txt"):         true,
		filepath.Join(moved, "deep", "two.txt"): true,
	}
	got := make(map[string]bool)
	timeout := time.After(2 * time.Second)
	for len(got) < len(want) {
		select {
		case change := <-changes:
			assert.Equal(t, ChangeUpserted, change.Kind)
			got[change.Path] = true
		case <-timeout:
			t.Fatalf("timeout waiting for moved files, got %v", got)
		}
	}
	assert.Equal(t, want, got)
}

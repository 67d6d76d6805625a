package fs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

type ChangeKind int

const (
	ChangeUpserted ChangeKind = iota
	ChangeRemoved
	// ChangeDirRemoved means a watched directory left the root; every file
	// beneath Path is gone with it.
	ChangeDirRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeRemoved:
		return "removed"
	case ChangeDirRemoved:
		return "dir-removed"
	}
	return "upserted"
}

// Change is a single file-level event under the watched root.
type Change struct {
	Path string
	Kind ChangeKind
}

// Watcher turns fsnotify events beneath a root into file changes, honouring
// the walker's filters. Subdirectories are watched as they appear, and the
// files already inside a directory created or moved under the root are
// reported as upserts.
type Watcher struct {
	root   string
	walker *Walker

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	dirs    map[string]struct{}
}

func NewWatcher(root string, walker *Walker) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if walker == nil {
		walker = NewWalker(nil, nil)
	}
	return &Watcher{root: absRoot, walker: walker, dirs: make(map[string]struct{})}, nil
}

// Watch starts watching and returns the change stream. The channel is
// closed when ctx is done or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context) (<-chan Change, <-chan error, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	w.mu.Lock()
	w.watcher = fw
	w.mu.Unlock()

	if _, err := w.addTree(w.root); err != nil {
		fw.Close()
		return nil, nil, err
	}

	changes := make(chan Change, 64)
	errs := make(chan error, 8)

	go func() {
		defer close(changes)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				var pending []Change
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() && event.Has(fsnotify.Create) {
					found, addErr := w.addTree(event.Name)
					if addErr != nil {
						sendErr(errs, addErr)
					}
					pending = found
				} else if change := w.handleEvent(event); change != nil {
					pending = []Change{*change}
				}
				for _, change := range pending {
					select {
					case changes <- change:
					case <-ctx.Done():
						return
					}
				}
			case watchErr, ok := <-fw.Errors:
				if !ok {
					return
				}
				sendErr(errs, watchErr)
			}
		}
	}()

	return changes, errs, nil
}

func sendErr(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
	}
}

// handleEvent maps one fsnotify event to a change, or nil when the event is
// irrelevant (chmod only, directory creation, filtered paths).
func (w *Watcher) handleEvent(event fsnotify.Event) *Change {
	relPath, err := filepath.Rel(w.root, event.Name)
	if err != nil || relPath == "." {
		return nil
	}
	relPath = filepath.ToSlash(relPath)

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if w.forgetTree(event.Name) {
			return &Change{Path: event.Name, Kind: ChangeDirRemoved}
		}
		if !w.walker.Selected(relPath) {
			return nil
		}
		return &Change{Path: event.Name, Kind: ChangeRemoved}
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		info, statErr := os.Stat(event.Name)
		if statErr != nil || !info.Mode().IsRegular() {
			return nil
		}
		if !w.walker.Selected(relPath) {
			return nil
		}
		return &Change{Path: event.Name, Kind: ChangeUpserted}
	}
	return nil
}

// addTree watches dir and every non-excluded directory below it. Below a
// directory other than the root, selected regular files are returned as
// upserts since no event will ever announce them.
func (w *Watcher) addTree(dir string) ([]Change, error) {
	w.mu.Lock()
	fw := w.watcher
	w.mu.Unlock()
	if fw == nil {
		return nil, errors.New("watcher is closed")
	}

	var found []Change
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if !d.IsDir() {
			if dir != w.root && d.Type().IsRegular() && w.walker.Selected(rel) {
				found = append(found, Change{Path: path, Kind: ChangeUpserted})
			}
			return nil
		}
		if path != w.root && w.walker.Excluded(rel+"/") {
			return fs.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return err
		}
		w.mu.Lock()
		w.dirs[path] = struct{}{}
		w.mu.Unlock()
		return nil
	})
	return found, err
}

// forgetTree drops dir and its subdirectories from the watched set and
// reports whether dir was being watched.
func (w *Watcher) forgetTree(dir string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.dirs[dir]; !ok {
		return false
	}
	prefix := dir + string(filepath.Separator)
	for d := range w.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
		}
	}
	return true
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.watcher = nil
	return err
}

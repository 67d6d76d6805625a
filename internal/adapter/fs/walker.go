package fs

import (
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"smartindex/internal/port"
)

type Walker struct {
	includes   []string
	excludes   []string
	extensions map[string]struct{}
}

func NewWalker(includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	return &Walker{
		includes: includes,
		excludes: excludes,
	}
}

// OnlyExtensions restricts the walk to files whose lower-cased extension is
// in exts. An empty list removes the restriction.
func (w *Walker) OnlyExtensions(exts []string) *Walker {
	if len(exts) == 0 {
		w.extensions = nil
		return w
	}
	w.extensions = make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		w.extensions[ext] = struct{}{}
	}
	return w
}

// Walk yields every selected regular file under root in lexical order.
// Entries that cannot be read are yielded with their error and the walk
// goes on; a bad root ends the sequence after one error.
func (w *Walker) Walk(root string) iter.Seq2[port.FileInfo, error] {
	return func(yield func(port.FileInfo, error) bool) {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			yield(port.FileInfo{Path: root}, err)
			return
		}
		rootInfo, err := os.Stat(absRoot)
		if err != nil {
			yield(port.FileInfo{Path: absRoot}, err)
			return
		}
		if !rootInfo.IsDir() {
			yield(port.FileInfo{Path: absRoot}, fmt.Errorf("%s is not a directory", absRoot))
			return
		}

		_ = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == absRoot {
					yield(port.FileInfo{Path: path}, err)
					return fs.SkipAll
				}
				if !yield(port.FileInfo{Path: path}, err) {
					return fs.SkipAll
				}
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}

			relPath, relErr := filepath.Rel(absRoot, path)
			if relErr != nil {
				return relErr
			}
			relPath = filepath.ToSlash(relPath)

			if d.IsDir() {
				if path != absRoot && w.Excluded(relPath+"/") {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if !w.Selected(relPath) {
				return nil
			}

			info, infoErr := d.Info()
			if infoErr != nil {
				if !yield(port.FileInfo{Path: path}, infoErr) {
					return fs.SkipAll
				}
				return nil
			}
			if !yield(port.FileInfo{
				Path:    path,
				ModTime: info.ModTime().Unix(),
				Size:    info.Size(),
			}, nil) {
				return fs.SkipAll
			}
			return nil
		})
	}
}

// Selected reports whether a root-relative, slash-separated path passes the
// include, exclude and extension filters.
func (w *Walker) Selected(relPath string) bool {
	if w.extensions != nil {
		if _, ok := w.extensions[strings.ToLower(filepath.Ext(relPath))]; !ok {
			return false
		}
	}
	return w.shouldInclude(relPath) && !w.Excluded(relPath)
}

// Excluded reports whether relPath matches an exclude pattern. Directories
// are matched with a trailing slash.
func (w *Walker) Excluded(relPath string) bool {
	for _, pattern := range w.excludes {
		matched, err := doublestar.Match(pattern, relPath)
		if err == nil && matched {
			return true
		}
		if strings.HasSuffix(relPath, "/") {
			matched, err = doublestar.Match(pattern, strings.TrimSuffix(relPath, "/"))
			if err == nil && matched {
				return true
			}
		}
	}
	return false
}

func (w *Walker) shouldInclude(path string) bool {
	for _, pattern := range w.includes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

var _ port.FileWalker = (*Walker)(nil)

package port

import "iter"

// FileWalker enumerates candidate files beneath a root directory.
// The sequence is lazy and may be iterated more than once; each pair
// carries either a file or the error encountered for that entry.
type FileWalker interface {
	Walk(root string) iter.Seq2[FileInfo, error]
}

type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}

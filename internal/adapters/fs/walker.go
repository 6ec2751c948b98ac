package fs

import (
	"io/fs"
	"iter"
	"path/filepath"
)

// Walker enumerates the directories of a source tree.
type Walker struct{}

// NewWalker creates a new Walker.
func NewWalker() *Walker {
	return &Walker{}
}

// WalkDirs yields root and every directory below it, skipping version
// control and state directories and any directory whose base name matches
// one of ignores. Paths are yielded as filepath.WalkDir produces them.
func (w *Walker) WalkDirs(root string, ignores []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}

			if path != root && w.skip(d.Name(), ignores) {
				return filepath.SkipDir
			}

			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

func (w *Walker) skip(name string, ignores []string) bool {
	switch name {
	case ".git", ".jj", StateDir:
		return true
	}

	for _, ignore := range ignores {
		if matched, _ := filepath.Match(ignore, name); matched {
			return true
		}
	}
	return false
}

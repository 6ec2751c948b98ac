// Package fs implements file access for the build engine on the local disk.
package fs

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// StateDir holds kiln's own bookkeeping next to the project file.
const StateDir = ".kiln"

const (
	dirPerm  = 0o750
	filePerm = 0o644
)

// Access implements ports.FileAccess on the local file system. Commands are
// delegated to the embedded runner.
type Access struct {
	ports.CommandRunner
}

var _ ports.FileAccess = (*Access)(nil)

// NewAccess creates an Access running commands through runner.
func NewAccess(runner ports.CommandRunner) *Access {
	return &Access{CommandRunner: runner}
}

// StatTime returns the modification time of path, or the zero time when it
// cannot be stat'ed.
func (a *Access) StatTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// ReadLines returns the lines of path without their terminators.
func (a *Access) ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioError(err, "failed to open file", path)
	}
	defer func() { _ = f.Close() }()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, ioError(err, "failed to read file", path)
	}
	return lines, nil
}

// WriteFile replaces the content of path.
func (a *Access) WriteFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return ioError(err, "failed to write file", path)
	}
	return nil
}

// AppendFile appends data to path, creating it if needed.
func (a *Access) AppendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return ioError(err, "failed to open file", path)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return ioError(err, "failed to append to file", path)
	}
	if err := f.Close(); err != nil {
		return ioError(err, "failed to close file", path)
	}
	return nil
}

// CopyBytes copies the content and permission bits of src to dst.
func (a *Access) CopyBytes(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, ioError(err, "failed to open source", src)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return 0, ioError(err, "failed to stat source", src)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return 0, ioError(err, "failed to create target", dst)
	}

	n, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return n, ioError(err, "failed to copy file", dst)
	}
	if err := out.Close(); err != nil {
		return n, ioError(err, "failed to close target", dst)
	}
	return n, nil
}

// RemoveFile deletes path. A missing file is not an error.
func (a *Access) RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return ioError(err, "failed to remove file", path)
	}
	return nil
}

// ListDirectory returns the sorted entry names of path.
func (a *Access) ListDirectory(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, ioError(err, "failed to list directory", path)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// Glob expands pattern into the sorted list of matching regular files.
// A pattern without `*` is returned as is, whether or not it exists.
func (a *Access) Glob(pattern string) ([]string, error) {
	if !strings.Contains(pattern, "*") {
		return []string{pattern}, nil
	}

	matches, err := doublestar.Glob(pattern)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(errors.Join(domain.ErrConfiguration, err), "invalid glob pattern"), "pattern", pattern)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, filepath.ToSlash(m))
	}
	slices.Sort(files)
	return files, nil
}

// MkdirAll creates path and its parents.
func (a *Access) MkdirAll(path string) error {
	if err := os.MkdirAll(path, dirPerm); err != nil {
		return ioError(err, "failed to create directory", path)
	}
	return nil
}

func ioError(err error, msg, path string) error {
	return zerr.With(zerr.Wrap(err, msg), "path", path)
}

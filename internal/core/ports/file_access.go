// Package ports defines the core interfaces for the application.
package ports

import (
	"context"
	"time"
)

// FileSystem is the file-level half of FileAccess.
//
//go:generate go run go.uber.org/mock/mockgen -source=file_access.go -destination=mocks/mock_file_access.go -package=mocks
type FileSystem interface {
	// StatTime returns the modification time of path, or the zero time if it does not exist.
	StatTime(path string) time.Time
	// ReadLines returns the lines of path. A missing file yields an error wrapping fs.ErrNotExist.
	ReadLines(path string) ([]string, error)
	// WriteFile replaces the content of path.
	WriteFile(path string, data []byte) error
	// AppendFile appends data to path, creating it if needed.
	AppendFile(path string, data []byte) error
	// CopyBytes copies src to dst and returns the number of bytes written.
	CopyBytes(src, dst string) (int64, error)
	// RemoveFile deletes path. Removing a missing file is not an error.
	RemoveFile(path string) error
	// ListDirectory returns the entry names of path, sorted.
	ListDirectory(path string) ([]string, error)
	// Glob expands pattern into existing files, sorted. `*` matches within one
	// directory, `**` across directories, and a pattern without `*` resolves to itself.
	Glob(pattern string) ([]string, error)
	// MkdirAll creates path and its parents.
	MkdirAll(path string) error
}

// CommandRunner runs shell commands.
type CommandRunner interface {
	// RunCommand runs command through the shell and returns its exit code and
	// combined stdout/stderr. err is non-nil only when the command could not be
	// started; a non-zero exit is reported through exitCode.
	RunCommand(ctx context.Context, dir, command string) (exitCode int, output string, err error)
}

// FileAccess is the single capability through which the build core touches
// the file system and spawns processes.
type FileAccess interface {
	FileSystem
	CommandRunner
}

// Package enginetest provides an in-memory FileAccess that simulates a
// compiler toolchain, for tests of the build engine.
package enginetest

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar"
	"go.trai.ch/kiln/internal/core/domain"
)

// MemFS is a FileAccess backed by a map. Every write advances a virtual
// clock by one second, so modification times are strictly ordered.
type MemFS struct {
	mu    sync.Mutex
	files map[string]memFile
	now   time.Time

	// Headers lists extra prerequisites the simulated compiler reports per source.
	Headers map[string][]string
	// Fail maps an output path to the exit code its producing command returns.
	Fail map[string]int
	// OnCommand, when set, runs before a command is simulated.
	OnCommand func(command string)

	commands []string
}

type memFile struct {
	data  []byte
	mtime time.Time
}

// NewMemFS creates an empty file system whose clock starts at a fixed date.
func NewMemFS() *MemFS {
	return &MemFS{
		files:   make(map[string]memFile),
		now:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Headers: make(map[string][]string),
		Fail:    make(map[string]int),
	}
}

// Touch creates or updates path with the next timestamp.
func (m *MemFS) Touch(paths ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		f := m.files[clean(p)]
		m.writeLocked(p, f.data)
	}
}

// Put writes data to path.
func (m *MemFS) Put(path, data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeLocked(path, []byte(data))
}

// Content returns the data stored at path.
func (m *MemFS) Content(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[clean(path)]
	return string(f.data), ok
}

// Exists reports whether path exists.
func (m *MemFS) Exists(path string) bool {
	_, ok := m.Content(path)
	return ok
}

// Commands returns every command run so far, in order.
func (m *MemFS) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.commands)
}

// ResetCommands forgets the recorded commands.
func (m *MemFS) ResetCommands() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = nil
}

func (m *MemFS) writeLocked(path string, data []byte) {
	m.now = m.now.Add(time.Second)
	m.files[clean(path)] = memFile{data: slices.Clone(data), mtime: m.now}
}

// StatTime implements ports.FileSystem.
func (m *MemFS) StatTime(path string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[clean(path)].mtime
}

// ReadLines implements ports.FileSystem.
func (m *MemFS) ReadLines(path string) ([]string, error) {
	data, ok := m.Content(path)
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return strings.Split(strings.TrimSuffix(data, "\n"), "\n"), nil
}

// WriteFile implements ports.FileSystem.
func (m *MemFS) WriteFile(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeLocked(path, data)
	return nil
}

// AppendFile implements ports.FileSystem.
func (m *MemFS) AppendFile(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.files[clean(path)]
	m.writeLocked(path, append(slices.Clone(f.data), data...))
	return nil
}

// CopyBytes implements ports.FileSystem.
func (m *MemFS) CopyBytes(src, dst string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[clean(src)]
	if !ok {
		return 0, &fs.PathError{Op: "open", Path: src, Err: fs.ErrNotExist}
	}
	m.writeLocked(dst, f.data)
	return int64(len(f.data)), nil
}

// RemoveFile implements ports.FileSystem.
func (m *MemFS) RemoveFile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, clean(path))
	return nil
}

// ListDirectory implements ports.FileSystem.
func (m *MemFS) ListDirectory(path string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir := clean(path)
	seen := make(map[string]struct{})
	for name := range m.files {
		rel, err := filepath.Rel(dir, name)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
		seen[first] = struct{}{}
	}
	entries := make([]string, 0, len(seen))
	for name := range seen {
		entries = append(entries, name)
	}
	slices.Sort(entries)
	return entries, nil
}

// Glob implements ports.FileSystem.
func (m *MemFS) Glob(pattern string) ([]string, error) {
	if !strings.Contains(pattern, "*") {
		return []string{pattern}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var matches []string
	for name := range m.files {
		ok, err := doublestar.Match(filepath.ToSlash(clean(pattern)), filepath.ToSlash(name))
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, name)
		}
	}
	slices.Sort(matches)
	return matches, nil
}

// MkdirAll implements ports.FileSystem. Directories are implicit.
func (m *MemFS) MkdirAll(string) error {
	return nil
}

// RunCommand implements ports.CommandRunner by simulating cc, c++ and ar:
// the file after -o (or the archive after ar's flags) is written, and -MF
// receives a dependency listing of the input plus any configured Headers.
func (m *MemFS) RunCommand(_ context.Context, _, command string) (int, string, error) {
	if m.OnCommand != nil {
		m.OnCommand(command)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, command)

	args := strings.Fields(command)
	out := outputOf(args)
	if code, ok := m.Fail[out]; ok && code != 0 {
		return code, fmt.Sprintf("%s: error: simulated failure", out), nil
	}

	var input, depFile string
	for i := 0; i < len(args)-1; i++ {
		switch args[i] {
		case "-c":
			input = args[i+1]
		case "-MF":
			depFile = args[i+1]
		}
	}
	if input != "" {
		if _, ok := m.files[clean(input)]; !ok {
			return 1, fmt.Sprintf("%s: No such file or directory", input), nil
		}
	}

	if out != "" {
		m.writeLocked(out, []byte(command))
	}
	if depFile != "" {
		deps := append([]string{input}, m.Headers[input]...)
		m.writeLocked(depFile, []byte(domain.FormatDepFile(domain.DepFile{Target: out, Deps: deps})))
	}
	return 0, "", nil
}

func outputOf(args []string) string {
	if len(args) > 2 && filepath.Base(args[0]) == "ar" {
		for _, a := range args[1:] {
			if !strings.HasPrefix(a, "-") {
				return a
			}
		}
		return ""
	}
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-o" {
			return args[i+1]
		}
	}
	return ""
}

func clean(p string) string {
	return filepath.Clean(p)
}

package fs_test

import (
	"context"
	"errors"
	iofs "io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/fs"
	"go.trai.ch/kiln/internal/adapters/shell"
	"go.trai.ch/kiln/internal/core/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestAccess_StatTime(t *testing.T) {
	dir := t.TempDir()
	a := fs.NewAccess(nil)

	assert.True(t, a.StatTime(filepath.Join(dir, "missing")).IsZero())

	path := filepath.Join(dir, "a.o")
	writeFile(t, path, "x")
	stamp := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, stamp, stamp))
	assert.True(t, a.StatTime(path).Equal(stamp))
}

func TestAccess_ReadLines(t *testing.T) {
	dir := t.TempDir()
	a := fs.NewAccess(nil)

	_, err := a.ReadLines(filepath.Join(dir, "a.d"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, iofs.ErrNotExist))

	path := filepath.Join(dir, "a.d")
	require.NoError(t, a.WriteFile(path, []byte("a.o: a.cpp \\\n  a.h\n")))
	require.NoError(t, a.AppendFile(path, []byte("\tc++ -c a.cpp\n")))

	lines, err := a.ReadLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.o: a.cpp \\", "  a.h", "\tc++ -c a.cpp"}, lines)
}

func TestAccess_CopyBytes(t *testing.T) {
	dir := t.TempDir()
	a := fs.NewAccess(nil)
	src := filepath.Join(dir, "run.sh")
	writeFile(t, src, "#!/bin/sh\necho hi\n")
	require.NoError(t, os.Chmod(src, 0o755))

	dst := filepath.Join(dir, "out", "run.sh")
	require.NoError(t, a.MkdirAll(filepath.Dir(dst)))

	n, err := a.CopyBytes(src, dst)
	require.NoError(t, err)
	assert.Equal(t, int64(18), n)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho hi\n", string(data))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	_, err = a.CopyBytes(filepath.Join(dir, "nope"), dst)
	require.Error(t, err)
}

func TestAccess_RemoveFile(t *testing.T) {
	dir := t.TempDir()
	a := fs.NewAccess(nil)
	path := filepath.Join(dir, "app")
	writeFile(t, path, "bin")

	require.NoError(t, a.RemoveFile(path))
	assert.NoFileExists(t, path)
	require.NoError(t, a.RemoveFile(path), "removing a missing file is not an error")
}

func TestAccess_ListDirectory(t *testing.T) {
	dir := t.TempDir()
	a := fs.NewAccess(nil)
	writeFile(t, filepath.Join(dir, "b.cpp"), "")
	writeFile(t, filepath.Join(dir, "a.cpp"), "")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o750))

	names, err := a.ListDirectory(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.cpp", "b.cpp", "sub"}, names)
}

func TestAccess_Glob(t *testing.T) {
	dir := t.TempDir()
	a := fs.NewAccess(nil)
	for _, p := range []string{"src/main.cpp", "src/util.cpp", "src/util.h", "src/net/http.cpp", "src/net/deep/tls.cpp"} {
		writeFile(t, filepath.Join(dir, p), "")
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "src", "dir.cpp"), 0o750))

	rel := func(paths []string) []string {
		out := make([]string, 0, len(paths))
		for _, p := range paths {
			r, err := filepath.Rel(dir, p)
			require.NoError(t, err)
			out = append(out, filepath.ToSlash(r))
		}
		return out
	}

	got, err := a.Glob(filepath.Join(dir, "src", "*.cpp"))
	require.NoError(t, err)
	assert.Equal(t, []string{"src/main.cpp", "src/util.cpp"}, rel(got), "single star stays in one directory and skips directories")

	got, err = a.Glob(filepath.Join(dir, "src", "**", "*.cpp"))
	require.NoError(t, err)
	assert.Equal(t, []string{"src/main.cpp", "src/net/deep/tls.cpp", "src/net/http.cpp", "src/util.cpp"}, rel(got))
	assert.True(t, slices.IsSorted(got))

	literal := filepath.Join(dir, "src", "missing.cpp")
	got, err = a.Glob(literal)
	require.NoError(t, err)
	assert.Equal(t, []string{literal}, got)

	_, err = a.Glob(filepath.Join(dir, "[*"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestAccess_RunCommand(t *testing.T) {
	a := fs.NewAccess(shell.NewRunner())

	code, out, err := a.RunCommand(context.Background(), t.TempDir(), "echo built")
	require.NoError(t, err)
	assert.Zero(t, code)
	assert.Equal(t, "built\n", out)
}

func TestWalker_WalkDirs(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{".git/objects", ".kiln", "src/net", "build/obj", "include"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, d), 0o750))
	}
	writeFile(t, filepath.Join(dir, "src", "main.cpp"), "")

	var got []string
	for d := range fs.NewWalker().WalkDirs(dir, []string{"build"}) {
		r, err := filepath.Rel(dir, d)
		require.NoError(t, err)
		got = append(got, filepath.ToSlash(r))
	}

	assert.Equal(t, []string{".", "include", "src", "src/net"}, got)
}

func TestWalker_StopsEarly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o750))

	count := 0
	for range fs.NewWalker().WalkDirs(dir, nil) {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

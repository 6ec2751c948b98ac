package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/fs"
	"go.trai.ch/kiln/internal/adapters/watcher"
)

func nextBatch(t *testing.T, w *watcher.Watcher) []string {
	t.Helper()
	ch := make(chan []string, 1)
	go func() {
		for batch := range w.Events() {
			ch <- batch
			return
		}
	}()
	select {
	case batch := <-ch:
		return batch
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for file events")
		return nil
	}
}

func TestWatcher_ReportsChanges(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0o750))

	w := watcher.NewWatcher(fs.NewWalker(), nil, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx, []string{root}))
	defer func() { _ = w.Stop() }()

	path := filepath.Join(src, "main.cpp")
	require.NoError(t, os.WriteFile(path, []byte("int main() {}\n"), 0o600))

	assert.Contains(t, nextBatch(t, w), path)
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()

	w := watcher.NewWatcher(fs.NewWalker(), nil, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx, []string{root}))
	defer func() { _ = w.Stop() }()

	dir := filepath.Join(root, "lib")
	require.NoError(t, os.Mkdir(dir, 0o750))
	assert.Contains(t, nextBatch(t, w), dir)

	// Give the event loop a moment to register the new directory.
	time.Sleep(50 * time.Millisecond)
	path := filepath.Join(dir, "util.cpp")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	assert.Contains(t, nextBatch(t, w), path)
}

func TestWatcher_StopEndsEvents(t *testing.T) {
	w := watcher.NewWatcher(fs.NewWalker(), nil, 20*time.Millisecond)
	require.NoError(t, w.Start(context.Background(), []string{t.TempDir()}))
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	for range w.Events() {
		t.Fatal("no batch expected after stop")
	}
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	w := watcher.NewWatcher(fs.NewWalker(), nil, 0)
	require.NoError(t, w.Stop())
}

package watcher_test

import (
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/watcher"
)

func TestDebouncer_CoalescesPaths(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var (
			calls int
			got   []string
		)
		d := watcher.NewDebouncer(100*time.Millisecond, func(paths []string) {
			calls++
			got = paths
		})

		d.Add("/project/src/b.cpp")
		d.Add("/project/src/a.cpp")
		d.Add("/project/src/b.cpp")

		time.Sleep(150 * time.Millisecond)
		synctest.Wait()

		require.Equal(t, 1, calls)
		assert.Equal(t, []string{"/project/src/a.cpp", "/project/src/b.cpp"}, got)
	})
}

func TestDebouncer_TimerReset(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var (
			mu    sync.Mutex
			calls int
		)
		d := watcher.NewDebouncer(100*time.Millisecond, func([]string) {
			mu.Lock()
			calls++
			mu.Unlock()
		})

		d.Add("/project/src/a.cpp")
		time.Sleep(50 * time.Millisecond)
		d.Add("/project/include/a.h")
		time.Sleep(50 * time.Millisecond)
		synctest.Wait()

		mu.Lock()
		assert.Zero(t, calls, "a new path restarts the window")
		mu.Unlock()

		time.Sleep(60 * time.Millisecond)
		synctest.Wait()

		mu.Lock()
		assert.Equal(t, 1, calls)
		mu.Unlock()
	})
}

func TestDebouncer_Flush(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var got [][]string
		d := watcher.NewDebouncer(100*time.Millisecond, func(paths []string) {
			got = append(got, paths)
		})

		d.Flush()
		assert.Empty(t, got, "flushing nothing does not call back")

		d.Add("/project/src/a.cpp")
		d.Flush()
		require.Len(t, got, 1)
		assert.Equal(t, []string{"/project/src/a.cpp"}, got[0])

		time.Sleep(150 * time.Millisecond)
		synctest.Wait()
		assert.Len(t, got, 1, "the stopped timer does not fire again")
	})
}

func TestDebouncer_NilCallback(t *testing.T) {
	synctest.Test(t, func(_ *testing.T) {
		d := watcher.NewDebouncer(50*time.Millisecond, nil)
		d.Add("/project/src/a.cpp")
		time.Sleep(100 * time.Millisecond)
		synctest.Wait()
		d.Flush()
	})
}

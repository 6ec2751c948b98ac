package scheduler_test

import (
	"bytes"
	"context"
	"maps"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/engine/enginetest"
	"go.trai.ch/kiln/internal/engine/planner"
	"go.trai.ch/kiln/internal/engine/rules"
	"go.trai.ch/kiln/internal/engine/scheduler"
	"go.trai.ch/kiln/internal/engine/session"
)

type harness struct {
	fs      *enginetest.MemFS
	store   *enginetest.MemStore
	planner *planner.Planner
	sched   *scheduler.Scheduler
	project *domain.Project
}

func newHarness() *harness {
	fs := enginetest.NewMemFS()
	store := enginetest.NewMemStore()
	logger := &enginetest.Logger{}
	engine := rules.NewEngine(fs, store, logger)
	return &harness{
		fs:      fs,
		store:   store,
		planner: planner.New(fs, engine, store, logger),
		sched:   scheduler.NewScheduler(engine),
		project: &domain.Project{
			Root:      ".",
			Toolchain: domain.DefaultToolchain(),
			Targets: []domain.Target{{
				Name:      "main",
				BuildType: domain.BuildExecutable,
				Sources:   []string{"src/*.cpp"},
				Dir:       "build",
				ObjDir:    "build/obj",
			}},
		},
	}
}

// build runs one full invocation and returns the commands it executed.
func (h *harness) build(t *testing.T, jobs int) []string {
	t.Helper()
	h.fs.ResetCommands()
	sess := session.New(&bytes.Buffer{}, nil, nil, nil, session.Options{Jobs: jobs})

	plan, err := h.planner.BuildGraph(context.Background(), sess, h.project)
	require.NoError(t, err)
	require.NoError(t, h.planner.CreateDirectories(plan))
	require.NoError(t, h.sched.RunBuild(context.Background(), sess, plan))
	return h.fs.Commands()
}

func TestRunBuild_IncrementalScenario(t *testing.T) {
	h := newHarness()
	h.fs.Touch("src/a.cpp", "src/b.cpp")

	first := h.build(t, 4)
	assert.Len(t, first, 3, "two compiles and one link")
	assert.True(t, h.fs.Exists("build/main"))

	assert.Empty(t, h.build(t, 4), "an unchanged tree does no work")

	h.fs.Touch("src/a.cpp")
	again := h.build(t, 4)
	require.Len(t, again, 2)
	assert.Contains(t, again[0], "-c src/a.cpp")
	assert.Contains(t, again[1], "-o build/main")
}

func TestRunBuild_HeaderChangeRebuildsDependents(t *testing.T) {
	h := newHarness()
	h.fs.Touch("src/a.cpp", "src/b.cpp", "include/a.h")
	h.fs.Headers["src/a.cpp"] = []string{"include/a.h"}

	require.Len(t, h.build(t, 2), 3)

	h.fs.Touch("include/a.h")
	again := h.build(t, 2)
	require.Len(t, again, 2)
	assert.Contains(t, again[0], "-c src/a.cpp")
}

func TestRunBuild_ChangedFlagsRecompile(t *testing.T) {
	h := newHarness()
	h.fs.Touch("src/a.cpp", "src/b.cpp")
	require.Len(t, h.build(t, 2), 3)

	h.project.Targets[0].Flags = []string{"-O2"}
	assert.Len(t, h.build(t, 2), 3, "a new compile command invalidates every object and the link")
}

func TestRunBuild_PoolSizeDoesNotChangeResult(t *testing.T) {
	run := func(jobs int) ([]string, map[string]string) {
		h := newHarness()
		h.project.Targets = append(h.project.Targets,
			domain.Target{Name: "core", BuildType: domain.BuildStaticLibrary, Sources: []string{"lib/**/*.cpp"}, Dir: "build", ObjDir: "build/obj"},
			domain.Target{Name: "plug", BuildType: domain.BuildSharedLibrary, Sources: []string{"plug/*.c"}, Dir: "build/lib", ObjDir: "build/obj"},
		)
		h.project.Targets[0].Link = []string{"core", "plug"}
		h.fs.Touch("src/a.cpp", "src/b.cpp", "lib/x/c.cpp", "lib/d.cpp", "plug/p.c")

		cmds := h.build(t, jobs)
		slices.Sort(cmds)

		files := map[string]string{}
		for _, f := range []string{"build/main", "build/libcore.a", "build/lib/libplug.so"} {
			data, ok := h.fs.Content(f)
			require.True(t, ok, f)
			files[f] = data
		}
		return cmds, files
	}

	cmds1, files1 := run(1)
	cmdsN, filesN := run(8)
	assert.Equal(t, cmds1, cmdsN)
	assert.True(t, maps.Equal(files1, filesN))
	assert.Len(t, cmds1, 8)
	assert.Contains(t, files1["build/main"], "-Wl,-rpath,'$ORIGIN/lib'")
}

func TestRunBuild_CompileFailureSkipsLink(t *testing.T) {
	h := newHarness()
	h.fs.Touch("src/a.cpp", "src/b.cpp")
	h.fs.Fail["build/obj/main/src/a.o"] = 1

	sess := session.New(&bytes.Buffer{}, nil, nil, nil, session.Options{Jobs: 1})
	plan, err := h.planner.BuildGraph(context.Background(), sess, h.project)
	require.NoError(t, err)

	err = h.sched.RunBuild(context.Background(), sess, plan)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCommandFailed)
	assert.False(t, h.fs.Exists("build/main"))
	for _, cmd := range h.fs.Commands() {
		assert.NotContains(t, cmd, "-o build/main ")
	}
}

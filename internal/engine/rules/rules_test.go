package rules_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.trai.ch/kiln/internal/engine/enginetest"
	"go.trai.ch/kiln/internal/engine/rules"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	fs     *enginetest.MemFS
	store  *enginetest.MemStore
	logger *enginetest.Logger
	engine *rules.Engine
	g      *domain.Graph
}

func newFixture() *fixture {
	f := &fixture{
		fs:     enginetest.NewMemFS(),
		store:  enginetest.NewMemStore(),
		logger: &enginetest.Logger{},
		g:      domain.NewGraph(),
	}
	f.engine = rules.NewEngine(f.fs, f.store, f.logger)
	return f
}

func (f *fixture) add(t *testing.T, n *domain.Node) domain.NodeID {
	t.Helper()
	id, err := f.g.AddNode(n)
	require.NoError(t, err)
	return id
}

func compileNode(src, obj string) *domain.Node {
	dep := domain.StripExtension(obj) + ".d"
	return &domain.Node{
		Target:    "app",
		Rule:      domain.CompileRule{Compiler: "c++", Flags: []string{"-O2"}},
		BuildType: domain.BuildObject,
		Output:    domain.NewPath(obj),
		Outputs:   domain.Paths(obj, dep),
		Inputs:    domain.Paths(src),
		DepFile:   domain.NewPath(dep),
	}
}

func TestCompileCommand(t *testing.T) {
	n := compileNode("src/my file.cpp", "obj/my file.o")
	got := rules.CompileCommand(n, domain.CompileRule{Compiler: "cc", Flags: []string{"-Iinclude", "-DNDEBUG"}})
	assert.Equal(t, "cc -c 'src/my file.cpp' -o 'obj/my file.o' -MMD -MF 'obj/my file.d' -Iinclude -DNDEBUG", got)
}

func TestPrepare_MissingOutputIsDirty(t *testing.T) {
	f := newFixture()
	f.fs.Touch("src/a.cpp")
	id := f.add(t, compileNode("src/a.cpp", "obj/a.o"))

	require.NoError(t, f.engine.Prescan(f.g, id))
	require.NoError(t, f.engine.Prepare(f.g, id))

	n := f.g.Node(id)
	assert.True(t, n.IsDirty())
	assert.True(t, n.IsPrepared())
	assert.True(t, n.IncludeInBinary)
	assert.Equal(t, "obj/a.o", n.LinkString)
	assert.True(t, n.ChangedTime.IsZero())
}

func TestCompile_WorkAppendsCommandAndBecomesFresh(t *testing.T) {
	f := newFixture()
	f.fs.Touch("src/a.cpp", "include/a.h")
	f.fs.Headers["src/a.cpp"] = []string{"include/a.h"}

	build := func() *domain.Node {
		g := domain.NewGraph()
		id, err := g.AddNode(compileNode("src/a.cpp", "obj/a.o"))
		require.NoError(t, err)
		require.NoError(t, f.engine.Prescan(g, id))
		require.NoError(t, f.engine.Prepare(g, id))
		n := g.Node(id)
		if n.IsDirty() {
			_, err := f.engine.Work(context.Background(), g, id)
			require.NoError(t, err)
		}
		return n
	}

	first := build()
	assert.True(t, first.IsDirty())

	dep, ok := f.fs.Content("obj/a.d")
	require.True(t, ok)
	assert.Contains(t, dep, "\t"+first.Command+"\n")

	second := build()
	assert.False(t, second.IsDirty())
	assert.Equal(t, second.Command, second.RecordedCommand)
	assert.Equal(t, domain.Paths("src/a.cpp", "include/a.h"), second.Inputs)

	f.fs.Touch("include/a.h")
	assert.True(t, build().IsDirty(), "touching a header recorded in the dependency file rebuilds")
}

func TestCompile_ChangedCommandIsDirty(t *testing.T) {
	f := newFixture()
	f.fs.Touch("src/a.cpp", "obj/a.o")
	f.fs.Put("obj/a.d", "obj/a.o: src/a.cpp\n\tc++ -c src/a.cpp -o obj/a.o -MMD -MF obj/a.d -O0\n")

	id := f.add(t, compileNode("src/a.cpp", "obj/a.o"))
	require.NoError(t, f.engine.Prescan(f.g, id))
	require.NoError(t, f.engine.Prepare(f.g, id))

	n := f.g.Node(id)
	assert.True(t, n.IsDirty())
	assert.Equal(t, "c++ -c src/a.cpp -o obj/a.o -MMD -MF obj/a.d -O0", n.RecordedCommand)
}

func TestPrescan_KnownDepsBecomeEdges(t *testing.T) {
	f := newFixture()
	gen := f.add(t, &domain.Node{Rule: domain.CopyRule{}, BuildType: domain.BuildCopy, Output: domain.NewPath("gen/config.h"), Inputs: domain.Paths("config.h.in")})
	obj := f.add(t, compileNode("src/a.cpp", "obj/a.o"))
	f.fs.Put("obj/a.d", "obj/a.o: src/a.cpp gen/config.h \\\n  /usr/include/stdio.h\n")

	require.NoError(t, f.engine.Prescan(f.g, obj))

	n := f.g.Node(obj)
	assert.Equal(t, []domain.NodeID{gen}, n.Dependencies())
	assert.Equal(t, domain.Paths("src/a.cpp", "/usr/include/stdio.h"), n.Inputs)
}

func TestPrescan_MissingDepFile(t *testing.T) {
	f := newFixture()
	id := f.add(t, compileNode("src/a.cpp", "obj/a.o"))

	require.NoError(t, f.engine.Prescan(f.g, id))
	assert.Empty(t, f.g.Node(id).Dependencies())
	assert.Empty(t, f.g.Node(id).RecordedCommand)
}

func TestLink_CommandsAndRpath(t *testing.T) {
	f := newFixture()
	a := f.add(t, compileNode("src/a.cpp", "build/obj/app/a.o"))
	b := f.add(t, compileNode("src/b.cpp", "build/obj/app/b.o"))
	s := f.add(t, compileNode("src/s.cpp", "build/obj/core/s.o"))
	libObj := f.add(t, compileNode("src/l.cpp", "build/obj/plug/l.o"))

	static := f.add(t, &domain.Node{
		Target: "core", Rule: domain.LinkRule{Archiver: "ar", Verbose: true},
		BuildType: domain.BuildStaticLibrary, Output: domain.NewPath("build/libcore.a"),
	})
	shared := f.add(t, &domain.Node{
		Target: "plug", Rule: domain.LinkRule{Driver: "c++"},
		BuildType: domain.BuildSharedLibrary, Output: domain.NewPath("build/lib/libplug.so"),
	})
	exe := f.add(t, &domain.Node{
		Target:    "app",
		Rule:      domain.LinkRule{Driver: "c++", Libs: []string{"-lpthread"}, Flags: []string{"-static-libstdc++"}},
		BuildType: domain.BuildExecutable, Output: domain.NewPath("build/bin/app"),
	})

	f.g.AddDependency(static, s)
	f.g.AddDependency(shared, libObj)
	f.g.AddDependency(exe, a)
	f.g.AddDependency(exe, b)
	f.g.AddDependency(exe, static)
	f.g.AddDependency(exe, shared)
	require.NoError(t, f.g.Validate())

	for id := range f.g.PostOrder() {
		require.NoError(t, f.engine.Prepare(f.g, id))
	}

	want := map[domain.NodeID]string{
		static: "ar -rs -v build/libcore.a build/obj/core/s.o",
		shared: "c++ -shared -o build/lib/libplug.so -Wl,--start-group build/obj/plug/l.o -Wl,--end-group",
		exe: "c++ -o build/bin/app -Wl,--start-group build/obj/app/a.o build/obj/app/b.o build/libcore.a " +
			"-Lbuild/lib -lplug -lpthread -Wl,--end-group -static-libstdc++ -Wl,-rpath,'$ORIGIN/../lib'",
	}
	got := map[domain.NodeID]string{}
	for id := range want {
		got[id] = f.g.Node(id).Command
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("link commands mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "-Lbuild/lib -lplug", f.g.Node(shared).LinkString)
	assert.False(t, f.g.Node(exe).IncludeInBinary)
	assert.True(t, f.g.Node(static).IncludeInBinary)
}

func TestRpathFlags_DistinctDirectories(t *testing.T) {
	g := domain.NewGraph()
	exe, _ := g.AddNode(&domain.Node{BuildType: domain.BuildTest, Output: domain.NewPath("build/t")})
	for _, out := range []string{"build/liba.so", "build/libb.so", "lib/x/libc.so"} {
		id, err := g.AddNode(&domain.Node{BuildType: domain.BuildSharedLibrary, Output: domain.NewPath(out)})
		require.NoError(t, err)
		g.AddDependency(exe, id)
	}

	got := rules.RpathFlags(g, g.Node(exe))
	want := []string{"-Wl,-rpath,'$ORIGIN'", "-Wl,-rpath,'$ORIGIN/../lib/x'"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rpath mismatch (-want +got):\n%s", diff)
	}
}

func TestLink_RootDoesNoWork(t *testing.T) {
	f := newFixture()
	obj := f.add(t, compileNode("src/a.cpp", "obj/a.o"))
	root := f.add(t, &domain.Node{Target: domain.RootTargetName, Rule: domain.LinkRule{Root: true}, BuildType: domain.BuildExecutable})
	f.g.AddDependency(root, obj)
	f.fs.Touch("src/a.cpp")

	require.NoError(t, f.engine.Prepare(f.g, obj))
	require.NoError(t, f.engine.Prepare(f.g, root))
	assert.True(t, f.g.Node(root).IsDirty(), "root follows its dependencies")
	assert.Empty(t, f.g.Node(root).Command)

	res, err := f.engine.Work(context.Background(), f.g, root)
	require.NoError(t, err)
	assert.Equal(t, rules.Result{}, res)
	assert.Empty(t, f.fs.Commands())
}

func TestLink_FingerprintChangeIsDirty(t *testing.T) {
	f := newFixture()
	f.fs.Touch("build/app", "build/tool")
	require.NoError(t, f.store.Put("build/app", "c++ -o build/app old-flags"))

	app := f.add(t, &domain.Node{Rule: domain.LinkRule{Driver: "c++"}, BuildType: domain.BuildExecutable, Output: domain.NewPath("build/app")})
	tool := f.add(t, &domain.Node{Rule: domain.LinkRule{Driver: "c++"}, BuildType: domain.BuildExecutable, Output: domain.NewPath("build/tool")})

	require.NoError(t, f.engine.Prepare(f.g, app))
	require.NoError(t, f.engine.Prepare(f.g, tool))
	assert.True(t, f.g.Node(app).IsDirty())
	assert.False(t, f.g.Node(tool).IsDirty(), "an output without a recorded fingerprint is not dirty")

	_, err := f.engine.Work(context.Background(), f.g, app)
	require.NoError(t, err)
	assert.Equal(t, "c++ -o build/app -Wl,--start-group -Wl,--end-group", f.store.Entries()["build/app"])
}

func TestWork_CommandFailure(t *testing.T) {
	f := newFixture()
	f.fs.Touch("src/a.cpp")
	f.fs.Fail["obj/a.o"] = 2
	id := f.add(t, compileNode("src/a.cpp", "obj/a.o"))
	require.NoError(t, f.engine.Prepare(f.g, id))

	res, err := f.engine.Work(context.Background(), f.g, id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCommandFailed))
	assert.Contains(t, res.Output, "simulated failure")

	var zErr *zerr.Error
	require.ErrorAs(t, err, &zErr)
	assert.Equal(t, 2, zErr.Metadata()["exit_code"])
	assert.Equal(t, "obj/a.o", zErr.Metadata()["path"])
}

func TestWork_AppendFailureIsCommandFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	fa := mocks.NewMockFileAccess(ctrl)
	engine := rules.NewEngine(fa, enginetest.NewMemStore(), &enginetest.Logger{})

	g := domain.NewGraph()
	id, err := g.AddNode(compileNode("src/a.cpp", "obj/a.o"))
	require.NoError(t, err)
	g.Node(id).Command = "c++ -c src/a.cpp"

	fa.EXPECT().RunCommand(gomock.Any(), "", "c++ -c src/a.cpp").Return(0, "", nil)
	fa.EXPECT().AppendFile("obj/a.d", []byte("\tc++ -c src/a.cpp\n")).Return(errors.New("disk full"))

	_, err = engine.Work(context.Background(), g, id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCommandFailed))
	assert.ErrorContains(t, err, "disk full")
}

func TestCopy(t *testing.T) {
	f := newFixture()
	f.fs.Put("res/data.txt", "hello world")
	id := f.add(t, &domain.Node{
		Target: "assets", Rule: domain.CopyRule{}, BuildType: domain.BuildCopy,
		Output: domain.NewPath("build/data.txt"), Inputs: domain.Paths("res/data.txt"),
	})

	require.NoError(t, f.engine.Prepare(f.g, id))
	n := f.g.Node(id)
	assert.True(t, n.IsDirty())
	assert.False(t, n.IncludeInBinary)
	assert.Empty(t, n.Command)

	res, err := f.engine.Work(context.Background(), f.g, id)
	require.NoError(t, err)
	assert.Equal(t, "copy res/data.txt -> build/data.txt (11 B)", res.Description)

	data, ok := f.fs.Content("build/data.txt")
	require.True(t, ok)
	assert.Equal(t, "hello world", data)
	assert.Equal(t, "cp res/data.txt build/data.txt", rules.CopyCommand(n))
}

func TestCopy_SameFile(t *testing.T) {
	f := newFixture()
	f.fs.Put("res/data.txt", "x")
	id := f.add(t, &domain.Node{
		Rule: domain.CopyRule{}, BuildType: domain.BuildCopy,
		Output: domain.NewPath("res/data.txt"), Inputs: domain.Paths("res/data.txt"),
	})

	res, err := f.engine.Work(context.Background(), f.g, id)
	require.NoError(t, err)
	assert.Empty(t, res.Description)
	require.Len(t, f.logger.Messages, 1)
	assert.Contains(t, f.logger.Messages[0], "source and target is the same file, skipping")

	require.NoError(t, f.engine.Clean(f.g, id))
	assert.True(t, f.fs.Exists("res/data.txt"), "clean never removes a copy's own source")
}

func TestCopy_MissingSource(t *testing.T) {
	f := newFixture()
	id := f.add(t, &domain.Node{
		Rule: domain.CopyRule{}, BuildType: domain.BuildCopy,
		Output: domain.NewPath("build/x"), Inputs: domain.Paths("res/x"),
	})

	_, err := f.engine.Work(context.Background(), f.g, id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCommandFailed))
}

func TestClean(t *testing.T) {
	f := newFixture()
	f.fs.Touch("obj/a.o", "obj/a.d", "src/a.cpp")
	id := f.add(t, compileNode("src/a.cpp", "obj/a.o"))

	require.NoError(t, f.engine.Clean(f.g, id))
	assert.False(t, f.fs.Exists("obj/a.o"))
	assert.False(t, f.fs.Exists("obj/a.d"))
	assert.True(t, f.fs.Exists("src/a.cpp"))
	assert.Equal(t, []string{"INFO removing obj/a.o...", "INFO removing obj/a.d..."}, f.logger.Messages)
}

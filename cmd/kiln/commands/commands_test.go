package commands_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/cmd/kiln/commands"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/build"
)

type call struct {
	method  string
	targets []string
	path    string
	opts    app.Options
}

type mockApp struct {
	calls []call
	err   error
}

func (m *mockApp) record(method string, targets []string, path string, opts app.Options) error {
	m.calls = append(m.calls, call{method: method, targets: targets, path: path, opts: opts})
	return m.err
}

func (m *mockApp) Build(_ context.Context, targets []string, opts app.Options) error {
	return m.record("build", targets, "", opts)
}

func (m *mockApp) Rebuild(_ context.Context, targets []string, opts app.Options) error {
	return m.record("rebuild", targets, "", opts)
}

func (m *mockApp) Clean(_ context.Context, targets []string, opts app.Options) error {
	return m.record("clean", targets, "", opts)
}

func (m *mockApp) Test(_ context.Context, targets []string, opts app.Options) error {
	return m.record("test", targets, "", opts)
}

func (m *mockApp) Watch(_ context.Context, targets []string, opts app.Options) error {
	return m.record("watch", targets, "", opts)
}

func (m *mockApp) List(_ context.Context, opts app.Options) error {
	return m.record("list", nil, "", opts)
}

func (m *mockApp) Tree(_ context.Context, target string, opts app.Options) error {
	var targets []string
	if target != "" {
		targets = []string{target}
	}
	return m.record("tree", targets, "", opts)
}

func (m *mockApp) Ninja(_ context.Context, targets []string, path string, opts app.Options) error {
	return m.record("ninja", targets, path, opts)
}

func execute(t *testing.T, m *mockApp, args ...string) (string, error) {
	t.Helper()
	cli := commands.New(m)
	buf := new(bytes.Buffer)
	cli.SetOutput(buf, buf)
	cli.SetArgs(args)
	err := cli.Execute(context.Background())
	return buf.String(), err
}

func TestCommands_Dispatch(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want call
	}{
		{
			name: "default builds",
			args: []string{"app", "core"},
			want: call{method: "build", targets: []string{"app", "core"}},
		},
		{
			name: "default with no targets",
			args: []string{},
			want: call{method: "build", targets: []string{}},
		},
		{
			name: "build with flags",
			args: []string{"build", "-j", "4", "-v", "--config", "sub/kiln.yaml", "app"},
			want: call{method: "build", targets: []string{"app"}, opts: app.Options{ConfigPath: "sub/kiln.yaml", Jobs: 4, Verbose: true}},
		},
		{
			name: "rebuild",
			args: []string{"rebuild", "-d"},
			want: call{method: "rebuild", targets: []string{}, opts: app.Options{Debug: true}},
		},
		{
			name: "clean",
			args: []string{"clean", "--json"},
			want: call{method: "clean", targets: []string{}, opts: app.Options{JSON: true}},
		},
		{
			name: "test",
			args: []string{"test", "unit"},
			want: call{method: "test", targets: []string{"unit"}},
		},
		{
			name: "watch",
			args: []string{"-c", "proj", "watch", "app"},
			want: call{method: "watch", targets: []string{"app"}, opts: app.Options{ConfigPath: "proj"}},
		},
		{
			name: "list alias",
			args: []string{"ls"},
			want: call{method: "list"},
		},
		{
			name: "tree of target",
			args: []string{"tree", "app"},
			want: call{method: "tree", targets: []string{"app"}},
		},
		{
			name: "ninja output",
			args: []string{"ninja", "-o", "out/build.ninja"},
			want: call{method: "ninja", targets: []string{}, path: "out/build.ninja"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockApp{}
			_, err := execute(t, m, tt.args...)
			require.NoError(t, err)
			require.Len(t, m.calls, 1)
			assert.Equal(t, tt.want, m.calls[0])
		})
	}
}

func TestCommands_VerboseShorthand(t *testing.T) {
	for _, args := range [][]string{{"-v"}, {"-v", "build"}, {"build", "-v"}, {"-v", "list"}} {
		m := &mockApp{}
		require.NotPanics(t, func() {
			_, err := execute(t, m, args...)
			require.NoError(t, err)
		}, "args %v", args)
		require.Len(t, m.calls, 1)
		assert.True(t, m.calls[0].opts.Verbose, "args %v", args)
	}
}

func TestCommands_ReturnsAppError(t *testing.T) {
	m := &mockApp{err: errors.New("simulated error")}

	_, err := execute(t, m, "build", "app")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulated error")
}

func TestCommands_TreeRejectsTwoTargets(t *testing.T) {
	m := &mockApp{}

	_, err := execute(t, m, "tree", "a", "b")
	require.Error(t, err)
	assert.Empty(t, m.calls)
}

func TestCommands_Version(t *testing.T) {
	out, err := execute(t, &mockApp{}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "kiln version "+build.Version)
	assert.Contains(t, out, "commit: "+build.Commit)

	out, err = execute(t, &mockApp{}, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, build.Version)
}

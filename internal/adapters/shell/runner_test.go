package shell_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/shell"
)

func TestRunner_CombinedOutput(t *testing.T) {
	r := shell.NewRunner()

	code, out, err := r.RunCommand(context.Background(), "", "echo out; echo err >&2")
	require.NoError(t, err)
	assert.Zero(t, code)
	assert.Equal(t, "out\nerr\n", out)
}

func TestRunner_ExitCode(t *testing.T) {
	r := shell.NewRunner()

	code, out, err := r.RunCommand(context.Background(), "", "echo 'main.cpp:1: error' >&2; exit 3")
	require.NoError(t, err, "a failing command is not a start error")
	assert.Equal(t, 3, code)
	assert.Equal(t, "main.cpp:1: error\n", out)
}

func TestRunner_Dir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker"), []byte("x"), 0o600))

	r := shell.NewRunner()
	code, out, err := r.RunCommand(context.Background(), dir, "ls")
	require.NoError(t, err)
	assert.Zero(t, code)
	assert.Equal(t, "marker\n", out)
}

func TestRunner_StartFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := shell.NewRunner()
	_, _, err := r.RunCommand(ctx, "", "true")
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to start command")
}

func TestRunner_DoesNotEchoCommand(t *testing.T) {
	code, out, err := shell.NewRunner().RunCommand(context.Background(), "", "true")
	require.NoError(t, err)
	assert.Zero(t, code)
	assert.Empty(t, out)
}

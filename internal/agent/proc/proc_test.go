package proc

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/internal/common/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", OutputPath: "stderr"})
	require.NoError(t, err)
	return log
}

// writeScript drops an executable shell script into a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-agent")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func start(t *testing.T, spec LaunchSpec) Handle {
	t.Helper()
	launcher := NewExecLauncher(testLogger(t))
	handle, err := launcher.Start(context.Background(), spec)
	require.NoError(t, err)
	t.Cleanup(handle.Kill)
	return handle
}

func waitExit(t *testing.T, handle Handle) ExitStatus {
	t.Helper()
	select {
	case status := <-handle.Done():
		return status
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit")
		return ExitStatus{}
	}
}

func TestLauncherPipesStdio(t *testing.T) {
	path := writeScript(t, `read line
echo "got: $line"
`)
	handle := start(t, LaunchSpec{Path: path, WorkDir: t.TempDir()})

	_, err := handle.Stdin().Write([]byte("hello\n"))
	require.NoError(t, err)

	scanner := bufio.NewScanner(handle.Stdout())
	require.True(t, scanner.Scan())
	assert.Equal(t, "got: hello", scanner.Text())

	status := waitExit(t, handle)
	assert.Equal(t, 0, status.Code)
}

func TestLauncherReportsExitCode(t *testing.T) {
	path := writeScript(t, "exit 3\n")
	handle := start(t, LaunchSpec{Path: path, WorkDir: t.TempDir()})

	status := waitExit(t, handle)
	assert.Equal(t, 3, status.Code)
	assert.Error(t, status.Err)
}

func TestLauncherCapturesStderr(t *testing.T) {
	path := writeScript(t, `echo "authentication required" >&2
echo "please run /login" >&2
exit 1
`)
	handle := start(t, LaunchSpec{Path: path, WorkDir: t.TempDir()})

	status := waitExit(t, handle)
	assert.Equal(t, 1, status.Code)

	lines := handle.RecentStderr()
	require.Len(t, lines, 2)
	assert.Equal(t, "authentication required", lines[0])
	assert.Equal(t, "please run /login", lines[1])
}

func TestLauncherKill(t *testing.T) {
	path := writeScript(t, "sleep 60\n")
	handle := start(t, LaunchSpec{Path: path, WorkDir: t.TempDir()})

	handle.Kill()
	status := waitExit(t, handle)
	assert.NotEqual(t, 0, status.Code)
}

func TestLauncherSandboxFlag(t *testing.T) {
	path := writeScript(t, `echo "$@"
`)
	handle := start(t, LaunchSpec{Path: path, WorkDir: t.TempDir(), SandboxMode: "strict"})

	scanner := bufio.NewScanner(handle.Stdout())
	require.True(t, scanner.Scan())
	assert.Equal(t, "--sandbox strict", scanner.Text())
	waitExit(t, handle)
}

func TestLauncherExtraEnv(t *testing.T) {
	path := writeScript(t, `echo "$AGENTDECK_TEST_VAR"
`)
	handle := start(t, LaunchSpec{
		Path:    path,
		WorkDir: t.TempDir(),
		Env:     map[string]string{"AGENTDECK_TEST_VAR": "wired"},
	})

	scanner := bufio.NewScanner(handle.Stdout())
	require.True(t, scanner.Scan())
	assert.Equal(t, "wired", scanner.Text())
	waitExit(t, handle)
}

func TestLauncherMissingBinary(t *testing.T) {
	launcher := NewExecLauncher(testLogger(t))
	_, err := launcher.Start(context.Background(), LaunchSpec{
		Path:    filepath.Join(t.TempDir(), "does-not-exist"),
		WorkDir: t.TempDir(),
	})
	assert.Error(t, err)
}

package locate

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

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

func writeBinary(t *testing.T, dir, base string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, binaryName(base))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func TestLocateFindsBinary(t *testing.T) {
	dir := t.TempDir()
	want := writeBinary(t, dir, "opencode")

	l := NewLocatorWithDirs([]string{dir}, testLogger(t))

	got, err := l.Locate("opencode")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, l.Available("opencode"))
}

func TestLocatePrefersEarlierDirectory(t *testing.T) {
	bundled := t.TempDir()
	user := t.TempDir()
	want := writeBinary(t, bundled, "opencode")
	writeBinary(t, user, "opencode")

	l := NewLocatorWithDirs([]string{bundled, user}, testLogger(t))

	got, err := l.Locate("opencode")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLocateFallsBackToLegacyName(t *testing.T) {
	dir := t.TempDir()
	want := writeBinary(t, dir, "claude")

	l := NewLocatorWithDirs([]string{dir}, testLogger(t))

	got, err := l.Locate("claude-code")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLocatePrefersCurrentNameOverLegacy(t *testing.T) {
	dir := t.TempDir()
	want := writeBinary(t, dir, "claude-code")
	writeBinary(t, dir, "claude")

	l := NewLocatorWithDirs([]string{dir}, testLogger(t))

	got, err := l.Locate("claude-code")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLocateCurrentNameBeatsLegacyAcrossDirectories(t *testing.T) {
	bundled := t.TempDir()
	user := t.TempDir()
	writeBinary(t, bundled, "claude")
	want := writeBinary(t, user, "claude-code")

	l := NewLocatorWithDirs([]string{bundled, user}, testLogger(t))

	// A stale legacy install in an earlier directory must not shadow the
	// current binary in a later one.
	got, err := l.Locate("claude-code")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLocateErrorListsEveryCandidate(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()

	l := NewLocatorWithDirs([]string{first, second}, testLogger(t))

	_, err := l.Locate("claude-code")
	require.Error(t, err)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "claude-code", notFound.AgentID)
	// Both directories, current plus legacy name in each.
	assert.Len(t, notFound.Tried, 4)
	assert.Contains(t, err.Error(), first)
	assert.Contains(t, err.Error(), second)
}

func TestLocateUnknownAgent(t *testing.T) {
	l := NewLocatorWithDirs([]string{t.TempDir()}, testLogger(t))

	_, err := l.Locate("nonexistent-agent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown agent type")
}

func TestLocateIgnoresDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, binaryName("opencode")), 0o755))

	l := NewLocatorWithDirs([]string{dir}, testLogger(t))
	assert.False(t, l.Available("opencode"))
}

func TestListCoversCatalog(t *testing.T) {
	dir := t.TempDir()
	writeBinary(t, dir, "opencode")

	l := NewLocatorWithDirs([]string{dir}, testLogger(t))

	statuses := l.List()
	require.Len(t, statuses, len(Catalog()))

	byID := make(map[string]Status, len(statuses))
	for _, s := range statuses {
		byID[s.ID] = s
	}
	assert.True(t, byID["opencode"].Available)
	assert.False(t, byID["claude-code"].Available)
	assert.Empty(t, byID["claude-code"].Path)
}

func TestBinaryNameSuffix(t *testing.T) {
	name := binaryName("opencode")
	if runtime.GOOS == "windows" {
		assert.Equal(t, "opencode.exe", name)
	} else {
		assert.Equal(t, "opencode", name)
	}
}

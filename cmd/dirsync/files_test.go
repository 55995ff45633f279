package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestTrackListAndSearch(t *testing.T) {
	dataDir := t.TempDir()
	docs := t.TempDir()
	writeFile(t, filepath.Join(docs, "notes.txt"), "hello")
	writeFile(t, filepath.Join(docs, "sub", "report.md"), "# report")
	writeFile(t, filepath.Join(docs, ".secret"), "shh")

	out, err := runCLI(t, dataDir, "track", docs)
	require.NoError(t, err)
	assert.Contains(t, out, "Tracking "+docs)

	out, err = runCLI(t, dataDir, "track", docs)
	require.NoError(t, err)
	assert.Contains(t, out, "already tracked")

	out, err = runCLI(t, dataDir, "tracked")
	require.NoError(t, err)
	assert.Contains(t, out, docs)

	// no argument lists the tracked directories themselves
	out, err = runCLI(t, dataDir, "ls")
	require.NoError(t, err)
	assert.Contains(t, out, docs+"/")

	out, err = runCLI(t, dataDir, "ls", docs)
	require.NoError(t, err)
	assert.Contains(t, out, "notes.txt")
	assert.Contains(t, out, "sub/")
	assert.Contains(t, out, ".secret")

	out, err = runCLI(t, dataDir, "ls", docs, "-H")
	require.NoError(t, err)
	assert.Contains(t, out, "notes.txt")
	assert.NotContains(t, out, ".secret")

	out, err = runCLI(t, dataDir, "ls", docs, "--type", "folder")
	require.NoError(t, err)
	assert.Contains(t, out, "sub/")
	assert.NotContains(t, out, "notes.txt")

	out, err = runCLI(t, dataDir, "search", "REPORT")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(docs, "sub", "report.md"))
	assert.NotContains(t, out, "notes.txt")

	out, err = runCLI(t, dataDir, "search", "*.txt")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(docs, "notes.txt"))

	out, err = runCLI(t, dataDir, "search", "nothing-like-this")
	require.ErrorIs(t, err, errOperationsFailed)
	assert.Contains(t, out, "No files matching")

	out, err = runCLI(t, dataDir, "untrack", docs)
	require.NoError(t, err)
	assert.Contains(t, out, "Stopped tracking "+docs)

	out, err = runCLI(t, dataDir, "tracked")
	require.NoError(t, err)
	assert.NotContains(t, out, docs)
}

func TestResyncReportsChanges(t *testing.T) {
	dataDir := t.TempDir()
	docs := t.TempDir()
	writeFile(t, filepath.Join(docs, "a.txt"), "a")

	_, err := runCLI(t, dataDir, "track", docs)
	require.NoError(t, err)

	writeFile(t, filepath.Join(docs, "b.txt"), "b")
	require.NoError(t, os.Remove(filepath.Join(docs, "a.txt")))

	out, err := runCLI(t, dataDir, "resync")
	require.NoError(t, err)
	assert.Contains(t, out, "2 changes in "+docs)
}

func TestCopyMoveAndDelete(t *testing.T) {
	dataDir := t.TempDir()
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "a")
	writeFile(t, filepath.Join(src, "b.txt"), "b")

	out, err := runCLI(t, dataDir, "cp", filepath.Join(src, "a.txt"), dst)
	require.NoError(t, err)
	assert.Contains(t, out, "Copied 1 file")
	assert.FileExists(t, filepath.Join(src, "a.txt"))
	assert.FileExists(t, filepath.Join(dst, "a.txt"))

	out, err = runCLI(t, dataDir, "mv", filepath.Join(src, "b.txt"), dst)
	require.NoError(t, err)
	assert.Contains(t, out, "Cut 1 file")
	assert.NoFileExists(t, filepath.Join(src, "b.txt"))
	assert.FileExists(t, filepath.Join(dst, "b.txt"))

	// pasting a file onto itself fails once and is reported
	out, err = runCLI(t, dataDir, "cp", filepath.Join(src, "a.txt"), src)
	require.ErrorIs(t, err, errOperationsFailed)
	assert.Contains(t, out, "Failed to paste")

	out, err = runCLI(t, dataDir, "rm", filepath.Join(dst, "a.txt"), filepath.Join(dst, "b.txt"))
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 2 files")
	assert.NoFileExists(t, filepath.Join(dst, "a.txt"))

	_, err = runCLI(t, dataDir, "rm", filepath.Join(dst, "gone.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestNoClobberKeepsDestination(t *testing.T) {
	dataDir := t.TempDir()
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "new")
	writeFile(t, filepath.Join(dst, "a.txt"), "old")

	_, err := runCLI(t, dataDir, "cp", "-n", filepath.Join(src, "a.txt"), dst)
	require.ErrorIs(t, err, errOperationsFailed)

	got, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	_, err = runCLI(t, dataDir, "cp", filepath.Join(src, "a.txt"), dst)
	require.NoError(t, err)

	got, err = os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestCreateAndRename(t *testing.T) {
	dataDir := t.TempDir()
	dir := t.TempDir()

	out, err := runCLI(t, dataDir, "create", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Created")
	assert.FileExists(t, filepath.Join(dir, "New File"))

	_, err = runCLI(t, dataDir, "create", "--folder", dir)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(dir, "New Folder"))

	_, err = runCLI(t, dataDir, "create", dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "New File (1)"))

	_, err = runCLI(t, dataDir, "rename", filepath.Join(dir, "New File"), "todo.txt")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "todo.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "New File"))

	_, err = runCLI(t, dataDir, "rename", filepath.Join(dir, "todo.txt"), "  ")
	require.Error(t, err)
}

func TestTrackRejectsFiles(t *testing.T) {
	dataDir := t.TempDir()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")

	_, err := runCLI(t, dataDir, "track", filepath.Join(dir, "a.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestDevicesListEmpty(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "devices", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no devices")
}

package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "TASKS.md")

	require.NoError(t, AtomicWriteFile(path, []byte("- [ ] hello\n"), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "- [ ] hello\n", string(data))
}

func TestAtomicWriteFileOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "TASKS.md")

	require.NoError(t, AtomicWriteFile(path, []byte("old"), 0644))
	require.NoError(t, AtomicWriteFile(path, []byte("new"), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestAtomicWriteFileCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "efforts", "website", "TASKS.md")

	require.NoError(t, AtomicWriteFile(path, []byte("x"), 0644))
	assert.FileExists(t, path)
}

func TestAtomicWriteFileLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "TASKS.md")

	require.NoError(t, AtomicWriteFile(path, []byte("content"), 0644))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "TASKS.md", entries[0].Name())
}

package effort

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mkEffort creates an effort directory with the marker file and, optionally,
// a task file.
func mkEffort(t *testing.T, dir string, withTasks bool) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, MarkerFile), []byte("# effort\n"), 0o644))
	if withTasks {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "TASKS.md"), []byte("## Active\n"), 0o644))
	}
}

func TestScanActiveAndBacklog(t *testing.T) {
	vault := t.TempDir()
	efforts := filepath.Join(vault, EffortsDirName)

	mkEffort(t, filepath.Join(efforts, "api-rewrite"), true)
	mkEffort(t, filepath.Join(efforts, BacklogDirName, "someday"), false)

	result, err := NewScanner(vault, nil).Scan()
	require.NoError(t, err)
	require.Len(t, result, 2)

	active := result["api-rewrite"]
	require.NotNil(t, active)
	assert.Equal(t, StatusActive, active.Status)
	assert.Equal(t, filepath.Join(efforts, "api-rewrite", "TASKS.md"), active.TasksFile)

	backlog := result["someday"]
	require.NotNil(t, backlog)
	assert.Equal(t, StatusBacklog, backlog.Status)
	assert.Empty(t, backlog.TasksFile)
}

func TestScanMissingEffortsDir(t *testing.T) {
	result, err := NewScanner(t.TempDir(), nil).Scan()
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestScanIgnoresUnmarkedDirs(t *testing.T) {
	vault := t.TempDir()
	efforts := filepath.Join(vault, EffortsDirName)

	// No marker file: invisible to the scan.
	require.NoError(t, os.MkdirAll(filepath.Join(efforts, "notes"), 0o755))
	mkEffort(t, filepath.Join(efforts, "real"), false)

	result, err := NewScanner(vault, nil).Scan()
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Contains(t, result, "real")
}

func TestScanSkipPatterns(t *testing.T) {
	vault := t.TempDir()
	efforts := filepath.Join(vault, EffortsDirName)

	mkEffort(t, filepath.Join(efforts, "__ideas"), false)
	mkEffort(t, filepath.Join(efforts, "dashboard.base"), false)
	mkEffort(t, filepath.Join(efforts, "tmp-scratch"), false)
	mkEffort(t, filepath.Join(efforts, "keep"), false)

	result, err := NewScanner(vault, []string{"tmp-*"}).Scan()
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Contains(t, result, "keep")
}

func TestScanNestedBacklog(t *testing.T) {
	vault := t.TempDir()
	efforts := filepath.Join(vault, EffortsDirName)

	// Grouping dirs under the backlog have no marker; efforts below them
	// are still discovered.
	mkEffort(t, filepath.Join(efforts, BacklogDirName, "2027", "redesign"), true)

	result, err := NewScanner(vault, nil).Scan()
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, StatusBacklog, result["redesign"].Status)
}

func TestScanAlternateTaskFileName(t *testing.T) {
	vault := t.TempDir()
	dir := filepath.Join(vault, EffortsDirName, "numbered")
	mkEffort(t, dir, false)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01 TASKS.md"), []byte("## Active\n"), 0o644))

	result, err := NewScanner(vault, nil).Scan()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "01 TASKS.md"), result["numbered"].TasksFile)
}

func TestScanIsIdempotent(t *testing.T) {
	vault := t.TempDir()
	mkEffort(t, filepath.Join(vault, EffortsDirName, "steady"), true)

	s := NewScanner(vault, nil)
	first, err := s.Scan()
	require.NoError(t, err)
	second, err := s.Scan()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNameFromTaskPath(t *testing.T) {
	vault := filepath.Join(string(filepath.Separator), "vault")
	efforts := filepath.Join(vault, EffortsDirName)

	tests := []struct {
		path string
		want string
	}{
		{filepath.Join(efforts, "api-rewrite", "TASKS.md"), "api-rewrite"},
		{filepath.Join(efforts, BacklogDirName, "someday", "TASKS.md"), "someday"},
		{filepath.Join(efforts, BacklogDirName, "TASKS.md"), ""},
		{filepath.Join(vault, "TASKS.md"), ""},
		{filepath.Join(string(filepath.Separator), "elsewhere", "TASKS.md"), ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NameFromTaskPath(tt.path, vault), tt.path)
	}
}

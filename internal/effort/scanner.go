package effort

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"vaultd/internal/taskfile"
)

const (
	// MarkerFile identifies a directory as an effort.
	MarkerFile = "CLAUDE.md"
	// EffortsDirName is the efforts root under the vault root.
	EffortsDirName = "efforts"
	// BacklogDirName is the reserved backlog subdirectory.
	BacklogDirName = "__backlog"
)

// DefaultSkipPatterns are always excluded from scanning, marker or not.
var DefaultSkipPatterns = []string{"__ideas", "dashboard.base"}

// Scanner walks the efforts directory and classifies efforts. Re-running a
// scan fully replaces the previous result; this is the recovery path after
// manual filesystem moves.
type Scanner struct {
	effortsRoot  string
	skipPatterns []string
}

// NewScanner creates a scanner for the given vault root. skipPatterns are
// doublestar globs matched against top-level entry names, in addition to
// DefaultSkipPatterns.
func NewScanner(vaultRoot string, skipPatterns []string) *Scanner {
	patterns := append([]string{}, DefaultSkipPatterns...)
	patterns = append(patterns, skipPatterns...)
	return &Scanner{
		effortsRoot:  filepath.Join(vaultRoot, EffortsDirName),
		skipPatterns: patterns,
	}
}

// Scan discovers all efforts. A missing efforts directory yields an empty
// map, not an error: a fresh vault simply has no efforts yet.
func (s *Scanner) Scan() (map[string]*Effort, error) {
	result := make(map[string]*Effort)

	entries, err := os.ReadDir(s.effortsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() || s.skipped(entry.Name()) {
			continue
		}

		path := filepath.Join(s.effortsRoot, entry.Name())
		if entry.Name() == BacklogDirName {
			s.scanBacklog(path, result)
			continue
		}
		if isEffortDir(path) {
			result[entry.Name()] = &Effort{
				Name:      entry.Name(),
				Path:      path,
				Status:    StatusActive,
				TasksFile: findTasksFile(path),
			}
		}
		// Directories without the marker are invisible to the scan.
	}

	return result, nil
}

// scanBacklog recursively collects efforts anywhere under the backlog dir.
func (s *Scanner) scanBacklog(dir string, result map[string]*Effort) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		if isEffortDir(path) {
			result[name] = &Effort{
				Name:      name,
				Path:      path,
				Status:    StatusBacklog,
				TasksFile: findTasksFile(path),
			}
		} else {
			s.scanBacklog(path, result)
		}
	}
}

func (s *Scanner) skipped(name string) bool {
	for _, pattern := range s.skipPatterns {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

func isEffortDir(path string) bool {
	info, err := os.Stat(filepath.Join(path, MarkerFile))
	return err == nil && !info.IsDir()
}

func findTasksFile(effortPath string) string {
	for _, name := range taskfile.TaskFileNames {
		candidate := filepath.Join(effortPath, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// NameFromTaskPath derives the owning effort name from a task file path, or
// "" when the file lives outside the efforts tree. Backlog efforts resolve
// to the directory one level below __backlog.
func NameFromTaskPath(taskPath, vaultRoot string) string {
	rel, err := filepath.Rel(filepath.Join(vaultRoot, EffortsDirName), taskPath)
	if err != nil {
		return ""
	}
	parts := splitPath(rel)
	if len(parts) < 2 || parts[0] == ".." {
		return ""
	}
	if parts[0] == BacklogDirName {
		if len(parts) < 3 {
			return ""
		}
		return parts[1]
	}
	return parts[0]
}

func splitPath(rel string) []string {
	return strings.Split(filepath.ToSlash(rel), "/")
}

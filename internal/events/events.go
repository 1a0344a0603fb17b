// Package events provides event types and publishing infrastructure for
// vaultd. Mutations and watcher refreshes publish here; the MCP server and
// CLI subscribe.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type defines the kind of event.
type Type string

const (
	// TypeTaskAdded indicates a task was created through the mutation engine.
	TypeTaskAdded Type = "task_added"
	// TypeTaskUpdated indicates a task mutation (status, tags, title).
	TypeTaskUpdated Type = "task_updated"
	// TypeTaskUnblocked indicates a task lost its last blocker.
	TypeTaskUnblocked Type = "task_unblocked"
	// TypeTaskArchived indicates a completed task moved to the archive file.
	TypeTaskArchived Type = "task_archived"

	// Watcher events (triggered by external file edits)

	// TypeFileChanged indicates a tracked task file was re-parsed.
	TypeFileChanged Type = "file_changed"
	// TypeFileRemoved indicates a tracked task file disappeared.
	TypeFileRemoved Type = "file_removed"
	// TypeFileBroken indicates a tracked file no longer parses; the cache
	// retains the last good version.
	TypeFileBroken Type = "file_broken"

	// TypeEffortScanned indicates an effort scan replaced the effort set.
	TypeEffortScanned Type = "effort_scanned"
	// TypeFocusChanged indicates the focused effort changed.
	TypeFocusChanged Type = "focus_changed"
)

// Event is one published occurrence. Effort names the owning effort, or is
// empty for vault-wide events like scans.
type Event struct {
	ID     string    `json:"id"`
	Type   Type      `json:"type"`
	Effort string    `json:"effort,omitempty"`
	Data   any       `json:"data,omitempty"`
	Time   time.Time `json:"time"`
}

// New creates an event with a fresh ID and the current timestamp.
func New(eventType Type, effort string, data any) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   eventType,
		Effort: effort,
		Data:   data,
		Time:   time.Now(),
	}
}

// TaskChange carries the task-level detail of a mutation event.
type TaskChange struct {
	TaskID    string `json:"task_id"`
	Path      string `json:"path"`
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status,omitempty"`
}

// FileChange carries the detail of a watcher refresh.
type FileChange struct {
	Path      string `json:"path"`
	TaskCount int    `json:"task_count"`
	Error     string `json:"error,omitempty"`
}

// ScanResult carries the outcome of an effort scan: the discovered effort
// names by classification, sorted.
type ScanResult struct {
	Active  []string `json:"active"`
	Backlog []string `json:"backlog"`
}

// FocusChange carries old and new focus.
type FocusChange struct {
	Previous string `json:"previous,omitempty"`
	Current  string `json:"current,omitempty"`
}

// Package task provides the task data model for vaultd: tasks parsed from
// markdown checklists, their metadata tags, and section/document structure.
package task

// Status represents the current state of a task, derived from its checkbox.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// ValidStatuses returns all valid status values.
func ValidStatuses() []Status {
	return []Status{StatusOpen, StatusInProgress, StatusDone}
}

// IsValidStatus returns true if the status is a valid status value.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusDone:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a task may move from one status to another.
// Permitted: open → in-progress, any → done, any → open. A no-op transition
// is always allowed. Reopening a done task into in-progress must go through
// open first, which clears its completed date.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch to {
	case StatusDone, StatusOpen:
		return true
	case StatusInProgress:
		return from == StatusOpen
	default:
		return false
	}
}

// CheckboxStatus maps a checkbox glyph to a status.
func CheckboxStatus(glyph byte) Status {
	switch glyph {
	case 'x', 'X':
		return StatusDone
	case '/':
		return StatusInProgress
	default:
		return StatusOpen
	}
}

// Checkbox returns the markdown checkbox rendering for a status.
func (s Status) Checkbox() string {
	switch s {
	case StatusDone:
		return "[x]"
	case StatusInProgress:
		return "[/]"
	default:
		return "[ ]"
	}
}

// Package effort discovers project workspaces ("efforts") in the vault.
// An effort is any directory carrying the marker file; its status is fully
// derived from where it sits in the directory tree.
package effort

// Status classifies an effort as active or backlog.
type Status string

const (
	StatusActive  Status = "active"
	StatusBacklog Status = "backlog"
)

// IsValidStatus returns true if the status is a valid status value.
func IsValidStatus(s Status) bool {
	return s == StatusActive || s == StatusBacklog
}

// Effort is one discovered project workspace.
type Effort struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Status Status `json:"status"`
	// TasksFile is the absolute path of the effort's task document, empty
	// when the effort has none.
	TasksFile string `json:"tasks_file,omitempty"`
}

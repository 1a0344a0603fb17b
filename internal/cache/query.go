package cache

import (
	"os"
	"sort"

	"github.com/tidwall/gjson"

	"vaultd/internal/effort"
	"vaultd/internal/errors"
	"vaultd/internal/events"
	"vaultd/internal/task"
	"vaultd/internal/taskfile"
)

// Located is a task together with where it lives.
type Located struct {
	Task   *task.Task `json:"task"`
	Path   string     `json:"path"`
	Effort string     `json:"effort"`
}

// Get returns a deep copy of the task with the given id.
func (c *Cache) Get(id string) (*Located, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getLocked(id)
}

func (c *Cache) getLocked(id string) (*Located, error) {
	path, ok := c.ids[id]
	if !ok {
		return nil, errors.NotFound(id)
	}
	entry := c.files[path]
	t := entry.doc.FindByID(id)
	if t == nil {
		return nil, errors.NotFound(id)
	}
	return &Located{Task: t.Clone(), Path: path, Effort: entry.effort}, nil
}

// List returns tasks matching the filter in due-date order (missing due
// dates last, then file order). When includeSubtasks is set, each match is
// returned with its full subtree; otherwise children are stripped.
func (c *Cache) List(f Filter, includeSubtasks bool) ([]*Located, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	limit := f.Limit
	f.Limit = 0

	ids, err := c.idx.query(f)
	if err != nil {
		return nil, err
	}

	var out []*Located
	for _, id := range ids {
		loc, err := c.getLocked(id)
		if err != nil {
			continue // index briefly ahead of the store
		}
		if !includeSubtasks {
			loc.Task.Children = nil
		}
		out = append(out, loc)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// TaskSummary is the short form used in blocker listings.
type TaskSummary struct {
	ID     string      `json:"id"`
	Title  string      `json:"title,omitempty"`
	Status task.Status `json:"status,omitempty"`
	// Missing marks a blocker id with no matching task in the vault.
	Missing bool `json:"missing,omitempty"`
}

// BlockerInfo is the task_blockers payload: what this task waits on, and
// what waits on it.
type BlockerInfo struct {
	TaskID     string        `json:"task_id"`
	Upstream   []TaskSummary `json:"upstream"`
	Downstream []TaskSummary `json:"downstream"`
}

// Blockers resolves both directions of the dependency edges of one task.
func (c *Cache) Blockers(id string) (*BlockerInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	loc, err := c.getLocked(id)
	if err != nil {
		return nil, err
	}

	info := &BlockerInfo{TaskID: id, Upstream: []TaskSummary{}, Downstream: []TaskSummary{}}
	for _, blockerID := range loc.Task.BlockerIDs() {
		up, err := c.getLocked(blockerID)
		if err != nil {
			info.Upstream = append(info.Upstream, TaskSummary{ID: blockerID, Missing: true})
			continue
		}
		info.Upstream = append(info.Upstream, TaskSummary{
			ID: blockerID, Title: up.Task.Title, Status: up.Task.Status,
		})
	}

	downstream, err := c.idx.downstream(id)
	if err != nil {
		return nil, err
	}
	for _, downID := range downstream {
		down, err := c.getLocked(downID)
		if err != nil {
			continue
		}
		if !containsID(down.Task.BlockerIDs(), id) {
			continue
		}
		info.Downstream = append(info.Downstream, TaskSummary{
			ID: downID, Title: down.Task.Title, Status: down.Task.Status,
		})
	}
	return info, nil
}

func containsID(ids []string, id string) bool {
	for _, got := range ids {
		if got == id {
			return true
		}
	}
	return false
}

// EffortInfo is one effort with its task counts, the effort_get payload.
type EffortInfo struct {
	Effort      *effort.Effort      `json:"effort"`
	Description string              `json:"description,omitempty"`
	ByStatus    map[task.Status]int `json:"by_status"`
	Focused     bool                `json:"focused"`
}

// Efforts returns all known efforts sorted by name.
func (c *Cache) Efforts() []*effort.Effort {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*effort.Effort, 0, len(c.efforts))
	for _, e := range c.efforts {
		clone := *e
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// EffortByName returns one effort with per-status task counts.
func (c *Cache) EffortByName(name string) (*EffortInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.efforts[name]
	if !ok {
		return nil, errors.EffortNotFound(name)
	}
	byStatus, err := c.idx.countByStatus(name)
	if err != nil {
		return nil, err
	}

	clone := *e
	info := &EffortInfo{
		Effort:   &clone,
		ByStatus: byStatus,
		Focused:  c.focus == name,
	}
	if entry, ok := c.files[e.TasksFile]; ok {
		info.Description = taskfile.FrontmatterString(entry.doc, "description")
	}
	return info, nil
}

// Focus returns the focused effort name, or "".
func (c *Cache) Focus() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.focus
}

// SetFocus focuses an effort. Focus is in-memory only; it does not survive
// a restart.
func (c *Cache) SetFocus(name string) error {
	c.mu.Lock()
	if _, ok := c.efforts[name]; !ok {
		c.mu.Unlock()
		return errors.EffortNotFound(name)
	}
	previous := c.focus
	c.focus = name
	c.mu.Unlock()

	if previous != name {
		c.pub.Publish(events.New(events.TypeFocusChanged, name,
			events.FocusChange{Previous: previous, Current: name}))
	}
	return nil
}

// ClearFocus removes the focused effort.
func (c *Cache) ClearFocus() {
	c.mu.Lock()
	previous := c.focus
	c.focus = ""
	c.mu.Unlock()

	if previous != "" {
		c.pub.Publish(events.New(events.TypeFocusChanged, "",
			events.FocusChange{Previous: previous}))
	}
}

// importLegacyFocus seeds the focus from the prior revision's state.json
// side-cache, when one exists. The file is read once and never written.
func (c *Cache) importLegacyFocus() {
	data, err := os.ReadFile(c.cfg.StatePath())
	if err != nil {
		return
	}
	name := gjson.GetBytes(data, "focused_effort").String()
	if name == "" {
		return
	}

	c.mu.Lock()
	_, known := c.efforts[name]
	if known && c.focus == "" {
		c.focus = name
	}
	c.mu.Unlock()

	if known {
		c.log.Info("imported legacy focus", "effort", name)
	} else {
		c.log.Warn("legacy focus names unknown effort", "effort", name)
	}
}

package task

import "strings"

// Task is a node in a task tree parsed from one checklist line.
//
// All information needed to reconstruct the original markdown line lives
// here; the canonical rendering is defined by the tag codec and the
// taskfile formatter. Blockers are id strings, never resolved pointers — a
// blocker may dangle (archived or deleted upstream task) without being an
// error.
type Task struct {
	ID     string
	Title  string
	Status Status
	Tags   *Tags

	// Notes are freeform indented bullet lines under the task, stored
	// without the "- " prefix, preserved verbatim.
	Notes []string

	Children []*Task

	// IndentLevel is the 0-based nesting depth in the source file.
	IndentLevel int
	// LineNumber is the 0-based line of the task line in the source file.
	LineNumber int

	// Section is the heading of the owning section; children inherit the
	// root task's section on parse but have no independent section.
	Section      string
	SectionLevel int
}

// New creates a task with the given title and an empty tag map.
func New(title string) *Task {
	return &Task{Title: title, Status: StatusOpen, Tags: NewTags()}
}

// IsStub reports whether the task is a placeholder needing decomposition.
func (t *Task) IsStub() bool {
	return t.Tags.Has(TagStub)
}

// IsAtomic reports whether the task is a leaf (no children).
func (t *Task) IsAtomic() bool {
	return len(t.Children) == 0
}

// IsBlocked reports whether the task has a non-empty blocker set, regardless
// of whether those ids currently resolve.
func (t *Task) IsBlocked() bool {
	return len(t.BlockerIDs()) > 0
}

// BlockerIDs returns the ids this task depends on, in tag order.
func (t *Task) BlockerIDs() []string {
	raw := t.Tags.Get(TagBlocked)
	if raw == "" {
		return nil
	}
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// AddBlocker adds an id to the blocker set. Adding a present id is a no-op.
func (t *Task) AddBlocker(id string) {
	ids := t.BlockerIDs()
	for _, existing := range ids {
		if existing == id {
			return
		}
	}
	ids = append(ids, id)
	t.Tags.Set(TagBlocked, strings.Join(ids, ","))
}

// RemoveBlocker removes an id from the blocker set. The blocked tag is
// dropped entirely when the set becomes empty.
func (t *Task) RemoveBlocker(id string) bool {
	ids := t.BlockerIDs()
	kept := ids[:0]
	removed := false
	for _, existing := range ids {
		if existing == id {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	if !removed {
		return false
	}
	if len(kept) == 0 {
		t.Tags.Delete(TagBlocked)
	} else {
		t.Tags.Set(TagBlocked, strings.Join(kept, ","))
	}
	return true
}

// AddChild appends a child task. Gaining a child clears the stub flag: the
// placeholder has been decomposed.
func (t *Task) AddChild(child *Task) {
	child.IndentLevel = t.IndentLevel + 1
	child.Section = t.Section
	child.SectionLevel = t.SectionLevel
	t.Children = append(t.Children, child)
	t.Tags.Delete(TagStub)
}

// Walk visits the task and all descendants depth-first in document order.
func (t *Task) Walk(fn func(*Task)) {
	fn(t)
	for _, child := range t.Children {
		child.Walk(fn)
	}
}

// AllTasks returns the task and all descendants as a flat slice.
func (t *Task) AllTasks() []*Task {
	var out []*Task
	t.Walk(func(n *Task) { out = append(out, n) })
	return out
}

// Clone returns a deep copy of the task and its subtree.
func (t *Task) Clone() *Task {
	c := *t
	c.Tags = t.Tags.Clone()
	c.Notes = append([]string(nil), t.Notes...)
	c.Children = make([]*Task, len(t.Children))
	for i, child := range t.Children {
		c.Children[i] = child.Clone()
	}
	return &c
}

package task

// Section is one heading and the ordered forest of root tasks beneath it.
// Empty sections are preserved so manual heading order survives round-trips.
type Section struct {
	Heading string
	Level   int
	Tasks   []*Task
}

// Document is one parsed TASKS.md file: frontmatter (opaque, verbatim lines
// including the --- delimiters), then sections in original order.
type Document struct {
	Path        string
	Frontmatter []string
	Sections    []*Section
}

// AllTasks returns every task in the document, depth-first in file order.
func (d *Document) AllTasks() []*Task {
	var out []*Task
	for _, sec := range d.Sections {
		for _, t := range sec.Tasks {
			out = append(out, t.AllTasks()...)
		}
	}
	return out
}

// FindByID returns the task with the given id, or nil.
func (d *Document) FindByID(id string) *Task {
	for _, t := range d.AllTasks() {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// FindParent returns the parent of the task with the given id, or nil for
// root tasks and unknown ids.
func (d *Document) FindParent(id string) *Task {
	for _, t := range d.AllTasks() {
		for _, child := range t.Children {
			if child.ID == id {
				return t
			}
		}
	}
	return nil
}

// FindSection returns the section with the given heading, or nil.
func (d *Document) FindSection(heading string) *Section {
	for _, sec := range d.Sections {
		if sec.Heading == heading {
			return sec
		}
	}
	return nil
}

// EnsureSection returns the section with the given heading, appending a new
// level-3 section if it does not exist yet.
func (d *Document) EnsureSection(heading string) *Section {
	if sec := d.FindSection(heading); sec != nil {
		return sec
	}
	sec := &Section{Heading: heading, Level: 3}
	d.Sections = append(d.Sections, sec)
	return sec
}

// RemoveTask detaches the task with the given id from the document, wherever
// it sits. Returns the detached subtree, or nil if the id is unknown.
func (d *Document) RemoveTask(id string) *Task {
	for _, sec := range d.Sections {
		for i, t := range sec.Tasks {
			if t.ID == id {
				sec.Tasks = append(sec.Tasks[:i], sec.Tasks[i+1:]...)
				return t
			}
		}
	}
	for _, t := range d.AllTasks() {
		for i, child := range t.Children {
			if child.ID == id {
				t.Children = append(t.Children[:i], t.Children[i+1:]...)
				return child
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	c := &Document{
		Path:        d.Path,
		Frontmatter: append([]string(nil), d.Frontmatter...),
		Sections:    make([]*Section, len(d.Sections)),
	}
	for i, sec := range d.Sections {
		cs := &Section{Heading: sec.Heading, Level: sec.Level, Tasks: make([]*Task, len(sec.Tasks))}
		for j, t := range sec.Tasks {
			cs.Tasks[j] = t.Clone()
		}
		c.Sections[i] = cs
	}
	return c
}

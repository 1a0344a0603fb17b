package cache

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"vaultd/internal/errors"
	"vaultd/internal/events"
	"vaultd/internal/task"
	"vaultd/internal/taskfile"
)

// AddRequest creates one task. Date fields accept natural language
// ("tomorrow", "next fri", "in 2 weeks") as well as ISO dates.
type AddRequest struct {
	Title     string
	Effort    string // empty: the focused effort
	Section   string // empty: the configured default section
	ParentID  string // non-empty: add as a subtask instead
	Status    task.Status
	Due       string
	Scheduled string
	Estimate  string
	Blockers  []string
	Tags      map[string]string
	// Atomic marks the task as already fully decomposed. New tasks default
	// to stubs that still need breaking down.
	Atomic bool
}

// Add creates a task, writes its file through to disk, and returns the
// created task with its assigned id.
func (c *Cache) Add(req AddRequest) (*Located, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, errors.New(errors.CodeValidationFailed, "task title is empty")
	}
	status := req.Status
	if status == "" {
		status = task.StatusOpen
	}
	if !task.IsValidStatus(status) {
		return nil, errors.Newf(errors.CodeValidationFailed, "unknown status %q", status)
	}

	tags, err := buildTags(req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, blockerID := range req.Blockers {
		if _, ok := c.ids[blockerID]; !ok {
			return nil, errors.NotFound(blockerID).
				WithWhy("blockers must name existing tasks")
		}
	}

	var path string
	var entry *fileEntry
	if req.ParentID != "" {
		owner, ok := c.ids[req.ParentID]
		if !ok {
			return nil, errors.NotFound(req.ParentID)
		}
		path, entry = owner, c.files[owner]
	} else {
		path, entry, err = c.entryForEffortLocked(req.Effort)
		if err != nil {
			return nil, err
		}
	}

	id, err := task.GenerateID(func(id string) bool {
		_, exists := c.ids[id]
		return exists
	})
	if err != nil {
		return nil, err
	}

	t := task.New(title)
	t.ID = id
	t.Status = status
	t.Tags.Set(task.TagID, id)
	for _, name := range tags.Keys() {
		t.Tags.Set(name, tags.Get(name))
	}
	if len(req.Blockers) > 0 {
		t.Tags.Set(task.TagBlocked, strings.Join(req.Blockers, ","))
	}
	if !req.Atomic && !t.Tags.Has(task.TagStub) {
		t.Tags.Set(task.TagStub, "")
	}
	t.Tags.Set(task.TagCreated, time.Now().Format(task.ISODate))
	if status == task.StatusDone {
		t.Tags.Set(task.TagCompleted, time.Now().Format(task.ISODate))
	}

	if req.ParentID != "" {
		parent := entry.doc.FindByID(req.ParentID)
		if parent == nil {
			return nil, errors.NotFound(req.ParentID)
		}
		parent.AddChild(t)
	} else {
		section := req.Section
		if section == "" {
			section = c.cfg.DefaultSection
		}
		sec := entry.doc.EnsureSection(section)
		t.Section = sec.Heading
		sec.Tasks = append(sec.Tasks, t)
	}

	if err := c.writeLocked(path, entry); err != nil {
		return nil, err
	}

	c.pub.Publish(events.New(events.TypeTaskAdded, entry.effort, events.TaskChange{
		TaskID: id, Path: path, NewStatus: string(status),
	}))
	return &Located{Task: t.Clone(), Path: path, Effort: entry.effort}, nil
}

func buildTags(req AddRequest) (*task.Tags, error) {
	tags := task.NewTags()
	if req.Due != "" {
		due, err := task.ParseDate(req.Due)
		if err != nil {
			return nil, errors.Wrap(errors.CodeValidationFailed, "parse due date", err)
		}
		tags.Set(task.TagDue, due)
	}
	if req.Scheduled != "" {
		scheduled, err := task.ParseDate(req.Scheduled)
		if err != nil {
			return nil, errors.Wrap(errors.CodeValidationFailed, "parse scheduled date", err)
		}
		tags.Set(task.TagScheduled, scheduled)
	}
	if req.Estimate != "" {
		estimate, err := task.NormalizeDuration(req.Estimate)
		if err != nil {
			return nil, errors.Wrap(errors.CodeValidationFailed, "parse estimate", err)
		}
		tags.Set(task.TagEstimate, estimate)
	}
	for name, value := range req.Tags {
		switch name {
		case task.TagID, task.TagCreated, task.TagCompleted, task.TagBlocked:
			return nil, errors.Newf(errors.CodeValidationFailed,
				"tag %q is managed, set it through the dedicated field", name)
		}
		tags.Set(name, value)
	}
	return tags, nil
}

// entryForEffortLocked resolves an effort name (or the focus) to its task
// file entry, creating an empty task document for efforts that have none
// yet. Caller holds c.mu.
func (c *Cache) entryForEffortLocked(name string) (string, *fileEntry, error) {
	if name == "" {
		name = c.focus
	}
	if name == "" {
		return "", nil, errors.New(errors.CodeValidationFailed, "no effort given and none focused").
			WithFix("pass an effort name or call effort_focus first")
	}
	e, ok := c.efforts[name]
	if !ok {
		return "", nil, errors.EffortNotFound(name)
	}

	path := e.TasksFile
	if path == "" {
		path = filepath.Join(e.Path, taskfile.TaskFileNames[0])
		e.TasksFile = path
	}
	entry, ok := c.files[path]
	if !ok {
		entry = &fileEntry{
			doc:      taskfile.NewDocument(path, c.cfg.DefaultSection),
			effort:   name,
			parsedAt: time.Now(),
		}
		c.files[path] = entry
	}
	return path, entry, nil
}

// UpdateRequest mutates one task. Pointer fields are applied only when
// non-nil; an empty string clears the corresponding tag.
type UpdateRequest struct {
	ID             string
	Title          *string
	Status         *task.Status
	Section        *string
	Due            *string
	Scheduled      *string
	Estimate       *string
	AddBlockers    []string
	RemoveBlockers []string
	SetTags        map[string]string
	DeleteTags     []string
}

// UpdateResult reports the updated task and any tasks whose last
// unresolved blocker this update completed.
type UpdateResult struct {
	Task           *Located      `json:"task"`
	NewlyUnblocked []TaskSummary `json:"newly_unblocked,omitempty"`
}

// Update applies a mutation and writes the owning file through to disk.
func (c *Cache) Update(req UpdateRequest) (*UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path, ok := c.ids[req.ID]
	if !ok {
		return nil, errors.NotFound(req.ID)
	}
	entry := c.files[path]
	t := entry.doc.FindByID(req.ID)
	if t == nil {
		return nil, errors.NotFound(req.ID)
	}
	oldStatus := t.Status

	if req.Status != nil {
		if !task.IsValidStatus(*req.Status) {
			return nil, errors.Newf(errors.CodeValidationFailed, "unknown status %q", *req.Status)
		}
		if !task.CanTransition(t.Status, *req.Status) {
			return nil, errors.Newf(errors.CodeInvalidTransition,
				"cannot move task %s from %s to %s", req.ID, t.Status, *req.Status).
				WithFix("reopen the task first")
		}
	}
	for _, blockerID := range req.AddBlockers {
		if blockerID == req.ID {
			return nil, errors.New(errors.CodeValidationFailed, "a task cannot block itself")
		}
		if _, ok := c.ids[blockerID]; !ok {
			return nil, errors.NotFound(blockerID).
				WithWhy("blockers must name existing tasks")
		}
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, errors.New(errors.CodeValidationFailed, "task title is empty")
		}
		t.Title = title
	}
	if req.Status != nil && *req.Status != t.Status {
		t.Status = *req.Status
		switch t.Status {
		case task.StatusDone:
			t.Tags.Set(task.TagCompleted, time.Now().Format(task.ISODate))
		default:
			t.Tags.Delete(task.TagCompleted)
		}
	}
	if req.Section != nil {
		if err := moveToSection(entry.doc, t, *req.Section); err != nil {
			return nil, err
		}
	}
	if err := applyDateField(t, task.TagDue, req.Due); err != nil {
		return nil, err
	}
	if err := applyDateField(t, task.TagScheduled, req.Scheduled); err != nil {
		return nil, err
	}
	if req.Estimate != nil {
		if *req.Estimate == "" {
			t.Tags.Delete(task.TagEstimate)
		} else {
			estimate, err := task.NormalizeDuration(*req.Estimate)
			if err != nil {
				return nil, errors.Wrap(errors.CodeValidationFailed, "parse estimate", err)
			}
			t.Tags.Set(task.TagEstimate, estimate)
		}
	}
	for _, blockerID := range req.AddBlockers {
		t.AddBlocker(blockerID)
	}
	for _, blockerID := range req.RemoveBlockers {
		t.RemoveBlocker(blockerID)
	}
	for name, value := range req.SetTags {
		switch name {
		case task.TagID, task.TagCreated, task.TagCompleted, task.TagBlocked:
			return nil, errors.Newf(errors.CodeValidationFailed,
				"tag %q is managed, set it through the dedicated field", name)
		}
		t.Tags.Set(name, value)
	}
	for _, name := range req.DeleteTags {
		if name == task.TagID {
			return nil, errors.New(errors.CodeValidationFailed, "the id tag cannot be removed")
		}
		t.Tags.Delete(name)
	}

	// Completing a task retires it as a blocker: its id leaves every
	// dependent's blocker set, across files.
	var unblocked []TaskSummary
	var dirty []string
	if oldStatus != task.StatusDone && t.Status == task.StatusDone {
		var err error
		unblocked, dirty, err = c.unblockDependentsLocked(req.ID)
		if err != nil {
			return nil, err
		}
	}

	if err := c.writeLocked(path, entry); err != nil {
		return nil, err
	}
	for _, p := range dirty {
		if p == path {
			continue
		}
		if err := c.writeLocked(p, c.files[p]); err != nil {
			return nil, err
		}
	}

	result := &UpdateResult{
		Task:           &Located{Task: t.Clone(), Path: path, Effort: entry.effort},
		NewlyUnblocked: unblocked,
	}
	for _, summary := range unblocked {
		c.pub.Publish(events.New(events.TypeTaskUnblocked, entry.effort, events.TaskChange{
			TaskID: summary.ID,
		}))
	}

	c.pub.Publish(events.New(events.TypeTaskUpdated, entry.effort, events.TaskChange{
		TaskID: req.ID, Path: path,
		OldStatus: string(oldStatus), NewStatus: string(t.Status),
	}))
	return result, nil
}

func applyDateField(t *task.Task, tag string, value *string) error {
	if value == nil {
		return nil
	}
	if *value == "" {
		t.Tags.Delete(tag)
		return nil
	}
	date, err := task.ParseDate(*value)
	if err != nil {
		return errors.Wrap(errors.CodeValidationFailed, "parse "+tag+" date", err)
	}
	t.Tags.Set(tag, date)
	return nil
}

// moveToSection relocates a root task to the named section, creating it if
// missing. Subtasks move with their parent and cannot move alone.
func moveToSection(doc *task.Document, t *task.Task, heading string) error {
	if doc.FindParent(t.ID) != nil {
		return errors.Newf(errors.CodeValidationFailed,
			"task %s is a subtask and moves with its parent", t.ID)
	}
	removed := doc.RemoveTask(t.ID)
	if removed == nil {
		return errors.NotFound(t.ID)
	}
	sec := doc.EnsureSection(heading)
	removed.Section = sec.Heading
	sec.Tasks = append(sec.Tasks, removed)
	return nil
}

// unblockDependentsLocked removes doneID from every dependent's blocker
// set. It returns the tasks whose set became empty and the paths whose
// documents were modified; the caller writes those through. Caller holds
// c.mu.
func (c *Cache) unblockDependentsLocked(doneID string) ([]TaskSummary, []string, error) {
	downstream, err := c.idx.downstream(doneID)
	if err != nil {
		return nil, nil, err
	}

	var out []TaskSummary
	var dirty []string
	seen := make(map[string]bool)
	for _, id := range downstream {
		path, ok := c.ids[id]
		if !ok {
			continue
		}
		t := c.files[path].doc.FindByID(id)
		if t == nil || !containsID(t.BlockerIDs(), doneID) {
			continue
		}
		t.RemoveBlocker(doneID)
		if !seen[path] {
			seen[path] = true
			dirty = append(dirty, path)
		}
		if !t.IsBlocked() && t.Status != task.StatusDone {
			out = append(out, TaskSummary{ID: id, Title: t.Title, Status: t.Status})
		}
	}
	sort.Strings(dirty)
	return out, dirty, nil
}

// ArchiveRequest moves completed tasks out of an effort's task file.
type ArchiveRequest struct {
	Effort        string // empty: the focused effort
	OlderThanDays int    // 0: every done task
	DryRun        bool
}

// ArchiveResult lists what was (or would be) archived.
type ArchiveResult struct {
	Effort      string        `json:"effort"`
	ArchiveFile string        `json:"archive_file,omitempty"`
	Archived    []TaskSummary `json:"archived"`
	DryRun      bool          `json:"dry_run,omitempty"`
}

// Archive moves done top-level tasks (with their whole subtree) from the
// effort's task file into its archive document. Candidacy requires a
// completion date at least OlderThanDays old; tasks done today stay put
// unless OlderThanDays is zero.
func (c *Cache) Archive(req ArchiveRequest) (*ArchiveResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := req.Effort
	if name == "" {
		name = c.focus
	}
	if name == "" {
		return nil, errors.New(errors.CodeValidationFailed, "no effort given and none focused")
	}
	e, ok := c.efforts[name]
	if !ok {
		return nil, errors.EffortNotFound(name)
	}
	if e.TasksFile == "" {
		return &ArchiveResult{Effort: name, Archived: []TaskSummary{}, DryRun: req.DryRun}, nil
	}
	entry := c.files[e.TasksFile]

	cutoff := time.Now().AddDate(0, 0, -req.OlderThanDays).Format(task.ISODate)
	var candidates []*task.Task
	for _, section := range entry.doc.Sections {
		for _, t := range section.Tasks {
			if t.Status != task.StatusDone {
				continue
			}
			if req.OlderThanDays > 0 {
				completed := t.Tags.Get(task.TagCompleted)
				if completed == "" || completed > cutoff {
					continue
				}
			}
			candidates = append(candidates, t)
		}
	}

	result := &ArchiveResult{Effort: name, Archived: []TaskSummary{}, DryRun: req.DryRun}
	for _, t := range candidates {
		result.Archived = append(result.Archived, TaskSummary{
			ID: t.ID, Title: t.Title, Status: t.Status,
		})
	}
	if req.DryRun || len(candidates) == 0 {
		return result, nil
	}

	archivePath := filepath.Join(e.Path, c.cfg.ArchiveFile)
	archive, err := taskfile.ParseFile(archivePath)
	if err != nil {
		archive = taskfile.NewDocument(archivePath, "Archived")
		archive.Frontmatter = []string{
			"---",
			fmt.Sprintf("effort: %s", name),
			"archive: true",
			"---",
		}
	}
	sec := archive.EnsureSection("Archived")
	for _, t := range candidates {
		moved := entry.doc.RemoveTask(t.ID)
		if moved == nil {
			continue
		}
		moved.Section = sec.Heading
		sec.Tasks = append(sec.Tasks, moved)
	}

	if err := taskfile.WriteFile(archive); err != nil {
		return nil, err
	}
	if err := c.writeLocked(e.TasksFile, entry); err != nil {
		return nil, err
	}

	for _, summary := range result.Archived {
		c.pub.Publish(events.New(events.TypeTaskArchived, name, events.TaskChange{
			TaskID: summary.ID, Path: archivePath,
		}))
	}
	result.ArchiveFile = archivePath
	return result, nil
}

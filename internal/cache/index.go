package cache

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"vaultd/internal/errors"
	"vaultd/internal/task"
)

// schema is the in-memory secondary index. It is rebuilt from the file
// store at any time and never persisted; the markdown files stay the only
// source of truth.
const schema = `
CREATE TABLE tasks (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	effort TEXT NOT NULL,
	section TEXT NOT NULL,
	parent_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	title TEXT NOT NULL,
	due TEXT,
	scheduled TEXT,
	created TEXT,
	completed TEXT,
	estimate_min INTEGER,
	has_blockers INTEGER NOT NULL DEFAULT 0,
	position INTEGER NOT NULL
);
CREATE INDEX idx_tasks_path ON tasks(path);
CREATE INDEX idx_tasks_effort ON tasks(effort);
CREATE INDEX idx_tasks_status ON tasks(status);
CREATE TABLE task_tags (
	task_id TEXT NOT NULL,
	name TEXT NOT NULL,
	value TEXT NOT NULL DEFAULT ''
);
CREATE INDEX idx_task_tags_name ON task_tags(name, value);
`

// index is the SQLite-backed query index over all cached tasks.
type index struct {
	db *sql.DB
}

func openIndex() (*index, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.CodeIOFailed, "open index database", err)
	}
	// A :memory: database exists per connection; more than one would mean
	// more than one (empty) index.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.CodeIOFailed, "create index schema", err)
	}
	return &index{db: db}, nil
}

func (x *index) Close() error {
	return x.db.Close()
}

// replaceFile swaps all index rows for one file with the document's current
// tasks.
func (x *index) replaceFile(path, effort string, doc *task.Document) error {
	tx, err := x.db.Begin()
	if err != nil {
		return errors.Wrap(errors.CodeIOFailed, "begin index update", err)
	}
	defer tx.Rollback()

	if err := deleteFileRows(tx, path); err != nil {
		return err
	}

	position := 0
	for _, section := range doc.Sections {
		for _, root := range section.Tasks {
			if err := insertTree(tx, path, effort, root, "", &position); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.CodeIOFailed, "commit index update", err)
	}
	return nil
}

func (x *index) removeFile(path string) error {
	tx, err := x.db.Begin()
	if err != nil {
		return errors.Wrap(errors.CodeIOFailed, "begin index update", err)
	}
	defer tx.Rollback()
	if err := deleteFileRows(tx, path); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.CodeIOFailed, "commit index update", err)
	}
	return nil
}

func deleteFileRows(tx *sql.Tx, path string) error {
	if _, err := tx.Exec(`DELETE FROM task_tags WHERE task_id IN (SELECT id FROM tasks WHERE path = ?)`, path); err != nil {
		return errors.Wrap(errors.CodeIOFailed, "clear tag rows", err)
	}
	if _, err := tx.Exec(`DELETE FROM tasks WHERE path = ?`, path); err != nil {
		return errors.Wrap(errors.CodeIOFailed, "clear task rows", err)
	}
	return nil
}

func insertTree(tx *sql.Tx, path, effort string, t *task.Task, parentID string, position *int) error {
	var estimate any
	if raw := t.Tags.Get(task.TagEstimate); raw != "" {
		if minutes, err := task.DurationMinutes(raw); err == nil {
			estimate = minutes
		}
	}
	_, err := tx.Exec(`
		INSERT INTO tasks (id, path, effort, section, parent_id, status, title,
			due, scheduled, created, completed, estimate_min, has_blockers, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, path, effort, t.Section, parentID, string(t.Status), t.Title,
		nullable(t.Tags.Get(task.TagDue)),
		nullable(t.Tags.Get(task.TagScheduled)),
		nullable(t.Tags.Get(task.TagCreated)),
		nullable(t.Tags.Get(task.TagCompleted)),
		estimate,
		boolInt(t.IsBlocked()),
		*position,
	)
	if err != nil {
		return errors.Wrap(errors.CodeIOFailed, fmt.Sprintf("index task %s", t.ID), err)
	}
	for _, name := range t.Tags.Keys() {
		if _, err := tx.Exec(`INSERT INTO task_tags (task_id, name, value) VALUES (?, ?, ?)`,
			t.ID, name, t.Tags.Get(name)); err != nil {
			return errors.Wrap(errors.CodeIOFailed, "index tag row", err)
		}
	}
	*position++

	for _, child := range t.Children {
		if err := insertTree(tx, path, effort, child, t.ID, position); err != nil {
			return err
		}
	}
	return nil
}

// Filter selects tasks from the index. Zero-valued fields do not
// constrain; set fields compose with AND.
type Filter struct {
	// Statuses restricts to any of the given statuses.
	Statuses []task.Status
	// Effort restricts to one effort by name.
	Effort string
	// Section restricts to one section heading.
	Section string
	// ParentID selects direct children of the given task.
	ParentID string
	// RootsOnly selects only top-level tasks.
	RootsOnly bool
	// Path restricts to tasks from one file.
	Path string
	// Tag requires the named tag to be present; TagValue additionally
	// requires an exact value.
	Tag      string
	TagValue string
	// DueBefore keeps tasks whose due date is on or before the given ISO
	// date. Tasks without a due date are excluded. ScheduledBefore and
	// ScheduledOn do the same for the scheduled date.
	DueBefore       string
	ScheduledBefore string
	ScheduledOn     string
	// Blocked filters on the blocker set being non-empty, whether or not
	// the ids resolve (nil means no constraint).
	Blocked *bool
	// Stub filters on the stub tag; Atomic on having no subtasks.
	Stub   *bool
	Atomic *bool
	// Limit caps the result count after all other filtering.
	Limit int
}

// query returns matching task ids ordered by due date ascending with
// missing due dates last, then by file and position within the file.
func (x *index) query(f Filter) ([]string, error) {
	var (
		where []string
		args  []any
	)

	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "t.status IN ("+strings.Join(marks, ", ")+")")
	}
	if f.Effort != "" {
		where = append(where, "t.effort = ?")
		args = append(args, f.Effort)
	}
	if f.Section != "" {
		where = append(where, "t.section = ?")
		args = append(args, f.Section)
	}
	if f.ParentID != "" {
		where = append(where, "t.parent_id = ?")
		args = append(args, f.ParentID)
	}
	if f.RootsOnly {
		where = append(where, "t.parent_id = ''")
	}
	if f.Tag != "" {
		if f.TagValue != "" {
			where = append(where, "EXISTS (SELECT 1 FROM task_tags g WHERE g.task_id = t.id AND g.name = ? AND g.value = ?)")
			args = append(args, f.Tag, f.TagValue)
		} else {
			where = append(where, "EXISTS (SELECT 1 FROM task_tags g WHERE g.task_id = t.id AND g.name = ?)")
			args = append(args, f.Tag)
		}
	}
	if f.Path != "" {
		where = append(where, "t.path = ?")
		args = append(args, f.Path)
	}
	if f.DueBefore != "" {
		where = append(where, "t.due IS NOT NULL AND t.due <= ?")
		args = append(args, f.DueBefore)
	}
	if f.ScheduledBefore != "" {
		where = append(where, "t.scheduled IS NOT NULL AND t.scheduled <= ?")
		args = append(args, f.ScheduledBefore)
	}
	if f.ScheduledOn != "" {
		where = append(where, "t.scheduled = ?")
		args = append(args, f.ScheduledOn)
	}
	if f.Blocked != nil {
		where = append(where, "t.has_blockers = ?")
		args = append(args, boolInt(*f.Blocked))
	}
	if f.Stub != nil {
		clause := "EXISTS (SELECT 1 FROM task_tags g WHERE g.task_id = t.id AND g.name = ?)"
		if !*f.Stub {
			clause = "NOT " + clause
		}
		where = append(where, clause)
		args = append(args, task.TagStub)
	}
	if f.Atomic != nil {
		clause := "NOT EXISTS (SELECT 1 FROM tasks ch WHERE ch.parent_id = t.id)"
		if !*f.Atomic {
			clause = "EXISTS (SELECT 1 FROM tasks ch WHERE ch.parent_id = t.id)"
		}
		where = append(where, clause)
	}

	q := "SELECT t.id FROM tasks t"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY (t.due IS NULL), t.due, t.path, t.position"

	rows, err := x.db.Query(q, args...)
	if err != nil {
		return nil, errors.Wrap(errors.CodeIOFailed, "query index", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(errors.CodeIOFailed, "scan index row", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// countByStatus returns per-status task counts, for one effort or (with
// effort == "") the whole vault.
func (x *index) countByStatus(effort string) (map[task.Status]int, error) {
	q := `SELECT status, COUNT(*) FROM tasks`
	var args []any
	if effort != "" {
		q += ` WHERE effort = ?`
		args = append(args, effort)
	}
	q += ` GROUP BY status`

	rows, err := x.db.Query(q, args...)
	if err != nil {
		return nil, errors.Wrap(errors.CodeIOFailed, "count index rows", err)
	}
	defer rows.Close()

	counts := make(map[task.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(errors.CodeIOFailed, "scan count row", err)
		}
		counts[task.Status(status)] = n
	}
	return counts, rows.Err()
}

// downstream returns ids of tasks whose blocked list contains the given id.
func (x *index) downstream(id string) ([]string, error) {
	rows, err := x.db.Query(`
		SELECT g.task_id FROM task_tags g
		JOIN tasks t ON t.id = g.task_id
		WHERE g.name = ?
		  AND (g.value = ? OR g.value LIKE ? OR g.value LIKE ? OR g.value LIKE ?)
		ORDER BY t.path, t.position`,
		task.TagBlocked, id, id+",%", "%,"+id, "%,"+id+",%")
	if err != nil {
		return nil, errors.Wrap(errors.CodeIOFailed, "query downstream", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var got string
		if err := rows.Scan(&got); err != nil {
			return nil, errors.Wrap(errors.CodeIOFailed, "scan downstream row", err)
		}
		ids = append(ids, got)
	}
	return ids, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

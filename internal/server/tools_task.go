package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"vaultd/internal/cache"
	"vaultd/internal/config"
	"vaultd/internal/errors"
	"vaultd/internal/task"
)

// splitList parses a comma-separated argument into trimmed parts.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// TaskListTool lists tasks with filters.
type TaskListTool struct {
	cache *cache.Cache
	cfg   *config.Config
}

func (t *TaskListTool) Definition() mcp.Tool {
	return mcp.NewTool("task_list",
		mcp.WithDescription("List tasks across the vault. Filters compose with AND; results are ordered by due date (tasks without one last). Defaults to open and in-progress tasks in the focused effort, or the whole vault when nothing is focused."),
		mcp.WithString("status", mcp.Description("Comma-separated statuses: open, in-progress, done. Use 'any' for no status filter. Default 'open,in-progress'.")),
		mcp.WithString("effort", mcp.Description("Restrict to one effort by name. Use 'all' to ignore the focused effort.")),
		mcp.WithString("section", mcp.Description("Restrict to one section heading, e.g. 'Active'.")),
		mcp.WithString("tag", mcp.Description("Require a tag by name, e.g. 'urgent'.")),
		mcp.WithString("tag_value", mcp.Description("Require an exact value for 'tag'.")),
		mcp.WithString("parent_id", mcp.Description("List direct subtasks of the given task instead of top-level tasks.")),
		mcp.WithString("due_before", mcp.Description("Keep tasks due on or before this date (ISO or natural language).")),
		mcp.WithString("scheduled_before", mcp.Description("Keep tasks scheduled on or before this date.")),
		mcp.WithString("scheduled_on", mcp.Description("Keep tasks scheduled exactly on this date.")),
		mcp.WithString("file_path", mcp.Description("Restrict to tasks from one tracked file, by absolute path.")),
		mcp.WithBoolean("blocked", mcp.Description("true: only tasks with a non-empty blocker list; false: only tasks without one.")),
		mcp.WithBoolean("stub", mcp.Description("true: only #stub tasks still awaiting decomposition; false: only non-stub tasks.")),
		mcp.WithBoolean("atomic", mcp.Description("true: only tasks without subtasks; false: only tasks that have subtasks.")),
		mcp.WithBoolean("include_subtasks", mcp.Description("Return each match with its full subtask tree.")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results. Default 200.")),
	)
}

func (t *TaskListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := cache.Filter{
		Section:  req.GetString("section", ""),
		Tag:      req.GetString("tag", ""),
		TagValue: req.GetString("tag_value", ""),
		ParentID: req.GetString("parent_id", ""),
		Path:     req.GetString("file_path", ""),
		Limit:    req.GetInt("limit", t.cfg.ListLimit),
	}

	status := req.GetString("status", "open,in-progress")
	if status != "any" && status != "all" {
		for _, s := range splitList(status) {
			if !task.IsValidStatus(task.Status(s)) {
				return errResult(errors.Newf(errors.CodeValidationFailed, "unknown status %q", s))
			}
			f.Statuses = append(f.Statuses, task.Status(s))
		}
	}

	switch effortArg := req.GetString("effort", ""); effortArg {
	case "":
		f.Effort = t.cache.Focus()
	case "all", "*":
	default:
		f.Effort = effortArg
	}

	if due := req.GetString("due_before", ""); due != "" {
		parsed, err := task.ParseDate(due)
		if err != nil {
			return errResult(errors.Wrap(errors.CodeValidationFailed, "parse due_before", err))
		}
		f.DueBefore = parsed
	}
	if sched := req.GetString("scheduled_before", ""); sched != "" {
		parsed, err := task.ParseDate(sched)
		if err != nil {
			return errResult(errors.Wrap(errors.CodeValidationFailed, "parse scheduled_before", err))
		}
		f.ScheduledBefore = parsed
	}
	if sched := req.GetString("scheduled_on", ""); sched != "" {
		parsed, err := task.ParseDate(sched)
		if err != nil {
			return errResult(errors.Wrap(errors.CodeValidationFailed, "parse scheduled_on", err))
		}
		f.ScheduledOn = parsed
	}

	args := req.GetArguments()
	if _, ok := args["blocked"]; ok {
		blocked := req.GetBool("blocked", false)
		f.Blocked = &blocked
	}
	if _, ok := args["stub"]; ok {
		stub := req.GetBool("stub", false)
		f.Stub = &stub
	}
	if _, ok := args["atomic"]; ok {
		atomic := req.GetBool("atomic", false)
		f.Atomic = &atomic
	}

	locs, err := t.cache.List(f, req.GetBool("include_subtasks", false))
	if err != nil {
		return errResult(err)
	}
	return jsonResult(map[string]any{
		"count": len(locs),
		"tasks": taskViews(locs),
	})
}

// TaskGetTool fetches one task by id.
type TaskGetTool struct {
	cache *cache.Cache
}

func (t *TaskGetTool) Definition() mcp.Tool {
	return mcp.NewTool("task_get",
		mcp.WithDescription("Fetch one task by id, including its subtasks and notes."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Six-character task id.")),
	)
}

func (t *TaskGetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	loc, err := t.cache.Get(id)
	if err != nil {
		return errResult(err)
	}
	return jsonResult(taskView(loc))
}

// TaskAddTool creates a task.
type TaskAddTool struct {
	cache *cache.Cache
}

func (t *TaskAddTool) Definition() mcp.Tool {
	return mcp.NewTool("task_add",
		mcp.WithDescription("Create a task. It is appended to a section of the effort's TASKS.md (or under a parent task) and written to disk immediately."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Task title.")),
		mcp.WithString("effort", mcp.Description("Target effort. Defaults to the focused effort.")),
		mcp.WithString("section", mcp.Description("Target section heading, created if missing. Defaults to the configured default section.")),
		mcp.WithString("parent_id", mcp.Description("Create as a subtask of this task instead.")),
		mcp.WithString("status", mcp.Description("Initial status. Default open.")),
		mcp.WithString("due", mcp.Description("Due date, ISO or natural language ('friday', 'in 2 weeks').")),
		mcp.WithString("scheduled", mcp.Description("Scheduled date, same formats as due.")),
		mcp.WithString("estimate", mcp.Description("Effort estimate, e.g. '2h30m' or '45 minutes'.")),
		mcp.WithString("blockers", mcp.Description("Comma-separated ids of tasks this one waits on.")),
		mcp.WithBoolean("atomic", mcp.Description("Mark the task as already fully decomposed. Without it new tasks are tagged #stub.")),
		mcp.WithObject("tags", mcp.Description("Free-form tags to set, name to value, e.g. {\"pr\": \"142\"}.")),
	)
}

func (t *TaskAddTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ar := cache.AddRequest{
		Title:     title,
		Effort:    req.GetString("effort", ""),
		Section:   req.GetString("section", ""),
		ParentID:  req.GetString("parent_id", ""),
		Status:    task.Status(req.GetString("status", "")),
		Due:       req.GetString("due", ""),
		Scheduled: req.GetString("scheduled", ""),
		Estimate:  req.GetString("estimate", ""),
		Blockers:  splitList(req.GetString("blockers", "")),
		Atomic:    req.GetBool("atomic", false),
	}
	if raw, ok := req.GetArguments()["tags"].(map[string]any); ok && len(raw) > 0 {
		ar.Tags = make(map[string]string, len(raw))
		for name, value := range raw {
			ar.Tags[name] = fmt.Sprint(value)
		}
	}
	loc, err := t.cache.Add(ar)
	if err != nil {
		return errResult(err)
	}
	return jsonResult(taskView(loc))
}

// TaskUpdateTool mutates a task. Absent arguments leave fields untouched;
// an empty string clears the corresponding tag.
type TaskUpdateTool struct {
	cache *cache.Cache
}

func (t *TaskUpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("task_update",
		mcp.WithDescription("Update a task. Only the arguments you pass change; pass an empty string to clear a date or estimate. Completing a task records the completion date and reports tasks it unblocked."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Six-character task id.")),
		mcp.WithString("title", mcp.Description("New title.")),
		mcp.WithString("status", mcp.Description("New status: open, in-progress, done. done tasks cannot move back to in-progress.")),
		mcp.WithString("section", mcp.Description("Move the task to this section (top-level tasks only).")),
		mcp.WithString("due", mcp.Description("New due date; empty string clears it.")),
		mcp.WithString("scheduled", mcp.Description("New scheduled date; empty string clears it.")),
		mcp.WithString("estimate", mcp.Description("New estimate; empty string clears it.")),
		mcp.WithString("add_blockers", mcp.Description("Comma-separated ids to add as blockers.")),
		mcp.WithString("remove_blockers", mcp.Description("Comma-separated blocker ids to remove.")),
		mcp.WithObject("set_tags", mcp.Description("Free-form tags to set, name to value. Managed tags (id, created, completed, blocked) are rejected.")),
		mcp.WithString("delete_tags", mcp.Description("Comma-separated tag names to remove.")),
	)
}

func (t *TaskUpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ur := cache.UpdateRequest{
		ID:             id,
		AddBlockers:    splitList(req.GetString("add_blockers", "")),
		RemoveBlockers: splitList(req.GetString("remove_blockers", "")),
		DeleteTags:     splitList(req.GetString("delete_tags", "")),
	}
	args := req.GetArguments()
	if raw, ok := args["set_tags"].(map[string]any); ok && len(raw) > 0 {
		ur.SetTags = make(map[string]string, len(raw))
		for name, value := range raw {
			ur.SetTags[name] = fmt.Sprint(value)
		}
	}
	if _, ok := args["title"]; ok {
		v := req.GetString("title", "")
		ur.Title = &v
	}
	if _, ok := args["status"]; ok {
		s := task.Status(req.GetString("status", ""))
		ur.Status = &s
	}
	if _, ok := args["section"]; ok {
		v := req.GetString("section", "")
		ur.Section = &v
	}
	if _, ok := args["due"]; ok {
		v := req.GetString("due", "")
		ur.Due = &v
	}
	if _, ok := args["scheduled"]; ok {
		v := req.GetString("scheduled", "")
		ur.Scheduled = &v
	}
	if _, ok := args["estimate"]; ok {
		v := req.GetString("estimate", "")
		ur.Estimate = &v
	}

	res, err := t.cache.Update(ur)
	if err != nil {
		return errResult(err)
	}
	payload := map[string]any{"task": taskView(res.Task)}
	if len(res.NewlyUnblocked) > 0 {
		payload["newly_unblocked"] = res.NewlyUnblocked
	}
	return jsonResult(payload)
}

// TaskBlockersTool resolves dependency edges in both directions.
type TaskBlockersTool struct {
	cache *cache.Cache
}

func (t *TaskBlockersTool) Definition() mcp.Tool {
	return mcp.NewTool("task_blockers",
		mcp.WithDescription("Show what a task waits on (upstream) and what waits on it (downstream)."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Six-character task id.")),
	)
}

func (t *TaskBlockersTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := t.cache.Blockers(id)
	if err != nil {
		return errResult(err)
	}
	return jsonResult(info)
}

// TaskArchiveTool moves completed tasks into the archive document.
type TaskArchiveTool struct {
	cache *cache.Cache
}

func (t *TaskArchiveTool) Definition() mcp.Tool {
	return mcp.NewTool("task_archive",
		mcp.WithDescription("Move done top-level tasks (with their subtasks) from an effort's TASKS.md to its archive file."),
		mcp.WithString("effort", mcp.Description("Target effort. Defaults to the focused effort.")),
		mcp.WithNumber("older_than_days", mcp.Description("Only archive tasks completed at least this many days ago. 0 archives every done task.")),
		mcp.WithBoolean("dry_run", mcp.Description("Report candidates without changing any file.")),
	)
}

func (t *TaskArchiveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.cache.Archive(cache.ArchiveRequest{
		Effort:        req.GetString("effort", ""),
		OlderThanDays: req.GetInt("older_than_days", 0),
		DryRun:        req.GetBool("dry_run", false),
	})
	if err != nil {
		return errResult(err)
	}
	return jsonResult(res)
}

// taskView flattens a located task for tool output.
func taskView(loc *cache.Located) map[string]any {
	t := loc.Task
	view := map[string]any{
		"id":      t.ID,
		"title":   t.Title,
		"status":  t.Status,
		"effort":  loc.Effort,
		"section": t.Section,
		"path":    loc.Path,
	}
	if tags := t.Tags.Map(); len(tags) > 0 {
		delete(tags, task.TagID)
		if len(tags) > 0 {
			view["tags"] = tags
		}
	}
	if blockers := t.BlockerIDs(); len(blockers) > 0 {
		view["blocked_by"] = blockers
	}
	if len(t.Notes) > 0 {
		view["notes"] = t.Notes
	}
	if len(t.Children) > 0 {
		children := make([]map[string]any, 0, len(t.Children))
		for _, child := range t.Children {
			children = append(children, taskView(&cache.Located{
				Task: child, Path: loc.Path, Effort: loc.Effort,
			}))
		}
		view["subtasks"] = children
	}
	return view
}

func taskViews(locs []*cache.Located) []map[string]any {
	views := make([]map[string]any, 0, len(locs))
	for _, loc := range locs {
		views = append(views, taskView(loc))
	}
	return views
}

package server

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"vaultd/internal/cache"
	"vaultd/internal/config"
	"vaultd/internal/errors"
	"vaultd/internal/events"
)

const webTasks = `## Active

- [ ] Ship the login page 🆔 pqr234 📅 2026-09-10 #urgent
- [/] Wire the session store 🆔 stw567 ⛔ pqr234
   - [ ] Pick a cookie codec 🆔 xyz789

## Closed

- [x] Choose a framework 🆔 mnk345 ✅ 2026-08-01
`

const opsTasks = `## Active

- [ ] Rotate the backup keys 🆔 bcd678
`

func newFixture(t *testing.T) (*cache.Cache, *config.Config) {
	t.Helper()
	root := t.TempDir()
	for name, content := range map[string]string{"web": webTasks, "ops": opsTasks} {
		dir := filepath.Join(root, "efforts", name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "CLAUDE.md"), []byte("# "+name+"\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "TASKS.md"), []byte(content), 0o644))
	}
	cfg := config.Default()
	cfg.VaultRoot = root

	c, err := cache.New(cfg, events.NopPublisher{}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.Load(context.Background()))
	return c, cfg
}

func callTool(t *testing.T, handle func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) string {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := handle(context.Background(), req)
	require.NoError(t, err)
	require.False(t, res.IsError, "tool returned an error result")
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func callToolErr(t *testing.T, handle func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) string {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := handle(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.IsError, "tool should have returned an error result")
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestTaskListDefaults(t *testing.T) {
	c, cfg := newFixture(t)
	tool := &TaskListTool{cache: c, cfg: cfg}

	out := callTool(t, tool.Handle, map[string]any{})
	// Defaults hide done tasks; subtask rows are listed like any other.
	assert.EqualValues(t, 4, gjson.Get(out, "count").Int())
	ids := gjson.Get(out, "tasks.#.id").Array()
	var found bool
	for _, tk := range ids {
		assert.NotEqual(t, "mnk345", tk.String())
		if tk.String() == "xyz789" {
			found = true
		}
	}
	assert.True(t, found, "subtasks appear in unscoped listings")
}

func TestTaskListFilters(t *testing.T) {
	c, cfg := newFixture(t)
	tool := &TaskListTool{cache: c, cfg: cfg}

	out := callTool(t, tool.Handle, map[string]any{"status": "in-progress"})
	assert.EqualValues(t, 1, gjson.Get(out, "count").Int())
	assert.Equal(t, "stw567", gjson.Get(out, "tasks.0.id").String())

	out = callTool(t, tool.Handle, map[string]any{"effort": "ops"})
	assert.EqualValues(t, 1, gjson.Get(out, "count").Int())
	assert.Equal(t, "bcd678", gjson.Get(out, "tasks.0.id").String())

	out = callTool(t, tool.Handle, map[string]any{"status": "any", "effort": "web", "tag": "urgent"})
	assert.EqualValues(t, 1, gjson.Get(out, "count").Int())

	out = callTool(t, tool.Handle, map[string]any{"blocked": true})
	assert.EqualValues(t, 1, gjson.Get(out, "count").Int())
	assert.Equal(t, "stw567", gjson.Get(out, "tasks.0.id").String())

	out = callTool(t, tool.Handle, map[string]any{"parent_id": "stw567"})
	assert.EqualValues(t, 1, gjson.Get(out, "count").Int())
	assert.Equal(t, "xyz789", gjson.Get(out, "tasks.0.id").String())
}

func TestTaskListStructureFilters(t *testing.T) {
	c, cfg := newFixture(t)
	tool := &TaskListTool{cache: c, cfg: cfg}

	// Leaf tasks only.
	out := callTool(t, tool.Handle, map[string]any{"atomic": true})
	assert.EqualValues(t, 3, gjson.Get(out, "count").Int())
	for _, tk := range gjson.Get(out, "tasks.#.id").Array() {
		assert.NotEqual(t, "stw567", tk.String())
	}

	// Tasks with subtasks only.
	out = callTool(t, tool.Handle, map[string]any{"atomic": false})
	assert.EqualValues(t, 1, gjson.Get(out, "count").Int())
	assert.Equal(t, "stw567", gjson.Get(out, "tasks.0.id").String())

	// One tracked file.
	webPath := filepath.Join(cfg.VaultRoot, "efforts", "web", "TASKS.md")
	out = callTool(t, tool.Handle, map[string]any{"file_path": webPath})
	assert.EqualValues(t, 3, gjson.Get(out, "count").Int())
	for _, tk := range gjson.Get(out, "tasks.#.id").Array() {
		assert.NotEqual(t, "bcd678", tk.String())
	}
}

func TestTaskListStubFilter(t *testing.T) {
	c, cfg := newFixture(t)
	list := &TaskListTool{cache: c, cfg: cfg}
	add := &TaskAddTool{cache: c}

	// Nothing in the fixture carries the stub marker.
	out := callTool(t, list.Handle, map[string]any{"stub": true})
	assert.EqualValues(t, 0, gjson.Get(out, "count").Int())

	out = callTool(t, add.Handle, map[string]any{"title": "Plan the migration", "effort": "ops"})
	id := gjson.Get(out, "id").String()

	out = callTool(t, list.Handle, map[string]any{"stub": true})
	assert.EqualValues(t, 1, gjson.Get(out, "count").Int())
	assert.Equal(t, id, gjson.Get(out, "tasks.0.id").String())

	out = callTool(t, list.Handle, map[string]any{"stub": false})
	for _, tk := range gjson.Get(out, "tasks.#.id").Array() {
		assert.NotEqual(t, id, tk.String())
	}
}

func TestTaskListScheduledFilters(t *testing.T) {
	c, cfg := newFixture(t)
	list := &TaskListTool{cache: c, cfg: cfg}
	add := &TaskAddTool{cache: c}

	out := callTool(t, add.Handle, map[string]any{
		"title": "Renew the certs", "effort": "ops", "scheduled": "2026-09-05",
	})
	id := gjson.Get(out, "id").String()

	out = callTool(t, list.Handle, map[string]any{"scheduled_on": "2026-09-05"})
	assert.EqualValues(t, 1, gjson.Get(out, "count").Int())
	assert.Equal(t, id, gjson.Get(out, "tasks.0.id").String())

	out = callTool(t, list.Handle, map[string]any{"scheduled_before": "2026-09-30"})
	assert.EqualValues(t, 1, gjson.Get(out, "count").Int())

	out = callTool(t, list.Handle, map[string]any{"scheduled_before": "2026-09-01"})
	assert.EqualValues(t, 0, gjson.Get(out, "count").Int())

	out = callToolErr(t, list.Handle, map[string]any{"scheduled_on": "whenever"})
	assert.Equal(t, string(errors.CodeValidationFailed), gjson.Get(out, "code").String())
}

func TestTaskListFocusScopesDefault(t *testing.T) {
	c, cfg := newFixture(t)
	require.NoError(t, c.SetFocus("ops"))
	tool := &TaskListTool{cache: c, cfg: cfg}

	out := callTool(t, tool.Handle, map[string]any{})
	assert.EqualValues(t, 1, gjson.Get(out, "count").Int())
	assert.Equal(t, "bcd678", gjson.Get(out, "tasks.0.id").String())

	// "all" overrides the focus.
	out = callTool(t, tool.Handle, map[string]any{"effort": "all"})
	assert.EqualValues(t, 4, gjson.Get(out, "count").Int())
}

func TestTaskListRejectsBadStatus(t *testing.T) {
	c, cfg := newFixture(t)
	tool := &TaskListTool{cache: c, cfg: cfg}

	out := callToolErr(t, tool.Handle, map[string]any{"status": "finished"})
	assert.Equal(t, string(errors.CodeValidationFailed), gjson.Get(out, "code").String())
}

func TestTaskGet(t *testing.T) {
	c, _ := newFixture(t)
	tool := &TaskGetTool{cache: c}

	out := callTool(t, tool.Handle, map[string]any{"id": "stw567"})
	assert.Equal(t, "Wire the session store", gjson.Get(out, "title").String())
	assert.Equal(t, "web", gjson.Get(out, "effort").String())
	assert.Equal(t, "xyz789", gjson.Get(out, "subtasks.0.id").String())
	assert.Equal(t, "pqr234", gjson.Get(out, "blocked_by.0").String())

	out = callToolErr(t, tool.Handle, map[string]any{"id": "zzzzzz"})
	assert.Equal(t, string(errors.CodeTaskNotFound), gjson.Get(out, "code").String())
}

func TestTaskAdd(t *testing.T) {
	c, cfg := newFixture(t)
	tool := &TaskAddTool{cache: c}

	out := callTool(t, tool.Handle, map[string]any{
		"title":  "Draft the runbook",
		"effort": "ops",
		"due":    "2026-10-01",
	})
	id := gjson.Get(out, "id").String()
	assert.Len(t, id, 6)
	assert.Equal(t, "open", gjson.Get(out, "status").String())
	assert.Equal(t, "2026-10-01", gjson.Get(out, "tags.due").String())

	data, err := os.ReadFile(filepath.Join(cfg.VaultRoot, "efforts", "ops", "TASKS.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Draft the runbook")
	assert.Contains(t, string(data), id)
}

func TestTaskAddStubDefault(t *testing.T) {
	c, _ := newFixture(t)
	tool := &TaskAddTool{cache: c}

	out := callTool(t, tool.Handle, map[string]any{"title": "Overhaul the deploy", "effort": "ops"})
	assert.True(t, gjson.Get(out, "tags.stub").Exists())

	out = callTool(t, tool.Handle, map[string]any{
		"title": "Bump one version", "effort": "ops", "atomic": true,
	})
	assert.False(t, gjson.Get(out, "tags.stub").Exists())
}

func TestTaskUpdateClearsAndKeeps(t *testing.T) {
	c, _ := newFixture(t)
	tool := &TaskUpdateTool{cache: c}

	// Absent due leaves it alone; empty string clears it.
	out := callTool(t, tool.Handle, map[string]any{"id": "pqr234", "title": "Ship the login flow"})
	assert.Equal(t, "Ship the login flow", gjson.Get(out, "task.title").String())
	assert.Equal(t, "2026-09-10", gjson.Get(out, "task.tags.due").String())

	out = callTool(t, tool.Handle, map[string]any{"id": "pqr234", "due": ""})
	assert.False(t, gjson.Get(out, "task.tags.due").Exists())
}

func TestTaskUpdateTags(t *testing.T) {
	c, _ := newFixture(t)
	tool := &TaskUpdateTool{cache: c}

	out := callTool(t, tool.Handle, map[string]any{
		"id":       "pqr234",
		"set_tags": map[string]any{"pr": "142"},
	})
	assert.Equal(t, "142", gjson.Get(out, "task.tags.pr").String())

	out = callTool(t, tool.Handle, map[string]any{"id": "pqr234", "delete_tags": "urgent"})
	assert.False(t, gjson.Get(out, "task.tags.urgent").Exists())

	out = callToolErr(t, tool.Handle, map[string]any{
		"id":       "pqr234",
		"set_tags": map[string]any{"completed": "2026-01-01"},
	})
	assert.Equal(t, string(errors.CodeValidationFailed), gjson.Get(out, "code").String())
}

func TestTaskUpdateReportsNewlyUnblocked(t *testing.T) {
	c, _ := newFixture(t)
	tool := &TaskUpdateTool{cache: c}

	out := callTool(t, tool.Handle, map[string]any{"id": "pqr234", "status": "done"})
	assert.Equal(t, "done", gjson.Get(out, "task.status").String())
	assert.Equal(t, "stw567", gjson.Get(out, "newly_unblocked.0.id").String())
}

func TestTaskUpdateRejectsBadTransition(t *testing.T) {
	c, _ := newFixture(t)
	tool := &TaskUpdateTool{cache: c}

	out := callToolErr(t, tool.Handle, map[string]any{"id": "mnk345", "status": "in-progress"})
	assert.Equal(t, string(errors.CodeInvalidTransition), gjson.Get(out, "code").String())
}

func TestTaskBlockers(t *testing.T) {
	c, _ := newFixture(t)
	tool := &TaskBlockersTool{cache: c}

	out := callTool(t, tool.Handle, map[string]any{"id": "stw567"})
	assert.Equal(t, "pqr234", gjson.Get(out, "upstream.0.id").String())

	out = callTool(t, tool.Handle, map[string]any{"id": "pqr234"})
	assert.Equal(t, "stw567", gjson.Get(out, "downstream.0.id").String())
}

func TestTaskArchive(t *testing.T) {
	c, cfg := newFixture(t)
	tool := &TaskArchiveTool{cache: c}

	out := callTool(t, tool.Handle, map[string]any{"effort": "web", "dry_run": true})
	assert.True(t, gjson.Get(out, "dry_run").Bool())
	assert.Equal(t, "mnk345", gjson.Get(out, "archived.0.id").String())

	out = callTool(t, tool.Handle, map[string]any{"effort": "web"})
	assert.Equal(t, "mnk345", gjson.Get(out, "archived.0.id").String())

	data, err := os.ReadFile(filepath.Join(cfg.VaultRoot, "efforts", "web", "ARCHIVE.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Choose a framework")
}

func TestEffortTools(t *testing.T) {
	c, _ := newFixture(t)

	list := &EffortListTool{cache: c}
	out := callTool(t, list.Handle, nil)
	assert.EqualValues(t, 2, gjson.Get(out, "count").Int())
	assert.Equal(t, "ops", gjson.Get(out, "efforts.0.name").String())
	assert.False(t, gjson.Get(out, "efforts.0.task_counts").Exists())

	out = callTool(t, list.Handle, map[string]any{"include_task_counts": true})
	assert.EqualValues(t, 1, gjson.Get(out, "efforts.1.task_counts.done").Int())
	assert.EqualValues(t, 2, gjson.Get(out, "efforts.1.task_counts.open").Int())

	out = callTool(t, list.Handle, map[string]any{"status": "backlog"})
	assert.EqualValues(t, 0, gjson.Get(out, "count").Int())
	out = callTool(t, list.Handle, map[string]any{"status": "active"})
	assert.EqualValues(t, 2, gjson.Get(out, "count").Int())
	out = callToolErr(t, list.Handle, map[string]any{"status": "paused"})
	assert.Equal(t, string(errors.CodeValidationFailed), gjson.Get(out, "code").String())

	get := &EffortGetTool{cache: c}
	out = callTool(t, get.Handle, map[string]any{"name": "web"})
	assert.Equal(t, "web", gjson.Get(out, "effort.name").String())
	assert.EqualValues(t, 1, gjson.Get(out, "by_status.done").Int())

	out = callToolErr(t, get.Handle, map[string]any{"name": "nope"})
	assert.Equal(t, string(errors.CodeEffortNotFound), gjson.Get(out, "code").String())
}

func TestFocusTools(t *testing.T) {
	c, _ := newFixture(t)
	focus := &EffortFocusTool{cache: c}
	getFocus := &EffortGetFocusTool{cache: c}
	unfocus := &EffortUnfocusTool{cache: c}

	out := callTool(t, getFocus.Handle, nil)
	assert.Equal(t, "", gjson.Get(out, "focused").String())

	out = callTool(t, focus.Handle, map[string]any{"name": "web"})
	assert.Equal(t, "web", gjson.Get(out, "focused").String())

	out = callTool(t, getFocus.Handle, nil)
	assert.Equal(t, "web", gjson.Get(out, "focused").String())

	callTool(t, unfocus.Handle, nil)
	assert.Equal(t, "", c.Focus())

	out = callToolErr(t, focus.Handle, map[string]any{"name": "nope"})
	assert.Equal(t, string(errors.CodeEffortNotFound), gjson.Get(out, "code").String())
}

func TestEffortScan(t *testing.T) {
	c, cfg := newFixture(t)
	tool := &EffortScanTool{cache: c}

	dir := filepath.Join(cfg.VaultRoot, "efforts", "docs")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CLAUDE.md"), []byte("# docs\n"), 0o644))

	out := callTool(t, tool.Handle, nil)
	require.EqualValues(t, 3, gjson.Get(out, "active.#").Int())
	assert.Equal(t, "docs", gjson.Get(out, "active.0").String())
	assert.Empty(t, gjson.Get(out, "backlog").Array())
}

func TestCacheStatus(t *testing.T) {
	c, _ := newFixture(t)
	tool := &CacheStatusTool{cache: c}

	out := callTool(t, tool.Handle, nil)
	assert.EqualValues(t, 2, gjson.Get(out, "files").Int())
	assert.EqualValues(t, 5, gjson.Get(out, "tasks").Int())
	assert.EqualValues(t, 2, gjson.Get(out, "efforts").Int())
}

func TestNewRegistersTools(t *testing.T) {
	c, cfg := newFixture(t)
	s := New(c, cfg, slog.Default())
	require.NotNil(t, s)
}

package server

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"vaultd/internal/cache"
	"vaultd/internal/effort"
	"vaultd/internal/errors"
)

// EffortListTool lists discovered efforts.
type EffortListTool struct {
	cache *cache.Cache
}

func (t *EffortListTool) Definition() mcp.Tool {
	return mcp.NewTool("effort_list",
		mcp.WithDescription("List every effort discovered in the vault, active and backlog, sorted by name."),
		mcp.WithString("status", mcp.Description("Restrict to 'active' or 'backlog' efforts.")),
		mcp.WithBoolean("include_task_counts", mcp.Description("Attach per-status task counts to each effort.")),
	)
}

func (t *EffortListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var statusFilter effort.Status
	if s := req.GetString("status", ""); s != "" {
		statusFilter = effort.Status(s)
		if !effort.IsValidStatus(statusFilter) {
			return errResult(errors.Newf(errors.CodeValidationFailed, "unknown effort status %q", s))
		}
	}

	efforts := t.cache.Efforts()
	views := make([]map[string]any, 0, len(efforts))
	for _, e := range efforts {
		if statusFilter != "" && e.Status != statusFilter {
			continue
		}
		view := map[string]any{
			"name":   e.Name,
			"path":   e.Path,
			"status": e.Status,
		}
		if req.GetBool("include_task_counts", false) {
			info, err := t.cache.EffortByName(e.Name)
			if err != nil {
				return errResult(err)
			}
			view["task_counts"] = info.ByStatus
		}
		views = append(views, view)
	}
	return jsonResult(map[string]any{
		"count":   len(views),
		"efforts": views,
		"focused": t.cache.Focus(),
	})
}

// EffortGetTool reports one effort with task counts.
type EffortGetTool struct {
	cache *cache.Cache
}

func (t *EffortGetTool) Definition() mcp.Tool {
	return mcp.NewTool("effort_get",
		mcp.WithDescription("Fetch one effort by name with its per-status task counts and description."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Effort directory name.")),
	)
}

func (t *EffortGetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := t.cache.EffortByName(name)
	if err != nil {
		return errResult(err)
	}
	return jsonResult(info)
}

// EffortScanTool re-walks the vault for efforts.
type EffortScanTool struct {
	cache *cache.Cache
}

func (t *EffortScanTool) Definition() mcp.Tool {
	return mcp.NewTool("effort_scan",
		mcp.WithDescription("Re-scan the vault for efforts. Picks up directories created or removed since the last scan and loads their task files."),
	)
}

func (t *EffortScanTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.cache.Rescan()
	if err != nil {
		return errResult(err)
	}
	return jsonResult(res)
}

// EffortFocusTool sets the focused effort.
type EffortFocusTool struct {
	cache *cache.Cache
}

func (t *EffortFocusTool) Definition() mcp.Tool {
	return mcp.NewTool("effort_focus",
		mcp.WithDescription("Focus an effort. Task tools without an explicit effort argument operate on the focused one."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Effort directory name.")),
	)
}

func (t *EffortFocusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := t.cache.SetFocus(name); err != nil {
		return errResult(err)
	}
	return jsonResult(map[string]any{"focused": name})
}

// EffortGetFocusTool reports the focused effort.
type EffortGetFocusTool struct {
	cache *cache.Cache
}

func (t *EffortGetFocusTool) Definition() mcp.Tool {
	return mcp.NewTool("effort_get_focus",
		mcp.WithDescription("Report the currently focused effort, if any."),
	)
}

func (t *EffortGetFocusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{"focused": t.cache.Focus()})
}

// EffortUnfocusTool clears the focused effort.
type EffortUnfocusTool struct {
	cache *cache.Cache
}

func (t *EffortUnfocusTool) Definition() mcp.Tool {
	return mcp.NewTool("effort_unfocus",
		mcp.WithDescription("Clear the focused effort. Task tools fall back to vault-wide scope."),
	)
}

func (t *EffortUnfocusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t.cache.ClearFocus()
	return jsonResult(map[string]any{"focused": ""})
}

// CacheStatusTool reports cache health.
type CacheStatusTool struct {
	cache *cache.Cache
}

func (t *CacheStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("cache_status",
		mcp.WithDescription("Report cache health: file and task counts, status breakdown, and files that currently fail to parse."),
	)
}

func (t *CacheStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := t.cache.Stats()
	if err != nil {
		return errResult(err)
	}
	return jsonResult(stats)
}

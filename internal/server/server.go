// Package server exposes the vault over MCP stdio. It is the composition
// root for the tool surface: every tool is a small struct holding its
// dependencies and exposing Definition and Handle, registered here.
package server

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"vaultd/internal/cache"
	"vaultd/internal/config"
	"vaultd/internal/errors"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New builds the MCP server with all vault tools registered.
func New(c *cache.Cache, cfg *config.Config, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = slog.Default()
	}

	s := server.NewMCPServer(
		"vaultd",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	listTool := &TaskListTool{cache: c, cfg: cfg}
	s.AddTool(listTool.Definition(), listTool.Handle)

	getTool := &TaskGetTool{cache: c}
	s.AddTool(getTool.Definition(), getTool.Handle)

	addTool := &TaskAddTool{cache: c}
	s.AddTool(addTool.Definition(), addTool.Handle)

	updateTool := &TaskUpdateTool{cache: c}
	s.AddTool(updateTool.Definition(), updateTool.Handle)

	blockersTool := &TaskBlockersTool{cache: c}
	s.AddTool(blockersTool.Definition(), blockersTool.Handle)

	archiveTool := &TaskArchiveTool{cache: c}
	s.AddTool(archiveTool.Definition(), archiveTool.Handle)

	statusTool := &CacheStatusTool{cache: c}
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	effortListTool := &EffortListTool{cache: c}
	s.AddTool(effortListTool.Definition(), effortListTool.Handle)

	effortGetTool := &EffortGetTool{cache: c}
	s.AddTool(effortGetTool.Definition(), effortGetTool.Handle)

	scanTool := &EffortScanTool{cache: c}
	s.AddTool(scanTool.Definition(), scanTool.Handle)

	focusTool := &EffortFocusTool{cache: c}
	s.AddTool(focusTool.Definition(), focusTool.Handle)

	getFocusTool := &EffortGetFocusTool{cache: c}
	s.AddTool(getFocusTool.Definition(), getFocusTool.Handle)

	unfocusTool := &EffortUnfocusTool{cache: c}
	s.AddTool(unfocusTool.Definition(), unfocusTool.Handle)

	logger.Info("mcp server configured", "tools", 13)
	return s
}

// ServeStdio runs the server on stdin/stdout until EOF. All logging must
// go to stderr; stdout carries the protocol.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

const instructions = `vaultd serves the tasks of a markdown knowledge vault.
Tasks live in TASKS.md checklists inside effort directories; every task has
a stable six-character id. Use task_list/task_get to read, task_add and
task_update to write, and effort_focus to set a default effort for
subsequent calls.`

// jsonResult marshals a success payload into a text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errResult renders a failure. VaultErrors keep their machine-readable
// code; anything else degrades to the bare message.
func errResult(err error) (*mcp.CallToolResult, error) {
	var verr *errors.VaultError
	if stderrors.As(err, &verr) {
		return mcp.NewToolResultError(verr.JSON()), nil
	}
	return mcp.NewToolResultError(err.Error()), nil
}

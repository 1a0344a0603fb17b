package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"vaultd/internal/cache"
	"vaultd/internal/events"
	"vaultd/internal/lock"
	"vaultd/internal/server"
	"vaultd/internal/watcher"
)

// newServeCmd creates the serve command
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP stdio server",
		Long: `Run the MCP server on stdin/stdout.

The vault is loaded into memory, a filesystem watcher keeps the cache in
sync with external edits, and tools are served until stdin closes. All
logging goes to stderr; stdout carries the protocol.

A pid guard in the .vaultd directory prevents two servers from racing on
the same vault.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			poll, _ := cmd.Flags().GetBool("poll")
			return runServe(cmd.Context(), poll)
		},
	}

	cmd.Flags().Bool("poll", false, "poll for changes instead of using the native watcher")

	return cmd
}

func runServe(ctx context.Context, forcePoll bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	guard := lock.NewGuard(cfg.ConfigDir())
	if err := guard.Acquire(); err != nil {
		return err
	}
	defer guard.Release()

	pub := events.NewMemoryPublisher()
	defer pub.Close()
	go logEvents(pub.Subscribe(events.GlobalEffort), logger)

	c, err := cache.New(cfg, pub, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Load(ctx); err != nil {
		return fmt.Errorf("load vault: %w", err)
	}
	stats, err := c.Stats()
	if err != nil {
		return err
	}
	logger.Info("vault loaded",
		"root", cfg.VaultRoot,
		"efforts", stats.Efforts,
		"files", stats.Files,
		"tasks", stats.Tasks)

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if forcePoll || cfg.ForcePoll {
		p := watcher.NewPoller(cfg.VaultRoot, c, logger, cfg.PollInterval())
		if err := p.Start(watchCtx); err != nil {
			return fmt.Errorf("start poller: %w", err)
		}
	} else {
		w, err := watcher.New(&watcher.Config{
			VaultRoot:    cfg.VaultRoot,
			Store:        c,
			Logger:       logger,
			Debounce:     cfg.Debounce(),
			SkipPatterns: cfg.ExcludePatterns,
		})
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		if err := w.Start(watchCtx); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		defer func() { _ = w.Stop() }()
	}

	s := server.New(c, cfg, logger)
	logger.Info("serving on stdio")
	return server.ServeStdio(s)
}

// logEvents drains the event stream to the structured log until the
// publisher closes. Stdout carries the protocol, so events surface on
// stderr only.
func logEvents(ch <-chan events.Event, logger *slog.Logger) {
	for ev := range ch {
		logger.Info("vault event", "type", ev.Type, "effort", ev.Effort, "data", ev.Data)
	}
}

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vaultd/internal/cache"
	"vaultd/internal/events"
)

// newArchiveCmd creates the archive command
func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Move done tasks to the archive",
		Long: `Move done top-level tasks (with their subtasks) from an effort's
TASKS.md into its archive file.

Examples:
  vaultd archive --effort web                  # Archive every done task
  vaultd archive --effort web --older-than 7   # Only tasks done a week ago
  vaultd archive --effort web --dry-run        # Preview without writing`,
		RunE: func(cmd *cobra.Command, args []string) error {
			effortName, _ := cmd.Flags().GetString("effort")
			olderThan, _ := cmd.Flags().GetInt("older-than")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			return runArchive(cmd, effortName, olderThan, dryRun)
		},
	}

	cmd.Flags().StringP("effort", "e", "", "effort to archive (required)")
	cmd.Flags().Int("older-than", 0, "only archive tasks completed at least this many days ago")
	cmd.Flags().Bool("dry-run", false, "report candidates without changing any file")
	_ = cmd.MarkFlagRequired("effort")

	return cmd
}

func runArchive(cmd *cobra.Command, effortName string, olderThan int, dryRun bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := cache.New(cfg, events.NopPublisher{}, newLogger(cfg))
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Load(cmd.Context()); err != nil {
		return err
	}

	res, err := c.Archive(cache.ArchiveRequest{
		Effort:        effortName,
		OlderThanDays: olderThan,
		DryRun:        dryRun,
	})
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if len(res.Archived) == 0 {
		fmt.Printf("Nothing to archive in %s.\n", res.Effort)
		return nil
	}
	verb := "Archived"
	if dryRun {
		verb = "Would archive"
	}
	fmt.Printf("%s %d task(s) from %s:\n", verb, len(res.Archived), res.Effort)
	for _, t := range res.Archived {
		fmt.Printf("  %s  %s\n", t.ID, t.Title)
	}
	if !dryRun {
		fmt.Printf("\nArchive: %s\n", res.ArchiveFile)
	}
	return nil
}

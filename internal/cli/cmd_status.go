package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"vaultd/internal/cache"
	"vaultd/internal/events"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// newStatusCmd creates the status command
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"st"},
		Short:   "Show vault status",
		Long: `Load the vault and show cache health at a glance: effort and
task counts, the status breakdown, and any files that fail to parse.

Examples:
  vaultd status          # Quick overview
  vaultd status --json   # Machine-readable output`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd)
		},
	}
}

func runStatus(cmd *cobra.Command) error {
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

	stats, err := c.Stats()
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	useColor := isatty.IsTerminal(os.Stdout.Fd())
	paint := func(color, s string) string {
		if !useColor {
			return s
		}
		return color + s + colorReset
	}

	fmt.Printf("Vault: %s\n", stats.VaultRoot)
	fmt.Printf("Efforts: %d   Files: %d   Tasks: %d\n", stats.Efforts, stats.Files, stats.Tasks)
	fmt.Printf("  %s %d   %s %d   %s %d\n",
		paint(colorCyan, "open"), stats.ByStatus["open"],
		paint(colorYellow, "in-progress"), stats.ByStatus["in-progress"],
		paint(colorGreen, "done"), stats.ByStatus["done"])

	if len(stats.Errors) > 0 {
		fmt.Println()
		fmt.Println(paint(colorRed, "Files with parse errors:"))
		for _, fe := range stats.Errors {
			fmt.Printf("  %s: %s\n", fe.Path, fe.Error)
		}
	}
	return nil
}

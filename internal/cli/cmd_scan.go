package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"vaultd/internal/cache"
	"vaultd/internal/events"
)

// newScanCmd creates the scan command
func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List the efforts in the vault",
		Long: `Walk the vault and list every effort directory found.

A directory counts as an effort when it sits directly under efforts/ (or
anywhere under efforts/__backlog/) and contains a CLAUDE.md marker.

Examples:
  vaultd scan            # Table of efforts with task counts
  vaultd scan --json     # Machine-readable output`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd)
		},
	}
}

func runScan(cmd *cobra.Command) error {
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

	efforts := c.Efforts()
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(efforts)
	}

	if len(efforts) == 0 {
		fmt.Println("No efforts found.")
		fmt.Printf("\nEfforts are directories under %s/efforts/ containing a CLAUDE.md marker.\n", cfg.VaultRoot)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tOPEN\tIN-PROGRESS\tDONE")
	for _, e := range efforts {
		info, err := c.EffortByName(e.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n",
			e.Name, e.Status,
			info.ByStatus["open"], info.ByStatus["in-progress"], info.ByStatus["done"])
	}
	return w.Flush()
}

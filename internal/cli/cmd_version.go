package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"vaultd/internal/server"
)

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show vaultd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("vaultd version", server.Version)
		},
	}
}

// Package main provides the entry point for the vaultd CLI.
package main

import (
	"os"

	"vaultd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

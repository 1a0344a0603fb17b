// Package cli implements the vaultd command-line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vaultd/internal/config"
)

var (
	cfgFile   string
	vaultRoot string
	verbose   bool
	jsonOut   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vaultd",
	Short: "Task server for a markdown knowledge vault",
	Long: `vaultd serves the tasks of a markdown knowledge vault.

Tasks live in TASKS.md checklists inside effort directories under
efforts/ (and __backlog/ for parked work). Every task carries a stable
six-character id; dates, estimates, and blockers ride along as emoji
tags on the task line.

Quick start:
  vaultd scan                 List the efforts vaultd discovers
  vaultd status               Show cache health and task counts
  vaultd serve                Run the MCP stdio server
  vaultd archive --dry-run    Preview archiving of done tasks`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .vaultd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&vaultRoot, "vault", "", "vault root directory (default is the current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")

	// Add subcommands
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newArchiveCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in .vaultd directory
		viper.AddConfigPath(config.ConfigDirName)
		viper.AddConfigPath("$HOME/" + config.ConfigDirName)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// loadConfig resolves the effective configuration from file, environment,
// and flags.
func loadConfig() (*config.Config, error) {
	if vaultRoot != "" {
		viper.Set("vault_root", vaultRoot)
	} else if !viper.IsSet("vault_root") {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		viper.Set("vault_root", wd)
	}
	return config.Load(viper.GetViper())
}

// newLogger builds the process logger. Everything goes to stderr; in serve
// mode stdout belongs to the protocol.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

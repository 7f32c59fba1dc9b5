// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/strata-dev/strata/internal/config"
)

// NewRootCmd creates the root strata command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "strata",
		Short:         "Tiered memory storage for AI agents",
		Long:          "Strata stores agent memories in promotion-linked tiers with vector search over each.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})))
			}
		},
	}

	// Global flags
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	// Register subcommands
	root.AddCommand(
		newInitCmd(),
		newInsertCmd(),
		newSearchCmd(),
		newGetCmd(),
		newDeleteCmd(),
		newPromoteCmd(),
		newMigrateCmd(),
		newStatsCmd(),
		newClearCmd(),
		newRunCmd(),
		newBenchCmd(),
		newVersionCmd(),
	)

	return root
}

// loadConfig resolves configuration with the standard precedence:
// --config flag, then the discovered default file, then built-in
// defaults. The --data-dir flag overrides whatever the file says.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		if p, err := config.DefaultConfigPath(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				path = p
			}
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	config.WarnInsecurePermissions(path)

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	return cfg, nil
}

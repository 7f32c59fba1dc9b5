// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/strata-dev/strata/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the default config file and data directory",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	if path := config.BootstrapConfig(); path != "" {
		_, _ = fmt.Fprintf(out, "Created config: %s\n", path)
	} else if path, err := config.DefaultConfigPath(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			_, _ = fmt.Fprintf(out, "Config already exists: %s\n", path)
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Data directory: %s\n", dataDir)
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the memory engine in the foreground",
		Long:  "Warm-load the indexes, start the background promotion loop, and serve until interrupted.",
		RunE:  runRun,
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
	eng, cfg, err := newEngine(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng.Start(ctx)

	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Strata running (data dir %s, promotion every %dm). Ctrl-C to stop.\n",
		dataDir, cfg.Promotion.IntervalMinutes)

	<-ctx.Done()

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Shutting down")
	return eng.Close()
}

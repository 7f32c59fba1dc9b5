// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strata-dev/strata/internal/store"
	strataerr "github.com/strata-dev/strata/pkg/errors"
)

func newPromoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "promote",
		Short: "Run one promotion cycle",
		Long:  "Promote eligible records between tiers and expire stale ones, then print what moved.",
		RunE:  runPromote,
	}
}

func runPromote(cmd *cobra.Command, _ []string) error {
	eng, _, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	ctx := cmd.Context()
	if err := eng.WarmLoad(ctx); err != nil {
		return err
	}

	stats, err := eng.RunPromotionCycle(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Interact -> Insights: %d\n", stats.InteractToInsights)
	_, _ = fmt.Fprintf(out, "Insights -> Assets:   %d\n", stats.InsightsToAssets)
	_, _ = fmt.Fprintf(out, "Expired (interact):   %d\n", stats.ExpiredInteract)
	_, _ = fmt.Fprintf(out, "Expired (insights):   %d\n", stats.ExpiredInsights)
	if stats.Failed > 0 {
		_, _ = fmt.Fprintf(out, "Failed:               %d\n", stats.Failed)
	}
	return nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Re-embed records with missing or stale vectors",
		Long:  "Scan every tier and re-embed records whose vector is missing or no longer matches the configured dimension.",
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	eng, _, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	stats, err := eng.Migrate(cmd.Context())
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d records, re-embedded %d\n", stats.Scanned, stats.Reembedded)
	return nil
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show tier, index, and cache statistics",
		RunE:  runStats,
	}
}

func runStats(cmd *cobra.Command, _ []string) error {
	eng, _, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	stats, err := eng.Stats(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Records:  interact=%d insights=%d assets=%d (total %d)\n",
		stats.Tiers.Interact, stats.Tiers.Insights, stats.Tiers.Assets, stats.Tiers.Total())
	for _, layer := range store.Layers() {
		ixStats := stats.Indexes[layer]
		_, _ = fmt.Fprintf(out, "Index %s: %d vectors, ~%d KiB\n",
			layer, ixStats.Count, ixStats.MemoryBytes/1024)
	}
	_, _ = fmt.Fprintf(out, "Cache:    %d entries, %d hits / %d misses (%.1f%% hit rate)\n",
		stats.CacheEntries, stats.Cache.Hits, stats.Cache.Misses, stats.CacheHitRate*100)
	return nil
}

func newClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Wipe records from a tier",
		RunE:  runClear,
	}

	cmd.Flags().String("layer", "", "tier to wipe (interact, insights, assets)")
	cmd.Flags().Bool("all", false, "wipe every tier")
	cmd.Flags().Bool("yes", false, "skip the confirmation prompt")

	return cmd
}

func runClear(cmd *cobra.Command, _ []string) error {
	all, _ := cmd.Flags().GetBool("all")
	layerFlag, _ := cmd.Flags().GetString("layer")
	confirmed, _ := cmd.Flags().GetBool("yes")

	if !all && layerFlag == "" {
		return strataerr.New(strataerr.CodeCLIInputInvalid, "specify --layer or --all")
	}
	if !confirmed {
		return strataerr.New(strataerr.CodeCLIInputInvalid, "clearing is destructive; re-run with --yes to confirm")
	}

	var layers []store.Layer
	if all {
		layers = store.Layers()
	} else {
		layer := store.Layer(layerFlag)
		if !layer.Valid() {
			return strataerr.Errorf(strataerr.CodeCLIInputInvalid, "unknown layer %q", layerFlag)
		}
		layers = []store.Layer{layer}
	}

	eng, _, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	for _, layer := range layers {
		if err := eng.Clear(cmd.Context(), layer); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", layer)
	}
	return nil
}

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a synthetic insert/search benchmark",
		Long:  "Insert synthetic records and time searches against them. Point --data-dir at a throwaway directory.",
		RunE:  runBench,
	}

	cmd.Flags().Int("records", 1000, "number of records to insert")
	cmd.Flags().Int("searches", 100, "number of searches to run")

	return cmd
}

func runBench(cmd *cobra.Command, _ []string) error {
	records, _ := cmd.Flags().GetInt("records")
	searches, _ := cmd.Flags().GetInt("searches")

	eng, _, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	res, err := eng.Benchmark(cmd.Context(), records, searches)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Inserted %d records in %s (%.0f/s)\n",
		res.Records, res.InsertTime, float64(res.Records)/res.InsertTime.Seconds())
	_, _ = fmt.Fprintf(out, "Ran %d searches in %s (avg %s, %d results)\n",
		res.Searches, res.SearchTime, res.AvgSearch, res.ResultsFound)
	return nil
}

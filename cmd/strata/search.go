// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strata-dev/strata/internal/query"
	"github.com/strata-dev/strata/internal/store"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search memories by semantic similarity",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}

	cmd.Flags().IntP("top-k", "k", 0, "number of results (0 uses the configured default)")
	cmd.Flags().StringSlice("layers", nil, "tiers to search (default all)")
	cmd.Flags().Bool("hybrid", false, "also scan durable state for unindexed records (default from config)")
	cmd.Flags().Bool("rerank", false, "rerank results against the query text (default from config)")
	cmd.Flags().String("kind", "", "filter by record kind")
	cmd.Flags().StringSlice("tags", nil, "filter by tags (all must match)")
	cmd.Flags().String("project", "", "filter by project")
	cmd.Flags().String("session", "", "filter by session")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	eng, _, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	ctx := cmd.Context()
	if err := eng.WarmLoad(ctx); err != nil {
		return err
	}

	req := query.Request{Text: args[0]}
	req.TopK, _ = cmd.Flags().GetInt("top-k")

	// Config supplies the booleans unless the flag was given explicitly,
	// so --hybrid=false can override a config default of true.
	req.Hybrid, req.Rerank = eng.SearchDefaults()
	if cmd.Flags().Changed("hybrid") {
		req.Hybrid, _ = cmd.Flags().GetBool("hybrid")
	}
	if cmd.Flags().Changed("rerank") {
		req.Rerank, _ = cmd.Flags().GetBool("rerank")
	}
	req.Filter.Kind, _ = cmd.Flags().GetString("kind")
	req.Filter.Tags, _ = cmd.Flags().GetStringSlice("tags")
	req.Filter.Project, _ = cmd.Flags().GetString("project")
	req.Filter.Session, _ = cmd.Flags().GetString("session")

	if layers, _ := cmd.Flags().GetStringSlice("layers"); len(layers) > 0 {
		for _, l := range layers {
			req.Layers = append(req.Layers, store.Layer(l))
		}
	}

	results, err := eng.Search(ctx, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		_, _ = fmt.Fprintln(out, "No results")
		return nil
	}
	for i, res := range results {
		_, _ = fmt.Fprintf(out, "%2d. [%.3f] (%s) %s  %s\n",
			i+1, res.Score, res.Record.Layer, res.Record.ID, res.Record.Text)
	}
	return nil
}

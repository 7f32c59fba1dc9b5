// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/strata-dev/strata/internal/store"
	strataerr "github.com/strata-dev/strata/pkg/errors"
)

func newInsertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insert [text]",
		Short: "Store a memory record",
		Args:  cobra.ExactArgs(1),
		RunE:  runInsert,
	}

	cmd.Flags().String("layer", string(store.LayerInteract), "tier to store in (interact, insights, assets)")
	cmd.Flags().String("kind", "", "record kind")
	cmd.Flags().StringSlice("tags", nil, "record tags")
	cmd.Flags().String("project", "", "project scope")
	cmd.Flags().String("session", "", "session scope")
	cmd.Flags().Float32("score", 0, "initial relevance score")

	return cmd
}

func runInsert(cmd *cobra.Command, args []string) error {
	eng, _, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	rec := store.NewRecord(args[0])
	layer, _ := cmd.Flags().GetString("layer")
	rec.Layer = store.Layer(layer)
	rec.Kind, _ = cmd.Flags().GetString("kind")
	rec.Tags, _ = cmd.Flags().GetStringSlice("tags")
	rec.Project, _ = cmd.Flags().GetString("project")
	rec.Session, _ = cmd.Flags().GetString("session")
	rec.Score, _ = cmd.Flags().GetFloat32("score")

	if err := eng.Insert(cmd.Context(), rec); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored %s in %s\n", rec.ID, rec.Layer)
	return nil
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Fetch a record by id",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}

	cmd.Flags().String("layer", string(store.LayerInteract), "tier to read from")

	return cmd
}

func runGet(cmd *cobra.Command, args []string) error {
	eng, _, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	layer, _ := cmd.Flags().GetString("layer")
	rec, err := eng.Get(cmd.Context(), args[0], store.Layer(layer))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "ID:       %s\n", rec.ID)
	_, _ = fmt.Fprintf(out, "Layer:    %s\n", rec.Layer)
	_, _ = fmt.Fprintf(out, "Text:     %s\n", rec.Text)
	if rec.Kind != "" {
		_, _ = fmt.Fprintf(out, "Kind:     %s\n", rec.Kind)
	}
	if len(rec.Tags) > 0 {
		_, _ = fmt.Fprintf(out, "Tags:     %s\n", strings.Join(rec.Tags, ", "))
	}
	if rec.Project != "" {
		_, _ = fmt.Fprintf(out, "Project:  %s\n", rec.Project)
	}
	_, _ = fmt.Fprintf(out, "Score:    %.3f\n", rec.Score)
	_, _ = fmt.Fprintf(out, "Accesses: %d\n", rec.AccessCount)
	_, _ = fmt.Fprintf(out, "Created:  %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}

	cmd.Flags().String("layer", string(store.LayerInteract), "tier to delete from")

	return cmd
}

func runDelete(cmd *cobra.Command, args []string) error {
	eng, _, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	layer, _ := cmd.Flags().GetString("layer")
	if err := eng.Delete(cmd.Context(), args[0], store.Layer(layer)); err != nil {
		if strataerr.IsNotFound(err) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No record %s in %s\n", args[0], layer)
			return nil
		}
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s from %s\n", args[0], layer)
	return nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/datacatalog/internal/schema"
)

var initIndexCmd = &cobra.Command{
	Use:   "init-index",
	Short: "Declare every catalog field in the search index",
	Long: `init-index compares the index's field declarations with the fields the
catalog needs and adds the missing ones. Running it on an up-to-date index
changes nothing. A field that exists with a different type or
multi-valuedness is reported and nothing is added.`,
	Args: cobra.NoArgs,
	RunE: runInitIndex,
}

var resetIndexCmd = &cobra.Command{
	Use:   "reset-index",
	Short: "Delete every document from the search index",
	Long: `reset-index removes all documents, committed or staged, while keeping
the field declarations. Imports never delete documents whose descriptors
disappeared; reset and re-import to drop them.`,
	Args: cobra.NoArgs,
	RunE: runResetIndex,
}

func init() {
	resetIndexCmd.Flags().Bool("yes", false, "confirm deleting every document")

	rootCmd.AddCommand(initIndexCmd)
	rootCmd.AddCommand(resetIndexCmd)
}

func runInitIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := schema.New(s.engine, logger).EnsureSchema(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Index schema (%s): %d field(s) added, %d already present\n",
		s.engine.Name(), len(res.Added), res.Present)
	for _, name := range res.Added {
		fmt.Fprintf(cmd.OutOrStdout(), "  + %s\n", name)
	}
	return nil
}

func runResetIndex(cmd *cobra.Command, args []string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return fmt.Errorf("reset-index deletes every document: pass --yes to confirm")
	}
	ctx := cmd.Context()
	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.engine.Reset(ctx); err != nil {
		return fmt.Errorf("resetting index: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Index reset (%s): all documents removed\n", s.engine.Name())
	return nil
}

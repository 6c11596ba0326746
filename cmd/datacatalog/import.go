// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/datacatalog/internal/catalog"
	"github.com/pdiddy/datacatalog/internal/extend"
	"github.com/pdiddy/datacatalog/internal/schema"
	"github.com/pdiddy/datacatalog/internal/sitemap"
	"github.com/pdiddy/datacatalog/pkg/types"
)

var importCmd = &cobra.Command{
	Use:   "import-entities <study|project|dataset|all>",
	Short: "Load descriptors of one type, or all types, into the index",
	Long: `import-entities reads every descriptor of the given type, normalizes it,
and writes it to the index in batches. Documents become visible with one
commit at the end of each type's pass. "all" imports studies, projects and
datasets in that order.

Malformed and invalid descriptors are skipped and counted unless --strict
is set. Re-importing unchanged descriptors leaves the index unchanged.

With --sitemap, sitemap entries are collected as entities are committed
and the sitemap files are rewritten at the end of the run.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().Bool("sitemap", false, "write sitemaps from the imported entities")
	importCmd.Flags().Bool("strict", false, "abort at the first malformed or invalid descriptor")
	importCmd.Flags().String("output", "text", "summary format: text, json or yaml")
	_ = viper.BindPFlag("strict", importCmd.Flags().Lookup("strict"))

	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ets, err := parseTypes(args[0])
	if err != nil {
		return err
	}
	withSitemap, _ := cmd.Flags().GetBool("sitemap")
	output, _ := cmd.Flags().GetString("output")

	ctx := cmd.Context()
	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := schema.New(s.engine, logger).EnsureSchema(ctx); err != nil {
		return err
	}

	opts := catalog.Options{Strict: s.cfg.Loader.Strict}
	var collector *sitemap.Collector
	if withSitemap {
		if s.cfg.Sitemap.BaseURL == "" {
			return fmt.Errorf("--sitemap needs sitemap.base_url in the configuration")
		}
		collector = sitemap.NewCollector(s.cfg.Sitemap.BaseURL)
		opts.Observe = collector.Add
	}

	pipeline := catalog.New(s.engine, s.cfg, logger)
	var sums []catalog.Summary
	var runErr error
	for _, t := range ets {
		sum, err := pipeline.Import(ctx, t, opts)
		sums = append(sums, sum)
		if err != nil {
			runErr = err
			break
		}
	}

	if err := printSummaries(cmd.OutOrStdout(), output, sums); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}

	if collector != nil {
		if err := writeInlineSitemaps(ctx, cmd.OutOrStdout(), s, collector, ets); err != nil {
			return err
		}
	}

	for _, sum := range sums {
		if sum.Failures() > 0 {
			return errFailures
		}
	}
	return nil
}

// writeInlineSitemaps writes sitemaps from the collected entries. Types
// not imported in this run are read back from the index so the sitemap
// always covers the whole catalog.
func writeInlineSitemaps(ctx context.Context, w io.Writer, s *session, collector *sitemap.Collector, imported []types.EntityType) error {
	inline := make(map[types.EntityType]bool, len(imported))
	for _, t := range imported {
		inline[t] = true
	}
	collected := collector.Entries()

	var entries []types.SitemapEntry
	for _, t := range types.EntityTypes {
		if inline[t] {
			for _, e := range collected {
				if e.Type == t {
					entries = append(entries, e)
				}
			}
			continue
		}
		typed, err := sitemap.TypeFromIndex(ctx, s.engine, s.cfg.Sitemap.BaseURL, pageSize(s.cfg), t)
		if err != nil {
			return err
		}
		entries = append(entries, typed...)
	}

	res, err := sitemap.NewWriter(s.cfg.Sitemap, logger).Write(entries)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Sitemaps: %d entries in %d file(s) plus %s in %s\n",
		res.Entries, len(res.Partitions), res.Index, s.cfg.Sitemap.OutputDir)
	return nil
}

func printSummaries(w io.Writer, format string, sums []catalog.Summary) error {
	if format != "text" {
		return writeStructured(w, format, sums)
	}
	for _, sum := range sums {
		fmt.Fprintf(w, "%s: %d loaded, %d indexed, %d malformed, %d invalid, %d duplicate(s), %d failed (%s)\n",
			sum.Type.Plural(), sum.Loaded, sum.Indexed, sum.Malformed, sum.Invalid, sum.Duplicates, sum.Failed,
			sum.Elapsed.Round(time.Millisecond))
		for _, warning := range sum.Warnings {
			fmt.Fprintf(w, "  warning: %s\n", warning)
		}
		for _, err := range sum.Errors {
			fmt.Fprintf(w, "  error: %v\n", err)
		}
	}
	return nil
}

// pageSize is the read-back page size shared by commands that walk the
// index.
func pageSize(cfg types.CatalogConfig) int {
	if cfg.Extension.PageSize > 0 {
		return cfg.Extension.PageSize
	}
	return extend.DefaultPageSize
}

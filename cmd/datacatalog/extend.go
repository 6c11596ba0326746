// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/datacatalog/internal/extend"
	"github.com/pdiddy/datacatalog/internal/sitemap"
)

var extendCmd = &cobra.Command{
	Use:   "extend-entity-index <study|project|dataset|all>",
	Short: "Compute derived fields from committed documents",
	Long: `extend-entity-index reads back every committed document of the given
type and writes derived fields as partial updates:

  project  dataset_count, data_types
  study    project_count, dataset_count, data_types
  dataset  study_id

Run it after importing datasets; repeated runs over unchanged data write
identical values. A failure on one entity is reported and does not stop
the others.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtend,
}

var sitemapsCmd = &cobra.Command{
	Use:   "generate-sitemaps",
	Short: "Write sitemap files for every committed entity",
	Long: `generate-sitemaps walks the index (studies, projects, then datasets) and
writes sitemap-1.xml, sitemap-2.xml, ... of at most sitemap.max_entries URLs
each, plus a sitemap.xml index referencing them.`,
	Args: cobra.NoArgs,
	RunE: runSitemaps,
}

func init() {
	extendCmd.Flags().Bool("sitemap", false, "rewrite sitemaps after the pass")
	extendCmd.Flags().String("output", "text", "report format: text, json or yaml")

	rootCmd.AddCommand(extendCmd)
	rootCmd.AddCommand(sitemapsCmd)
}

func runExtend(cmd *cobra.Command, args []string) error {
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

	x := extend.New(s.engine, s.cfg.Extension, logger)
	var reports []extend.Report
	var runErr error
	for _, t := range ets {
		report, err := x.Extend(ctx, t)
		reports = append(reports, report)
		if err != nil {
			runErr = err
			break
		}
	}
	if err := printReports(cmd.OutOrStdout(), output, reports); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}

	if withSitemap {
		if err := writeSitemaps(ctx, cmd.OutOrStdout(), s); err != nil {
			return err
		}
	}
	for _, r := range reports {
		if r.Failed > 0 {
			return errFailures
		}
	}
	return nil
}

func printReports(w io.Writer, format string, reports []extend.Report) error {
	if format != "text" {
		return writeStructured(w, format, reports)
	}
	for _, r := range reports {
		fmt.Fprintf(w, "%s: %d read, %d enriched, %d failed (%s)\n",
			r.Type.Plural(), r.Read, r.Enriched, r.Failed, r.Elapsed.Round(time.Millisecond))
		for _, err := range r.Errors {
			fmt.Fprintf(w, "  error: %v\n", err)
		}
	}
	return nil
}

func runSitemaps(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()
	return writeSitemaps(ctx, cmd.OutOrStdout(), s)
}

func writeSitemaps(ctx context.Context, w io.Writer, s *session) error {
	if s.cfg.Sitemap.BaseURL == "" {
		return fmt.Errorf("sitemap.base_url is not configured")
	}
	entries, err := sitemap.FromIndex(ctx, s.engine, s.cfg.Sitemap.BaseURL, pageSize(s.cfg))
	if err != nil {
		return err
	}
	res, err := sitemap.NewWriter(s.cfg.Sitemap, logger).Write(entries)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Sitemaps: %d entries in %d file(s) plus %s in %s\n",
		res.Entries, len(res.Partitions), res.Index, s.cfg.Sitemap.OutputDir)
	return nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/datacatalog/internal/index"
	"github.com/pdiddy/datacatalog/internal/mcpserver"
	"github.com/pdiddy/datacatalog/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search <study|project|dataset> [query]",
	Short: "Query committed catalog documents",
	Long: `Search runs a full-text query over one entity type, combined with field
filters (--filter project_id=P1, --filter total_bytes>=1024). Facet counts,
sorting and cursor paging are supported. All query terms must match; --fuzzy
matches stemmed forms.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSearch,
}

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve read-only catalog queries over MCP on stdio",
	Long: `serve-mcp exposes the tools search_catalog, get_entity and count_entities
to an MCP client over stdin and stdout. It never writes to the index.`,
	Args: cobra.NoArgs,
	RunE: runServeMCP,
}

func init() {
	searchCmd.Flags().StringArray("filter", nil, "field filter: field=value, field>=value or field<=value (repeatable)")
	searchCmd.Flags().StringSlice("facet", nil, "count values of these fields")
	searchCmd.Flags().String("sort", "", "sort by field")
	searchCmd.Flags().Bool("desc", false, "sort descending")
	searchCmd.Flags().Bool("fuzzy", false, "match stemmed terms")
	searchCmd.Flags().Int("limit", index.DefaultLimit, "maximum number of results")
	searchCmd.Flags().String("cursor", "", "continue from a previous page's cursor")
	searchCmd.Flags().String("output", "text", "result format: text, json or yaml")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(serveMCPCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	filters, _ := cmd.Flags().GetStringArray("filter")
	facets, _ := cmd.Flags().GetStringSlice("facet")
	sortField, _ := cmd.Flags().GetString("sort")
	desc, _ := cmd.Flags().GetBool("desc")
	fuzzy, _ := cmd.Flags().GetBool("fuzzy")
	limit, _ := cmd.Flags().GetInt("limit")
	cursor, _ := cmd.Flags().GetString("cursor")
	output, _ := cmd.Flags().GetString("output")

	sa := mcpserver.SearchArgs{
		Type:    args[0],
		Fuzzy:   fuzzy,
		Filters: filters,
		Facets:  facets,
		Sort:    sortField,
		Desc:    desc,
		Limit:   limit,
		Cursor:  cursor,
	}
	if len(args) == 2 {
		sa.Query = args[1]
	}
	q, err := mcpserver.BuildQuery(sa)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	page, err := s.engine.Query(ctx, q)
	if err != nil {
		return err
	}
	if output != "text" {
		return writeStructured(cmd.OutOrStdout(), output, page)
	}
	printPage(cmd.OutOrStdout(), q.Type, page)
	return nil
}

func printPage(w io.Writer, t types.EntityType, page index.Page) {
	if len(page.Documents) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	title := types.FieldName(t, "title")
	fmt.Fprintf(w, "%-4s  %-24s  %s\n", "Rank", "ID", "Title")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for i, doc := range page.Documents {
		id := doc.ID
		if len(id) > 24 {
			id = id[:21] + "..."
		}
		text := doc.String(title)
		if len(text) > 48 {
			text = text[:45] + "..."
		}
		fmt.Fprintf(w, "%-4d  %-24s  %s\n", i+1, id, text)
	}
	fmt.Fprintf(w, "\n%d of %d results\n", len(page.Documents), page.Total)
	if page.NextCursor != "" {
		fmt.Fprintf(w, "next page: --cursor %s\n", page.NextCursor)
	}

	fields := make([]string, 0, len(page.Facets))
	for f := range page.Facets {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		fmt.Fprintf(w, "\n%s:\n", f)
		for _, b := range page.Facets[f] {
			fmt.Fprintf(w, "  %-32s %d\n", b.Value, b.Count)
		}
	}
}

func runServeMCP(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer s.Close()

	logger.Info().Str("backend", s.engine.Name()).Msg("serving MCP on stdio")
	return mcpserver.Serve(mcpserver.NewServer(s.engine, version))
}

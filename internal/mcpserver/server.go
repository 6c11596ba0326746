// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package mcpserver exposes read-only catalog queries as MCP tools over
// stdio, for assistants that browse the index.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pdiddy/datacatalog/internal/index"
	"github.com/pdiddy/datacatalog/pkg/types"
)

// Name is the server name announced to clients.
const Name = "datacatalog"

// MaxLimit caps the page size a client may request.
const MaxLimit = 100

// SearchArgs are the search_catalog arguments.
type SearchArgs struct {
	Type    string   `json:"type"`
	Query   string   `json:"query"`
	Fuzzy   bool     `json:"fuzzy"`
	Filters []string `json:"filters"`
	Facets  []string `json:"facets"`
	Sort    string   `json:"sort"`
	Desc    bool     `json:"desc"`
	Limit   int      `json:"limit"`
	Cursor  string   `json:"cursor"`
}

// GetArgs are the get_entity arguments.
type GetArgs struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// CountArgs are the count_entities arguments.
type CountArgs struct {
	Type    string   `json:"type"`
	Query   string   `json:"query"`
	Filters []string `json:"filters"`
}

// NewServer returns an MCP server with the catalog tools registered.
func NewServer(engine index.Engine, version string) *server.MCPServer {
	s := server.NewMCPServer(Name, version, server.WithToolCapabilities(false))

	typeArg := mcp.WithString("type",
		mcp.Required(),
		mcp.Description("Entity type: study, project or dataset"),
		mcp.Enum("study", "project", "dataset"),
	)
	filtersArg := mcp.WithArray("filters",
		mcp.Description("Field filters such as project_id=P1, total_bytes>=1024 or modified<=2024-01-31"),
		mcp.WithStringItems(),
	)

	s.AddTool(mcp.NewTool("search_catalog",
		mcp.WithDescription("Full-text search over catalog entities of one type, with filters, facets and paging"),
		typeArg,
		mcp.WithString("query", mcp.Description("Search terms; all must match")),
		mcp.WithBoolean("fuzzy", mcp.Description("Match stemmed and misspelled terms")),
		filtersArg,
		mcp.WithArray("facets", mcp.Description("Fields to count values for, such as data_types"), mcp.WithStringItems()),
		mcp.WithString("sort", mcp.Description("Field to sort by, such as modified")),
		mcp.WithBoolean("desc", mcp.Description("Sort descending")),
		mcp.WithNumber("limit", mcp.Description("Page size, 1-100"), mcp.DefaultNumber(index.DefaultLimit)),
		mcp.WithString("cursor", mcp.Description("next_cursor from a previous page")),
	), mcp.NewTypedToolHandler(searchHandler(engine)))

	s.AddTool(mcp.NewTool("get_entity",
		mcp.WithDescription("Fetch one catalog entity by type and identifier"),
		typeArg,
		mcp.WithString("id", mcp.Required(), mcp.Description("Entity identifier")),
	), mcp.NewTypedToolHandler(getHandler(engine)))

	s.AddTool(mcp.NewTool("count_entities",
		mcp.WithDescription("Count catalog entities of one type matching a query and filters"),
		typeArg,
		mcp.WithString("query", mcp.Description("Search terms; all must match")),
		filtersArg,
	), mcp.NewTypedToolHandler(countHandler(engine)))

	return s
}

// Serve runs s on stdin and stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// BuildQuery turns search arguments into an index query.
func BuildQuery(args SearchArgs) (index.Query, error) {
	t, err := types.ParseEntityType(args.Type)
	if err != nil {
		return index.Query{}, err
	}
	q := index.Query{
		Type:   t,
		Text:   args.Query,
		Fuzzy:  args.Fuzzy,
		Desc:   args.Desc,
		Limit:  args.Limit,
		Cursor: args.Cursor,
	}
	if q.Limit <= 0 {
		q.Limit = index.DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	for _, expr := range args.Filters {
		f, err := index.ParseFilter(t, expr)
		if err != nil {
			return index.Query{}, err
		}
		q.Filters = append(q.Filters, f)
	}
	for _, name := range args.Facets {
		f, err := index.QualifyField(t, name)
		if err != nil {
			return index.Query{}, err
		}
		q.Facets = append(q.Facets, f.Name)
	}
	if args.Sort != "" {
		f, err := index.QualifyField(t, args.Sort)
		if err != nil {
			return index.Query{}, err
		}
		q.Sort = f.Name
	}
	return q, nil
}

func searchHandler(engine index.Engine) func(context.Context, mcp.CallToolRequest, SearchArgs) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, _ mcp.CallToolRequest, args SearchArgs) (*mcp.CallToolResult, error) {
		q, err := BuildQuery(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		page, err := engine.Query(ctx, q)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return jsonResult(page)
	}
}

func getHandler(engine index.Engine) func(context.Context, mcp.CallToolRequest, GetArgs) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, _ mcp.CallToolRequest, args GetArgs) (*mcp.CallToolResult, error) {
		t, err := types.ParseEntityType(args.Type)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if args.ID == "" {
			return mcp.NewToolResultError("id is required"), nil
		}
		doc, err := index.Get(ctx, engine, t, args.ID)
		if errors.Is(err, index.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("%s %s not found", t, args.ID)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
		}
		return jsonResult(doc)
	}
}

func countHandler(engine index.Engine) func(context.Context, mcp.CallToolRequest, CountArgs) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, _ mcp.CallToolRequest, args CountArgs) (*mcp.CallToolResult, error) {
		q, err := BuildQuery(SearchArgs{Type: args.Type, Query: args.Query, Filters: args.Filters})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		n, err := index.Count(ctx, engine, q)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("count failed: %v", err)), nil
		}
		return jsonResult(map[string]any{"type": q.Type, "count": n})
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

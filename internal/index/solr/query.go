// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package solr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/datacatalog/internal/index"
	"github.com/pdiddy/datacatalog/pkg/types"
)

// FuzzyDistance is the edit distance applied to fuzzy terms.
const FuzzyDistance = 2

type selectResponse struct {
	Response struct {
		NumFound int              `json:"numFound"`
		Docs     []map[string]any `json:"docs"`
	} `json:"response"`
	NextCursorMark string `json:"nextCursorMark"`
	FacetCounts    struct {
		FacetFields map[string][]any `json:"facet_fields"`
	} `json:"facet_counts"`
}

// Query runs a select request. Paging uses cursorMark, so results are
// always sorted with the unique key as the final tie-breaker.
func (c *Client) Query(ctx context.Context, q index.Query) (index.Page, error) {
	params, err := selectParams(q)
	if err != nil {
		return index.Page{}, err
	}

	var resp selectResponse
	if err := c.do(ctx, http.MethodGet, "/select", params, nil, &resp); err != nil {
		return index.Page{}, err
	}

	page := index.Page{Total: resp.Response.NumFound}
	for _, raw := range resp.Response.Docs {
		doc, err := decodeDocument(raw)
		if err != nil {
			return index.Page{}, err
		}
		page.Documents = append(page.Documents, doc)
	}
	if resp.NextCursorMark != "" && resp.NextCursorMark != params.Get("cursorMark") && len(page.Documents) > 0 {
		page.NextCursor = resp.NextCursorMark
	}

	if len(q.Facets) > 0 {
		page.Facets = make(map[string][]index.FacetCount, len(q.Facets))
		for _, field := range q.Facets {
			page.Facets[field] = facetCounts(resp.FacetCounts.FacetFields[field])
		}
	}
	return page, nil
}

func selectParams(q index.Query) (url.Values, error) {
	params := url.Values{}
	params.Set("q", textQuery(q))
	params.Add("fq", types.TypeField+":"+escape(string(q.Type)))

	if len(q.IDs) > 0 {
		keys := make([]string, len(q.IDs))
		for i, id := range q.IDs {
			keys[i] = quote(types.DocumentKey(q.Type, id))
		}
		params.Add("fq", types.KeyField+":("+strings.Join(keys, " OR ")+")")
	}

	for _, f := range q.Filters {
		v := quote(filterValue(f.Value))
		switch f.Op {
		case index.OpEq, "":
			params.Add("fq", f.Field+":"+v)
		case index.OpGTE:
			params.Add("fq", f.Field+":["+v+" TO *]")
		case index.OpLTE:
			params.Add("fq", f.Field+":[* TO "+v+"]")
		default:
			return nil, fmt.Errorf("unsupported filter op %q", f.Op)
		}
	}

	sort := types.KeyField + " asc"
	if q.Sort != "" {
		dir := "asc"
		if q.Desc {
			dir = "desc"
		}
		sort = q.Sort + " " + dir + "," + sort
	}
	params.Set("sort", sort)

	limit := q.Limit
	if limit <= 0 {
		limit = index.DefaultLimit
	}
	params.Set("rows", strconv.Itoa(limit))

	cursor := q.Cursor
	if cursor == "" {
		cursor = "*"
	}
	params.Set("cursorMark", cursor)

	if len(q.Facets) > 0 {
		params.Set("facet", "true")
		params.Set("facet.mincount", "1")
		params.Set("facet.limit", "-1")
		for _, f := range q.Facets {
			params.Add("facet.field", f)
		}
	}
	return params, nil
}

// textQuery requires every term in the type's text field, or within
// FuzzyDistance edits in its fuzzy field.
func textQuery(q index.Query) string {
	terms := strings.Fields(q.Text)
	if len(terms) == 0 {
		return "*:*"
	}
	field := types.TextFieldName(q.Type)
	suffix := ""
	if q.Fuzzy {
		field = types.FuzzyFieldName(q.Type)
		suffix = "~" + strconv.Itoa(FuzzyDistance)
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = escape(t) + suffix
	}
	return field + ":(" + strings.Join(parts, " AND ") + ")"
}

func filterValue(v any) string {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case string:
		return x
	}
	return fmt.Sprint(v)
}

// escape backslash-escapes Lucene query syntax characters.
func escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\+-!():^[]"{}~*?|&/ `, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

func decodeDocument(raw map[string]any) (types.IndexDocument, error) {
	key, _ := raw[types.KeyField].(string)
	et, id, ok := types.SplitDocumentKey(key)
	if !ok {
		return types.IndexDocument{}, fmt.Errorf("unexpected document id %q", key)
	}
	fields := make(map[string]any, len(raw))
	for name, v := range raw {
		if internalField(name) || name == "score" {
			continue
		}
		if f, ok := types.LookupField(name); ok {
			v = f.Coerce(v)
		}
		fields[name] = v
	}
	return types.IndexDocument{Type: et, ID: id, Fields: fields}, nil
}

// facetCounts unpacks Solr's flat [value, count, value, count, ...] list.
func facetCounts(flat []any) []index.FacetCount {
	out := make([]index.FacetCount, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		value := fmt.Sprint(flat[i])
		var n int64
		if num, ok := flat[i+1].(json.Number); ok {
			n, _ = num.Int64()
		}
		out = append(out, index.FacetCount{Value: value, Count: int(n)})
	}
	return out
}

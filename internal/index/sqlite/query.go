// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/datacatalog/internal/index"
	"github.com/pdiddy/datacatalog/pkg/types"
)

func jsonPath(field string) string {
	return `$."` + field + `"`
}

// Query searches committed documents. Cursors are result offsets.
func (s *Store) Query(ctx context.Context, q index.Query) (index.Page, error) {
	where, args, err := s.where(q)
	if err != nil {
		return index.Page{}, err
	}

	var page index.Page
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM documents d WHERE `+where, args...,
	).Scan(&page.Total); err != nil {
		return index.Page{}, fmt.Errorf("counting documents: %w", err)
	}

	offset := 0
	if q.Cursor != "" {
		offset, err = strconv.Atoi(q.Cursor)
		if err != nil || offset < 0 {
			return index.Page{}, fmt.Errorf("invalid cursor %q", q.Cursor)
		}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = index.DefaultLimit
	}

	var qb strings.Builder
	qb.WriteString(`SELECT d.entity_type, d.entity_id, d.body FROM documents d WHERE `)
	qb.WriteString(where)
	qargs := append([]any(nil), args...)
	if q.Sort != "" {
		qb.WriteString(` ORDER BY json_extract(d.body, ?)`)
		if q.Desc {
			qb.WriteString(` DESC`)
		}
		qb.WriteString(`, d.doc_key`)
		qargs = append(qargs, jsonPath(q.Sort))
	} else {
		qb.WriteString(` ORDER BY d.doc_key`)
	}
	qb.WriteString(` LIMIT ? OFFSET ?`)
	qargs = append(qargs, limit, offset)

	rows, err := s.db.QueryContext(ctx, qb.String(), qargs...)
	if err != nil {
		return index.Page{}, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var et, id, body string
		if err := rows.Scan(&et, &id, &body); err != nil {
			return index.Page{}, fmt.Errorf("scanning document: %w", err)
		}
		fields, err := s.decodeFields(body)
		if err != nil {
			return index.Page{}, fmt.Errorf("document %s: %w", types.DocumentKey(types.EntityType(et), id), err)
		}
		page.Documents = append(page.Documents, types.IndexDocument{
			Type: types.EntityType(et), ID: id, Fields: fields,
		})
	}
	if err := rows.Err(); err != nil {
		return index.Page{}, fmt.Errorf("querying documents: %w", err)
	}
	rows.Close()

	if next := offset + len(page.Documents); next < page.Total && len(page.Documents) > 0 {
		page.NextCursor = strconv.Itoa(next)
	}

	if len(q.Facets) > 0 {
		page.Facets = make(map[string][]index.FacetCount, len(q.Facets))
		for _, field := range q.Facets {
			counts, err := s.facet(ctx, field, where, args)
			if err != nil {
				return index.Page{}, err
			}
			page.Facets[field] = counts
		}
	}
	return page, nil
}

// where builds the filter clause shared by the count, page, and facet
// queries. Documents are aliased as d.
func (s *Store) where(q index.Query) (string, []any, error) {
	clauses := []string{`d.entity_type = ?`}
	args := []any{string(q.Type)}

	if len(q.IDs) > 0 {
		clauses = append(clauses, `d.entity_id IN (?`+strings.Repeat(`, ?`, len(q.IDs)-1)+`)`)
		for _, id := range q.IDs {
			args = append(args, id)
		}
	}

	for _, f := range q.Filters {
		var cmp string
		switch f.Op {
		case index.OpEq, "":
			cmp = "="
		case index.OpGTE:
			cmp = ">="
		case index.OpLTE:
			cmp = "<="
		default:
			return "", nil, fmt.Errorf("unsupported filter op %q", f.Op)
		}
		v, err := s.sqlValue(f.Field, f.Value)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses,
			`EXISTS (SELECT 1 FROM json_each(d.body, ?) j WHERE j.value `+cmp+` ?)`)
		args = append(args, jsonPath(f.Field), v)
	}

	if q.Text != "" {
		if expr := matchExpr(q.Text, q.Fuzzy); expr != "" {
			clauses = append(clauses,
				`d.rowid IN (SELECT rowid FROM documents_fts WHERE documents_fts MATCH ?)`)
			args = append(args, expr)
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

// sqlValue converts a filter value to the representation json_each yields
// for the field's stored values.
func (s *Store) sqlValue(field string, v any) (any, error) {
	f, ok := s.field(field)
	if !ok {
		f = types.FieldDef{Name: field, Type: types.FieldString}
	}
	switch f.Type {
	case types.FieldInt:
		n, ok := types.AsInt(v)
		if !ok {
			return nil, fmt.Errorf("field %s: %v is not an integer", field, v)
		}
		return n, nil
	case types.FieldBool:
		switch b := v.(type) {
		case bool:
			return boolInt(b), nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", field, err)
			}
			return boolInt(parsed), nil
		}
		return nil, fmt.Errorf("field %s: %v is not a boolean", field, v)
	case types.FieldDate:
		switch t := v.(type) {
		case time.Time:
			return t.UTC().Format(dateLayout), nil
		case string:
			parsed, err := time.Parse(dateLayout, t)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", field, err)
			}
			return parsed.UTC().Format(dateLayout), nil
		}
		return nil, fmt.Errorf("field %s: %v is not a date", field, v)
	}
	return fmt.Sprint(v), nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (s *Store) facet(ctx context.Context, field, where string, args []any) ([]index.FacetCount, error) {
	qargs := append([]any{jsonPath(field)}, args...)
	rows, err := s.db.QueryContext(ctx,
		`SELECT j.value, count(*) AS n FROM documents d, json_each(d.body, ?) j
		 WHERE `+where+` GROUP BY j.value ORDER BY n DESC, j.value`, qargs...)
	if err != nil {
		return nil, fmt.Errorf("faceting %s: %w", field, err)
	}
	defer rows.Close()

	f, _ := s.field(field)
	counts := []index.FacetCount{}
	for rows.Next() {
		var v any
		var n int
		if err := rows.Scan(&v, &n); err != nil {
			return nil, fmt.Errorf("scanning facet %s: %w", field, err)
		}
		counts = append(counts, index.FacetCount{Value: facetValue(f, v), Count: n})
	}
	return counts, rows.Err()
}

func facetValue(f types.FieldDef, v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case int64:
		if f.Type == types.FieldBool {
			return strconv.FormatBool(x != 0)
		}
		return strconv.FormatInt(x, 10)
	}
	return fmt.Sprint(v)
}

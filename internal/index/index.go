// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package index defines the search engine contract the pipeline writes to
// and reads from. Writes (Upsert, Patch) are staged and become visible to
// Query only after Commit, so a pass can be made visible all at once.
package index

import (
	"context"
	"errors"
	"iter"

	"github.com/pdiddy/datacatalog/pkg/types"
)

// ErrNotFound is returned by Patch when the target document does not exist.
var ErrNotFound = errors.New("document not found")

// DefaultLimit is the page size used when Query.Limit is zero.
const DefaultLimit = 10

// Engine is a search engine backend.
type Engine interface {
	// Name identifies the backend in logs and summaries.
	Name() string

	// Fields returns the field definitions the index currently declares.
	Fields(ctx context.Context) ([]types.FieldDef, error)

	// AddFields declares new fields. Existing fields are never modified.
	AddFields(ctx context.Context, fields []types.FieldDef) error

	// Upsert stages documents, replacing any document with the same key.
	Upsert(ctx context.Context, docs []types.IndexDocument) error

	// Patch stages a partial update that sets the given fields on an
	// existing document. It returns ErrNotFound when no such document is
	// committed or staged.
	Patch(ctx context.Context, t types.EntityType, id string, fields map[string]any) error

	// Query searches committed documents.
	Query(ctx context.Context, q Query) (Page, error)

	// Commit makes every staged write visible.
	Commit(ctx context.Context) error

	// Reset removes every document, committed or staged. Field
	// declarations are kept.
	Reset(ctx context.Context) error

	Close() error
}

// Op is a filter comparison.
type Op string

const (
	OpEq  Op = "eq"
	OpGTE Op = "gte"
	OpLTE Op = "lte"
)

// Filter restricts results on one field. For multi-valued fields OpEq
// matches when any value is equal.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Eq returns an equality filter.
func Eq(field string, v any) Filter { return Filter{Field: field, Op: OpEq, Value: v} }

// Query selects committed documents of one entity type.
type Query struct {
	Type types.EntityType

	// Text is a full-text query over the type's text fields. Terms are
	// ANDed.
	Text string

	// Fuzzy matches Text against stemmed terms instead of exact tokens.
	Fuzzy bool

	// IDs restricts results to the given entity identifiers.
	IDs []string

	Filters []Filter

	// Sort is a qualified field name; results are always tie-broken by
	// document key.
	Sort string
	Desc bool

	// Limit caps the page size. Zero means DefaultLimit.
	Limit int

	// Cursor continues from a previous Page.NextCursor.
	Cursor string

	// Facets lists fields to count values for over the full result set.
	Facets []string
}

// FacetCount is one facet bucket.
type FacetCount struct {
	Value string `json:"value" yaml:"value"`
	Count int    `json:"count" yaml:"count"`
}

// Page is one page of query results.
type Page struct {
	Documents  []types.IndexDocument   `json:"documents" yaml:"documents"`
	Total      int                     `json:"total" yaml:"total"`
	NextCursor string                  `json:"next_cursor,omitempty" yaml:"next_cursor,omitempty"`
	Facets     map[string][]FacetCount `json:"facets,omitempty" yaml:"facets,omitempty"`
}

// All iterates every document matching q, following cursors. q.Limit is
// used as the page size.
func All(ctx context.Context, e Engine, q Query) iter.Seq2[types.IndexDocument, error] {
	return func(yield func(types.IndexDocument, error) bool) {
		q.Facets = nil
		for {
			page, err := e.Query(ctx, q)
			if err != nil {
				yield(types.IndexDocument{}, err)
				return
			}
			for _, doc := range page.Documents {
				if !yield(doc, nil) {
					return
				}
			}
			if page.NextCursor == "" || len(page.Documents) == 0 {
				return
			}
			q.Cursor = page.NextCursor
		}
	}
}

// Get returns one committed document.
func Get(ctx context.Context, e Engine, t types.EntityType, id string) (types.IndexDocument, error) {
	page, err := e.Query(ctx, Query{Type: t, IDs: []string{id}, Limit: 1})
	if err != nil {
		return types.IndexDocument{}, err
	}
	if len(page.Documents) == 0 {
		return types.IndexDocument{}, ErrNotFound
	}
	return page.Documents[0], nil
}

// ExistingIDs returns the subset of ids with a committed document of type t.
func ExistingIDs(ctx context.Context, e Engine, t types.EntityType, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	for doc, err := range All(ctx, e, Query{Type: t, IDs: ids, Limit: len(ids)}) {
		if err != nil {
			return nil, err
		}
		found[doc.ID] = true
	}
	return found, nil
}

// Count returns the number of committed documents matching q.
func Count(ctx context.Context, e Engine, q Query) (int, error) {
	q.Limit = 1
	q.Cursor = ""
	q.Facets = nil
	page, err := e.Query(ctx, q)
	if err != nil {
		return 0, err
	}
	return page.Total, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package indextest provides an in-memory index.Engine with fault
// injection for tests of the indexing, extension, and sitemap stages.
package indextest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/datacatalog/internal/index"
	"github.com/pdiddy/datacatalog/pkg/types"
)

type pendingOp struct {
	key    string
	doc    types.IndexDocument
	patch  map[string]any
	upsert bool
}

// Engine is an in-memory index.Engine. Staging and commit semantics match
// the real backends. The fault hooks may be set before use.
type Engine struct {
	// UpsertErr, when set, is consulted before every Upsert; a non-nil
	// result fails the call without staging anything.
	UpsertErr func(docs []types.IndexDocument) error

	// PatchErr, when set, is consulted before every Patch.
	PatchErr func(t types.EntityType, id string) error

	// CommitErr, when set, fails every Commit.
	CommitErr error

	mu        sync.Mutex
	fields    map[string]types.FieldDef
	committed map[string]types.IndexDocument
	pending   []pendingOp
	upserts   int
	commits   int
}

var _ index.Engine = (*Engine)(nil)

// New returns an empty engine.
func New() *Engine {
	return &Engine{
		fields:    make(map[string]types.FieldDef),
		committed: make(map[string]types.IndexDocument),
	}
}

func (e *Engine) Name() string { return "memory" }

func (e *Engine) Fields(_ context.Context) ([]types.FieldDef, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.FieldDef, 0, len(e.fields))
	for _, f := range e.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (e *Engine) AddFields(_ context.Context, fields []types.FieldDef) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, f := range fields {
		if _, ok := e.fields[f.Name]; ok {
			return fmt.Errorf("field %s already exists", f.Name)
		}
		e.fields[f.Name] = f
	}
	return nil
}

// SetField declares or overwrites a field, bypassing AddFields checks.
func (e *Engine) SetField(f types.FieldDef) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fields[f.Name] = f
}

func (e *Engine) Upsert(ctx context.Context, docs []types.IndexDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.UpsertErr != nil {
		if err := e.UpsertErr(docs); err != nil {
			return err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.upserts++
	for _, d := range docs {
		e.pending = append(e.pending, pendingOp{key: d.Key(), doc: clone(d), upsert: true})
	}
	return nil
}

func (e *Engine) Patch(ctx context.Context, t types.EntityType, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.PatchErr != nil {
		if err := e.PatchErr(t, id); err != nil {
			return err
		}
	}
	key := types.DocumentKey(t, id)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.existsLocked(key) {
		return index.ErrNotFound
	}
	e.pending = append(e.pending, pendingOp{key: key, patch: cloneFields(fields)})
	return nil
}

func (e *Engine) existsLocked(key string) bool {
	if _, ok := e.committed[key]; ok {
		return true
	}
	for _, op := range e.pending {
		if op.upsert && op.key == key {
			return true
		}
	}
	return false
}

func (e *Engine) Commit(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.CommitErr != nil {
		return e.CommitErr
	}
	for _, op := range e.pending {
		if op.upsert {
			e.committed[op.key] = op.doc
			continue
		}
		doc, ok := e.committed[op.key]
		if !ok {
			continue
		}
		for k, v := range op.patch {
			doc.Fields[k] = v
		}
	}
	e.pending = nil
	e.commits++
	return nil
}

func (e *Engine) Reset(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.committed = make(map[string]types.IndexDocument)
	e.pending = nil
	return nil
}

func (e *Engine) Close() error { return nil }

// Pending returns the number of staged, uncommitted writes.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Commits returns the number of successful commits.
func (e *Engine) Commits() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commits
}

// Upserts returns the number of successful Upsert calls.
func (e *Engine) Upserts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.upserts
}

// Snapshot returns every committed document keyed by document key.
func (e *Engine) Snapshot() map[string]types.IndexDocument {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]types.IndexDocument, len(e.committed))
	for k, d := range e.committed {
		out[k] = clone(d)
	}
	return out
}

func (e *Engine) Query(ctx context.Context, q index.Query) (index.Page, error) {
	if err := ctx.Err(); err != nil {
		return index.Page{}, err
	}
	e.mu.Lock()
	var matched []types.IndexDocument
	for _, d := range e.committed {
		if matches(d, q) {
			matched = append(matched, clone(d))
		}
	}
	e.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if q.Sort != "" {
			if c := compare(matched[i].Fields[q.Sort], matched[j].Fields[q.Sort]); c != 0 {
				return (c < 0) != q.Desc
			}
		}
		return matched[i].Key() < matched[j].Key()
	})

	page := index.Page{Total: len(matched)}
	if len(q.Facets) > 0 {
		page.Facets = facets(matched, q.Facets)
	}

	offset := 0
	if q.Cursor != "" {
		n, err := strconv.Atoi(q.Cursor)
		if err != nil {
			return index.Page{}, fmt.Errorf("invalid cursor %q", q.Cursor)
		}
		offset = n
	}
	limit := q.Limit
	if limit <= 0 {
		limit = index.DefaultLimit
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	end := min(offset+limit, len(matched))
	page.Documents = matched[offset:end]
	if end < len(matched) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func matches(d types.IndexDocument, q index.Query) bool {
	if d.Type != q.Type {
		return false
	}
	if len(q.IDs) > 0 && !contains(q.IDs, d.ID) {
		return false
	}
	for _, f := range q.Filters {
		if !matchFilter(d.Fields[f.Field], f) {
			return false
		}
	}
	if q.Text != "" {
		text := strings.ToLower(searchText(d))
		for _, term := range strings.Fields(strings.ToLower(q.Text)) {
			if q.Fuzzy && len(term) > 4 {
				term = term[:4]
			}
			if !strings.Contains(text, term) {
				return false
			}
		}
	}
	return true
}

func searchText(d types.IndexDocument) string {
	var b strings.Builder
	for name := range d.Fields {
		def, ok := types.LookupField(name)
		if !ok || !def.Text {
			continue
		}
		for _, v := range d.Strings(name) {
			b.WriteString(v)
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func matchFilter(v any, f index.Filter) bool {
	values := []any{v}
	switch x := v.(type) {
	case []string:
		values = values[:0]
		for _, s := range x {
			values = append(values, s)
		}
	case []any:
		values = x
	}
	for _, val := range values {
		c := compare(val, f.Value)
		switch f.Op {
		case index.OpEq, "":
			if c == 0 && val != nil {
				return true
			}
		case index.OpGTE:
			if c >= 0 && val != nil {
				return true
			}
		case index.OpLTE:
			if c <= 0 && val != nil {
				return true
			}
		}
	}
	return false
}

// compare orders two field values of the same kind. Mixed kinds compare by
// their string forms.
func compare(a, b any) int {
	if ai, ok := types.AsInt(a); ok {
		if bi, ok := types.AsInt(b); ok {
			switch {
			case ai < bi:
				return -1
			case ai > bi:
				return 1
			}
			return 0
		}
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt)
		}
	}
	return strings.Compare(str(a), str(b))
}

func str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

func facets(docs []types.IndexDocument, fields []string) map[string][]index.FacetCount {
	out := make(map[string][]index.FacetCount, len(fields))
	for _, field := range fields {
		counts := make(map[string]int)
		for _, d := range docs {
			switch v := d.Fields[field].(type) {
			case nil:
			case []string:
				for _, s := range v {
					counts[s]++
				}
			default:
				counts[str(v)]++
			}
		}
		buckets := make([]index.FacetCount, 0, len(counts))
		for v, n := range counts {
			buckets = append(buckets, index.FacetCount{Value: v, Count: n})
		}
		sort.Slice(buckets, func(i, j int) bool {
			if buckets[i].Count != buckets[j].Count {
				return buckets[i].Count > buckets[j].Count
			}
			return buckets[i].Value < buckets[j].Value
		})
		out[field] = buckets
	}
	return out
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func clone(d types.IndexDocument) types.IndexDocument {
	d.Fields = cloneFields(d.Fields)
	return d
}

func cloneFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if s, ok := v.([]string); ok {
			v = append([]string(nil), s...)
		}
		out[k] = v
	}
	return out
}

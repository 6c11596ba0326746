// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package solr

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/datacatalog/internal/httputil"
	"github.com/pdiddy/datacatalog/internal/index"
	"github.com/pdiddy/datacatalog/internal/secrets"
	"github.com/pdiddy/datacatalog/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

type recorded struct {
	Method string
	Path   string
	Query  url.Values
	Body   string
	User   string
}

// fakeSolr records requests and answers from per-path handlers.
type fakeSolr struct {
	mu       sync.Mutex
	requests []recorded
	handlers map[string]http.HandlerFunc
}

func newFakeSolr(t *testing.T) (*fakeSolr, *Client) {
	t.Helper()
	f := &fakeSolr{handlers: map[string]http.HandlerFunc{}}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		user, _, _ := r.BasicAuth()
		f.mu.Lock()
		f.requests = append(f.requests, recorded{
			Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Body: string(body), User: user,
		})
		h := f.handlers[r.URL.Path]
		f.mu.Unlock()
		if h == nil {
			w.Write([]byte(`{"responseHeader":{"status":0}}`))
			return
		}
		h(w, r)
	}))
	t.Cleanup(ts.Close)

	c, err := New(Options{
		URL:        ts.URL + "/solr",
		Collection: "catalog",
		Auth:       &secrets.BasicAuth{Username: "indexer", Password: "pw"},
		MaxRetries: 2,
		Timeout:    5 * time.Second,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	return f, c
}

func (f *fakeSolr) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeSolr) handle(path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = h
}

func TestNewRequiresURLAndCollection(t *testing.T) {
	_, err := New(Options{URL: "http://localhost:8983/solr"})
	assert.Error(t, err)
}

func TestFieldsMarksCopiedFieldsAsText(t *testing.T) {
	f, c := newFakeSolr(t)
	f.handle("/solr/catalog/schema/fields", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"fields":[
			{"name":"_version_","type":"plong"},
			{"name":"id","type":"string"},
			{"name":"type","type":"string"},
			{"name":"project_title","type":"text_en"},
			{"name":"project_keywords","type":"string","multiValued":true},
			{"name":"project_text_","type":"text_en","multiValued":true}
		]}`))
	})
	f.handle("/solr/catalog/schema/copyfields", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"copyFields":[{"source":"project_title","dest":"project_text_"}]}`))
	})

	fields, err := c.Fields(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.FieldDef{
		{Name: "project_keywords", Type: types.FieldString, MultiValued: true},
		{Name: "project_title", Type: types.FieldText, Text: true},
	}, fields)
	assert.Equal(t, "indexer", f.last().User)
}

func TestAddFieldsCreatesCatchAllsAndCopyFields(t *testing.T) {
	f, c := newFakeSolr(t)
	f.handle("/solr/catalog/schema/fields", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"fields":[{"name":"id","type":"string"}]}`))
	})

	err := c.AddFields(context.Background(), []types.FieldDef{
		{Name: "study_title", Type: types.FieldText, Text: true},
		{Name: "study_project_count", Type: types.FieldInt},
	})
	require.NoError(t, err)

	req := f.last()
	assert.Equal(t, "/solr/catalog/schema", req.Path)
	var cmd struct {
		AddField []struct {
			Name        string `json:"name"`
			Type        string `json:"type"`
			MultiValued bool   `json:"multiValued"`
			Stored      bool   `json:"stored"`
		} `json:"add-field"`
		AddCopyField []struct {
			Source string   `json:"source"`
			Dest   []string `json:"dest"`
		} `json:"add-copy-field"`
	}
	require.NoError(t, json.Unmarshal([]byte(req.Body), &cmd))

	var names []string
	for _, af := range cmd.AddField {
		names = append(names, af.Name)
	}
	assert.Equal(t, []string{"type", "study_title", "study_text_", "study_textfuzzy_", "study_project_count"}, names)
	assert.Equal(t, "text_en_splitting_tight", cmd.AddField[3].Type)
	assert.False(t, cmd.AddField[2].Stored)
	require.Len(t, cmd.AddCopyField, 1)
	assert.Equal(t, "study_title", cmd.AddCopyField[0].Source)
	assert.Equal(t, []string{"study_text_", "study_textfuzzy_"}, cmd.AddCopyField[0].Dest)
}

func TestUpsertSendsKeyedDocumentsWithoutCommit(t *testing.T) {
	f, c := newFakeSolr(t)
	doc := types.Study{
		ID: "S1", Title: "Cohort", ModifiedAt: time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC),
	}.Document()

	require.NoError(t, c.Upsert(context.Background(), []types.IndexDocument{doc}))

	req := f.last()
	assert.Equal(t, "/solr/catalog/update", req.Path)
	assert.Empty(t, req.Query.Get("commit"))
	var sent []map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.Body), &sent))
	require.Len(t, sent, 1)
	assert.Equal(t, "study_S1", sent[0]["id"])
	assert.Equal(t, "study", sent[0]["type"])
	assert.Equal(t, "Cohort", sent[0]["study_title"])
	assert.Equal(t, "2023-05-06T07:08:09Z", sent[0]["study_modified"])
}

func TestPatchUsesAtomicSetAndMapsConflict(t *testing.T) {
	f, c := newFakeSolr(t)

	err := c.Patch(context.Background(), types.ProjectType, "P1", map[string]any{"project_dataset_count": int64(3)})
	require.NoError(t, err)

	var sent []map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.last().Body), &sent))
	assert.Equal(t, "project_P1", sent[0]["id"])
	assert.Equal(t, float64(1), sent[0]["_version_"])
	assert.Equal(t, map[string]any{"set": float64(3)}, sent[0]["project_dataset_count"])

	f.handle("/solr/catalog/update", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"msg":"Document not found for update.  id=project_P9","code":409}}`))
	})
	err = c.Patch(context.Background(), types.ProjectType, "P9", map[string]any{"project_dataset_count": int64(0)})
	assert.ErrorIs(t, err, index.ErrNotFound)
}

func TestQueryBuildsParamsAndDecodesTypedDocuments(t *testing.T) {
	f, c := newFakeSolr(t)
	f.handle("/solr/catalog/select", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{
			"response":{"numFound":3,"docs":[{
				"id":"dataset_D1","type":"dataset","_version_":17,
				"dataset_title":"Stool metagenomics",
				"dataset_data_types":["Metagenomics"],
				"dataset_total_bytes":300,
				"dataset_modified":"2024-01-02T03:04:05Z",
				"dataset_has_valid_parent":true
			}]},
			"nextCursorMark":"AoE",
			"facet_counts":{"facet_fields":{"dataset_data_types":["Metagenomics",2,"Imaging",1]}}
		}`))
	})

	page, err := c.Query(context.Background(), index.Query{
		Type:    types.DatasetType,
		Text:    "gut flora",
		Fuzzy:   true,
		IDs:     []string{"D1", "D2"},
		Filters: []index.Filter{index.Eq("dataset_data_types", "Metagenomics"), {Field: "dataset_total_bytes", Op: index.OpGTE, Value: 100}},
		Sort:    "dataset_modified",
		Desc:    true,
		Limit:   1,
		Facets:  []string{"dataset_data_types"},
	})
	require.NoError(t, err)

	q := f.last().Query
	assert.Equal(t, "dataset_textfuzzy_:(gut~2 AND flora~2)", q.Get("q"))
	assert.Equal(t, []string{
		"type:dataset",
		`id:("dataset_D1" OR "dataset_D2")`,
		`dataset_data_types:"Metagenomics"`,
		`dataset_total_bytes:["100" TO *]`,
	}, q["fq"])
	assert.Equal(t, "dataset_modified desc,id asc", q.Get("sort"))
	assert.Equal(t, "*", q.Get("cursorMark"))
	assert.Equal(t, "1", q.Get("rows"))
	assert.Equal(t, []string{"dataset_data_types"}, q["facet.field"])

	assert.Equal(t, 3, page.Total)
	assert.Equal(t, "AoE", page.NextCursor)
	require.Len(t, page.Documents, 1)
	doc := page.Documents[0]
	assert.Equal(t, types.DatasetType, doc.Type)
	assert.Equal(t, "D1", doc.ID)
	assert.Equal(t, []string{"Metagenomics"}, doc.Strings("dataset_data_types"))
	n, ok := doc.Int("dataset_total_bytes")
	assert.True(t, ok)
	assert.Equal(t, int64(300), n)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), doc.Time("dataset_modified"))
	assert.True(t, doc.Bool("dataset_has_valid_parent"))
	assert.NotContains(t, doc.Fields, "_version_")
	assert.Equal(t, []index.FacetCount{{Value: "Metagenomics", Count: 2}, {Value: "Imaging", Count: 1}},
		page.Facets["dataset_data_types"])
}

func TestQueryCursorEnd(t *testing.T) {
	f, c := newFakeSolr(t)
	f.handle("/solr/catalog/select", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"response":{"numFound":1,"docs":[{"id":"study_S1","type":"study"}]},"nextCursorMark":"AoE"}`))
	})
	page, err := c.Query(context.Background(), index.Query{Type: types.StudyType, Cursor: "AoE"})
	require.NoError(t, err)
	assert.Empty(t, page.NextCursor)
	assert.Equal(t, "*:*", f.last().Query.Get("q"))
}

func TestCommitAndReset(t *testing.T) {
	f, c := newFakeSolr(t)

	require.NoError(t, c.Commit(context.Background()))
	assert.Equal(t, "true", f.last().Query.Get("commit"))

	require.NoError(t, c.Reset(context.Background()))
	req := f.last()
	assert.Equal(t, "true", req.Query.Get("commit"))
	assert.JSONEq(t, `{"delete":{"query":"*:*"}}`, req.Body)
}

func TestTransientErrorsAreRetried(t *testing.T) {
	f, c := newFakeSolr(t)
	var mu sync.Mutex
	calls := 0
	f.handle("/solr/catalog/update", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	})

	require.NoError(t, c.Commit(context.Background()))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestErrorResponseCarriesSolrMessage(t *testing.T) {
	f, c := newFakeSolr(t)
	f.handle("/solr/catalog/update", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"msg":"undefined field study_bogus","code":400}}`))
	})

	err := c.Upsert(context.Background(), []types.IndexDocument{{Type: types.StudyType, ID: "S1", Fields: map[string]any{}}})
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusBadRequest, serr.Status)
	assert.Equal(t, "undefined field study_bogus", serr.Message)
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `covid\-19`, escape("covid-19"))
	assert.Equal(t, `a\:b`, escape("a:b"))
	assert.Equal(t, `"say \"hi\""`, quote(`say "hi"`))
}

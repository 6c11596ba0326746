// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/datacatalog/internal/index"
	"github.com/pdiddy/datacatalog/pkg/types"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.AddFields(context.Background(), types.FullSchema()))
	return s
}

func dataset(id, title string, dataTypes []string, size int64) types.IndexDocument {
	return types.Dataset{
		ID:         id,
		Title:      title,
		DataTypes:  dataTypes,
		ProjectID:  "P1",
		ModifiedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Distributions: []types.Distribution{
			{Format: "CSV", Bytes: size},
		},
	}.Document()
}

func TestOpenAppliesMigrationsOnce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, dir)
	require.NoError(t, err)
	defer s.Close()

	var n int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT count(*) FROM schema_version`).Scan(&n))
	assert.Equal(t, len(migrations), n)

	v, err := currentVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion(), v.String())
}

func TestFieldsRoundTrip(t *testing.T) {
	s := openStore(t)
	fields, err := s.Fields(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, types.FullSchema(), fields)

	err = s.AddFields(context.Background(), []types.FieldDef{{Name: "dataset_title", Type: types.FieldText}})
	assert.Error(t, err, "re-adding a field must fail")
}

func TestWritesInvisibleUntilCommit(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.Upsert(ctx, []types.IndexDocument{dataset("D1", "Gut microbiome", []string{"Metagenomics"}, 10)}))
	n, err := index.Count(ctx, s, index.Query{Type: types.DatasetType})
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.Commit(ctx))
	doc, err := index.Get(ctx, s, types.DatasetType, "D1")
	require.NoError(t, err)
	assert.Equal(t, "Gut microbiome", doc.String("dataset_title"))
	assert.Equal(t, []string{"Metagenomics"}, doc.Strings("dataset_data_types"))
	total, ok := doc.Int("dataset_total_bytes")
	assert.True(t, ok)
	assert.Equal(t, int64(10), total)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), doc.Time("dataset_modified"))
}

func TestUpsertOverwritesByKey(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.Upsert(ctx, []types.IndexDocument{dataset("D1", "First title", nil, 0)}))
	require.NoError(t, s.Commit(ctx))
	require.NoError(t, s.Upsert(ctx, []types.IndexDocument{dataset("D1", "Second title", nil, 0)}))
	require.NoError(t, s.Commit(ctx))

	n, err := index.Count(ctx, s, index.Query{Type: types.DatasetType})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	page, err := s.Query(ctx, index.Query{Type: types.DatasetType, Text: "first"})
	require.NoError(t, err)
	assert.Zero(t, page.Total, "full-text index must follow the overwrite")

	page, err = s.Query(ctx, index.Query{Type: types.DatasetType, Text: "second"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestPatch(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	err := s.Patch(ctx, types.ProjectType, "P1", map[string]any{"project_dataset_count": int64(2)})
	assert.ErrorIs(t, err, index.ErrNotFound)

	doc := types.Project{ID: "P1", Title: "Cohort"}.Document()
	require.NoError(t, s.Upsert(ctx, []types.IndexDocument{doc}))
	// Staged upserts are patchable before commit.
	require.NoError(t, s.Patch(ctx, types.ProjectType, "P1", map[string]any{
		"project_dataset_count": int64(2),
		"project_data_types":    []string{"Genomics", "Imaging"},
	}))
	require.NoError(t, s.Commit(ctx))

	got, err := index.Get(ctx, s, types.ProjectType, "P1")
	require.NoError(t, err)
	n, _ := got.Int("project_dataset_count")
	assert.Equal(t, int64(2), n)
	assert.Equal(t, []string{"Genomics", "Imaging"}, got.Strings("project_data_types"))
	assert.Equal(t, "Cohort", got.String("project_title"))
}

func TestQueryFiltersSortFacetsAndCursor(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	docs := []types.IndexDocument{
		dataset("D1", "Stool metagenomics", []string{"Metagenomics", "Clinical"}, 300),
		dataset("D2", "Brain imaging", []string{"Imaging"}, 100),
		dataset("D3", "Blood genomics", []string{"Genomics", "Clinical"}, 200),
	}
	docs[1].Fields["dataset_has_valid_parent"] = true
	require.NoError(t, s.Upsert(ctx, docs))
	require.NoError(t, s.Commit(ctx))

	page, err := s.Query(ctx, index.Query{
		Type:    types.DatasetType,
		Filters: []index.Filter{index.Eq("dataset_data_types", "Clinical")},
		Sort:    "dataset_total_bytes",
		Desc:    true,
		Facets:  []string{"dataset_data_types"},
	})
	require.NoError(t, err)
	require.Len(t, page.Documents, 2)
	assert.Equal(t, "D1", page.Documents[0].ID)
	assert.Equal(t, "D3", page.Documents[1].ID)
	assert.Equal(t, index.FacetCount{Value: "Clinical", Count: 2}, page.Facets["dataset_data_types"][0])

	page, err = s.Query(ctx, index.Query{
		Type:    types.DatasetType,
		Filters: []index.Filter{{Field: "dataset_total_bytes", Op: index.OpGTE, Value: 200}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = s.Query(ctx, index.Query{
		Type:    types.DatasetType,
		Filters: []index.Filter{index.Eq("dataset_has_valid_parent", true)},
	})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "D2", page.Documents[0].ID)

	var ids []string
	for doc, err := range index.All(ctx, s, index.Query{Type: types.DatasetType, Limit: 2}) {
		require.NoError(t, err)
		ids = append(ids, doc.ID)
	}
	assert.Equal(t, []string{"D1", "D2", "D3"}, ids)
}

func TestFuzzyTextMatchesStems(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.Upsert(ctx, []types.IndexDocument{dataset("D1", "Sequencing of tumours", nil, 0)}))
	require.NoError(t, s.Commit(ctx))

	page, err := s.Query(ctx, index.Query{Type: types.DatasetType, Text: "sequenced"})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	page, err = s.Query(ctx, index.Query{Type: types.DatasetType, Text: "sequenced", Fuzzy: true})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.Upsert(ctx, []types.IndexDocument{dataset("D1", "x", nil, 0)}))
	require.NoError(t, s.Commit(ctx))
	require.NoError(t, s.Upsert(ctx, []types.IndexDocument{dataset("D2", "y", nil, 0)}))

	require.NoError(t, s.Reset(ctx))
	require.NoError(t, s.Commit(ctx))

	n, err := index.Count(ctx, s, index.Query{Type: types.DatasetType})
	require.NoError(t, err)
	assert.Zero(t, n)

	fields, err := s.Fields(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, fields, "reset keeps field declarations")
}

func TestMatchExpr(t *testing.T) {
	assert.Equal(t, `text:"gut" AND text:"microbiome"`, matchExpr("Gut-microbiome", false))
	assert.Equal(t, `fuzzy:"sequenc"`, matchExpr("sequencing", true))
	assert.Equal(t, "", matchExpr("  !! ", false))
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/datacatalog/internal/extend"
	"github.com/pdiddy/datacatalog/internal/index"
	"github.com/pdiddy/datacatalog/internal/index/indextest"
	"github.com/pdiddy/datacatalog/internal/index/sqlite"
	"github.com/pdiddy/datacatalog/internal/schema"
	"github.com/pdiddy/datacatalog/internal/sitemap"
	"github.com/pdiddy/datacatalog/pkg/types"
)

func writeDescriptor(t *testing.T, root string, et types.EntityType, name, content string) {
	t.Helper()
	path := filepath.Join(root, et.Plural(), name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// scenarioTree writes study S1 with projects P1 and P2, datasets D1 and D2
// under P1, and dataset D3 whose parent P9 does not exist.
func scenarioTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeDescriptor(t, root, types.StudyType, "s1.yaml", "identifier: S1\ntitle: Gut microbiome\nmodified: 2024-01-10\n")
	writeDescriptor(t, root, types.ProjectType, "p1.yaml", "identifier: P1\ntitle: Cohort A\nstudy: S1\nmodified: 2024-01-11\n")
	writeDescriptor(t, root, types.ProjectType, "p2.json", `{"identifier": "P2", "title": "Cohort B", "study": "S1", "modified": "2024-01-12"}`)
	writeDescriptor(t, root, types.DatasetType, "d1.yaml", "identifier: D1\ntitle: Reads\nproject: P1\ndata_types: [Genomics]\nmodified: 2024-02-01\n")
	writeDescriptor(t, root, types.DatasetType, "d2.yaml", "identifier: D2\ntitle: Assays\nproject: P1\ndata_types: [Proteomics]\nmodified: 2024-02-02\n")
	writeDescriptor(t, root, types.DatasetType, "d3.yaml", "identifier: D3\ntitle: Orphan\nproject: P9\nmodified: 2024-02-03\n")
	return root
}

func config(root string) types.CatalogConfig {
	return types.CatalogConfig{
		Loader: types.LoaderConfig{DescriptorsDir: root},
		Index: types.IndexConfig{
			BatchSize:      2,
			Workers:        2,
			MaxRetries:     1,
			RetryDelay:     time.Millisecond,
			RequestTimeout: 5 * time.Second,
		},
	}
}

func openSQLite(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	_, err = schema.New(store, zerolog.Nop()).EnsureSchema(context.Background())
	require.NoError(t, err)
	return store
}

// dump reads back every committed document.
func dump(t *testing.T, engine index.Engine) map[string]types.IndexDocument {
	t.Helper()
	out := make(map[string]types.IndexDocument)
	for _, et := range types.EntityTypes {
		for doc, err := range index.All(context.Background(), engine, index.Query{Type: et, Limit: 50}) {
			require.NoError(t, err)
			out[doc.Key()] = doc
		}
	}
	return out
}

func TestImportAllScenario(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t)
	p := New(store, config(scenarioTree(t)), zerolog.Nop())

	sums, err := p.ImportAll(ctx, Options{})
	require.NoError(t, err)
	require.Len(t, sums, 3)
	assert.Equal(t, 1, sums[0].Indexed)
	assert.Equal(t, 2, sums[1].Indexed)
	assert.Empty(t, sums[1].Dangling)

	datasets := sums[2]
	assert.Equal(t, 3, datasets.Indexed)
	assert.Zero(t, datasets.Failures())
	assert.Len(t, datasets.Dangling, 1)
	require.Len(t, datasets.Warnings, 1)
	assert.Contains(t, datasets.Warnings[0], "P9")

	d3, err := index.Get(ctx, store, types.DatasetType, "D3")
	require.NoError(t, err)
	assert.False(t, d3.Bool("dataset_has_valid_parent"))
	d1, err := index.Get(ctx, store, types.DatasetType, "D1")
	require.NoError(t, err)
	assert.True(t, d1.Bool("dataset_has_valid_parent"))

	_, err = extend.New(store, types.ExtensionConfig{}, zerolog.Nop()).Extend(ctx, types.ProjectType)
	require.NoError(t, err)

	p1, err := index.Get(ctx, store, types.ProjectType, "P1")
	require.NoError(t, err)
	n, _ := p1.Int("project_dataset_count")
	assert.Equal(t, int64(2), n)
	assert.Equal(t, []string{"Genomics", "Proteomics"}, p1.Strings("project_data_types"))

	p2, err := index.Get(ctx, store, types.ProjectType, "P2")
	require.NoError(t, err)
	n, ok := p2.Int("project_dataset_count")
	assert.True(t, ok)
	assert.Zero(t, n)
}

func TestImportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	root := scenarioTree(t)
	store := openSQLite(t)

	_, err := New(store, config(root), zerolog.Nop()).ImportAll(ctx, Options{})
	require.NoError(t, err)
	first := dump(t, store)
	require.Len(t, first, 6)

	_, err = New(store, config(root), zerolog.Nop()).ImportAll(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, first, dump(t, store))
}

func TestMalformedDescriptorIsIsolated(t *testing.T) {
	root := t.TempDir()
	for i := range 4 {
		writeDescriptor(t, root, types.ProjectType, fmt.Sprintf("p%d.yaml", i), fmt.Sprintf("identifier: P%d\ntitle: Project %d\n", i, i))
	}
	writeDescriptor(t, root, types.ProjectType, "broken.json", `{"identifier": "PX", "title": `)

	engine := indextest.New()
	sum, err := New(engine, config(root), zerolog.Nop()).Import(context.Background(), types.ProjectType, Options{})
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Loaded)
	assert.Equal(t, 1, sum.Malformed)
	assert.Equal(t, 4, sum.Indexed)
	assert.Equal(t, 1, sum.Failures())
	require.Len(t, sum.Errors, 1)
	var merr *types.MalformedDescriptorError
	assert.True(t, errors.As(sum.Errors[0], &merr))
	assert.Len(t, engine.Snapshot(), 4)
}

func TestInvalidDescriptorIsCounted(t *testing.T) {
	root := t.TempDir()
	writeDescriptor(t, root, types.StudyType, "a.yaml", "identifier: S1\ntitle: Fine\n")
	writeDescriptor(t, root, types.StudyType, "b.yaml", "identifier: S2\ndescription: no title\n")

	engine := indextest.New()
	sum, err := New(engine, config(root), zerolog.Nop()).Import(context.Background(), types.StudyType, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Invalid)
	assert.Equal(t, 1, sum.Indexed)

	var verr *types.ValidationError
	require.Len(t, sum.Errors, 1)
	require.True(t, errors.As(sum.Errors[0], &verr))
	assert.Equal(t, "title", verr.Field)
}

func TestStrictModeAborts(t *testing.T) {
	root := t.TempDir()
	writeDescriptor(t, root, types.StudyType, "a.yaml", "identifier: S1\ntitle: Fine\n")
	writeDescriptor(t, root, types.StudyType, "b.yaml", "title: [unterminated\n")

	engine := indextest.New()
	_, err := New(engine, config(root), zerolog.Nop()).Import(context.Background(), types.StudyType, Options{Strict: true})

	var aerr *types.IngestionAbortedError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, types.StudyType, aerr.Type)
	var merr *types.MalformedDescriptorError
	assert.True(t, errors.As(err, &merr))
	assert.Empty(t, engine.Snapshot())
}

func TestDuplicateIdentifierFirstPathWins(t *testing.T) {
	root := t.TempDir()
	writeDescriptor(t, root, types.StudyType, "a.yaml", "identifier: S1\ntitle: First\n")
	writeDescriptor(t, root, types.StudyType, "b.yaml", "identifier: S1\ntitle: Second\n")

	engine := indextest.New()
	sum, err := New(engine, config(root), zerolog.Nop()).Import(context.Background(), types.StudyType, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Duplicates)
	assert.Equal(t, 1, sum.Indexed)
	require.Len(t, sum.Warnings, 1)
	assert.Contains(t, sum.Warnings[0], "b.yaml")
	assert.Equal(t, "First", engine.Snapshot()["study_S1"].String("study_title"))
}

func TestDiscoveryOrderDoesNotChangeResult(t *testing.T) {
	descriptors := []string{
		"identifier: D1\ntitle: One\nmodified: 2024-01-01\n",
		"identifier: D2\ntitle: Two\nmodified: 2024-01-02\n",
		"identifier: D3\ntitle: Three\nmodified: 2024-01-03\n",
		"identifier: D4\ntitle: Four\nmodified: 2024-01-04\n",
		"identifier: D5\ntitle: Five\nmodified: 2024-01-05\n",
	}
	run := func(names []string) map[string]types.IndexDocument {
		root := t.TempDir()
		for i, content := range descriptors {
			writeDescriptor(t, root, types.DatasetType, names[i], content)
		}
		engine := indextest.New()
		_, err := New(engine, config(root), zerolog.Nop()).Import(context.Background(), types.DatasetType, Options{})
		require.NoError(t, err)
		snap := engine.Snapshot()
		for _, doc := range snap {
			delete(doc.Fields, "dataset_source")
		}
		return snap
	}

	forward := run([]string{"a.yaml", "b.yaml", "c.yaml", "d.yaml", "e.yaml"})
	reversed := run([]string{"e.yaml", "d.yaml", "c.yaml", "b.yaml", "a.yaml"})
	assert.Len(t, forward, 5)
	assert.Equal(t, forward, reversed)
}

func TestObserverFeedsSitemapCollector(t *testing.T) {
	engine := indextest.New()
	collector := sitemap.NewCollector("https://catalog.example.org")
	sums, err := New(engine, config(scenarioTree(t)), zerolog.Nop()).ImportAll(context.Background(), Options{Observe: collector.Add})
	require.NoError(t, err)
	require.Len(t, sums, 3)

	entries := collector.Entries()
	require.Len(t, entries, 6)
	assert.Equal(t, "https://catalog.example.org/e/study/S1", entries[0].URL)
	assert.Equal(t, types.DatasetType, entries[5].Type)
}

func TestImportAllStopsAtCommitFailure(t *testing.T) {
	engine := indextest.New()
	engine.CommitErr = errors.New("read-only index")

	sums, err := New(engine, config(scenarioTree(t)), zerolog.Nop()).ImportAll(context.Background(), Options{})
	var cerr *types.IndexCommitError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, types.StudyType, cerr.Type)
	assert.Len(t, sums, 1)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/datacatalog/pkg/types"
)

// workspace points the CLI at a descriptor tree and a fresh index
// directory through viper overrides, and clears them afterwards.
func workspace(t *testing.T, root string) string {
	t.Helper()
	idx := t.TempDir()
	settings := map[string]any{
		"descriptors_dir":    root,
		"index.backend":      "sqlite",
		"index.path":         idx,
		"index.retry_delay":  time.Millisecond,
		"log.level":          "error",
		"secrets_dir":        filepath.Join(idx, "secrets"),
		"sitemap.base_url":   "https://catalog.example.org",
		"sitemap.output_dir": filepath.Join(idx, "sitemaps"),
	}
	for k, v := range settings {
		viper.Set(k, v)
	}
	t.Cleanup(func() {
		for k := range settings {
			viper.Set(k, nil)
		}
	})
	return idx
}

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		for _, flag := range []string{"sitemap", "strict"} {
			_ = importCmd.Flags().Set(flag, "false")
			importCmd.Flags().Lookup(flag).Changed = false
		}
		_ = extendCmd.Flags().Set("sitemap", "false")
		viper.Set("strict", nil)
	}()
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func descriptor(t *testing.T, root string, et types.EntityType, name, content string) {
	t.Helper()
	path := filepath.Join(root, et.Plural(), name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func cleanTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	descriptor(t, root, types.StudyType, "s1.yaml", "identifier: S1\ntitle: Gut microbiome\n")
	descriptor(t, root, types.ProjectType, "p1.yaml", "identifier: P1\ntitle: Cohort A\nstudy: S1\n")
	descriptor(t, root, types.ProjectType, "p2.json", `{"identifier": "P2", "title": "Cohort B", "study": "S1"}`)
	descriptor(t, root, types.DatasetType, "d1.yaml", "identifier: D1\ntitle: Reads\nproject: P1\ndata_types: [Genomics]\n")
	descriptor(t, root, types.DatasetType, "d2.yaml", "identifier: D2\ntitle: Assays\nproject: P1\n")
	return root
}

func TestImportCleanTreeSucceeds(t *testing.T) {
	workspace(t, cleanTree(t))

	out, err := execute(t, "import-entities", "all")
	require.NoError(t, err)
	assert.Contains(t, out, "studies: 1 loaded, 1 indexed, 0 malformed, 0 invalid")
	assert.Contains(t, out, "projects: 2 loaded, 2 indexed")
	assert.Contains(t, out, "datasets: 2 loaded, 2 indexed, 0 malformed, 0 invalid, 0 duplicate(s), 0 failed")
}

func TestImportWithMalformedDescriptorReportsFailure(t *testing.T) {
	root := cleanTree(t)
	descriptor(t, root, types.DatasetType, "broken.json", `{"title": `)
	workspace(t, root)

	out, err := execute(t, "import-entities", "all")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errFailures), "got %v", err)
	assert.Contains(t, out, "datasets: 3 loaded, 2 indexed, 1 malformed, 0 invalid")
	assert.Contains(t, out, "broken.json")
}

func TestImportStrictAbortsOnMalformedDescriptor(t *testing.T) {
	root := cleanTree(t)
	descriptor(t, root, types.DatasetType, "broken.json", `{"title": `)
	workspace(t, root)

	_, err := execute(t, "import-entities", "datasets", "--strict")
	var aborted *types.IngestionAbortedError
	require.True(t, errors.As(err, &aborted), "got %v", err)
	assert.False(t, errors.Is(err, errFailures))
}

func TestExtendAfterImportSucceeds(t *testing.T) {
	idx := workspace(t, cleanTree(t))

	_, err := execute(t, "import-entities", "all")
	require.NoError(t, err)

	out, err := execute(t, "extend-entity-index", "all", "--sitemap")
	require.NoError(t, err)
	assert.Contains(t, out, "studies: 1 read, 1 enriched, 0 failed")
	assert.Contains(t, out, "projects: 2 read, 2 enriched, 0 failed")
	assert.Contains(t, out, "datasets: 2 read, 2 enriched, 0 failed")
	assert.Contains(t, out, "Sitemaps: 5 entries in 1 file(s)")
	assert.FileExists(t, filepath.Join(idx, "sitemaps", "sitemap.xml"))
}

func TestExtendUnknownTypeFails(t *testing.T) {
	workspace(t, cleanTree(t))

	_, err := execute(t, "extend-entity-index", "samples")
	require.Error(t, err)
	assert.False(t, errors.Is(err, errFailures))
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T) string
		want   map[string]string
		errMsg string
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, SolrUsername, "  catalog  \n")
				writeFile(t, dir, SolrPassword, "s3cret\n")
				return dir
			},
			want: map[string]string{
				SolrUsername: "catalog",
				SolrPassword: "s3cret",
			},
		},
		{
			name: "returns empty map for nonexistent directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: map[string]string{},
		},
		{
			name: "skips empty files",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, SolrUsername, "catalog")
				writeFile(t, dir, SolrPassword, "   \n\t  ")
				return dir
			},
			want: map[string]string{
				SolrUsername: "catalog",
			},
		},
		{
			name: "skips dotfiles and subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, ".gitkeep", "")
				writeFile(t, dir, SolrPassword, "pw")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
				return dir
			},
			want: map[string]string{
				SolrPassword: "pw",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := tt.setup(t)
			got, err := Load(dir, zerolog.Nop())
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSolr(t *testing.T) {
	auth, ok := Solr(map[string]string{SolrUsername: "u", SolrPassword: "p"})
	assert.True(t, ok)
	assert.Equal(t, BasicAuth{Username: "u", Password: "p"}, auth)

	_, ok = Solr(map[string]string{SolrUsername: "u"})
	assert.False(t, ok)

	_, ok = Solr(map[string]string{})
	assert.False(t, ok)
}

func TestLoadUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for root")
	}
	dir := t.TempDir()
	writeFile(t, dir, SolrUsername, "catalog")

	badPath := filepath.Join(dir, SolrPassword)
	require.NoError(t, os.WriteFile(badPath, []byte("secret"), 0o000))
	t.Cleanup(func() { os.Chmod(badPath, 0o644) })

	var logs bytes.Buffer
	got, err := Load(dir, zerolog.New(&logs))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{SolrUsername: "catalog"}, got)
	assert.Contains(t, logs.String(), "skipping unreadable secret")
	assert.Contains(t, logs.String(), SolrPassword)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

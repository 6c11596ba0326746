// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/datacatalog/pkg/types"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := New().FromConfig(types.LogConfig{Format: "json", Level: "debug"}).ToWriter(&buf).Make()
	require.NoError(t, err)

	log.Logger.Debug().Str("type", "study").Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "study", line["type"])
	assert.Equal(t, "hello", line["message"])
	assert.Contains(t, line, "time")
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := New().FromConfig(types.LogConfig{Format: "json", Level: "WARN"}).ToWriter(&buf).Make()
	require.NoError(t, err)

	log.Logger.Info().Msg("dropped")
	log.Logger.Warn().Msg("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := New().ToWriter(&buf).Make()
	require.NoError(t, err)

	log.Logger.Info().Int("indexed", 3).Msg("pass committed")
	out := buf.String()
	assert.Contains(t, out, "pass committed")
	assert.Contains(t, out, "indexed=3")
	assert.False(t, strings.HasPrefix(out, "{"))
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.log")
	log, err := New().FromConfig(types.LogConfig{File: path}).Make()
	require.NoError(t, err)

	log.Logger.Info().Msg("first")
	require.NoError(t, log.Close())

	log, err = New().FromConfig(types.LogConfig{File: path}).Make()
	require.NoError(t, err)
	log.Logger.Info().Msg("second")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"message":"first"`)
	assert.Contains(t, lines[1], `"message":"second"`)
}

func TestInvalidSettings(t *testing.T) {
	_, err := New().FromConfig(types.LogConfig{Level: "loud"}).Make()
	assert.Error(t, err)

	_, err = New().FromConfig(types.LogConfig{Format: "xml"}).Make()
	assert.Error(t, err)
}

func TestCloseWithoutFile(t *testing.T) {
	log, err := New().ToWriter(&bytes.Buffer{}).Make()
	require.NoError(t, err)
	assert.NoError(t, log.Close())
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/datacatalog/internal/index"
	"github.com/pdiddy/datacatalog/internal/index/solr"
	"github.com/pdiddy/datacatalog/internal/index/sqlite"
	"github.com/pdiddy/datacatalog/internal/indexing"
	"github.com/pdiddy/datacatalog/internal/runlock"
	"github.com/pdiddy/datacatalog/internal/secrets"
	"github.com/pdiddy/datacatalog/pkg/types"
)

func setDefaults() {
	viper.SetDefault("descriptors_dir", "descriptors")
	viper.SetDefault("strict", false)
	viper.SetDefault("index.backend", string(types.BackendSQLite))
	viper.SetDefault("index.path", ".catalog")
	viper.SetDefault("index.collection", "catalog")
	viper.SetDefault("index.batch_size", 200)
	viper.SetDefault("index.workers", 4)
	viper.SetDefault("index.max_retries", indexing.DefaultMaxRetries)
	viper.SetDefault("index.retry_delay", 500*time.Millisecond)
	viper.SetDefault("index.request_timeout", 30*time.Second)
	viper.SetDefault("extend.workers", 4)
	viper.SetDefault("extend.page_size", 500)
	viper.SetDefault("sitemap.output_dir", "sitemaps")
	viper.SetDefault("sitemap.max_entries", 50000)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("secrets_dir", ".secrets/")
}

// loadConfig reads the typed configuration from viper: flags, environment,
// config file, then defaults.
func loadConfig() types.CatalogConfig {
	return types.CatalogConfig{
		Loader: types.LoaderConfig{
			DescriptorsDir: viper.GetString("descriptors_dir"),
			Strict:         viper.GetBool("strict"),
		},
		Index: types.IndexConfig{
			Backend:        types.IndexBackend(strings.ToLower(viper.GetString("index.backend"))),
			Path:           viper.GetString("index.path"),
			SolrURL:        viper.GetString("index.solr_url"),
			Collection:     viper.GetString("index.collection"),
			BatchSize:      viper.GetInt("index.batch_size"),
			Workers:        viper.GetInt("index.workers"),
			MaxRetries:     viper.GetInt("index.max_retries"),
			RetryDelay:     viper.GetDuration("index.retry_delay"),
			RequestTimeout: viper.GetDuration("index.request_timeout"),
		},
		Extension: types.ExtensionConfig{
			Workers:  viper.GetInt("extend.workers"),
			PageSize: viper.GetInt("extend.page_size"),
		},
		Sitemap: types.SitemapConfig{
			BaseURL:    viper.GetString("sitemap.base_url"),
			OutputDir:  viper.GetString("sitemap.output_dir"),
			MaxEntries: viper.GetInt("sitemap.max_entries"),
		},
		Log: types.LogConfig{
			Level:  viper.GetString("log.level"),
			Format: viper.GetString("log.format"),
			File:   viper.GetString("log.file"),
		},
		SecretsDir: viper.GetString("secrets_dir"),
	}
}

// openEngine connects to the configured backend.
func openEngine(ctx context.Context, cfg types.IndexConfig) (index.Engine, error) {
	switch cfg.Backend {
	case types.BackendSQLite, "":
		store, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case types.BackendSolr:
		opts := solr.Options{
			URL:        cfg.SolrURL,
			Collection: cfg.Collection,
			Timeout:    cfg.RequestTimeout,
			Logger:     logger,
		}
		if auth, ok := secrets.Solr(loadedSecrets); ok {
			opts.Auth = &auth
		}
		client, err := solr.New(opts)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, fmt.Errorf("unknown index backend %q: use sqlite or solr", cfg.Backend)
}

// session is an open engine, plus the run lock for mutating commands.
type session struct {
	cfg    types.CatalogConfig
	engine index.Engine
	lock   *runlock.Lock
}

// openSession opens the engine. When mutating is set it first takes the
// run lock in the index directory, so concurrent runs fail fast.
func openSession(ctx context.Context, mutating bool) (*session, error) {
	s := &session{cfg: loadConfig()}
	if mutating {
		lock, err := runlock.Acquire(s.cfg.Index.Path)
		if err != nil {
			return nil, err
		}
		s.lock = lock
	}
	engine, err := openEngine(ctx, s.cfg.Index)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.engine = engine
	logger.Debug().Str("backend", engine.Name()).Bool("locked", mutating).Msg("index opened")
	return s, nil
}

func (s *session) Close() {
	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing index")
		}
	}
	if s.lock != nil {
		if err := s.lock.Release(); err != nil {
			logger.Warn().Err(err).Msg("releasing run lock")
		}
	}
}

// parseTypes expands "all" into every type in dependency order.
func parseTypes(arg string) ([]types.EntityType, error) {
	if strings.EqualFold(arg, "all") {
		return types.EntityTypes, nil
	}
	t, err := types.ParseEntityType(arg)
	if err != nil {
		return nil, err
	}
	return []types.EntityType{t}, nil
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	return fmt.Errorf("unsupported output format %q: use text, json or yaml", format)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// IndexBackend selects the search engine implementation.
type IndexBackend string

const (
	BackendSQLite IndexBackend = "sqlite"
	BackendSolr   IndexBackend = "solr"
)

// LoaderConfig holds settings for descriptor discovery and normalization.
type LoaderConfig struct {
	// DescriptorsDir is the root containing studies/, projects/, datasets/.
	DescriptorsDir string `json:"descriptors_dir" yaml:"descriptors_dir"`

	// Strict aborts a run at the first malformed or invalid descriptor.
	Strict bool `json:"strict" yaml:"strict"`
}

// IndexConfig holds search engine connection and write settings.
type IndexConfig struct {
	Backend IndexBackend `json:"backend" yaml:"backend"`

	// Path is the directory holding the local SQLite index (sqlite backend).
	Path string `json:"path" yaml:"path"`

	// SolrURL is the base URL of the Solr server (solr backend),
	// e.g. "http://localhost:8983/solr".
	SolrURL string `json:"solr_url" yaml:"solr_url"`

	// Collection is the Solr core or collection name.
	Collection string `json:"collection" yaml:"collection"`

	// BatchSize is the number of documents per upsert batch (default 200).
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// Workers bounds concurrent batch writes (default 4).
	Workers int `json:"workers" yaml:"workers"`

	// MaxRetries is the number of retries for a failed batch. Zero means
	// one attempt and no retries; the configuration default is 3.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RetryDelay is the base backoff between batch retries (default 500ms).
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`

	// RequestTimeout bounds each search engine request (default 30s).
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
}

// ExtensionConfig holds settings for the derived-field pass.
type ExtensionConfig struct {
	// Workers bounds concurrent per-entity enrichment (default 4).
	Workers int `json:"workers" yaml:"workers"`

	// PageSize is the read-back page size (default 500).
	PageSize int `json:"page_size" yaml:"page_size"`
}

// SitemapConfig holds settings for sitemap generation.
type SitemapConfig struct {
	// BaseURL is the public catalog URL prefixed to every entry.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// OutputDir receives the partition files and the index file.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// MaxEntries caps entries per partition file (default 50000).
	MaxEntries int `json:"max_entries" yaml:"max_entries"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is a zerolog level name (debug, info, warn, error).
	Level string `json:"level" yaml:"level"`

	// Format is "console" or "json".
	Format string `json:"format" yaml:"format"`

	// File, when set, receives log output instead of stderr.
	File string `json:"file,omitempty" yaml:"file,omitempty"`
}

// CatalogConfig groups all stage configurations.
type CatalogConfig struct {
	Loader     LoaderConfig    `json:"loader" yaml:"loader"`
	Index      IndexConfig     `json:"index" yaml:"index"`
	Extension  ExtensionConfig `json:"extend" yaml:"extend"`
	Sitemap    SitemapConfig   `json:"sitemap" yaml:"sitemap"`
	Log        LogConfig       `json:"log" yaml:"log"`
	SecretsDir string          `json:"secrets_dir" yaml:"secrets_dir"`
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sitemap turns indexed entities into sitemap protocol files: a set
// of size-bounded partition files and one index file referencing them.
package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/datacatalog/internal/index"
	"github.com/pdiddy/datacatalog/pkg/types"
)

// DefaultMaxEntries is the sitemap protocol's per-file URL limit.
const DefaultMaxEntries = 50000

// IndexFile is the name of the sitemap index.
const IndexFile = "sitemap.xml"

const xmlns = "http://www.sitemaps.org/schemas/sitemap/0.9"

// PartitionFile returns the file name of the n-th partition, counting
// from 1.
func PartitionFile(n int) string { return fmt.Sprintf("sitemap-%d.xml", n) }

// EntityURL returns the canonical page URL of an entity. The identifier is
// path-escaped so characters such as '#' or '?' stay in the path.
func EntityURL(baseURL string, t types.EntityType, id string) string {
	return strings.TrimRight(baseURL, "/") + "/e/" + string(t) + "/" + url.PathEscape(id)
}

// Entry builds the sitemap entry for an entity.
func Entry(baseURL string, e types.Entity) types.SitemapEntry {
	return types.SitemapEntry{
		URL:          EntityURL(baseURL, e.Kind(), e.Identifier()),
		LastModified: e.Modified().UTC(),
		Type:         e.Kind(),
	}
}

// DocumentEntry builds the sitemap entry for a committed document.
func DocumentEntry(baseURL string, doc types.IndexDocument) types.SitemapEntry {
	return types.SitemapEntry{
		URL:          EntityURL(baseURL, doc.Type, doc.ID),
		LastModified: doc.Time(types.FieldName(doc.Type, "modified")).UTC(),
		Type:         doc.Type,
	}
}

// Partition splits entries into consecutive groups of at most limit
// entries, preserving order. The same input always yields the same
// assignment.
func Partition(entries []types.SitemapEntry, limit int) [][]types.SitemapEntry {
	if limit <= 0 {
		limit = DefaultMaxEntries
	}
	var out [][]types.SitemapEntry
	for len(entries) > limit {
		out = append(out, entries[:limit:limit])
		entries = entries[limit:]
	}
	if len(entries) > 0 {
		out = append(out, entries)
	}
	return out
}

// Collector accumulates entries while entities are being indexed. Add
// satisfies the indexing observer signature.
type Collector struct {
	baseURL string

	mu      sync.Mutex
	entries []types.SitemapEntry
}

// NewCollector returns an empty collector producing URLs under baseURL.
func NewCollector(baseURL string) *Collector {
	return &Collector{baseURL: baseURL}
}

// Add records an entity.
func (c *Collector) Add(e types.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, Entry(c.baseURL, e))
}

// Entries returns the collected entries in the order they were added.
func (c *Collector) Entries() []types.SitemapEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.SitemapEntry(nil), c.entries...)
}

// FromIndex walks every committed document, types in dependency order and
// documents by key within a type.
func FromIndex(ctx context.Context, engine index.Engine, baseURL string, pageSize int) ([]types.SitemapEntry, error) {
	var entries []types.SitemapEntry
	for _, t := range types.EntityTypes {
		typed, err := TypeFromIndex(ctx, engine, baseURL, pageSize, t)
		if err != nil {
			return nil, err
		}
		entries = append(entries, typed...)
	}
	return entries, nil
}

// TypeFromIndex returns entries for the committed documents of one type,
// ordered by key.
func TypeFromIndex(ctx context.Context, engine index.Engine, baseURL string, pageSize int, t types.EntityType) ([]types.SitemapEntry, error) {
	var entries []types.SitemapEntry
	for doc, err := range index.All(ctx, engine, index.Query{Type: t, Limit: pageSize}) {
		if err != nil {
			return nil, fmt.Errorf("reading %s documents: %w", t, err)
		}
		entries = append(entries, DocumentEntry(baseURL, doc))
	}
	return entries, nil
}

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	Xmlns   string     `xml:"xmlns,attr"`
	URLs    []urlEntry `xml:"url"`
}

type urlEntry struct {
	XMLName xml.Name `xml:"url"`
	Loc     string   `xml:"loc"`
	LastMod string   `xml:"lastmod,omitempty"`
}

type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Xmlns    string       `xml:"xmlns,attr"`
	Sitemaps []sitemapRef `xml:"sitemap"`
}

type sitemapRef struct {
	XMLName xml.Name `xml:"sitemap"`
	Loc     string   `xml:"loc"`
	LastMod string   `xml:"lastmod,omitempty"`
}

// Result lists the files one Write produced.
type Result struct {
	Entries    int      `json:"entries" yaml:"entries"`
	Partitions []string `json:"partitions" yaml:"partitions"`
	Index      string   `json:"index" yaml:"index"`
}

// Writer writes sitemap files into a directory.
type Writer struct {
	cfg types.SitemapConfig
	log zerolog.Logger
}

// NewWriter returns a Writer. A zero MaxEntries uses DefaultMaxEntries.
func NewWriter(cfg types.SitemapConfig, log zerolog.Logger) *Writer {
	if cfg.MaxEntries <= 0 || cfg.MaxEntries > DefaultMaxEntries {
		cfg.MaxEntries = DefaultMaxEntries
	}
	return &Writer{cfg: cfg, log: log}
}

// Write partitions entries and writes sitemap-1.xml, sitemap-2.xml, ...
// and the index file. Partition files left over from an earlier, larger
// run are removed so the directory always matches the index.
func (w *Writer) Write(entries []types.SitemapEntry) (Result, error) {
	if w.cfg.OutputDir == "" {
		return Result{}, fmt.Errorf("sitemap output directory not configured")
	}
	if err := os.MkdirAll(w.cfg.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating sitemap directory: %w", err)
	}

	parts := Partition(entries, w.cfg.MaxEntries)
	res := Result{Entries: len(entries)}
	idx := sitemapIndex{Xmlns: xmlns}
	for i, part := range parts {
		name := PartitionFile(i + 1)
		set := urlSet{Xmlns: xmlns, URLs: make([]urlEntry, len(part))}
		var newest time.Time
		for j, e := range part {
			set.URLs[j] = urlEntry{Loc: e.URL, LastMod: lastMod(e.LastModified)}
			if e.LastModified.After(newest) {
				newest = e.LastModified
			}
		}
		if err := writeXML(filepath.Join(w.cfg.OutputDir, name), set); err != nil {
			return res, err
		}
		res.Partitions = append(res.Partitions, name)
		idx.Sitemaps = append(idx.Sitemaps, sitemapRef{
			Loc:     strings.TrimRight(w.cfg.BaseURL, "/") + "/" + name,
			LastMod: lastMod(newest),
		})
	}

	if err := w.removeStale(len(parts)); err != nil {
		return res, err
	}
	if err := writeXML(filepath.Join(w.cfg.OutputDir, IndexFile), idx); err != nil {
		return res, err
	}
	res.Index = IndexFile

	w.log.Info().
		Int("entries", res.Entries).
		Int("partitions", len(res.Partitions)).
		Str("dir", w.cfg.OutputDir).
		Msg("sitemaps written")
	return res, nil
}

func (w *Writer) removeStale(kept int) error {
	matches, err := filepath.Glob(filepath.Join(w.cfg.OutputDir, "sitemap-*.xml"))
	if err != nil {
		return err
	}
	for _, path := range matches {
		var n int
		if _, err := fmt.Sscanf(filepath.Base(path), "sitemap-%d.xml", &n); err != nil || n <= kept {
			continue
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("removing stale sitemap %s: %w", path, err)
		}
	}
	return nil
}

func lastMod(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeXML(path string, v any) error {
	data, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	data = append([]byte(xml.Header), data...)
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

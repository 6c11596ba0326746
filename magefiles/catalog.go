//go:build mage

package main

import (
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Catalog runs the pipeline stages against the local descriptor tree.
type Catalog mg.Namespace

// catalog runs the built CLI with DATACATALOG_CONFIG passed through.
func catalog(args ...string) error {
	mg.Deps(Build)
	if cfg := os.Getenv("DATACATALOG_CONFIG"); cfg != "" {
		args = append([]string{"--config", cfg}, args...)
	}
	return sh.RunV(binPath, args...)
}

// Init declares the catalog fields in the index.
func (Catalog) Init() error {
	return catalog("init-index")
}

// Import loads all descriptors, studies first.
func (Catalog) Import() error {
	return catalog("import-entities", "all")
}

// Extend computes derived fields for every type.
func (Catalog) Extend() error {
	return catalog("extend-entity-index", "all")
}

// Sitemaps writes the sitemap files from the index.
func (Catalog) Sitemaps() error {
	return catalog("generate-sitemaps")
}

// All runs init, import, extend and sitemaps in order.
func (c Catalog) All() error {
	mg.SerialDeps(c.Init, c.Import, c.Extend, c.Sitemaps)
	return nil
}

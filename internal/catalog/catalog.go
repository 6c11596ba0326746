// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package catalog runs ingestion passes end to end: load descriptors,
// normalize them, drop duplicate identifiers, index, and summarize.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pdiddy/datacatalog/internal/index"
	"github.com/pdiddy/datacatalog/internal/indexing"
	"github.com/pdiddy/datacatalog/internal/loader"
	"github.com/pdiddy/datacatalog/internal/normalize"
	"github.com/pdiddy/datacatalog/pkg/types"
)

// Summary reports one import pass for one entity type.
type Summary struct {
	Type types.EntityType `json:"type" yaml:"type"`

	// Loaded counts descriptor files read, including malformed ones.
	Loaded     int `json:"loaded" yaml:"loaded"`
	Malformed  int `json:"malformed" yaml:"malformed"`
	Invalid    int `json:"invalid" yaml:"invalid"`
	Duplicates int `json:"duplicates" yaml:"duplicates"`
	Indexed    int `json:"indexed" yaml:"indexed"`
	Failed     int `json:"failed" yaml:"failed"`

	Dangling []indexing.Dangling `json:"dangling,omitempty" yaml:"dangling,omitempty"`
	Warnings []string            `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	// Errors holds per-record and per-batch errors in discovery order.
	Errors []error `json:"-" yaml:"-"`

	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Failures counts records that did not make it into the index.
func (s Summary) Failures() int {
	return s.Malformed + s.Invalid + s.Failed
}

// Options tunes one import.
type Options struct {
	// Strict aborts the pass at the first malformed or invalid record.
	Strict bool

	// Observe, when set, receives every committed entity.
	Observe indexing.Observer
}

// Pipeline wires the loader, normalizer and indexer to one engine.
type Pipeline struct {
	loader     *loader.Loader
	normalizer *normalize.Normalizer
	indexer    *indexing.Indexer
	log        zerolog.Logger

	// RunID tags every log line of this pipeline.
	RunID string
}

// New returns a Pipeline reading descriptors from cfg.Loader.DescriptorsDir.
func New(engine index.Engine, cfg types.CatalogConfig, log zerolog.Logger) *Pipeline {
	runID := uuid.NewString()
	log = log.With().Str("run", runID).Logger()
	return &Pipeline{
		loader:     loader.New(cfg.Loader.DescriptorsDir),
		normalizer: normalize.New(),
		indexer:    indexing.New(engine, cfg.Index, log),
		log:        log,
		RunID:      runID,
	}
}

// Import runs one pass for entity type t. Per-record errors are
// accumulated in the summary unless opts.Strict is set, in which case the
// first one aborts the pass with *types.IngestionAbortedError before
// anything is written. A failed commit returns *types.IndexCommitError.
func (p *Pipeline) Import(ctx context.Context, t types.EntityType, opts Options) (Summary, error) {
	start := time.Now()
	sum := Summary{Type: t}
	log := p.log.With().Str("type", string(t)).Logger()

	var entities []types.Entity
	firstPath := make(map[string]string)
	for rec, err := range p.loader.Records(ctx, t) {
		if err != nil {
			var malformed *types.MalformedDescriptorError
			if !errors.As(err, &malformed) {
				sum.Elapsed = time.Since(start)
				return sum, fmt.Errorf("loading %s descriptors: %w", t, err)
			}
			sum.Loaded++
			sum.Malformed++
			if opts.Strict {
				return sum, &types.IngestionAbortedError{Type: t, Cause: err}
			}
			log.Warn().Err(err).Msg("skipping descriptor")
			sum.Errors = append(sum.Errors, err)
			continue
		}
		sum.Loaded++

		entity, err := p.normalizer.Normalize(rec)
		if err != nil {
			sum.Invalid++
			if opts.Strict {
				return sum, &types.IngestionAbortedError{Type: t, Cause: err}
			}
			log.Warn().Err(err).Msg("skipping descriptor")
			sum.Errors = append(sum.Errors, err)
			continue
		}

		// Paths arrive sorted, so the first occurrence of an identifier wins.
		if prev, dup := firstPath[entity.Identifier()]; dup {
			sum.Duplicates++
			msg := fmt.Sprintf("duplicate %s identifier %s in %s, keeping %s", t, entity.Identifier(), rec.Path, prev)
			sum.Warnings = append(sum.Warnings, msg)
			log.Warn().Str("id", entity.Identifier()).Str("path", rec.Path).Str("kept", prev).Msg("duplicate identifier")
			continue
		}
		firstPath[entity.Identifier()] = rec.Path
		entities = append(entities, entity)
	}

	log.Info().Int("entities", len(entities)).Int("skipped", sum.Malformed+sum.Invalid).Msg("descriptors normalized")

	report, err := p.indexer.IndexEntities(ctx, t, entities, opts.Observe)
	sum.Indexed = report.Indexed
	sum.Failed = report.Failed
	sum.Dangling = report.Dangling
	sum.Errors = append(sum.Errors, report.Errors...)
	if parent := t.Parent(); parent != "" {
		for _, d := range report.Dangling {
			sum.Warnings = append(sum.Warnings, fmt.Sprintf("dangling parent reference: %s %s references missing %s %s", t, d.ID, parent, d.ParentID))
		}
	}
	sum.Elapsed = time.Since(start)
	return sum, err
}

// ImportAll imports studies, projects, then datasets, so each type's
// parents are committed before it is indexed. It stops at the first fatal
// error and returns the summaries of the passes run so far.
func (p *Pipeline) ImportAll(ctx context.Context, opts Options) ([]Summary, error) {
	var out []Summary
	for _, t := range types.EntityTypes {
		sum, err := p.Import(ctx, t, opts)
		out = append(out, sum)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package indexing writes normalized entities of one type to the search
// index in bounded concurrent batches and makes them visible with a single
// commit at the end of the pass.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/datacatalog/internal/index"
	"github.com/pdiddy/datacatalog/pkg/types"
)

// Defaults applied when the corresponding IndexConfig field is not set.
// MaxRetries is the exception: zero means a single attempt, so
// DefaultMaxRetries is applied by the configuration layer instead.
const (
	DefaultBatchSize      = 200
	DefaultWorkers        = 4
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = 500 * time.Millisecond
	DefaultRequestTimeout = 30 * time.Second
)

// Observer receives each entity once its document is committed. Calls
// happen on the caller's goroutine, in input order.
type Observer func(types.Entity)

// Dangling is a reference to a parent that is not in the index.
type Dangling struct {
	ID       string `json:"id" yaml:"id"`
	ParentID string `json:"parent_id" yaml:"parent_id"`
}

// Report summarizes one indexing pass.
type Report struct {
	Type      types.EntityType `json:"type" yaml:"type"`
	Submitted int              `json:"submitted" yaml:"submitted"`
	Indexed   int              `json:"indexed" yaml:"indexed"`
	Failed    int              `json:"failed" yaml:"failed"`
	Batches   int              `json:"batches" yaml:"batches"`

	// FailedBatches counts batches that exhausted their retries.
	FailedBatches int `json:"failed_batches" yaml:"failed_batches"`

	Dangling []Dangling `json:"dangling,omitempty" yaml:"dangling,omitempty"`

	// Errors holds one error per failed batch.
	Errors []error `json:"-" yaml:"-"`

	// Cancelled is set when the context ended before every batch was
	// dispatched. Completed batches are still committed.
	Cancelled bool          `json:"cancelled" yaml:"cancelled"`
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Indexer runs indexing passes against one engine.
type Indexer struct {
	engine index.Engine
	cfg    types.IndexConfig
	log    zerolog.Logger
}

// New returns an Indexer, filling unset configuration with defaults.
func New(engine index.Engine, cfg types.IndexConfig, log zerolog.Logger) *Indexer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Indexer{engine: engine, cfg: cfg, log: log}
}

type batchResult struct {
	ok       bool
	dangling []Dangling
	err      error
}

// IndexEntities indexes entities, all of type t, and commits them.
//
// Batches run concurrently up to the configured worker count; each is
// retried on failure and, once its retries are exhausted, counted as failed
// without stopping the others. Cancellation stops the dispatch of new
// batches; batches already running finish, and everything written so far is
// committed before ctx.Err() is returned. A failed commit returns
// *types.IndexCommitError and no entity is reported as indexed.
func (ix *Indexer) IndexEntities(ctx context.Context, t types.EntityType, entities []types.Entity, observe Observer) (Report, error) {
	start := time.Now()
	report := Report{Type: t, Submitted: len(entities)}

	for _, e := range entities {
		if e.Kind() != t {
			return report, fmt.Errorf("%s %s submitted to the %s pass", e.Kind(), e.Identifier(), t)
		}
	}

	batches := chunk(entities, ix.cfg.BatchSize)
	report.Batches = len(batches)
	results := make([]batchResult, len(batches))
	dispatched := 0

	g := new(errgroup.Group)
	g.SetLimit(ix.cfg.Workers)
	for i, batch := range batches {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		dispatched++
		g.Go(func() error {
			results[i] = ix.runBatch(ctx, t, i, batch)
			return nil
		})
	}
	g.Wait()

	// Entities in batches never dispatched are neither indexed nor failed.
	staged := 0
	for i := 0; i < dispatched; i++ {
		r := results[i]
		if !r.ok {
			report.FailedBatches++
			report.Failed += len(batches[i])
			report.Errors = append(report.Errors, r.err)
			continue
		}
		staged += len(batches[i])
		report.Dangling = append(report.Dangling, r.dangling...)
	}
	sort.Slice(report.Dangling, func(i, j int) bool { return report.Dangling[i].ID < report.Dangling[j].ID })

	if staged > 0 {
		if err := ix.commit(ctx); err != nil {
			report.Elapsed = time.Since(start)
			return report, &types.IndexCommitError{Type: t, Staged: staged, Err: err}
		}
	}
	report.Indexed = staged
	report.Elapsed = time.Since(start)

	if observe != nil {
		for i := 0; i < dispatched; i++ {
			if !results[i].ok {
				continue
			}
			for _, e := range batches[i] {
				observe(e)
			}
		}
	}

	ix.log.Info().
		Str("type", string(t)).
		Int("indexed", report.Indexed).
		Int("failed", report.Failed).
		Int("dangling", len(report.Dangling)).
		Dur("elapsed", report.Elapsed).
		Msg("indexing pass committed")

	if report.Cancelled {
		return report, ctx.Err()
	}
	return report, nil
}

// runBatch resolves parent references and upserts one batch. It runs on a
// context detached from cancellation so a dispatched batch always
// completes or fails on its own terms.
func (ix *Indexer) runBatch(ctx context.Context, t types.EntityType, n int, batch []types.Entity) batchResult {
	ctx = context.WithoutCancel(ctx)
	log := ix.log.With().Str("type", string(t)).Int("batch", n).Logger()

	var res batchResult
	err := ix.retry(ctx, log, func(ctx context.Context) error {
		docs, dangling, err := ix.documents(ctx, t, batch)
		if err != nil {
			return fmt.Errorf("resolving parents: %w", err)
		}
		if err := ix.engine.Upsert(ctx, docs); err != nil {
			return err
		}
		res.dangling = dangling
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int("documents", len(batch)).Msg("batch failed")
		res.err = fmt.Errorf("%s batch %d (%d documents): %w", t, n, len(batch), err)
		return res
	}
	log.Debug().Int("documents", len(batch)).Msg("batch staged")
	res.ok = true
	return res
}

// documents projects the batch and sets each document's has_valid_parent
// flag from one bulk lookup against the parent type. Entities themselves
// are never modified.
func (ix *Indexer) documents(ctx context.Context, t types.EntityType, batch []types.Entity) ([]types.IndexDocument, []Dangling, error) {
	docs := make([]types.IndexDocument, len(batch))
	for i, e := range batch {
		docs[i] = e.Document()
	}
	parent := t.Parent()
	if parent == "" {
		return docs, nil, nil
	}

	var refs []string
	seen := make(map[string]bool)
	for _, e := range batch {
		if p := e.ParentID(); p != "" && !seen[p] {
			seen[p] = true
			refs = append(refs, p)
		}
	}
	exists, err := index.ExistingIDs(ctx, ix.engine, parent, refs)
	if err != nil {
		return nil, nil, err
	}

	var dangling []Dangling
	flag := types.FieldName(t, "has_valid_parent")
	for i, e := range batch {
		p := e.ParentID()
		docs[i].Fields[flag] = p != "" && exists[p]
		if p != "" && !exists[p] {
			dangling = append(dangling, Dangling{ID: e.Identifier(), ParentID: p})
		}
	}
	return docs, dangling, nil
}

func (ix *Indexer) commit(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	log := ix.log.With().Str("op", "commit").Logger()
	return ix.retry(ctx, log, ix.engine.Commit)
}

// retry runs fn with exponential backoff, bounding each attempt by the
// request timeout.
func (ix *Indexer) retry(ctx context.Context, log zerolog.Logger, fn func(context.Context) error) error {
	return retry.Do(
		func() error {
			actx, cancel := context.WithTimeout(ctx, ix.cfg.RequestTimeout)
			defer cancel()
			err := fn(actx)
			if errors.Is(err, index.ErrNotFound) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(ix.cfg.MaxRetries)+1),
		retry.Delay(ix.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Msg("retrying")
		}),
	)
}

func chunk(entities []types.Entity, size int) [][]types.Entity {
	var out [][]types.Entity
	for size < len(entities) {
		entities, out = entities[size:], append(out, entities[:size:size])
	}
	if len(entities) > 0 {
		out = append(out, entities)
	}
	return out
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extend computes cross-entity derived fields over committed
// documents and writes them back as partial updates. It is a separate pass
// from indexing: a project's dataset count can only be computed once the
// datasets are committed.
package extend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/datacatalog/internal/index"
	"github.com/pdiddy/datacatalog/pkg/types"
)

// Defaults applied when the corresponding ExtensionConfig field is not set.
const (
	DefaultWorkers  = 4
	DefaultPageSize = 500
)

// Report summarizes one extension pass.
type Report struct {
	Type     types.EntityType `json:"type" yaml:"type"`
	Read     int              `json:"read" yaml:"read"`
	Enriched int              `json:"enriched" yaml:"enriched"`
	Failed   int              `json:"failed" yaml:"failed"`

	// Errors holds one *types.EnrichmentError per failed entity, ordered
	// by identifier.
	Errors []error `json:"-" yaml:"-"`

	Cancelled bool          `json:"cancelled" yaml:"cancelled"`
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Extender runs extension passes against one engine.
type Extender struct {
	engine index.Engine
	cfg    types.ExtensionConfig
	log    zerolog.Logger

	// studyOf caches project ID → study ID lookups within a dataset pass.
	mu      sync.Mutex
	studyOf map[string]string
}

// New returns an Extender, filling unset configuration with defaults.
func New(engine index.Engine, cfg types.ExtensionConfig, log zerolog.Logger) *Extender {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &Extender{engine: engine, cfg: cfg, log: log}
}

// Extend reads back every committed document of type t, computes its
// derived fields, patches them in, and commits once at the end. A failure
// on one entity is recorded in the report and does not stop the others. A
// failed read of the type's documents or a failed commit is returned as an
// error.
func (x *Extender) Extend(ctx context.Context, t types.EntityType) (Report, error) {
	start := time.Now()
	report := Report{Type: t}
	derive, ok := x.deriver(t)
	if !ok {
		return report, fmt.Errorf("no derived fields for entity type %q", t)
	}
	x.mu.Lock()
	x.studyOf = make(map[string]string)
	x.mu.Unlock()

	var (
		mu       sync.Mutex
		failures []*types.EnrichmentError
		enriched int
	)
	fail := func(id string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failures = append(failures, &types.EnrichmentError{Type: t, ID: id, Err: err})
	}

	g := new(errgroup.Group)
	g.SetLimit(x.cfg.Workers)
	var readErr error
	for doc, err := range index.All(ctx, x.engine, index.Query{Type: t, Limit: x.cfg.PageSize}) {
		if err != nil {
			readErr = err
			break
		}
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		report.Read++
		g.Go(func() error {
			// A dispatched entity always finishes its own update.
			ectx := context.WithoutCancel(ctx)
			fields, err := derive(ectx, doc)
			if err != nil {
				fail(doc.ID, err)
				return nil
			}
			if err := x.engine.Patch(ectx, t, doc.ID, fields); err != nil {
				fail(doc.ID, err)
				return nil
			}
			mu.Lock()
			enriched++
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if readErr != nil && errors.Is(readErr, ctx.Err()) {
		report.Cancelled = true
		readErr = nil
	}

	sort.Slice(failures, func(i, j int) bool { return failures[i].ID < failures[j].ID })
	for _, f := range failures {
		report.Errors = append(report.Errors, f)
		x.log.Warn().Err(f.Err).Str("type", string(t)).Str("id", f.ID).Msg("enrichment failed")
	}
	report.Failed = len(failures)

	if enriched > 0 {
		if err := x.engine.Commit(context.WithoutCancel(ctx)); err != nil {
			report.Elapsed = time.Since(start)
			return report, &types.IndexCommitError{Type: t, Staged: enriched, Err: err}
		}
	}
	report.Enriched = enriched
	report.Elapsed = time.Since(start)

	x.log.Info().
		Str("type", string(t)).
		Int("read", report.Read).
		Int("enriched", report.Enriched).
		Int("failed", report.Failed).
		Dur("elapsed", report.Elapsed).
		Msg("extension pass committed")

	if readErr != nil {
		return report, fmt.Errorf("reading %s documents: %w", t, readErr)
	}
	if report.Cancelled {
		return report, ctx.Err()
	}
	return report, nil
}

type deriveFunc func(context.Context, types.IndexDocument) (map[string]any, error)

func (x *Extender) deriver(t types.EntityType) (deriveFunc, bool) {
	switch t {
	case types.StudyType:
		return x.deriveStudy, true
	case types.ProjectType:
		return x.deriveProject, true
	case types.DatasetType:
		return x.deriveDataset, true
	}
	return nil, false
}

// datasetsOf counts the datasets whose parent is project and collects
// their distinct data types.
func (x *Extender) datasetsOf(ctx context.Context, project string) (int, []string, error) {
	dataTypes := types.FieldName(types.DatasetType, "data_types")
	page, err := x.engine.Query(ctx, index.Query{
		Type:    types.DatasetType,
		Filters: []index.Filter{index.Eq(types.FieldName(types.DatasetType, "project_id"), project)},
		Limit:   1,
		Facets:  []string{dataTypes},
	})
	if err != nil {
		return 0, nil, fmt.Errorf("querying datasets of project %s: %w", project, err)
	}
	values := make([]string, 0, len(page.Facets[dataTypes]))
	for _, b := range page.Facets[dataTypes] {
		values = append(values, b.Value)
	}
	return page.Total, values, nil
}

func (x *Extender) deriveProject(ctx context.Context, doc types.IndexDocument) (map[string]any, error) {
	n, dataTypes, err := x.datasetsOf(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	sort.Strings(dataTypes)
	return map[string]any{
		types.FieldName(types.ProjectType, "dataset_count"): int64(n),
		types.FieldName(types.ProjectType, "data_types"):    dataTypes,
	}, nil
}

func (x *Extender) deriveStudy(ctx context.Context, doc types.IndexDocument) (map[string]any, error) {
	projects := index.Query{
		Type:    types.ProjectType,
		Filters: []index.Filter{index.Eq(types.FieldName(types.ProjectType, "study_id"), doc.ID)},
		Limit:   x.cfg.PageSize,
	}
	var (
		projectCount, datasetCount int
		dataTypes                  = make(map[string]bool)
	)
	for p, err := range index.All(ctx, x.engine, projects) {
		if err != nil {
			return nil, fmt.Errorf("querying projects of study %s: %w", doc.ID, err)
		}
		projectCount++
		n, values, err := x.datasetsOf(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		datasetCount += n
		for _, v := range values {
			dataTypes[v] = true
		}
	}
	sorted := make([]string, 0, len(dataTypes))
	for v := range dataTypes {
		sorted = append(sorted, v)
	}
	sort.Strings(sorted)
	return map[string]any{
		types.FieldName(types.StudyType, "project_count"): int64(projectCount),
		types.FieldName(types.StudyType, "dataset_count"): int64(datasetCount),
		types.FieldName(types.StudyType, "data_types"):    sorted,
	}, nil
}

// deriveDataset resolves the dataset's study through its parent project.
// Datasets without a committed parent get an empty study ID.
func (x *Extender) deriveDataset(ctx context.Context, doc types.IndexDocument) (map[string]any, error) {
	study, err := x.studyOfProject(ctx, doc.String(types.FieldName(types.DatasetType, "project_id")))
	if err != nil {
		return nil, err
	}
	return map[string]any{types.FieldName(types.DatasetType, "study_id"): study}, nil
}

func (x *Extender) studyOfProject(ctx context.Context, project string) (string, error) {
	if project == "" {
		return "", nil
	}
	x.mu.Lock()
	study, ok := x.studyOf[project]
	x.mu.Unlock()
	if ok {
		return study, nil
	}

	doc, err := index.Get(ctx, x.engine, types.ProjectType, project)
	switch {
	case errors.Is(err, index.ErrNotFound):
		study = ""
	case err != nil:
		return "", fmt.Errorf("looking up project %s: %w", project, err)
	default:
		study = doc.String(types.FieldName(types.ProjectType, "study_id"))
	}

	x.mu.Lock()
	x.studyOf[project] = study
	x.mu.Unlock()
	return study, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package schema reconciles the search index's field declarations with the
// fields the catalog's entity types need. It only ever adds fields.
package schema

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pdiddy/datacatalog/internal/index"
	"github.com/pdiddy/datacatalog/pkg/types"
)

// EnsureResult reports what EnsureSchema changed.
type EnsureResult struct {
	// Added lists fields declared by this call.
	Added []string

	// Present counts required fields that already existed.
	Present int
}

// Manager ensures an engine's schema.
type Manager struct {
	engine index.Engine
	log    zerolog.Logger
}

// New returns a Manager for engine.
func New(engine index.Engine, log zerolog.Logger) *Manager {
	return &Manager{engine: engine, log: log}
}

// Required returns every field the catalog needs, across all entity types:
// descriptor fields, the has_valid_parent flags, and derived fields.
func Required() []types.FieldDef {
	return types.FullSchema()
}

// EnsureSchema adds missing required fields and leaves matching ones
// alone, so it is a no-op on an up-to-date index. An existing field whose
// type or multi-valuedness differs is reported as
// *types.UnsupportedSchemaChangeError before anything is added. Extra
// fields in the index are ignored.
func (m *Manager) EnsureSchema(ctx context.Context) (EnsureResult, error) {
	existing, err := m.engine.Fields(ctx)
	if err != nil {
		return EnsureResult{}, fmt.Errorf("reading index fields: %w", err)
	}
	byName := make(map[string]types.FieldDef, len(existing))
	for _, f := range existing {
		byName[f.Name] = f
	}

	var result EnsureResult
	var missing []types.FieldDef
	for _, want := range Required() {
		have, ok := byName[want.Name]
		if !ok {
			missing = append(missing, want)
			continue
		}
		if have.Type != want.Type || have.MultiValued != want.MultiValued {
			return EnsureResult{}, &types.UnsupportedSchemaChangeError{
				Field: want.Name, Existing: have, Required: want,
			}
		}
		result.Present++
	}

	if len(missing) == 0 {
		m.log.Debug().Int("present", result.Present).Msg("index schema up to date")
		return result, nil
	}

	if err := m.engine.AddFields(ctx, missing); err != nil {
		return EnsureResult{}, fmt.Errorf("adding %d fields: %w", len(missing), err)
	}
	for _, f := range missing {
		result.Added = append(result.Added, f.Name)
	}
	m.log.Info().
		Str("backend", m.engine.Name()).
		Int("added", len(result.Added)).
		Int("present", result.Present).
		Msg("index schema updated")
	return result, nil
}

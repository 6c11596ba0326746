// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// migration is one forward schema step.
type migration struct {
	Version string
	Up      []string
}

// migrations are applied in order; each runs at most once per database.
var migrations = []migration{
	{
		Version: "1.0.0",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS schema_version (
				version TEXT PRIMARY KEY,
				applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS fields (
				name TEXT PRIMARY KEY,
				type TEXT NOT NULL,
				multi_valued INTEGER NOT NULL DEFAULT 0,
				text INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS documents (
				rowid INTEGER PRIMARY KEY AUTOINCREMENT,
				doc_key TEXT NOT NULL UNIQUE,
				entity_type TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				body TEXT NOT NULL,
				text TEXT NOT NULL DEFAULT '',
				fuzzy TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(entity_type, entity_id)`,
			`CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
				text, fuzzy, content=documents, content_rowid=rowid
			)`,
			`CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
				INSERT INTO documents_fts(rowid, text, fuzzy) VALUES (new.rowid, new.text, new.fuzzy);
			END`,
			`CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
				INSERT INTO documents_fts(documents_fts, rowid, text, fuzzy) VALUES ('delete', old.rowid, old.text, old.fuzzy);
			END`,
			`CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE ON documents BEGIN
				INSERT INTO documents_fts(documents_fts, rowid, text, fuzzy) VALUES ('delete', old.rowid, old.text, old.fuzzy);
				INSERT INTO documents_fts(rowid, text, fuzzy) VALUES (new.rowid, new.text, new.fuzzy);
			END`,
		},
	},
	{
		// Staged writes, applied by Commit.
		Version: "1.1.0",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS pending_ops (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				op TEXT NOT NULL,
				doc_key TEXT NOT NULL,
				entity_type TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				body TEXT NOT NULL,
				text TEXT NOT NULL DEFAULT '',
				fuzzy TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_pending_key ON pending_ops(doc_key)`,
		},
	},
}

// SchemaVersion is the version of the newest migration.
func SchemaVersion() string { return migrations[len(migrations)-1].Version }

// currentVersion returns the highest applied migration, or 0.0.0 on a
// fresh database.
func currentVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	var name string
	err := db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'`,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("checking schema_version table: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_version`)
	if err != nil {
		return nil, fmt.Errorf("reading schema_version: %w", err)
	}
	defer rows.Close()

	current := semver.MustParse("0.0.0")
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scanning schema_version: %w", err)
		}
		v, err := semver.NewVersion(s)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", s, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, rows.Err()
}

// applyMigrations runs every migration newer than the database's version.
// Each migration and its version record commit in one transaction.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", m.Version, err)
		}
		if !current.LessThan(v) {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", m.Version, err)
		}
		for _, stmt := range m.Up {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("applying migration %s: %w", m.Version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", m.Version, err)
		}
		current = v
	}
	return nil
}

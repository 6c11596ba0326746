// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sqlite implements index.Engine on a local SQLite database.
// Committed documents are stored as JSON bodies with an FTS5 content table
// over their full-text and stemmed text. Upserts and patches are staged in
// a pending table until Commit applies them in one transaction.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/datacatalog/internal/index"
	"github.com/pdiddy/datacatalog/pkg/types"
)

// DBFile is the database file name inside the index directory.
const DBFile = "catalog.db"

const (
	opUpsert = "upsert"
	opPatch  = "patch"
)

// Store is a SQLite-backed search index.
type Store struct {
	db  *sql.DB
	dir string

	mu     sync.RWMutex
	fields map[string]types.FieldDef
}

var _ index.Engine = (*Store)(nil)

// Open opens or creates the index database at dir/catalog.db and applies
// pending migrations.
func Open(ctx context.Context, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := openDatabase(ctx, filepath.Join(dir, DBFile))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	s := &Store{db: db, dir: dir}
	if err := s.loadFields(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func openDatabase(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, err
	}

	// One connection serializes writers and keeps per-connection pragmas.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

func (s *Store) Name() string { return "sqlite" }

// Dir returns the index directory.
func (s *Store) Dir() string { return s.dir }

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) loadFields(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name, type, multi_valued, text FROM fields ORDER BY name`)
	if err != nil {
		return fmt.Errorf("reading fields: %w", err)
	}
	defer rows.Close()

	fields := make(map[string]types.FieldDef)
	for rows.Next() {
		var f types.FieldDef
		var typ string
		if err := rows.Scan(&f.Name, &typ, &f.MultiValued, &f.Text); err != nil {
			return fmt.Errorf("scanning field: %w", err)
		}
		f.Type = types.FieldType(typ)
		fields[f.Name] = f
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading fields: %w", err)
	}

	s.mu.Lock()
	s.fields = fields
	s.mu.Unlock()
	return nil
}

// field returns the declared definition of name, falling back to the
// catalog's built-in schema for undeclared fields.
func (s *Store) field(name string) (types.FieldDef, bool) {
	s.mu.RLock()
	f, ok := s.fields[name]
	s.mu.RUnlock()
	if ok {
		return f, true
	}
	return types.LookupField(name)
}

func (s *Store) Fields(_ context.Context) ([]types.FieldDef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.FieldDef, 0, len(s.fields))
	for _, f := range s.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) AddFields(ctx context.Context, fields []types.FieldDef) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, f := range fields {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO fields (name, type, multi_valued, text) VALUES (?, ?, ?, ?)`,
			f.Name, string(f.Type), f.MultiValued, f.Text,
		)
		if err != nil {
			return fmt.Errorf("adding field %s: %w", f.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing fields: %w", err)
	}
	return s.loadFields(ctx)
}

func (s *Store) Upsert(ctx context.Context, docs []types.IndexDocument) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO pending_ops (op, doc_key, entity_type, entity_id, body, text, fuzzy)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		encoded := encodeFields(d.Fields)
		body, err := json.Marshal(encoded)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", d.Key(), err)
		}
		text := s.textOf(encoded)
		_, err = stmt.ExecContext(ctx, opUpsert, d.Key(), string(d.Type), d.ID, string(body), text, stems(text))
		if err != nil {
			return fmt.Errorf("staging %s: %w", d.Key(), err)
		}
	}
	return tx.Commit()
}

func (s *Store) Patch(ctx context.Context, t types.EntityType, id string, fields map[string]any) error {
	key := types.DocumentKey(t, id)

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE doc_key = ?)
		     OR EXISTS (SELECT 1 FROM pending_ops WHERE doc_key = ? AND op = ?)`,
		key, key, opUpsert,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking %s: %w", key, err)
	}
	if !exists {
		return index.ErrNotFound
	}

	body, err := json.Marshal(encodeFields(fields))
	if err != nil {
		return fmt.Errorf("encoding patch for %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_ops (op, doc_key, entity_type, entity_id, body) VALUES (?, ?, ?, ?, ?)`,
		opPatch, key, string(t), id, string(body),
	)
	if err != nil {
		return fmt.Errorf("staging patch for %s: %w", key, err)
	}
	return nil
}

type pendingOp struct {
	op, key, entityType, entityID string
	body, text, fuzzy             string
}

// Commit applies staged writes in order inside one transaction. Either
// every staged write becomes visible or none does.
func (s *Store) Commit(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ops, err := readPending(ctx, tx)
	if err != nil {
		return err
	}

	for _, op := range ops {
		switch op.op {
		case opUpsert:
			_, err = tx.ExecContext(ctx,
				`INSERT INTO documents (doc_key, entity_type, entity_id, body, text, fuzzy)
				 VALUES (?, ?, ?, ?, ?, ?)
				 ON CONFLICT(doc_key) DO UPDATE SET
					body=excluded.body, text=excluded.text, fuzzy=excluded.fuzzy`,
				op.key, op.entityType, op.entityID, op.body, op.text, op.fuzzy,
			)
		case opPatch:
			err = s.applyPatch(ctx, tx, op)
		default:
			err = fmt.Errorf("unknown op %q", op.op)
		}
		if err != nil {
			return fmt.Errorf("applying %s %s: %w", op.op, op.key, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_ops`); err != nil {
		return fmt.Errorf("clearing pending ops: %w", err)
	}
	return tx.Commit()
}

func readPending(ctx context.Context, tx *sql.Tx) ([]pendingOp, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT op, doc_key, entity_type, entity_id, body, text, fuzzy FROM pending_ops ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("reading pending ops: %w", err)
	}
	defer rows.Close()

	var ops []pendingOp
	for rows.Next() {
		var op pendingOp
		if err := rows.Scan(&op.op, &op.key, &op.entityType, &op.entityID, &op.body, &op.text, &op.fuzzy); err != nil {
			return nil, fmt.Errorf("scanning pending op: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func (s *Store) applyPatch(ctx context.Context, tx *sql.Tx, op pendingOp) error {
	var body string
	err := tx.QueryRowContext(ctx, `SELECT body FROM documents WHERE doc_key = ?`, op.key).Scan(&body)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	merged, err := decodeRaw(body)
	if err != nil {
		return err
	}
	patch, err := decodeRaw(op.body)
	if err != nil {
		return err
	}
	for k, v := range patch {
		merged[k] = v
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	text := s.textOf(merged)
	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET body = ?, text = ?, fuzzy = ? WHERE doc_key = ?`,
		string(data), text, stems(text), op.key,
	)
	return err
}

// Reset removes every document and staged write.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM pending_ops`, `DELETE FROM documents`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("resetting index: %w", err)
		}
	}
	return tx.Commit()
}

// textOf concatenates the values of every Text field in an encoded body.
func (s *Store) textOf(encoded map[string]any) string {
	names := make([]string, 0, len(encoded))
	for name := range encoded {
		if f, ok := s.field(name); ok && f.Text {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		switch v := encoded[name].(type) {
		case string:
			parts = append(parts, v)
		case []string:
			parts = append(parts, v...)
		case []any:
			for _, e := range v {
				if str, ok := e.(string); ok {
					parts = append(parts, str)
				}
			}
		}
	}
	return strings.Join(parts, "\n")
}

const dateLayout = time.RFC3339

// encodeFields converts field values to their JSON storage form. Dates are
// stored as UTC RFC 3339 strings so they compare lexically.
func encodeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(dateLayout)
		}
		out[k] = v
	}
	return out
}

func decodeRaw(body string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding document body: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// decodeFields converts a stored body back to typed field values using
// the field definitions.
func (s *Store) decodeFields(body string) (map[string]any, error) {
	raw, err := decodeRaw(body)
	if err != nil {
		return nil, err
	}
	for name, v := range raw {
		f, ok := s.field(name)
		if !ok {
			continue
		}
		raw[name] = f.Coerce(v)
	}
	return raw, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// MalformedDescriptorError reports a descriptor file that could not be
// parsed as structured data. It is recoverable: the record is skipped.
type MalformedDescriptorError struct {
	Path string
	Err  error
}

func (e *MalformedDescriptorError) Error() string {
	return fmt.Sprintf("malformed descriptor %s: %v", e.Path, e.Err)
}

func (e *MalformedDescriptorError) Unwrap() error { return e.Err }

// ValidationError reports a descriptor missing a required field or
// carrying an invalid one.
type ValidationError struct {
	Type   EntityType
	Path   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "required field is missing"
	}
	return fmt.Sprintf("invalid %s descriptor %s: %s: %s", e.Type, e.Path, e.Field, reason)
}

// IngestionAbortedError ends a strict-mode run at the first per-record
// failure.
type IngestionAbortedError struct {
	Type  EntityType
	Cause error
}

func (e *IngestionAbortedError) Error() string {
	return fmt.Sprintf("%s ingestion aborted (strict mode): %v", e.Type, e.Cause)
}

func (e *IngestionAbortedError) Unwrap() error { return e.Cause }

// UnsupportedSchemaChangeError reports an existing index field whose
// definition conflicts with the required one. Narrowing or retyping a
// field is never attempted.
type UnsupportedSchemaChangeError struct {
	Field    string
	Existing FieldDef
	Required FieldDef
}

func (e *UnsupportedSchemaChangeError) Error() string {
	return fmt.Sprintf("unsupported schema change for field %s: index has type=%s multi_valued=%t, need type=%s multi_valued=%t",
		e.Field, e.Existing.Type, e.Existing.MultiValued, e.Required.Type, e.Required.MultiValued)
}

// IndexCommitError is fatal for one entity type's pass. Documents committed
// by earlier passes stay visible.
type IndexCommitError struct {
	Type EntityType

	// Staged is the number of documents written in this pass that did not
	// become visible.
	Staged int

	Err error
}

func (e *IndexCommitError) Error() string {
	return fmt.Sprintf("commit failed for %s pass (%d staged documents not visible): %v", e.Type, e.Staged, e.Err)
}

func (e *IndexCommitError) Unwrap() error { return e.Err }

// EnrichmentError isolates a failure to compute or write derived fields for
// one entity.
type EnrichmentError struct {
	Type EntityType
	ID   string
	Err  error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enriching %s %s: %v", e.Type, e.ID, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FieldType names an index field type. The names follow Solr's default
// configset so the same definitions work against either backend.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldText   FieldType = "text_en"
	FieldInt    FieldType = "plong"
	FieldDate   FieldType = "pdate"
	FieldBool   FieldType = "boolean"
)

// Reserved field names present on every document.
const (
	KeyField  = "id"
	TypeField = "type"
)

// FieldDef declares one index field.
type FieldDef struct {
	// Name is the qualified field name, e.g. "project_title".
	Name string `json:"name" yaml:"name"`

	Type FieldType `json:"type" yaml:"type"`

	MultiValued bool `json:"multi_valued" yaml:"multi_valued"`

	// Text marks fields copied into the entity's full-text fields.
	Text bool `json:"text,omitempty" yaml:"text,omitempty"`
}

// Coerce converts a decoded wire value (JSON numbers, date strings,
// generic lists) to the Go type documents carry for this field: int64,
// time.Time, or []string. Values that do not convert are returned as is.
func (f FieldDef) Coerce(v any) any {
	if f.MultiValued {
		list, ok := v.([]any)
		if !ok {
			if s, isStr := v.(string); isStr && (f.Type == FieldString || f.Type == FieldText) {
				return []string{s}
			}
			return v
		}
		if f.Type != FieldString && f.Type != FieldText {
			return v
		}
		out := make([]string, 0, len(list))
		for _, e := range list {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	switch f.Type {
	case FieldInt:
		if n, ok := AsInt(v); ok {
			return n
		}
	case FieldDate:
		if s, ok := v.(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t.UTC()
			}
		}
	}
	return v
}

// IndexDocument is the search-engine projection of an entity.
type IndexDocument struct {
	Type EntityType `json:"type" yaml:"type"`
	ID   string     `json:"id" yaml:"id"`

	// Fields maps qualified field names to values: string, []string,
	// int64, bool, or time.Time.
	Fields map[string]any `json:"fields" yaml:"fields"`
}

// DocumentKey returns the index key for an entity: "<type>_<id>".
func DocumentKey(t EntityType, id string) string {
	return string(t) + "_" + id
}

// SplitDocumentKey reverses DocumentKey.
func SplitDocumentKey(key string) (EntityType, string, bool) {
	for _, t := range EntityTypes {
		prefix := string(t) + "_"
		if strings.HasPrefix(key, prefix) {
			return t, key[len(prefix):], true
		}
	}
	return "", "", false
}

// Key returns the document's index key.
func (d IndexDocument) Key() string { return DocumentKey(d.Type, d.ID) }

// FieldName qualifies a bare field name with the entity type prefix.
func FieldName(t EntityType, name string) string {
	return string(t) + "_" + name
}

// TextFieldName is the per-type full-text field fed from Text fields.
func TextFieldName(t EntityType) string { return string(t) + "_text_" }

// FuzzyFieldName is the per-type stemmed full-text field.
func FuzzyFieldName(t EntityType) string { return string(t) + "_textfuzzy_" }

func newDocument(t EntityType, id string, fields map[string]any) IndexDocument {
	qualified := make(map[string]any, len(fields))
	for name, v := range fields {
		qualified[FieldName(t, name)] = v
	}
	return IndexDocument{Type: t, ID: id, Fields: qualified}
}

// String returns a single-valued string field, or "".
func (d IndexDocument) String(field string) string {
	switch v := d.Fields[field].(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// Strings returns a multi-valued string field.
func (d IndexDocument) Strings(field string) []string {
	switch v := d.Fields[field].(type) {
	case []string:
		return v
	case string:
		if v != "" {
			return []string{v}
		}
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Int returns an integer field, accepting the numeric shapes decoders
// produce.
func (d IndexDocument) Int(field string) (int64, bool) {
	return AsInt(d.Fields[field])
}

// Bool returns a boolean field.
func (d IndexDocument) Bool(field string) bool {
	b, _ := d.Fields[field].(bool)
	return b
}

// Time returns a date field.
func (d IndexDocument) Time(field string) time.Time {
	switch v := d.Fields[field].(type) {
	case time.Time:
		return v
	case string:
		t, _ := time.Parse(time.RFC3339Nano, v)
		return t
	}
	return time.Time{}
}

// AsInt converts decoded numeric values to int64.
func AsInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), n == float64(int64(n))
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

var baseFields = map[EntityType][]FieldDef{
	StudyType: {
		{Name: "title", Type: FieldText, Text: true},
		{Name: "description", Type: FieldText, Text: true},
		{Name: "contacts", Type: FieldString, MultiValued: true, Text: true},
		{Name: "organizations", Type: FieldString, MultiValued: true},
		{Name: "project_ids", Type: FieldString, MultiValued: true},
		{Name: "keywords", Type: FieldString, MultiValued: true, Text: true},
		{Name: "modified", Type: FieldDate},
		{Name: "source", Type: FieldString},
	},
	ProjectType: {
		{Name: "title", Type: FieldText, Text: true},
		{Name: "description", Type: FieldText, Text: true},
		{Name: "study_id", Type: FieldString},
		{Name: "dataset_ids", Type: FieldString, MultiValued: true},
		{Name: "keywords", Type: FieldString, MultiValued: true, Text: true},
		{Name: "funding", Type: FieldString, MultiValued: true},
		{Name: "modified", Type: FieldDate},
		{Name: "source", Type: FieldString},
		{Name: "has_valid_parent", Type: FieldBool},
	},
	DatasetType: {
		{Name: "title", Type: FieldText, Text: true},
		{Name: "description", Type: FieldText, Text: true},
		{Name: "data_types", Type: FieldString, MultiValued: true, Text: true},
		{Name: "access_conditions", Type: FieldString},
		{Name: "project_id", Type: FieldString},
		{Name: "formats", Type: FieldString, MultiValued: true},
		{Name: "access_urls", Type: FieldString, MultiValued: true},
		{Name: "licenses", Type: FieldString, MultiValued: true},
		{Name: "total_bytes", Type: FieldInt},
		{Name: "keywords", Type: FieldString, MultiValued: true, Text: true},
		{Name: "modified", Type: FieldDate},
		{Name: "source", Type: FieldString},
		{Name: "has_valid_parent", Type: FieldBool},
	},
}

var derivedFields = map[EntityType][]FieldDef{
	StudyType: qualify(StudyType, []FieldDef{
		{Name: "project_count", Type: FieldInt},
		{Name: "dataset_count", Type: FieldInt},
		{Name: "data_types", Type: FieldString, MultiValued: true},
	}),
	ProjectType: qualify(ProjectType, []FieldDef{
		{Name: "dataset_count", Type: FieldInt},
		{Name: "data_types", Type: FieldString, MultiValued: true},
	}),
	DatasetType: qualify(DatasetType, []FieldDef{
		{Name: "study_id", Type: FieldString},
	}),
}

func qualify(t EntityType, defs []FieldDef) []FieldDef {
	out := make([]FieldDef, len(defs))
	for i, d := range defs {
		d.Name = FieldName(t, d.Name)
		out[i] = d
	}
	return out
}

// Schema returns every field an entity type needs: descriptor-sourced
// fields, index-time flags, and derived fields, sorted by name. The
// reserved id and type fields are not included.
func Schema(t EntityType) []FieldDef {
	fields := append(qualify(t, baseFields[t]), derivedFields[t]...)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return fields
}

// FullSchema returns Schema for every entity type.
func FullSchema() []FieldDef {
	var all []FieldDef
	for _, t := range EntityTypes {
		all = append(all, Schema(t)...)
	}
	return all
}

// LookupField finds a field definition by qualified name.
func LookupField(name string) (FieldDef, bool) {
	for _, f := range FullSchema() {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

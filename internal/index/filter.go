// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/datacatalog/pkg/types"
)

// QualifyField returns the qualified name of a field of type t, accepting
// either "title" or "study_title". Unknown fields are an error.
func QualifyField(t types.EntityType, name string) (types.FieldDef, error) {
	if !strings.HasPrefix(name, string(t)+"_") {
		name = types.FieldName(t, name)
	}
	f, ok := types.LookupField(name)
	if !ok {
		return types.FieldDef{}, fmt.Errorf("unknown %s field %q", t, name)
	}
	return f, nil
}

// ParseFilter parses "field=value", "field>=value" or "field<=value" for
// entity type t, converting value to the field's type.
func ParseFilter(t types.EntityType, expr string) (Filter, error) {
	var name, raw string
	var op Op
	switch {
	case strings.Contains(expr, ">="):
		name, raw, _ = strings.Cut(expr, ">=")
		op = OpGTE
	case strings.Contains(expr, "<="):
		name, raw, _ = strings.Cut(expr, "<=")
		op = OpLTE
	case strings.Contains(expr, "="):
		name, raw, _ = strings.Cut(expr, "=")
		op = OpEq
	default:
		return Filter{}, fmt.Errorf("filter %q: want field=value, field>=value or field<=value", expr)
	}
	return NewFilter(t, strings.TrimSpace(name), op, strings.TrimSpace(raw))
}

// NewFilter builds a filter on field name of type t from a string value.
func NewFilter(t types.EntityType, name string, op Op, raw string) (Filter, error) {
	f, err := QualifyField(t, name)
	if err != nil {
		return Filter{}, err
	}
	v, err := parseValue(f, raw)
	if err != nil {
		return Filter{}, fmt.Errorf("filter on %s: %w", f.Name, err)
	}
	return Filter{Field: f.Name, Op: op, Value: v}, nil
}

func parseValue(f types.FieldDef, raw string) (any, error) {
	switch f.Type {
	case types.FieldInt:
		return strconv.ParseInt(raw, 10, 64)
	case types.FieldBool:
		return strconv.ParseBool(raw)
	case types.FieldDate:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts.UTC(), nil
			}
		}
		return nil, fmt.Errorf("%q is not a date (want RFC 3339 or YYYY-MM-DD)", raw)
	}
	return raw, nil
}

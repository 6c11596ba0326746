// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize maps raw descriptor records onto canonical catalog
// entities. It accepts both flat descriptors and DATS-style nesting
// (identifier objects, typed value wrappers, dated events) and resolves
// parent references by identifier only; whether a parent exists is decided
// later, against the index.
package normalize

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/google/uuid"

	"github.com/pdiddy/datacatalog/internal/loader"
	"github.com/pdiddy/datacatalog/pkg/types"
)

// catalogNamespace seeds name-based identifiers. Changing it changes every
// derived identifier.
var catalogNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://datacatalog.local/entities"))

// DeriveID returns the identifier used for descriptors without an explicit
// one: a SHA-1 name-based UUID over the entity type and the title, lowercased
// with whitespace collapsed. The same content always yields the same ID.
func DeriveID(t types.EntityType, title string) string {
	canonical := strings.Join(strings.Fields(strings.ToLower(title)), " ")
	return uuid.NewSHA1(catalogNamespace, []byte(string(t)+"\x00"+canonical)).String()
}

// Normalizer converts RawRecords into entities. The zero value is ready
// to use.
type Normalizer struct {
	// KeepHTML disables HTML-to-markdown conversion of descriptions.
	KeepHTML bool
}

// New returns a Normalizer with default settings.
func New() *Normalizer { return &Normalizer{} }

// Normalize maps one record to one entity of the record's type. A missing
// title or an unusable identifier yields a *types.ValidationError.
func (n *Normalizer) Normalize(rec loader.RawRecord) (types.Entity, error) {
	f := fields(rec.Fields)

	title := f.scalar("title", "name")
	if title == "" {
		return nil, &types.ValidationError{Type: rec.Type, Path: rec.Path, Field: "title"}
	}

	id := f.scalar("identifier", "id")
	if id == "" {
		id = DeriveID(rec.Type, title)
	} else if strings.ContainsAny(id, " \t\n/") {
		return nil, &types.ValidationError{
			Type: rec.Type, Path: rec.Path, Field: "identifier",
			Reason: fmt.Sprintf("%q must not contain whitespace or '/'", id),
		}
	}

	description := n.description(f.scalar("description", "summary"))
	modified := f.modified()
	if modified.IsZero() {
		modified = rec.ModTime
	}
	modified = modified.UTC().Truncate(time.Second)
	keywords := f.list("keywords", "isAbout")

	switch rec.Type {
	case types.StudyType:
		return types.Study{
			ID:          id,
			Title:       title,
			Description: description,
			Contacts:    f.contacts(),
			ProjectIDs:  f.list("projects", "project_ids"),
			Keywords:    keywords,
			ModifiedAt:  modified,
			Source:      rec.Path,
		}, nil
	case types.ProjectType:
		return types.Project{
			ID:          id,
			Title:       title,
			Description: description,
			StudyID:     f.scalar("study", "study_id", "studyIdentifier"),
			DatasetIDs:  f.list("datasets", "dataset_ids"),
			Keywords:    keywords,
			Funding:     f.list("funding", "fundedBy"),
			ModifiedAt:  modified,
			Source:      rec.Path,
		}, nil
	case types.DatasetType:
		return types.Dataset{
			ID:               id,
			Title:            title,
			Description:      description,
			DataTypes:        f.list("data_types", "types"),
			AccessConditions: f.access(),
			ProjectID:        f.scalar("project", "project_id", "projectIdentifier"),
			Distributions:    f.distributions(),
			Keywords:         keywords,
			ModifiedAt:       modified,
			Source:           rec.Path,
		}, nil
	}
	return nil, &types.ValidationError{
		Type: rec.Type, Path: rec.Path, Field: "type",
		Reason: fmt.Sprintf("unsupported entity type %q", rec.Type),
	}
}

var htmlTag = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9]*(\s[^<>]*)?/?>`)

func (n *Normalizer) description(s string) string {
	s = strings.TrimSpace(s)
	if n.KeepHTML || !htmlTag.MatchString(s) {
		return s
	}
	md, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(md)
}

// fields wraps a descriptor mapping with tolerant accessors.
type fields map[string]any

// scalar returns the first non-empty scalar among keys.
func (f fields) scalar(keys ...string) string {
	for _, k := range keys {
		if s := scalarOf(f[k]); s != "" {
			return s
		}
	}
	return ""
}

// list returns the first non-empty list among keys, trimmed and
// deduplicated in first-seen order.
func (f fields) list(keys ...string) []string {
	for _, k := range keys {
		if l := listOf(f[k]); len(l) > 0 {
			return l
		}
	}
	return []string{}
}

// scalarOf flattens strings, numbers, and wrapper objects such as
// {identifier: ..}, {value: ..}, or {information: {value: ..}}.
func scalarOf(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case map[string]any:
		for _, k := range []string{"identifier", "value", "name", "title", "information"} {
			if s := scalarOf(x[k]); s != "" {
				return s
			}
		}
	case []any:
		if len(x) > 0 {
			return scalarOf(x[0])
		}
	}
	return ""
}

func listOf(v any) []string {
	var raw []string
	switch x := v.(type) {
	case []any:
		for _, e := range x {
			raw = append(raw, scalarOf(e))
		}
	case []string:
		raw = x
	case string:
		raw = strings.Split(x, ",")
	default:
		if s := scalarOf(x); s != "" {
			raw = []string{s}
		}
	}
	return dedupe(raw)
}

// dedupe trims values, drops empties, and removes repeats keeping the
// first occurrence.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func (f fields) contacts() []types.Contact {
	raw, _ := f["contacts"].([]any)
	if raw == nil {
		raw, _ = f["creators"].([]any)
	}
	seen := make(map[types.Contact]bool)
	out := make([]types.Contact, 0, len(raw))
	for _, e := range raw {
		var c types.Contact
		switch x := e.(type) {
		case string:
			c.Name = strings.TrimSpace(x)
		case map[string]any:
			m := fields(x)
			c.Name = m.scalar("name", "fullName")
			if c.Name == "" {
				c.Name = strings.TrimSpace(m.scalar("firstName") + " " + m.scalar("lastName"))
			}
			c.Email = m.scalar("email")
			c.Role = m.scalar("role", "roles")
			c.Organization = m.scalar("organization", "affiliations")
		}
		if c == (types.Contact{}) || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func (f fields) access() string {
	switch x := f["access"].(type) {
	case string:
		return strings.TrimSpace(x)
	case map[string]any:
		m := fields(x)
		if auth := m.list("authorizations"); len(auth) > 0 {
			return strings.Join(auth, ", ")
		}
		return m.scalar("type", "conditions")
	}
	return f.scalar("access_conditions", "accessConditions")
}

func (f fields) distributions() []types.Distribution {
	raw, _ := f["distributions"].([]any)
	out := make([]types.Distribution, 0, len(raw))
	for _, e := range raw {
		x, ok := e.(map[string]any)
		if !ok {
			if s := scalarOf(e); s != "" {
				out = append(out, types.Distribution{AccessURL: s})
			}
			continue
		}
		m := fields(x)
		d := types.Distribution{
			Format:  m.scalar("format", "formats"),
			License: m.scalar("license", "licenses"),
		}
		if acc, ok := m["access"].(map[string]any); ok {
			d.AccessURL = fields(acc).scalar("accessURL", "landingPage", "url")
		}
		if d.AccessURL == "" {
			d.AccessURL = m.scalar("access_url", "accessURL", "url")
		}
		d.Bytes = parseSize(m.scalar("bytes", "size"))
		out = append(out, d)
	}
	return out
}

// parseSize reads a byte count written as an integer or in exponent form
// such as 1.5e6. Anything else is zero.
func parseSize(s string) int64 {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f == float64(int64(f)) {
		return int64(f)
	}
	return 0
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func parseDate(v any) time.Time {
	if t, ok := v.(time.Time); ok {
		return t
	}
	s := scalarOf(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// modified returns the descriptor's own last-modified date: a "modified"
// field, or the latest entry of a DATS "dates" list.
func (f fields) modified() time.Time {
	if t := parseDate(f["modified"]); !t.IsZero() {
		return t
	}
	raw, _ := f["dates"].([]any)
	var dates []time.Time
	for _, e := range raw {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if t := parseDate(m["date"]); !t.IsZero() {
			dates = append(dates, t)
		}
	}
	if len(dates) == 0 {
		return time.Time{}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates[len(dates)-1]
}

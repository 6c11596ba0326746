// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types holds the catalog's canonical entities, their index
// projections, configuration, and the error taxonomy shared by all stages.
package types

import (
	"fmt"
	"strings"
	"time"
)

// EntityType discriminates the three catalog entity kinds.
type EntityType string

const (
	StudyType   EntityType = "study"
	ProjectType EntityType = "project"
	DatasetType EntityType = "dataset"
)

// EntityTypes lists every entity type in dependency order: parents are
// indexed before children.
var EntityTypes = []EntityType{StudyType, ProjectType, DatasetType}

// ParseEntityType accepts singular or plural names ("study", "studies").
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "study", "studies":
		return StudyType, nil
	case "project", "projects":
		return ProjectType, nil
	case "dataset", "datasets":
		return DatasetType, nil
	}
	return "", fmt.Errorf("unknown entity type %q: use study, project, or dataset", s)
}

// Plural returns the directory name used for descriptors of this type.
func (t EntityType) Plural() string {
	if t == StudyType {
		return "studies"
	}
	return string(t) + "s"
}

// Parent returns the type an entity of this type references, or "" for
// top-level studies.
func (t EntityType) Parent() EntityType {
	switch t {
	case ProjectType:
		return StudyType
	case DatasetType:
		return ProjectType
	}
	return ""
}

// Child returns the type whose entities reference this type, or "" for
// datasets.
func (t EntityType) Child() EntityType {
	switch t {
	case StudyType:
		return ProjectType
	case ProjectType:
		return DatasetType
	}
	return ""
}

// Entity is the capability set shared by studies, projects, and datasets.
// Implementations are values; the indexer serializes them and never
// modifies them.
type Entity interface {
	// Kind returns the entity type discriminator.
	Kind() EntityType

	// Identifier returns the stable identifier, unique within the type.
	Identifier() string

	// ParentID returns the referenced parent identifier, or "" when the
	// entity has no parent reference.
	ParentID() string

	// Modified is the last-modified time used for sitemap entries.
	Modified() time.Time

	// Document projects the entity onto its flat index representation.
	Document() IndexDocument

	// DerivedFields lists the fields computed for this kind by the
	// extension pass rather than sourced from descriptors.
	DerivedFields() []FieldDef
}

// Contact is a person or organization attached to a study.
type Contact struct {
	Name         string `json:"name" yaml:"name"`
	Email        string `json:"email,omitempty" yaml:"email,omitempty"`
	Role         string `json:"role,omitempty" yaml:"role,omitempty"`
	Organization string `json:"organization,omitempty" yaml:"organization,omitempty"`
}

// Label returns a single display string for a contact.
func (c Contact) Label() string {
	switch {
	case c.Name != "" && c.Organization != "":
		return c.Name + " (" + c.Organization + ")"
	case c.Name != "":
		return c.Name
	}
	return c.Organization
}

// Distribution describes one way to obtain a dataset's data.
type Distribution struct {
	Format    string `json:"format,omitempty" yaml:"format,omitempty"`
	AccessURL string `json:"access_url,omitempty" yaml:"access_url,omitempty"`
	Bytes     int64  `json:"bytes,omitempty" yaml:"bytes,omitempty"`
	License   string `json:"license,omitempty" yaml:"license,omitempty"`
}

// Study is a top-level research program.
type Study struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description" yaml:"description"`
	Contacts    []Contact `json:"contacts" yaml:"contacts"`
	ProjectIDs  []string  `json:"project_ids" yaml:"project_ids"`
	Keywords    []string  `json:"keywords" yaml:"keywords"`
	ModifiedAt  time.Time `json:"modified" yaml:"modified"`

	// Source is the descriptor path the study was loaded from.
	Source string `json:"source" yaml:"source"`
}

func (s Study) Kind() EntityType    { return StudyType }
func (s Study) Identifier() string  { return s.ID }
func (s Study) ParentID() string    { return "" }
func (s Study) Modified() time.Time { return s.ModifiedAt }

// Document projects the study onto its index fields.
func (s Study) Document() IndexDocument {
	contacts := make([]string, 0, len(s.Contacts))
	orgs := make([]string, 0, len(s.Contacts))
	for _, c := range s.Contacts {
		if l := c.Label(); l != "" {
			contacts = append(contacts, l)
		}
		if c.Organization != "" {
			orgs = append(orgs, c.Organization)
		}
	}
	return newDocument(StudyType, s.ID, map[string]any{
		"title":         s.Title,
		"description":   s.Description,
		"contacts":      contacts,
		"organizations": dedupe(orgs),
		"project_ids":   copyStrings(s.ProjectIDs),
		"keywords":      copyStrings(s.Keywords),
		"modified":      s.ModifiedAt.UTC(),
		"source":        s.Source,
	})
}

func (s Study) DerivedFields() []FieldDef { return derivedFields[StudyType] }

// Project is a funded research effort under a study.
type Project struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description" yaml:"description"`
	StudyID     string    `json:"study_id" yaml:"study_id"`
	DatasetIDs  []string  `json:"dataset_ids" yaml:"dataset_ids"`
	Keywords    []string  `json:"keywords" yaml:"keywords"`
	Funding     []string  `json:"funding" yaml:"funding"`
	ModifiedAt  time.Time `json:"modified" yaml:"modified"`
	Source      string    `json:"source" yaml:"source"`
}

func (p Project) Kind() EntityType    { return ProjectType }
func (p Project) Identifier() string  { return p.ID }
func (p Project) ParentID() string    { return p.StudyID }
func (p Project) Modified() time.Time { return p.ModifiedAt }

// Document projects the project onto its index fields.
func (p Project) Document() IndexDocument {
	return newDocument(ProjectType, p.ID, map[string]any{
		"title":       p.Title,
		"description": p.Description,
		"study_id":    p.StudyID,
		"dataset_ids": copyStrings(p.DatasetIDs),
		"keywords":    copyStrings(p.Keywords),
		"funding":     copyStrings(p.Funding),
		"modified":    p.ModifiedAt.UTC(),
		"source":      p.Source,
	})
}

func (p Project) DerivedFields() []FieldDef { return derivedFields[ProjectType] }

// Dataset is a concrete data resource produced by a project.
type Dataset struct {
	ID               string         `json:"id" yaml:"id"`
	Title            string         `json:"title" yaml:"title"`
	Description      string         `json:"description" yaml:"description"`
	DataTypes        []string       `json:"data_types" yaml:"data_types"`
	AccessConditions string         `json:"access_conditions" yaml:"access_conditions"`
	ProjectID        string         `json:"project_id" yaml:"project_id"`
	Distributions    []Distribution `json:"distributions" yaml:"distributions"`
	Keywords         []string       `json:"keywords" yaml:"keywords"`
	ModifiedAt       time.Time      `json:"modified" yaml:"modified"`
	Source           string         `json:"source" yaml:"source"`
}

func (d Dataset) Kind() EntityType    { return DatasetType }
func (d Dataset) Identifier() string  { return d.ID }
func (d Dataset) ParentID() string    { return d.ProjectID }
func (d Dataset) Modified() time.Time { return d.ModifiedAt }

// Document projects the dataset onto its index fields. Distributions are
// flattened into parallel format, URL, and license lists.
func (d Dataset) Document() IndexDocument {
	var formats, urls, licenses []string
	var size int64
	for _, dist := range d.Distributions {
		if dist.Format != "" {
			formats = append(formats, dist.Format)
		}
		if dist.AccessURL != "" {
			urls = append(urls, dist.AccessURL)
		}
		if dist.License != "" {
			licenses = append(licenses, dist.License)
		}
		size += dist.Bytes
	}
	return newDocument(DatasetType, d.ID, map[string]any{
		"title":             d.Title,
		"description":       d.Description,
		"data_types":        copyStrings(d.DataTypes),
		"access_conditions": d.AccessConditions,
		"project_id":        d.ProjectID,
		"formats":           dedupe(formats),
		"access_urls":       dedupe(urls),
		"licenses":          dedupe(licenses),
		"total_bytes":       size,
		"keywords":          copyStrings(d.Keywords),
		"modified":          d.ModifiedAt.UTC(),
		"source":            d.Source,
	})
}

func (d Dataset) DerivedFields() []FieldDef { return derivedFields[DatasetType] }

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package solr

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/pdiddy/datacatalog/pkg/types"
)

// Field types of the per-type catch-all fields that Text fields are
// copied into.
const (
	textFieldType  = "text_en"
	fuzzyFieldType = "text_en_splitting_tight"
)

type schemaField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	MultiValued bool   `json:"multiValued"`
}

type copyField struct {
	Source string `json:"source"`
	Dest   string `json:"dest"`
}

func (c *Client) schemaFields(ctx context.Context) ([]schemaField, error) {
	var resp struct {
		Fields []schemaField `json:"fields"`
	}
	if err := c.do(ctx, http.MethodGet, "/schema/fields", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Fields, nil
}

// internalField reports fields that belong to Solr or to the copy-field
// machinery rather than to the catalog schema.
func internalField(name string) bool {
	return strings.HasPrefix(name, "_") ||
		name == types.KeyField ||
		name == types.TypeField ||
		strings.HasSuffix(name, "_text_") ||
		strings.HasSuffix(name, "_textfuzzy_")
}

// Fields returns the catalog fields declared in the collection schema. A
// field is marked Text when it is copied into its type's text field.
func (c *Client) Fields(ctx context.Context) ([]types.FieldDef, error) {
	fields, err := c.schemaFields(ctx)
	if err != nil {
		return nil, err
	}

	var copies struct {
		CopyFields []copyField `json:"copyFields"`
	}
	if err := c.do(ctx, http.MethodGet, "/schema/copyfields", nil, nil, &copies); err != nil {
		return nil, err
	}
	textSources := make(map[string]bool)
	for _, cf := range copies.CopyFields {
		if strings.HasSuffix(cf.Dest, "_text_") {
			textSources[cf.Source] = true
		}
	}

	out := make([]types.FieldDef, 0, len(fields))
	for _, f := range fields {
		if internalField(f.Name) {
			continue
		}
		out = append(out, types.FieldDef{
			Name:        f.Name,
			Type:        types.FieldType(f.Type),
			MultiValued: f.MultiValued,
			Text:        textSources[f.Name],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// AddFields declares fields through the Schema API in one request. The
// reserved type field and the per-type catch-all text fields are created
// on first need, and Text fields get copy-field rules into both.
func (c *Client) AddFields(ctx context.Context, fields []types.FieldDef) error {
	if len(fields) == 0 {
		return nil
	}
	existing, err := c.schemaFields(ctx)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, f := range existing {
		have[f.Name] = true
	}

	var addFields, addCopies []map[string]any
	addField := func(name, typ string, multi, stored bool) {
		if have[name] {
			return
		}
		have[name] = true
		addFields = append(addFields, map[string]any{
			"name":        name,
			"type":        typ,
			"multiValued": multi,
			"indexed":     true,
			"stored":      stored,
		})
	}

	addField(types.TypeField, string(types.FieldString), false, true)
	for _, f := range fields {
		addField(f.Name, string(f.Type), f.MultiValued, true)
		if !f.Text {
			continue
		}
		et, _, ok := types.SplitDocumentKey(f.Name)
		if !ok {
			continue
		}
		addField(types.TextFieldName(et), textFieldType, true, false)
		addField(types.FuzzyFieldName(et), fuzzyFieldType, true, false)
		addCopies = append(addCopies, map[string]any{
			"source": f.Name,
			"dest":   []string{types.TextFieldName(et), types.FuzzyFieldName(et)},
		})
	}

	cmd := make(map[string]any)
	if len(addFields) > 0 {
		cmd["add-field"] = addFields
	}
	if len(addCopies) > 0 {
		cmd["add-copy-field"] = addCopies
	}
	if len(cmd) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/schema", nil, cmd, nil)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package loader discovers entity descriptor files and parses them into raw
// records. Descriptors live under <root>/<plural type>/ as JSON or YAML
// documents, one record per file.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/datacatalog/pkg/types"
)

// RawRecord is one parsed descriptor, before normalization.
type RawRecord struct {
	Path    string
	Type    types.EntityType
	ModTime time.Time
	Fields  map[string]any
}

// Loader reads descriptors from a root directory. It holds no state
// between scans: every call to Records walks the tree again.
type Loader struct {
	root string
}

// New returns a Loader rooted at dir.
func New(dir string) *Loader {
	return &Loader{root: dir}
}

// Root returns the descriptor root directory.
func (l *Loader) Root() string { return l.root }

var descriptorExts = map[string]bool{
	".json": true,
	".yaml": true,
	".yml":  true,
}

// Paths lists descriptor files for an entity type in sorted order. A
// missing type directory yields no paths.
func (l *Loader) Paths(t types.EntityType) ([]string, error) {
	dir := filepath.Join(l.root, t.Plural())
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return filepath.SkipAll
			}
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != dir && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !descriptorExts[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s descriptors in %s: %w", t, dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Records yields one RawRecord per descriptor of type t. Files that cannot
// be parsed yield a *types.MalformedDescriptorError and the sequence
// continues. A directory scan failure or context cancellation is yielded
// as a plain error and ends the sequence.
func (l *Loader) Records(ctx context.Context, t types.EntityType) iter.Seq2[RawRecord, error] {
	return func(yield func(RawRecord, error) bool) {
		paths, err := l.Paths(t)
		if err != nil {
			yield(RawRecord{}, err)
			return
		}
		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				yield(RawRecord{}, err)
				return
			}
			rec, err := Parse(path, t)
			if !yield(rec, err) {
				return
			}
		}
	}
}

// Parse reads and decodes a single descriptor file.
func Parse(path string, t types.EntityType) (RawRecord, error) {
	rec := RawRecord{Path: path, Type: t}

	info, err := os.Stat(path)
	if err != nil {
		return rec, &types.MalformedDescriptorError{Path: path, Err: err}
	}
	rec.ModTime = info.ModTime().UTC()

	data, err := os.ReadFile(path)
	if err != nil {
		return rec, &types.MalformedDescriptorError{Path: path, Err: err}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return rec, &types.MalformedDescriptorError{Path: path, Err: err}
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return rec, &types.MalformedDescriptorError{
			Path: path,
			Err:  fmt.Errorf("top-level value is %s, want a mapping", kindName(root)),
		}
	}
	v, err := nodeValue(root)
	if err != nil {
		return rec, &types.MalformedDescriptorError{Path: path, Err: err}
	}
	rec.Fields = v.(map[string]any)
	return rec, nil
}

// nodeValue converts a decoded node to plain Go values. Numeric scalars
// stay as their source text so identifiers such as 0012 or 1e3 survive
// unchanged; consumers parse the numbers they need.
func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeValue(n.Content[0])
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			v, err := nodeValue(val)
			if err != nil {
				return nil, err
			}
			if key.ShortTag() == "!!merge" {
				if merged, ok := v.(map[string]any); ok {
					for k, mv := range merged {
						if _, set := out[k]; !set {
							out[k] = mv
						}
					}
				}
				continue
			}
			out[key.Value] = v
		}
		return out, nil
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!int", "!!float":
			return n.Value, nil
		case "!!null":
			return nil, nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	}
	return nil, nil
}

func kindName(n *yaml.Node) string {
	switch n.Kind {
	case yaml.SequenceNode:
		return "a sequence"
	case yaml.ScalarNode:
		return "a scalar"
	case yaml.AliasNode:
		return "an alias"
	}
	return "empty"
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// SitemapEntry is one URL emitted into a sitemap partition.
type SitemapEntry struct {
	URL          string     `json:"url" yaml:"url"`
	LastModified time.Time  `json:"last_modified" yaml:"last_modified"`
	Type         EntityType `json:"type" yaml:"type"`
}

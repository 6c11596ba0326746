// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads search engine credentials from a directory of
// plain-text files. Each file in the directory represents one secret: the
// filename is the key name and the file contents (trimmed) are the value.
//
// Supported key files: solr-username, solr-password.
package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Key file names.
const (
	SolrUsername = "solr-username"
	SolrPassword = "solr-password"
)

// Load returns the non-empty secrets in dir keyed by file name. A missing
// dir yields an empty map. Dotfiles and subdirectories are ignored, and a
// file that cannot be read is logged and left out.
func Load(dir string, log zerolog.Logger) (map[string]string, error) {
	found := map[string]string{}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return found, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn().Err(err).Str("secret", name).Msg("skipping unreadable secret")
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			found[name] = value
		}
	}
	return found, nil
}

// BasicAuth is a username/password pair for HTTP basic authentication.
type BasicAuth struct {
	Username string
	Password string
}

// Solr returns the Solr basic-auth credentials found in secrets. ok is
// false unless both the username and the password are present.
func Solr(secrets map[string]string) (auth BasicAuth, ok bool) {
	auth = BasicAuth{Username: secrets[SolrUsername], Password: secrets[SolrPassword]}
	return auth, auth.Username != "" && auth.Password != ""
}

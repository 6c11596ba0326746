// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package solr implements index.Engine against a Solr collection over its
// HTTP APIs. Documents use the catalog's "<type>_<id>" key as Solr's id,
// full-text search goes through per-type copy fields, and partial updates
// use atomic "set" operations guarded by an optimistic version so they
// never create documents.
package solr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/datacatalog/internal/httputil"
	"github.com/pdiddy/datacatalog/internal/index"
	"github.com/pdiddy/datacatalog/internal/secrets"
	"github.com/pdiddy/datacatalog/pkg/types"
)

// Options configures a Client.
type Options struct {
	// URL is the Solr base URL, e.g. "http://localhost:8983/solr".
	URL string

	Collection string

	// Auth enables HTTP basic authentication when set.
	Auth *secrets.BasicAuth

	// HTTPClient defaults to a client without a global timeout; each
	// request is bounded by Timeout instead.
	HTTPClient *http.Client

	// MaxRetries for transient HTTP statuses. Zero uses the httputil
	// default.
	MaxRetries int

	// Timeout bounds each request, retries included (default 30s).
	Timeout time.Duration

	Logger zerolog.Logger
}

// Client is a Solr-backed search index.
type Client struct {
	base       string
	http       *http.Client
	auth       *secrets.BasicAuth
	maxRetries int
	timeout    time.Duration
	log        zerolog.Logger
}

var _ index.Engine = (*Client)(nil)

// New returns a client for one collection. It does not contact the server.
func New(opts Options) (*Client, error) {
	if opts.URL == "" || opts.Collection == "" {
		return nil, fmt.Errorf("solr url and collection are required")
	}
	if _, err := url.Parse(opts.URL); err != nil {
		return nil, fmt.Errorf("invalid solr url: %w", err)
	}
	c := &Client{
		base:       strings.TrimRight(opts.URL, "/") + "/" + url.PathEscape(opts.Collection),
		http:       opts.HTTPClient,
		auth:       opts.Auth,
		maxRetries: opts.MaxRetries,
		timeout:    opts.Timeout,
		log:        opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	return c, nil
}

func (c *Client) Name() string { return "solr" }

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Error is a non-2xx Solr response.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("solr returned HTTP %d: %s", e.Status, e.Message)
}

// do sends one request and decodes the JSON response into out when out is
// non-nil. body is JSON-encoded when non-nil.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if params == nil {
		params = url.Values{}
	}
	params.Set("wt", "json")
	endpoint := c.base + path + "?" + params.Encode()

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.auth != nil {
		req.SetBasicAuth(c.auth.Username, c.auth.Password)
	}

	start := time.Now()
	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.maxRetries)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("solr request")

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var body struct {
		Error struct {
			Msg string `json:"msg"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error.Msg != "" {
		return body.Error.Msg
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// Upsert sends documents to the update handler without committing.
func (c *Client) Upsert(ctx context.Context, docs []types.IndexDocument) error {
	payload := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		payload = append(payload, solrDocument(d))
	}
	return c.do(ctx, http.MethodPost, "/update", nil, payload, nil)
}

// Patch sets fields on an existing document. "_version_": 1 makes Solr
// reject the update with 409 instead of creating a partial document.
func (c *Client) Patch(ctx context.Context, t types.EntityType, id string, fields map[string]any) error {
	doc := map[string]any{
		types.KeyField: types.DocumentKey(t, id),
		"_version_":    1,
	}
	for k, v := range encodeFields(fields) {
		doc[k] = map[string]any{"set": v}
	}
	err := c.do(ctx, http.MethodPost, "/update", nil, []map[string]any{doc}, nil)
	var serr *Error
	if errors.As(err, &serr) && serr.Status == http.StatusConflict {
		return index.ErrNotFound
	}
	return err
}

// Commit issues a hard commit.
func (c *Client) Commit(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/update", url.Values{"commit": {"true"}}, map[string]any{}, nil)
}

// Reset deletes every document and commits immediately.
func (c *Client) Reset(ctx context.Context) error {
	body := map[string]any{"delete": map[string]any{"query": "*:*"}}
	return c.do(ctx, http.MethodPost, "/update", url.Values{"commit": {"true"}}, body, nil)
}

func solrDocument(d types.IndexDocument) map[string]any {
	doc := encodeFields(d.Fields)
	doc[types.KeyField] = d.Key()
	doc[types.TypeField] = string(d.Type)
	return doc
}

// encodeFields formats dates the way Solr's date fields expect.
func encodeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(time.RFC3339)
		}
		out[k] = v
	}
	return out
}

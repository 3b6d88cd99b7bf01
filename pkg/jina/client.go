// Package jina wraps the Jina AI reader (r.jina.ai) and search (s.jina.ai)
// endpoints. Both take a GET with the target appended to the base URL and
// answer JSON when asked. Keyless requests are served at a lower rate limit,
// so the Authorization header is only set when a key is present.
package jina

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultReaderURL = "https://r.jina.ai"
	defaultSearchURL = "https://s.jina.ai"

	clientTimeout = 30 * time.Second
	maxAttempts   = 3
	firstBackoff  = time.Second
)

// Client fetches rendered pages and search results from Jina.
type Client interface {
	// Read renders targetURL to markdown through the reader endpoint.
	Read(ctx context.Context, targetURL string) (*Page, error)
	// Search queries the web through the search endpoint. Queries the
	// service cannot answer come back as an empty result set, not an error.
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// Page is one rendered page.
type Page struct {
	Title         string    `json:"title"`
	URL           string    `json:"url"`
	Content       string    `json:"content"`
	Description   string    `json:"description"`
	PublishedTime string    `json:"publishedTime"`
	Usage         PageUsage `json:"usage"`
}

// PageUsage reports the tokens the render cost.
type PageUsage struct {
	Tokens int `json:"tokens"`
}

// SearchResult is one search hit.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

// Both endpoints wrap their payload in a code + data envelope.
type pageEnvelope struct {
	Code int  `json:"code"`
	Data Page `json:"data"`
}

type searchEnvelope struct {
	Code int            `json:"code"`
	Data []SearchResult `json:"data"`
}

// Option configures the client.
type Option func(*client)

// WithBaseURL points Read at a different endpoint.
func WithBaseURL(u string) Option {
	return func(c *client) { c.readerURL = u }
}

// WithSearchBaseURL points Search at a different endpoint.
func WithSearchBaseURL(u string) Option {
	return func(c *client) { c.searchURL = u }
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.http = hc }
}

type client struct {
	apiKey    string
	readerURL string
	searchURL string
	http      *http.Client
}

// NewClient builds a Jina client. An empty apiKey is allowed; requests then
// go out unauthenticated.
func NewClient(apiKey string, opts ...Option) Client {
	c := &client{
		apiKey:    apiKey,
		readerURL: defaultReaderURL,
		searchURL: defaultSearchURL,
		http:      &http.Client{Timeout: clientTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) Read(ctx context.Context, targetURL string) (*Page, error) {
	body, status, err := c.get(ctx, c.readerURL+"/"+targetURL, true)
	if err != nil {
		return nil, eris.Wrap(err, "jina: read")
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("jina: read status %d: %s", status, string(body))
	}

	var envelope pageEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, eris.Wrap(err, "jina: decode read response")
	}
	return &envelope.Data, nil
}

func (c *client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	body, status, err := c.get(ctx, c.searchURL+"/"+url.QueryEscape(query), false)
	if err != nil {
		return nil, eris.Wrap(err, "jina: search")
	}

	// The service answers 422 when it has nothing for the query.
	if status == http.StatusUnprocessableEntity {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("jina: search status %d: %s", status, string(body))
	}

	var envelope searchEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, eris.Wrap(err, "jina: decode search response")
	}
	return envelope.Data, nil
}

// get issues an authorized GET against rawURL, asking for markdown when
// rendering a page, and retries the statuses the service sends under load.
// An overloaded status on the final attempt is handed back as a normal
// response so the caller can report it.
func (c *client) get(ctx context.Context, rawURL string, markdown bool) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, eris.Wrap(err, "build request")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	if markdown {
		req.Header.Set("X-Return-Format", "markdown")
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(firstBackoff << (attempt - 1)):
			}
		}

		body, status, err := c.roundTrip(ctx, req)
		switch {
		case err != nil:
			lastErr = err
		case overloaded(status) && attempt < maxAttempts-1:
			lastErr = eris.Errorf("status %d under load", status)
		default:
			return body, status, nil
		}
	}
	return nil, 0, lastErr
}

func (c *client) roundTrip(ctx context.Context, req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req.Clone(ctx))
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "read body")
	}
	return body, resp.StatusCode, nil
}

// overloaded reports whether a status is worth retrying.
func overloaded(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable:
		return true
	}
	return false
}

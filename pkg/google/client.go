// Package google provides a client for the Google Programmable Search
// JSON API.
package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL = "https://customsearch.googleapis.com/customsearch/v1"

	// maxPageSize is the API's cap on results per request.
	maxPageSize = 10

	requestTimeout = 10 * time.Second
)

// Client performs Programmable Search queries.
type Client interface {
	// Search runs one query against the configured engine and returns up
	// to limit results in ranked order. The API serves at most ten per
	// request, so larger limits are clamped.
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Result is a single search hit.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet,omitempty"`
}

type searchResponse struct {
	Items []Result `json:"items"`
}

// Option customizes a Client at construction.
type Option func(*client)

// WithBaseURL points the client at a different endpoint.
func WithBaseURL(url string) Option {
	return func(c *client) { c.baseURL = url }
}

// WithHTTPClient swaps the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.http = hc }
}

type client struct {
	apiKey   string
	engineID string
	baseURL  string
	http     *http.Client
}

// NewClient creates a Programmable Search client bound to one engine ID.
func NewClient(apiKey, engineID string, opts ...Option) Client {
	c := &client{
		apiKey:   apiKey,
		engineID: engineID,
		baseURL:  defaultBaseURL,
		http:     &http.Client{Timeout: requestTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	params := url.Values{
		"key": {c.apiKey},
		"cx":  {c.engineID},
		"q":   {query},
		"num": {strconv.Itoa(limit)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "google: build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: search request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("google: search returned status %d: %s", resp.StatusCode, string(body))
	}

	var out searchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "google: decode response")
	}
	return out.Items, nil
}

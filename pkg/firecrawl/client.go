// Package firecrawl talks to the Firecrawl scrape endpoint, which renders a
// page (JavaScript included) and hands back markdown. It backs the fetch
// layer's alternate reader.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL = "https://api.firecrawl.dev/v1"

	// Rendering is slow; give the service room before timing out.
	scrapeTimeout = 60 * time.Second
)

// Client renders pages through Firecrawl.
type Client interface {
	// Scrape renders one page. Formats defaults to markdown when empty.
	Scrape(ctx context.Context, pageURL string, formats ...string) (*Document, error)
}

// Document is a rendered page as the service returns it.
type Document struct {
	URL        string `json:"url"`
	Markdown   string `json:"markdown"`
	Title      string `json:"title"`
	StatusCode int    `json:"statusCode"`
}

// scrapePayload is the POST /scrape body.
type scrapePayload struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats,omitempty"`
}

// scrapeEnvelope wraps the document. Success false on a 200 means the
// service reached the page but could not render it.
type scrapeEnvelope struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Data    Document `json:"data"`
}

// StatusError reports a non-2xx answer from the service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("firecrawl: status %d: %s", e.Code, e.Body)
}

// Option customizes a Client at construction.
type Option func(*scraper)

// WithBaseURL points the client at a different endpoint.
func WithBaseURL(url string) Option {
	return func(s *scraper) { s.baseURL = url }
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *scraper) { s.http = hc }
}

type scraper struct {
	key     string
	baseURL string
	http    *http.Client
}

// NewClient builds a Firecrawl client around an API key.
func NewClient(apiKey string, opts ...Option) Client {
	s := &scraper{key: apiKey, baseURL: defaultBaseURL, http: &http.Client{Timeout: scrapeTimeout}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape renders one page. Non-2xx answers surface as *StatusError; a 200
// whose envelope reports failure becomes a plain error naming the page.
func (s *scraper) Scrape(ctx context.Context, pageURL string, formats ...string) (*Document, error) {
	if len(formats) == 0 {
		formats = []string{"markdown"}
	}
	payload, err := json.Marshal(scrapePayload{URL: pageURL, Formats: formats})
	if err != nil {
		return nil, eris.Wrap(err, "firecrawl: encode scrape payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/scrape", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "firecrawl: build scrape request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.key)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "firecrawl: scrape")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "firecrawl: read scrape response")
	}
	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var envelope scrapeEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, eris.Wrap(err, "firecrawl: decode scrape response")
	}
	if !envelope.Success {
		if envelope.Error != "" {
			return nil, eris.Errorf("firecrawl: render of %s failed: %s", pageURL, envelope.Error)
		}
		return nil, eris.Errorf("firecrawl: render of %s failed", pageURL)
	}
	return &envelope.Data, nil
}

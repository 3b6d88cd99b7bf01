package firecrawl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("fc-test", WithBaseURL(srv.URL))
}

func TestScrape_ReturnsDocument(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/scrape", r.URL.Path)
		assert.Equal(t, "Bearer fc-test", r.Header.Get("Authorization"))

		var body scrapePayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://news.example/story", body.URL)
		assert.Equal(t, []string{"markdown", "html"}, body.Formats)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(scrapeEnvelope{
			Success: true,
			Data: Document{
				URL:        "https://news.example/story",
				Markdown:   "# Headline\n\nBody text.",
				Title:      "Headline",
				StatusCode: 200,
			},
		})
	})

	doc, err := client.Scrape(context.Background(), "https://news.example/story", "markdown", "html")

	require.NoError(t, err)
	assert.Equal(t, "Headline", doc.Title)
	assert.Contains(t, doc.Markdown, "Body text.")
}

func TestScrape_DefaultsToMarkdown(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body scrapePayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"markdown"}, body.Formats)
		_ = json.NewEncoder(w).Encode(scrapeEnvelope{Success: true})
	})

	_, err := client.Scrape(context.Background(), "https://news.example/story")
	require.NoError(t, err)
}

func TestScrape_StatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error": "insufficient credits"}`)) //nolint:errcheck
	})

	_, err := client.Scrape(context.Background(), "https://news.example/story")

	require.Error(t, err)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusPaymentRequired, statusErr.Code)
	assert.Contains(t, statusErr.Body, "insufficient credits")
}

func TestScrape_UnsuccessfulEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(scrapeEnvelope{Success: false, Error: "page blocked scraping"})
	})

	doc, err := client.Scrape(context.Background(), "https://news.example/story")

	assert.Nil(t, doc)
	require.Error(t, err)
	assert.ErrorContains(t, err, "page blocked scraping")
	assert.ErrorContains(t, err, "https://news.example/story")
}

func TestScrape_MalformedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`)) //nolint:errcheck
	})

	_, err := client.Scrape(context.Background(), "https://news.example/story")

	require.Error(t, err)
	assert.ErrorContains(t, err, "decode scrape response")
}

func TestScrape_ContextCanceled(t *testing.T) {
	client := newTestClient(t, func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Scrape(ctx, "https://news.example/story")
	assert.Error(t, err)
}

package duckduckgo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultPage = `<!DOCTYPE html>
<html><body>
<div id="links" class="results">
  <div class="result results_links results_links_deep web-result">
    <div class="links_main links_deep result__body">
      <h2 class="result__title">
        <a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.sciencedaily.com%2Fboiling&amp;rut=abc123">Boiling point of water</a>
      </h2>
      <a class="result__snippet" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.sciencedaily.com%2Fboiling">At sea level water boils at 100 degrees Celsius.</a>
    </div>
  </div>
  <div class="result result--ad">
    <div class="result__body">
      <h2 class="result__title">
        <a rel="nofollow" class="result__a" href="https://duckduckgo.com/y.js?ad_provider=x&amp;u3=target">Sponsored thing</a>
      </h2>
    </div>
  </div>
  <div class="result results_links results_links_deep web-result">
    <div class="links_main links_deep result__body">
      <h2 class="result__title">
        <a rel="nofollow" class="result__a" href="https://physics.example.org/water">Water facts</a>
      </h2>
      <div class="result__snippet">Properties of water at varying altitude.</div>
    </div>
  </div>
</div>
</body></html>`

func TestSearch_ParsesOrganicResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "water boils at 100", r.URL.Query().Get("q"))
		assert.Equal(t, "Mozilla/5.0", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(resultPage))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	results, err := client.Search(context.Background(), "water boils at 100", 10)

	require.NoError(t, err)
	require.Len(t, results, 2, "the sponsored entry must be dropped")

	assert.Equal(t, "Boiling point of water", results[0].Title)
	assert.Equal(t, "https://www.sciencedaily.com/boiling", results[0].URL, "uddg redirect must be unwrapped")
	assert.Equal(t, "At sea level water boils at 100 degrees Celsius.", results[0].Snippet)

	assert.Equal(t, "Water facts", results[1].Title)
	assert.Equal(t, "https://physics.example.org/water", results[1].URL)
	assert.Equal(t, "Properties of water at varying altitude.", results[1].Snippet)
}

func TestSearch_LimitTruncates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(resultPage))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	results, err := client.Search(context.Background(), "water", 1)

	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, "https://www.sciencedaily.com/boiling", results[0].URL)
}

func TestSearch_EmptyPageYieldsNoResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="no-results">No results.</div></body></html>`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	results, err := client.Search(context.Background(), "gibberish query", 5)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_ChallengePageIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="anomaly-modal__modal">Unfortunately, bots use DuckDuckGo too.</div></body></html>`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Search(context.Background(), "water", 5)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "challenge")
}

func TestSearch_RetriesOnServerError(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(resultPage))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	results, err := client.Search(context.Background(), "water", 5)

	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestSearch_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Search(context.Background(), "water", 5)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestResolveHref(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		href string
		want string
		ok   bool
	}{
		{"uddg redirect", "//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fa%20b&rut=x", "https://example.com/a b", true},
		{"direct https", "https://example.com/article", "https://example.com/article", true},
		{"ad redirect", "https://duckduckgo.com/y.js?u3=target", "", false},
		{"empty", "", "", false},
		{"redirect without target", "//duckduckgo.com/l/?rut=x", "", false},
		{"relative path", "/html?q=next", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := resolveHref(tc.href)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

package discover

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/claimsift/claimsift/internal/config"
	"github.com/claimsift/claimsift/pkg/duckduckgo"
	"github.com/claimsift/claimsift/pkg/google"
	"github.com/claimsift/claimsift/pkg/jina"
)

// duckduckgoProvider adapts the keyless DuckDuckGo HTML client.
type duckduckgoProvider struct {
	client duckduckgo.Client
}

// NewDuckDuckGoProvider wraps a DuckDuckGo client as a Provider.
func NewDuckDuckGoProvider(c duckduckgo.Client) Provider {
	return &duckduckgoProvider{client: c}
}

func (p *duckduckgoProvider) Name() string { return "duckduckgo" }

func (p *duckduckgoProvider) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	results, err := p.client.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{Title: r.Title, URL: r.URL, Snippet: r.Snippet}
	}
	return hits, nil
}

// jinaProvider adapts the Jina Search API. Jina does not take a result
// limit, so the response is truncated client-side.
type jinaProvider struct {
	client jina.Client
}

// NewJinaProvider wraps a Jina client as a Provider.
func NewJinaProvider(c jina.Client) Provider {
	return &jinaProvider{client: c}
}

func (p *jinaProvider) Name() string { return "jina" }

func (p *jinaProvider) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	results, err := p.client.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	hits := make([]Hit, len(results))
	for i, r := range results {
		snippet := r.Description
		if snippet == "" {
			snippet = r.Content
		}
		hits[i] = Hit{Title: r.Title, URL: r.URL, Snippet: snippet}
	}
	return hits, nil
}

// googleProvider adapts the Programmable Search JSON API.
type googleProvider struct {
	client google.Client
}

// NewGoogleProvider wraps a Programmable Search client as a Provider.
func NewGoogleProvider(c google.Client) Provider {
	return &googleProvider{client: c}
}

func (p *googleProvider) Name() string { return "google" }

func (p *googleProvider) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	results, err := p.client.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{Title: r.Title, URL: r.Link, Snippet: r.Snippet}
	}
	return hits, nil
}

// NewProvider builds the configured search provider.
func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.Discovery.Provider {
	case "", "duckduckgo":
		return NewDuckDuckGoProvider(duckduckgo.NewClient()), nil
	case "google":
		var opts []google.Option
		if cfg.Google.BaseURL != "" {
			opts = append(opts, google.WithBaseURL(cfg.Google.BaseURL))
		}
		return NewGoogleProvider(google.NewClient(cfg.Google.Key, cfg.Google.SearchEngineID, opts...)), nil
	case "jina":
		var opts []jina.Option
		if cfg.Jina.BaseURL != "" {
			opts = append(opts, jina.WithBaseURL(cfg.Jina.BaseURL))
		}
		if cfg.Jina.SearchBaseURL != "" {
			opts = append(opts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
		}
		return NewJinaProvider(jina.NewClient(cfg.Jina.Key, opts...)), nil
	default:
		return nil, eris.Errorf("discover: unknown provider %q", cfg.Discovery.Provider)
	}
}

package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

const robotsMaxBytes = 512 * 1024

// RobotsGate answers whether a URL may be fetched under the site's
// robots.txt. Parsed rules are cached per scheme+host; failures to retrieve
// robots.txt fail open so an unreachable robots file never blocks a fetch
// that would otherwise work.
type RobotsGate struct {
	client    *http.Client
	userAgent string
	cache     *gocache.Cache
}

// NewRobotsGate creates a gate that caches parsed robots.txt rules for ttl.
// A nil client gets a default with a short timeout.
func NewRobotsGate(client *http.Client, userAgent string, ttl time.Duration) *RobotsGate {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RobotsGate{
		client:    client,
		userAgent: userAgent,
		cache:     gocache.New(ttl, 2*ttl),
	}
}

// Allowed reports whether u may be fetched by this gate's user agent.
func (g *RobotsGate) Allowed(ctx context.Context, u *url.URL) bool {
	origin := u.Scheme + "://" + u.Host

	var data *robotstxt.RobotsData
	if cached, ok := g.cache.Get(origin); ok {
		data = cached.(*robotstxt.RobotsData)
	} else {
		data = g.fetchRules(ctx, origin)
		g.cache.Set(origin, data, gocache.DefaultExpiration)
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.TestAgent(path, g.userAgent)
}

// fetchRules retrieves and parses robots.txt for an origin. Any retrieval
// or parse failure yields allow-all rules.
func (g *RobotsGate) fetchRules(ctx context.Context, origin string) *robotstxt.RobotsData {
	allowAll, _ := robotstxt.FromStatusAndBytes(http.StatusNotFound, nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return allowAll
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		zap.L().Debug("robots.txt fetch failed, allowing",
			zap.String("origin", origin),
			zap.Error(err),
		)
		return allowAll
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBytes))
	if err != nil {
		return allowAll
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return allowAll
	}
	return data
}

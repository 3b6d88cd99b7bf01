// Package fetch retrieves candidate pages and extracts readable article
// content from them. Fetching is a total operation: every URL yields an
// Article whose FetchStatus records the outcome, and failures never surface
// as errors to the caller.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/claimsift/claimsift/internal/config"
	"github.com/claimsift/claimsift/internal/model"
	"github.com/claimsift/claimsift/internal/resilience"
)

const (
	defaultTimeout      = 12 * time.Second
	defaultMaxRedirects = 5
	defaultMaxBodyBytes = 2 * 1024 * 1024
	defaultMinBodyChars = 280
	defaultPerHostRPS   = 2.0
	defaultUserAgent    = "claimsift/1.0 (+https://github.com/claimsift/claimsift)"
)

// Fetcher turns a URL into an Article. Implementations never return an
// error; failures are encoded in Article.FetchStatus and Article.Note.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) model.Article
}

// Reader is a remote reading service used as a fallback when the direct
// fetch fails or yields nothing usable. pkg/jina provides the production
// implementation.
type Reader interface {
	Read(ctx context.Context, rawURL string) (model.Article, error)
}

// Cache stores successfully fetched articles keyed by URL so repeated
// checks of the same claim do not re-fetch the same pages.
type Cache interface {
	GetArticle(ctx context.Context, rawURL string) (model.Article, bool)
	PutArticle(ctx context.Context, art model.Article)
}

// Options configures an ArticleFetcher. Zero values fall back to defaults.
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
	MaxBodyBytes int64
	MinBodyChars int
	PerHostRPS   float64

	// Client overrides the HTTP client (tests). Its CheckRedirect is
	// replaced with the fetcher's redirect cap.
	Client *http.Client

	Robots   *RobotsGate
	Reader   Reader
	Cache    Cache
	Breakers *resilience.HostBreakers
}

// ArticleFetcher fetches pages over HTTP with per-host rate limiting and
// circuit breaking, extracts article text deterministically, and optionally
// falls back to a remote Reader for pages the direct path cannot use.
type ArticleFetcher struct {
	client       *http.Client
	userAgent    string
	timeout      time.Duration
	maxRedirects int
	maxBodyBytes int64
	minBodyChars int
	perHostRPS   float64

	robots   *RobotsGate
	reader   Reader
	cache    Cache
	breakers *resilience.HostBreakers

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var errTooManyRedirects = eris.New("too many redirects")

// New creates an ArticleFetcher.
func New(opts Options) *ArticleFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = defaultMaxRedirects
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.MinBodyChars <= 0 {
		opts.MinBodyChars = defaultMinBodyChars
	}
	if opts.PerHostRPS <= 0 {
		opts.PerHostRPS = defaultPerHostRPS
	}
	if opts.Breakers == nil {
		opts.Breakers = resilience.NewHostBreakers(resilience.DefaultCircuitBreakerConfig())
	}

	f := &ArticleFetcher{
		userAgent:    opts.UserAgent,
		timeout:      opts.Timeout,
		maxRedirects: opts.MaxRedirects,
		maxBodyBytes: opts.MaxBodyBytes,
		minBodyChars: opts.MinBodyChars,
		perHostRPS:   opts.PerHostRPS,
		robots:       opts.Robots,
		reader:       opts.Reader,
		cache:        opts.Cache,
		breakers:     opts.Breakers,
		limiters:     make(map[string]*rate.Limiter),
	}

	base := opts.Client
	if base == nil {
		base = &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	// Copy so the redirect cap does not leak into a caller-owned client.
	c := *base
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= f.maxRedirects {
			return errTooManyRedirects
		}
		return nil
	}
	f.client = &c

	return f
}

// NewFromConfig builds an ArticleFetcher from the fetch section of the
// config. Cache and Reader are wired by the caller because they depend on
// the store and Jina client respectively; nil disables them.
func NewFromConfig(cfg *config.Config, cache Cache, reader Reader) *ArticleFetcher {
	opts := Options{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRedirects: cfg.Fetch.MaxRedirects,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		MinBodyChars: cfg.Fetch.MinBodyChars,
		PerHostRPS:   cfg.Fetch.PerHostRPS,
		Cache:        cache,
		Reader:       reader,
	}
	if cfg.Fetch.RespectRobots {
		ttl := time.Duration(cfg.Fetch.RobotsCacheTTLMins) * time.Minute
		opts.Robots = NewRobotsGate(nil, cfg.Fetch.UserAgent, ttl)
	}
	if !cfg.Fetch.ReaderFallback {
		opts.Reader = nil
	}
	return New(opts)
}

// Fetch retrieves rawURL and extracts its article content. It consults the
// cache first, then fetches directly, then falls back to the Reader when
// the direct result is unusable. The returned Article always carries the
// requested URL, even when the server redirected elsewhere.
func (f *ArticleFetcher) Fetch(ctx context.Context, rawURL string) model.Article {
	if f.cache != nil {
		if art, ok := f.cache.GetArticle(ctx, rawURL); ok {
			zap.L().Debug("article cache hit", zap.String("url", rawURL))
			return art
		}
	}

	art, readerEligible := f.fetchDirect(ctx, rawURL)

	if art.FetchStatus != model.FetchOK && readerEligible && f.reader != nil && ctx.Err() == nil {
		fallback, err := f.reader.Read(ctx, rawURL)
		switch {
		case err != nil:
			zap.L().Debug("reader fallback failed",
				zap.String("url", rawURL),
				zap.Error(err),
			)
		case len(fallback.BodyText) < f.minBodyChars:
			zap.L().Debug("reader fallback body too short",
				zap.String("url", rawURL),
				zap.Int("chars", len(fallback.BodyText)),
			)
		default:
			fallback.URL = rawURL
			fallback.FetchStatus = model.FetchOK
			fallback.Note = "via jina reader"
			art = fallback
		}
	}

	if art.FetchStatus == model.FetchOK && f.cache != nil {
		f.cache.PutArticle(ctx, art)
	}

	return art
}

// fetchDirect performs the plain HTTP fetch-and-extract path. The second
// return value reports whether a Reader fallback makes sense for the
// failure: robots denials, cancellations, and unparseable URLs are final.
func (f *ArticleFetcher) fetchDirect(ctx context.Context, rawURL string) (model.Article, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.FailedArticle(rawURL, model.FetchUnreachable, "invalid url"), false
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if f.robots != nil && !f.robots.Allowed(ctx, u) {
		return model.FailedArticle(rawURL, model.FetchUnreachable, "robots.txt disallows"), false
	}

	if err := f.limiterFor(u.Host).Wait(ctx); err != nil {
		return model.FailedArticle(rawURL, model.FetchUnreachable, classifyTransportError(err)), false
	}

	breaker := f.breakers.Get(u.Host)
	page, err := resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (*fetchedPage, error) {
		return f.doRequest(ctx, rawURL)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return model.FailedArticle(rawURL, model.FetchUnreachable, "circuit open for host"), false
		}
		note := classifyTransportError(err)
		return model.FailedArticle(rawURL, model.FetchUnreachable, note), note != "canceled"
	}

	return f.extractPage(rawURL, page)
}

// fetchedPage is the raw outcome of one HTTP round trip.
type fetchedPage struct {
	StatusCode  int
	ContentType string
	Body        []byte
	BlockType   BlockType
}

// doRequest runs a single GET. Transport failures and retryable statuses
// (429, 5xx) are returned as errors so the host circuit breaker counts
// them; everything else, including 404s and block pages, is a successful
// round trip from the breaker's point of view.
func (f *ArticleFetcher) doRequest(ctx context.Context, rawURL string) (*fetchedPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return nil, err
	}

	page := &fetchedPage{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}

	if blocked, blockType := DetectBlock(resp, body); blocked {
		page.BlockType = blockType
		return page, nil
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			fmt.Errorf("status %d", resp.StatusCode), resp.StatusCode)
	}

	return page, nil
}

// extractPage classifies the fetched page and runs article extraction.
func (f *ArticleFetcher) extractPage(rawURL string, page *fetchedPage) (model.Article, bool) {
	if page.BlockType != BlockNone {
		note := fmt.Sprintf("blocked (%s)", page.BlockType)
		return model.FailedArticle(rawURL, model.FetchEmptyContent, note), true
	}

	if page.StatusCode >= 400 {
		note := fmt.Sprintf("status %d", page.StatusCode)
		return model.FailedArticle(rawURL, model.FetchUnreachable, note), true
	}

	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(page.ContentType, ";")[0]))
	switch mediaType {
	case "", "text/html", "application/xhtml+xml", "text/plain":
	default:
		note := fmt.Sprintf("unsupported content type %q", mediaType)
		return model.FailedArticle(rawURL, model.FetchParseFailed, note), true
	}

	decoded, err := charset.NewReader(bytes.NewReader(page.Body), page.ContentType)
	if err != nil {
		return model.FailedArticle(rawURL, model.FetchParseFailed, "charset detection failed"), true
	}

	art := model.Article{URL: rawURL, FetchStatus: model.FetchOK}

	if mediaType == "text/plain" {
		text, err := io.ReadAll(decoded)
		if err != nil {
			return model.FailedArticle(rawURL, model.FetchParseFailed, "decode failed"), true
		}
		art.BodyText = collapseWhitespace(string(text))
	} else {
		ex, err := ExtractArticle(decoded)
		if err != nil {
			return model.FailedArticle(rawURL, model.FetchParseFailed, "html parse failed"), true
		}
		art.Title = ex.Title
		art.Authors = ex.Authors
		art.PublishedAt = ex.PublishedAt
		art.BodyText = ex.BodyText
	}

	if len(art.BodyText) < f.minBodyChars {
		note := fmt.Sprintf("body text too short (%d chars)", len(art.BodyText))
		return model.FailedArticle(rawURL, model.FetchEmptyContent, note), true
	}

	zap.L().Debug("fetched article",
		zap.String("url", rawURL),
		zap.Int("chars", len(art.BodyText)),
	)
	return art, false
}

// limiterFor returns the rate limiter for a host, creating it on first use.
func (f *ArticleFetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.limiters[host]; ok {
		return l
	}
	burst := int(f.perHostRPS)
	if burst < 1 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Limit(f.perHostRPS), burst)
	f.limiters[host] = l
	return l
}

// classifyTransportError reduces a transport-level failure to a short note
// suitable for Article.Note.
func classifyTransportError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, errTooManyRedirects):
		return "too many redirects"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	// url.Error wraps the interesting part; surface the innermost message.
	root := err
	for {
		next := errors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}
	return root.Error()
}

var whitespaceCollapser = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// collapseWhitespace normalizes line endings, trims each line, and folds
// runs of blank lines into paragraph breaks.
func collapseWhitespace(s string) string {
	s = whitespaceCollapser.Replace(s)
	lines := strings.Split(s, "\n")
	var out []string
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

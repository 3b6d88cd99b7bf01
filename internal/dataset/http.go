package dataset

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/claimsift/claimsift/internal/resilience"
)

const (
	defaultUserAgent = "claimsift/1.0 (+https://github.com/claimsift/claimsift)"
	defaultTimeout   = 30 * time.Second
	defaultRPS       = 2
)

// HTTPOptions configures an HTTPFetcher. Zero values fall back to defaults.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// RPS throttles requests to the source. List syncs are periodic bulk
	// downloads, so the default is deliberately low.
	RPS   float64
	Retry resilience.RetryConfig

	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// HTTPFetcher implements Fetcher over net/http with a request throttle and
// retry on transient failures.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RPS <= 0 {
		opts.RPS = defaultRPS
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
		opts.Retry.OnRetry = resilience.RetryLogger("dataset", "download")
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTPFetcher{
		client:    client,
		userAgent: opts.UserAgent,
		limiter:   rate.NewLimiter(rate.Limit(opts.RPS), 1),
		retry:     opts.Retry,
	}
}

// Download fetches the URL and returns the response body. Non-200 statuses
// are errors; 429 and 5xx are retried before giving up.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := f.get(ctx, rawURL, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("dataset: unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	return resp.Body, nil
}

// DownloadIfChanged fetches the URL with an If-None-Match header. A 304
// response reports the source unchanged without a body.
func (f *HTTPFetcher) DownloadIfChanged(ctx context.Context, rawURL, etag string) (io.ReadCloser, string, bool, error) {
	resp, err := f.get(ctx, rawURL, etag)
	if err != nil {
		return nil, "", false, err
	}

	switch resp.StatusCode {
	case http.StatusNotModified:
		_ = resp.Body.Close()
		return nil, etag, false, nil
	case http.StatusOK:
		return resp.Body, resp.Header.Get("ETag"), true, nil
	default:
		_ = resp.Body.Close()
		return nil, "", false, eris.Errorf("dataset: unexpected status %d from %s", resp.StatusCode, rawURL)
	}
}

// get issues a throttled GET, retrying transient failures. The response
// body is open on success; statuses that classify as transient (429, 5xx)
// are consumed and retried inside the loop.
func (f *HTTPFetcher) get(ctx context.Context, rawURL, etag string) (*http.Response, error) {
	return resilience.DoVal(ctx, f.retry, func(ctx context.Context) (*http.Response, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "dataset: throttle wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "dataset: create request")
		}
		req.Header.Set("User-Agent", f.userAgent)
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(err, 0)
		}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			_ = resp.Body.Close()
			return nil, resilience.NewTransientError(
				eris.Errorf("dataset: status %d from %s", resp.StatusCode, rawURL),
				resp.StatusCode,
			)
		}
		return resp, nil
	})
}

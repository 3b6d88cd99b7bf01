// Package dataset downloads and parses curated domain lists from HTTP and
// FTP sources in CSV, XLSX, or JSON form. It is the transport layer under
// internal/blocklist.
package dataset

import (
	"context"
	"io"
)

// Fetcher retrieves remote list data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)

	// DownloadIfChanged fetches the URL only when its content differs from
	// the version identified by etag. It returns (body, newETag, changed,
	// error); on an unchanged source body is nil and changed is false.
	// Transports without change detection always report changed.
	DownloadIfChanged(ctx context.Context, rawURL, etag string) (io.ReadCloser, string, bool, error)
}

// Package blocklist syncs curated domain exclusion lists into the store and
// builds the discovery exclusion set from the stored rows.
package blocklist

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/claimsift/claimsift/internal/dataset"
	"github.com/claimsift/claimsift/internal/discover"
	"github.com/claimsift/claimsift/internal/model"
	"github.com/claimsift/claimsift/internal/store"
)

// List formats, detected from the source extension.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatJSON = "json"
)

// Options configures a Syncer. Nil fetchers get defaults.
type Options struct {
	HTTP dataset.Fetcher
	FTP  dataset.Fetcher
}

// Syncer pulls a domain list from a URL or local file and upserts its rows
// into the store's blocklist.
type Syncer struct {
	store store.Store
	http  dataset.Fetcher
	ftp   dataset.Fetcher
}

// SyncResult summarizes one sync pass.
type SyncResult struct {
	Source   string `json:"source"`
	Format   string `json:"format"`
	Parsed   int    `json:"parsed"`
	Upserted int    `json:"upserted"`
	// Skipped counts malformed rows (no usable domain).
	Skipped int `json:"skipped"`
	// Unchanged is true when the remote ETag matched and nothing was
	// downloaded.
	Unchanged bool `json:"unchanged"`
}

// NewSyncer creates a Syncer backed by st.
func NewSyncer(st store.Store, opts Options) *Syncer {
	if opts.HTTP == nil {
		opts.HTTP = dataset.NewHTTPFetcher(dataset.HTTPOptions{})
	}
	if opts.FTP == nil {
		opts.FTP = dataset.NewFTPFetcher(dataset.FTPOptions{})
	}
	return &Syncer{store: st, http: opts.HTTP, ftp: opts.FTP}
}

// Sync downloads source (http, https, ftp URL, or local path), parses
// domain[,reason] rows in the format its extension implies, and upserts
// them. HTTP sources record an ETag so an unchanged list is skipped on the
// next sync.
func (s *Syncer) Sync(ctx context.Context, source string) (*SyncResult, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, eris.New("blocklist: empty source")
	}

	format := detectFormat(source)
	log := zap.L().With(zap.String("source", source), zap.String("format", format))

	body, newETag, changed, err := s.open(ctx, source)
	if err != nil {
		return nil, err
	}
	if !changed {
		log.Info("blocklist: source unchanged, skipping")
		return &SyncResult{Source: source, Format: format, Unchanged: true}, nil
	}
	defer body.Close() //nolint:errcheck

	entries, skipped, err := s.parse(ctx, format, source, body)
	if err != nil {
		return nil, err
	}

	upserted, err := s.store.UpsertBlockedDomains(ctx, entries)
	if err != nil {
		return nil, eris.Wrap(err, "blocklist: upsert domains")
	}

	if newETag != "" {
		if err := s.store.SetSyncETag(ctx, source, newETag); err != nil {
			log.Warn("blocklist: failed to record etag", zap.Error(err))
		}
	}

	log.Info("blocklist: sync complete",
		zap.Int("parsed", len(entries)),
		zap.Int("upserted", upserted),
		zap.Int("skipped", skipped),
	)

	return &SyncResult{
		Source:   source,
		Format:   format,
		Parsed:   len(entries),
		Upserted: upserted,
		Skipped:  skipped,
	}, nil
}

// open resolves the source into a readable body. Remote HTTP sources go
// through the conditional download path with the last recorded ETag.
func (s *Syncer) open(ctx context.Context, source string) (io.ReadCloser, string, bool, error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		etag, err := s.store.GetSyncETag(ctx, source)
		if err != nil {
			zap.L().Warn("blocklist: failed to read etag", zap.String("source", source), zap.Error(err))
			etag = ""
		}
		body, newETag, changed, err := s.http.DownloadIfChanged(ctx, source, etag)
		if err != nil {
			return nil, "", false, eris.Wrap(err, "blocklist: download")
		}
		return body, newETag, changed, nil

	case strings.HasPrefix(source, "ftp://"):
		body, _, _, err := s.ftp.DownloadIfChanged(ctx, source, "")
		if err != nil {
			return nil, "", false, eris.Wrap(err, "blocklist: ftp download")
		}
		return body, "", true, nil

	default:
		f, err := os.Open(source)
		if err != nil {
			return nil, "", false, eris.Wrap(err, "blocklist: open file")
		}
		return f, "", true, nil
	}
}

func (s *Syncer) parse(ctx context.Context, format, source string, body io.Reader) ([]model.BlockedDomain, int, error) {
	switch format {
	case FormatXLSX:
		return parseXLSX(source, body)
	case FormatJSON:
		return parseJSON(ctx, source, body)
	default:
		return parseCSV(ctx, source, body)
	}
}

func parseCSV(ctx context.Context, source string, body io.Reader) ([]model.BlockedDomain, int, error) {
	rowCh, errCh := dataset.StreamCSV(ctx, body, dataset.CSVOptions{Comment: '#'})

	var entries []model.BlockedDomain
	skipped := 0
	now := time.Now().UTC()
	for row := range rowCh {
		if row.Line == 1 && isHeader(row.Fields) {
			continue
		}
		entry, ok := rowToEntry(row.Fields, source, now)
		if !ok {
			skipped++
			zap.L().Debug("blocklist: skipping row without usable domain",
				zap.String("source", source),
				zap.Int("line", row.Line),
			)
			continue
		}
		entries = append(entries, entry)
	}
	if err := <-errCh; err != nil {
		return nil, 0, eris.Wrap(err, "blocklist: parse csv")
	}
	return entries, skipped, nil
}

func parseXLSX(source string, body io.Reader) ([]model.BlockedDomain, int, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, 0, eris.Wrap(err, "blocklist: read xlsx")
	}
	rows, err := dataset.ReadXLSX(data, "")
	if err != nil {
		return nil, 0, eris.Wrap(err, "blocklist: parse xlsx")
	}

	var entries []model.BlockedDomain
	skipped := 0
	now := time.Now().UTC()
	for i, fields := range rows {
		if i == 0 && isHeader(fields) {
			continue
		}
		entry, ok := rowToEntry(fields, source, now)
		if !ok {
			skipped++
			continue
		}
		entries = append(entries, entry)
	}
	return entries, skipped, nil
}

// jsonRow is the element shape of a JSON-format list.
type jsonRow struct {
	Domain string `json:"domain"`
	Reason string `json:"reason"`
}

func parseJSON(ctx context.Context, source string, body io.Reader) ([]model.BlockedDomain, int, error) {
	outCh, errCh := dataset.DecodeJSONArray[jsonRow](ctx, body)

	var entries []model.BlockedDomain
	skipped := 0
	now := time.Now().UTC()
	for item := range outCh {
		entry, ok := rowToEntry([]string{item.Domain, item.Reason}, source, now)
		if !ok {
			skipped++
			continue
		}
		entries = append(entries, entry)
	}
	if err := <-errCh; err != nil {
		return nil, 0, eris.Wrap(err, "blocklist: parse json")
	}
	return entries, skipped, nil
}

func rowToEntry(fields []string, source string, now time.Time) (model.BlockedDomain, bool) {
	if len(fields) == 0 {
		return model.BlockedDomain{}, false
	}
	domain := NormalizeDomain(fields[0])
	if domain == "" {
		return model.BlockedDomain{}, false
	}
	reason := ""
	if len(fields) > 1 {
		reason = strings.TrimSpace(fields[1])
	}
	return model.BlockedDomain{
		Domain:  domain,
		Reason:  reason,
		Source:  source,
		AddedAt: now,
	}, true
}

// isHeader reports whether a first row is a column header rather than data.
func isHeader(fields []string) bool {
	return len(fields) > 0 && strings.EqualFold(strings.TrimSpace(fields[0]), "domain")
}

// NormalizeDomain reduces a raw list entry to a bare lowercase host:
// scheme, path, port, and a leading www. are stripped. It returns "" for
// entries that do not look like a domain.
func NormalizeDomain(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		raw = u.Host
	}
	if i := strings.IndexAny(raw, "/?#"); i >= 0 {
		raw = raw[:i]
	}
	if i := strings.LastIndex(raw, ":"); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.TrimPrefix(raw, "www.")
	raw = strings.TrimSuffix(raw, ".")

	if raw == "" || !strings.Contains(raw, ".") || strings.ContainsAny(raw, " \t") {
		return ""
	}
	return raw
}

// Exclusions builds the discovery exclusion set from the store's blocklist
// plus any extra domain lists (config, rules file).
func Exclusions(ctx context.Context, st store.Store, extra ...[]string) (*discover.Exclusions, error) {
	blocked, err := st.ListBlockedDomains(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "blocklist: list blocked domains")
	}
	domains := make([]string, 0, len(blocked))
	for _, b := range blocked {
		domains = append(domains, b.Domain)
	}
	lists := append([][]string{domains}, extra...)
	return discover.NewExclusions(lists...), nil
}

// detectFormat picks a parser from the source's file extension. Unknown
// extensions fall back to CSV, the dominant list format.
func detectFormat(source string) string {
	p := source
	if u, err := url.Parse(source); err == nil && u.Scheme != "" {
		p = u.Path
	}
	switch strings.ToLower(filepath.Ext(p)) {
	case ".xlsx":
		return FormatXLSX
	case ".json":
		return FormatJSON
	default:
		return FormatCSV
	}
}

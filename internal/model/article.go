package model

import "time"

// FetchStatus describes whether and why retrieval and extraction of a
// candidate URL succeeded.
type FetchStatus string

const (
	FetchOK           FetchStatus = "ok"
	FetchUnreachable  FetchStatus = "unreachable"
	FetchParseFailed  FetchStatus = "parse_failed"
	FetchEmptyContent FetchStatus = "empty_content"
)

// Article is the extracted content of one fetched candidate URL. Records are
// created by the fetch layer and immutable afterwards. BodyText is non-empty
// exactly when FetchStatus == FetchOK.
type Article struct {
	URL         string      `json:"url"`
	Title       string      `json:"title,omitempty"`
	BodyText    string      `json:"body_text,omitempty"`
	Authors     []string    `json:"authors,omitempty"`
	PublishedAt *time.Time  `json:"published_at,omitempty"`
	FetchStatus FetchStatus `json:"fetch_status"`
	Note        string      `json:"note,omitempty"`
}

// Fetched reports whether the article carries usable body text.
func (a Article) Fetched() bool {
	return a.FetchStatus == FetchOK
}

// FailedArticle builds a bodyless record for a candidate that could not be
// turned into article text.
func FailedArticle(url string, status FetchStatus, note string) Article {
	return Article{URL: url, FetchStatus: status, Note: note}
}

package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	// DefaultSourceCount is used when the caller does not specify one.
	DefaultSourceCount = 5
	// MaxSourceCount caps a single check; search providers rarely return more
	// distinct usable results for one query anyway.
	MaxSourceCount = 20
)

// CheckRequest is the single entry point payload: one claim, a desired source
// count, and whether each source should be verified against the claim.
type CheckRequest struct {
	Claim  string `json:"claim"`
	Count  int    `json:"count"`
	Verify bool   `json:"verify"`
}

// Validate rejects requests the pipeline cannot act on.
func (r CheckRequest) Validate() error {
	if strings.TrimSpace(r.Claim) == "" {
		return eris.New("model: claim must not be empty")
	}
	return nil
}

// Normalized returns a copy with the claim trimmed and the count clamped to
// [1, MaxSourceCount], defaulting when unset.
func (r CheckRequest) Normalized() CheckRequest {
	out := r
	out.Claim = strings.TrimSpace(r.Claim)
	if out.Count <= 0 {
		out.Count = DefaultSourceCount
	}
	if out.Count > MaxSourceCount {
		out.Count = MaxSourceCount
	}
	return out
}

// Candidate is one discovered source URL with its 0-based discovery rank.
// Rank order is relevance order and is preserved through the pipeline.
type Candidate struct {
	Rank int    `json:"rank"`
	URL  string `json:"url"`
}

// SourceResult is the per-candidate unit returned to callers: the fetched
// article plus its verdict, keyed by discovery rank. Failed fetches are
// included with their status, never dropped.
type SourceResult struct {
	Rank    int     `json:"rank"`
	Article Article `json:"article"`
	Verdict Verdict `json:"verdict"`
}

// ReportCounts summarizes a result set. Stance tallies only count verdicts
// with Status == VerifierOK.
type ReportCounts struct {
	Fetched      int `json:"fetched"`
	Unreachable  int `json:"unreachable"`
	ParseFailed  int `json:"parse_failed"`
	EmptyContent int `json:"empty_content"`
	Supports     int `json:"supports"`
	Refutes      int `json:"refutes"`
	Unrelated    int `json:"unrelated"`
	Inconclusive int `json:"inconclusive"`
}

// TallyCounts aggregates fetch and stance outcomes across results.
func TallyCounts(results []SourceResult) ReportCounts {
	var c ReportCounts
	for _, r := range results {
		switch r.Article.FetchStatus {
		case FetchOK:
			c.Fetched++
		case FetchUnreachable:
			c.Unreachable++
		case FetchParseFailed:
			c.ParseFailed++
		case FetchEmptyContent:
			c.EmptyContent++
		}
		if r.Verdict.Status != VerifierOK {
			continue
		}
		switch r.Verdict.Stance {
		case StanceSupports:
			c.Supports++
		case StanceRefutes:
			c.Refutes++
		case StanceUnrelated:
			c.Unrelated++
		case StanceInconclusive:
			c.Inconclusive++
		}
	}
	return c
}

// CheckReport is the full outcome of one pipeline invocation.
type CheckReport struct {
	Claim     string         `json:"claim"`
	Requested int            `json:"requested"`
	Verified  bool           `json:"verified"`
	Results   []SourceResult `json:"results"`
	Counts    ReportCounts   `json:"counts"`
	Phases    []PhaseResult  `json:"phases,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	Duration  int64          `json:"duration_ms"`
}

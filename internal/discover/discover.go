// Package discover turns a claim into a ranked, deduplicated list of
// candidate source URLs using a pluggable search provider.
package discover

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/claimsift/claimsift/internal/model"
)

// Hit is a single raw search result from a provider.
type Hit struct {
	Title   string
	URL     string
	Snippet string
}

// Provider runs one search query and returns results in engine ranking order.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
	Name() string
}

// DiscoveryError reports a total provider failure: no ranking was produced
// at all. Post-search filtering that leaves zero candidates is not an error.
type DiscoveryError struct {
	Provider string
	Err      error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover: provider %s failed: %v", e.Provider, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// Options tunes a Discoverer.
type Options struct {
	// OverRequestFactor multiplies the requested count when querying the
	// provider, so that filtering still leaves enough candidates.
	OverRequestFactor int
	// Timeout bounds one whole discovery call. Zero means no extra bound
	// beyond the caller's context.
	Timeout   time.Duration
	Normalize NormalizeOptions
}

// Discoverer finds candidate source URLs for a claim.
type Discoverer struct {
	provider Provider
	exclude  *Exclusions
	opts     Options
}

// New creates a Discoverer. A nil exclusions set blocks nothing.
func New(provider Provider, exclude *Exclusions, opts Options) *Discoverer {
	if opts.OverRequestFactor < 1 {
		opts.OverRequestFactor = 2
	}
	if exclude == nil {
		exclude = NewExclusions()
	}
	return &Discoverer{
		provider: provider,
		exclude:  exclude,
		opts:     opts,
	}
}

// Discover returns up to count candidates for the claim, in provider ranking
// order. URLs are normalized before deduplication; the first occurrence wins.
// Non-HTTP(S) links and excluded domains are dropped. The returned slice may
// be shorter than count — including empty — without that being an error.
func (d *Discoverer) Discover(ctx context.Context, claim string, count int) ([]model.Candidate, error) {
	claim = strings.TrimSpace(claim)
	if claim == "" {
		return nil, eris.New("discover: empty claim")
	}
	if count <= 0 {
		count = model.DefaultSourceCount
	}
	if count > model.MaxSourceCount {
		count = model.MaxSourceCount
	}

	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	hits, err := d.provider.Search(ctx, claim, count*d.opts.OverRequestFactor)
	if err != nil {
		return nil, &DiscoveryError{Provider: d.provider.Name(), Err: err}
	}

	seen := make(map[string]struct{}, len(hits))
	candidates := make([]model.Candidate, 0, count)
	var skippedScheme, skippedDupe, skippedBlocked int

	for _, hit := range hits {
		if len(candidates) == count {
			break
		}
		norm, host, ok := Normalize(hit.URL, d.opts.Normalize)
		if !ok {
			skippedScheme++
			continue
		}
		if _, dup := seen[norm]; dup {
			skippedDupe++
			continue
		}
		seen[norm] = struct{}{}
		if d.exclude.Blocked(host) {
			skippedBlocked++
			continue
		}
		candidates = append(candidates, model.Candidate{Rank: len(candidates), URL: norm})
	}

	zap.L().Info("discovery complete",
		zap.String("provider", d.provider.Name()),
		zap.Int("requested", count),
		zap.Int("provider_hits", len(hits)),
		zap.Int("kept", len(candidates)),
		zap.Int("skipped_scheme", skippedScheme),
		zap.Int("skipped_duplicate", skippedDupe),
		zap.Int("skipped_blocked", skippedBlocked),
	)

	return candidates, nil
}

// Package monitoring collects pipeline health metrics and raises webhook
// alerts when failure rates or queue depth cross configured thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/claimsift/claimsift/internal/model"
	"github.com/claimsift/claimsift/internal/store"
)

// collectRunLimit caps how many runs one snapshot considers.
const collectRunLimit = 10000

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Run outcomes within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsQueued   int     `json:"runs_queued"`
	RunsRunning  int     `json:"runs_running"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Source fetch outcomes summed over reports in the window.
	SourcesFetched int `json:"sources_fetched"`
	SourcesFailed  int `json:"sources_failed"`

	// Stance tallies summed over reports in the window.
	Supports     int `json:"supports"`
	Refutes      int `json:"refutes"`
	Unrelated    int `json:"unrelated"`
	Inconclusive int `json:"inconclusive"`

	// Oracle health over verdicts in the window. Skipped verdicts are not
	// attempts.
	OracleAttempts  int     `json:"oracle_attempts"`
	OracleErrors    int     `json:"oracle_errors"`
	OracleErrorRate float64 `json:"oracle_error_rate"`

	// Queue and blocklist state, not windowed.
	DLQDepth       int `json:"dlq_depth"`
	BlockedDomains int `json:"blocked_domains"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of pipeline health over the given lookback
// window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		CreatedAfter: cutoff,
		Limit:        collectRunLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusQueued:
			snap.RunsQueued++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}

		if r.Report == nil {
			continue
		}
		counts := r.Report.Counts
		snap.SourcesFetched += counts.Fetched
		snap.SourcesFailed += counts.Unreachable + counts.ParseFailed + counts.EmptyContent
		snap.Supports += counts.Supports
		snap.Refutes += counts.Refutes
		snap.Unrelated += counts.Unrelated
		snap.Inconclusive += counts.Inconclusive

		for _, res := range r.Report.Results {
			switch res.Verdict.Status {
			case model.VerifierOK:
				snap.OracleAttempts++
			case model.VerifierOracleError, model.VerifierUnavailable:
				snap.OracleAttempts++
				snap.OracleErrors++
			}
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.OracleAttempts > 0 {
		snap.OracleErrorRate = float64(snap.OracleErrors) / float64(snap.OracleAttempts)
	}

	dlqCount, err := c.store.CountDLQ(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count dlq")
	}
	snap.DLQDepth = dlqCount

	blocked, err := c.store.CountBlockedDomains(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count blocked domains")
	}
	snap.BlockedDomains = blocked

	return snap, nil
}

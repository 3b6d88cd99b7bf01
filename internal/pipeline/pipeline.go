// Package pipeline orchestrates a claim check: discover candidate sources,
// fetch their articles in parallel, verify each article against the claim,
// and assemble a report in discovery order.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/claimsift/claimsift/internal/model"
	"github.com/claimsift/claimsift/internal/store"
)

// Stage names used in phase tracking and PipelineError.
const (
	StageDiscover = "discover"
	StageFetch    = "fetch"
	StageVerify   = "verify"
	StageAssemble = "assemble"
)

const (
	defaultFetchConcurrency  = 5
	defaultVerifyConcurrency = 3

	// dlqRetryDelay is how long a failed run waits before it becomes
	// eligible for a retry attempt. The delay doubles per failed retry,
	// capped at maxDLQRetryDelay.
	dlqRetryDelay    = 15 * time.Minute
	maxDLQRetryDelay = 6 * time.Hour
)

// Discoverer finds ranked candidate sources for a claim.
type Discoverer interface {
	Discover(ctx context.Context, claim string, count int) ([]model.Candidate, error)
}

// Fetcher retrieves one article. It is total: failures are encoded in the
// article's FetchStatus, never returned.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) model.Article
}

// Verifier classifies an article's stance toward a claim. It is total:
// failures are encoded in the verdict's Status, never returned.
type Verifier interface {
	Verify(ctx context.Context, claim, articleText string) model.Verdict
}

// PipelineError marks which stage sank a whole run. Only discovery is
// fatal; fetch and verify failures degrade individual sources instead.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Options tunes pipeline fan-out and optional persistence.
type Options struct {
	FetchConcurrency  int
	VerifyConcurrency int
	// Store, when set, records each run and queues failed ones for retry.
	// Store trouble is logged and never fails a check.
	Store store.Store
}

// Pipeline runs claim checks. It is safe for concurrent use; a Run carries
// no state across invocations.
type Pipeline struct {
	discoverer Discoverer
	fetcher    Fetcher
	verifier   Verifier
	store      store.Store

	fetchConcurrency  int
	verifyConcurrency int
}

// New creates a Pipeline. All three components must be non-nil; the store
// in opts may be nil to disable persistence.
func New(d Discoverer, f Fetcher, v Verifier, opts Options) *Pipeline {
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = defaultFetchConcurrency
	}
	if opts.VerifyConcurrency <= 0 {
		opts.VerifyConcurrency = defaultVerifyConcurrency
	}
	return &Pipeline{
		discoverer:        d,
		fetcher:           f,
		verifier:          v,
		store:             opts.Store,
		fetchConcurrency:  opts.FetchConcurrency,
		verifyConcurrency: opts.VerifyConcurrency,
	}
}

// Run executes one full check. Discovery failure aborts the run with a
// *PipelineError; from then on every candidate produces a result no matter
// how its fetch or verification went, so the report always has exactly one
// entry per discovered source.
func (p *Pipeline) Run(ctx context.Context, req model.CheckRequest) (*model.CheckReport, error) {
	if err := req.Validate(); err != nil {
		return nil, eris.Wrap(err, "pipeline: invalid request")
	}
	req = req.Normalized()

	var runID string
	if p.store != nil {
		if run, err := p.store.CreateRun(ctx, req); err != nil {
			zap.L().Warn("pipeline: failed to create run",
				zap.String("claim", req.Claim),
				zap.Error(err),
			)
		} else {
			runID = run.ID
		}
	}
	return p.run(ctx, runID, req, true)
}

// RunTracked executes a check against a run row the caller already created,
// for callers that must hand out the run ID before the work starts (the
// HTTP API). The request is validated and normalized the same way Run does.
func (p *Pipeline) RunTracked(ctx context.Context, runID string, req model.CheckRequest) (*model.CheckReport, error) {
	if err := req.Validate(); err != nil {
		return nil, eris.Wrap(err, "pipeline: invalid request")
	}
	return p.run(ctx, runID, req.Normalized(), true)
}

// RetryDLQ re-executes a dead-lettered request as a fresh run. On success
// the entry is removed from the queue; on failure its retry counter advances
// with a doubled delay instead of a second entry being queued.
func (p *Pipeline) RetryDLQ(ctx context.Context, entry model.DLQEntry) (*model.CheckReport, error) {
	if p.store == nil {
		return nil, eris.New("pipeline: retry requires a store")
	}

	req := entry.Request.Normalized()
	if err := req.Validate(); err != nil {
		// A request that can never validate will never succeed either;
		// drop it rather than retry forever.
		if delErr := p.store.DeleteDLQ(ctx, entry.ID); delErr != nil {
			zap.L().Warn("pipeline: failed to drop invalid dlq entry",
				zap.String("dlq_id", entry.ID),
				zap.Error(delErr),
			)
		}
		return nil, eris.Wrap(err, "pipeline: invalid dead-lettered request")
	}

	var runID string
	if run, err := p.store.CreateRun(ctx, req); err != nil {
		zap.L().Warn("pipeline: failed to create retry run",
			zap.String("dlq_id", entry.ID),
			zap.Error(err),
		)
	} else {
		runID = run.ID
	}

	report, err := p.run(ctx, runID, req, false)
	if err != nil {
		next := time.Now().UTC().Add(retryDelay(entry.RetryCount + 1))
		if bumpErr := p.store.BumpDLQRetry(ctx, entry.ID, next, err.Error()); bumpErr != nil {
			zap.L().Warn("pipeline: failed to bump dlq entry",
				zap.String("dlq_id", entry.ID),
				zap.Error(bumpErr),
			)
		}
		return nil, err
	}

	if delErr := p.store.DeleteDLQ(ctx, entry.ID); delErr != nil {
		zap.L().Warn("pipeline: failed to delete dlq entry",
			zap.String("dlq_id", entry.ID),
			zap.Error(delErr),
		)
	}
	return report, nil
}

// retryDelay doubles the base delay once per prior attempt.
func retryDelay(attempt int) time.Duration {
	d := dlqRetryDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDLQRetryDelay {
			return maxDLQRetryDelay
		}
	}
	return d
}

func (p *Pipeline) run(ctx context.Context, runID string, req model.CheckRequest, enqueue bool) (*model.CheckReport, error) {
	log := zap.L().With(zap.String("claim", req.Claim))
	if runID != "" {
		log = log.With(zap.String("run_id", runID))
	}
	log.Info("pipeline: starting check",
		zap.Int("count", req.Count),
		zap.Bool("verify", req.Verify),
	)

	started := time.Now()
	report := &model.CheckReport{
		Claim:     req.Claim,
		Requested: req.Count,
		Verified:  req.Verify,
		StartedAt: started.UTC(),
	}

	setStatus := func(status model.RunStatus, errMsg string) {
		if runID == "" || p.store == nil {
			return
		}
		if statusErr := p.store.UpdateRunStatus(ctx, runID, status, errMsg); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}

	// Phase tracking helper. Stages run one after another; each lands in
	// the report with its duration and outcome.
	trackPhase := func(name string, fn func() (*model.PhaseResult, error)) *model.PhaseResult {
		start := time.Now()
		phaseResult, fnErr := fn()
		duration := time.Since(start).Milliseconds()

		if phaseResult == nil {
			phaseResult = &model.PhaseResult{}
		}
		phaseResult.Name = name
		phaseResult.Duration = duration

		if fnErr != nil {
			phaseResult.Status = model.PhaseStatusFailed
			phaseResult.Error = fnErr.Error()
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		} else if phaseResult.Status == "" {
			phaseResult.Status = model.PhaseStatusComplete
			log.Info("pipeline: phase complete",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
			)
		}

		report.Phases = append(report.Phases, *phaseResult)
		return phaseResult
	}

	setStatus(model.RunStatusRunning, "")

	// ===== Discover =====
	var candidates []model.Candidate
	var discoverErr error
	trackPhase(StageDiscover, func() (*model.PhaseResult, error) {
		candidates, discoverErr = p.discoverer.Discover(ctx, req.Claim, req.Count)
		return nil, discoverErr
	})
	if discoverErr != nil {
		perr := &PipelineError{Stage: StageDiscover, Err: discoverErr}
		setStatus(model.RunStatusFailed, perr.Error())
		if enqueue {
			p.enqueueFailure(ctx, log, req, perr)
		}
		return nil, perr
	}
	log.Info("pipeline: discovered sources", zap.Int("candidates", len(candidates)))

	// ===== Fetch all =====
	articles := make([]model.Article, len(candidates))
	trackPhase(StageFetch, func() (*model.PhaseResult, error) {
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(p.fetchConcurrency)
		for i, cand := range candidates {
			g.Go(func() error {
				articles[i] = p.fetcher.Fetch(gCtx, cand.URL)
				return nil
			})
		}
		// Fetches never return errors; a canceled context surfaces as
		// per-article fetch statuses instead.
		_ = g.Wait()
		return nil, nil
	})

	// ===== Verify all =====
	verdicts := make([]model.Verdict, len(candidates))
	if req.Verify {
		trackPhase(StageVerify, func() (*model.PhaseResult, error) {
			g, gCtx := errgroup.WithContext(ctx)
			g.SetLimit(p.verifyConcurrency)
			for i := range candidates {
				if articles[i].FetchStatus != model.FetchOK {
					verdicts[i] = model.SkippedVerdict()
					continue
				}
				g.Go(func() error {
					verdicts[i] = p.verifier.Verify(gCtx, req.Claim, articles[i].BodyText)
					return nil
				})
			}
			_ = g.Wait()
			return nil, nil
		})
	} else {
		for i := range verdicts {
			verdicts[i] = model.SkippedVerdict()
		}
		trackPhase(StageVerify, func() (*model.PhaseResult, error) {
			return &model.PhaseResult{Status: model.PhaseStatusSkipped}, nil
		})
	}

	// ===== Assemble =====
	trackPhase(StageAssemble, func() (*model.PhaseResult, error) {
		results := make([]model.SourceResult, len(candidates))
		for i, cand := range candidates {
			results[i] = model.SourceResult{
				Rank:    cand.Rank,
				Article: articles[i],
				Verdict: verdicts[i],
			}
		}
		report.Results = results
		report.Counts = model.TallyCounts(results)
		return nil, nil
	})

	report.Duration = time.Since(started).Milliseconds()

	if runID != "" && p.store != nil {
		if err := p.store.UpdateRunResult(ctx, runID, report); err != nil {
			log.Warn("pipeline: failed to save run result", zap.Error(err))
		}
	}

	log.Info("pipeline: check complete",
		zap.Int("results", len(report.Results)),
		zap.Int("fetched", report.Counts.Fetched),
		zap.Int64("duration_ms", report.Duration),
	)
	return report, nil
}

// enqueueFailure queues a fatally failed request for a later retry when a
// store is attached.
func (p *Pipeline) enqueueFailure(ctx context.Context, log *zap.Logger, req model.CheckRequest, perr *PipelineError) {
	if p.store == nil {
		return
	}
	entry, err := p.store.EnqueueDLQ(ctx, model.DLQEntry{
		Request:     req,
		Error:       perr.Error(),
		Stage:       perr.Stage,
		NextRetryAt: time.Now().UTC().Add(dlqRetryDelay),
	})
	if err != nil {
		log.Warn("pipeline: failed to queue retry", zap.Error(err))
		return
	}
	log.Info("pipeline: queued for retry", zap.String("dlq_id", entry.ID))
}

package model

import "time"

// RunStatus represents the current state of a stored check run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is the persisted envelope of one check invocation.
type Run struct {
	ID        string       `json:"id"`
	Request   CheckRequest `json:"request"`
	Status    RunStatus    `json:"status"`
	Report    *CheckReport `json:"report,omitempty"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// PhaseStatus represents the state of one pipeline stage.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult records the outcome and duration of one pipeline stage.
type PhaseResult struct {
	Name     string      `json:"name"`
	Status   PhaseStatus `json:"status"`
	Duration int64       `json:"duration_ms"`
	Error    string      `json:"error,omitempty"`
}

// BlockedDomain is one entry of the discovery exclusion list.
type BlockedDomain struct {
	Domain  string    `json:"domain"`
	Reason  string    `json:"reason,omitempty"`
	Source  string    `json:"source,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

// DLQEntry represents a failed check run that can be retried later.
type DLQEntry struct {
	ID           string       `json:"id"`
	Request      CheckRequest `json:"request"`
	Error        string       `json:"error"`
	Stage        string       `json:"stage,omitempty"`
	RetryCount   int          `json:"retry_count"`
	MaxRetries   int          `json:"max_retries"`
	NextRetryAt  time.Time    `json:"next_retry_at"`
	CreatedAt    time.Time    `json:"created_at"`
	LastFailedAt time.Time    `json:"last_failed_at"`
}

// CanRetry returns true if this entry has not exceeded its max retry count.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// Due returns true if the entry is eligible for a retry attempt at now.
func (e *DLQEntry) Due(now time.Time) bool {
	return e.CanRetry() && !now.Before(e.NextRetryAt)
}

package types

import "time"

// RunStatus is the aggregate status of an extraction run.
type RunStatus string

const (
	RunPending            RunStatus = "pending"
	RunRunning            RunStatus = "running"
	RunCompleted          RunStatus = "completed"
	RunPartiallyCompleted RunStatus = "partially_completed"
	RunFailed             RunStatus = "failed"
	RunCancelled          RunStatus = "cancelled"
)

// Terminal reports whether the run status is final.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunPartiallyCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// RunConfig is the configuration snapshot captured when a run starts.
type RunConfig struct {
	PromptVersion   string        `json:"prompt_version"`
	MaxPagesPerCall int           `json:"max_pages_per_call"`
	MaxRetries      int           `json:"max_retries"`
	CallTimeout     time.Duration `json:"call_timeout"`
}

// Run is one end-to-end extraction attempt over an entire document.
// A document may accumulate runs over time; at most one may be running.
type Run struct {
	ID              string     `json:"id"`
	DocumentID      string     `json:"document_id"`
	Config          RunConfig  `json:"config"`
	Status          RunStatus  `json:"status"`
	CancelRequested bool       `json:"cancel_requested"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// AttemptStatus tracks a single extraction attempt for a segment.
type AttemptStatus string

const (
	AttemptPending         AttemptStatus = "pending"
	AttemptInFlight        AttemptStatus = "in_flight"
	AttemptSucceeded       AttemptStatus = "succeeded"
	AttemptFailedTransient AttemptStatus = "failed_transient"
	AttemptFailedPermanent AttemptStatus = "failed_permanent"
)

// Terminal reports whether this attempt status ends the segment's
// processing within the run. FailedTransient is not terminal: the retry
// policy decides whether a follow-up attempt is scheduled.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptSucceeded || s == AttemptFailedPermanent
}

// Attempt is one execution of a segment's extraction call within a run.
// Attempts are append-only: retries create a new attempt rather than
// mutating the previous one, preserving the audit trail.
type Attempt struct {
	ID         string        `json:"id"`
	RunID      string        `json:"run_id"`
	SegmentID  string        `json:"segment_id"`
	Index      int           `json:"index"` // 0-based attempt number
	Status     AttemptStatus `json:"status"`
	ErrorKind  string        `json:"error_kind,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`

	// Heartbeat is refreshed while the attempt is in flight so a restarted
	// orchestrator can distinguish live attempts from abandoned ones.
	Heartbeat time.Time `json:"heartbeat"`
}

// SegmentSnapshot pairs a segment with its current attempt state.
type SegmentSnapshot struct {
	Segment      Segment       `json:"segment"`
	Status       AttemptStatus `json:"status"`
	AttemptCount int           `json:"attempt_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// RunSnapshot is a point-in-time view of a run and its segments.
type RunSnapshot struct {
	Run      Run               `json:"run"`
	Segments []SegmentSnapshot `json:"segments"`
}

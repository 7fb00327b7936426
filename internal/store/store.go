// Package store persists documents, runs, segments, attempts, and voters.
// It is the single source of truth: no component holds authoritative state
// in memory across a restart. Two implementations exist: an embedded
// sqlite store for production and a memory store for unit tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rollscan/rollscan/internal/types"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRunConflict is returned by CreateRun when the document already
	// has an active run.
	ErrRunConflict = errors.New("document already has a running extraction run")
)

// Metrics summarizes stored extraction activity.
type Metrics struct {
	TotalDocuments int `json:"total_documents"`
	TotalRuns      int `json:"total_runs"`
	CompletedRuns  int `json:"completed_runs"`
	PartialRuns    int `json:"partial_runs"`
	FailedRuns     int `json:"failed_runs"`
	TotalVoters    int `json:"total_voters"`
	TotalSegments  int `json:"total_segments"`
	FailedSegments int `json:"failed_segments"`
}

// Store is the repository interface the extraction core reads and writes
// through. Every mutation is atomic; CreateRun and UpsertVoters carry the
// uniqueness invariants (one active run per document, one voter row per
// (run, segment, fingerprint)).
type Store interface {
	// Documents.
	CreateDocument(ctx context.Context, doc *types.Document) error
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	ListDocuments(ctx context.Context) ([]types.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status types.DocumentStatus) error
	SetDocumentHeader(ctx context.Context, id string, header *types.DocumentHeader) error

	// Runs and segments. CreateRun persists the run and its segments in
	// one transaction and fails with ErrRunConflict if the document
	// already has a run in a non-terminal status.
	CreateRun(ctx context.Context, run *types.Run, segments []types.Segment) error
	GetRun(ctx context.Context, runID string) (*types.Run, error)
	ListRuns(ctx context.Context, documentID string) ([]types.Run, error)
	GetSegments(ctx context.Context, runID string) ([]types.Segment, error)

	// UpdateRunStatus transitions a run's aggregate status. Terminal
	// statuses never regress: updating a terminal run is a no-op.
	UpdateRunStatus(ctx context.Context, runID string, status types.RunStatus, finishedAt *time.Time) error

	// RequestCancel flags the run; the orchestrator resolves it to
	// Cancelled once in-flight attempts drain.
	RequestCancel(ctx context.Context, runID string) error

	// Attempts are append-only; retries create new rows.
	CreateAttempt(ctx context.Context, attempt *types.Attempt) error
	UpdateAttempt(ctx context.Context, attempt *types.Attempt) error
	HeartbeatAttempt(ctx context.Context, attemptID string, at time.Time) error

	// CurrentAttempts returns the latest attempt per segment of the run.
	CurrentAttempts(ctx context.Context, runID string) ([]types.Attempt, error)
	AttemptCount(ctx context.Context, runID, segmentID string) (int, error)

	// GetRunSnapshot returns the run with per-segment attempt state.
	GetRunSnapshot(ctx context.Context, runID string) (*types.RunSnapshot, error)

	// Voters. UpsertVoters is idempotent: rows whose
	// (run, segment, fingerprint) already exist are skipped, and the
	// count of newly inserted rows is returned.
	UpsertVoters(ctx context.Context, voters []types.Voter) (int, error)
	ListVoters(ctx context.Context, documentID string) ([]types.Voter, error)
	SegmentVoters(ctx context.Context, runID, segmentID string) ([]types.Voter, error)

	// Locations are reference data: seeded externally, looked up by the
	// aggregator by normalized name.
	SeedLocations(ctx context.Context, locations []types.Location) error
	LookupLocation(ctx context.Context, normalizedName string) (*types.Location, error)

	Metrics(ctx context.Context) (*Metrics, error)

	Close() error
}

// Package aggregator merges extracted voter records into the store. Merges
// are idempotent so a retried attempt whose predecessor partially landed
// never produces duplicate rows, and records double-reported across a
// segment boundary are collapsed to the first segment that saw them.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rollscan/rollscan/internal/store"
	"github.com/rollscan/rollscan/internal/types"
)

// Aggregator validates, normalizes, and persists extraction output.
type Aggregator struct {
	store  store.Store
	logger *slog.Logger
}

// New creates an Aggregator backed by the given store.
func New(st store.Store, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{store: st, logger: logger}
}

// MergeResult summarizes one merge call.
type MergeResult struct {
	Inserted    int `json:"inserted"`
	Duplicates  int `json:"duplicates"`
	Boundary    int `json:"boundary"`
	NeedsReview int `json:"needs_review"`
	Skipped     int `json:"skipped"`
}

// Merge persists the records produced by one attempt on one segment.
// Records without a name are dropped. Records already produced by the
// previous segment on the shared boundary page are dropped (first segment
// wins). Replaying the same records is a no-op.
func (a *Aggregator) Merge(ctx context.Context, run *types.Run, segment types.Segment, attemptID string, records []types.RawVoterRecord) (*MergeResult, error) {
	result := &MergeResult{}

	boundary, err := a.boundaryFingerprints(ctx, run.ID, segment)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]int) // fingerprint -> index into voters
	var voters []types.Voter
	for _, rec := range records {
		if strings.TrimSpace(rec.Name) == "" {
			result.Skipped++
			continue
		}

		fp := Fingerprint(rec)
		if _, ok := boundary[fp]; ok && onFirstPage(rec, segment) {
			result.Boundary++
			continue
		}

		voter := a.buildVoter(ctx, run, segment, attemptID, rec, fp)
		if voter.NeedsReview {
			result.NeedsReview++
		}
		if i, ok := seen[fp]; ok {
			// The model occasionally emits the same printed row twice in
			// one response. Keep whichever copy carries more fields.
			if completeness(voter) > completeness(voters[i]) {
				voters[i] = voter
			}
			result.Duplicates++
			continue
		}
		seen[fp] = len(voters)
		voters = append(voters, voter)
	}

	inserted, err := a.store.UpsertVoters(ctx, voters)
	if err != nil {
		return nil, fmt.Errorf("persisting %d voters for segment %s: %w", len(voters), segment.ID, err)
	}
	result.Inserted = inserted
	result.Duplicates += len(voters) - inserted

	a.logger.Debug("merged segment records",
		"run_id", run.ID,
		"segment", segment.Index,
		"records", len(records),
		"inserted", result.Inserted,
		"boundary_dropped", result.Boundary,
		"needs_review", result.NeedsReview)
	return result, nil
}

// boundaryFingerprints returns the fingerprints the previous segment
// already produced on or near the shared page boundary.
func (a *Aggregator) boundaryFingerprints(ctx context.Context, runID string, segment types.Segment) (map[string]struct{}, error) {
	if segment.Index == 0 {
		return nil, nil
	}
	segments, err := a.store.GetSegments(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("loading segments for run %s: %w", runID, err)
	}
	var prev *types.Segment
	for i := range segments {
		if segments[i].Index == segment.Index-1 {
			prev = &segments[i]
			break
		}
	}
	if prev == nil {
		return nil, nil
	}
	voters, err := a.store.SegmentVoters(ctx, runID, prev.ID)
	if err != nil {
		return nil, fmt.Errorf("loading voters for segment %s: %w", prev.ID, err)
	}
	out := make(map[string]struct{})
	for _, v := range voters {
		// Only rows from the previous segment's final page can be
		// double-reported by this segment's call.
		if v.Page == 0 || v.Page >= prev.PageEnd-1 {
			out[v.Fingerprint] = struct{}{}
		}
	}
	return out, nil
}

// onFirstPage reports whether the record plausibly sits on the segment's
// leading boundary page. Records with no page annotation are treated as
// boundary candidates.
func onFirstPage(rec types.RawVoterRecord, segment types.Segment) bool {
	return rec.Page == 0 || rec.Page <= segment.PageStart
}

func (a *Aggregator) buildVoter(ctx context.Context, run *types.Run, segment types.Segment, attemptID string, rec types.RawVoterRecord, fp string) types.Voter {
	voter := types.Voter{
		ID:           uuid.New().String(),
		DocumentID:   segment.DocumentID,
		Name:         strings.TrimSpace(rec.Name),
		RelativeName: strings.TrimSpace(rec.RelativeName),
		RelationType: strings.TrimSpace(rec.RelationType),
		HouseNumber:  strings.TrimSpace(rec.HouseNumber),
		Gender:       strings.ToUpper(strings.TrimSpace(rec.Gender)),
		PhotoID:      strings.TrimSpace(rec.PhotoID),
		Fingerprint:  fp,
		RunID:        run.ID,
		SegmentID:    segment.ID,
		AttemptID:    attemptID,
		Page:         rec.Page,
		CreatedAt:    time.Now().UTC(),
	}
	if n, err := strconv.Atoi(strings.TrimSpace(rec.SerialNumber)); err == nil && n > 0 {
		voter.SerialNumber = n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(rec.Age)); err == nil && n > 0 {
		voter.Age = n
	}

	if name := store.NormalizeName(rec.LocationName); name != "" {
		loc, err := a.store.LookupLocation(ctx, name)
		switch {
		case err == nil:
			voter.LocationID = loc.ID
		case errors.Is(err, store.ErrNotFound):
			// Unmatched locations flag the row for review instead of
			// dropping it.
			voter.NeedsReview = true
		default:
			a.logger.Warn("location lookup failed", "name", name, "error", err)
			voter.NeedsReview = true
		}
	}
	return voter
}

// completeness counts the populated fields of a voter, used to pick the
// better of two rows claiming the same identity.
func completeness(v types.Voter) int {
	n := 0
	for _, s := range []string{v.Name, v.RelativeName, v.RelationType, v.HouseNumber, v.Gender, v.PhotoID} {
		if s != "" {
			n++
		}
	}
	if v.SerialNumber > 0 {
		n++
	}
	if v.Age > 0 {
		n++
	}
	return n
}

// DocumentVoters returns a document's voters with duplicate serial numbers
// collapsed: when two rows claim the same serial, the more complete row is
// kept. Rows without a serial number are always kept.
func (a *Aggregator) DocumentVoters(ctx context.Context, documentID string) ([]types.Voter, error) {
	voters, err := a.store.ListVoters(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing voters for document %s: %w", documentID, err)
	}

	bySerial := make(map[int]int) // serial -> index into out
	out := make([]types.Voter, 0, len(voters))
	for _, v := range voters {
		if v.SerialNumber == 0 {
			out = append(out, v)
			continue
		}
		if i, ok := bySerial[v.SerialNumber]; ok {
			if completeness(v) > completeness(out[i]) {
				out[i] = v
			}
			continue
		}
		bySerial[v.SerialNumber] = len(out)
		out = append(out, v)
	}
	return out, nil
}

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rollscan/rollscan/internal/types"
)

// Memory is an in-memory Store for unit tests. Safe for concurrent use.
type Memory struct {
	mu sync.RWMutex

	documents map[string]*types.Document
	runs      map[string]*types.Run
	segments  map[string][]types.Segment // run ID -> ordered segments
	attempts  map[string][]types.Attempt // run ID -> append-only attempts
	voters    map[string]types.Voter     // run|segment|fingerprint -> voter
	locations map[string]types.Location  // normalized name -> location
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{
		documents: make(map[string]*types.Document),
		runs:      make(map[string]*types.Run),
		segments:  make(map[string][]types.Segment),
		attempts:  make(map[string][]types.Attempt),
		voters:    make(map[string]types.Voter),
		locations: make(map[string]types.Location),
	}
}

func (m *Memory) CreateDocument(ctx context.Context, doc *types.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[doc.ID]; ok {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	cp := *doc
	m.documents[doc.ID] = &cp
	return nil
}

func (m *Memory) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m *Memory) ListDocuments(ctx context.Context) ([]types.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Document, 0, len(m.documents))
	for _, doc := range m.documents {
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateDocumentStatus(ctx context.Context, id string, status types.DocumentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return ErrNotFound
	}
	doc.Status = status
	return nil
}

func (m *Memory) SetDocumentHeader(ctx context.Context, id string, header *types.DocumentHeader) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return ErrNotFound
	}
	cp := *header
	doc.Header = &cp
	return nil
}

func (m *Memory) CreateRun(ctx context.Context, run *types.Run, segments []types.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[run.DocumentID]; !ok {
		return ErrNotFound
	}
	for _, existing := range m.runs {
		if existing.DocumentID == run.DocumentID && !existing.Status.Terminal() {
			return ErrRunConflict
		}
	}
	cp := *run
	m.runs[run.ID] = &cp
	segs := make([]types.Segment, len(segments))
	copy(segs, segments)
	m.segments[run.ID] = segs
	return nil
}

func (m *Memory) GetRun(ctx context.Context, runID string) (*types.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (m *Memory) ListRuns(ctx context.Context, documentID string) ([]types.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Run, 0)
	for _, run := range m.runs {
		if documentID == "" || run.DocumentID == documentID {
			out = append(out, *run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *Memory) GetSegments(ctx context.Context, runID string) ([]types.Segment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	segs, ok := m.segments[runID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]types.Segment, len(segs))
	copy(out, segs)
	return out, nil
}

func (m *Memory) UpdateRunStatus(ctx context.Context, runID string, status types.RunStatus, finishedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return ErrNotFound
	}
	if run.Status.Terminal() {
		return nil
	}
	run.Status = status
	if finishedAt != nil {
		t := *finishedAt
		run.FinishedAt = &t
	}
	return nil
}

func (m *Memory) RequestCancel(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return ErrNotFound
	}
	run.CancelRequested = true
	return nil
}

func (m *Memory) CreateAttempt(ctx context.Context, attempt *types.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[attempt.RunID]; !ok {
		return ErrNotFound
	}
	m.attempts[attempt.RunID] = append(m.attempts[attempt.RunID], *attempt)
	return nil
}

func (m *Memory) UpdateAttempt(ctx context.Context, attempt *types.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	attempts := m.attempts[attempt.RunID]
	for i := range attempts {
		if attempts[i].ID == attempt.ID {
			attempts[i] = *attempt
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) HeartbeatAttempt(ctx context.Context, attemptID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, attempts := range m.attempts {
		for i := range attempts {
			if attempts[i].ID == attemptID {
				attempts[i].Heartbeat = at
				return nil
			}
		}
	}
	return ErrNotFound
}

func (m *Memory) CurrentAttempts(ctx context.Context, runID string) ([]types.Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	latest := make(map[string]types.Attempt)
	for _, a := range m.attempts[runID] {
		if cur, ok := latest[a.SegmentID]; !ok || a.Index > cur.Index {
			latest[a.SegmentID] = a
		}
	}
	out := make([]types.Attempt, 0, len(latest))
	for _, a := range latest {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SegmentID < out[j].SegmentID })
	return out, nil
}

func (m *Memory) AttemptCount(ctx context.Context, runID, segmentID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, a := range m.attempts[runID] {
		if a.SegmentID == segmentID {
			count++
		}
	}
	return count, nil
}

func (m *Memory) GetRunSnapshot(ctx context.Context, runID string) (*types.RunSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}

	latest := make(map[string]types.Attempt)
	counts := make(map[string]int)
	for _, a := range m.attempts[runID] {
		counts[a.SegmentID]++
		if cur, ok := latest[a.SegmentID]; !ok || a.Index > cur.Index {
			latest[a.SegmentID] = a
		}
	}

	snapshot := &types.RunSnapshot{Run: *run}
	for _, seg := range m.segments[runID] {
		ss := types.SegmentSnapshot{
			Segment:      seg,
			Status:       types.AttemptPending,
			AttemptCount: counts[seg.ID],
		}
		if a, ok := latest[seg.ID]; ok {
			ss.Status = a.Status
			ss.LastError = a.Error
		}
		snapshot.Segments = append(snapshot.Segments, ss)
	}
	return snapshot, nil
}

func (m *Memory) UpsertVoters(ctx context.Context, voters []types.Voter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, v := range voters {
		key := v.RunID + "|" + v.SegmentID + "|" + v.Fingerprint
		if _, ok := m.voters[key]; ok {
			continue
		}
		m.voters[key] = v
		inserted++
	}
	return inserted, nil
}

func (m *Memory) ListVoters(ctx context.Context, documentID string) ([]types.Voter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Voter, 0)
	for _, v := range m.voters {
		if v.DocumentID == documentID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SerialNumber != out[j].SerialNumber {
			return out[i].SerialNumber < out[j].SerialNumber
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	return out, nil
}

func (m *Memory) SegmentVoters(ctx context.Context, runID, segmentID string) ([]types.Voter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Voter, 0)
	for _, v := range m.voters {
		if v.RunID == runID && v.SegmentID == segmentID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out, nil
}

func (m *Memory) SeedLocations(ctx context.Context, locations []types.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, loc := range locations {
		m.locations[NormalizeName(loc.Name)] = loc
	}
	return nil
}

func (m *Memory) LookupLocation(ctx context.Context, normalizedName string) (*types.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loc, ok := m.locations[normalizedName]
	if !ok {
		return nil, ErrNotFound
	}
	cp := loc
	return &cp, nil
}

func (m *Memory) Metrics(ctx context.Context) (*Metrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	metrics := &Metrics{
		TotalDocuments: len(m.documents),
		TotalRuns:      len(m.runs),
		TotalVoters:    len(m.voters),
	}
	for _, run := range m.runs {
		switch run.Status {
		case types.RunCompleted:
			metrics.CompletedRuns++
		case types.RunPartiallyCompleted:
			metrics.PartialRuns++
		case types.RunFailed:
			metrics.FailedRuns++
		}
	}
	for runID, segs := range m.segments {
		metrics.TotalSegments += len(segs)
		latest := make(map[string]types.Attempt)
		for _, a := range m.attempts[runID] {
			if cur, ok := latest[a.SegmentID]; !ok || a.Index > cur.Index {
				latest[a.SegmentID] = a
			}
		}
		for _, a := range latest {
			if a.Status == types.AttemptFailedPermanent {
				metrics.FailedSegments++
			}
		}
	}
	return metrics, nil
}

func (m *Memory) Close() error {
	return nil
}

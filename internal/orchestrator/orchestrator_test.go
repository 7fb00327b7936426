package orchestrator

import (
	"context"
	"errors"
	"math/rand"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rollscan/rollscan/internal/aggregator"
	"github.com/rollscan/rollscan/internal/extract"
	"github.com/rollscan/rollscan/internal/store"
	"github.com/rollscan/rollscan/internal/types"
)

func testOrchestrator(t *testing.T, mock extract.Extractor, cfg Config) (*Orchestrator, store.Store) {
	t.Helper()
	st := store.NewMemory()
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Millisecond
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 10 * time.Millisecond
	}
	if cfg.DefaultRun.MaxPagesPerCall == 0 {
		cfg.DefaultRun.MaxPagesPerCall = 10
	}
	if cfg.DefaultRun.CallTimeout == 0 {
		cfg.DefaultRun.CallTimeout = time.Second
	}
	o := New(st, mock, aggregator.New(st, nil), cfg, nil)
	t.Cleanup(o.Close)
	return o, st
}

func seedDocument(t *testing.T, st store.Store, pages int) *types.Document {
	t.Helper()
	doc := &types.Document{
		ID:         uuid.New().String(),
		SourcePath: "/tmp/roll.pdf",
		PageCount:  pages,
		Status:     types.DocumentSegmented,
		CreatedAt:  time.Now().UTC(),
	}
	if err := st.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	return doc
}

func record(name string, page int) types.RawVoterRecord {
	return types.RawVoterRecord{Name: name, Age: "30", Page: page}
}

func TestStartRun(t *testing.T) {
	ctx := context.Background()

	t.Run("completes when every segment succeeds", func(t *testing.T) {
		mock := extract.NewMock()
		mock.Script(0, 10, extract.Outcome{
			Records: []types.RawVoterRecord{record("Voter A", 1), record("Voter B", 2)},
			Header:  &types.DocumentHeader{State: "Bihar", PartNumber: 7},
		})
		mock.Script(10, 20, extract.Outcome{Records: []types.RawVoterRecord{record("Voter C", 12)}})
		mock.Script(20, 25, extract.Outcome{Records: []types.RawVoterRecord{record("Voter D", 21)}})

		o, st := testOrchestrator(t, mock, Config{Workers: 2})
		doc := seedDocument(t, st, 25)

		run, err := o.StartRun(ctx, doc.ID, types.RunConfig{})
		if err != nil {
			t.Fatalf("StartRun() error = %v", err)
		}
		o.Wait()

		got, _ := st.GetRun(ctx, run.ID)
		if got.Status != types.RunCompleted {
			t.Errorf("run status = %s, want completed", got.Status)
		}
		if got.FinishedAt == nil {
			t.Error("FinishedAt not set")
		}
		if mock.TotalCalls() != 3 {
			t.Errorf("extraction calls = %d, want 3", mock.TotalCalls())
		}

		voters, _ := st.ListVoters(ctx, doc.ID)
		if len(voters) != 4 {
			t.Errorf("voters = %d, want 4", len(voters))
		}

		gotDoc, _ := st.GetDocument(ctx, doc.ID)
		if gotDoc.Status != types.DocumentCompleted {
			t.Errorf("document status = %s, want completed", gotDoc.Status)
		}
		if gotDoc.Header == nil || gotDoc.Header.PartNumber != 7 {
			t.Errorf("document header = %+v, want part 7", gotDoc.Header)
		}
	})

	t.Run("rejects a second run while one is active", func(t *testing.T) {
		mock := extract.NewMock()
		mock.Latency = 50 * time.Millisecond
		o, st := testOrchestrator(t, mock, Config{Workers: 1})
		doc := seedDocument(t, st, 25)

		if _, err := o.StartRun(ctx, doc.ID, types.RunConfig{}); err != nil {
			t.Fatalf("StartRun() error = %v", err)
		}
		if _, err := o.StartRun(ctx, doc.ID, types.RunConfig{}); !errors.Is(err, store.ErrRunConflict) {
			t.Errorf("second StartRun() error = %v, want ErrRunConflict", err)
		}
		o.Wait()

		// After the first run resolves, a new run is allowed.
		if _, err := o.StartRun(ctx, doc.ID, types.RunConfig{}); err != nil {
			t.Errorf("StartRun() after completion error = %v", err)
		}
	})

	t.Run("unknown document", func(t *testing.T) {
		o, _ := testOrchestrator(t, extract.NewMock(), Config{})
		if _, err := o.StartRun(ctx, "missing", types.RunConfig{}); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("StartRun() error = %v, want ErrNotFound", err)
		}
	})
}

func TestRetryBehavior(t *testing.T) {
	ctx := context.Background()

	t.Run("rate limited twice then succeeds", func(t *testing.T) {
		mock := extract.NewMock()
		mock.Script(0, 10,
			extract.Outcome{Err: extract.RateLimited(errors.New("quota"), 0)},
			extract.Outcome{Err: extract.RateLimited(errors.New("quota"), 0)},
			extract.Outcome{Records: []types.RawVoterRecord{record("Voter A", 1)}},
		)

		o, st := testOrchestrator(t, mock, Config{Workers: 2, DefaultRun: types.RunConfig{MaxRetries: 3}})
		doc := seedDocument(t, st, 10)

		run, err := o.StartRun(ctx, doc.ID, types.RunConfig{})
		if err != nil {
			t.Fatalf("StartRun() error = %v", err)
		}
		o.Wait()

		got, _ := st.GetRun(ctx, run.ID)
		if got.Status != types.RunCompleted {
			t.Errorf("run status = %s, want completed", got.Status)
		}
		if calls := mock.Calls(0, 10); calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}

		snap, _ := st.GetRunSnapshot(ctx, run.ID)
		if snap.Segments[0].AttemptCount != 3 {
			t.Errorf("attempts = %d, want 3", snap.Segments[0].AttemptCount)
		}
	})

	t.Run("exhausted retries leave the run partially completed", func(t *testing.T) {
		mock := extract.NewMock()
		mock.Default = extract.Outcome{Records: []types.RawVoterRecord{record("Voter OK", 12)}}
		mock.Script(0, 10, extract.Outcome{Err: extract.Transient(errors.New("boom"))})

		o, st := testOrchestrator(t, mock, Config{Workers: 2, DefaultRun: types.RunConfig{MaxRetries: 1}})
		doc := seedDocument(t, st, 20)

		run, err := o.StartRun(ctx, doc.ID, types.RunConfig{})
		if err != nil {
			t.Fatalf("StartRun() error = %v", err)
		}
		o.Wait()

		got, _ := st.GetRun(ctx, run.ID)
		if got.Status != types.RunPartiallyCompleted {
			t.Errorf("run status = %s, want partially_completed", got.Status)
		}
		// MaxRetries=1 means at most 2 attempts for the failing segment.
		if calls := mock.Calls(0, 10); calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}

		gotDoc, _ := st.GetDocument(ctx, doc.ID)
		if gotDoc.Status != types.DocumentSegmented {
			t.Errorf("document status = %s, want segmented for re-run", gotDoc.Status)
		}
	})

	t.Run("permanent failures are never retried", func(t *testing.T) {
		mock := extract.NewMock()
		mock.Default = extract.Outcome{Records: []types.RawVoterRecord{record("Voter OK", 12)}}
		mock.Script(0, 10, extract.Outcome{Err: extract.Permanent(errors.New("schema mismatch"))})

		o, st := testOrchestrator(t, mock, Config{Workers: 2, DefaultRun: types.RunConfig{MaxRetries: 3}})
		doc := seedDocument(t, st, 20)

		run, _ := o.StartRun(ctx, doc.ID, types.RunConfig{})
		o.Wait()

		if calls := mock.Calls(0, 10); calls != 1 {
			t.Errorf("calls = %d, want 1 (no retry)", calls)
		}
		snap, _ := st.GetRunSnapshot(ctx, run.ID)
		if snap.Segments[0].Status != types.AttemptFailedPermanent {
			t.Errorf("segment status = %s, want failed_permanent", snap.Segments[0].Status)
		}
	})

	t.Run("all segments failing fails the run", func(t *testing.T) {
		mock := extract.NewMock()
		mock.Default = extract.Outcome{Err: extract.Permanent(errors.New("unreadable"))}

		o, st := testOrchestrator(t, mock, Config{Workers: 2})
		doc := seedDocument(t, st, 20)

		run, _ := o.StartRun(ctx, doc.ID, types.RunConfig{})
		o.Wait()

		got, _ := st.GetRun(ctx, run.ID)
		if got.Status != types.RunFailed {
			t.Errorf("run status = %s, want failed", got.Status)
		}
		gotDoc, _ := st.GetDocument(ctx, doc.ID)
		if gotDoc.Status != types.DocumentFailed {
			t.Errorf("document status = %s, want failed", gotDoc.Status)
		}
	})
}

func TestCancelRun(t *testing.T) {
	ctx := context.Background()

	t.Run("stops scheduling new attempts", func(t *testing.T) {
		mock := extract.NewMock()
		mock.Latency = 50 * time.Millisecond
		mock.Default = extract.Outcome{Records: []types.RawVoterRecord{record("Voter", 1)}}

		o, st := testOrchestrator(t, mock, Config{Workers: 1, DefaultRun: types.RunConfig{MaxPagesPerCall: 5}})
		doc := seedDocument(t, st, 40)

		run, err := o.StartRun(ctx, doc.ID, types.RunConfig{})
		if err != nil {
			t.Fatalf("StartRun() error = %v", err)
		}

		time.Sleep(20 * time.Millisecond)
		if err := o.CancelRun(ctx, run.ID); err != nil {
			t.Fatalf("CancelRun() error = %v", err)
		}
		o.Wait()

		got, _ := st.GetRun(ctx, run.ID)
		if got.Status != types.RunCancelled {
			t.Errorf("run status = %s, want cancelled", got.Status)
		}
		if !got.CancelRequested {
			t.Error("cancel request not persisted")
		}
		// With one worker and 8 segments, cancellation must have stopped
		// scheduling well before the document was exhausted.
		if mock.TotalCalls() >= 8 {
			t.Errorf("calls = %d, cancellation did not stop scheduling", mock.TotalCalls())
		}
	})

	t.Run("in-flight attempt drains and its result is recorded", func(t *testing.T) {
		mock := extract.NewMock()
		mock.Latency = 300 * time.Millisecond
		mock.Default = extract.Outcome{Records: []types.RawVoterRecord{record("Voter", 1)}}

		o, st := testOrchestrator(t, mock, Config{Workers: 1})
		doc := seedDocument(t, st, 10)

		run, err := o.StartRun(ctx, doc.ID, types.RunConfig{})
		if err != nil {
			t.Fatalf("StartRun() error = %v", err)
		}

		// Cancel while the only attempt is mid-call. The call must run to
		// completion; cancellation only gates new starts.
		time.Sleep(100 * time.Millisecond)
		if err := o.CancelRun(ctx, run.ID); err != nil {
			t.Fatalf("CancelRun() error = %v", err)
		}
		o.Wait()

		got, _ := st.GetRun(ctx, run.ID)
		if got.Status != types.RunCancelled {
			t.Errorf("run status = %s, want cancelled", got.Status)
		}
		snap, _ := st.GetRunSnapshot(ctx, run.ID)
		if snap.Segments[0].Status != types.AttemptSucceeded {
			t.Errorf("attempt status = %s, want succeeded", snap.Segments[0].Status)
		}
		voters, _ := st.ListVoters(ctx, doc.ID)
		if len(voters) != 1 {
			t.Errorf("voters = %d, want 1", len(voters))
		}
		if mock.TotalCalls() != 1 {
			t.Errorf("calls = %d, want 1", mock.TotalCalls())
		}
	})

	t.Run("releases a retry waiting out its backoff", func(t *testing.T) {
		mock := extract.NewMock()
		mock.Default = extract.Outcome{Err: extract.Transient(errors.New("flaky service"))}

		o, st := testOrchestrator(t, mock, Config{
			Workers:        1,
			RetryBaseDelay: 30 * time.Second,
			DefaultRun:     types.RunConfig{MaxRetries: 3},
		})
		doc := seedDocument(t, st, 10)

		run, err := o.StartRun(ctx, doc.ID, types.RunConfig{})
		if err != nil {
			t.Fatalf("StartRun() error = %v", err)
		}
		waitFor(t, func() bool {
			attempts, _ := st.CurrentAttempts(ctx, run.ID)
			return len(attempts) == 1 && attempts[0].Status == types.AttemptFailedTransient
		})

		// The segment's next attempt is parked behind a 30s backoff;
		// cancelling must resolve the run without waiting it out.
		start := time.Now()
		if err := o.CancelRun(ctx, run.ID); err != nil {
			t.Fatalf("CancelRun() error = %v", err)
		}
		o.Wait()
		if elapsed := time.Since(start); elapsed > 5*time.Second {
			t.Fatalf("run drained in %s, backoff held the cancellation", elapsed)
		}

		got, _ := st.GetRun(ctx, run.ID)
		if got.Status != types.RunCancelled {
			t.Errorf("run status = %s, want cancelled", got.Status)
		}
		if mock.TotalCalls() != 1 {
			t.Errorf("calls = %d, want 1 (no retry after cancel)", mock.TotalCalls())
		}
	})
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// attemptFailStore fails every attempt insert so the worker pool aborts
// with tasks still queued.
type attemptFailStore struct {
	store.Store
}

func (s *attemptFailStore) CreateAttempt(ctx context.Context, _ *types.Attempt) error {
	return errors.New("disk full")
}

func TestStoreFailureReleasesQueuedWork(t *testing.T) {
	ctx := context.Background()

	mock := extract.NewMock()
	mock.Default = extract.Outcome{Records: []types.RawVoterRecord{record("Voter", 1)}}

	st := &attemptFailStore{Store: store.NewMemory()}
	o := New(st, mock, aggregator.New(st, nil), Config{
		Workers:        1,
		RetryBaseDelay: time.Millisecond,
		DefaultRun:     types.RunConfig{MaxPagesPerCall: 5, CallTimeout: time.Second},
	}, nil)
	t.Cleanup(o.Close)
	doc := seedDocument(t, st, 20)

	before := runtime.NumGoroutine()
	run, err := o.StartRun(ctx, doc.ID, types.RunConfig{})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	o.Wait()

	// The pool aborted before any attempt resolved; the run stays in the
	// store for Resume.
	got, _ := st.GetRun(ctx, run.ID)
	if got.Status != types.RunRunning {
		t.Errorf("run status = %s, want running (resumable)", got.Status)
	}

	// Every queued task's token must be released once the pool aborts, or
	// the queue closer lingers for the life of the process.
	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines = %d, want back to %d after abort", runtime.NumGoroutine(), before)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRetryFailedSegments(t *testing.T) {
	ctx := context.Background()

	mock := extract.NewMock()
	mock.Default = extract.Outcome{Records: []types.RawVoterRecord{record("Voter OK", 12)}}
	mock.Script(0, 10,
		extract.Outcome{Err: extract.Permanent(errors.New("unreadable scan"))},
		extract.Outcome{Records: []types.RawVoterRecord{record("Voter Fixed", 1)}},
	)

	o, st := testOrchestrator(t, mock, Config{Workers: 2})
	doc := seedDocument(t, st, 20)

	first, err := o.StartRun(ctx, doc.ID, types.RunConfig{})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	o.Wait()

	got, _ := st.GetRun(ctx, first.ID)
	if got.Status != types.RunPartiallyCompleted {
		t.Fatalf("first run status = %s, want partially_completed", got.Status)
	}

	t.Run("rejects a non-terminal source run", func(t *testing.T) {
		slow := extract.NewMock()
		slow.Latency = 50 * time.Millisecond
		o2, st2 := testOrchestrator(t, slow, Config{Workers: 1})
		doc2 := seedDocument(t, st2, 10)
		run2, _ := o2.StartRun(ctx, doc2.ID, types.RunConfig{})
		if _, err := o2.RetryFailedSegments(ctx, run2.ID); !errors.Is(err, ErrRunNotTerminal) {
			t.Errorf("RetryFailedSegments() error = %v, want ErrRunNotTerminal", err)
		}
		o2.Wait()
	})

	retry, err := o.RetryFailedSegments(ctx, first.ID)
	if err != nil {
		t.Fatalf("RetryFailedSegments() error = %v", err)
	}

	segments, _ := st.GetSegments(ctx, retry.ID)
	if len(segments) != 1 {
		t.Fatalf("retry run segments = %d, want only the failed one", len(segments))
	}
	if segments[0].PageStart != 0 || segments[0].PageEnd != 10 {
		t.Errorf("retry segment covers [%d,%d), want [0,10)", segments[0].PageStart, segments[0].PageEnd)
	}
	o.Wait()

	got, _ = st.GetRun(ctx, retry.ID)
	if got.Status != types.RunCompleted {
		t.Errorf("retry run status = %s, want completed", got.Status)
	}

	if _, err := o.RetryFailedSegments(ctx, retry.ID); !errors.Is(err, ErrNoFailedSegments) {
		t.Errorf("RetryFailedSegments() on clean run error = %v, want ErrNoFailedSegments", err)
	}
}

func TestResume(t *testing.T) {
	ctx := context.Background()

	t.Run("reschedules segments with stale in-flight attempts", func(t *testing.T) {
		mock := extract.NewMock()
		mock.Default = extract.Outcome{Records: []types.RawVoterRecord{record("Voter", 1)}}
		o, st := testOrchestrator(t, mock, Config{Workers: 2, StaleAfter: time.Second})
		doc := seedDocument(t, st, 20)

		// State left behind by a crashed process: a running run with one
		// succeeded segment and one attempt stuck in flight.
		run := &types.Run{
			ID: "run-1", DocumentID: doc.ID,
			Config:    types.RunConfig{MaxPagesPerCall: 10, MaxRetries: 3, CallTimeout: time.Second, PromptVersion: "v1"},
			Status:    types.RunPending,
			StartedAt: time.Now().UTC().Add(-time.Hour),
		}
		segments := []types.Segment{
			{ID: "seg-0", DocumentID: doc.ID, RunID: run.ID, Index: 0, PageStart: 0, PageEnd: 10},
			{ID: "seg-1", DocumentID: doc.ID, RunID: run.ID, Index: 1, PageStart: 10, PageEnd: 20},
		}
		if err := st.CreateRun(ctx, run, segments); err != nil {
			t.Fatalf("CreateRun() error = %v", err)
		}
		if err := st.UpdateRunStatus(ctx, run.ID, types.RunRunning, nil); err != nil {
			t.Fatalf("UpdateRunStatus() error = %v", err)
		}
		stale := time.Now().UTC().Add(-time.Hour)
		done := stale.Add(time.Minute)
		for _, a := range []*types.Attempt{
			{ID: "a-0", RunID: run.ID, SegmentID: "seg-0", Index: 0, Status: types.AttemptSucceeded, StartedAt: stale, FinishedAt: &done, Heartbeat: done},
			{ID: "a-1", RunID: run.ID, SegmentID: "seg-1", Index: 0, Status: types.AttemptInFlight, StartedAt: stale, Heartbeat: stale},
		} {
			if err := st.CreateAttempt(ctx, a); err != nil {
				t.Fatalf("CreateAttempt() error = %v", err)
			}
		}

		if err := o.Resume(ctx); err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
		o.Wait()

		got, _ := st.GetRun(ctx, run.ID)
		if got.Status != types.RunCompleted {
			t.Errorf("run status = %s, want completed", got.Status)
		}
		// Only the abandoned segment is re-extracted.
		if mock.Calls(0, 10) != 0 || mock.Calls(10, 20) != 1 {
			t.Errorf("calls = [0,10):%d [10,20):%d, want 0 and 1",
				mock.Calls(0, 10), mock.Calls(10, 20))
		}

		count, _ := st.AttemptCount(ctx, run.ID, "seg-1")
		if count != 2 {
			t.Errorf("seg-1 attempts = %d, want 2 (abandoned + resumed)", count)
		}
	})

	t.Run("resolves cancel-requested runs without rescheduling", func(t *testing.T) {
		mock := extract.NewMock()
		o, st := testOrchestrator(t, mock, Config{Workers: 2})
		doc := seedDocument(t, st, 10)

		run := &types.Run{
			ID: "run-c", DocumentID: doc.ID,
			Config:          types.RunConfig{MaxPagesPerCall: 10, MaxRetries: 3},
			Status:          types.RunPending,
			CancelRequested: false,
			StartedAt:       time.Now().UTC(),
		}
		seg := types.Segment{ID: "seg-c", DocumentID: doc.ID, RunID: run.ID, Index: 0, PageStart: 0, PageEnd: 10}
		if err := st.CreateRun(ctx, run, []types.Segment{seg}); err != nil {
			t.Fatalf("CreateRun() error = %v", err)
		}
		if err := st.RequestCancel(ctx, run.ID); err != nil {
			t.Fatalf("RequestCancel() error = %v", err)
		}

		if err := o.Resume(ctx); err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
		o.Wait()

		got, _ := st.GetRun(ctx, run.ID)
		if got.Status != types.RunCancelled {
			t.Errorf("run status = %s, want cancelled", got.Status)
		}
		if mock.TotalCalls() != 0 {
			t.Errorf("calls = %d, want 0", mock.TotalCalls())
		}
	})
}

// concurrencyProbe wraps the mock to observe peak concurrent calls.
type concurrencyProbe struct {
	*extract.Mock

	mu      sync.Mutex
	current int
	peak    int
}

func (p *concurrencyProbe) Extract(ctx context.Context, req *extract.Request) (*extract.Result, error) {
	p.mu.Lock()
	p.current++
	if p.current > p.peak {
		p.peak = p.current
	}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.current--
		p.mu.Unlock()
	}()
	return p.Mock.Extract(ctx, req)
}

func TestWorkerBound(t *testing.T) {
	mock := extract.NewMock()
	mock.Latency = 20 * time.Millisecond
	mock.Default = extract.Outcome{Records: []types.RawVoterRecord{record("Voter", 1)}}
	probe := &concurrencyProbe{Mock: mock}

	o, st := testOrchestrator(t, probe, Config{Workers: 2, DefaultRun: types.RunConfig{MaxPagesPerCall: 5}})
	doc := seedDocument(t, st, 40)

	if _, err := o.StartRun(context.Background(), doc.ID, types.RunConfig{}); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	o.Wait()

	if probe.peak > 2 {
		t.Errorf("peak concurrent calls = %d, want <= 2", probe.peak)
	}
	if probe.TotalCalls() != 8 {
		t.Errorf("calls = %d, want 8", probe.TotalCalls())
	}
}

func TestDeriveRunStatus(t *testing.T) {
	cases := []struct {
		name      string
		cancelled bool
		outcomes  []SegmentOutcome
		want      types.RunStatus
	}{
		{"all succeeded", false, []SegmentOutcome{OutcomeSucceeded, OutcomeSucceeded}, types.RunCompleted},
		{"all failed", false, []SegmentOutcome{OutcomeFailed, OutcomeFailed}, types.RunFailed},
		{"mixed", false, []SegmentOutcome{OutcomeSucceeded, OutcomeFailed}, types.RunPartiallyCompleted},
		{"pending dominates", false, []SegmentOutcome{OutcomeSucceeded, OutcomePending, OutcomeFailed}, types.RunRunning},
		{"cancel wins", true, []SegmentOutcome{OutcomeSucceeded, OutcomeSucceeded}, types.RunCancelled},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := DeriveRunStatus(c.cancelled, c.outcomes); got != c.want {
				t.Errorf("DeriveRunStatus() = %s, want %s", got, c.want)
			}
		})
	}

	t.Run("random outcome combinations", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		all := []SegmentOutcome{OutcomePending, OutcomeSucceeded, OutcomeFailed}
		for i := 0; i < 500; i++ {
			n := 1 + rng.Intn(12)
			outcomes := make([]SegmentOutcome, n)
			pending, succeeded, failed := 0, 0, 0
			for j := range outcomes {
				outcomes[j] = all[rng.Intn(len(all))]
				switch outcomes[j] {
				case OutcomePending:
					pending++
				case OutcomeSucceeded:
					succeeded++
				case OutcomeFailed:
					failed++
				}
			}
			got := DeriveRunStatus(false, outcomes)
			var want types.RunStatus
			switch {
			case pending > 0:
				want = types.RunRunning
			case failed == 0:
				want = types.RunCompleted
			case succeeded == 0:
				want = types.RunFailed
			default:
				want = types.RunPartiallyCompleted
			}
			if got != want {
				t.Fatalf("outcomes %v: got %s, want %s", outcomes, got, want)
			}
		}
	})
}

func TestOutcomeOf(t *testing.T) {
	snap := func(status types.AttemptStatus, attempts int) types.SegmentSnapshot {
		return types.SegmentSnapshot{Status: status, AttemptCount: attempts}
	}
	cases := []struct {
		name string
		ss   types.SegmentSnapshot
		max  int
		want SegmentOutcome
	}{
		{"succeeded", snap(types.AttemptSucceeded, 1), 3, OutcomeSucceeded},
		{"permanent failure", snap(types.AttemptFailedPermanent, 1), 3, OutcomeFailed},
		{"transient with budget left", snap(types.AttemptFailedTransient, 2), 3, OutcomePending},
		{"transient budget spent", snap(types.AttemptFailedTransient, 4), 3, OutcomeFailed},
		{"untouched", snap(types.AttemptPending, 0), 3, OutcomePending},
		{"in flight", snap(types.AttemptInFlight, 1), 3, OutcomePending},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := outcomeOf(c.ss, c.max); got != c.want {
				t.Errorf("outcomeOf() = %s, want %s", got, c.want)
			}
		})
	}
}

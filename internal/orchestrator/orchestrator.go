// Package orchestrator schedules segment extraction calls under bounded
// concurrency, drives the retry policy, and resolves run status. All
// authoritative state lives in the store so a restarted process can resume
// interrupted runs.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rollscan/rollscan/internal/aggregator"
	"github.com/rollscan/rollscan/internal/extract"
	"github.com/rollscan/rollscan/internal/retrypolicy"
	"github.com/rollscan/rollscan/internal/segmenter"
	"github.com/rollscan/rollscan/internal/store"
	"github.com/rollscan/rollscan/internal/types"
)

var (
	// ErrRunNotTerminal is returned when a targeted retry is requested for
	// a run that is still in progress.
	ErrRunNotTerminal = errors.New("run has not finished")

	// ErrNoFailedSegments is returned when a targeted retry finds nothing
	// to redo.
	ErrNoFailedSegments = errors.New("run has no failed segments")
)

// Config tunes the orchestrator.
type Config struct {
	// Workers bounds concurrent extraction calls (default: 4).
	Workers int
	// HeartbeatInterval is how often in-flight attempts refresh their
	// heartbeat (default: 15s).
	HeartbeatInterval time.Duration
	// StaleAfter is the heartbeat age past which an in-flight attempt is
	// considered abandoned during resume (default: 90s).
	StaleAfter time.Duration

	// RetryBaseDelay and RetryMaxDelay shape the backoff between attempts
	// (defaults: 2s base, 2m cap).
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// DefaultRun fills unset fields of a run's configuration.
	DefaultRun types.RunConfig
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 90 * time.Second
	}
	if c.DefaultRun.MaxPagesPerCall <= 0 {
		c.DefaultRun.MaxPagesPerCall = 8
	}
	if c.DefaultRun.MaxRetries <= 0 {
		c.DefaultRun.MaxRetries = 3
	}
	if c.DefaultRun.CallTimeout <= 0 {
		c.DefaultRun.CallTimeout = 5 * time.Minute
	}
	if c.DefaultRun.PromptVersion == "" {
		c.DefaultRun.PromptVersion = "v1"
	}
	return c
}

// Orchestrator runs extraction runs to completion.
type Orchestrator struct {
	store     store.Store
	extractor extract.Extractor
	agg       *aggregator.Aggregator
	limiter   *extract.RateLimiter
	logger    *slog.Logger
	cfg       Config

	// callCtx parents every adapter call. It deliberately survives run
	// cancellation: an attempt already in flight runs to completion and
	// its result is recorded. Only Close ends it.
	callCtx  context.Context
	callStop context.CancelFunc

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// New creates an orchestrator. The rate limiter is sized to the
// extractor's advertised quota.
func New(st store.Store, ex extract.Extractor, agg *aggregator.Aggregator, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	callCtx, callStop := context.WithCancel(context.Background())
	return &Orchestrator{
		store:     st,
		extractor: ex,
		agg:       agg,
		limiter:   extract.NewRateLimiter(ex.RequestsPerMinute()),
		logger:    logger,
		cfg:       cfg.withDefaults(),
		callCtx:   callCtx,
		callStop:  callStop,
		active:    make(map[string]context.CancelFunc),
	}
}

// task is one scheduled extraction call for a segment.
type task struct {
	segment      types.Segment
	attemptIndex int
}

// StartRun segments the document and begins extraction. It fails with
// store.ErrRunConflict when the document already has an active run.
func (o *Orchestrator) StartRun(ctx context.Context, documentID string, overrides types.RunConfig) (*types.Run, error) {
	doc, err := o.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	cfg := o.runConfig(overrides)
	run := &types.Run{
		ID:         uuid.New().String(),
		DocumentID: doc.ID,
		Config:     cfg,
		Status:     types.RunPending,
		StartedAt:  time.Now().UTC(),
	}

	segments, err := segmenter.Build(doc.ID, doc.PageCount, segmenter.Config{MaxPagesPerCall: cfg.MaxPagesPerCall})
	if err != nil {
		return nil, fmt.Errorf("segmenting document %s: %w", doc.ID, err)
	}
	for i := range segments {
		segments[i].RunID = run.ID
	}

	if err := o.store.CreateRun(ctx, run, segments); err != nil {
		return nil, err
	}
	if err := o.store.UpdateDocumentStatus(ctx, doc.ID, types.DocumentProcessing); err != nil {
		return nil, err
	}

	o.logger.Info("run started",
		"run_id", run.ID,
		"document_id", doc.ID,
		"pages", doc.PageCount,
		"segments", len(segments))

	tasks := make([]task, len(segments))
	for i, seg := range segments {
		tasks[i] = task{segment: seg}
	}
	o.launch(run, doc, tasks)
	return run, nil
}

// runConfig merges overrides over the configured defaults.
func (o *Orchestrator) runConfig(overrides types.RunConfig) types.RunConfig {
	cfg := o.cfg.DefaultRun
	if overrides.MaxPagesPerCall > 0 {
		cfg.MaxPagesPerCall = overrides.MaxPagesPerCall
	}
	if overrides.MaxRetries > 0 {
		cfg.MaxRetries = overrides.MaxRetries
	}
	if overrides.CallTimeout > 0 {
		cfg.CallTimeout = overrides.CallTimeout
	}
	if overrides.PromptVersion != "" {
		cfg.PromptVersion = overrides.PromptVersion
	}
	return cfg
}

// CancelRun requests cooperative cancellation: no new attempts start, and
// the run resolves to cancelled once in-flight attempts drain.
func (o *Orchestrator) CancelRun(ctx context.Context, runID string) error {
	if err := o.store.RequestCancel(ctx, runID); err != nil {
		return err
	}
	o.mu.Lock()
	cancel, ok := o.active[runID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	o.logger.Info("run cancel requested", "run_id", runID)
	return nil
}

// GetRunStatus returns the run with per-segment attempt state.
func (o *Orchestrator) GetRunStatus(ctx context.Context, runID string) (*types.RunSnapshot, error) {
	return o.store.GetRunSnapshot(ctx, runID)
}

// RetryFailedSegments creates a new run covering only the pages of the
// given run's failed segments. The source run must be terminal.
func (o *Orchestrator) RetryFailedSegments(ctx context.Context, runID string) (*types.Run, error) {
	snap, err := o.store.GetRunSnapshot(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !snap.Run.Status.Terminal() {
		return nil, ErrRunNotTerminal
	}

	var failed []types.Segment
	for _, ss := range snap.Segments {
		if outcomeOf(ss, snap.Run.Config.MaxRetries) == OutcomeFailed {
			failed = append(failed, ss.Segment)
		}
	}
	if len(failed) == 0 {
		return nil, ErrNoFailedSegments
	}

	doc, err := o.store.GetDocument(ctx, snap.Run.DocumentID)
	if err != nil {
		return nil, err
	}

	run := &types.Run{
		ID:         uuid.New().String(),
		DocumentID: doc.ID,
		Config:     snap.Run.Config,
		Status:     types.RunPending,
		StartedAt:  time.Now().UTC(),
	}
	segments := make([]types.Segment, len(failed))
	for i, seg := range failed {
		segments[i] = types.Segment{
			ID:            uuid.New().String(),
			DocumentID:    doc.ID,
			RunID:         run.ID,
			Index:         i,
			PageStart:     seg.PageStart,
			PageEnd:       seg.PageEnd,
			HeaderContext: seg.HeaderContext,
		}
	}

	if err := o.store.CreateRun(ctx, run, segments); err != nil {
		return nil, err
	}
	if err := o.store.UpdateDocumentStatus(ctx, doc.ID, types.DocumentProcessing); err != nil {
		return nil, err
	}

	o.logger.Info("retrying failed segments",
		"source_run_id", runID,
		"run_id", run.ID,
		"segments", len(segments))

	tasks := make([]task, len(segments))
	for i, seg := range segments {
		tasks[i] = task{segment: seg}
	}
	o.launch(run, doc, tasks)
	return run, nil
}

// Resume picks up runs left non-terminal by a previous process. Attempts
// abandoned in flight (stale heartbeat) are marked as transient failures
// and their segments rescheduled.
func (o *Orchestrator) Resume(ctx context.Context) error {
	runs, err := o.store.ListRuns(ctx, "")
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	now := time.Now().UTC()
	for i := range runs {
		run := runs[i]
		if run.Status.Terminal() {
			continue
		}

		current, err := o.store.CurrentAttempts(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("loading attempts for run %s: %w", run.ID, err)
		}
		for _, a := range current {
			if a.Status != types.AttemptInFlight {
				continue
			}
			if now.Sub(a.Heartbeat) < o.cfg.StaleAfter {
				continue
			}
			a.Status = types.AttemptFailedTransient
			a.ErrorKind = string(extract.KindTransient)
			a.Error = "attempt abandoned by process restart"
			finished := now
			a.FinishedAt = &finished
			if err := o.store.UpdateAttempt(ctx, &a); err != nil {
				return fmt.Errorf("failing stale attempt %s: %w", a.ID, err)
			}
		}

		if run.CancelRequested {
			finished := now
			if err := o.store.UpdateRunStatus(ctx, run.ID, types.RunCancelled, &finished); err != nil {
				return err
			}
			o.logger.Info("resumed run resolved as cancelled", "run_id", run.ID)
			continue
		}

		tasks, err := o.unfinishedTasks(ctx, run)
		if err != nil {
			return err
		}
		doc, err := o.store.GetDocument(ctx, run.DocumentID)
		if err != nil {
			return err
		}

		o.logger.Info("resuming run", "run_id", run.ID, "unfinished_segments", len(tasks))
		o.launch(&run, doc, tasks)
	}
	return nil
}

// unfinishedTasks returns tasks for segments whose outcome is still
// pending, with attempt indexes continuing where the previous process
// stopped.
func (o *Orchestrator) unfinishedTasks(ctx context.Context, run types.Run) ([]task, error) {
	snap, err := o.store.GetRunSnapshot(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	var tasks []task
	for _, ss := range snap.Segments {
		if outcomeOf(ss, run.Config.MaxRetries) != OutcomePending {
			continue
		}
		tasks = append(tasks, task{segment: ss.Segment, attemptIndex: ss.AttemptCount})
	}
	return tasks, nil
}

// Close cancels all active runs, aborts in-flight adapter calls, and
// waits for the workers to drain.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	for _, cancel := range o.active {
		cancel()
	}
	o.mu.Unlock()
	o.callStop()
	o.wg.Wait()
}

// Wait blocks until all active runs finish. Test helper and shutdown aid.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// launch starts the run's worker pool in the background.
func (o *Orchestrator) launch(run *types.Run, doc *types.Document, tasks []task) {
	runCtx, cancel := context.WithCancel(context.Background())

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel()
		return
	}
	o.active[run.ID] = cancel
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.active, run.ID)
			o.mu.Unlock()
			cancel()
		}()
		if err := o.execute(runCtx, run, doc, tasks); err != nil {
			o.logger.Error("run execution failed", "run_id", run.ID, "error", err)
		}
	}()
}

// execute drives the run's tasks through the worker pool until every
// segment resolves, then records the aggregate status.
func (o *Orchestrator) execute(runCtx context.Context, run *types.Run, doc *types.Document, tasks []task) error {
	// Status writes use the background context so a cancelled run can
	// still persist its resolution.
	ctx := context.Background()

	if err := o.store.UpdateRunStatus(ctx, run.ID, types.RunRunning, nil); err != nil {
		return err
	}

	if len(tasks) > 0 {
		// One outstanding token per segment; a retry re-enqueues its own
		// token, so the buffer never overflows and enqueues never block.
		queue := make(chan task, len(tasks))
		var pending sync.WaitGroup
		for _, tk := range tasks {
			pending.Add(1)
			queue <- tk
		}
		go func() {
			pending.Wait()
			close(queue)
		}()

		g, workerCtx := errgroup.WithContext(ctx)
		for w := 0; w < o.cfg.Workers; w++ {
			g.Go(func() error {
				for {
					select {
					case tk, ok := <-queue:
						if !ok {
							return nil
						}
						if err := o.processTask(runCtx, ctx, run, doc, tk, queue, &pending); err != nil {
							pending.Done()
							return err
						}
					case <-workerCtx.Done():
						// A sibling worker hit a store failure; abort
						// instead of waiting out retry timers.
						return nil
					}
				}
			})
		}
		if err := g.Wait(); err != nil {
			// Workers aborted on a store failure with tasks still queued.
			// Their tokens are released here; retry timers release theirs
			// once the run context ends on return. The run stays in the
			// store for Resume.
			go func() {
				for range queue {
					pending.Done()
				}
			}()
			return fmt.Errorf("run %s worker pool: %w", run.ID, err)
		}
	}

	return o.finalize(ctx, run)
}

// processTask runs one extraction attempt. It owns the task's pending
// token: the token is released here unless a retry was scheduled, in which
// case the retry timer carries it. Returned errors are store failures that
// abort the run.
func (o *Orchestrator) processTask(runCtx, ctx context.Context, run *types.Run, doc *types.Document, tk task, queue chan<- task, pending *sync.WaitGroup) error {
	// Cancelled runs stop scheduling; the token resolves unworked.
	select {
	case <-runCtx.Done():
		pending.Done()
		return nil
	default:
	}

	if err := o.limiter.Wait(runCtx); err != nil {
		pending.Done()
		return nil
	}

	now := time.Now().UTC()
	attempt := &types.Attempt{
		ID:        uuid.New().String(),
		RunID:     run.ID,
		SegmentID: tk.segment.ID,
		Index:     tk.attemptIndex,
		Status:    types.AttemptInFlight,
		StartedAt: now,
		Heartbeat: now,
	}
	if err := o.store.CreateAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("recording attempt for segment %s: %w", tk.segment.ID, err)
	}

	stopBeat := o.heartbeat(ctx, attempt.ID)
	result, extractErr := o.extractSegment(run, doc, tk.segment)
	stopBeat()

	finished := time.Now().UTC()
	attempt.FinishedAt = &finished
	attempt.Heartbeat = finished

	if extractErr == nil {
		merge, err := o.agg.Merge(ctx, run, tk.segment, attempt.ID, result.Records)
		if err != nil {
			// A merge failure is a persistence problem, not a model
			// problem; surface it as a transient attempt failure.
			extractErr = extract.Transient(err)
		} else {
			if tk.segment.PageStart == 0 && result.Header != nil {
				if err := o.store.SetDocumentHeader(ctx, doc.ID, result.Header); err != nil {
					return fmt.Errorf("saving header for document %s: %w", doc.ID, err)
				}
			}
			attempt.Status = types.AttemptSucceeded
			if err := o.store.UpdateAttempt(ctx, attempt); err != nil {
				return fmt.Errorf("completing attempt %s: %w", attempt.ID, err)
			}
			o.logger.Debug("segment extracted",
				"run_id", run.ID,
				"segment", tk.segment.Index,
				"attempt", tk.attemptIndex,
				"records", len(result.Records),
				"inserted", merge.Inserted)
			pending.Done()
			return nil
		}
	}

	kind := extract.Classify(extractErr)
	if kind == extract.KindRateLimited {
		o.limiter.RecordRateLimit()
	}

	attempt.ErrorKind = string(kind)
	attempt.Error = extractErr.Error()
	if kind == extract.KindPermanent {
		attempt.Status = types.AttemptFailedPermanent
	} else {
		attempt.Status = types.AttemptFailedTransient
	}
	if err := o.store.UpdateAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("recording failed attempt %s: %w", attempt.ID, err)
	}

	policy := retrypolicy.New(retrypolicy.Config{
		MaxRetries: run.Config.MaxRetries,
		BaseDelay:  o.cfg.RetryBaseDelay,
		MaxDelay:   o.cfg.RetryMaxDelay,
	})
	decision := policy.Decide(tk.attemptIndex, kind, extract.RetryAfterHint(extractErr))
	if !decision.Retry {
		o.logger.Warn("segment gave up",
			"run_id", run.ID,
			"segment", tk.segment.Index,
			"attempts", tk.attemptIndex+1,
			"error_kind", string(kind),
			"error", extractErr.Error())
		pending.Done()
		return nil
	}

	o.logger.Debug("segment retry scheduled",
		"run_id", run.ID,
		"segment", tk.segment.Index,
		"attempt", tk.attemptIndex,
		"after", decision.After,
		"error_kind", string(kind))

	// The timer inherits the pending token; the re-enqueued task releases
	// it. The queue stays open while any token is held, so the send cannot
	// hit a closed channel. A run cancelled during the backoff releases
	// the token right away instead of waiting out the delay.
	next := task{segment: tk.segment, attemptIndex: tk.attemptIndex + 1}
	timer := time.NewTimer(decision.After)
	go func() {
		defer timer.Stop()
		select {
		case <-timer.C:
			queue <- next
		case <-runCtx.Done():
			pending.Done()
		}
	}()
	return nil
}

// heartbeat refreshes the attempt's liveness marker until stopped.
func (o *Orchestrator) heartbeat(ctx context.Context, attemptID string) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(o.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := o.store.HeartbeatAttempt(ctx, attemptID, time.Now().UTC()); err != nil {
					o.logger.Warn("heartbeat failed", "attempt_id", attemptID, "error", err)
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// extractSegment runs the adapter call. Run cancellation does not reach
// the call: cancellation only gates new attempt starts, so a call that is
// already in flight finishes under its own timeout.
func (o *Orchestrator) extractSegment(run *types.Run, doc *types.Document, seg types.Segment) (*extract.Result, error) {
	callCtx, cancel := context.WithTimeout(o.callCtx, run.Config.CallTimeout)
	defer cancel()

	return o.extractor.Extract(callCtx, &extract.Request{
		SourcePath:    doc.SourcePath,
		PageStart:     seg.PageStart,
		PageEnd:       seg.PageEnd,
		IncludeHeader: seg.PageStart == 0,
		HeaderContext: seg.HeaderContext,
		PromptVersion: run.Config.PromptVersion,
		Timeout:       run.Config.CallTimeout,
	})
}

// finalize derives and persists the run's terminal status and rolls the
// document status forward.
func (o *Orchestrator) finalize(ctx context.Context, run *types.Run) error {
	current, err := o.store.GetRun(ctx, run.ID)
	if err != nil {
		return err
	}
	snap, err := o.store.GetRunSnapshot(ctx, run.ID)
	if err != nil {
		return err
	}

	outcomes := make([]SegmentOutcome, len(snap.Segments))
	for i, ss := range snap.Segments {
		outcomes[i] = outcomeOf(ss, run.Config.MaxRetries)
	}
	status := DeriveRunStatus(current.CancelRequested, outcomes)
	if status == types.RunRunning {
		// Unworked segments with no cancel request only happen when the
		// orchestrator is shutting down; leave the run for Resume.
		o.logger.Info("run left for resume", "run_id", run.ID)
		return nil
	}

	finished := time.Now().UTC()
	if err := o.store.UpdateRunStatus(ctx, run.ID, status, &finished); err != nil {
		return err
	}

	docStatus := types.DocumentSegmented
	switch status {
	case types.RunCompleted:
		docStatus = types.DocumentCompleted
	case types.RunFailed:
		docStatus = types.DocumentFailed
	}
	if err := o.store.UpdateDocumentStatus(ctx, run.DocumentID, docStatus); err != nil {
		return err
	}

	o.logger.Info("run finished",
		"run_id", run.ID,
		"status", string(status),
		"segments", len(snap.Segments))
	return nil
}

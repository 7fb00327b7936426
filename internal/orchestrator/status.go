package orchestrator

import (
	"github.com/rollscan/rollscan/internal/types"
)

// SegmentOutcome is a segment's resolution within a run, after the retry
// policy has had its say.
type SegmentOutcome string

const (
	OutcomePending   SegmentOutcome = "pending"
	OutcomeSucceeded SegmentOutcome = "succeeded"
	OutcomeFailed    SegmentOutcome = "failed"
)

// outcomeOf resolves a segment snapshot to an outcome. A transient failure
// counts as failed once the attempt budget (maxRetries+1) is spent.
func outcomeOf(ss types.SegmentSnapshot, maxRetries int) SegmentOutcome {
	switch ss.Status {
	case types.AttemptSucceeded:
		return OutcomeSucceeded
	case types.AttemptFailedPermanent:
		return OutcomeFailed
	case types.AttemptFailedTransient:
		if ss.AttemptCount > maxRetries {
			return OutcomeFailed
		}
	}
	return OutcomePending
}

// DeriveRunStatus folds segment outcomes into the run's aggregate status.
// The run status is a pure function of its inputs: completed only when
// every segment succeeded, failed only when every segment failed, and
// partially completed for any mix once no segment remains pending.
func DeriveRunStatus(cancelRequested bool, outcomes []SegmentOutcome) types.RunStatus {
	if cancelRequested {
		return types.RunCancelled
	}
	if len(outcomes) == 0 {
		return types.RunCompleted
	}

	succeeded, failed := 0, 0
	for _, o := range outcomes {
		switch o {
		case OutcomePending:
			return types.RunRunning
		case OutcomeSucceeded:
			succeeded++
		case OutcomeFailed:
			failed++
		}
	}
	switch {
	case failed == 0:
		return types.RunCompleted
	case succeeded == 0:
		return types.RunFailed
	default:
		return types.RunPartiallyCompleted
	}
}

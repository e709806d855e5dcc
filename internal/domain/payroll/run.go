package payroll

import "fmt"

// Transition moves the run from the expected status to the next one.
func Transition(run *PayrollRun, from, to RunStatus) error {
	if run.Status != from {
		return fmt.Errorf("%w: run %s expected %s, got %s", ErrInvalidTransition, run.ID, from, run.Status)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("%w: run %s %s -> %s", ErrInvalidTransition, run.ID, from, to)
	}
	run.Status = to
	return nil
}

func isAllowedTransition(from, to RunStatus) bool {
	switch from {
	case RunStatusDraft:
		return to == RunStatusPendingApproval || to == RunStatusCancelled
	case RunStatusPendingApproval:
		return to == RunStatusApproved || to == RunStatusDraft || to == RunStatusCancelled
	case RunStatusApproved:
		return to == RunStatusProcessing || to == RunStatusCancelled
	case RunStatusProcessing:
		return to == RunStatusCompleted || to == RunStatusCompletedWithErrors || to == RunStatusFailed
	case RunStatusCompleted, RunStatusCompletedWithErrors, RunStatusFailed:
		return to == RunStatusReversed
	default:
		return false
	}
}

// IsTerminal reports whether a run accepts no further transitions.
func IsTerminal(s RunStatus) bool {
	return s == RunStatusCancelled || s == RunStatusReversed
}

// Cancellable reports whether a bare cancel is still safe. Once processing
// starts only a compensating reversal may undo the run.
func Cancellable(s RunStatus) bool {
	return isAllowedTransition(s, RunStatusCancelled)
}

// CanTransition reports whether a paycheck may move from one status to
// another.
func CanTransition(from, to PaycheckStatus) bool {
	switch from {
	case PaycheckCalculated:
		return to == PaycheckCommitted || to == PaycheckError
	case PaycheckNeedsReview:
		return to == PaycheckExcluded || to == PaycheckCalculated || to == PaycheckNeedsReview || to == PaycheckError
	case PaycheckError:
		return to == PaycheckExcluded
	case PaycheckCommitted:
		return to == PaycheckReversed
	default:
		return false
	}
}

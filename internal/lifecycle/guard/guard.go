package guard

import (
	"github.com/smallbiznis/franchisefund/internal/apperror"
	franchisedomain "github.com/smallbiznis/franchisefund/internal/franchise/domain"
)

var (
	ErrUnknownStage     = apperror.Validation("unknown_stage", "unknown franchise stage")
	ErrStageRegression  = apperror.InvalidState("stage_regression", "franchise stage cannot move backwards")
	ErrStageUnchanged   = apperror.InvalidState("stage_unchanged", "franchise is already in the requested stage")
	ErrStageTerminal    = apperror.InvalidState("stage_terminal", "franchise is closed")
	ErrStageSkipped     = apperror.InvalidState("stage_skipped", "franchise stage cannot skip ahead")
	ErrStageNotExpected = apperror.InvalidState("stage_not_expected", "franchise is not in the expected stage")
)

// EnsureCanTransition accepts the next stage in order, and closed from any
// non-terminal stage.
func EnsureCanTransition(from, to franchisedomain.Stage) error {
	if !from.Valid() || !to.Valid() {
		return ErrUnknownStage
	}
	if from == franchisedomain.StageClosed {
		return ErrStageTerminal
	}
	if from == to {
		return ErrStageUnchanged
	}
	if to.Rank() < from.Rank() {
		return ErrStageRegression.WithMessage("franchise stage cannot move from %s back to %s", from, to)
	}
	if to == franchisedomain.StageClosed {
		return nil
	}
	if to.Rank() != from.Rank()+1 {
		return ErrStageSkipped.WithMessage("franchise stage cannot move from %s to %s", from, to)
	}
	return nil
}

// EnsureStage requires the franchise to be exactly in want.
func EnsureStage(current, want franchisedomain.Stage) error {
	if current != want {
		return ErrStageNotExpected.WithMessage("franchise is %s, expected %s", current, want)
	}
	return nil
}

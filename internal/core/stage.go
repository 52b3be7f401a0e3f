package core

import "fmt"

// Stage represents the current step of a deliberation session.
type Stage string

const (
	// StagePending is the initial state of a freshly created session.
	StagePending Stage = "pending"

	// StageOpinions is the first stage where every agent answers the query.
	StageOpinions Stage = "opinions"

	// StageReview is the second stage where agents score each other's opinions.
	StageReview Stage = "review"

	// StageSynthesis is the third stage where the synthesizer merges the opinions.
	StageSynthesis Stage = "synthesis"

	// StageComplete is terminal: the final answer is available.
	StageComplete Stage = "complete"

	// StageError is terminal: the session was aborted.
	StageError Stage = "error"
)

// WorkingStages returns the stages that perform work, in execution order.
func WorkingStages() []Stage {
	return []Stage{StageOpinions, StageReview, StageSynthesis}
}

// StageOrder returns the numeric order of a stage (0-indexed).
func StageOrder(s Stage) int {
	switch s {
	case StagePending:
		return 0
	case StageOpinions:
		return 1
	case StageReview:
		return 2
	case StageSynthesis:
		return 3
	case StageComplete:
		return 4
	default:
		return -1
	}
}

// IsTerminal reports whether no further transition is possible.
func (s Stage) IsTerminal() bool {
	return s == StageComplete || s == StageError
}

// IsValid reports whether s is a known stage.
func (s Stage) IsValid() bool {
	return s == StageError || StageOrder(s) >= 0
}

// CanTransitionTo reports whether moving from s to next is legal.
// Stages only move forward one step at a time; any non-terminal stage may fail.
// Re-entering the current working stage is allowed.
func (s Stage) CanTransitionTo(next Stage) bool {
	if s.IsTerminal() || !next.IsValid() {
		return false
	}
	if next == StageError {
		return true
	}
	if next == s {
		return s != StagePending
	}
	return StageOrder(next) == StageOrder(s)+1
}

// ParseStage converts a string to a Stage.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if !st.IsValid() {
		return "", fmt.Errorf("invalid stage: %s", s)
	}
	return st, nil
}

// String returns the string representation.
func (s Stage) String() string {
	return string(s)
}

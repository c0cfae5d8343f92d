package verify

import (
	"time"

	"github.com/lhaig/boundcheck/internal/model"
)

// State is the lifecycle of one verification run
type State int

const (
	NotStarted State = iota
	Running
	Safe
	ViolationFound
	Skipped
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Running:
		return "running"
	case Safe:
		return "safe"
	case ViolationFound:
		return "violation found"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// IsFinal reports whether the run has finished
func (s State) IsFinal() bool {
	return s == Safe || s == ViolationFound || s == Skipped
}

// Result is the outcome of verifying one class
type Result struct {
	ClassName  string
	State      State
	Violations []model.Violation
	// Exceptions holds one message per sequence that could not be encoded or solved
	Exceptions []string
	// Bounded lists the loops and internal calls where exploration stopped at a
	// bound. Executions continuing past them were not checked.
	Bounded    []string
	Sequences  int
	Duration   time.Duration
}

// HasExceptions reports whether any sequence failed to run
func (r *Result) HasExceptions() bool {
	return len(r.Exceptions) > 0
}

// Apply writes r onto class, which must be a clone owned by the caller. Skipped
// results leave the class untouched. A run with exceptions and no violation leaves
// the class unverified so it is tried again.
func Apply(class *model.ClassModel, r *Result) {
	if r == nil || r.State == Skipped || !r.State.IsFinal() {
		return
	}
	class.ResetResults()
	for _, v := range r.Violations {
		class.AddViolation(v)
	}
	class.IsVerified = r.State == ViolationFound || !r.HasExceptions()
}

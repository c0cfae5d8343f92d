package interp

import (
	"errors"
	"fmt"

	"github.com/lhaig/boundcheck/internal/model"
)

// Call is one public call of a sequence
type Call struct {
	Method string
	Args   []Value
}

// Run executes calls on a fresh instance and checks the invariants at the end.
// It returns the first *Failure, ErrPrecondition if a call is not admissible, or nil.
func Run(class *model.ClassModel, calls []Call, limits Limits) error {
	m, err := New(class, limits)
	if err != nil {
		return err
	}
	for i, c := range calls {
		if _, err := m.Call(c.Method, c.Args...); err != nil {
			return fmt.Errorf("call %d (%s): %w", i+1, c.Method, err)
		}
	}
	return m.CheckInvariants()
}

// Calls rebuilds the call sequence of v from its counterexample. Arguments are
// labelled Method#k.param with k counting calls from 1.
func Calls(class *model.ClassModel, v model.Violation) ([]Call, error) {
	calls := make([]Call, len(v.Sequence))
	for i, name := range v.Sequence {
		method := class.Method(name)
		if method == nil {
			return nil, fmt.Errorf("unknown method %q", name)
		}
		calls[i] = Call{Method: name, Args: make([]Value, len(method.Parameters))}
		for j, p := range method.Parameters {
			label := fmt.Sprintf("%s#%d.%s", name, i+1, p.Name)
			text, ok := v.Counterexample[label]
			if !ok {
				return nil, fmt.Errorf("%w: no value for %s", ErrNotReplayable, label)
			}
			val, err := ParseValue(text, p.Type)
			if err != nil {
				return nil, err
			}
			calls[i].Args[j] = val
		}
	}
	return calls, nil
}

// Replay runs the sequence of v and returns the failure it produces
func Replay(class *model.ClassModel, v model.Violation, limits Limits) (*Failure, error) {
	calls, err := Calls(class, v)
	if err != nil {
		return nil, err
	}
	err = Run(class, calls, limits)
	var f *Failure
	if errors.As(err, &f) {
		return f, nil
	}
	return nil, err
}

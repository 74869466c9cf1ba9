// internal/command/outcome.go
package command

import (
	"errors"
	"fmt"
)

// FailureInfo describes why a command gave up.
type FailureInfo struct {
	Command      string
	Kind         Kind
	Message      string
	AttemptsMade int
	cause        error
}

// Cause returns the error returned by the last attempt.
func (f FailureInfo) Cause() error { return f.cause }

func (f FailureInfo) String() string {
	return fmt.Sprintf("%s failed (%s) after %d attempt(s): %s", f.Command, f.Kind, f.AttemptsMade, f.Message)
}

// Outcome is the terminal result of Execute: exactly one of a value or a
// failure is populated.
type Outcome[T any] struct {
	value   T
	failure *FailureInfo
}

// Succeeded wraps a value.
func Succeeded[T any](v T) Outcome[T] { return Outcome[T]{value: v} }

// Failed wraps a failure.
func Failed[T any](info FailureInfo) Outcome[T] { return Outcome[T]{failure: &info} }

// OK reports whether the outcome carries a value.
func (o Outcome[T]) OK() bool { return o.failure == nil }

// Value returns the value, or the zero value for a failed outcome.
func (o Outcome[T]) Value() T { return o.value }

// Failure returns the failure details, or nil for a successful outcome.
func (o Outcome[T]) Failure() *FailureInfo {
	if o.failure == nil {
		return nil
	}
	f := *o.failure
	return &f
}

// Err converts a failed outcome into a *Failure error keeping the kind and
// the last cause. It returns nil for a successful outcome.
func (o Outcome[T]) Err() error {
	if o.failure == nil {
		return nil
	}
	cause := o.failure.cause
	if cause == nil {
		cause = errors.New(o.failure.Message)
	}
	return &Failure{
		Kind: o.failure.Kind,
		Msg:  fmt.Sprintf("%s failed after %d attempt(s)", o.failure.Command, o.failure.AttemptsMade),
		Err:  cause,
	}
}

// Unwrap returns the value and Err together.
func (o Outcome[T]) Unwrap() (T, error) { return o.value, o.Err() }

// internal/command/failure.go
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AngelRodriguez8008/EasyRepro/internal/driver"
)

// Kind tags a failure so the executor can decide whether to retry it.
type Kind string

const (
	KindNotFound         Kind = "not-found"
	KindStaleReference   Kind = "stale-reference"
	KindTimeout          Kind = "timeout"
	KindApplicationError Kind = "application-error"
	KindPrecondition     Kind = "precondition"
	KindCanceled         Kind = "canceled"
	KindUnknown          Kind = "unknown"
)

// Failure is an error carrying a Kind. Operations return it (or wrap it) to
// control how the executor treats the error; untagged errors are classified
// heuristically.
type Failure struct {
	Kind Kind
	Msg  string
	Err  error
}

// NewFailure creates a tagged failure with a message.
func NewFailure(kind Kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapFailure tags err with kind.
func WrapFailure(kind Kind, err error, msg string) *Failure {
	return &Failure{Kind: kind, Msg: msg, Err: err}
}

func (f *Failure) Error() string {
	switch {
	case f.Msg != "" && f.Err != nil:
		return f.Msg + ": " + f.Err.Error()
	case f.Msg != "":
		return f.Msg
	case f.Err != nil:
		return f.Err.Error()
	default:
		return string(f.Kind)
	}
}

func (f *Failure) Unwrap() error { return f.Err }

// KindOf returns the kind of the outermost Failure in err's chain.
func KindOf(err error) (Kind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return "", false
}

// Classify maps any error onto a Kind. Tagged failures keep their kind,
// driver sentinels and context errors map directly, and everything else is
// classified by inspecting the message the browser engine produced.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	if k, ok := KindOf(err); ok {
		return k
	}
	switch {
	case errors.Is(err, driver.ErrStaleElement):
		return KindStaleReference
	case errors.Is(err, driver.ErrElementNotFound):
		return KindNotFound
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no node with given id"),
		strings.Contains(msg, "could not find node"),
		strings.Contains(msg, "node is detached"),
		strings.Contains(msg, "stale"):
		return KindStaleReference
	case strings.Contains(msg, "no element found"),
		strings.Contains(msg, "element not found"),
		strings.Contains(msg, "no results"):
		return KindNotFound
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return KindTimeout
	}
	return KindUnknown
}

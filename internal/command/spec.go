// internal/command/spec.go
package command

import (
	"slices"
	"time"
)

// DefaultRetryableKinds are the driver-level transient faults: the UI
// re-rendered between locate and act.
var DefaultRetryableKinds = []Kind{KindNotFound, KindStaleReference}

// Spec is the retry policy for one logical operation. Build it with NewSpec
// or Executor.Spec; it is treated as immutable once handed to Execute.
type Spec struct {
	Name string
	// MaxAttempts is the number of retries after the first execution.
	// Zero means the operation runs exactly once.
	MaxAttempts    int
	RetryDelay     time.Duration
	RetryableKinds []Kind
	// SourceInfo labels the call site in diagnostics.
	SourceInfo string
}

// SpecOption customizes a Spec.
type SpecOption func(*Spec)

// NewSpec returns a single-attempt spec retrying the default kinds.
func NewSpec(name string, opts ...SpecOption) Spec {
	s := Spec{
		Name:           name,
		RetryableKinds: slices.Clone(DefaultRetryableKinds),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithMaxAttempts sets the retry budget. Negative values are clamped to zero.
func WithMaxAttempts(n int) SpecOption {
	return func(s *Spec) { s.MaxAttempts = max(n, 0) }
}

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(d time.Duration) SpecOption {
	return func(s *Spec) { s.RetryDelay = max(d, 0) }
}

// WithRetryable replaces the retryable kinds.
func WithRetryable(kinds ...Kind) SpecOption {
	return func(s *Spec) { s.RetryableKinds = slices.Clone(kinds) }
}

// WithSource sets the diagnostic source label.
func WithSource(src string) SpecOption {
	return func(s *Spec) { s.SourceInfo = src }
}

// Retryable reports whether kind is in the spec's retryable set.
func (s Spec) Retryable(kind Kind) bool {
	return slices.Contains(s.RetryableKinds, kind)
}

// With returns a copy of s with opts applied.
func (s Spec) With(opts ...SpecOption) Spec {
	s.RetryableKinds = slices.Clone(s.RetryableKinds)
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

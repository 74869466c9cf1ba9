// internal/wait/wait.go
// Package wait blocks a flow until a condition over the driver holds or a
// timeout elapses. Unlike the command executor it keeps no attempt
// bookkeeping: it waits for a state, it does not retry an action.
package wait

import (
	"context"
	"errors"
	"time"

	"github.com/AngelRodriguez8008/EasyRepro/internal/command"
	"github.com/AngelRodriguez8008/EasyRepro/internal/driver"
)

// DefaultPollInterval is used when a Spec leaves PollInterval unset.
const DefaultPollInterval = 500 * time.Millisecond

// Spec bounds a single wait.
type Spec struct {
	Timeout      time.Duration
	PollInterval time.Duration
	// OnSatisfied runs once after the condition holds and receives the element
	// the condition resolved, if any. Its error is returned.
	OnSatisfied func(ctx context.Context, el driver.Element) error
	// OnTimeout runs once when the timeout elapses. Returning an error turns
	// the timeout into a failure; returning nil keeps the (false, nil) result.
	OnTimeout func(ctx context.Context) error
}

// Condition reports whether the awaited state holds, along with the element
// it resolved on the way (nil for conditions such as Absent). Not-found and
// stale errors mean "not yet"; any other error aborts the wait.
type Condition func(ctx context.Context, drv driver.Driver) (driver.Element, bool, error)

// Until polls cond until it holds, the timeout elapses, or ctx is done. The
// condition is evaluated once before the first sleep, so an already satisfied
// condition returns without sleeping.
func Until(ctx context.Context, drv driver.Driver, cond Condition, spec Spec) (bool, error) {
	_, ok, err := Resolve(ctx, drv, cond, spec)
	return ok, err
}

// Resolve is Until that also returns the element the satisfied condition
// resolved. The element is nil unless the condition held.
func Resolve(ctx context.Context, drv driver.Driver, cond Condition, spec Spec) (driver.Element, bool, error) {
	if spec.Timeout <= 0 {
		return nil, false, command.NewFailure(command.KindPrecondition, "wait requires a positive timeout")
	}
	poll := spec.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	deadline := time.Now().Add(spec.Timeout)
	evalCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		el, ok, err := cond(evalCtx, drv)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			if evalCtx.Err() != nil {
				// Our own deadline cut the evaluation short.
				break
			}
			if !transient(err) {
				return nil, false, err
			}
			ok = false
		}
		if ok {
			if spec.OnSatisfied != nil {
				if err := spec.OnSatisfied(ctx, el); err != nil {
					return el, true, err
				}
			}
			return el, true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if timer == nil {
			timer = time.NewTimer(min(poll, remaining))
		} else {
			timer.Reset(min(poll, remaining))
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-timer.C:
		}
	}

	if spec.OnTimeout != nil {
		if err := spec.OnTimeout(ctx); err != nil {
			return nil, false, err
		}
	}
	return nil, false, nil
}

func transient(err error) bool {
	switch command.Classify(err) {
	case command.KindNotFound, command.KindStaleReference:
		return true
	}
	return false
}

// ForLocator holds once an element matching loc can be resolved.
func ForLocator(loc driver.Locator) Condition {
	return func(ctx context.Context, drv driver.Driver) (driver.Element, bool, error) {
		el, err := drv.Find(ctx, loc)
		if err != nil {
			return nil, false, err
		}
		return el, true, nil
	}
}

// Visible holds once an element matching loc is resolved and rendered.
func Visible(loc driver.Locator) Condition {
	return func(ctx context.Context, drv driver.Driver) (driver.Element, bool, error) {
		el, err := drv.Find(ctx, loc)
		if err != nil {
			return nil, false, err
		}
		visible, err := el.Visible(ctx)
		if err != nil || !visible {
			return nil, false, err
		}
		return el, true, nil
	}
}

// Absent holds once nothing matches loc.
func Absent(loc driver.Locator) Condition {
	return func(ctx context.Context, drv driver.Driver) (driver.Element, bool, error) {
		_, err := drv.Find(ctx, loc)
		if errors.Is(err, driver.ErrElementNotFound) {
			return nil, true, nil
		}
		return nil, false, err
	}
}

// Any holds as soon as one of conds holds and resolves to that condition's element.
func Any(conds ...Condition) Condition {
	return func(ctx context.Context, drv driver.Driver) (driver.Element, bool, error) {
		for _, c := range conds {
			el, ok, err := c(ctx, drv)
			if err != nil && !transient(err) {
				return nil, false, err
			}
			if ok {
				return el, true, nil
			}
		}
		return nil, false, nil
	}
}

// ForElement waits for loc and returns the resolved element.
func ForElement(ctx context.Context, drv driver.Driver, loc driver.Locator, spec Spec) (driver.Element, bool, error) {
	return Resolve(ctx, drv, ForLocator(loc), spec)
}

// Settled waits for the driver's page-settled signal, bounded by timeout.
func Settled(ctx context.Context, drv driver.Driver, timeout time.Duration) error {
	if timeout <= 0 {
		return command.NewFailure(command.KindPrecondition, "settle requires a positive timeout")
	}
	settleCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := drv.WaitForPageSettled(settleCtx)
	if err != nil && ctx.Err() == nil && errors.Is(settleCtx.Err(), context.DeadlineExceeded) {
		return command.WrapFailure(command.KindTimeout, err, "page did not settle within "+timeout.String())
	}
	return err
}

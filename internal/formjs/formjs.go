// internal/formjs/formjs.go
// Package formjs reads and writes model-driven form state through the
// client-side form API (Xrm.Page) instead of the rendered controls. Every
// call runs as a single-attempt command: a script either works against the
// loaded form or it does not, and replaying a setter is never safe.
package formjs

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AngelRodriguez8008/EasyRepro/internal/command"
	"github.com/AngelRodriguez8008/EasyRepro/internal/driver"
	"github.com/AngelRodriguez8008/EasyRepro/internal/wait"
)

const (
	getAttributeJS   = "return Xrm.Page.getAttribute(arguments[0]).getValue();"
	setAttributeJS   = "Xrm.Page.getAttribute(arguments[0]).setValue(arguments[1]);"
	getEntityIDJS    = "return Xrm.Page.data.entity.getId();"
	controlVisibleJS = "return Xrm.Page.getControl(arguments[0]).getVisible();"
	isDirtyJS        = "return Xrm.Page.getAttribute(arguments[0]).getIsDirty();"
	requiredLevelJS  = "return Xrm.Page.getAttribute(arguments[0]).getRequiredLevel();"
)

// Runner executes form scripts on the executor's driver.
type Runner struct {
	exec   *command.Executor
	waiter *wait.Waiter
	logger *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(exec *command.Executor, waiter *wait.Waiter, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{exec: exec, waiter: waiter, logger: logger.Named("formjs")}
}

func (r *Runner) spec(name string) command.Spec {
	return r.exec.Spec(name, command.WithMaxAttempts(0), command.WithSource("formjs"))
}

// Run settles the page and evaluates code with args, decoding the script's
// return value into T.
func Run[T any](ctx context.Context, r *Runner, name, code string, args ...any) command.Outcome[T] {
	return command.Execute(ctx, r.exec, r.spec(name), func(ctx context.Context, drv driver.Driver) (T, error) {
		var out T
		if err := r.waiter.Settled(ctx, drv); err != nil {
			return out, err
		}
		if err := drv.RunScript(ctx, code, args, &out); err != nil {
			return out, err
		}
		return out, nil
	})
}

// Exec is Run for scripts whose result is not needed.
func (r *Runner) Exec(ctx context.Context, name, code string, args ...any) error {
	return command.Execute(ctx, r.exec, r.spec(name), func(ctx context.Context, drv driver.Driver) (struct{}, error) {
		if err := r.waiter.Settled(ctx, drv); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, drv.RunScript(ctx, code, args, nil)
	}).Err()
}

// GetAttributeValue returns the value of a form attribute.
func GetAttributeValue[T any](ctx context.Context, r *Runner, attribute string) (T, error) {
	return Run[T](ctx, r, "Get Attribute Value via Form JS: "+attribute, getAttributeJS, attribute).Unwrap()
}

// SetAttributeValue sets a form attribute.
func (r *Runner) SetAttributeValue(ctx context.Context, attribute string, value any) error {
	return r.Exec(ctx, "Set Attribute Value via Form JS: "+attribute, setAttributeJS, attribute, value)
}

// ClearAttribute sets a form attribute to null.
func (r *Runner) ClearAttribute(ctx context.Context, attribute string) error {
	return r.Exec(ctx, "Clear Attribute via Form JS: "+attribute, setAttributeJS, attribute, nil)
}

// GetEntityID returns the id of the record open in the form. A new, unsaved
// record has no id and yields uuid.Nil.
func (r *Runner) GetEntityID(ctx context.Context) (uuid.UUID, error) {
	raw, err := Run[string](ctx, r, "Get Entity Id via Form JS", getEntityIDJS).Unwrap()
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		r.logger.Debug("Form returned no parsable entity id.", zap.String("raw", raw))
		return uuid.Nil, nil
	}
	return id, nil
}

// IsControlVisible reports whether the control bound to attribute is shown.
func (r *Runner) IsControlVisible(ctx context.Context, attribute string) (bool, error) {
	return Run[bool](ctx, r, "Get Control Visibility via Form JS: "+attribute, controlVisibleJS, attribute).Unwrap()
}

// IsDirty reports whether attribute has unsaved changes.
func (r *Runner) IsDirty(ctx context.Context, attribute string) (bool, error) {
	return Run[bool](ctx, r, "Get Attribute IsDirty via Form JS: "+attribute, isDirtyJS, attribute).Unwrap()
}

// RequiredLevel is an attribute's requirement level.
type RequiredLevel int

const (
	RequiredLevelUnknown RequiredLevel = iota
	RequiredLevelNone
	RequiredLevelRequired
	RequiredLevelRecommended
)

func (l RequiredLevel) String() string {
	switch l {
	case RequiredLevelNone:
		return "none"
	case RequiredLevelRequired:
		return "required"
	case RequiredLevelRecommended:
		return "recommended"
	default:
		return "unknown"
	}
}

// ParseRequiredLevel maps the form API's level name, case-insensitively.
func ParseRequiredLevel(s string) RequiredLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return RequiredLevelNone
	case "required":
		return RequiredLevelRequired
	case "recommended":
		return RequiredLevelRecommended
	default:
		return RequiredLevelUnknown
	}
}

// GetRequiredLevel returns attribute's requirement level.
func (r *Runner) GetRequiredLevel(ctx context.Context, attribute string) (RequiredLevel, error) {
	raw, err := Run[string](ctx, r, "Get Attribute RequiredLevel via Form JS: "+attribute, requiredLevelJS, attribute).Unwrap()
	if err != nil {
		return RequiredLevelUnknown, fmt.Errorf("reading required level of %s: %w", attribute, err)
	}
	return ParseRequiredLevel(raw), nil
}

// internal/driver/driver.go
// Package driver defines the capability surface the command core needs from
// a browser-automation engine. Everything above this package (the executor,
// wait primitives, the login state machine) talks to these interfaces only;
// the chromedp implementation lives in internal/browser.
package driver

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrElementNotFound is returned by Find when no element matches the locator.
	ErrElementNotFound = errors.New("element not found")
	// ErrStaleElement is returned when a previously resolved element is no
	// longer attached to the document.
	ErrStaleElement = errors.New("stale element reference")
)

// Strategy selects how a Locator's selector is interpreted.
type Strategy int

const (
	// ByQuery interprets the selector as a CSS selector.
	ByQuery Strategy = iota
	// ByXPath interprets the selector as an XPath expression.
	ByXPath
	// ByID interprets the selector as an element id.
	ByID
	// BySearch lets the engine decide (CSS, XPath or plain text search).
	BySearch
)

func (s Strategy) String() string {
	switch s {
	case ByQuery:
		return "css"
	case ByXPath:
		return "xpath"
	case ByID:
		return "id"
	case BySearch:
		return "search"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Locator is an opaque description of where in the UI an element lives.
type Locator struct {
	// Name is a human readable label used in diagnostics.
	Name     string
	Selector string
	Strategy Strategy
}

// String renders the locator for log output.
func (l Locator) String() string {
	if l.Name != "" {
		return fmt.Sprintf("%s[%s=%s]", l.Name, l.Strategy, l.Selector)
	}
	return fmt.Sprintf("%s=%s", l.Strategy, l.Selector)
}

// IsZero reports whether the locator carries no selector.
func (l Locator) IsZero() bool { return l.Selector == "" }

// XPath builds an XPath locator.
func XPath(name, expr string) Locator { return Locator{Name: name, Selector: expr, Strategy: ByXPath} }

// CSS builds a CSS selector locator.
func CSS(name, sel string) Locator { return Locator{Name: name, Selector: sel, Strategy: ByQuery} }

// ID builds an element-id locator.
func ID(name, id string) Locator { return Locator{Name: name, Selector: id, Strategy: ByID} }

// Element is a handle to a resolved DOM node. Handles go stale when the page
// re-renders; methods then return ErrStaleElement.
type Element interface {
	Click(ctx context.Context) error
	Type(ctx context.Context, text string) error
	Submit(ctx context.Context) error
	Attribute(ctx context.Context, name string) (string, bool, error)
	Visible(ctx context.Context) (bool, error)
}

// Driver is the browser facade. Implementations are bound to a single tab and
// are not safe for concurrent use from more than one logical flow.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)

	// Find resolves the first element matching loc. It does not wait; callers
	// poll through the wait package. Returns ErrElementNotFound when absent.
	Find(ctx context.Context, loc Locator) (Element, error)
	// FindAll resolves every element matching loc. An empty slice is not an error.
	FindAll(ctx context.Context, loc Locator) ([]Element, error)

	Click(ctx context.Context, el Element) error
	Type(ctx context.Context, el Element, text string) error
	Attribute(ctx context.Context, el Element, name string) (string, bool, error)

	// RunScript evaluates code in the page. args are exposed to the script as
	// the `arguments` array. When out is non-nil the result is decoded into it.
	RunScript(ctx context.Context, code string, args []any, out any) error

	// WaitForPageSettled blocks until navigation and pending network-driven
	// re-renders have quiesced, or ctx is done.
	WaitForPageSettled(ctx context.Context) error

	// SwitchToDefaultContent returns focus to the top-level document.
	SwitchToDefaultContent(ctx context.Context) error
}

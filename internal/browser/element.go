// internal/browser/element.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/AngelRodriguez8008/EasyRepro/internal/driver"
)

// element is a handle to a DOM node resolved by a Session. Node operations go
// straight to CDP by node id; chromedp's selector machinery would retry a
// dead id until the deadline instead of reporting it.
type element struct {
	s    *Session
	node *cdp.Node
	loc  driver.Locator
}

var _ driver.Element = (*element)(nil)

// staleMessages are the CDP error messages for a node id the backend no
// longer knows about.
var staleMessages = []string{
	"could not find node with given id",
	"no node with given id found",
	"node is detached from document",
	"node with given id does not belong to the document",
	"cannot find context with specified id",
}

func isStaleCDPError(err error) bool {
	var cdpErr *cdproto.Error
	if !errors.As(err, &cdpErr) {
		return false
	}
	msg := strings.ToLower(cdpErr.Message)
	for _, m := range staleMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// do runs fn against the node after confirming it is still attached.
func (e *element) do(ctx context.Context, verb string, fn func(ctx context.Context) error) error {
	err := e.s.run(ctx, e.s.actionTimeout(), chromedp.ActionFunc(func(ctx context.Context) error {
		if _, err := dom.DescribeNode().WithNodeID(e.node.NodeID).Do(ctx); err != nil {
			return err
		}
		return fn(ctx)
	}))
	switch {
	case err == nil:
		return nil
	case isStaleCDPError(err):
		return fmt.Errorf("%s %s: %w: %v", verb, e.loc, driver.ErrStaleElement, err)
	default:
		return fmt.Errorf("%s %s: %w", verb, e.loc, err)
	}
}

// callOn calls a JS function with the node bound to this.
func (e *element) callOn(ctx context.Context, fn string, res any) error {
	obj, err := dom.ResolveNode().WithNodeID(e.node.NodeID).Do(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

	return chromedp.CallFunctionOn(fn, res, func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
		return p.WithObjectID(obj.ObjectID)
	}).Do(ctx)
}

func (e *element) Click(ctx context.Context) error {
	return e.do(ctx, "click", func(ctx context.Context) error {
		if err := dom.ScrollIntoViewIfNeeded().WithNodeID(e.node.NodeID).Do(ctx); err != nil {
			return err
		}
		return chromedp.MouseClickNode(e.node).Do(ctx)
	})
}

// Type clears the field, firing input and change events, then types text as
// key events so page handlers see real keystrokes.
func (e *element) Type(ctx context.Context, text string) error {
	return e.do(ctx, "type into", func(ctx context.Context) error {
		if err := dom.ScrollIntoViewIfNeeded().WithNodeID(e.node.NodeID).Do(ctx); err != nil {
			return err
		}
		if err := dom.Focus().WithNodeID(e.node.NodeID).Do(ctx); err != nil {
			return err
		}
		if err := e.callOn(ctx, clearInputJS, nil); err != nil {
			return err
		}
		if text == "" {
			return nil
		}
		return chromedp.KeyEventNode(e.node, text).Do(ctx)
	})
}

// Submit presses Enter in the element.
func (e *element) Submit(ctx context.Context) error {
	return e.do(ctx, "submit", func(ctx context.Context) error {
		return chromedp.KeyEventNode(e.node, kb.Enter).Do(ctx)
	})
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := e.do(ctx, "read attribute of", func(ctx context.Context) error {
		attrs, err := dom.GetAttributes(e.node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		for i := 0; i+1 < len(attrs); i += 2 {
			if attrs[i] == name {
				value, found = attrs[i+1], true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	var visible bool
	err := e.do(ctx, "check visibility of", func(ctx context.Context) error {
		return e.callOn(ctx, isVisibleJS, &visible)
	})
	return visible, err
}

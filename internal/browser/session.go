// internal/browser/session.go
// Session is the chromedp-backed driver.Driver. Each session owns one tab in
// its own browser context (isolated cookies and storage), so several sessions
// can share a single Chrome process without seeing each other's login state.
//
// Every CDP call goes through run, which binds the session's tab context to the
// caller's operation context. Cancelling the caller never closes the tab; only
// Close does.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AngelRodriguez8008/EasyRepro/internal/command"
	"github.com/AngelRodriguez8008/EasyRepro/internal/config"
	"github.com/AngelRodriguez8008/EasyRepro/internal/driver"
	"github.com/AngelRodriguez8008/EasyRepro/internal/observability"
)

const (
	// findTimeout bounds a single element lookup. chromedp keeps retrying
	// lookups that fail for reasons other than an invalid selector, so
	// without a bound a missing frame would hang the caller.
	findTimeout = 5 * time.Second
	// settlePoll is how often the settle probe runs.
	settlePoll = 100 * time.Millisecond
)

// Session implements driver.Driver over a single chromedp tab.
type Session struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	cfg     config.BrowserConfig
	waitCfg config.WaitConfig
	logger  *zap.Logger

	mu    sync.Mutex
	frame *cdp.Node

	closeOnce sync.Once
	closeErr  error
}

var _ driver.Driver = (*Session)(nil)

// NewSession opens a new tab under parent, which must be a browser context
// returned by NewAllocator.
func NewSession(parent context.Context, cfg config.BrowserConfig, waitCfg config.WaitConfig, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	tabCtx, cancel := chromedp.NewContext(parent, chromedp.WithNewBrowserContext())

	s := &Session{
		id:      id,
		ctx:     tabCtx,
		cancel:  cancel,
		cfg:     cfg,
		waitCfg: waitCfg,
		logger:  observability.ForSession(logger, "browser", id),
	}

	// The first Run on a tab context creates the target. It must use the tab
	// context itself; a derived context that expires would close the tab.
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(networkTrackerJS).Do(ctx)
		return err
	}))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open browser tab: %w", err)
	}

	s.logger.Debug("Browser session opened.")
	return s, nil
}

// ID returns the session's correlation id.
func (s *Session) ID() string { return s.id }

// Close closes the tab and disposes its browser context. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = chromedp.Cancel(s.ctx)
		s.cancel()
		if errors.Is(s.closeErr, context.Canceled) {
			s.closeErr = nil
		}
		s.logger.Debug("Browser session closed.", zap.Error(s.closeErr))
	})
	return s.closeErr
}

// run executes actions on the tab, bounded by timeout when it is positive.
// Context errors take precedence over whatever chromedp reports, with the
// caller's context checked first.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("browser session closed: %w", s.ctx.Err())
	}
	return err
}

func (s *Session) actionTimeout() time.Duration {
	if s.cfg.ActionTimeout > 0 {
		return s.cfg.ActionTimeout
	}
	return 30 * time.Second
}

// Navigate loads url in the top-level document and drops any frame scope.
func (s *Session) Navigate(ctx context.Context, url string) error {
	timeout := s.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	s.logger.Info("Navigating session.", zap.String("url", url))
	s.setFrame(nil)

	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.run(navCtx, 0, chromedp.Navigate(url)); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return command.WrapFailure(command.KindTimeout, err, fmt.Sprintf("navigation to %s timed out after %v", url, timeout))
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// CurrentURL returns the address of the top-level document.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := s.run(ctx, s.actionTimeout(), chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("failed to read current url: %w", err)
	}
	return location, nil
}

// Find resolves the first element matching loc without waiting for it.
func (s *Session) Find(ctx context.Context, loc driver.Locator) (driver.Element, error) {
	nodes, err := s.query(ctx, loc, false)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", driver.ErrElementNotFound, loc)
	}
	return s.element(nodes[0], loc), nil
}

// FindAll resolves every element matching loc. No match is an empty slice.
func (s *Session) FindAll(ctx context.Context, loc driver.Locator) ([]driver.Element, error) {
	nodes, err := s.query(ctx, loc, true)
	if err != nil {
		return nil, err
	}
	elements := make([]driver.Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, s.element(n, loc))
	}
	return elements, nil
}

func (s *Session) query(ctx context.Context, loc driver.Locator, all bool) ([]*cdp.Node, error) {
	if loc.IsZero() {
		return nil, command.NewFailure(command.KindPrecondition, "locator %q has no selector", loc.Name)
	}

	opts := []chromedp.QueryOption{queryOption(loc.Strategy, all), chromedp.AtLeast(0)}
	if frame := s.currentFrame(); frame != nil {
		opts = append(opts, chromedp.FromNode(frame))
	}

	var nodes []*cdp.Node
	findCtx, cancel := context.WithTimeout(ctx, findTimeout)
	defer cancel()
	err := s.run(findCtx, 0, chromedp.Nodes(loc.Selector, &nodes, opts...))
	switch {
	case err == nil:
		return nodes, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		// Our own lookup bound fired: the document never produced a match.
		return nil, fmt.Errorf("%w: %s", driver.ErrElementNotFound, loc)
	default:
		return nil, fmt.Errorf("query %s failed: %w", loc, err)
	}
}

// queryOption maps a locator strategy onto a chromedp query option. XPath
// goes through DOM.performSearch, which understands XPath expressions.
func queryOption(strategy driver.Strategy, all bool) chromedp.QueryOption {
	switch strategy {
	case driver.ByXPath, driver.BySearch:
		return chromedp.BySearch
	case driver.ByID:
		return chromedp.ByID
	default:
		if all {
			return chromedp.ByQueryAll
		}
		return chromedp.ByQuery
	}
}

func (s *Session) element(n *cdp.Node, loc driver.Locator) *element {
	return &element{s: s, node: n, loc: loc}
}

// Click clicks el.
func (s *Session) Click(ctx context.Context, el driver.Element) error {
	return el.Click(ctx)
}

// Type replaces el's content with text.
func (s *Session) Type(ctx context.Context, el driver.Element, text string) error {
	return el.Type(ctx, text)
}

// Attribute reads an attribute of el.
func (s *Session) Attribute(ctx context.Context, el driver.Element, name string) (string, bool, error) {
	return el.Attribute(ctx, name)
}

// RunScript runs code as the body of a function whose arguments are args.
// Promises are awaited. A script that returns nothing leaves out untouched.
func (s *Session) RunScript(ctx context.Context, code string, args []any, out any) error {
	if args == nil {
		args = []any{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return command.WrapFailure(command.KindPrecondition, err, "script arguments are not serializable")
	}
	expr := fmt.Sprintf("(function(){\n%s\n}).apply(null, %s)", code, encoded)

	err = s.run(ctx, s.actionTimeout(), chromedp.Evaluate(expr, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	var exception *runtime.ExceptionDetails
	switch {
	case err == nil, errors.Is(err, chromedp.ErrJSUndefined), errors.Is(err, chromedp.ErrJSNull):
		return nil
	case errors.As(err, &exception):
		return command.WrapFailure(command.KindApplicationError, err, "script threw an exception")
	default:
		return fmt.Errorf("script evaluation failed: %w", err)
	}
}

type settleProbe struct {
	Ready   string `json:"ready"`
	Pending int    `json:"pending"`
}

// WaitForPageSettled waits for the body to exist, then for the document to be
// complete with no tracked fetch/XHR in flight for the configured quiet period.
// Probe failures (a navigation tearing down the execution context) restart the
// quiet period rather than fail. ctx bounds the whole wait.
func (s *Session) WaitForPageSettled(ctx context.Context) error {
	quiet := s.waitCfg.SettleQuietPeriod
	if quiet <= 0 {
		quiet = 500 * time.Millisecond
	}
	if err := s.run(ctx, 0, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("waiting for document body: %w", err)
	}

	var quietSince time.Time
	for {
		var probe settleProbe
		err := s.run(ctx, s.actionTimeout(), chromedp.Evaluate(settleProbeJS, &probe))
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case s.ctx.Err() != nil:
			return fmt.Errorf("browser session closed: %w", s.ctx.Err())
		case err != nil:
			s.logger.Debug("Settle probe failed, restarting quiet period.", zap.Error(err))
			quietSince = time.Time{}
		case probe.Ready == "complete" && probe.Pending == 0:
			if quietSince.IsZero() {
				quietSince = time.Now()
			}
			if time.Since(quietSince) >= quiet {
				return nil
			}
		default:
			quietSince = time.Time{}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return fmt.Errorf("browser session closed: %w", s.ctx.Err())
		case <-time.After(settlePoll):
		}
	}
}

// SwitchToFrame scopes subsequent CSS lookups to the document of the iframe
// matching loc. XPath lookups search every document regardless.
func (s *Session) SwitchToFrame(ctx context.Context, loc driver.Locator) error {
	nodes, err := s.query(ctx, loc, false)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%w: frame %s", driver.ErrElementNotFound, loc)
	}
	s.setFrame(nodes[0])
	return nil
}

// SwitchToDefaultContent drops any frame scope and returns focus to the
// top-level document.
func (s *Session) SwitchToDefaultContent(ctx context.Context) error {
	s.setFrame(nil)
	err := s.run(ctx, s.actionTimeout(),
		page.BringToFront(),
		chromedp.Evaluate(focusTopJS, nil),
	)
	if err != nil {
		return fmt.Errorf("failed to focus top-level document: %w", err)
	}
	return nil
}

func (s *Session) currentFrame() *cdp.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

func (s *Session) setFrame(n *cdp.Node) {
	s.mu.Lock()
	s.frame = n
	s.mu.Unlock()
}

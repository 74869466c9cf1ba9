// internal/auth/authenticator.go
// Package auth drives a browser session to an authenticated state. Login is a
// state machine over the login pages that covers direct credential entry,
// pass-through (already trusted identity), federation through a caller
// supplied redirect handler, and TOTP multi-factor challenges.
//
// The whole machine runs as one command through the executor: a transient
// driver fault anywhere (element not found, stale reference) lets the executor
// re-run the sequence from Start. Individual states never loop, except the
// one-time-code entry which tolerates a slow render.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AngelRodriguez8008/EasyRepro/internal/command"
	"github.com/AngelRodriguez8008/EasyRepro/internal/config"
	"github.com/AngelRodriguez8008/EasyRepro/internal/driver"
	"github.com/AngelRodriguez8008/EasyRepro/internal/observability"
	"github.com/AngelRodriguez8008/EasyRepro/internal/totp"
	"github.com/AngelRodriguez8008/EasyRepro/internal/wait"
)

const (
	// LoginCommand names the credentialed login in logs, metrics and history.
	LoginCommand = "Login"
	// PassThroughCommand names the login that relies on an existing identity.
	PassThroughCommand = "Pass Through Login"
	// InitializeModesCommand names the switch into test/performance mode.
	InitializeModesCommand = "Initialize Unified Interface Modes"
)

// Metrics receives one observation per finished login.
type Metrics interface {
	ObserveLogin(outcome, state string)
}

// Authenticator runs logins on the driver its executor is bound to.
type Authenticator struct {
	exec    *command.Executor
	waiter  *wait.Waiter
	cfg     config.AuthConfig
	loc     Locators
	logger  *zap.Logger
	metrics Metrics
	now     func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithLocators replaces the default login-page locators.
func WithLocators(l Locators) Option {
	return func(a *Authenticator) { a.loc = l }
}

// WithMetrics attaches a login metrics sink.
func WithMetrics(m Metrics) Option {
	return func(a *Authenticator) { a.metrics = m }
}

// WithClock replaces the clock used for one-time codes.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// New creates an Authenticator.
func New(exec *command.Executor, waiter *wait.Waiter, cfg config.AuthConfig, logger *zap.Logger, opts ...Option) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Authenticator{
		exec:   exec,
		waiter: waiter,
		cfg:    cfg,
		loc:    DefaultLocators(),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Login signs in to lc.TargetURL. Empty credentials select pass-through login.
// A Failure outcome is always accompanied by a non-nil error.
func (a *Authenticator) Login(ctx context.Context, lc Context) (Outcome, error) {
	if lc.SessionID == "" {
		lc.SessionID = NewContext(lc.TargetURL, lc.Credentials).SessionID
	}
	log := observability.ForSession(a.logger, "auth", lc.SessionID)

	if _, err := targetHost(lc.TargetURL); err != nil {
		return a.done(log, Outcome{Kind: Failure, Reason: "invalid target url", State: StateStart}, err)
	}

	name := LoginCommand
	if lc.Credentials.Empty() {
		name = PassThroughCommand
	}
	log.Info("Login started.",
		zap.String("command", name),
		zap.String("target", lc.TargetURL),
		lc.Credentials.Redacted())

	spec := a.exec.Spec(name, command.WithSource("auth.Login"))
	res := command.Execute(ctx, a.exec, spec, func(ctx context.Context, drv driver.Driver) (Outcome, error) {
		f := &flow{a: a, drv: drv, lc: lc, log: log, passThrough: lc.Credentials.Empty()}
		return f.run(ctx)
	})

	out, err := res.Unwrap()
	if err != nil {
		out = Outcome{Kind: Failure, Reason: err.Error(), State: StateFailed}
		var se *StateError
		if errors.As(err, &se) {
			out.Reason, out.State = se.Reason, se.State
		}
	}
	return a.done(log, out, err)
}

func (a *Authenticator) done(log *zap.Logger, out Outcome, err error) (Outcome, error) {
	if a.metrics != nil {
		a.metrics.ObserveLogin(out.Kind.String(), out.State.String())
	}
	if err != nil {
		log.Error("Login failed.", zap.String("state", out.State.String()), zap.String("reason", out.Reason), zap.Error(err))
		return out, err
	}
	log.Info("Login finished.", zap.Stringer("outcome", out.Kind), zap.String("state", out.State.String()))
	return out, nil
}

// IsOnline reports whether target is served by the hosted sign-in flow. With
// no configured domains every host is treated as online.
func (a *Authenticator) IsOnline(target string) bool {
	if len(a.cfg.OnlineDomains) == 0 {
		return true
	}
	host, err := targetHost(target)
	if err != nil {
		return false
	}
	for _, d := range a.cfg.OnlineDomains {
		if strings.HasSuffix(host, strings.ToLower(d)) {
			return true
		}
	}
	return false
}

func targetHost(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", command.WrapFailure(command.KindPrecondition, err, "target url does not parse")
	}
	if u.Host == "" {
		return "", command.NewFailure(command.KindPrecondition, "target url %q has no host", target)
	}
	return strings.ToLower(u.Hostname()), nil
}

// flow is the state of one login attempt. The executor builds a new one for
// every attempt so a retry restarts from Start.
type flow struct {
	a           *Authenticator
	drv         driver.Driver
	lc          Context
	log         *zap.Logger
	passThrough bool
}

func (f *flow) run(ctx context.Context) (Outcome, error) {
	state := StateStart
	for {
		next, err := f.step(ctx, state)
		if err != nil {
			var se *StateError
			if !errors.As(err, &se) {
				err = &StateError{State: state, Reason: "driver error", Err: err}
			}
			return Outcome{}, err
		}
		f.log.Debug("Login state transition.", zap.Stringer("from", state), zap.Stringer("to", next))
		switch next {
		case StateAuthenticated:
			return Outcome{Kind: Success, State: next}, nil
		case StateRedirected:
			return Outcome{Kind: Redirect, State: next}, nil
		}
		state = next
	}
}

func (f *flow) step(ctx context.Context, s State) (State, error) {
	switch s {
	case StateStart:
		return f.start(ctx)
	case StateDetectTopology:
		return f.detectTopology(ctx)
	case StateDismissAccountPicker:
		return f.dismissAccountPicker(ctx)
	case StateEnterUsername:
		return f.enterUsername(ctx)
	case StatePostUsername:
		return f.postUsername(ctx)
	case StateEnterPassword:
		return f.enterPassword(ctx)
	case StateMfaChallenge:
		return f.mfaChallenge(ctx)
	case StateStaySignedInPrompt:
		return f.staySignedIn(ctx)
	case StateAwaitLanding:
		return f.awaitLanding(ctx)
	default:
		return StateFailed, &StateError{State: s, Reason: "no transition", Err: command.NewFailure(command.KindPrecondition, "state %s has no transition", s)}
	}
}

// fail ends the login in s with a non-retryable application error.
func fail(s State, reason string) error {
	return &StateError{State: s, Reason: reason, Err: command.NewFailure(command.KindApplicationError, "%s", reason)}
}

func (f *flow) think(ctx context.Context) error {
	return f.a.waiter.Sleep(ctx, f.a.cfg.ThinkTime)
}

// present reports whether loc resolves right now to a visible element.
func (f *flow) present(ctx context.Context, loc driver.Locator) (driver.Element, bool, error) {
	el, err := f.drv.Find(ctx, loc)
	if err != nil {
		if isTransient(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	visible, err := el.Visible(ctx)
	if err != nil {
		if isTransient(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return el, visible, nil
}

func isTransient(err error) bool {
	switch command.Classify(err) {
	case command.KindNotFound, command.KindStaleReference:
		return true
	}
	return false
}

func (f *flow) start(ctx context.Context) (State, error) {
	if err := f.drv.Navigate(ctx, f.lc.TargetURL); err != nil {
		return StateFailed, &StateError{State: StateStart, Reason: "navigation failed", Err: err}
	}
	if !f.passThrough && !f.a.IsOnline(f.lc.TargetURL) {
		// On-premises organizations authenticate through the browser's
		// integrated sign-in; there is no form to fill. A pass-through login
		// still has to prove it reached the landing page.
		f.log.Debug("Target is not an online domain; skipping interactive login.")
		if err := f.a.waiter.Settled(ctx, f.drv); err != nil {
			return StateFailed, &StateError{State: StateStart, Reason: "page did not settle", Err: err}
		}
		return StateAuthenticated, nil
	}
	return StateDetectTopology, nil
}

func (f *flow) detectTopology(context.Context) (State, error) {
	if f.passThrough {
		return StateAwaitLanding, nil
	}
	return StateDismissAccountPicker, nil
}

func (f *flow) dismissAccountPicker(ctx context.Context) (State, error) {
	// Give the sign-in page until the prompt timeout to render something
	// recognisable before deciding whether the picker is up.
	prompt := wait.Any(
		wait.Visible(f.a.loc.UseAnotherAccount),
		wait.Visible(f.a.loc.UserID),
		wait.Visible(f.a.loc.LandingMarker),
		wait.Visible(f.a.loc.OneTimeCode),
	)
	if _, err := f.a.waiter.Until(ctx, f.drv, "sign-in prompt", prompt, f.a.cfg.PromptTimeout); err != nil {
		return StateFailed, err
	}
	el, visible, err := f.present(ctx, f.a.loc.UseAnotherAccount)
	if err != nil {
		return StateFailed, err
	}
	if visible {
		f.log.Debug("Dismissing account picker.")
		if err := el.Click(ctx); err != nil && !isTransient(err) {
			return StateFailed, err
		}
	}
	return StateEnterUsername, nil
}

func (f *flow) enterUsername(ctx context.Context) (State, error) {
	el, ok, err := f.a.waiter.Element(ctx, f.drv, f.a.loc.UserID, f.a.cfg.UsernameTimeout)
	if err != nil {
		return StateFailed, err
	}
	if !ok {
		// No username field: either the session is already signed in, or a
		// trusted-device token skipped straight to the code prompt.
		if _, err := f.drv.Find(ctx, f.a.loc.LandingMarker); err == nil {
			f.log.Info("Session already authenticated.")
			if err := f.normalizeFocus(ctx); err != nil {
				return StateFailed, err
			}
			return StateAuthenticated, nil
		} else if !isTransient(err) {
			return StateFailed, err
		}
		if _, err := f.drv.Find(ctx, f.a.loc.OneTimeCode); err == nil {
			return StateMfaChallenge, nil
		} else if !isTransient(err) {
			return StateFailed, err
		}
		return StateFailed, fail(StateEnterUsername, "username field not found")
	}

	if err := el.Type(ctx, f.lc.Credentials.Username); err != nil {
		return StateFailed, err
	}
	if err := f.submit(ctx, el); err != nil {
		return StateFailed, err
	}
	return StatePostUsername, nil
}

// submit clicks the page's primary button when one is shown and otherwise
// presses Enter in the field.
func (f *flow) submit(ctx context.Context, field driver.Element) error {
	btn, visible, err := f.present(ctx, f.a.loc.SubmitButton)
	if err != nil {
		return err
	}
	if visible {
		return btn.Click(ctx)
	}
	return field.Submit(ctx)
}

func (f *flow) postUsername(ctx context.Context) (State, error) {
	if err := f.think(ctx); err != nil {
		return StateFailed, err
	}
	tile, visible, err := f.present(ctx, f.a.loc.FederationTile)
	if err != nil {
		return StateFailed, err
	}
	if visible {
		f.log.Debug("Selecting work account tile.")
		if err := tile.Click(ctx); err != nil {
			return StateFailed, err
		}
	}
	if err := f.think(ctx); err != nil {
		return StateFailed, err
	}

	if h := f.lc.RedirectHandler; h != nil {
		// Give the identity provider time to take over the page.
		if err := f.a.waiter.Sleep(ctx, f.a.cfg.RedirectWait); err != nil {
			return StateFailed, err
		}
		f.log.Info("Handing login to redirect handler.")
		err := h(ctx, RedirectEvent{Credentials: f.lc.Credentials, Driver: f.drv, SessionID: f.lc.SessionID})
		if err != nil {
			if _, tagged := command.KindOf(err); !tagged && !isTransient(err) {
				err = command.WrapFailure(command.KindApplicationError, err, "redirect handler failed")
			}
			return StateFailed, &StateError{State: StatePostUsername, Reason: "redirect handler failed", Err: err}
		}
		return StateRedirected, nil
	}
	return StateEnterPassword, nil
}

func (f *flow) enterPassword(ctx context.Context) (State, error) {
	el, ok, err := f.a.waiter.Element(ctx, f.drv, f.a.loc.Password, f.a.cfg.PasswordTimeout)
	if err != nil {
		return StateFailed, err
	}
	if !ok {
		return StateFailed, fail(StateEnterPassword, "password field not found")
	}
	if err := el.Type(ctx, f.lc.Credentials.Password); err != nil {
		return StateFailed, err
	}
	if err := f.submit(ctx, el); err != nil {
		return StateFailed, err
	}
	if err := f.think(ctx); err != nil {
		return StateFailed, err
	}
	return StateMfaChallenge, nil
}

// mfaChallenge enters a fresh one-time code. The code input may render late,
// so entry is retried a fixed number of times on not-found, stale and timeout
// faults. Anything else, such as an invalid secret, fails at once.
func (f *flow) mfaChallenge(ctx context.Context) (State, error) {
	if !f.lc.Credentials.HasMFA() {
		return StateStaySignedInPrompt, nil
	}
	attempts := max(f.a.cfg.MFARetryAttempts, 0)
	for attempt := 0; ; attempt++ {
		err := f.enterCode(ctx)
		if err == nil {
			return StateStaySignedInPrompt, nil
		}
		if ctx.Err() != nil {
			return StateFailed, ctx.Err()
		}
		switch command.Classify(err) {
		case command.KindNotFound, command.KindStaleReference, command.KindTimeout:
		default:
			return StateFailed, &StateError{State: StateMfaChallenge, Reason: "one-time code entry failed", Err: err}
		}
		f.log.Warn("One-time code entry failed.",
			zap.Int("attempt", attempt+1),
			zap.Int("of", attempts+1),
			zap.Error(err))
		if attempt >= attempts {
			return StateFailed, &StateError{State: StateMfaChallenge, Reason: "one-time code entry failed", Err: err}
		}
		if err := f.a.waiter.Sleep(ctx, f.a.cfg.MFARetryDelay); err != nil {
			return StateFailed, err
		}
	}
}

func (f *flow) enterCode(ctx context.Context) error {
	el, err := f.drv.Find(ctx, f.a.loc.OneTimeCode)
	if err != nil {
		return err
	}
	digits := f.a.cfg.MFADigits
	if digits == 0 {
		digits = totp.DefaultDigits
	}
	code, err := totp.GenerateCodeDigits(f.lc.Credentials.MFASecret, f.a.now(), digits)
	if err != nil {
		return err
	}
	if err := el.Type(ctx, code); err != nil {
		return err
	}
	return f.submit(ctx, el)
}

// staySignedIn answers the "stay signed in" prompt. Tenants that require MFA
// do not show it, so the wait is skipped when a secret was supplied.
func (f *flow) staySignedIn(ctx context.Context) (State, error) {
	if !f.lc.Credentials.HasMFA() {
		el, ok, err := f.a.waiter.Resolve(ctx, f.drv, "stay signed in prompt", wait.Visible(f.a.loc.StaySignedIn), f.a.cfg.StaySignedInTimeout)
		if err != nil {
			return StateFailed, err
		}
		if ok {
			if err := el.Click(ctx); err != nil && !isTransient(err) {
				return StateFailed, err
			}
		}
	}
	if err := f.think(ctx); err != nil {
		return StateFailed, err
	}
	return StateAwaitLanding, nil
}

func (f *flow) awaitLanding(ctx context.Context) (State, error) {
	reason := "login page failed: landing marker not found"
	if f.passThrough {
		reason = "pass-through login failed"
	}
	spec := f.a.waiter.Spec(f.a.cfg.LandingTimeout)
	spec.OnSatisfied = func(ctx context.Context, _ driver.Element) error {
		return f.normalizeFocus(ctx)
	}
	spec.OnTimeout = func(context.Context) error {
		return fail(StateAwaitLanding, reason)
	}
	if _, err := wait.Until(ctx, f.drv, wait.Visible(f.a.loc.LandingMarker), spec); err != nil {
		var se *StateError
		if errors.As(err, &se) {
			return StateFailed, err
		}
		return StateFailed, &StateError{State: StateAwaitLanding, Reason: "waiting for landing page", Err: err}
	}
	return StateAuthenticated, nil
}

// normalizeFocus lets the landing page settle and moves focus back to the
// top-level document so later commands start from a known frame.
func (f *flow) normalizeFocus(ctx context.Context) error {
	if err := f.a.waiter.Settled(ctx, f.drv); err != nil {
		return fmt.Errorf("landing page did not settle: %w", err)
	}
	return f.drv.SwitchToDefaultContent(ctx)
}

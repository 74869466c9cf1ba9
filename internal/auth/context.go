// internal/auth/context.go
package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/AngelRodriguez8008/EasyRepro/internal/driver"
)

// Context carries everything one login call needs. It is created per call
// and discarded when the call returns; browser session state (cookies) lives
// in the driver.
type Context struct {
	TargetURL       string
	Credentials     Credentials
	RedirectHandler RedirectHandler
	// SessionID correlates every log line of the call.
	SessionID string
}

// ContextOption customizes a Context.
type ContextOption func(*Context)

// WithRedirectHandler hands federation to h once the username is accepted.
func WithRedirectHandler(h RedirectHandler) ContextOption {
	return func(c *Context) { c.RedirectHandler = h }
}

// WithSessionID overrides the generated correlation id.
func WithSessionID(id string) ContextOption {
	return func(c *Context) { c.SessionID = id }
}

// NewContext builds a login context with a fresh session id.
func NewContext(targetURL string, creds Credentials, opts ...ContextOption) Context {
	c := Context{
		TargetURL:   targetURL,
		Credentials: creds,
		SessionID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// RedirectEvent is passed to a RedirectHandler. The driver is positioned on
// the identity provider's page after the username was accepted.
type RedirectEvent struct {
	Credentials Credentials
	Driver      driver.Driver
	SessionID   string
}

// RedirectHandler completes a federated login. Login returns Redirect right
// after the handler returns nil.
type RedirectHandler func(ctx context.Context, ev RedirectEvent) error

// internal/auth/credentials.go
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Credentials are the secrets a login consumes. They must never reach a log
// line or an error message; use Redacted for diagnostics.
type Credentials struct {
	Username  string
	Password  string
	MFASecret string
}

// Empty reports whether no username was supplied, which selects pass-through login.
func (c Credentials) Empty() bool { return c.Username == "" }

// HasMFA reports whether a one-time-code secret was supplied.
func (c Credentials) HasMFA() bool { return c.MFASecret != "" }

// Handle is a short, stable, non-reversible tag for the username so log lines
// from one account can be correlated.
func (c Credentials) Handle() string {
	if c.Username == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(c.Username))
	return hex.EncodeToString(sum[:4])
}

// Redacted returns a log field describing the credentials without their content.
func (c Credentials) Redacted() zap.Field {
	return zap.Object("credentials", redacted(c))
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{user:%s password:%t mfa:%t}", c.Handle(), c.Password != "", c.HasMFA())
}

// GoString keeps %#v from printing the fields.
func (c Credentials) GoString() string { return c.String() }

type redacted Credentials

func (r redacted) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	c := Credentials(r)
	enc.AddString("user", c.Handle())
	enc.AddBool("has_password", c.Password != "")
	enc.AddBool("has_mfa", c.HasMFA())
	return nil
}

// internal/totp/totp.go
// Package totp computes RFC 6238 time-based one-time passwords for the MFA
// step of the login flow. Codes are a pure function of the shared secret and
// the 30 second window containing the given instant.
package totp

import (
	"strings"
	"time"

	"github.com/AngelRodriguez8008/EasyRepro/internal/command"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Period is the length of one time step.
const Period = 30 * time.Second

// DefaultDigits is the code length used by GenerateCode.
const DefaultDigits = 6

// GenerateCode returns the six digit code for secret at t.
func GenerateCode(secret string, t time.Time) (string, error) {
	return GenerateCodeDigits(secret, t, DefaultDigits)
}

// GenerateCodeDigits returns a code of 6 to 8 digits. The secret is base32;
// whitespace, dashes, padding and lower case are tolerated. A malformed
// secret or digit count is a precondition failure.
func GenerateCodeDigits(secret string, t time.Time, digits int) (string, error) {
	if digits < 6 || digits > 8 {
		return "", command.NewFailure(command.KindPrecondition, "totp: unsupported code length %d", digits)
	}
	normalized := Normalize(secret)
	if normalized == "" {
		return "", command.NewFailure(command.KindPrecondition, "totp: empty secret")
	}

	code, err := totp.GenerateCodeCustom(normalized, t, totp.ValidateOpts{
		Period:    uint(Period / time.Second),
		Digits:    otp.Digits(digits),
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", command.WrapFailure(command.KindPrecondition, err, "totp: invalid secret")
	}
	return code, nil
}

// Normalize strips separators and padding and upper-cases the secret.
func Normalize(secret string) string {
	secret = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '-':
			return -1
		}
		return r
	}, secret)
	return strings.ToUpper(strings.TrimRight(secret, "="))
}

// Window returns the time-step counter containing t.
func Window(t time.Time) int64 {
	return t.Unix() / int64(Period/time.Second)
}

// Remaining returns how long the code for t stays valid.
func Remaining(t time.Time) time.Duration {
	next := time.Unix((Window(t)+1)*int64(Period/time.Second), 0)
	return next.Sub(t)
}

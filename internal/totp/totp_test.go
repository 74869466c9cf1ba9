// internal/totp/totp_test.go
package totp

import (
	"testing"
	"time"

	"github.com/AngelRodriguez8008/EasyRepro/internal/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// base32 of the ASCII seed "12345678901234567890" used by the RFC 6238 appendix.
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestGenerateCode_ReferenceVectors(t *testing.T) {
	cases := []struct {
		unix  int64
		eight string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
	}
	for _, tc := range cases {
		at := time.Unix(tc.unix, 0).UTC()

		code8, err := GenerateCodeDigits(rfcSecret, at, 8)
		require.NoError(t, err)
		assert.Equal(t, tc.eight, code8, "8 digits at %d", tc.unix)

		code6, err := GenerateCode(rfcSecret, at)
		require.NoError(t, err)
		assert.Equal(t, tc.eight[2:], code6, "6 digits at %d", tc.unix)
	}
}

func TestGenerateCode_Deterministic(t *testing.T) {
	at := time.Unix(1700000010, 0)
	a, err := GenerateCode(rfcSecret, at)
	require.NoError(t, err)
	b, err := GenerateCode(rfcSecret, at.Add(15*time.Second))
	require.NoError(t, err)
	assert.Equal(t, a, b, "same window, same code")
	assert.Len(t, a, 6)

	next, err := GenerateCode(rfcSecret, at.Add(Period))
	require.NoError(t, err)
	assert.NotEqual(t, a, next, "adjacent windows differ")
}

func TestGenerateCode_SecretNormalization(t *testing.T) {
	at := time.Unix(59, 0)
	want, err := GenerateCode(rfcSecret, at)
	require.NoError(t, err)

	for _, secret := range []string{
		"gezdgnbvgy3tqojqgezdgnbvgy3tqojq",
		"GEZD GNBV GY3T QOJQ GEZD GNBV GY3T QOJQ",
		"GEZD-GNBV-GY3T-QOJQ-GEZD-GNBV-GY3T-QOJQ",
		rfcSecret + "====",
	} {
		got, err := GenerateCode(secret, at)
		require.NoError(t, err, secret)
		assert.Equal(t, want, got, secret)
	}
}

func TestGenerateCode_Preconditions(t *testing.T) {
	at := time.Unix(59, 0)
	for name, fn := range map[string]func() (string, error){
		"empty secret":   func() (string, error) { return GenerateCode("  ", at) },
		"invalid base32": func() (string, error) { return GenerateCode("not-base32!!", at) },
		"too few digits": func() (string, error) { return GenerateCodeDigits(rfcSecret, at, 5) },
		"too many":       func() (string, error) { return GenerateCodeDigits(rfcSecret, at, 9) },
	} {
		t.Run(name, func(t *testing.T) {
			code, err := fn()
			assert.Empty(t, code)
			kind, ok := command.KindOf(err)
			require.True(t, ok)
			assert.Equal(t, command.KindPrecondition, kind)
		})
	}
}

func TestWindowAndRemaining(t *testing.T) {
	assert.Equal(t, int64(1), Window(time.Unix(59, 0)))
	assert.Equal(t, int64(2), Window(time.Unix(60, 0)))
	assert.Equal(t, time.Second, Remaining(time.Unix(59, 0)))
	assert.Equal(t, Period, Remaining(time.Unix(60, 0)))
}

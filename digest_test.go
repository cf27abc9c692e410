package wallcas

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDigestKnownValues(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"", "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"},
		{"hello", "0x1c8aff950685c2ed4bc3174f3472287b56d9517b9c948127319a09a7a36deac8"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Digest(tt.body).String(), "body %q", tt.body)
	}
}

func TestDigestDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		body := rapid.String().Draw(t, "body")
		assert.Equal(t, Digest(body), Digest(body))
		assert.True(t, Verify(body, Digest(body)))
	})
}

func TestDigestDistinctBodies(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.String().Draw(t, "a")
		b := rapid.String().Draw(t, "b")
		if a == b {
			return
		}
		assert.NotEqual(t, Digest(a), Digest(b))
	})
}

func TestDigestUnicode(t *testing.T) {
	body := "gm ☀️ wall, ünïcödé"
	a := Digest(body)
	assert.False(t, a.IsZero())
	assert.NotEqual(t, a, Digest(strings.ToUpper(body)))
}

func TestParseAddressRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := Digest(rapid.String().Draw(t, "body"))
		parsed, err := ParseAddress(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, parsed)

		parsed, err = ParseAddress(strings.ToUpper(a.String()[2:]))
		require.NoError(t, err)
		assert.Equal(t, a, parsed)
	})
}

func TestParseAddressMalformed(t *testing.T) {
	for _, in := range []string{
		"",
		"0x",
		"0x1234",
		"0x" + strings.Repeat("z", 64),
		"0x" + strings.Repeat("a", 65),
		strings.Repeat("a", 63),
	} {
		_, err := ParseAddress(in)
		assert.ErrorIs(t, err, ErrMalformedAddress, "input %q", in)
	}
}

func TestParseAddressesSkipsPlaceholders(t *testing.T) {
	a := Digest("one")
	b := Digest("two")

	got, err := ParseAddresses([]string{a.String(), "", "0xnope", b.String()})
	assert.ErrorIs(t, err, ErrMalformedAddress)
	assert.Equal(t, []Address{a, b}, got)

	got, err = ParseAddresses([]string{"", ""})
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestAddressText(t *testing.T) {
	a := Digest("text")
	text, err := a.MarshalText()
	require.NoError(t, err)

	var back Address
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, a, back)
	assert.Error(t, back.UnmarshalText([]byte("bad")))
}

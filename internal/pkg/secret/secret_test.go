package secret

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = Params{Memory: 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32}

func TestHash_RoundTrip(t *testing.T) {
	h := NewHasher(testParams)
	enc, err := h.Hash("123456")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(enc, "$argon2id$v=19$m=1024,t=1,p=1$"))
	assert.NotContains(t, enc, "123456")

	ok, err := h.Verify("123456", enc)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("654321", enc)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHash_SaltedPerCall(t *testing.T) {
	h := NewHasher(testParams)
	a, err := h.Hash("000000")
	require.NoError(t, err)
	b, err := h.Hash("000000")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerify_UsesEncodedParams(t *testing.T) {
	enc, err := NewHasher(testParams).Hash("999999")
	require.NoError(t, err)
	ok, err := NewHasher(DefaultParams).Verify("999999", enc)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_Malformed(t *testing.T) {
	h := NewHasher(testParams)
	for _, enc := range []string{"", "plain", "$bcrypt$x$y$z$w", "$argon2id$v=19$m=x$salt$key"} {
		_, err := h.Verify("1", enc)
		assert.ErrorIs(t, err, ErrMalformedHash, enc)
	}
}

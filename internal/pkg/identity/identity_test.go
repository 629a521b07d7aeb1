package identity

import (
	"testing"

	"github.com/facevote-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Alice@Example.com ", "alice@example.com"},
		{"bob@example.org", "bob@example.org"},
		{"+15551234567", "+15551234567"},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNormalize_Rejects(t *testing.T) {
	for _, in := range []string{"", "alice", "Alice <alice@example.com>", "+12ab", "5551234567"} {
		_, err := Normalize(in)
		assert.ErrorIs(t, err, domain.ErrBadRequest, in)
	}
}

func TestMask(t *testing.T) {
	assert.Equal(t, "a***@example.com", Mask("alice@example.com"))
	assert.Equal(t, "***4567", Mask("+15551234567"))
	assert.Equal(t, "***", Mask("ab"))
}

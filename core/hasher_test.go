package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// bcrypt.MinCost keeps the suite fast; the cost-12 default is checked separately.
func newTestHasher() *BcryptHasher {
	return NewBcryptHasher(bcrypt.MinCost)
}

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := newTestHasher()

	hash, err := h.Hash("s3cret!")
	require.NoError(t, err)
	require.True(t, h.Verify("s3cret!", hash))
	require.False(t, h.Verify("s3cret?", hash))
	require.False(t, h.Verify("", hash))
}

func TestBcryptHasherSaltsEveryHash(t *testing.T) {
	h := newTestHasher()

	a, err := h.Hash("password")
	require.NoError(t, err)
	b, err := h.Hash("password")
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.True(t, h.Verify("password", a))
	require.True(t, h.Verify("password", b))
}

func TestBcryptHasherMalformedHash(t *testing.T) {
	h := newTestHasher()

	for _, bad := range []string{"", "plain", "$2a$", "$2a$99$abcdefghijklmnopqrstuv", "$argon2id$v=19$m=1,t=1,p=1$xx$yy"} {
		require.False(t, h.Verify("password", bad), "hash %q", bad)
	}
}

func TestBcryptHasherDefaultCost(t *testing.T) {
	require.Equal(t, DefaultBcryptCost, NewBcryptHasher(0).Cost())
	require.Equal(t, DefaultBcryptCost, NewBcryptHasher(bcrypt.MaxCost+1).Cost())
	require.Equal(t, 12, DefaultBcryptCost)
}

func TestBcryptHasherNeedsRehash(t *testing.T) {
	low := newTestHasher()
	hash, err := low.Hash("password")
	require.NoError(t, err)

	require.False(t, low.NeedsRehash(hash))
	require.True(t, NewBcryptHasher(bcrypt.MinCost+1).NeedsRehash(hash))
	require.False(t, low.NeedsRehash("garbage"))
}

func TestBcryptHasherRejectsLongPassword(t *testing.T) {
	_, err := newTestHasher().Hash(strings.Repeat("x", 73))
	require.ErrorIs(t, err, ErrPasswordTooLong)
}

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")
	tok, err := GenerateToken("user-123", secret, now, time.Hour)
	require.NoError(t, err)

	got, err := GetUserIDFromToken(tok, secret, now.Add(59*time.Minute))
	require.NoError(t, err)
	require.Equal(t, "user-123", got)
}

func TestGetUserIDFromToken_Expired(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")
	tok, err := GenerateToken("u1", secret, now, time.Minute)
	require.NoError(t, err)

	_, err = GetUserIDFromToken(tok, secret, now.Add(2*time.Minute))
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestGetUserIDFromToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("u2", []byte("right-secret"), now, time.Hour)
	require.NoError(t, err)

	_, err = GetUserIDFromToken(tok, []byte("wrong-secret"), now)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestGetUserIDFromToken_MalformedString(t *testing.T) {
	t.Parallel()

	_, err := GetUserIDFromToken("not.a.jwt", []byte("k"), now)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestPassword(t *testing.T) {
	t.Parallel()

	h, err := HashPassword("correct horse")
	require.NoError(t, err)
	require.True(t, CheckPassword(h, "correct horse"))
	require.False(t, CheckPassword(h, "wrong horse"))

	h2, err := HashPassword("correct horse")
	require.NoError(t, err)
	require.NotEqual(t, h, h2, "salts differ")

	require.False(t, CheckPassword("garbage", "x"))
	require.False(t, CheckPassword("!!$!!", "x"))
}

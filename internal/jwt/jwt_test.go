package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndVerifyToken(t *testing.T) {
	issuer := NewIssuer("secret", false)

	tokenString, claims, err := issuer.CreateToken(false, 42, "ana@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)

	verified, err := issuer.VerifyToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, int64(42), verified.UserID)
	assert.Equal(t, "ana@example.com", verified.Email)
	assert.Equal(t, claims.ID, verified.ID)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), verified.ExpiresAt.Time, time.Minute)
}

func TestVerifyRejectsOtherSecret(t *testing.T) {
	tokenString, _, err := NewIssuer("secret", false).CreateToken(true, 1, "a@b.co")
	require.NoError(t, err)

	_, err = NewIssuer("other", false).VerifyToken(tokenString)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuer := NewIssuer("secret", false)
	issuer.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	tokenString, _, err := issuer.CreateToken(false, 1, "a@b.co")
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.VerifyToken(tokenString)
	assert.Error(t, err)
}

func TestRememberMeCookieExpires(t *testing.T) {
	issuer := NewIssuer("secret", true)

	tokenString, claims, err := issuer.CreateToken(true, 1, "a@b.co")
	require.NoError(t, err)
	cookie := issuer.Cookie(tokenString, claims.Remember, claims.ExpiresAt.Time)
	assert.True(t, cookie.Secure)
	assert.Equal(t, claims.ExpiresAt.Time, cookie.Expires)

	tokenString, claims, err = issuer.CreateToken(false, 1, "a@b.co")
	require.NoError(t, err)
	cookie = issuer.Cookie(tokenString, claims.Remember, claims.ExpiresAt.Time)
	assert.True(t, cookie.Expires.IsZero())
}

package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"flux/internal/auth"
	"flux/internal/backend"
	"flux/internal/backend/memory"
	"flux/internal/jwt"
	"flux/internal/keyValue"
	"flux/internal/snowflake"
	"flux/internal/validator"
)

func newService(t *testing.T) (*auth.Service, *memory.Users) {
	t.Helper()
	sugar := zap.NewNop().Sugar()
	ids, err := snowflake.New(1)
	require.NoError(t, err)
	cache := keyValue.NewLocal(sugar)
	t.Cleanup(cache.Close)

	users := memory.NewUsers()
	svc := auth.NewService(users, jwt.NewIssuer("secret", false), cache, ids, sugar).WithBcryptCost(bcrypt.MinCost)
	return svc, users
}

func TestSignUpAndSignIn(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	user, err := svc.SignUp(ctx, "ana@example.com", "Secret123")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)

	session, err := svc.SignIn(ctx, "ana@example.com", "Secret123", false)
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.User.ID)
	assert.Equal(t, "ana@example.com", session.User.Email)

	verified, err := svc.Verify(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, verified.User.ID)
	assert.Equal(t, "ana", verified.User.DisplayName())
}

func TestSignUpRejectsBadInput(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.SignUp(context.Background(), "not-an-email", "short")
	var fieldErrors validator.FieldErrors
	require.True(t, errors.As(err, &fieldErrors))
	assert.Equal(t, "bad_format", fieldErrors["email"])
	assert.Equal(t, "short_password", fieldErrors["password"])
}

func TestSignUpRejectsTakenEmail(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "ana@example.com", "Secret123")
	require.NoError(t, err)
	_, err = svc.SignUp(ctx, "ANA@example.com", "Secret123")
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
}

func TestSignInWrongPassword(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "ana@example.com", "Secret123")
	require.NoError(t, err)

	_, err = svc.SignIn(ctx, "ana@example.com", "Wrong123", false)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.SignIn(ctx, "nobody@example.com", "Secret123", false)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestSignOutRevokesToken(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "ana@example.com", "Secret123")
	require.NoError(t, err)
	session, err := svc.SignIn(ctx, "ana@example.com", "Secret123", true)
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(ctx, session.Token))

	_, err = svc.Verify(ctx, session.Token)
	assert.ErrorIs(t, err, backend.ErrUnauthenticated)
	assert.ErrorIs(t, err, auth.ErrSessionRevoked)
}

func TestVerifyDeletedUser(t *testing.T) {
	svc, users := newService(t)
	ctx := context.Background()

	user, err := svc.SignUp(ctx, "ana@example.com", "Secret123")
	require.NoError(t, err)
	session, err := svc.SignIn(ctx, "ana@example.com", "Secret123", false)
	require.NoError(t, err)

	users.Delete(user.ID)

	_, err = svc.Verify(ctx, session.Token)
	assert.ErrorIs(t, err, auth.ErrUserGone)
}

func TestVerifyGarbageToken(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Verify(context.Background(), "garbage")
	assert.ErrorIs(t, err, backend.ErrUnauthenticated)
}

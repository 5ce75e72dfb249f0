package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"flux/internal/backend"
	"flux/internal/jwt"
	"flux/internal/keyValue"
	"flux/internal/models"
	"flux/internal/snowflake"
	"flux/internal/validator"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrSessionRevoked     = errors.New("session was signed out")
	ErrUserGone           = errors.New("user no longer exists")
)

type Credentials struct {
	User         models.User
	PasswordHash []byte
}

// Users is where accounts are kept.
type Users interface {
	// Create fails with ErrEmailTaken when the email is already registered.
	Create(ctx context.Context, user models.User, passwordHash []byte) error
	// FindByEmail fails with backend.ErrNotFound for unknown emails.
	FindByEmail(ctx context.Context, email string) (Credentials, error)
	Exists(ctx context.Context, userID int64) (bool, error)
}

// Service is the session provider: sign up, sign in, sign out and token checks.
type Service struct {
	users      Users
	tokens     *jwt.Issuer
	cache      *keyValue.Cache
	ids        *snowflake.Generator
	sugar      *zap.SugaredLogger
	bcryptCost int
}

func NewService(users Users, tokens *jwt.Issuer, cache *keyValue.Cache, ids *snowflake.Generator, sugar *zap.SugaredLogger) *Service {
	return &Service{
		users:      users,
		tokens:     tokens,
		cache:      cache,
		ids:        ids,
		sugar:      sugar,
		bcryptCost: 12,
	}
}

// WithBcryptCost lowers the hashing cost, tests don't need the production one.
func (s *Service) WithBcryptCost(cost int) *Service {
	s.bcryptCost = cost
	return s
}

func (s *Service) SignUp(ctx context.Context, email, password string) (models.User, error) {
	registerErrors := validator.FieldErrors{}
	if err := validator.Email(email); err != nil {
		registerErrors["email"] = err.Error()
	}
	if err := validator.Password(password); err != nil {
		registerErrors["password"] = err.Error()
	}
	if len(registerErrors) > 0 {
		return models.User{}, registerErrors
	}

	userID, err := s.ids.Generate()
	if err != nil {
		return models.User{}, err
	}

	passwordBytes, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{ID: userID, Email: email}
	err = s.users.Create(ctx, user, passwordBytes)
	if err != nil {
		return models.User{}, err
	}

	s.sugar.Debugf("Registered user ID [%d]", userID)
	return user, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string, remember bool) (backend.Session, error) {
	credentials, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, backend.ErrNotFound) {
		return backend.Session{}, ErrInvalidCredentials
	} else if err != nil {
		return backend.Session{}, err
	}

	err = bcrypt.CompareHashAndPassword(credentials.PasswordHash, []byte(password))
	if err != nil {
		s.sugar.Debug(err)
		return backend.Session{}, ErrInvalidCredentials
	}

	return s.Issue(credentials.User, remember)
}

// Issue creates a new session token for an already verified user.
func (s *Service) Issue(user models.User, remember bool) (backend.Session, error) {
	tokenString, claims, err := s.tokens.CreateToken(remember, user.ID, user.Email)
	if err != nil {
		return backend.Session{}, err
	}
	return sessionFromClaims(tokenString, claims), nil
}

func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.tokens.VerifyToken(token)
	if err != nil {
		return fmt.Errorf("%w: %w", backend.ErrUnauthenticated, err)
	}

	// the token stays revoked until it would have expired anyway
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return s.cache.Set(ctx, revokedKey(claims.ID), "y", ttl)
}

func (s *Service) Verify(ctx context.Context, token string) (backend.Session, error) {
	claims, err := s.tokens.VerifyToken(token)
	if err != nil {
		return backend.Session{}, fmt.Errorf("%w: %w", backend.ErrUnauthenticated, err)
	}

	revoked, err := s.cache.Get(ctx, revokedKey(claims.ID))
	if err != nil {
		return backend.Session{}, err
	}
	if revoked != "" {
		return backend.Session{}, fmt.Errorf("%w: %w", backend.ErrUnauthenticated, ErrSessionRevoked)
	}

	// check if user exists
	key := fmt.Sprintf("user_exists:%d", claims.UserID)

	value, err := s.cache.Get(ctx, key)
	if err != nil {
		return backend.Session{}, err
	}

	if value == "" { // user isn't cached
		userFound, err := s.users.Exists(ctx, claims.UserID)
		if err != nil {
			return backend.Session{}, err
		}
		if !userFound {
			s.sugar.Warnf("User ID %d was not found in database", claims.UserID)
			return backend.Session{}, fmt.Errorf("%w: %w", backend.ErrUnauthenticated, ErrUserGone)
		}

		err = s.cache.Set(ctx, key, "y", 15*time.Minute)
		if err != nil {
			return backend.Session{}, err
		}
		s.sugar.Debugf("User ID %d was found in database and was cached", claims.UserID)
	}

	return sessionFromClaims(token, claims), nil
}

func sessionFromClaims(token string, claims jwt.UserToken) backend.Session {
	session := backend.Session{
		Token:    token,
		ID:       claims.ID,
		User:     models.User{ID: claims.UserID, Email: claims.Email},
		Remember: claims.Remember,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session
}

func revokedKey(tokenID string) string {
	return "revoked:" + tokenID
}

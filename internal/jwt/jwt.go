package jwt

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const CookieName = "JWT"

type UserToken struct {
	UserID   int64  `json:"userID"`
	Email    string `json:"email"`
	Remember bool   `json:"rem"`
	jwt.RegisteredClaims
}

type Issuer struct {
	jwtSecret []byte
	isHttps   bool
	now       func() time.Time
}

func NewIssuer(key string, isHttps bool) *Issuer {
	return &Issuer{jwtSecret: []byte(key), isHttps: isHttps, now: time.Now}
}

func (i *Issuer) CreateToken(rememberMe bool, userID int64, email string) (string, UserToken, error) {
	var tokenLifeTime time.Duration
	if rememberMe {
		tokenLifeTime = time.Hour * 24 * 7 * 4 // 4 weeks
	} else {
		tokenLifeTime = time.Hour * 24 // 1 day
	}

	tokenID, err := uuid.NewV7()
	if err != nil {
		return "", UserToken{}, err
	}

	currentTime := i.now().UTC()
	expirationDate := currentTime.Add(tokenLifeTime)

	claims := UserToken{
		UserID:   userID,
		Email:    email,
		Remember: rememberMe,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID.String(),
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(expirationDate),
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(i.jwtSecret)
	if err != nil {
		return "", UserToken{}, err
	}

	return tokenString, claims, nil
}

// Cookie wraps a token for the browser; without remember me it is a session cookie.
func (i *Issuer) Cookie(tokenString string, remember bool, expires time.Time) http.Cookie {
	cookie := http.Cookie{
		Name:     CookieName,
		Value:    tokenString,
		Path:     "/",
		HttpOnly: true,
		Secure:   i.isHttps,
		SameSite: http.SameSiteLaxMode,
	}

	if remember {
		cookie.Expires = expires
	}

	return cookie
}

func DeleteCookie() http.Cookie {
	return http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	}
}

// VerifyToken checks the signature and expiry of a token.
func (i *Issuer) VerifyToken(tokenString string) (UserToken, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserToken{}, func(token *jwt.Token) (interface{}, error) {
		return i.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return UserToken{}, err
	} else if claims, ok := token.Claims.(*UserToken); ok {
		return *claims, nil
	} else {
		return UserToken{}, errors.New("invalid token")
	}
}

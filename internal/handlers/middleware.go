package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"flux/internal/backend"
	"flux/internal/jwt"
	"flux/internal/shell"
)

// SessionHeader carries the id of the tab's UI session on every action.
const SessionHeader = "X-Session-ID"

// tokens are renewed once they are older than this
const renewAfter = 15 * time.Minute

type SessionKeyType struct{}
type UserSessionKeyType struct{}

func AllowCors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+SessionHeader)
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authenticate resolves the JWT cookie, renewing it when it is old enough.
func (h *Handlers) authenticate(w http.ResponseWriter, r *http.Request) (backend.Session, error) {
	jwtCookie, err := r.Cookie(jwt.CookieName)
	if err != nil {
		return backend.Session{}, backend.ErrUnauthenticated
	}

	session, err := h.auth.Verify(r.Context(), jwtCookie.Value)
	if errors.Is(err, backend.ErrUnauthenticated) {
		// the user deleted their account or signed out, but kept the cookie
		deleteCookie := jwt.DeleteCookie()
		http.SetCookie(w, &deleteCookie)
		return backend.Session{}, err
	} else if err != nil {
		return backend.Session{}, err
	}

	// renew JWT and cookie
	if time.Since(session.IssuedAt) >= renewAfter {
		renewed, err := h.auth.Issue(session.User, session.Remember)
		if err != nil {
			return backend.Session{}, err
		}
		h.setSessionCookie(w, renewed)
		session = renewed
	}

	return session, nil
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, session backend.Session) {
	cookie := h.tokens.Cookie(session.Token, session.Remember, session.ExpiresAt)
	http.SetCookie(w, &cookie)
}

func (h *Handlers) UserVerifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := h.authenticate(w, r)
		if errors.Is(err, backend.ErrUnauthenticated) {
			h.sugar.Debug(err)
			http.Error(w, "", http.StatusUnauthorized)
			return
		} else if err != nil {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}

		// this passes the authenticated user to the next handler
		ctx := context.WithValue(r.Context(), UserSessionKeyType{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionVerifier finds the tab's UI session, it must belong to the verified user.
func (h *Handlers) SessionVerifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.Header.Get(SessionHeader)
		if sessionID == "" {
			http.Error(w, "No session id was provided", http.StatusUnauthorized)
			return
		}

		client, exists := h.hub.GetClient(sessionID)
		if !exists {
			http.Error(w, "You are not connected to websocket", http.StatusUnauthorized)
			return
		}

		if client.UserID != userSession(r).User.ID {
			h.sugar.Warnf("User ID [%d] used session ID [%s] of another user", userSession(r).User.ID, sessionID)
			http.Error(w, "", http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), SessionKeyType{}, client.Session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userSession(r *http.Request) backend.Session {
	session, _ := r.Context().Value(UserSessionKeyType{}).(backend.Session)
	return session
}

func uiSession(r *http.Request) *shell.Session {
	session, _ := r.Context().Value(SessionKeyType{}).(*shell.Session)
	return session
}

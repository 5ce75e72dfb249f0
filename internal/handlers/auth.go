package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"flux/internal/auth"
	"flux/internal/jwt"
	"flux/internal/rabbitmq"
	"flux/internal/validator"
)

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	type Login struct {
		Email      string `json:"email" validate:"required"`
		Password   string `json:"password" validate:"required"`
		RememberMe bool   `json:"rememberMe"`
	}

	var login Login
	err := json.NewDecoder(r.Body).Decode(&login)
	if err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	err = validator.Struct(login)
	if err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	session, err := h.auth.SignIn(r.Context(), login.Email, login.Password, login.RememberMe)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusUnauthorized)
		return
	} else if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	h.setSessionCookie(w, session)
	h.audit.Emit(r.Context(), rabbitmq.EventSignedIn, session.User.UID(), nil)
	writeJSON(w, http.StatusOK, session.User)
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	type Registration struct {
		Email           string `json:"email" validate:"required"`
		Password        string `json:"password" validate:"required"`
		ConfirmPassword string `json:"confirmPassword" validate:"eqfield=Password"`
	}

	var registration Registration
	err := json.NewDecoder(r.Body).Decode(&registration)
	if err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	err = validator.Struct(registration)
	if err == nil {
		_, err = h.auth.SignUp(r.Context(), registration.Email, registration.Password)
	}

	var registerErrors validator.FieldErrors
	switch {
	case err == nil:
	case errors.As(err, &registerErrors):
		// sends back 400 with the form field errors
		writeJSON(w, http.StatusBadRequest, registerErrors)
		return
	case errors.Is(err, auth.ErrEmailTaken):
		writeJSON(w, http.StatusConflict, validator.FieldErrors{"email": "taken"})
		return
	default:
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	h.audit.Emit(r.Context(), rabbitmq.EventUserRegistered, "", map[string]any{"email": registration.Email})
	w.WriteHeader(http.StatusCreated)
}

// Logout revokes the token and closes every tab of the user.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	deleteCookie := jwt.DeleteCookie()

	jwtCookie, err := r.Cookie(jwt.CookieName)
	if err != nil {
		http.SetCookie(w, &deleteCookie)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	session, verifyErr := h.auth.Verify(r.Context(), jwtCookie.Value)

	err = h.auth.SignOut(r.Context(), jwtCookie.Value)
	if err != nil {
		h.sugar.Debug(err)
	}

	if verifyErr == nil {
		closed := h.hub.SignOutUser(session.User.ID)
		h.sugar.Debugf("Signed out user ID [%d], closed %d tabs", session.User.ID, closed)
		h.audit.Emit(r.Context(), rabbitmq.EventSignedOut, session.User.UID(), nil)
	}

	http.SetCookie(w, &deleteCookie)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	user := userSession(r).User

	writeJSON(w, http.StatusOK, map[string]string{
		"id":    user.UID(),
		"email": user.Email,
		"name":  user.DisplayName(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

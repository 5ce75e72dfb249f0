package handlers

import (
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"flux/internal/backend"
)

//go:embed static
var staticFS embed.FS

func staticFiles() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

func servePage(w http.ResponseWriter, name string, status int) {
	page, err := staticFS.ReadFile("static/" + name)
	if err != nil {
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(page)
}

// Page serves the app shell, or the sign in page to anyone not signed in. The
// tab tells its session which route it shows through Navigate.
func (h *Handlers) Page(w http.ResponseWriter, r *http.Request) {
	_, err := h.authenticate(w, r)
	if errors.Is(err, backend.ErrUnauthenticated) {
		servePage(w, "signin.html", http.StatusUnauthorized)
		return
	} else if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	servePage(w, "app.html", http.StatusOK)
}

func RedirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handlers) Navigate(w http.ResponseWriter, r *http.Request) {
	type NavigateRequest struct {
		Path string `json:"path"`
	}

	var request NavigateRequest
	err := json.NewDecoder(r.Body).Decode(&request)
	if err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	route := uiSession(r).Navigate(request.Path)
	writeJSON(w, http.StatusOK, map[string]any{"route": route, "redirected": route != request.Path})
}

package handlers

import (
	"net/http"
)

func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.hub.HandleClient(userSession(r).User, w, r)
}

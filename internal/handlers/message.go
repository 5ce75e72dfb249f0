package handlers

import (
	"encoding/json"
	"net/http"
)

// SendMessage answers before the write finished, a failed write is only logged.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	type SendMessageRequest struct {
		Text string `json:"text"`
	}

	var request SendMessageRequest
	err := json.NewDecoder(r.Body).Decode(&request)
	if err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	sent := uiSession(r).Send(r.Context(), request.Text)
	writeJSON(w, http.StatusAccepted, map[string]bool{"sent": sent})
}

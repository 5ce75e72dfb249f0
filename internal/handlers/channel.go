package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"flux/internal/directory"
	"flux/internal/validator"
)

func (h *Handlers) CreateChannel(w http.ResponseWriter, r *http.Request) {
	type CreateChannelRequest struct {
		Name string `json:"name" validate:"max=64"`
	}

	var request CreateChannelRequest
	err := json.NewDecoder(r.Body).Decode(&request)
	if err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	err = validator.Struct(request)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, err)
		return
	}

	id, err := uiSession(r).CreateChannel(r.Context(), request.Name)
	if errors.Is(err, directory.ErrEmptyName) {
		http.Error(w, "", http.StatusBadRequest)
		return
	} else if err != nil && id == "" {
		// already logged, the user sees nothing but the missing channel
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handlers) SelectChannel(w http.ResponseWriter, r *http.Request) {
	type SelectChannelRequest struct {
		ID string `json:"id" validate:"required,max=32"`
	}

	var request SelectChannelRequest
	err := json.NewDecoder(r.Body).Decode(&request)
	if err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	err = validator.Struct(request)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, err)
		return
	}

	err = uiSession(r).SelectChannel(r.Context(), request.ID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

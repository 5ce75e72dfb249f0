package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"flux/internal/preferences"
	"flux/internal/validator"
)

// maxUploadSize bounds one emoji upload request
const maxUploadSize = 16 << 20

func (h *Handlers) GetPreferences(w http.ResponseWriter, r *http.Request) {
	session := uiSession(r)

	err := session.Preferences.LoadIfUserChanged(r.Context())
	if err != nil {
		// the error flag in the state tells the user
		h.sugar.Debug(err)
	}

	writeJSON(w, http.StatusOK, session.Preferences.State())
}

// UpdatePreferences changes unsaved fields. Anything else in the body, the tier
// included, is rejected.
func (h *Handlers) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var patch preferences.Patch
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(&patch)
	if err != nil {
		h.sugar.Warnf("Rejected preferences update of user ID [%d]: %v", userSession(r).User.ID, err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	store := uiSession(r).Preferences
	store.Update(patch)
	writeJSON(w, http.StatusOK, store.State())
}

func (h *Handlers) EditPrefix(w http.ResponseWriter, r *http.Request) {
	type EditPrefixRequest struct {
		Action string `json:"action" validate:"oneof=add set"`
		Index  int    `json:"index" validate:"min=0"`
		Value  string `json:"value" validate:"max=32"`
	}

	var request EditPrefixRequest
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

	store := uiSession(r).Preferences
	if request.Action == "add" {
		err = store.AddPrefix()
	} else {
		err = store.SetPrefix(request.Index, request.Value)
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, store.State())
	case errors.Is(err, preferences.ErrPrefixLimit):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, preferences.ErrPrefixIndex):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
	}
}

func (h *Handlers) SavePreferences(w http.ResponseWriter, r *http.Request) {
	store := uiSession(r).Preferences

	err := store.Save(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, store.State())
		return
	}

	writeJSON(w, http.StatusOK, store.State())
}

func (h *Handlers) UploadEmoji(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	err := r.ParseMultipartForm(maxUploadSize)
	if err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	headers := r.MultipartForm.File["images"]
	if len(headers) == 0 {
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	uploads := make([]preferences.Upload, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusBadRequest)
			return
		}

		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		uploads = append(uploads, preferences.Upload{Name: header.Filename, ContentType: contentType, Data: data})
	}

	store := uiSession(r).Preferences
	err = store.UploadEmojiImages(r.Context(), uploads)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, store.State())
	case errors.Is(err, preferences.ErrEmojiLimit):
		writeJSON(w, http.StatusConflict, store.State())
	default:
		writeJSON(w, http.StatusInternalServerError, store.State())
	}
}

package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"readingsurvey/internal/model"
	"readingsurvey/internal/service"
	"readingsurvey/internal/textparse"
)

// TextHandler serves parsed catalog texts for diagnostics
type TextHandler struct {
	catalog service.CatalogSource
}

// NewTextHandler creates a new text handler
func NewTextHandler(catalog service.CatalogSource) *TextHandler {
	return &TextHandler{catalog: catalog}
}

// TextResponse is one parsed catalog entry
type TextResponse struct {
	TextID string           `json:"textId"`
	Topic  string           `json:"topic"`
	Parsed model.ParsedText `json:"parsed"`
}

// Get handles GET /v1/texts/{textId}
func (h *TextHandler) Get(w http.ResponseWriter, r *http.Request) {
	textID := mux.Vars(r)["textId"]

	cat, err := h.catalog.Wait(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	entry, ok := cat.Lookup(textID)
	if !ok {
		writeError(w, http.StatusNotFound, (&model.AssignmentNotFoundError{TextID: textID}).Error())
		return
	}

	writeJSON(w, http.StatusOK, TextResponse{
		TextID: textID,
		Topic:  entry.Topic,
		Parsed: textparse.Parse(entry.Text),
	})
}

package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"readingsurvey/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ErrorResponse is the body of a rejected session action
type ErrorResponse struct {
	Error  string             `json:"error"`
	Kind   string             `json:"kind,omitempty"`
	Fields []string           `json:"fields,omitempty"`
	View   *model.SessionView `json:"view,omitempty"`
}

// statusFor maps session errors to HTTP statuses
func statusFor(err error) int {
	var (
		valErr  *model.ValidationError
		missErr *model.AssignmentNotFoundError
		asgErr  *model.AssignmentError
		subErr  *model.SubmitError
		catErr  *model.CatalogLoadError
	)
	switch {
	case errors.Is(err, model.ErrTransitionInFlight), errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict
	case errors.As(err, &valErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &missErr):
		return http.StatusConflict
	case errors.As(err, &asgErr), errors.As(err, &subErr):
		return http.StatusBadGateway
	case errors.As(err, &catErr):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeSessionError(w http.ResponseWriter, err error, view *model.SessionView) {
	resp := ErrorResponse{
		Error: err.Error(),
		Kind:  model.ErrorKind(err),
		View:  view,
	}
	var valErr *model.ValidationError
	if errors.As(err, &valErr) {
		resp.Fields = valErr.Fields
	}
	switch {
	case errors.Is(err, model.ErrTransitionInFlight):
		resp.Kind = "in_flight"
	case errors.Is(err, model.ErrInvalidTransition):
		resp.Kind = "invalid_transition"
	}
	writeJSON(w, statusFor(err), resp)
}

package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"turnstile/internal/logging"
	"turnstile/internal/services"
)

// errorResponse is the failure half of the API envelope. Success is always
// false; it is serialized explicitly so clients can switch on one field.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// writeError maps the error onto an HTTP status and the envelope's kind
// field. Server-side failures are logged; client errors are not.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			logging.String("path", r.URL.Path),
			logging.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: errorKind(err)})
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, services.ErrValidation):
		return "validation"
	case errors.Is(err, services.ErrNotFound):
		return "not_found"
	case errors.Is(err, services.ErrConfiguration):
		return "configuration"
	case errors.Is(err, services.ErrTimeout):
		return "timeout"
	case errors.Is(err, services.ErrExternalService):
		return "external_service"
	case errors.Is(err, services.ErrCorruptData):
		return "corrupt_data"
	default:
		return "internal"
	}
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"fixora/internal/service"
	"fixora/internal/store"
)

type errorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Fields  []service.FieldError   `json:"fields,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

// writeJSON encodes before writing the header so that an unencodable payload
// becomes a 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		statusCode = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Error: errorDetail{Code: "internal", Message: "internal error"}})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorResponse{Error: errorDetail{Code: code, Message: message}})
}

// statusFor maps service errors onto HTTP responses.
func statusFor(err error) (int, errorDetail) {
	var verr *service.ValidationError
	var transitionErr *service.InvalidTransitionError

	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorDetail{Code: "validation_error", Message: err.Error(), Fields: verr.Fields}
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, errorDetail{Code: "not_found", Message: err.Error()}
	case errors.As(err, &transitionErr):
		return http.StatusConflict, errorDetail{
			Code:    "invalid_transition",
			Message: err.Error(),
			Details: map[string]interface{}{"from": transitionErr.From, "to": transitionErr.To},
		}
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, errorDetail{Code: "forbidden", Message: err.Error()}
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict, errorDetail{Code: "conflict", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorDetail{Code: "internal", Message: "internal error"}
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode, detail := statusFor(err)
	if statusCode >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeJSON(w, statusCode, errorResponse{Error: detail})
}

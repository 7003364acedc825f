package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/internal/logging"
	"github.com/kitchenai/kitchen/internal/machine"
	"github.com/kitchenai/kitchen/internal/session"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeInvariant      = "INVARIANT_VIOLATION"
	ErrCodeWaitTimeout    = "WAIT_TIMEOUT"
	ErrCodeStopped        = "SESSION_STOPPED"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Debug().Err(err).Msg("failed to write response")
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeErrorWithDetails writes an error response with details.
func writeErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// writeSuccess writes a success response.
func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// classify maps an error to its status and code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, machine.ErrInvariant):
		return http.StatusConflict, ErrCodeInvariant
	case errors.Is(err, session.ErrWaitTimeout):
		return http.StatusRequestTimeout, ErrCodeWaitTimeout
	case errors.Is(err, session.ErrStopped):
		return http.StatusGone, ErrCodeStopped
	case errors.Is(err, errIdentityRejected):
		return http.StatusForbidden, ErrCodeForbidden
	case errors.Is(err, event.ErrUnknownEvent), errors.Is(err, errEventNotAccepted):
		return http.StatusBadRequest, ErrCodeInvalidRequest
	}
	return http.StatusInternalServerError, ErrCodeInternalError
}

// writeErr writes the envelope for err.
func writeErr(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		logging.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, code, err.Error())
}

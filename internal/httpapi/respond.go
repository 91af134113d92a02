package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/claude/ingestd/internal/apperr"
)

// writeJSON is the one place that sets the content type and encodes the
// body, so every handler in this package responds the same way.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorResponse is the taxonomy-coded body every payload-level failure
// returns. It carries a stable code and a human message, never internal
// paths, store schema names, or stack traces.
type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code apperr.Code, message string) {
	writeJSON(w, status, errorResponse{Success: false, Code: string(code), Message: message})
}

// statusForCode maps a taxonomy code to its HTTP status. Codes with no
// payload-level HTTP mapping (validation_error, unknown_metric_type,
// parameter_limit_exceeded) only ever appear as itemized errors inside a
// 200/202 response body, never as the top-level failure here;
// store_transient appears both ways and, top-level, maps to 500.
func statusForCode(code apperr.Code) int {
	switch code {
	case apperr.CodeEmptyPayload, apperr.CodeParseError:
		return http.StatusBadRequest
	case apperr.CodeAuthMissingCredential, apperr.CodeAuthBadFormat, apperr.CodeAuthInvalidKey:
		return http.StatusUnauthorized
	case apperr.CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperr.CodeRateLimited:
		return http.StatusTooManyRequests
	case apperr.CodeCancelled, apperr.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

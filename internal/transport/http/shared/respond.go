// Package shared holds the response helpers every handler uses so error
// translation stays in one place.
package shared

import (
	"encoding/json"
	"net/http"

	dErrors "quizdeck/pkg/domainerrors"
)

// ErrorPayload is the wire shape of every rejected request: a stable reason
// code, a human-readable explanation, and an optional machine-readable next
// step for the client.
type ErrorPayload struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Action string `json:"action,omitempty"`
}

// WriteJSON serializes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error onto an HTTP response.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	payload := ErrorPayload{
		Error:  dErrors.MessageOf(err),
		Code:   string(code),
		Action: string(dErrors.ActionOf(err)),
	}
	WriteJSON(w, statusFor(code), payload)
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeQuotaExceeded:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

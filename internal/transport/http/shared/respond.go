// Package shared holds the JSON response helpers used by every HTTP handler
// so all endpoints speak the same envelope.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "vouchsafe/pkg/domain-errors"
)

// WriteJSON writes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the JSON error envelope. Errors
// without a code are reported as internal without leaking their message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	message := "internal error"
	var dErr *dErrors.Error
	if errors.As(err, &dErr) {
		message = dErr.Message
	}

	WriteJSON(w, status, map[string]string{
		"error":   string(code),
		"message": message,
	})
}

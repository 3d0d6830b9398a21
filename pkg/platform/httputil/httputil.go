// Package httputil centralizes JSON encoding and domain-error translation for
// the HTTP transport layer.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "custodia/pkg/domain-errors"
)

// WriteJSON encodes payload with the given status. Encoding failures are
// silently dropped; the status line has already been written.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// ErrorBody is the JSON error envelope. Details carries structured remediation
// hints (for example the list of valid access reasons) when the handler has
// them.
type ErrorBody struct {
	Error       string         `json:"error"`
	Description string         `json:"error_description,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// WriteError maps a domain error to an HTTP status and JSON envelope.
// Internal errors never leak their message to the client.
func WriteError(w http.ResponseWriter, err error) {
	WriteErrorDetails(w, err, nil)
}

// WriteErrorDetails is WriteError with an extra structured details object.
func WriteErrorDetails(w http.ResponseWriter, err error, details map[string]any) {
	code := dErrors.CodeOf(err)
	body := ErrorBody{Error: string(code), Details: details}
	if code != dErrors.CodeInternal {
		body.Description = dErrors.MessageOf(err)
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}

// Decode parses the request body into T, translating malformed JSON into a
// bad-request domain error the caller can hand straight to WriteError.
func Decode[T any](r *http.Request) (T, error) {
	var payload T
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return payload, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed JSON body")
	}
	return payload, nil
}

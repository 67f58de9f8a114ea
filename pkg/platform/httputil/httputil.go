// Package httputil holds the shared HTTP response and decoding helpers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "braza/pkg/domain-errors"
)

// maxBodyBytes bounds request bodies; ledger payloads are small.
const maxBodyBytes = 1 << 16

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteError maps a domain error onto its HTTP status. Internal errors
// never leak their message to the caller.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := errorBody{Error: string(code)}
	if code != dErrors.CodeInternal {
		var de *dErrors.Error
		if errors.As(err, &de) {
			body.Description = de.Message
		}
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}

// Decode reads and validates a JSON request body into T.
func Decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "malformed request body"))
		return req, false
	}
	return req, true
}

// Package shared holds the JSON read/write helpers used by every HTTP
// handler, so all endpoints speak one envelope.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "assent/pkg/domain-errors"
)

// ErrorResponse is the JSON error envelope returned by all endpoints.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// ReadJSON decodes the request body into dst, rejecting unknown fields so
// client typos surface as 400s instead of silently dropped data.
func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}

// WriteError renders a domain error as the JSON error envelope. Internal
// errors omit the description so infrastructure detail never reaches clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := ErrorResponse{Error: string(code)}

	var de *dErrors.DomainError
	if code != dErrors.CodeInternal && errors.As(err, &de) {
		resp.Description = de.Message
	}

	WriteJSON(w, dErrors.ToHTTPStatus(code), resp)
}

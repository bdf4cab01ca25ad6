// Package testutil carries the request and assertion helpers shared by
// handler and integration tests. Everything operates on httptest recorders
// and the JSON error envelope ({"error": code, "error_description": detail})
// the transport layer writes.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewRequest builds a bodyless request for the given method and path.
func NewRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, path, nil)
}

// NewRequestWithBody builds a request carrying a raw JSON payload. The body
// is taken verbatim so tests can send deliberately malformed documents.
func NewRequestWithBody(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DoRequest runs the request through the handler and captures the response.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// UnmarshalErrorResponse decodes the error envelope from the recorded body.
func UnmarshalErrorResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	envelope := map[string]string{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope),
		"response body is not an error envelope: %s", rr.Body.String())
	return envelope
}

// AssertStatus checks the recorded status code.
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	assert.Equal(t, want, rr.Code, "status code mismatch, body: %s", rr.Body.String())
}

// AssertStatusOK checks for 200 OK.
func AssertStatusOK(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	AssertStatus(t, rr, http.StatusOK)
}

// AssertStatusAndError checks the status code and the machine-readable code
// in the error envelope together, since handlers always set both.
func AssertStatusAndError(t *testing.T, rr *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	AssertStatus(t, rr, wantStatus)
	envelope := UnmarshalErrorResponse(t, rr)
	assert.Equal(t, wantCode, envelope["error"], "error code mismatch")
}

// AssertJSONContains decodes the body as a JSON object and checks a single
// top-level key against the expected value.
func AssertJSONContains(t *testing.T, rr *httptest.ResponseRecorder, key string, want any) {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc),
		"response body is not a JSON object: %s", rr.Body.String())
	assert.Equal(t, want, doc[key], "value mismatch for key %q", key)
}

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/trustgate/gateway/internal/credentials"
	"github.com/trustgate/gateway/internal/proxy"
)

// The error taxonomy. Low-level errors are logged with the admission's
// correlation id and mapped to these at the HTTP boundary; response bodies
// carry generic messages and never credential material or upstream 5xx
// payloads.
var (
	errAuth         = errors.New("missing or invalid session")
	errPolicyDenied = errors.New("request not approved")
	errConfig       = errors.New("gateway configuration error")
	errUpstream     = errors.New("upstream request failed")
	errNotFound     = errors.New("not found")
	errBadRequest   = errors.New("malformed request")
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, errAuth):
		return http.StatusUnauthorized
	case errors.Is(err, errPolicyDenied):
		return http.StatusForbidden
	case errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, errUpstream), errors.Is(err, proxy.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, proxy.ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, proxy.ErrSigningRequired), errors.Is(err, credentials.ErrNotFound), errors.Is(err, errConfig):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeError emits the JSON error body. Messages are the taxonomy's
// generic strings; detail stays in the log, keyed by request id.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// failRequest logs the underlying error under the correlation id and writes
// the redacted boundary response.
func failRequest(w http.ResponseWriter, requestID string, err error) {
	status := statusFor(err)
	slog.Error("admission failed", "request_id", requestID, "status", status, "error", err)

	message := "internal server error"
	switch status {
	case http.StatusUnauthorized:
		message = "missing or invalid session"
	case http.StatusForbidden:
		message = "request not approved"
	case http.StatusNotFound:
		message = "not found"
	case http.StatusBadRequest:
		message = "malformed request"
	case http.StatusBadGateway:
		message = "upstream request failed"
	case http.StatusMethodNotAllowed:
		message = "method not allowed"
	}
	writeError(w, status, message)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// Package httputil provides the JSON request and response helpers
// shared by the HTTP handlers and middleware.
package httputil

import (
	"encoding/json"
	"io"
	"net/http"
)

// ErrorBody is the error envelope every non-2xx JSON response carries.
type ErrorBody struct {
	Message    string `json:"message"`
	ErrorCode  string `json:"error_code"`
	Resolution string `json:"resolution,omitempty"`
}

// Error codes used across the API surface.
const (
	CodeBadRequest         = "bad_request"
	CodeUnauthorized       = "unauthorized"
	CodeNotFound           = "not_found"
	CodeRateLimited        = "rate_limited"
	CodeServerError        = "server_error"
	CodeServiceUnavailable = "service_unavailable"
)

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes the error envelope with the given status.
func WriteError(w http.ResponseWriter, status int, code, message, resolution string) {
	WriteJSON(w, status, ErrorBody{Message: message, ErrorCode: code, Resolution: resolution})
}

// DecodeJSON decodes a request body, rejecting unknown fields.
func DecodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

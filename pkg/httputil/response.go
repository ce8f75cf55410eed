// Package httputil provides HTTP handler utilities for the standard Telesis
// response envelope, error codes, security headers, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Error codes returned in the response envelope. Clients switch on these,
// never on error message text.
const (
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeOrgSelectionRequired    = "ORGANIZATION_SELECTION_REQUIRED"
	CodeForbiddenCrossTenant    = "FORBIDDEN_CROSS_TENANT_ACCESS"
	CodeForbiddenImpersonation  = "FORBIDDEN_IMPERSONATION"
	CodeOrganizationIDConflict  = "ORGANIZATION_ID_CONFLICT"
	CodeStripeCustomerConflict  = "STRIPE_CUSTOMER_CONFLICT"
	CodeValidationFailed        = "VALIDATION_FAILED"
	CodeRateLimited             = "RATE_LIMITED"
	CodeNotFound                = "NOT_FOUND"
	CodeInternalError           = "INTERNAL_ERROR"
)

// Envelope is the fixed JSON shape of every API response
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// SetSecurityHeaders applies the fixed security response headers. Applied on
// every API response path, including errors.
func SetSecurityHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-XSS-Protection", "1; mode=block")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	SetSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 response with the success envelope
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// WriteSuccessMeta writes a 200 response with data and meta
func WriteSuccessMeta(w http.ResponseWriter, data, meta interface{}) error {
	return WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data, Meta: meta})
}

// WriteCreated writes a 201 response with the success envelope
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

// WriteErrorCode writes an error envelope with the given status and code
func WriteErrorCode(w http.ResponseWriter, status int, message, code string) {
	WriteJSON(w, status, Envelope{Success: false, Error: message, Code: code}) //nolint:errcheck
}

// WriteUnauthorized writes a 401 with the UNAUTHORIZED code and the
// WWW-Authenticate challenge. The message is fixed; resolver errors never
// reach the client.
func WriteUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	WriteErrorCode(w, http.StatusUnauthorized, "authentication required", CodeUnauthorized)
}

// WriteValidationError writes a 400 with the VALIDATION_FAILED code
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusBadRequest, message, CodeValidationFailed)
}

// WriteNotFound writes a 404 with the NOT_FOUND code
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusNotFound, message, CodeNotFound)
}

// WriteConflict writes a 409 with a conflict code
func WriteConflict(w http.ResponseWriter, message, code string) {
	WriteErrorCode(w, http.StatusConflict, message, code)
}

// WriteForbidden writes a 403 with the given code
func WriteForbidden(w http.ResponseWriter, message, code string) {
	WriteErrorCode(w, http.StatusForbidden, message, code)
}

// WriteRateLimited writes a 429 with a Retry-After hint derived from the
// window reset time.
func WriteRateLimited(w http.ResponseWriter, resetTime time.Time) {
	retryAfter := int(time.Until(resetTime).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	WriteErrorCode(w, http.StatusTooManyRequests, "rate limit exceeded", CodeRateLimited)
}

// WriteInternalError writes a sanitized 500. The underlying error is logged
// server-side by the caller, never sent to the client.
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorCode(w, http.StatusInternalServerError, "internal server error", CodeInternalError)
}

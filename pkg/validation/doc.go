// Package validation provides JSON-schema based request body validation.
// Handlers declare a compiled Schema per write endpoint and decode request
// bodies through it; violations are reported as a single "field: message"
// list suitable for a 400 response.
package validation

package validation

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema wraps a compiled JSON schema for request body validation.
type Schema struct {
	compiled *gojsonschema.Schema
}

// MustCompile compiles a schema document and panics on failure. Schemas are
// package-level constants, so a bad one is a programming error.
func MustCompile(document string) *Schema {
	s, err := Compile(document)
	if err != nil {
		panic(fmt.Sprintf("validation: invalid schema: %v", err))
	}
	return s
}

// Compile compiles a schema document
func Compile(document string) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(document))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &Schema{compiled: compiled}, nil
}

// Error carries the validation failure message returned to the client.
// Field errors are concatenated as "field: message" pairs.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// ErrInvalidJSON is returned when the body is not parseable JSON
var ErrInvalidJSON = &Error{Message: "Invalid JSON format"}

// DecodeBody validates the request body against the schema and decodes it
// into dst. Non-JSON content types, malformed JSON, and schema violations
// all return *Error suitable for a 400 response.
func (s *Schema) DecodeBody(r *http.Request, dst interface{}) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return &Error{Message: "Content-Type must be application/json"}
		}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return ErrInvalidJSON
	}

	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return ErrInvalidJSON
	}

	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return ErrInvalidJSON
	}
	if !result.Valid() {
		return &Error{Message: formatErrors(result.Errors())}
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return ErrInvalidJSON
	}
	return nil
}

// formatErrors renders schema violations as "field: message" pairs joined
// with ", ". Errors are sorted by field so the message is deterministic.
func formatErrors(errs []gojsonschema.ResultError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		field := e.Field()
		if field == "(root)" {
			if prop, ok := e.Details()["property"].(string); ok {
				field = prop
			}
		}
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Description()))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

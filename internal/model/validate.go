package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// MaxLayoutTypeLen bounds the length of a layout type in bytes.
const MaxLayoutTypeLen = 128

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateLayoutType checks that t can be used as a layout type and as a
// path segment on the remote API.
func ValidateLayoutType(t string) error {
	if fe := checkLayoutType(t); fe != nil {
		return &ValidationError{Errors: []FieldError{*fe}}
	}
	return nil
}

// ValidateLayoutConfig checks that config is a JSON object.
func ValidateLayoutConfig(config json.RawMessage) error {
	if fe := checkLayoutConfig(config); fe != nil {
		return &ValidationError{Errors: []FieldError{*fe}}
	}
	return nil
}

// ValidateLayoutInput checks both fields of a remote upsert request.
func ValidateLayoutInput(in *LayoutInput) error {
	var ve ValidationError
	if fe := checkLayoutType(in.Type); fe != nil {
		ve.Errors = append(ve.Errors, *fe)
	}
	if fe := checkLayoutConfig(in.Config); fe != nil {
		ve.Errors = append(ve.Errors, *fe)
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func checkLayoutType(t string) *FieldError {
	switch {
	case t == "":
		return &FieldError{Field: "layout_type", Message: "is required"}
	case len(t) > MaxLayoutTypeLen:
		return &FieldError{Field: "layout_type", Message: fmt.Sprintf("must be %d bytes or fewer", MaxLayoutTypeLen)}
	case strings.ContainsRune(t, '/') || strings.IndexFunc(t, unicode.IsSpace) >= 0:
		return &FieldError{Field: "layout_type", Message: "must not contain '/' or whitespace"}
	}
	return nil
}

func checkLayoutConfig(config json.RawMessage) *FieldError {
	trimmed := bytes.TrimSpace(config)
	if len(trimmed) == 0 {
		return &FieldError{Field: "layout_config", Message: "is required"}
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return &FieldError{Field: "layout_config", Message: "must be a JSON object"}
	}
	return nil
}

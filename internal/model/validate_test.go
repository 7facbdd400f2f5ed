package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestValidateLayoutType(t *testing.T) {
	for _, tc := range []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Simple", "nicu_widgets", false},
		{"Dashes", "children-dashboard", false},
		{"Empty", "", true},
		{"Slash", "a/b", true},
		{"Space", "my layout", true},
		{"TooLong", strings.Repeat("x", MaxLayoutTypeLen+1), true},
		{"MaxLength", strings.Repeat("x", MaxLayoutTypeLen), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateLayoutType(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateLayoutType(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
			if err != nil {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("expected *ValidationError, got %T", err)
				}
			}
		})
	}
}

func TestValidateLayoutConfig(t *testing.T) {
	for _, tc := range []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Object", `{"fontSize":14}`, false},
		{"EmptyObject", `{}`, false},
		{"LeadingSpace", `  {"a":1}`, false},
		{"Empty", ``, true},
		{"Array", `[1,2]`, true},
		{"Scalar", `42`, true},
		{"Broken", `{"a":`, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateLayoutConfig(json.RawMessage(tc.input))
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateLayoutConfig(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
		})
	}
}

func TestValidateLayoutInput_CollectsAllErrors(t *testing.T) {
	err := ValidateLayoutInput(&LayoutInput{Type: "", Config: json.RawMessage(`[]`)})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(ve.Errors) != 2 {
		t.Fatalf("expected 2 field errors, got %d: %v", len(ve.Errors), ve)
	}
	if !strings.Contains(err.Error(), "layout_type") || !strings.Contains(err.Error(), "layout_config") {
		t.Errorf("error message = %q", err.Error())
	}
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package validate_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/identity/internal/platform/apperr"
	"github.com/taibuivan/identity/internal/platform/validate"
)

/*
TestValidator_Required tests the mandatory field validation logic.
*/
func TestValidator_Required(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		hasError bool
	}{
		{"valid_string", "Yomira", false},
		{"empty_string", "", true},
		{"whitespace_only", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &validate.Validator{}
			v.Required("display_name", tt.value)

			if !tt.hasError {
				assert.False(t, v.HasErrors())
				assert.Nil(t, v.Err())
				return
			}

			ae := apperr.As(v.Err())
			require.NotNil(t, ae)
			assert.Equal(t, "VALIDATION_ERROR", ae.Code)
			assert.Equal(t, "display_name", ae.Details[0].Field)
		})
	}
}

/*
TestValidator_Email checks the email format validation rule.
*/
func TestValidator_Email(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		isValid bool
	}{
		{"valid_email", "test@example.com", true},
		{"surrounding_space", "  test@example.com ", true},
		{"display_name_form", "Tai <tai@yomira.app>", false},
		{"invalid_format", "invalid-email", false},
		{"missing_domain", "test@", false},
		{"too_long", strings.Repeat("a", 250) + "@x.io", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &validate.Validator{}
			v.Email("email", tt.email)
			assert.Equal(t, !tt.isValid, v.HasErrors())
		})
	}
}

func TestValidator_UUID(t *testing.T) {
	assert.False(t, (&validate.Validator{}).UUID("id", "0190a6b2-7c1e-7d3a-9f00-1234567890ab").HasErrors())
	assert.True(t, (&validate.Validator{}).UUID("id", "not-a-uuid").HasErrors())
	assert.True(t, (&validate.Validator{}).UUID("id", "{0190a6b2-7c1e-7d3a-9f00-1234567890ab}").HasErrors())
}

/*
TestValidator_Chain_Failure tests error accumulation in the chain.
*/
func TestValidator_Chain_Failure(t *testing.T) {
	v := &validate.Validator{}

	err := v.
		Required("display_name", "").
		MinLen("display_name", "a", 5).
		Email("email", "not-an-email").
		OneOf("role", "root", "admin", "member").
		Err()

	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Len(t, ae.Details, 4)
}

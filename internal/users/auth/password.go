// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/taibuivan/identity/internal/platform/apperr"
)

// MaxPasswordLength caps input before hashing; bcrypt ignores bytes past 72.
const MaxPasswordLength = 72

// PasswordPolicy holds the strength rules applied on Register, ResetPassword and ChangePassword.
type PasswordPolicy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPasswordPolicy requires eight characters with upper, lower, digit and symbol.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:     8,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
	}
}

// Reasons returns every rule the password breaks, or nil.
func (policy PasswordPolicy) Reasons(password string) []string {
	var reasons []string

	length := utf8.RuneCountInString(password)
	if policy.MinLength > 0 && length < policy.MinLength {
		reasons = append(reasons, fmt.Sprintf("must be at least %d characters", policy.MinLength))
	}
	if len(password) > MaxPasswordLength {
		reasons = append(reasons, fmt.Sprintf("must be at most %d bytes", MaxPasswordLength))
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}

	if policy.RequireUpper && !hasUpper {
		reasons = append(reasons, "must contain an uppercase letter")
	}
	if policy.RequireLower && !hasLower {
		reasons = append(reasons, "must contain a lowercase letter")
	}
	if policy.RequireDigit && !hasDigit {
		reasons = append(reasons, "must contain a digit")
	}
	if policy.RequireSymbol && !hasSymbol {
		reasons = append(reasons, "must contain a symbol")
	}

	return reasons
}

// Check returns a WEAK_PASSWORD error listing the broken rules under field, or nil.
func (policy PasswordPolicy) Check(field, password string) error {
	reasons := policy.Reasons(password)
	if len(reasons) == 0 {
		return nil
	}

	details := make([]apperr.FieldError, 0, len(reasons))
	for _, reason := range reasons {
		details = append(details, apperr.FieldError{Field: field, Message: reason})
	}

	return newWeakPasswordError(details)
}

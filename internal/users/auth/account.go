// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements account authentication and the credential lifecycle.

It defines the core domain entities (Account, Session), the purpose-bound
security tokens, the lockout and password policies, and the [Service] that
drives registration, email confirmation, email change, login and password reset.

# Architecture

This layer is the "Truth" of the system. Storage, delivery and hashing are
reached through small capability interfaces ([CredentialStore], [Notifier],
[PasswordHasher]) so the rules can be exercised without a database.
*/
package auth

import (
	"fmt"
	"time"

	"github.com/taibuivan/identity/internal/platform/sec"
)

// # Domain Entities

// Account represents a registered identity.
type Account struct {
	ID              string       `json:"id"`
	Email           string       `json:"email"`
	NormalizedEmail string       `json:"-"`
	PasswordHash    string       `json:"-"` // Explicitly omitted from JSON for security.
	SecurityStamp   string       `json:"-"`
	EmailConfirmed  bool         `json:"email_confirmed"`
	Lockout         LockoutState `json:"lockout"`
	Role            sec.UserRole `json:"role"`
	DisplayName     string       `json:"display_name"`
	Bio             string       `json:"bio,omitempty"`

	// Version is the optimistic concurrency token checked by [CredentialStore.Save].
	Version int64 `json:"-"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Session represents an active refresh-token session.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"` // Hashed value of the refresh token. Omitted for security.
	UserAgent string    `json:"user_agent"`
	IPAddress string    `json:"ip_address"`
	ExpiresAt time.Time `json:"expires_at"`
	IsRevoked bool      `json:"is_revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// newSecurityStamp returns a fresh random stamp.
func newSecurityStamp() (string, error) {
	stamp, err := sec.GenerateSecureToken(SecurityStampLength)
	if err != nil {
		return "", fmt.Errorf("auth_security_stamp_failed: %w", err)
	}
	return stamp, nil
}

// rotateSecurityStamp invalidates every security token issued for the account so far.
func (account *Account) rotateSecurityStamp() error {
	stamp, err := newSecurityStamp()
	if err != nil {
		return err
	}
	account.SecurityStamp = stamp
	return nil
}

// # Field Identifiers

// Global field names for validation and identity mapping in the authentication domain.
const (
	FieldEmail           = "email"
	FieldNewEmail        = "new_email"
	FieldPassword        = "password"
	FieldDisplayName     = "display_name"
	FieldAccountID       = "account_id"
	FieldToken           = "token"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
	FieldAccessToken     = "access_token"
	FieldTokenType       = "token_type"
	FieldExpiresIn       = "expires_in"
	FieldAccount         = "account"
	FieldMessage         = "message"
)

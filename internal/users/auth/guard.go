// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/taibuivan/identity/internal/platform/sec"
)

// AccountFinder loads a live account by ID. Satisfied by [CredentialStore].
type AccountFinder interface {
	FindByID(context context.Context, id string) (*Account, error)
}

// AccessGuard rejects access tokens issued before the account's security
// stamp last rotated, or for accounts that no longer exist.
//
// It implements middleware.ClaimsValidator.
type AccessGuard struct {
	accounts AccountFinder
}

// NewAccessGuard constructs an [AccessGuard] over the account store.
func NewAccessGuard(accounts AccountFinder) *AccessGuard {
	return &AccessGuard{accounts: accounts}
}

/*
ValidateClaims compares the token's stamp fingerprint with the stored account.

Description: Password reset, password change, email change and confirmation all
rotate the stamp, and soft-deleted accounts are no longer found, so access
tokens issued before any of those stop working at once rather than at expiry.
Tokens without a fingerprint are refused.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims (already signature-verified)

Returns:
  - error: ErrAccessRevoked or lookup failures
*/
func (guard *AccessGuard) ValidateClaims(context context.Context, claims *sec.AuthClaims) error {
	if claims.Stamp == "" {
		return ErrAccessRevoked
	}

	account, err := guard.accounts.FindByID(context, claims.UserID)
	if errors.Is(err, ErrAccountNotFound) {
		return ErrAccessRevoked
	}
	if err != nil {
		return fmt.Errorf("auth_access_guard_lookup_failed: %w", err)
	}

	current := sec.StampFingerprint(account.SecurityStamp)
	if subtle.ConstantTimeCompare([]byte(current), []byte(claims.Stamp)) != 1 {
		return ErrAccessRevoked
	}

	return nil
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package account handles the owner's view of an identity.

It lets an authenticated account read its own profile (including confirmation
and lockout state), edit the mutable profile fields, delete itself, and manage
its active refresh-token sessions.

# Architecture

  - Entities: Profile, SessionInfo (DTO).
  - Domain: This package depends on the auth package for the Account and Session entities.
  - Security: Provides session transparency and revocation mechanisms.
*/
package account

import (
	"context"
	"time"

	"github.com/taibuivan/identity/internal/users/auth"
)

// # Domain Entities

// Profile is the private view of an account served to its owner.
type Profile struct {
	*auth.Account

	// LockedOut reports whether sign-in is currently refused for the account.
	LockedOut bool `json:"locked_out"`
}

// SessionInfo provides a safety-mapped view of an active session.
// It omits sensitive token hashes for transport.
type SessionInfo struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"user_agent"`
	IPAddress string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IsCurrent bool      `json:"is_current"` // True if this session belongs to the current request
}

// # Repository Contracts

// ProfileStore defines the persistence contract for profile fields.
type ProfileStore interface {
	/*
		FindByID retrieves a non-deleted account by its unique ID.

		Returns:
		  - *auth.Account: Loaded account entity
		  - error: auth.ErrAccountNotFound or storage failures
	*/
	FindByID(context context.Context, id string) (*auth.Account, error)

	/*
		UpdateProfile writes DisplayName and Bio under optimistic concurrency.

		Parameters:
		  - context: context.Context
		  - account: *auth.Account (Version is the version it was read at)

		Returns:
		  - error: auth.ErrVersionConflict or storage failures
	*/
	UpdateProfile(context context.Context, account *auth.Account) error

	/*
		SoftDelete flags an account as logically deleted.

		Returns:
		  - error: auth.ErrAccountNotFound when nothing live matched
	*/
	SoftDelete(context context.Context, id string) error
}

// SessionRepository is the subset of [auth.SessionRepository] used by this package.
type SessionRepository interface {
	FindByTokenHash(context context.Context, tokenHash string) (*auth.Session, error)
	ListActive(context context.Context, userID string) ([]*auth.Session, error)
	Revoke(context context.Context, userID, sessionID string) error
	RevokeAll(context context.Context, userID string) error
	RevokeOthers(context context.Context, userID, currentSessionID string) error
}

// # Field Identifiers

const (
	FieldDisplayName = "display_name"
	FieldBio         = "bio"
	FieldSessionID   = "id"
)

// # Profile Constraints

const (
	DisplayNameMinLength = 2
	DisplayNameMaxLength = auth.DisplayNameMaxLength
	BioMaxLength         = 500
)

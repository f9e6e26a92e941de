// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"time"

	"github.com/taibuivan/identity/internal/platform/notify"
	"github.com/taibuivan/identity/internal/platform/sec"
	"github.com/taibuivan/identity/internal/platform/throttle"
)

// # Credential Data Access

// CredentialStore defines the data access contract for accounts.
type CredentialStore interface {

	/*
		FindByID returns the non-deleted account with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *Account: Hydrated entity
		  - error: [ErrAccountNotFound] or database retrieval failures
	*/
	FindByID(context context.Context, id string) (*Account, error)

	/*
		FindByEmail returns the non-deleted account whose normalized email matches.

		Parameters:
		  - context: context.Context
		  - normalizedEmail: string (see [NormalizeEmail])

		Returns:
		  - *Account: Hydrated entity
		  - error: [ErrAccountNotFound] or database retrieval failures
	*/
	FindByEmail(context context.Context, normalizedEmail string) (*Account, error)

	/*
		Create persists a brand-new account and sets its Version to 1.

		Parameters:
		  - context: context.Context
		  - account: *Account

		Returns:
		  - error: [ErrDuplicateEmail] or persistence failures
	*/
	Create(context context.Context, account *Account) error

	/*
		Save writes the credential and lockout fields of an account previously read
		at account.Version, then increments Version.

		Parameters:
		  - context: context.Context
		  - account: *Account

		Returns:
		  - error: [ErrVersionConflict], [ErrDuplicateEmail] or persistence failures
	*/
	Save(context context.Context, account *Account) error
}

// # Session Data Access

// SessionRepository defines the data access contract for refresh-token sessions.
type SessionRepository interface {

	/*
		Create persists a new tracking session for an authenticated login.

		Parameters:
		  - context: context.Context
		  - session: *Session

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, session *Session) error

	/*
		FindByTokenHash returns the active session matching the given token hash.

		Parameters:
		  - context: context.Context
		  - tokenHash: string

		Returns:
		  - *Session: Hydrated entity
		  - error: Not found or database retrieval failures
	*/
	FindByTokenHash(context context.Context, tokenHash string) (*Session, error)

	// ListActive returns the live sessions of a user, newest first.
	ListActive(context context.Context, userID string) ([]*Session, error)

	// Revoke marks a specific session of userID as permanently invalidated.
	Revoke(context context.Context, userID, sessionID string) error

	// RevokeAll revokes every active session belonging to the userID.
	RevokeAll(context context.Context, userID string) error

	// RevokeOthers revokes all sessions belonging to the userID except for the current session.
	RevokeOthers(context context.Context, userID, currentSessionID string) error

	// DeleteExpired physically removes sessions whose ExpiresAt is in the past.
	DeleteExpired(context context.Context) (int64, error)
}

// # Collaborators

// PasswordHasher hashes and verifies secrets. Implemented by sec.BcryptHasher.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) bool
}

// Notifier delivers rendered messages asynchronously. Enqueue must not block.
type Notifier interface {
	Enqueue(ctx context.Context, message notify.Message) error
}

// Throttle bounds how often one key may trigger outbound mail.
type Throttle interface {
	Allow(ctx context.Context, key string) (throttle.Result, error)
}

// AccessTokenIssuer signs access tokens for authenticated sessions.
type AccessTokenIssuer interface {
	GenerateAccessToken(userID, email, role string, ttl time.Duration, opts ...sec.AccessOption) (string, error)
}

// OutcomeRecorder counts lifecycle outcomes, typically as Prometheus counters.
type OutcomeRecorder interface {
	ObserveAuth(operation, outcome string)
}

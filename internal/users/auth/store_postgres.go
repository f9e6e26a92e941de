// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Postgres storage for accounts and refresh-token sessions.

# Architecture

Repositories in this file are strictly separated from domain logic. They
implement the interfaces declared in store.go using the [pgxpool.Pool]
connection manager.

# Error Mapping

Storage-specific errors (pgx.ErrNoRows, SQLSTATE 23505) are mapped to the
domain sentinels ([ErrAccountNotFound], [ErrDuplicateEmail], [ErrVersionConflict])
to avoid leaking storage implementation details.
*/
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/identity/internal/platform/database/schema"
	"github.com/taibuivan/identity/internal/platform/dberr"
	"github.com/taibuivan/identity/internal/platform/sec"
)

// # Credential Store

// PostgresCredentialStore implements [CredentialStore] using pgx.
type PostgresCredentialStore struct {
	pool *pgxpool.Pool
}

// NewCredentialStore creates a new PostgreSQL implementation of the CredentialStore.
func NewCredentialStore(pool *pgxpool.Pool) *PostgresCredentialStore {
	return &PostgresCredentialStore{pool: pool}
}

var accountSelect = fmt.Sprintf("SELECT %s FROM %s",
	strings.Join(schema.UserAccount.Columns(), ", "), schema.UserAccount.Table)

// scanAccount hydrates an account in [schema.UserAccountTable.Columns] order.
func scanAccount(row pgx.Row) (*Account, error) {
	account := &Account{}
	var role string

	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.NormalizedEmail,
		&account.PasswordHash,
		&account.SecurityStamp,
		&account.EmailConfirmed,
		&account.Lockout.Enabled,
		&account.Lockout.FailedAccessCount,
		&account.Lockout.EndUTC,
		&role,
		&account.Version,
		&account.LastLoginAt,
		&account.DisplayName,
		&account.Bio,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.Role = sec.UserRole(role)
	if account.Lockout.EndUTC != nil {
		end := account.Lockout.EndUTC.UTC()
		account.Lockout.EndUTC = &end
	}

	return account, nil
}

/*
FindByID retrieves a non-deleted account by its unique ID.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *Account: Hydrated account entity
  - error: ErrAccountNotFound or execution errors
*/
func (store *PostgresCredentialStore) FindByID(context context.Context, id string) (*Account, error) {
	query := accountSelect + fmt.Sprintf(" WHERE %s = $1 AND %s IS NULL",
		schema.UserAccount.ID, schema.UserAccount.DeletedAt)

	account, err := scanAccount(store.pool.QueryRow(context, query, id))
	if err != nil {
		if dberr.IsNoRows(err) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("postgres_credential_store_find_by_id_failed: %w", err)
	}

	return account, nil
}

/*
FindByEmail retrieves a non-deleted account by its normalized email.

Parameters:
  - context: context.Context
  - normalizedEmail: string

Returns:
  - *Account: Hydrated account entity
  - error: ErrAccountNotFound or database errors
*/
func (store *PostgresCredentialStore) FindByEmail(context context.Context, normalizedEmail string) (*Account, error) {
	query := accountSelect + fmt.Sprintf(" WHERE %s = $1 AND %s IS NULL",
		schema.UserAccount.NormalizedEmail, schema.UserAccount.DeletedAt)

	account, err := scanAccount(store.pool.QueryRow(context, query, normalizedEmail))
	if err != nil {
		if dberr.IsNoRows(err) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("postgres_credential_store_find_by_email_failed: %w", err)
	}

	return account, nil
}

/*
Create persists a new account into the users.account table.

Description: Initializes timestamps when missing and starts the optimistic
concurrency version at 1. The partial unique index on normalizedemail turns
a concurrent duplicate registration into ErrDuplicateEmail.

Parameters:
  - context: context.Context
  - account: *Account (Entity to persist)

Returns:
  - error: ErrDuplicateEmail or connectivity errors
*/
func (store *PostgresCredentialStore) Create(context context.Context, account *Account) error {
	const query = `
		INSERT INTO users.account (
			id, email, normalizedemail, passwordhash, securitystamp, emailconfirmed,
			lockoutenabled, failedaccesscount, lockoutend, role, version,
			displayname, bio, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $12, $13, $14)`

	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = account.CreatedAt
	}

	_, err := store.pool.Exec(context, query,
		account.ID,
		account.Email,
		account.NormalizedEmail,
		account.PasswordHash,
		account.SecurityStamp,
		account.EmailConfirmed,
		account.Lockout.Enabled,
		account.Lockout.FailedAccessCount,
		account.Lockout.EndUTC,
		string(account.Role),
		account.DisplayName,
		account.Bio,
		account.CreatedAt,
		account.UpdatedAt,
	)

	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("postgres_credential_store_create_failed: %w", err)
	}

	account.Version = 1
	return nil
}

/*
Save writes credential, confirmation and lockout fields under optimistic concurrency.

Description: The update only matches when the stored version equals the version
the account was read at. Zero affected rows means someone else won the race.

Parameters:
  - context: context.Context
  - account: *Account

Returns:
  - error: ErrVersionConflict, ErrDuplicateEmail or execution errors
*/
func (store *PostgresCredentialStore) Save(context context.Context, account *Account) error {
	const query = `
		UPDATE users.account
		SET email = $3, normalizedemail = $4, passwordhash = $5, securitystamp = $6,
		    emailconfirmed = $7, lockoutenabled = $8, failedaccesscount = $9, lockoutend = $10,
		    lastloginat = $11, updatedat = $12, version = version + 1
		WHERE id = $1 AND version = $2 AND deletedat IS NULL`

	tag, err := store.pool.Exec(context, query,
		account.ID,
		account.Version,
		account.Email,
		account.NormalizedEmail,
		account.PasswordHash,
		account.SecurityStamp,
		account.EmailConfirmed,
		account.Lockout.Enabled,
		account.Lockout.FailedAccessCount,
		account.Lockout.EndUTC,
		account.LastLoginAt,
		account.UpdatedAt,
	)

	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("postgres_credential_store_save_failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	account.Version++
	return nil
}

// # Session Repository

// PostgresSessionRepository implements the SessionRepository interface.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new PostgreSQL implementation of SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

var sessionSelect = fmt.Sprintf("SELECT %s FROM %s",
	strings.Join(schema.UserSession.Columns(), ", "), schema.UserSession.Table)

func scanSession(row pgx.Row) (*Session, error) {
	session := &Session{}
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.UserAgent,
		&session.IPAddress,
		&session.ExpiresAt,
		&session.IsRevoked,
		&session.CreatedAt,
	)
	return session, err
}

/*
Create persists a new session record into the users.session table.

Parameters:
  - context: context.Context
  - session: *Session

Returns:
  - error: Storage failures
*/
func (repository *PostgresSessionRepository) Create(context context.Context, session *Session) error {
	const query = `
		INSERT INTO users.session (
			id, userid, tokenhash, useragent, ipaddress, expiresat, isrevoked, createdat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	_, err := repository.pool.Exec(context, query,
		session.ID,
		session.UserID,
		session.TokenHash,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
		session.IsRevoked,
		session.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_session_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindByTokenHash retrieves an active session by its unique token hash.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - *Session: Hydrated session metadata
  - error: ErrSessionInvalid or execution errors
*/
func (repository *PostgresSessionRepository) FindByTokenHash(context context.Context, tokenHash string) (*Session, error) {
	query := sessionSelect + " WHERE tokenhash = $1 AND isrevoked = FALSE AND expiresat > NOW()"

	session, err := scanSession(repository.pool.QueryRow(context, query, tokenHash))
	if err != nil {
		if dberr.IsNoRows(err) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("postgres_session_repo_find_failed: %w", err)
	}

	return session, nil
}

// ListActive returns the live sessions of a user, newest first.
func (repository *PostgresSessionRepository) ListActive(context context.Context, userID string) ([]*Session, error) {
	query := sessionSelect + " WHERE userid = $1 AND isrevoked = FALSE AND expiresat > NOW() ORDER BY createdat DESC"

	rows, err := repository.pool.Query(context, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_list_failed: %w", err)
	}
	defer rows.Close()

	sessions := make([]*Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres_session_repo_scan_failed: %w", err)
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

/*
Revoke marks a specific session of the user as revoked.

Parameters:
  - context: context.Context
  - userID: string
  - sessionID: string

Returns:
  - error: ErrSessionInvalid when nothing matched, or revocation failures
*/
func (repository *PostgresSessionRepository) Revoke(context context.Context, userID, sessionID string) error {
	const query = "UPDATE users.session SET isrevoked = TRUE, revokedat = NOW() WHERE id = $1 AND userid = $2 AND isrevoked = FALSE"
	tag, err := repository.pool.Exec(context, query, sessionID, userID)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionInvalid
	}
	return nil
}

// RevokeAll marks all active sessions for a user as revoked.
func (repository *PostgresSessionRepository) RevokeAll(context context.Context, userID string) error {
	const query = "UPDATE users.session SET isrevoked = TRUE, revokedat = NOW() WHERE userid = $1 AND isrevoked = FALSE"
	_, err := repository.pool.Exec(context, query, userID)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_all_failed: %w", err)
	}
	return nil
}

// RevokeOthers marks all active sessions for a user as revoked, except for one.
func (repository *PostgresSessionRepository) RevokeOthers(context context.Context, userID, currentSessionID string) error {
	const query = "UPDATE users.session SET isrevoked = TRUE, revokedat = NOW() WHERE userid = $1 AND id != $2 AND isrevoked = FALSE"
	_, err := repository.pool.Exec(context, query, userID, currentSessionID)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_others_failed: %w", err)
	}
	return nil
}

/*
DeleteExpired permanently removes all sessions that have passed their expiration.

Description: Cleanup task run by the background janitor.

Parameters:
  - context: context.Context

Returns:
  - int64: Number of rows removed
  - error: Cleanup failures
*/
func (repository *PostgresSessionRepository) DeleteExpired(context context.Context) (int64, error) {
	const query = "DELETE FROM users.session WHERE expiresat <= NOW()"
	tag, err := repository.pool.Exec(context, query)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_delete_expired_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

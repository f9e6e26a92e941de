// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taibuivan/identity/internal/platform/apperr"
	"github.com/taibuivan/identity/internal/platform/constants"
	"github.com/taibuivan/identity/internal/platform/ctxutil"
	"github.com/taibuivan/identity/internal/platform/sec"
	"github.com/taibuivan/identity/internal/users/auth"
	"github.com/taibuivan/identity/pkg/pointer"
	"github.com/taibuivan/identity/pkg/slice"
)

// # Service Layer

// Service orchestrates the owner-facing account operations.
type Service struct {
	profileStore      ProfileStore
	sessionRepository SessionRepository
	lockout           auth.LockoutPolicy
	now               func() time.Time
	logger            *slog.Logger
}

// ServiceOption customizes a [Service].
type ServiceOption func(*Service)

// WithClock replaces the wall clock used for lockout evaluation.
func WithClock(now func() time.Time) ServiceOption {
	return func(service *Service) {
		service.now = now
	}
}

// NewService constructs a new [Service] with its repository dependencies.
func NewService(
	profileStore ProfileStore,
	sessionRepo SessionRepository,
	lockout auth.LockoutPolicy,
	logger *slog.Logger,
	opts ...ServiceOption,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	service := &Service{
		profileStore:      profileStore,
		sessionRepository: sessionRepo,
		lockout:           lockout,
		now:               time.Now,
		logger:            logger,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// # Profile Management

/*
GetInfo retrieves the private profile of an account.

Parameters:
  - context: context.Context
  - accountID: string

Returns:
  - *Profile: Account plus its current lockout verdict
  - error: auth.ErrAccountNotFound or execution failures
*/
func (service *Service) GetInfo(context context.Context, accountID string) (*Profile, error) {
	account, err := service.profileStore.FindByID(context, accountID)
	if err != nil {
		return nil, lookupError(err)
	}
	return service.profile(account), nil
}

// UpdateProfileInput defines the mutable subset of profile fields.
type UpdateProfileInput struct {
	DisplayName *string
	Bio         *string
}

/*
UpdateProfile applies a partial set of changes to the profile fields.

Description: Reads the account, overrides provided fields and writes them back
under the account version. A lost race is retried from a fresh read.

Parameters:
  - context: context.Context
  - accountID: string
  - input: UpdateProfileInput

Returns:
  - *Profile: The updated profile
  - error: Lookup, conflict or storage failures
*/
func (service *Service) UpdateProfile(context context.Context, accountID string, input UpdateProfileInput) (*Profile, error) {
	for attempt := 0; attempt < constants.MaxConflictRetries; attempt++ {
		account, err := service.profileStore.FindByID(context, accountID)
		if err != nil {
			return nil, lookupError(err)
		}

		account.DisplayName = strings.TrimSpace(pointer.Fallback(input.DisplayName, account.DisplayName))
		account.Bio = strings.TrimSpace(pointer.Fallback(input.Bio, account.Bio))
		account.UpdatedAt = service.now().UTC()

		err = service.profileStore.UpdateProfile(context, account)
		if errors.Is(err, auth.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("account_service_update_failed: %w", err)
		}

		service.log(context).Info("account_profile_updated", slog.String("account_id", accountID))
		return service.profile(account), nil
	}

	service.log(context).Warn("account_profile_conflict_exhausted", slog.String("account_id", accountID))
	return nil, auth.ErrConcurrencyConflict
}

/*
DeleteAccount performs a soft-deletion of an account.

Description: Flags the account as deleted and terminates every session to force
a global sign-out. The email becomes available for a new registration.

Parameters:
  - context: context.Context
  - accountID: string

Returns:
  - error: auth.ErrAccountNotFound or execution failures
*/
func (service *Service) DeleteAccount(context context.Context, accountID string) error {
	if err := service.profileStore.SoftDelete(context, accountID); err != nil {
		return lookupError(err)
	}

	if err := service.sessionRepository.RevokeAll(context, accountID); err != nil {
		service.log(context).Error("account_delete_revoke_failed",
			slog.String("account_id", accountID),
			slog.Any("error", err),
		)
	}

	service.log(context).Warn("account_deleted", slog.String("account_id", accountID))
	return nil
}

// # Session Security

/*
ListSessions lists the live sessions of an account.

Parameters:
  - context: context.Context
  - accountID: string
  - currentRefreshToken: string (Optional, marks the caller's own session)

Returns:
  - []SessionInfo: Active sessions, newest first
  - error: Retrieval failures
*/
func (service *Service) ListSessions(context context.Context, accountID, currentRefreshToken string) ([]SessionInfo, error) {
	sessions, err := service.sessionRepository.ListActive(context, accountID)
	if err != nil {
		return nil, fmt.Errorf("account_service_list_sessions_failed: %w", err)
	}

	currentHash := ""
	if currentRefreshToken != "" {
		currentHash = sec.HashToken(currentRefreshToken)
	}

	return slice.Map(sessions, func(session *auth.Session) SessionInfo {
		return SessionInfo{
			ID:        session.ID,
			UserAgent: session.UserAgent,
			IPAddress: session.IPAddress,
			CreatedAt: session.CreatedAt,
			ExpiresAt: session.ExpiresAt,
			IsCurrent: currentHash != "" && session.TokenHash == currentHash,
		}
	}), nil
}

/*
RevokeSession terminates one session of the account.

Returns:
  - error: apperr.NotFound when the session is not a live session of the account
*/
func (service *Service) RevokeSession(context context.Context, accountID, sessionID string) error {
	err := service.sessionRepository.Revoke(context, accountID, sessionID)
	if errors.Is(err, auth.ErrSessionInvalid) {
		return apperr.NotFound("Session")
	}
	if err != nil {
		return fmt.Errorf("account_service_revoke_session_failed: %w", err)
	}

	service.log(context).Info("account_session_revoked",
		slog.String("account_id", accountID),
		slog.String("session_id", sessionID),
	)

	return nil
}

/*
RevokeOtherSessions terminates every session except the caller's own.

Description: The caller's session is identified by its refresh token. Without a
live session of the same account there is nothing to keep, so the request is
refused rather than silently signing the caller out everywhere.

Returns:
  - error: auth.ErrSessionInvalid or revocation failures
*/
func (service *Service) RevokeOtherSessions(context context.Context, accountID, currentRefreshToken string) error {
	if currentRefreshToken == "" {
		return auth.ErrSessionInvalid
	}

	current, err := service.sessionRepository.FindByTokenHash(context, sec.HashToken(currentRefreshToken))
	if err != nil {
		if errors.Is(err, auth.ErrSessionInvalid) {
			return auth.ErrSessionInvalid
		}
		return fmt.Errorf("account_service_find_current_session_failed: %w", err)
	}

	if current.UserID != accountID || current.IsRevoked || !service.now().Before(current.ExpiresAt) {
		return auth.ErrSessionInvalid
	}

	if err := service.sessionRepository.RevokeOthers(context, accountID, current.ID); err != nil {
		return fmt.Errorf("account_service_revoke_others_failed: %w", err)
	}

	service.log(context).Info("account_other_sessions_revoked", slog.String("account_id", accountID))
	return nil
}

// # Helpers

func (service *Service) profile(account *auth.Account) *Profile {
	return &Profile{
		Account:   account,
		LockedOut: service.lockout.IsLockedOut(account.Lockout, service.now()),
	}
}

func (service *Service) log(context context.Context) *slog.Logger {
	return ctxutil.GetLoggerOr(context, service.logger)
}

func lookupError(err error) error {
	if errors.Is(err, auth.ErrAccountNotFound) {
		return auth.ErrAccountNotFound
	}
	return fmt.Errorf("account_service_lookup_failed: %w", err)
}

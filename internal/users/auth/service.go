// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Account lifecycle use cases.

Every command is a read-modify-write on a single account guarded by optimistic
concurrency: the account is loaded, the rules are applied in memory and the
result is saved against the version it was read at. A lost race re-runs the
whole closure, at most Settings.MaxConflictRetries times, before the caller
sees CONCURRENCY_CONFLICT.

Notifications are rendered and enqueued only after the write committed. A
failed enqueue is logged and never rolls the state change back.
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/taibuivan/identity/internal/platform/apperr"
	"github.com/taibuivan/identity/internal/platform/constants"
	"github.com/taibuivan/identity/internal/platform/ctxutil"
	"github.com/taibuivan/identity/internal/platform/notify"
	"github.com/taibuivan/identity/internal/platform/sec"
	"github.com/taibuivan/identity/pkg/uuid"
)

var tracer = otel.Tracer("github.com/taibuivan/identity/internal/users/auth")

// dummyPassword is hashed once and verified against when an email is unknown,
// so a miss costs the same as a wrong password.
const dummyPassword = "identity-timing-equalizer"

// # Contracts & Types

// Settings holds the lifecycle knobs loaded from configuration.
type Settings struct {
	AccessTokenTTL        time.Duration
	RefreshTokenTTL       time.Duration
	EmailConfirmationTTL  time.Duration
	EmailChangeTTL        time.Duration
	PasswordResetTTL      time.Duration
	RequireConfirmedEmail bool
	MaxConflictRetries    int
}

// DefaultSettings returns the production defaults.
func DefaultSettings() Settings {
	return Settings{
		AccessTokenTTL:        AccessTokenTTL,
		RefreshTokenTTL:       RefreshTokenTTL,
		EmailConfirmationTTL:  EmailConfirmationTTL,
		EmailChangeTTL:        EmailChangeTTL,
		PasswordResetTTL:      PasswordResetTTL,
		RequireConfirmedEmail: true,
		MaxConflictRetries:    constants.MaxConflictRetries,
	}
}

// Dependencies groups the collaborators of [Service].
// Throttle and Metrics are optional.
type Dependencies struct {
	Store        CredentialStore
	Sessions     SessionRepository
	Tokens       *TokenCodec
	AccessTokens AccessTokenIssuer
	Hasher       PasswordHasher
	Notifier     Notifier
	Messages     *MessageRenderer
	Throttle     Throttle
	Metrics      OutcomeRecorder
	Lockout      LockoutPolicy
	Passwords    PasswordPolicy
	Logger       *slog.Logger
}

// ServiceOption customizes a [Service].
type ServiceOption func(*Service)

// WithClock overrides the service clock. The token codec has its own clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(service *Service) {
		service.now = now
	}
}

// Service implements the account lifecycle use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, registration,
// token or lockout logic must be reviewed by the security team.
type Service struct {
	store        CredentialStore
	sessions     SessionRepository
	tokens       *TokenCodec
	accessTokens AccessTokenIssuer
	hasher       PasswordHasher
	notifier     Notifier
	messages     *MessageRenderer
	throttle     Throttle
	metrics      OutcomeRecorder
	lockout      LockoutPolicy
	passwords    PasswordPolicy
	settings     Settings
	logger       *slog.Logger
	now          func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(deps Dependencies, settings Settings, opts ...ServiceOption) *Service {
	if settings.MaxConflictRetries < 1 {
		settings.MaxConflictRetries = 1
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	service := &Service{
		store:        deps.Store,
		sessions:     deps.Sessions,
		tokens:       deps.Tokens,
		accessTokens: deps.AccessTokens,
		hasher:       deps.Hasher,
		notifier:     deps.Notifier,
		messages:     deps.Messages,
		throttle:     deps.Throttle,
		metrics:      deps.Metrics,
		lockout:      deps.Lockout,
		passwords:    deps.Passwords,
		settings:     settings,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}

	return service
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new account.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

/*
Register validates, hashes, and persists a brand new account.

Description: The account starts unconfirmed with lockout state taken from the
policy. An email confirmation token is mailed once the row is committed.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *Account: Created entity
  - error: ErrEmailAlreadyInUse, WEAK_PASSWORD or storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (account *Account, err error) {
	context, op := service.begin(context, OperationRegister)
	defer func() { op.end(err) }()

	normalized := NormalizeEmail(input.Email)

	// Reject weak passwords before touching storage.
	if err := service.passwords.Check(FieldPassword, input.Password); err != nil {
		return nil, err
	}

	// Verify email uniqueness. The unique index still guards the race below.
	_, lookupErr := service.store.FindByEmail(context, normalized)
	switch {
	case lookupErr == nil:
		return nil, ErrEmailAlreadyInUse
	case !errors.Is(lookupErr, ErrAccountNotFound):
		return nil, fmt.Errorf("auth_service_register_lookup_failed: %w", lookupErr)
	}

	hashedPassword, err := service.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	stamp, err := newSecurityStamp()
	if err != nil {
		return nil, err
	}

	now := service.now().UTC()

	// Time-sortable ID to prevent PG index fragmentation.
	account = &Account{
		ID:              uuid.New(),
		Email:           strings.TrimSpace(input.Email),
		NormalizedEmail: normalized,
		PasswordHash:    hashedPassword,
		SecurityStamp:   stamp,
		EmailConfirmed:  false,
		Lockout:         service.lockout.NewState(),
		Role:            sec.RoleMember,
		DisplayName:     defaultDisplayName(input.DisplayName, input.Email),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := service.store.Create(context, account); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, ErrEmailAlreadyInUse
		}
		return nil, fmt.Errorf("auth_service_register_failed: %w", err)
	}

	service.log(context).Info("auth_account_registered", slog.String("account_id", account.ID))

	service.sendConfirmation(context, account)

	return account, nil
}

/*
ConfirmEmail marks the account's email as confirmed.

Description: The token must be an unexpired email confirmation token issued
for this account under its current security stamp. Confirming rotates the
stamp, so a confirmation token works exactly once.

Parameters:
  - context: context.Context
  - accountID: string
  - token: string

Returns:
  - error: ErrInvalidOrExpiredToken, ErrAccountNotFound or storage errors
*/
func (service *Service) ConfirmEmail(context context.Context, accountID, token string) (err error) {
	context, op := service.begin(context, OperationConfirmEmail)
	defer func() { op.end(err) }()

	return service.withRetry(context, OperationConfirmEmail, func() error {
		account, err := service.store.FindByID(context, accountID)
		if err != nil {
			return service.lookupError(err, ErrAccountNotFound)
		}

		if err := service.validateToken(context, account, token, PurposeEmailConfirmation); err != nil {
			return err
		}

		if err := account.rotateSecurityStamp(); err != nil {
			return err
		}
		account.EmailConfirmed = true
		account.UpdatedAt = service.now().UTC()

		return service.store.Save(context, account)
	})
}

// # Email Change Flow

/*
RequestEmailChange mails an email change token to the requested address.

Description: The token is bound to the normalized new address and to the
current security stamp. Nothing is written until ChangeEmail consumes it.

Parameters:
  - context: context.Context
  - accountID: string (authenticated caller)
  - newEmail: string

Returns:
  - error: ErrEmailAlreadyInUse, validation or storage errors
*/
func (service *Service) RequestEmailChange(context context.Context, accountID, newEmail string) (err error) {
	context, op := service.begin(context, OperationRequestEmailChange)
	defer func() { op.end(err) }()

	normalized := NormalizeEmail(newEmail)

	account, err := service.store.FindByID(context, accountID)
	if err != nil {
		return service.lookupError(err, ErrAccountNotFound)
	}

	if account.NormalizedEmail == normalized {
		return apperr.ValidationError("New email must differ from the current one",
			apperr.FieldError{Field: FieldNewEmail, Message: "is the current email"})
	}

	if err := service.ensureEmailAvailable(context, normalized, account.ID); err != nil {
		return err
	}

	token, err := service.tokens.Issue(account, PurposeEmailChange, service.settings.EmailChangeTTL, WithNewEmail(normalized))
	if err != nil {
		return fmt.Errorf("auth_service_email_change_token_failed: %w", err)
	}

	message, err := service.messages.EmailChange(account, strings.TrimSpace(newEmail), token, service.settings.EmailChangeTTL)
	if err != nil {
		return fmt.Errorf("auth_service_email_change_render_failed: %w", err)
	}

	service.enqueue(context, message)
	return nil
}

/*
ChangeEmail moves the account to the address the token was issued for.

Description: Validates the email change token against the current stamp and
the requested address, re-checks uniqueness, then sets the new address as
confirmed (delivery of the token proved ownership), rotates the stamp and
revokes every refresh session.

Parameters:
  - context: context.Context
  - accountID: string
  - token: string
  - newEmail: string

Returns:
  - error: ErrInvalidOrExpiredToken, ErrEmailAlreadyInUse or storage errors
*/
func (service *Service) ChangeEmail(context context.Context, accountID, token, newEmail string) (err error) {
	context, op := service.begin(context, OperationChangeEmail)
	defer func() { op.end(err) }()

	normalized := NormalizeEmail(newEmail)

	err = service.withRetry(context, OperationChangeEmail, func() error {
		account, err := service.store.FindByID(context, accountID)
		if err != nil {
			return service.lookupError(err, ErrInvalidOrExpiredToken)
		}

		claims, err := service.tokens.Validate(token, PurposeEmailChange, account.SecurityStamp)
		if err != nil {
			service.logTokenRejected(context, account.ID, err)
			return ErrInvalidOrExpiredToken
		}
		if claims.AccountID() != account.ID || claims.NewEmail != normalized {
			return ErrInvalidOrExpiredToken
		}

		if err := service.ensureEmailAvailable(context, normalized, account.ID); err != nil {
			return err
		}

		if err := account.rotateSecurityStamp(); err != nil {
			return err
		}
		account.Email = strings.TrimSpace(newEmail)
		account.NormalizedEmail = normalized
		account.EmailConfirmed = true
		account.UpdatedAt = service.now().UTC()

		if err := service.store.Save(context, account); err != nil {
			if errors.Is(err, ErrDuplicateEmail) {
				return ErrEmailAlreadyInUse
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	service.revokeAllSessions(context, accountID)
	return nil
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

// LoginSession represents a successfully established session.
type LoginSession struct {
	AccessToken           string
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	Account               *Account
}

/*
Login validates credentials, applies the lockout policy and issues session tokens.

Description: Unknown emails and wrong passwords both yield ErrInvalidCredentials.
While the lockout window is open every attempt yields ErrLockedOut whatever the
password, and the attempt neither counts nor extends the lockout. The password
is still verified so a locked account costs the same as an open one.
EMAIL_NOT_CONFIRMED is only reported after the correct password. Counter updates
are persisted under optimistic concurrency, so parallel failures are never lost.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginSession: Transport-ready session identifiers
  - error: ErrInvalidCredentials, ErrLockedOut, ErrEmailNotConfirmed or internal failures
*/
func (service *Service) Login(context context.Context, input LoginInput) (session *LoginSession, err error) {
	context, op := service.begin(context, OperationLogin)
	defer func() { op.end(err) }()

	normalized := NormalizeEmail(input.Email)

	var authenticated *Account
	err = service.withRetry(context, OperationLogin, func() error {
		account, err := service.store.FindByEmail(context, normalized)
		if errors.Is(err, ErrAccountNotFound) {
			service.hasher.Verify(service.timingHash(), input.Password)
			return ErrInvalidCredentials
		}
		if err != nil {
			return fmt.Errorf("auth_service_login_lookup_failed: %w", err)
		}

		now := service.now().UTC()
		passwordMatches := service.hasher.Verify(account.PasswordHash, input.Password)

		if service.lockout.IsLockedOut(account.Lockout, now) {
			return ErrLockedOut
		}

		if !passwordMatches {
			account.Lockout = service.lockout.RecordFailure(account.Lockout, now)
			account.UpdatedAt = now
			if err := service.store.Save(context, account); err != nil {
				return err
			}

			if account.Lockout.EndUTC != nil && account.Lockout.FailedAccessCount == 0 {
				service.log(context).Warn("auth_account_locked_out",
					slog.String("account_id", account.ID),
					slog.Time("lockout_end", *account.Lockout.EndUTC),
				)
			}
			return ErrInvalidCredentials
		}

		if service.settings.RequireConfirmedEmail && !account.EmailConfirmed {
			return ErrEmailNotConfirmed
		}

		account.Lockout = service.lockout.RecordSuccess(account.Lockout)
		account.LastLoginAt = &now
		account.UpdatedAt = now
		if err := service.store.Save(context, account); err != nil {
			return err
		}

		authenticated = account
		return nil
	})
	if err != nil {
		return nil, err
	}

	return service.issueSession(context, authenticated, input.UserAgent, input.IPAddress)
}

// issueSession signs an access token and persists a fresh refresh session.
func (service *Service) issueSession(context context.Context, account *Account, userAgent, ipAddress string) (*LoginSession, error) {
	accessToken, err := service.accessTokens.GenerateAccessToken(account.ID, account.Email, string(account.Role),
		service.settings.AccessTokenTTL, sec.WithStamp(account.SecurityStamp))
	if err != nil {
		return nil, fmt.Errorf("auth_service_token_generation_failed: %w", err)
	}

	refreshToken, err := sec.GenerateSecureToken(RefreshTokenLength)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_token_failed: %w", err)
	}

	now := service.now().UTC()
	expiresAt := now.Add(service.settings.RefreshTokenTTL)
	session := &Session{
		ID:        uuid.New(),
		UserID:    account.ID,
		TokenHash: sec.HashToken(refreshToken),
		UserAgent: userAgent,
		IPAddress: ipAddress,
		ExpiresAt: expiresAt,
		IsRevoked: false,
		CreatedAt: now,
	}

	if err := service.sessions.Create(context, session); err != nil {
		return nil, fmt.Errorf("auth_service_session_creation_failed: %w", err)
	}

	return &LoginSession{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: expiresAt,
		Account:               account,
	}, nil
}

/*
Logout permanently revokes the caller's refresh session.

Description: Idempotent. An unknown or already revoked token is a success.

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - error: Revocation failures
*/
func (service *Service) Logout(context context.Context, refreshToken string) error {
	session, err := service.sessions.FindByTokenHash(context, sec.HashToken(refreshToken))
	if err != nil {
		return nil
	}

	if err := service.sessions.Revoke(context, session.UserID, session.ID); err != nil && !errors.Is(err, ErrSessionInvalid) {
		return fmt.Errorf("auth_service_logout_failed: %w", err)
	}

	return nil
}

/*
RefreshSession implements the Refresh Token Rotation mechanism.

Description: Verifies the existing refresh token, revokes it to prevent reuse
(replay attack mitigation), and issues a fresh pair of rotated tokens. Locked
accounts cannot refresh.

Parameters:
  - context: context.Context
  - refreshToken: string
  - userAgent: string
  - ipAddress: string

Returns:
  - *LoginSession: New session credentials
  - error: ErrSessionInvalid or storage failures
*/
func (service *Service) RefreshSession(context context.Context, refreshToken, userAgent, ipAddress string) (*LoginSession, error) {
	session, err := service.sessions.FindByTokenHash(context, sec.HashToken(refreshToken))
	if err != nil {
		return nil, ErrSessionInvalid
	}

	// Rotation: revoke first so a replayed token loses the race.
	if err := service.sessions.Revoke(context, session.UserID, session.ID); err != nil {
		if errors.Is(err, ErrSessionInvalid) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("auth_service_refresh_revoke_failed: %w", err)
	}

	account, err := service.store.FindByID(context, session.UserID)
	if err != nil {
		return nil, service.lookupError(err, ErrSessionInvalid)
	}

	if service.lockout.IsLockedOut(account.Lockout, service.now().UTC()) {
		return nil, ErrLockedOut
	}

	return service.issueSession(context, account, userAgent, ipAddress)
}

// # Confirmation & Recovery (anti-enumeration)

/*
ResendConfirmation mails a new confirmation token to an unconfirmed account.

Description: The caller learns nothing: unknown, already confirmed and
throttled addresses all return without error and without mail.

Parameters:
  - context: context.Context
  - email: string
*/
func (service *Service) ResendConfirmation(context context.Context, email string) {
	var err error
	context, op := service.begin(context, OperationResendConfirmation)
	defer func() { op.end(err) }()

	normalized := NormalizeEmail(email)
	if !service.allow(context, OperationResendConfirmation, normalized) {
		op.outcome = OutcomeThrottled
		return
	}

	account, lookupErr := service.store.FindByEmail(context, normalized)
	if lookupErr != nil {
		service.logSilentMiss(context, OperationResendConfirmation, lookupErr)
		return
	}

	if account.EmailConfirmed {
		return
	}

	service.sendConfirmation(context, account)
}

/*
ForgotPassword mails a password reset token to a confirmed account.

Description: Same response for every input. Unconfirmed accounts get nothing,
so a reset link never reaches an address that was never proven.

Parameters:
  - context: context.Context
  - email: string
*/
func (service *Service) ForgotPassword(context context.Context, email string) {
	var err error
	context, op := service.begin(context, OperationForgotPassword)
	defer func() { op.end(err) }()

	normalized := NormalizeEmail(email)
	if !service.allow(context, OperationForgotPassword, normalized) {
		op.outcome = OutcomeThrottled
		return
	}

	account, lookupErr := service.store.FindByEmail(context, normalized)
	if lookupErr != nil {
		service.logSilentMiss(context, OperationForgotPassword, lookupErr)
		return
	}

	if !account.EmailConfirmed {
		return
	}

	token, issueErr := service.tokens.Issue(account, PurposePasswordReset, service.settings.PasswordResetTTL)
	if issueErr != nil {
		service.log(context).Error("auth_reset_token_issue_failed", slog.Any("error", issueErr))
		return
	}

	message, renderErr := service.messages.PasswordReset(account, token, service.settings.PasswordResetTTL)
	if renderErr != nil {
		service.log(context).Error("auth_reset_render_failed", slog.Any("error", renderErr))
		return
	}

	service.enqueue(context, message)
}

// ResetPasswordInput holds the fields of a password reset.
type ResetPasswordInput struct {
	Email       string
	Token       string
	NewPassword string
}

/*
ResetPassword completes the forgot-password flow.

Description: Validates the reset token against the current stamp, stores the
new hash, rotates the stamp (every outstanding token dies), clears the lockout
and revokes all refresh sessions. Unknown emails report an invalid token.

Parameters:
  - context: context.Context
  - input: ResetPasswordInput

Returns:
  - error: ErrInvalidOrExpiredToken, WEAK_PASSWORD or storage failures
*/
func (service *Service) ResetPassword(context context.Context, input ResetPasswordInput) (err error) {
	context, op := service.begin(context, OperationResetPassword)
	defer func() { op.end(err) }()

	if err := service.passwords.Check(FieldNewPassword, input.NewPassword); err != nil {
		return err
	}

	hashedPassword, err := service.hasher.Hash(input.NewPassword)
	if err != nil {
		return fmt.Errorf("auth_service_reset_password_hash_failed: %w", err)
	}

	var accountID string
	err = service.withRetry(context, OperationResetPassword, func() error {
		account, err := service.store.FindByEmail(context, NormalizeEmail(input.Email))
		if err != nil {
			return service.lookupError(err, ErrInvalidOrExpiredToken)
		}

		if err := service.validateToken(context, account, input.Token, PurposePasswordReset); err != nil {
			return err
		}

		if err := account.rotateSecurityStamp(); err != nil {
			return err
		}
		account.PasswordHash = hashedPassword
		account.Lockout = service.lockout.RecordSuccess(account.Lockout)
		account.UpdatedAt = service.now().UTC()

		if err := service.store.Save(context, account); err != nil {
			return err
		}

		accountID = account.ID
		return nil
	})
	if err != nil {
		return err
	}

	// Security Cleanup: Revoke EVERY active session for this account
	service.revokeAllSessions(context, accountID)
	return nil
}

/*
ChangePassword allows an authenticated account to update its credentials.

Description: Verifies the current password, rotates hash and stamp, then
revokes all OTHER refresh sessions to force re-login on other devices.

Parameters:
  - context: context.Context
  - accountID: string
  - currentPassword: string
  - newPassword: string
  - currentRefreshToken: string (may be empty)

Returns:
  - error: ErrInvalidCredentials, WEAK_PASSWORD or storage failures
*/
func (service *Service) ChangePassword(context context.Context, accountID, currentPassword, newPassword, currentRefreshToken string) (err error) {
	context, op := service.begin(context, OperationChangePassword)
	defer func() { op.end(err) }()

	if err := service.passwords.Check(FieldNewPassword, newPassword); err != nil {
		return err
	}

	hashedPassword, err := service.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_change_password_hash_failed: %w", err)
	}

	err = service.withRetry(context, OperationChangePassword, func() error {
		account, err := service.store.FindByID(context, accountID)
		if err != nil {
			return service.lookupError(err, ErrAccountNotFound)
		}

		if !service.hasher.Verify(account.PasswordHash, currentPassword) {
			return ErrInvalidCredentials
		}

		if err := account.rotateSecurityStamp(); err != nil {
			return err
		}
		account.PasswordHash = hashedPassword
		account.UpdatedAt = service.now().UTC()

		return service.store.Save(context, account)
	})
	if err != nil {
		return err
	}

	// Keep the caller's own session, drop the rest.
	if currentRefreshToken == "" {
		service.revokeAllSessions(context, accountID)
		return nil
	}

	session, findErr := service.sessions.FindByTokenHash(context, sec.HashToken(currentRefreshToken))
	if findErr != nil || session.UserID != accountID {
		service.revokeAllSessions(context, accountID)
		return nil
	}

	if revokeErr := service.sessions.RevokeOthers(context, accountID, session.ID); revokeErr != nil {
		service.log(context).Error("auth_revoke_other_sessions_failed", slog.Any("error", revokeErr))
	}
	return nil
}

// # Administration

/*
Unlock clears the lockout state of an account.

Parameters:
  - context: context.Context
  - accountID: string

Returns:
  - *Account: Updated entity
  - error: ErrAccountNotFound or storage failures
*/
func (service *Service) Unlock(context context.Context, accountID string) (account *Account, err error) {
	context, op := service.begin(context, OperationUnlock)
	defer func() { op.end(err) }()

	err = service.withRetry(context, OperationUnlock, func() error {
		loaded, err := service.store.FindByID(context, accountID)
		if err != nil {
			return service.lookupError(err, ErrAccountNotFound)
		}

		loaded.Lockout = service.lockout.RecordSuccess(loaded.Lockout)
		loaded.UpdatedAt = service.now().UTC()
		if err := service.store.Save(context, loaded); err != nil {
			return err
		}

		account = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

// # Internals

// withRetry re-runs a read-modify-write closure while Save reports a version conflict.
func (service *Service) withRetry(context context.Context, operation string, attempt func() error) error {
	for try := 1; ; try++ {
		err := attempt()
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}

		if try >= service.settings.MaxConflictRetries {
			service.log(context).Warn("auth_conflict_retries_exhausted",
				slog.String("operation", operation),
				slog.Int("attempts", try),
			)
			return ErrConcurrencyConflict
		}

		if ctxErr := context.Err(); ctxErr != nil {
			return ctxErr
		}
	}
}

// validateToken collapses every token failure to ErrInvalidOrExpiredToken.
func (service *Service) validateToken(context context.Context, account *Account, token string, purpose Purpose) error {
	claims, err := service.tokens.Validate(token, purpose, account.SecurityStamp)
	if err != nil {
		service.logTokenRejected(context, account.ID, err)
		return ErrInvalidOrExpiredToken
	}

	if claims.AccountID() != account.ID {
		return ErrInvalidOrExpiredToken
	}

	return nil
}

// ensureEmailAvailable fails when another live account owns normalized.
func (service *Service) ensureEmailAvailable(context context.Context, normalized, selfID string) error {
	other, err := service.store.FindByEmail(context, normalized)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("auth_service_email_lookup_failed: %w", err)
	case other.ID != selfID:
		return ErrEmailAlreadyInUse
	default:
		return nil
	}
}

// lookupError maps a missing account to the caller-visible error of the operation.
func (service *Service) lookupError(err error, notFound error) error {
	if errors.Is(err, ErrAccountNotFound) {
		return notFound
	}
	return fmt.Errorf("auth_service_account_lookup_failed: %w", err)
}

func (service *Service) sendConfirmation(context context.Context, account *Account) {
	token, err := service.tokens.Issue(account, PurposeEmailConfirmation, service.settings.EmailConfirmationTTL)
	if err != nil {
		service.log(context).Error("auth_confirmation_token_issue_failed", slog.Any("error", err))
		return
	}

	message, err := service.messages.EmailConfirmation(account, token, service.settings.EmailConfirmationTTL)
	if err != nil {
		service.log(context).Error("auth_confirmation_render_failed", slog.Any("error", err))
		return
	}

	service.enqueue(context, message)
}

func (service *Service) enqueue(context context.Context, message notify.Message) {
	if err := service.notifier.Enqueue(context, message); err != nil {
		service.log(context).Warn("auth_notification_not_enqueued",
			slog.String("kind", message.Kind),
			slog.Any("error", err),
		)
	}
}

func (service *Service) revokeAllSessions(context context.Context, accountID string) {
	if err := service.sessions.RevokeAll(context, accountID); err != nil {
		service.log(context).Error("auth_revoke_sessions_failed",
			slog.String("account_id", accountID),
			slog.Any("error", err),
		)
	}
}

// allow consults the throttle. Backend failures fail open.
func (service *Service) allow(context context.Context, operation, normalizedEmail string) bool {
	if service.throttle == nil {
		return true
	}

	result, err := service.throttle.Allow(context, operation+":"+normalizedEmail)
	if err != nil {
		service.log(context).Warn("auth_throttle_unavailable", slog.Any("error", err))
		return true
	}

	if !result.Allowed {
		service.log(context).Info("auth_throttled",
			slog.String("operation", operation),
			slog.Duration("retry_after", result.RetryAfter),
		)
	}
	return result.Allowed
}

func (service *Service) logSilentMiss(context context.Context, operation string, err error) {
	if errors.Is(err, ErrAccountNotFound) {
		return
	}
	service.log(context).Error("auth_silent_lookup_failed",
		slog.String("operation", operation),
		slog.Any("error", err),
	)
}

func (service *Service) logTokenRejected(context context.Context, accountID string, err error) {
	service.log(context).Info("auth_token_rejected",
		slog.String("account_id", accountID),
		slog.String("reason", string(TokenKindOf(err))),
	)
}

// timingHash lazily hashes dummyPassword with the configured hasher.
func (service *Service) timingHash() string {
	service.dummyOnce.Do(func() {
		hash, err := service.hasher.Hash(dummyPassword)
		if err != nil {
			service.logger.Error("auth_timing_hash_failed", slog.Any("error", err))
			return
		}
		service.dummyHash = hash
	})
	return service.dummyHash
}

func (service *Service) log(context context.Context) *slog.Logger {
	return ctxutil.GetLoggerOr(context, service.logger)
}

// # Tracing & Metrics

// operation scopes one lifecycle call in a span and an outcome counter.
type operation struct {
	service *Service
	name    string
	span    trace.Span
	outcome string
}

func (service *Service) begin(context context.Context, name string) (context.Context, *operation) {
	context, span := tracer.Start(context, "auth."+name)
	return context, &operation{service: service, name: name, span: span}
}

func (op *operation) end(err error) {
	outcome := op.outcome
	switch {
	case outcome != "":
	case err == nil:
		outcome = OutcomeSuccess
	case apperr.CodeOf(err) != "":
		outcome = apperr.CodeOf(err)
	default:
		outcome = "error"
	}

	op.span.SetAttributes(attribute.String("auth.outcome", outcome))
	if err != nil && apperr.KindOf(err) == apperr.KindInternal {
		op.span.RecordError(err)
		op.span.SetStatus(codes.Error, "internal error")
	}
	op.span.End()

	if op.service.metrics != nil {
		op.service.metrics.ObserveAuth(op.name, outcome)
	}
}

// defaultDisplayName falls back to the local part of the email, cut to
// DisplayNameMaxLength characters.
func defaultDisplayName(displayName, email string) string {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name, _, _ = strings.Cut(strings.TrimSpace(email), "@")
	}

	if runes := []rune(name); len(runes) > DisplayNameMaxLength {
		name = string(runes[:DisplayNameMaxLength])
	}
	return name
}

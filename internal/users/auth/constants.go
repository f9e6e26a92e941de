// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import "time"

// # Authentication Constraints

const (
	// AccessTokenTTL is the default duration a JWT access token remains valid.
	// We keep it short (15m) to minimize the impact of a leaked token.
	AccessTokenTTL = 15 * time.Minute

	// RefreshTokenTTL is the default duration a session/refresh token remains valid.
	RefreshTokenTTL = 30 * 24 * time.Hour

	// RefreshTokenLength is the byte length of the random secure token.
	RefreshTokenLength = 32

	// SecurityStampLength is the byte length of an account security stamp.
	SecurityStampLength = 32

	// EmailConfirmationTTL is the default lifetime of an email confirmation token.
	// Long-lived (24 hours) as people might not check email immediately.
	EmailConfirmationTTL = 24 * time.Hour

	// EmailChangeTTL is the default lifetime of an email change token.
	EmailChangeTTL = 24 * time.Hour

	// PasswordResetTTL is the default lifetime of a password reset token.
	// Short-lived (1 hour) for security.
	PasswordResetTTL = 1 * time.Hour

	// MinTokenSecretLength is the minimum HS256 key size accepted by [NewTokenCodec].
	MinTokenSecretLength = 32

	// DisplayNameMaxLength is the width of the displayname column, in characters.
	DisplayNameMaxLength = 64
)

// # Metric Labels

const (
	OperationRegister           = "register"
	OperationConfirmEmail       = "confirm_email"
	OperationRequestEmailChange = "request_email_change"
	OperationChangeEmail        = "change_email"
	OperationLogin              = "login"
	OperationResendConfirmation = "resend_confirmation"
	OperationForgotPassword     = "forgot_password"
	OperationResetPassword      = "reset_password"
	OperationChangePassword     = "change_password"
	OperationUnlock             = "unlock"

	OutcomeSuccess   = "success"
	OutcomeThrottled = "throttled"
)

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"errors"
	"net/http"

	"github.com/taibuivan/identity/internal/platform/apperr"
)

// # Error Codes

const (
	CodeEmailAlreadyInUse   = "EMAIL_ALREADY_IN_USE"
	CodeWeakPassword        = "WEAK_PASSWORD"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeLockedOut           = "LOCKED_OUT"
	CodeInvalidToken        = "INVALID_OR_EXPIRED_TOKEN"
	CodeEmailNotConfirmed   = "EMAIL_NOT_CONFIRMED"
	CodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
)

// # Caller-visible Errors

var (
	ErrEmailAlreadyInUse = apperr.New(apperr.KindConflict, http.StatusConflict,
		CodeEmailAlreadyInUse, "Email is already registered")

	ErrInvalidCredentials = apperr.New(apperr.KindAuth, http.StatusUnauthorized,
		CodeInvalidCredentials, "Invalid email or password")

	ErrLockedOut = apperr.New(apperr.KindAuth, http.StatusLocked,
		CodeLockedOut, "Account is temporarily locked, try again later")

	ErrInvalidOrExpiredToken = apperr.New(apperr.KindAuth, http.StatusUnauthorized,
		CodeInvalidToken, "Token is invalid or has expired")

	ErrEmailNotConfirmed = apperr.New(apperr.KindAuth, http.StatusForbidden,
		CodeEmailNotConfirmed, "Email address has not been confirmed")

	ErrAccountNotFound = apperr.New(apperr.KindNotFound, http.StatusNotFound,
		CodeAccountNotFound, "Account not found")

	ErrConcurrencyConflict = apperr.New(apperr.KindConflict, http.StatusConflict,
		CodeConcurrencyConflict, "Account was modified concurrently, please retry")

	ErrSessionInvalid = apperr.Unauthorized("Session is invalid or has expired")

	ErrAccessRevoked = apperr.Unauthorized("Invalid or expired token")
)

func newWeakPasswordError(details []apperr.FieldError) *apperr.AppError {
	appErr := apperr.New(apperr.KindValidation, http.StatusBadRequest,
		CodeWeakPassword, "Password does not meet the strength requirements")
	appErr.Details = details
	return appErr
}

// # Storage Errors

// Returned by [CredentialStore] implementations and never sent to clients.
var (
	// ErrDuplicateEmail reports that the normalized email is already taken.
	ErrDuplicateEmail = errors.New("credential_store_duplicate_email")

	// ErrVersionConflict reports that the account changed since it was read.
	ErrVersionConflict = errors.New("credential_store_version_conflict")
)

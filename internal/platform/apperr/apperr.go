// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package apperr defines the centralized error handling framework for the identity service.

It provides a rich error type that bridges the gap between low-level Domain/Storage
errors and high-level HTTP responses.

Architecture:

  - AppError: A struct containing a machine-readable Code, a [Kind] and a client-safe message.
  - Kind: The coarse category (validation, conflict, auth, not found, internal) callers branch on.
  - Mapping: Explicit mapping from AppError to standard HTTP Status Codes.

Every error that leaves the service layer should be wrapped as an [AppError] to ensure
consistent API responses.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the coarse error category. Domain packages define their own codes
// (e.g. "LOCKED_OUT") but always under one of these kinds.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindAuth        Kind = "auth"
	KindNotFound    Kind = "not_found"
	KindRateLimited Kind = "rate_limited"
	KindInternal    Kind = "internal"
)

// AppError is the canonical error type for the identity API.
//
// It carries an HTTP status code, a machine-readable code, a client-safe
// message, and an optional slice of field-level validation errors.
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to clients
// to avoid leaking internal implementation details (e.g., SQL queries).
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "NOT_FOUND", "LOCKED_OUT").
	Code string `json:"code"`
	// Message is a human-readable description safe to return to the client.
	Message string `json:"error"`
	// Kind is the error category used for branching and metrics.
	Kind Kind `json:"-"`
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int `json:"-"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
	// Details holds per-field validation errors for VALIDATION_ERROR responses.
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the JSON field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// Error implements the error interface. It returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// New creates an [AppError] with a domain specific code.
//
// Example:
//
//	apperr.New(apperr.KindAuth, http.StatusLocked, "LOCKED_OUT", "Account is temporarily locked")
func New(kind Kind, status int, code, msg string) *AppError {
	return &AppError{
		Code:       code,
		Message:    msg,
		Kind:       kind,
		HTTPStatus: status,
	}
}

// # Client Errors (4xx)

// NotFound creates a 404 [AppError] for a named resource.
//
// Example:
//
//	apperr.NotFound("Session") // Returns "Session not found"
func NotFound(resource string) *AppError {
	return New(KindNotFound, http.StatusNotFound, "NOT_FOUND", resource+" not found")
}

// Unauthorized creates a 401 [AppError].
func Unauthorized(msg string) *AppError {
	return New(KindAuth, http.StatusUnauthorized, "UNAUTHORIZED", msg)
}

// Forbidden creates a 403 [AppError].
func Forbidden(msg string) *AppError {
	return New(KindAuth, http.StatusForbidden, "FORBIDDEN", msg)
}

// Conflict creates a 409 [AppError] for duplicate or unique-constraint violations.
func Conflict(msg string) *AppError {
	return New(KindConflict, http.StatusConflict, "CONFLICT", msg)
}

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	appErr := New(KindValidation, http.StatusBadRequest, "VALIDATION_ERROR", msg)
	appErr.Details = details
	return appErr
}

// RateLimited creates a 429 [AppError].
func RateLimited(retryAfterSeconds int) *AppError {
	return New(KindRateLimited, http.StatusTooManyRequests, "RATE_LIMITED",
		fmt.Sprintf("Too many requests. Try again in %ds.", retryAfterSeconds))
}

// Unprocessable creates a 422 [AppError] for semantically invalid input.
func Unprocessable(msg string) *AppError {
	return New(KindValidation, http.StatusUnprocessableEntity, "UNPROCESSABLE", msg)
}

// # Server Errors (5xx)

// Internal creates a 500 [AppError] wrapping an unexpected server-side error.
// The cause is stored for logging but is never sent to the client.
func Internal(cause error) *AppError {
	appErr := New(KindInternal, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
	appErr.Cause = cause
	return appErr
}

// ServiceUnavailable creates a 503 [AppError] for maintenance mode.
func ServiceUnavailable(msg string) *AppError {
	return New(KindInternal, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", msg)
}

// # Helpers

// IsAppError reports whether err (or any error in its chain) is an [*AppError].
func IsAppError(err error) bool {
	var ae *AppError
	return errors.As(err, &ae)
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// KindOf returns the [Kind] of err, or [KindInternal] for anything that is not an [*AppError].
func KindOf(err error) Kind {
	if ae := As(err); ae != nil && ae.Kind != "" {
		return ae.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err is an [*AppError] of kind [KindNotFound].
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// CodeOf returns the machine-readable code of err, or an empty string.
func CodeOf(err error) string {
	if ae := As(err); ae != nil {
		return ae.Code
	}
	return ""
}

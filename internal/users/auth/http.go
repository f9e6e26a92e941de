// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/identity/internal/platform/apperr"
	"github.com/taibuivan/identity/internal/platform/constants"
	"github.com/taibuivan/identity/internal/platform/middleware"
	requestutil "github.com/taibuivan/identity/internal/platform/request"
	"github.com/taibuivan/identity/internal/platform/respond"
	"github.com/taibuivan/identity/internal/platform/validate"
)

// maxTokenLength bounds token fields before they reach the codec.
const maxTokenLength = 2048

// acceptedMessage is the single response of the anti-enumeration endpoints.
const acceptedMessage = "If the address belongs to an eligible account, an email is on its way"

// # Definitions & Constructors

// Handler implements the authentication HTTP endpoints.
//
// # Scope
//
// Registration, confirmation, login, session rotation and the recovery
// callbacks. The handler only validates shape; every rule lives in [Service].
type Handler struct {
	authService  *Service
	secureCookie bool
}

// HandlerOption customizes a [Handler].
type HandlerOption func(*Handler)

// WithInsecureCookies drops the Secure flag from the refresh cookie. Local HTTP development only.
func WithInsecureCookies() HandlerOption {
	return func(handler *Handler) {
		handler.secureCookie = false
	}
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service, opts ...HandlerOption) *Handler {
	handler := &Handler{authService: service, secureCookie: true}
	for _, opt := range opts {
		opt(handler)
	}
	return handler
}

// Routes returns a [chi.Router] configured with authentication-specific routes.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/register", handler.register)
	router.Post("/confirm-email", handler.confirmEmail)
	router.Post("/resend-confirmation", handler.resendConfirmation)
	router.Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)
	router.Post("/logout", handler.logout)
	router.Post("/forgot-password", handler.forgotPassword)
	router.Post("/reset-password", handler.resetPassword)
	router.Post("/change-email", handler.changeEmail)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/email-change", handler.requestEmailChange)
		r.Post("/change-password", handler.changePassword)
	})

	return router
}

// AdminRoutes returns the account administration routes. The caller mounts
// them behind [middleware.RequireRole].
func (handler *Handler) AdminRoutes() chi.Router {
	router := chi.NewRouter()
	router.Post("/accounts/{id}/unlock", handler.unlock)
	return router
}

// # Request Payloads

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type confirmEmailRequest struct {
	AccountID string `json:"account_id"`
	Token     string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type changeEmailRequest struct {
	AccountID string `json:"account_id"`
	Token     string `json:"token"`
	NewEmail  string `json:"new_email"`
}

type requestEmailChangeRequest struct {
	NewEmail string `json:"new_email"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// # Registration & Confirmation

/*
Register handles the creation of a new account.

POST /api/v1/auth/register

Request:
  - Body: registerRequest (Email, Password, DisplayName)

Response:
  - 201: Account: Created, unconfirmed account
  - 400: VALIDATION_ERROR or WEAK_PASSWORD
  - 409: EMAIL_ALREADY_IN_USE
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest

	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		MaxLen(FieldDisplayName, input.DisplayName, DisplayNameMaxLength)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	account, err := handler.authService.Register(request.Context(), RegisterInput{
		Email:       input.Email,
		Password:    input.Password,
		DisplayName: input.DisplayName,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, account)
}

/*
ConfirmEmail consumes an email confirmation token.

POST /api/v1/auth/confirm-email

Response:
  - 204: Email confirmed
  - 401: INVALID_OR_EXPIRED_TOKEN
  - 404: ACCOUNT_NOT_FOUND
*/
func (handler *Handler) confirmEmail(writer http.ResponseWriter, request *http.Request) {
	var input confirmEmailRequest

	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldAccountID, input.AccountID).
		UUID(FieldAccountID, input.AccountID)
	validateToken(validator, input.Token)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ConfirmEmail(request.Context(), input.AccountID, input.Token); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
ResendConfirmation mails a fresh confirmation link.

POST /api/v1/auth/resend-confirmation

Response:
  - 202: Always, whether or not the address is registered
*/
func (handler *Handler) resendConfirmation(writer http.ResponseWriter, request *http.Request) {
	var input emailRequest

	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := (&validate.Validator{}).Required(FieldEmail, input.Email).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.authService.ResendConfirmation(request.Context(), input.Email)
	respond.Accepted(writer, map[string]string{FieldMessage: acceptedMessage})
}

// # Session Management

/*
Login authenticates an account and establishes a session.

POST /api/v1/auth/login

Description: Verifies credentials, returns a JWT access token and sets a
secure refresh token cookie.

Response:
  - 200: Access token and account
  - 401: INVALID_CREDENTIALS
  - 403: EMAIL_NOT_CONFIRMED
  - 423: LOCKED_OUT
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email)
	validator.Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.Login(request.Context(), LoginInput{
		Email:     input.Email,
		Password:  input.Password,
		UserAgent: request.UserAgent(),
		IPAddress: requestutil.ClientIP(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setRefreshCookie(writer, session.RefreshToken, session.RefreshTokenExpiresAt)
	respond.OK(writer, handler.tokenResponse(session, true))
}

/*
Refresh rotates the refresh token cookie and issues a new access token.

POST /api/v1/auth/refresh

Response:
  - 200: New access token
  - 401: Missing or invalid refresh token
  - 423: LOCKED_OUT
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	refreshToken := readRefreshCookie(request)
	if refreshToken == "" {
		respond.Error(writer, request, apperr.Unauthorized("Missing refresh token in cookies"))
		return
	}

	session, err := handler.authService.RefreshSession(
		request.Context(),
		refreshToken,
		request.UserAgent(),
		requestutil.ClientIP(request),
	)
	if err != nil {
		handler.clearRefreshCookie(writer)
		respond.Error(writer, request, err)
		return
	}

	handler.setRefreshCookie(writer, session.RefreshToken, session.RefreshTokenExpiresAt)
	respond.OK(writer, handler.tokenResponse(session, false))
}

/*
Logout terminates the current session.

POST /api/v1/auth/logout

Response:
  - 204: Session revoked (idempotent)
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	if refreshToken := readRefreshCookie(request); refreshToken != "" {
		if err := handler.authService.Logout(request.Context(), refreshToken); err != nil {
			respond.Error(writer, request, err)
			return
		}
	}

	handler.clearRefreshCookie(writer)
	respond.NoContent(writer)
}

// # Recovery

/*
ForgotPassword starts the password reset flow.

POST /api/v1/auth/forgot-password

Response:
  - 202: Always, whether or not the address is registered
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input emailRequest

	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := (&validate.Validator{}).Required(FieldEmail, input.Email).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.authService.ForgotPassword(request.Context(), input.Email)
	respond.Accepted(writer, map[string]string{FieldMessage: acceptedMessage})
}

/*
ResetPassword completes the password reset flow.

POST /api/v1/auth/reset-password

Response:
  - 204: Password replaced, every session revoked
  - 400: WEAK_PASSWORD
  - 401: INVALID_OR_EXPIRED_TOKEN
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest

	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Required(FieldNewPassword, input.NewPassword)
	validateToken(validator, input.Token)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err := handler.authService.ResetPassword(request.Context(), ResetPasswordInput{
		Email:       input.Email,
		Token:       input.Token,
		NewPassword: input.NewPassword,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Credential Changes

/*
RequestEmailChange mails an email change link to the new address.

POST /api/v1/auth/email-change

Response:
  - 202: Link sent to the new address
  - 409: EMAIL_ALREADY_IN_USE
*/
func (handler *Handler) requestEmailChange(writer http.ResponseWriter, request *http.Request) {
	accountID, err := requestutil.RequiredAccountID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input requestEmailChangeRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldNewEmail, input.NewEmail).
		Email(FieldNewEmail, input.NewEmail)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.RequestEmailChange(request.Context(), accountID, input.NewEmail); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Accepted(writer, map[string]string{FieldMessage: "Check the new address for a confirmation link"})
}

/*
ChangeEmail consumes an email change token.

POST /api/v1/auth/change-email

Description: Public, the token is the proof. Every session is revoked, so
the refresh cookie is cleared.

Response:
  - 204: Email replaced
  - 401: INVALID_OR_EXPIRED_TOKEN
  - 409: EMAIL_ALREADY_IN_USE
*/
func (handler *Handler) changeEmail(writer http.ResponseWriter, request *http.Request) {
	var input changeEmailRequest

	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldAccountID, input.AccountID).
		UUID(FieldAccountID, input.AccountID).
		Required(FieldNewEmail, input.NewEmail).
		Email(FieldNewEmail, input.NewEmail)
	validateToken(validator, input.Token)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ChangeEmail(request.Context(), input.AccountID, input.Token, input.NewEmail); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearRefreshCookie(writer)
	respond.NoContent(writer)
}

/*
ChangePassword replaces the password of the authenticated account.

POST /api/v1/auth/change-password

Response:
  - 204: Password replaced, other sessions revoked
  - 400: WEAK_PASSWORD
  - 401: INVALID_CREDENTIALS
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	accountID, err := requestutil.RequiredAccountID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldCurrentPassword, input.CurrentPassword).
		Required(FieldNewPassword, input.NewPassword)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.authService.ChangePassword(request.Context(), accountID,
		input.CurrentPassword, input.NewPassword, readRefreshCookie(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Administration

/*
Unlock clears the lockout state of any account.

POST /api/v1/admin/accounts/{id}/unlock

Response:
  - 200: Account with cleared lockout
  - 404: ACCOUNT_NOT_FOUND
*/
func (handler *Handler) unlock(writer http.ResponseWriter, request *http.Request) {
	accountID := requestutil.Param(request, "id")

	if err := (&validate.Validator{}).UUID("id", accountID).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	account, err := handler.authService.Unlock(request.Context(), accountID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, account)
}

// # Helpers

func validateToken(validator *validate.Validator, token string) {
	validator.Required(FieldToken, token).
		Custom(FieldToken, len(token) > maxTokenLength, "Token is too long")
}

func (handler *Handler) tokenResponse(session *LoginSession, withAccount bool) map[string]any {
	payload := map[string]any{
		FieldAccessToken: session.AccessToken,
		FieldTokenType:   "Bearer",
		FieldExpiresIn:   int64(handler.authService.settings.AccessTokenTTL / time.Second),
	}
	if withAccount {
		payload[FieldAccount] = session.Account
	}
	return payload
}

func readRefreshCookie(request *http.Request) string {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (handler *Handler) setRefreshCookie(writer http.ResponseWriter, value string, expiresAt time.Time) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    value,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  expiresAt,
		Secure:   handler.secureCookie,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (handler *Handler) clearRefreshCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		Secure:   handler.secureCookie,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

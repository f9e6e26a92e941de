// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// # Security Tokens

// Purpose binds a security token to the single operation allowed to consume it.
type Purpose string

const (
	PurposeEmailConfirmation Purpose = "email_confirmation"
	PurposeEmailChange       Purpose = "email_change"
	PurposePasswordReset     Purpose = "password_reset"
)

// TokenErrorKind classifies why a security token was rejected.
type TokenErrorKind string

const (
	TokenMalformed       TokenErrorKind = "malformed"
	TokenPurposeMismatch TokenErrorKind = "purpose_mismatch"
	TokenExpired         TokenErrorKind = "expired"
	TokenStampMismatch   TokenErrorKind = "stamp_mismatch"
)

// TokenError is returned by [TokenCodec.Validate]. Callers outside this package
// only ever see [ErrInvalidOrExpiredToken].
type TokenError struct {
	Kind  TokenErrorKind
	Cause error
}

func (e *TokenError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("security_token_%s: %v", e.Kind, e.Cause)
	}
	return "security_token_" + string(e.Kind)
}

func (e *TokenError) Unwrap() error { return e.Cause }

// TokenKindOf returns the kind of a [*TokenError] in err's chain, or an empty kind.
func TokenKindOf(err error) TokenErrorKind {
	var tokenErr *TokenError
	if errors.As(err, &tokenErr) {
		return tokenErr.Kind
	}
	return ""
}

// TokenClaims is the signed payload of a security token.
//
// The account id travels in the registered "sub" claim.
type TokenClaims struct {
	jwt.RegisteredClaims

	Purpose  Purpose `json:"pur"`
	Stamp    string  `json:"stm"`
	NewEmail string  `json:"eml,omitempty"`
}

// AccountID returns the account the token was issued for.
func (claims *TokenClaims) AccountID() string { return claims.Subject }

// # Codec

// TokenCodec issues and validates HMAC-signed, purpose-bound security tokens.
//
// Tokens are compact JWTs, so they are URL safe and expose no secret. The codec
// holds no mutable state and is safe for concurrent use.
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// TokenCodecOption customizes a [TokenCodec].
type TokenCodecOption func(*TokenCodec)

// WithTokenClock overrides the codec clock.
func WithTokenClock(now func() time.Time) TokenCodecOption {
	return func(codec *TokenCodec) {
		codec.now = now
	}
}

// NewTokenCodec creates a codec signing with secret (at least [MinTokenSecretLength] bytes).
func NewTokenCodec(secret []byte, issuer string, opts ...TokenCodecOption) (*TokenCodec, error) {
	if len(secret) < MinTokenSecretLength {
		return nil, fmt.Errorf("auth: token secret must be at least %d bytes", MinTokenSecretLength)
	}

	codec := &TokenCodec{
		secret: append([]byte(nil), secret...),
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(codec)
	}

	return codec, nil
}

// IssueOption adds optional claims to an issued token.
type IssueOption func(*TokenClaims)

// WithNewEmail binds an email change token to the (normalized) target address.
func WithNewEmail(normalizedEmail string) IssueOption {
	return func(claims *TokenClaims) {
		claims.NewEmail = normalizedEmail
	}
}

/*
Issue signs a token for account and purpose.

Description: Embeds the account id, the purpose, the account's current
security stamp and exp = now + ttl. JWT dates carry whole seconds, so exp is
now + ttl truncated to the second: a token never outlives its ttl and may
expire up to one second early. A ttl of zero yields a token that is already
expired.

Parameters:
  - account: *Account
  - purpose: Purpose
  - ttl: time.Duration
  - opts: ...IssueOption

Returns:
  - string: Compact token
  - error: Signing failures
*/
func (codec *TokenCodec) Issue(account *Account, purpose Purpose, ttl time.Duration, opts ...IssueOption) (string, error) {
	now := codec.now()

	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    codec.issuer,
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Purpose: purpose,
		Stamp:   account.SecurityStamp,
	}
	for _, opt := range opts {
		opt(claims)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(codec.secret)
	if err != nil {
		return "", fmt.Errorf("auth_token_issue_failed: %w", err)
	}

	return signed, nil
}

/*
Validate checks a token against the expected purpose and the account's current stamp.

Description: Failures are reported in a fixed order: malformed (bad signature,
encoding, algorithm or issuer), purpose mismatch, expired (now >= exp), stamp mismatch.

Parameters:
  - token: string
  - purpose: Purpose
  - currentStamp: string

Returns:
  - *TokenClaims: Decoded claims on success
  - error: *TokenError
*/
func (codec *TokenCodec) Validate(token string, purpose Purpose, currentStamp string) (*TokenClaims, error) {
	claims, err := codec.decode(token)
	if err != nil {
		return nil, err
	}

	if claims.Purpose != purpose {
		return nil, &TokenError{Kind: TokenPurposeMismatch}
	}

	if !codec.now().Before(claims.ExpiresAt.Time) {
		return nil, &TokenError{Kind: TokenExpired}
	}

	if subtle.ConstantTimeCompare([]byte(claims.Stamp), []byte(currentStamp)) != 1 {
		return nil, &TokenError{Kind: TokenStampMismatch}
	}

	return claims, nil
}

// decode verifies the signature and structure only; time based checks happen in Validate.
func (codec *TokenCodec) decode(token string) (*TokenClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &TokenClaims{}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return codec.secret, nil
	})
	if err != nil {
		return nil, &TokenError{Kind: TokenMalformed, Cause: err}
	}

	if claims.Issuer != codec.issuer || claims.Subject == "" || claims.ExpiresAt == nil || claims.Purpose == "" {
		return nil, &TokenError{Kind: TokenMalformed}
	}

	return claims, nil
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T, clock *fakeClock) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec([]byte(testSecret), "identity.test/security", WithTokenClock(clock.Now))
	require.NoError(t, err)
	return codec
}

func tokenAccount() *Account {
	return &Account{ID: "0190a6b2-7c1e-7d3a-9f00-1234567890ab", SecurityStamp: "stamp-1"}
}

func TestNewTokenCodec_RejectsShortSecret(t *testing.T) {
	_, err := NewTokenCodec([]byte("too-short"), "issuer")
	assert.Error(t, err)
}

func TestTokenCodec_RoundTrip(t *testing.T) {
	clock := newFakeClock()
	codec := newTestCodec(t, clock)
	account := tokenAccount()

	token, err := codec.Issue(account, PurposeEmailChange, time.Hour, WithNewEmail("new@yomira.app"))
	require.NoError(t, err)

	claims, err := codec.Validate(token, PurposeEmailChange, account.SecurityStamp)
	require.NoError(t, err)
	assert.Equal(t, account.ID, claims.AccountID())
	assert.Equal(t, "new@yomira.app", claims.NewEmail)
}

func TestTokenCodec_Validate(t *testing.T) {
	clock := newFakeClock()
	codec := newTestCodec(t, clock)
	account := tokenAccount()

	token, err := codec.Issue(account, PurposePasswordReset, time.Hour)
	require.NoError(t, err)

	otherCodec, err := NewTokenCodec([]byte(strings.Repeat("z", 32)), "identity.test/security", WithTokenClock(clock.Now))
	require.NoError(t, err)
	forged, err := otherCodec.Issue(account, PurposePasswordReset, time.Hour)
	require.NoError(t, err)

	foreignIssuer, err := NewTokenCodec([]byte(testSecret), "someone-else", WithTokenClock(clock.Now))
	require.NoError(t, err)
	wrongIssuer, err := foreignIssuer.Issue(account, PurposePasswordReset, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		purpose Purpose
		stamp   string
		want    TokenErrorKind
	}{
		{"garbage", "not.a.token", PurposePasswordReset, "stamp-1", TokenMalformed},
		{"foreign_signature", forged, PurposePasswordReset, "stamp-1", TokenMalformed},
		{"foreign_issuer", wrongIssuer, PurposePasswordReset, "stamp-1", TokenMalformed},
		{"wrong_purpose", token, PurposeEmailConfirmation, "stamp-1", TokenPurposeMismatch},
		{"rotated_stamp", token, PurposePasswordReset, "stamp-2", TokenStampMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Validate(tt.token, tt.purpose, tt.stamp)
			require.Error(t, err)
			assert.Equal(t, tt.want, TokenKindOf(err))
		})
	}
}

func TestTokenCodec_RejectsNoneAlgorithm(t *testing.T) {
	codec := newTestCodec(t, newFakeClock())

	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "identity.test/security",
			Subject:   "acc",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Purpose: PurposePasswordReset,
		Stamp:   "stamp-1",
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = codec.Validate(unsigned, PurposePasswordReset, "stamp-1")
	assert.Equal(t, TokenMalformed, TokenKindOf(err))
}

func TestTokenCodec_Expiry(t *testing.T) {
	clock := newFakeClock()
	codec := newTestCodec(t, clock)
	account := tokenAccount()

	// 1. A zero ttl is expired immediately
	instant, err := codec.Issue(account, PurposeEmailConfirmation, 0)
	require.NoError(t, err)
	_, err = codec.Validate(instant, PurposeEmailConfirmation, account.SecurityStamp)
	assert.Equal(t, TokenExpired, TokenKindOf(err))

	// 2. Valid one second before exp, expired at exp
	token, err := codec.Issue(account, PurposeEmailConfirmation, time.Minute)
	require.NoError(t, err)

	clock.Advance(time.Minute - time.Second)
	_, err = codec.Validate(token, PurposeEmailConfirmation, account.SecurityStamp)
	assert.NoError(t, err)

	clock.Advance(time.Second)
	_, err = codec.Validate(token, PurposeEmailConfirmation, account.SecurityStamp)
	assert.Equal(t, TokenExpired, TokenKindOf(err))
}

func TestTokenCodec_ExpiryTruncatesToSeconds(t *testing.T) {
	clock := newFakeClock()
	clock.Advance(600 * time.Millisecond)
	codec := newTestCodec(t, clock)
	account := tokenAccount()
	issuedAt := clock.Now()

	token, err := codec.Issue(account, PurposeEmailConfirmation, time.Minute)
	require.NoError(t, err)

	claims, err := codec.Validate(token, PurposeEmailConfirmation, account.SecurityStamp)
	require.NoError(t, err)
	assert.Equal(t, issuedAt.Add(time.Minute).Truncate(time.Second), claims.ExpiresAt.Time.UTC())

	clock.Advance(time.Minute - 600*time.Millisecond - time.Millisecond)
	_, err = codec.Validate(token, PurposeEmailConfirmation, account.SecurityStamp)
	assert.NoError(t, err)

	clock.Advance(time.Millisecond)
	_, err = codec.Validate(token, PurposeEmailConfirmation, account.SecurityStamp)
	assert.Equal(t, TokenExpired, TokenKindOf(err), "expired before now + ttl")
}

func TestTokenCodec_PurposeCheckedBeforeExpiry(t *testing.T) {
	clock := newFakeClock()
	codec := newTestCodec(t, clock)
	account := tokenAccount()

	token, err := codec.Issue(account, PurposeEmailConfirmation, time.Minute)
	require.NoError(t, err)
	clock.Advance(time.Hour)

	_, err = codec.Validate(token, PurposePasswordReset, "other-stamp")
	assert.Equal(t, TokenPurposeMismatch, TokenKindOf(err))
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/identity/internal/platform/apperr"
	"github.com/taibuivan/identity/internal/platform/sec"
)

func TestAccessGuard_FollowsSecurityStamp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	guard := NewAccessGuard(h.store)
	account := h.registerConfirmed(t, "tai@yomira.app")

	session, err := h.login("tai@yomira.app", testPassword)
	require.NoError(t, err)
	claims, err := h.jwt.VerifyToken(session.AccessToken)
	require.NoError(t, err)

	// 1. A fresh token matches the stored stamp
	require.NoError(t, guard.ValidateClaims(ctx, claims))

	// 2. A credential change rotates the stamp and kills the old token
	require.NoError(t, h.service.ChangePassword(ctx, account.ID, testPassword, otherPassword, session.RefreshToken))
	err = guard.ValidateClaims(ctx, claims)
	assert.ErrorIs(t, err, ErrAccessRevoked)
	assert.Equal(t, http.StatusUnauthorized, apperr.As(err).HTTPStatus)

	// 3. Refreshing the kept session yields a token bound to the new stamp
	refreshed, err := h.service.RefreshSession(ctx, session.RefreshToken, "go-test", "127.0.0.1")
	require.NoError(t, err)
	fresh, err := h.jwt.VerifyToken(refreshed.AccessToken)
	require.NoError(t, err)
	assert.NoError(t, guard.ValidateClaims(ctx, fresh))
}

func TestAccessGuard_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	guard := NewAccessGuard(h.store)
	account := h.registerConfirmed(t, "tai@yomira.app")

	tests := []struct {
		name   string
		claims *sec.AuthClaims
	}{
		{"no_fingerprint", &sec.AuthClaims{UserID: account.ID}},
		{"unknown_account", &sec.AuthClaims{UserID: "019531c2-0000-7000-8000-000000000000", Stamp: sec.StampFingerprint(account.SecurityStamp)}},
		{"stale_stamp", &sec.AuthClaims{UserID: account.ID, Stamp: sec.StampFingerprint("previous-stamp")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, guard.ValidateClaims(ctx, tt.claims), ErrAccessRevoked)
		})
	}
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/identity/internal/platform/apperr"
	"github.com/taibuivan/identity/internal/platform/constants"
	"github.com/taibuivan/identity/internal/users/auth"
	"github.com/taibuivan/identity/pkg/pointer"
)

func TestService_GetInfo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	profile, err := h.service.GetInfo(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, "tai@yomira.app", profile.Email)
	assert.True(t, profile.EmailConfirmed)
	assert.False(t, profile.LockedOut)

	_, err = h.service.GetInfo(ctx, "019531c2-0000-7000-8000-000000000000")
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)
}

func TestService_GetInfo_ReportsLockout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	end := testNow.Add(time.Minute)
	h.profiles.accounts[ownerID].Lockout = auth.LockoutState{Enabled: true, EndUTC: &end}

	profile, err := h.service.GetInfo(ctx, ownerID)
	require.NoError(t, err)
	assert.True(t, profile.LockedOut)
	require.NotNil(t, profile.Lockout.EndUTC)
	assert.Equal(t, end, *profile.Lockout.EndUTC)

	past := testNow.Add(-time.Second)
	h.profiles.accounts[ownerID].Lockout.EndUTC = &past

	profile, err = h.service.GetInfo(ctx, ownerID)
	require.NoError(t, err)
	assert.False(t, profile.LockedOut)
}

func TestService_UpdateProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	profile, err := h.service.UpdateProfile(ctx, ownerID, UpdateProfileInput{Bio: pointer.To("  reads a lot  ")})
	require.NoError(t, err)
	assert.Equal(t, "Tai", profile.DisplayName, "omitted fields stay untouched")
	assert.Equal(t, "reads a lot", profile.Bio)
	assert.Equal(t, int64(2), profile.Version)
	assert.Equal(t, testNow, profile.UpdatedAt)

	stored, err := h.profiles.FindByID(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, "reads a lot", stored.Bio)
}

func TestService_UpdateProfile_RetriesConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.profiles.conflicts = constants.MaxConflictRetries - 1
	profile, err := h.service.UpdateProfile(ctx, ownerID, UpdateProfileInput{DisplayName: pointer.To("Tai B.")})
	require.NoError(t, err)
	assert.Equal(t, "Tai B.", profile.DisplayName)

	h.profiles.conflicts = constants.MaxConflictRetries
	_, err = h.service.UpdateProfile(ctx, ownerID, UpdateProfileInput{DisplayName: pointer.To("Never")})
	assert.ErrorIs(t, err, auth.ErrConcurrencyConflict)
	assert.Equal(t, auth.CodeConcurrencyConflict, apperr.CodeOf(err))
}

func TestService_DeleteAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.sessions.add(ownerID, "s1", "token-one", testNow)
	h.sessions.add(ownerID, "s2", "token-two", testNow)
	h.sessions.add(otherID, "s3", "token-three", testNow)

	require.NoError(t, h.service.DeleteAccount(ctx, ownerID))

	_, err := h.service.GetInfo(ctx, ownerID)
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)
	assert.Empty(t, h.sessions.active(ownerID))
	assert.Equal(t, []string{"s3"}, h.sessions.active(otherID))

	assert.ErrorIs(t, h.service.DeleteAccount(ctx, ownerID), auth.ErrAccountNotFound)
}

func TestService_ListSessions_MarksCurrent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.sessions.add(ownerID, "older", "token-older", testNow.Add(-time.Hour))
	h.sessions.add(ownerID, "newer", "token-newer", testNow)
	h.sessions.add(otherID, "foreign", "token-foreign", testNow)

	sessions, err := h.service.ListSessions(ctx, ownerID, "token-older")
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.Equal(t, "newer", sessions[0].ID)
	assert.False(t, sessions[0].IsCurrent)
	assert.Equal(t, "older", sessions[1].ID)
	assert.True(t, sessions[1].IsCurrent)

	sessions, err = h.service.ListSessions(ctx, ownerID, "")
	require.NoError(t, err)
	for _, session := range sessions {
		assert.False(t, session.IsCurrent)
	}
}

func TestService_RevokeSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.sessions.add(ownerID, "mine", "token-mine", testNow)
	h.sessions.add(otherID, "theirs", "token-theirs", testNow)

	require.NoError(t, h.service.RevokeSession(ctx, ownerID, "mine"))
	assert.Empty(t, h.sessions.active(ownerID))

	err := h.service.RevokeSession(ctx, ownerID, "theirs")
	assert.True(t, apperr.IsNotFound(err), "another account's session is invisible")
	assert.Equal(t, []string{"theirs"}, h.sessions.active(otherID))

	err = h.service.RevokeSession(ctx, ownerID, "mine")
	assert.True(t, apperr.IsNotFound(err))
}

func TestService_RevokeOtherSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.sessions.add(ownerID, "laptop", "token-laptop", testNow)
	h.sessions.add(ownerID, "phone", "token-phone", testNow)
	h.sessions.add(ownerID, "tablet", "token-tablet", testNow)
	h.sessions.add(otherID, "foreign", "token-foreign", testNow)

	require.NoError(t, h.service.RevokeOtherSessions(ctx, ownerID, "token-phone"))
	assert.Equal(t, []string{"phone"}, h.sessions.active(ownerID))
	assert.Equal(t, []string{"foreign"}, h.sessions.active(otherID))
}

func TestService_RevokeOtherSessions_RequiresOwnLiveSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.sessions.add(ownerID, "laptop", "token-laptop", testNow)
	h.sessions.add(otherID, "foreign", "token-foreign", testNow)

	cases := map[string]string{
		"no_cookie":       "",
		"unknown_token":   "token-unknown",
		"foreign_session": "token-foreign",
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			err := h.service.RevokeOtherSessions(ctx, ownerID, token)
			assert.ErrorIs(t, err, auth.ErrSessionInvalid)
			assert.Equal(t, []string{"laptop"}, h.sessions.active(ownerID))
		})
	}
}

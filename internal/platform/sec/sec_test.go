// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taibuivan/identity/internal/platform/sec"
)

/*
TestBcryptHasher verifies hashing and verification of passwords.
*/
func TestBcryptHasher(t *testing.T) {
	hasher := sec.NewBcryptHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("Abc12345!")
	require.NoError(t, err)

	assert.NotEqual(t, "Abc12345!", hash)
	assert.True(t, hasher.Verify(hash, "Abc12345!"))
	assert.False(t, hasher.Verify(hash, "abc12345!"))
	assert.False(t, hasher.Verify("not-a-bcrypt-hash", "Abc12345!"))
}

/*
TestNewBcryptHasher_ClampsCost verifies that out of range costs fall back to the default.
*/
func TestNewBcryptHasher_ClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, sec.NewBcryptHasher(1).Cost)
	assert.Equal(t, bcrypt.DefaultCost, sec.NewBcryptHasher(99).Cost)
	assert.Equal(t, bcrypt.MinCost, sec.NewBcryptHasher(bcrypt.MinCost).Cost)
}

/*
TestGenerateSecureToken verifies length and uniqueness of opaque tokens.
*/
func TestGenerateSecureToken(t *testing.T) {
	first, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)
	second, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)

	assert.Len(t, first, 43)
	assert.NotEqual(t, first, second)
	assert.Len(t, sec.HashToken(first), 64)
	assert.Equal(t, sec.HashToken(first), sec.HashToken(first))
}

/*
TestTokenService_RoundTrip verifies that a signed access token verifies with the same issuer only.
*/
func TestTokenService_RoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	service := sec.NewTokenServiceWithKey(key, &key.PublicKey, "identity.test")

	token, err := service.GenerateAccessToken("acc-1", "ada@example.com", string(sec.RoleMember), time.Minute)
	require.NoError(t, err)

	claims, err := service.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "member", claims.Role)

	other := sec.NewTokenServiceWithKey(key, &key.PublicKey, "someone-else")
	_, err = other.VerifyToken(token)
	assert.Error(t, err)
}

/*
TestTokenService_StampClaim verifies that WithStamp embeds a fingerprint, never the stamp itself.
*/
func TestTokenService_StampClaim(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	service := sec.NewTokenServiceWithKey(key, &key.PublicKey, "identity.test")

	bare, err := service.GenerateAccessToken("acc-1", "ada@example.com", string(sec.RoleMember), time.Minute)
	require.NoError(t, err)
	claims, err := service.VerifyToken(bare)
	require.NoError(t, err)
	assert.Empty(t, claims.Stamp)

	bound, err := service.GenerateAccessToken("acc-1", "ada@example.com", string(sec.RoleMember), time.Minute,
		sec.WithStamp("stamp-secret-value"))
	require.NoError(t, err)
	claims, err = service.VerifyToken(bound)
	require.NoError(t, err)
	assert.Equal(t, sec.StampFingerprint("stamp-secret-value"), claims.Stamp)
	assert.NotContains(t, bound, "stamp-secret-value")

	assert.Len(t, sec.StampFingerprint("a"), 32)
	assert.NotEqual(t, sec.StampFingerprint("a"), sec.StampFingerprint("b"))
}

/*
TestUserRole_AtLeast verifies the role hierarchy.
*/
func TestUserRole_AtLeast(t *testing.T) {
	assert.True(t, sec.RoleAdmin.AtLeast(sec.RoleMember))
	assert.False(t, sec.RoleMember.AtLeast(sec.RoleAdmin))
	assert.False(t, sec.UserRole("ghost").Valid())
}

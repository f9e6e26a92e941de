// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// GenerateSecureToken returns nBytes of crypto/rand entropy encoded as unpadded base64url.
//
// Used for refresh tokens and account security stamps.
func GenerateSecureToken(nBytes int) (string, error) {
	buffer := make([]byte, nBytes)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec: failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// HashToken returns the hex SHA-256 of an opaque token. Only hashes are persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// StampFingerprint returns a short, non-reversible digest of a security stamp,
// safe to embed in a readable token payload.
func StampFingerprint(securityStamp string) string {
	sum := sha256.Sum256([]byte("stamp:" + securityStamp))
	return hex.EncodeToString(sum[:16])
}

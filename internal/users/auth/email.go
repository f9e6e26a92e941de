// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeEmail returns the uniqueness key of an email address.
//
// The address is trimmed, NFKC normalized and Unicode case folded, so
// "Ada@Example.COM" and "ada@example.com" collide.
func NormalizeEmail(email string) string {
	trimmed := strings.TrimSpace(email)

	// Casers keep state and are not safe for concurrent use.
	return cases.Fold().String(norm.NFKC.String(trimmed))
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package uuid generates the identifiers used for accounts and sessions.

Every primary key is a UUIDv7 string. Version 7 values are ordered by creation
time, so new rows land at the right edge of the PostgreSQL B-tree index.
*/
package uuid

import "github.com/google/uuid"

// New generates a new UUIDv7 string.
//
// It panics when the system entropy source fails, which leaves no safe way to
// mint account or session IDs.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic("uuid: failed to generate UUIDv7: " + err.Error())
	}
	return id.String()
}

// IsV7 reports whether s is a canonical UUID of version 7.
func IsV7(s string) bool {
	id, err := uuid.Parse(s)
	return err == nil && len(s) == 36 && id.Version() == 7
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dberr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/identity/internal/platform/apperr"
	"github.com/taibuivan/identity/internal/platform/dberr"
)

/*
TestWrap verifies the classification of driver errors.
*/
func TestWrap(t *testing.T) {
	unique := &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "account_normalizedemail_key"}

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"no rows", pgx.ErrNoRows, http.StatusNotFound},
		{"unique violation", fmt.Errorf("insert: %w", unique), http.StatusConflict},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := apperr.As(dberr.Wrap(tt.err, "loading account"))
			if assert.NotNil(t, appErr) {
				assert.Equal(t, tt.status, appErr.HTTPStatus)
			}
		})
	}

	assert.NoError(t, dberr.Wrap(nil, "noop"))
	assert.True(t, dberr.IsUniqueViolation(unique))
	assert.Equal(t, "account_normalizedemail_key", dberr.ConstraintName(unique))
	assert.False(t, dberr.IsUniqueViolation(pgx.ErrNoRows))
}

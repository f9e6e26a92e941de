// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/identity/internal/platform/database/schema"
	"github.com/taibuivan/identity/internal/users/auth"
)

// # Profile Store

// PostgresProfileStore implements [ProfileStore] using pgx.
//
// Reads go through the credential store so both packages hydrate accounts the
// same way.
type PostgresProfileStore struct {
	pool     *pgxpool.Pool
	accounts *auth.PostgresCredentialStore
}

// NewProfileStore creates a new PostgreSQL implementation of ProfileStore.
func NewProfileStore(pool *pgxpool.Pool) *PostgresProfileStore {
	return &PostgresProfileStore{pool: pool, accounts: auth.NewCredentialStore(pool)}
}

// FindByID retrieves a non-deleted account by ID.
func (store *PostgresProfileStore) FindByID(context context.Context, id string) (*auth.Account, error) {
	return store.accounts.FindByID(context, id)
}

/*
UpdateProfile writes the mutable profile fields.

Description: Uses the same version guard as credential writes, so a profile
edit never silently overwrites a concurrent password or lockout change.

Parameters:
  - context: context.Context
  - account: *auth.Account

Returns:
  - error: auth.ErrVersionConflict or execution errors
*/
func (store *PostgresProfileStore) UpdateProfile(context context.Context, account *auth.Account) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = $3, %s = $4, %s = $5, %s = %s + 1
		WHERE %s = $1 AND %s = $2 AND %s IS NULL`,
		schema.UserAccount.Table,
		schema.UserAccount.DisplayName, schema.UserAccount.Bio, schema.UserAccount.UpdatedAt,
		schema.UserAccount.Version, schema.UserAccount.Version,
		schema.UserAccount.ID, schema.UserAccount.Version, schema.UserAccount.DeletedAt,
	)

	tag, err := store.pool.Exec(context, query,
		account.ID,
		account.Version,
		account.DisplayName,
		account.Bio,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_profile_store_update_failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return auth.ErrVersionConflict
	}

	account.Version++
	return nil
}

/*
SoftDelete flags an account as logically destroyed.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: auth.ErrAccountNotFound when the account is missing or already deleted
*/
func (store *PostgresProfileStore) SoftDelete(context context.Context, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = NOW(), %s = NOW(), %s = %s + 1 WHERE %s = $1 AND %s IS NULL`,
		schema.UserAccount.Table, schema.UserAccount.DeletedAt, schema.UserAccount.UpdatedAt,
		schema.UserAccount.Version, schema.UserAccount.Version,
		schema.UserAccount.ID, schema.UserAccount.DeletedAt)

	tag, err := store.pool.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("postgres_profile_store_soft_delete_failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return auth.ErrAccountNotFound
	}

	return nil
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/claude/ingestd/internal/auth"
)

// Lookup implements auth.KeyStore against the api_keys table.
func (db *DB) Lookup(ctx context.Context, keyID string) (auth.StoredKey, error) {
	var k auth.StoredKey
	err := db.Pool.QueryRow(ctx,
		`SELECT key_id, user_id, is_active, salt, hash, argon2_time, argon2_memory, argon2_threads, argon2_key_len, request_budget_per_hour
		 FROM api_keys WHERE key_id = $1`, keyID).
		Scan(&k.KeyID, &k.UserID, &k.IsActive, &k.Salt, &k.Hash, &k.Time, &k.Memory, &k.Threads, &k.KeyLen, &k.BudgetPerHour)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.StoredKey{}, auth.ErrKeyNotFound
	}
	if err != nil {
		return auth.StoredKey{}, fmt.Errorf("looking up api key %s: %w", keyID, err)
	}
	return k, nil
}

/**
 * Key/Value Operations for TradeImport
 *
 * Author: TradeImport Team
 * Update History:
 * - 2025-02-13: Initial implementation
 */

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// KVStore handles key/value rows.
type KVStore struct {
	db DBInterface
}

// NewKVStore creates a new key/value store.
func NewKVStore(db *DB) *KVStore {
	return &KVStore{db: db}
}

// WithTx returns a store bound to tx.
func (s *KVStore) WithTx(tx *sqlx.Tx) *KVStore {
	return &KVStore{db: WrapTx(tx)}
}

// Get retrieves an entry by key.
func (s *KVStore) Get(ctx context.Context, key string) (*Entry, error) {
	var entry Entry
	err := s.db.GetContext(ctx, &entry, `SELECT key, value, updated_at FROM kv_store WHERE key = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("key %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return &entry, nil
}

// Set inserts or replaces the value of key.
func (s *KVStore) Set(ctx context.Context, key, value string) error {
	query := `
    INSERT INTO kv_store (key, value, updated_at)
    VALUES (:key, :value, :updated_at)
    ON CONFLICT(key) DO UPDATE SET
      value = excluded.value,
      updated_at = excluded.updated_at`

	entry := Entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	if _, err := s.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

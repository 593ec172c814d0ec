/**
 * Chunk Failure Log for TradeImport
 *
 * Author: TradeImport Team
 * Update History:
 * - 2025-02-13: Initial implementation
 */

package state

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// FailureStore handles the chunk failure audit log.
type FailureStore struct {
	db DBInterface
}

// NewFailureStore creates a new failure store.
func NewFailureStore(db *DB) *FailureStore {
	return &FailureStore{db: db}
}

// WithTx returns a store bound to tx.
func (s *FailureStore) WithTx(tx *sqlx.Tx) *FailureStore {
	return &FailureStore{db: WrapTx(tx)}
}

// Log appends a failure and fills in its ID.
func (s *FailureStore) Log(ctx context.Context, f *ChunkFailure) error {
	f.CreatedAt = timestamp(f.CreatedAt)

	query := `
    INSERT INTO chunk_failures (
      item_id, session_id, file_name, chunk_index, start_index,
      records, retry_count, error_message, created_at
    ) VALUES (
      :item_id, :session_id, :file_name, :chunk_index, :start_index,
      :records, :retry_count, :error_message, :created_at
    ) RETURNING id`

	stmt, err := s.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	if err := stmt.QueryRowContext(ctx, f).Scan(&f.ID); err != nil {
		return fmt.Errorf("failed to log chunk failure: %w", err)
	}
	return nil
}

// ListByItem returns the failures of one queue item in chunk order.
func (s *FailureStore) ListByItem(ctx context.Context, itemID string) ([]*ChunkFailure, error) {
	var failures []*ChunkFailure
	query := `SELECT * FROM chunk_failures WHERE item_id = $1 ORDER BY chunk_index, id`

	if err := s.db.SelectContext(ctx, &failures, query, itemID); err != nil {
		return nil, fmt.Errorf("failed to list chunk failures: %w", err)
	}
	return failures, nil
}

// CountBySession returns the number of failures logged for a session.
func (s *FailureStore) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM chunk_failures WHERE session_id = $1`, sessionID); err != nil {
		return 0, fmt.Errorf("failed to count chunk failures: %w", err)
	}
	return n, nil
}

// DeleteByItem removes the failures of one queue item.
func (s *FailureStore) DeleteByItem(ctx context.Context, itemID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunk_failures WHERE item_id = $1`, itemID); err != nil {
		return fmt.Errorf("failed to delete chunk failures: %w", err)
	}
	return nil
}

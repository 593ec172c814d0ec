/**
 * State Manager for TradeImport
 *
 * Features:
 * - Single entry point over the key/value, failure, and report stores
 * - Transactional item cleanup
 * - Consistent report reads
 *
 * Author: TradeImport Team
 * Update History:
 * - 2025-02-13: Initial implementation
 */

package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Manager provides a unified interface for state management.
type Manager struct {
	db       *DB
	kv       *KVStore
	failures *FailureStore
	reports  *ReportStore
}

// NewManager opens the database and creates a state manager.
func NewManager(cfg DBConfig) (*Manager, error) {
	db, err := NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	return &Manager{
		db:       db,
		kv:       NewKVStore(db),
		failures: NewFailureStore(db),
		reports:  NewReportStore(db),
	}, nil
}

// Close closes the state manager.
func (m *Manager) Close() error {
	return m.db.Close()
}

// DB returns the underlying database connection.
func (m *Manager) DB() *DB {
	return m.db
}

// KV returns the key/value store.
func (m *Manager) KV() *KVStore {
	return m.kv
}

// Failures returns the chunk failure store.
func (m *Manager) Failures() *FailureStore {
	return m.failures
}

// Reports returns the report store.
func (m *Manager) Reports() *ReportStore {
	return m.reports
}

// GetValue returns the value stored under key. ok is false when the key
// does not exist.
func (m *Manager) GetValue(ctx context.Context, key string) (value string, ok bool, err error) {
	entry, err := m.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return entry.Value, true, nil
}

// SetValue stores value under key.
func (m *Manager) SetValue(ctx context.Context, key, value string) error {
	return m.kv.Set(ctx, key, value)
}

// LogChunkFailure appends a chunk failure to the audit log.
func (m *Manager) LogChunkFailure(ctx context.Context, f *ChunkFailure) error {
	return m.failures.Log(ctx, f)
}

// FailureLog returns every logged chunk failure of an item and how many
// of them belong to sessionID.
func (m *Manager) FailureLog(ctx context.Context, itemID, sessionID string) (failures []*ChunkFailure, inSession int, err error) {
	err = m.db.WithReadTx(ctx, func(tx *sqlx.Tx) error {
		store := m.failures.WithTx(tx)
		if failures, err = store.ListByItem(ctx, itemID); err != nil {
			return err
		}
		inSession, err = store.CountBySession(ctx, sessionID)
		return err
	})
	return failures, inSession, err
}

// SaveReport stores the reconciliation report of one item.
func (m *Manager) SaveReport(ctx context.Context, report *ImportReport) error {
	return m.reports.Save(ctx, report)
}

// ListReports returns all stored reports, oldest first.
func (m *Manager) ListReports(ctx context.Context) (reports []*ImportReport, err error) {
	err = m.db.WithReadTx(ctx, func(tx *sqlx.Tx) error {
		reports, err = m.reports.WithTx(tx).List(ctx)
		return err
	})
	return reports, err
}

// GetReport returns the report of one item.
func (m *Manager) GetReport(ctx context.Context, itemID string) (report *ImportReport, err error) {
	err = m.db.WithReadTx(ctx, func(tx *sqlx.Tx) error {
		report, err = m.reports.WithTx(tx).Get(ctx, itemID)
		return err
	})
	return report, err
}

// ForgetItem removes the failure log and report of one item.
func (m *Manager) ForgetItem(ctx context.Context, itemID string) error {
	return m.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := m.failures.WithTx(tx).DeleteByItem(ctx, itemID); err != nil {
			return err
		}
		return m.reports.WithTx(tx).Delete(ctx, itemID)
	})
}

// HealthCheck verifies the database is reachable.
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.db.HealthCheck(ctx)
}

/**
 * Reconciliation Report History for TradeImport
 *
 * Features:
 * - Upsert of a file report together with its rejected records
 * - Ordered listing for combined exports
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

	"github.com/jmoiron/sqlx"
)

// ReportStore handles import reports and their records.
type ReportStore struct {
	db DBInterface
}

// NewReportStore creates a new report store.
func NewReportStore(db *DB) *ReportStore {
	return &ReportStore{db: db}
}

// WithTx returns a store bound to tx.
func (s *ReportStore) WithTx(tx *sqlx.Tx) *ReportStore {
	return &ReportStore{db: WrapTx(tx)}
}

// Save stores report, replacing any previous report of the same item.
func (s *ReportStore) Save(ctx context.Context, report *ImportReport) error {
	report.CreatedAt = timestamp(report.CreatedAt)

	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM report_records WHERE item_id = $1`, report.ItemID); err != nil {
			return fmt.Errorf("failed to clear report records: %w", err)
		}

		query := `
      INSERT INTO import_reports (
        item_id, file_name, status, message,
        total_records, uploaded_records, created_at
      ) VALUES (
        :item_id, :file_name, :status, :message,
        :total_records, :uploaded_records, :created_at
      )
      ON CONFLICT(item_id) DO UPDATE SET
        file_name = excluded.file_name,
        status = excluded.status,
        message = excluded.message,
        total_records = excluded.total_records,
        uploaded_records = excluded.uploaded_records,
        created_at = excluded.created_at`

		if _, err := tx.NamedExecContext(ctx, query, report); err != nil {
			return fmt.Errorf("failed to save report: %w", err)
		}

		if len(report.Records) == 0 {
			return nil
		}

		insert := `
      INSERT INTO report_records (
        item_id, seq, exchange, segment, file_type, code, status, remark
      ) VALUES (
        :item_id, :seq, :exchange, :segment, :file_type, :code, :status, :remark
      )`

		stmt, err := tx.PrepareNamedContext(ctx, insert)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for i := range report.Records {
			rec := &report.Records[i]
			rec.ItemID = report.ItemID
			rec.Seq = i
			if _, err := stmt.ExecContext(ctx, rec); err != nil {
				return fmt.Errorf("failed to save report record %d: %w", i, err)
			}
		}
		return nil
	})
}

// Get retrieves the report of one item with its records.
func (s *ReportStore) Get(ctx context.Context, itemID string) (*ImportReport, error) {
	var report ImportReport
	err := s.db.GetContext(ctx, &report, `SELECT * FROM import_reports WHERE item_id = $1`, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("report %s: %w", itemID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	if err := s.loadRecords(ctx, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// List returns all reports, oldest first.
func (s *ReportStore) List(ctx context.Context) ([]*ImportReport, error) {
	var reports []*ImportReport
	if err := s.db.SelectContext(ctx, &reports, `SELECT * FROM import_reports ORDER BY created_at, item_id`); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	for _, r := range reports {
		if err := s.loadRecords(ctx, r); err != nil {
			return nil, err
		}
	}
	return reports, nil
}

// Delete removes the report of one item.
func (s *ReportStore) Delete(ctx context.Context, itemID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM import_reports WHERE item_id = $1`, itemID); err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	return nil
}

func (s *ReportStore) loadRecords(ctx context.Context, report *ImportReport) error {
	query := `SELECT * FROM report_records WHERE item_id = $1 ORDER BY seq`
	if err := s.db.SelectContext(ctx, &report.Records, query, report.ItemID); err != nil {
		return fmt.Errorf("failed to load report records: %w", err)
	}
	return nil
}

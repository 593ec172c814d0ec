/**
 * Data Models for TradeImport State
 *
 * Features:
 * - Struct definitions matching database schema
 * - Report status constants
 *
 * Author: TradeImport Team
 * Update History:
 * - 2025-02-13: Initial implementation
 */

package state

import (
	"database/sql"
	"time"
)

// Report statuses
const (
	ReportStatusSuccess = "success"
	ReportStatusPartial = "partial"
	ReportStatusFailed  = "failed"
)

// Entry is one key/value row.
type Entry struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ChunkFailure is an audit row for a chunk that exhausted its retries.
type ChunkFailure struct {
	ID           int64          `db:"id" json:"id"`
	ItemID       string         `db:"item_id" json:"item_id"`
	SessionID    string         `db:"session_id" json:"session_id"`
	FileName     string         `db:"file_name" json:"file_name"`
	ChunkIndex   int            `db:"chunk_index" json:"chunk_index"`
	StartIndex   int            `db:"start_index" json:"start_index"`
	Records      int            `db:"records" json:"records"`
	RetryCount   int            `db:"retry_count" json:"retry_count"`
	ErrorMessage sql.NullString `db:"error_message" json:"error_message"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// ImportReport is the stored reconciliation result of one file.
type ImportReport struct {
	ItemID          string         `db:"item_id" json:"item_id"`
	FileName        string         `db:"file_name" json:"file_name"`
	Status          string         `db:"status" json:"status"`
	Message         sql.NullString `db:"message" json:"message"`
	TotalRecords    int            `db:"total_records" json:"total_records"`
	UploadedRecords int            `db:"uploaded_records" json:"uploaded_records"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	Records         []ReportRecord `db:"-" json:"records"`
}

// ReportRecord is one backend-rejected record of a report.
type ReportRecord struct {
	ID       int64  `db:"id" json:"-"`
	ItemID   string `db:"item_id" json:"-"`
	Seq      int    `db:"seq" json:"seq"`
	Exchange string `db:"exchange" json:"exchange"`
	Segment  string `db:"segment" json:"segment"`
	FileType string `db:"file_type" json:"file_type"`
	Code     string `db:"code" json:"code"`
	Status   string `db:"status" json:"status"`
	Remark   string `db:"remark" json:"remark"`
}

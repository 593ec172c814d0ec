/**
 * Record Parsing for TradeImport
 *
 * Features:
 * - Streaming CSV/TXT tokenization with bounded memory
 * - Header inference and column name synthesis
 * - Fixed-size batch emission with caller back-pressure
 * - Full-workbook Excel parsing for spreadsheets
 * - Cooperative abort through context cancellation
 *
 * Author: TradeImport Team
 * Updated: 2025-02-11
 */

package parser

import (
	"context"

	"github.com/vishalSecmark/tradewebx-sub002/internal/errors"
)

// Row maps a resolved column name to a coerced cell value.
type Row map[string]interface{}

// Options controls a parse run.
type Options struct {
	// ChunkSize is the number of rows per emitted batch.
	ChunkSize int

	// Delimiter overrides delimiter detection for CSV/TXT.
	Delimiter rune

	// Sheet selects a workbook sheet; blank means the first one.
	Sheet string

	// SkipRows counts but does not emit the first N data rows.
	SkipRows int
}

// Result summarises a completed parse.
type Result struct {
	Headers   []string `json:"headers"`
	HasHeader bool     `json:"hasHeader"`
	TotalRows int      `json:"totalRows"`
	Delimiter string   `json:"delimiter,omitempty"`
}

// BatchFunc receives each batch with the global index of its first row.
// Returning an error stops parsing; the error is returned to the caller.
// Batches are freshly allocated and may be retained.
type BatchFunc func(rows []Row, startIndex int) error

// Parse streams a file through the parser matching its extension.
func Parse(ctx context.Context, fh FileHandle, opts Options, onBatch BatchFunc) (*Result, error) {
	rc, err := fh.Open()
	if err != nil {
		return nil, errors.New(errors.ErrorTypeParse, "open_file", fh.Name(), err)
	}
	defer rc.Close()

	if Describe(fh).IsSpreadsheet() {
		return ParseExcel(ctx, rc, opts, onBatch)
	}
	return ParseCSV(ctx, rc, opts, onBatch)
}

// Scan counts data rows and resolves headers without building rows.
func Scan(ctx context.Context, fh FileHandle, opts Options) (*Result, error) {
	rc, err := fh.Open()
	if err != nil {
		return nil, errors.New(errors.ErrorTypeParse, "open_file", fh.Name(), err)
	}
	defer rc.Close()

	if Describe(fh).IsSpreadsheet() {
		return CountExcel(ctx, rc, opts)
	}
	return ParseCSV(ctx, rc, opts, nil)
}

func aborted(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return ctx.Err()
}

package parser

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/vishalSecmark/tradewebx-sub002/internal/errors"
)

// ParseExcel reads a whole workbook into memory, takes the first row of
// the selected sheet as the header and emits the rest in batches. Memory
// scales with the workbook size; CSV/TXT is preferred for large imports.
func ParseExcel(ctx context.Context, r io.Reader, opts Options, onBatch BatchFunc) (*Result, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = ChunkSizeFor(0)
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeParse, "open_workbook", "", err)
	}
	defer f.Close()

	sheet, err := selectSheet(f, opts.Sheet)
	if err != nil {
		return nil, err
	}

	matrix, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeParse, "read_sheet", sheet, err)
	}
	if len(matrix) == 0 {
		return nil, errors.New(errors.ErrorTypeParse, "read_sheet", sheet, errors.NewSimple("Excel file is empty"))
	}

	result := &Result{
		Headers:   ResolveHeaders(matrix[0]),
		HasHeader: true,
	}

	var (
		batch []Row
		start int
		index int
	)

	for _, record := range matrix[1:] {
		if err := aborted(ctx); err != nil {
			return result, err
		}
		if isBlankRecord(record) {
			continue
		}

		idx := index
		index++
		result.TotalRows = index

		if onBatch == nil || idx < opts.SkipRows {
			continue
		}

		if len(batch) == 0 {
			start = idx
			batch = make([]Row, 0, opts.ChunkSize)
		}
		batch = append(batch, buildRow(result.Headers, record))

		if len(batch) >= opts.ChunkSize {
			if err := onBatch(batch, start); err != nil {
				return result, err
			}
			batch = nil
		}
	}

	if onBatch != nil && len(batch) > 0 {
		if err := onBatch(batch, start); err != nil {
			return result, err
		}
	}

	return result, nil
}

// CountExcel counts data rows with the streaming row iterator instead of
// materialising the sheet.
func CountExcel(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeParse, "open_workbook", "", err)
	}
	defer f.Close()

	sheet, err := selectSheet(f, opts.Sheet)
	if err != nil {
		return nil, err
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeParse, "read_sheet", sheet, err)
	}
	defer rows.Close()

	result := &Result{HasHeader: true}
	first := true
	for rows.Next() {
		if err := aborted(ctx); err != nil {
			return result, err
		}

		cols, err := rows.Columns()
		if err != nil {
			return result, errors.New(errors.ErrorTypeParse, "read_sheet", sheet, err)
		}

		if first {
			result.Headers = ResolveHeaders(cols)
			first = false
			continue
		}
		if !isBlankRecord(cols) {
			result.TotalRows++
		}
	}

	if first {
		return nil, errors.New(errors.ErrorTypeParse, "read_sheet", sheet, errors.NewSimple("Excel file is empty"))
	}

	return result, nil
}

func selectSheet(f *excelize.File, name string) (string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", errors.New(errors.ErrorTypeParse, "select_sheet", name, errors.NewSimple("workbook has no sheets"))
	}
	if name == "" {
		return sheets[0], nil
	}
	for _, s := range sheets {
		if s == name {
			return s, nil
		}
	}
	return "", errors.New(errors.ErrorTypeParse, "select_sheet", name, fmt.Errorf("sheet %q not found", name))
}

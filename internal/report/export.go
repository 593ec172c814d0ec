package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/vishalSecmark/tradewebx-sub002/internal/api"
	"github.com/vishalSecmark/tradewebx-sub002/internal/errors"
	"github.com/vishalSecmark/tradewebx-sub002/internal/parser"
	"github.com/vishalSecmark/tradewebx-sub002/internal/upload"
)

// Columns is the header of a single-file error report export.
var Columns = []string{"Exchange", "Segment", "FileType", "Code", "Status", "Remark"}

// CombinedColumns is the header of the all-files export.
var CombinedColumns = append([]string{"FileName"}, Columns...)

func rejectionRow(r api.Rejection) []string {
	return []string{r.Exchange, r.Segment, r.FileType, r.Code, r.Status, r.Remark}
}

// WriteFileCSV writes the rejected records of one file.
func WriteFileCSV(w io.Writer, r FileReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return errors.Wrap(err, "failed to write report header")
	}
	for _, rej := range r.Rejections {
		if err := cw.Write(rejectionRow(rej)); err != nil {
			return errors.Wrap(err, "failed to write report row")
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCombinedCSV writes the rejected records of every report with the
// file name prepended, in report order.
func WriteCombinedCSV(w io.Writer, reports []FileReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CombinedColumns); err != nil {
		return errors.Wrap(err, "failed to write report header")
	}
	for _, r := range reports {
		for _, rej := range r.Rejections {
			if err := cw.Write(append([]string{r.FileName}, rejectionRow(rej)...)); err != nil {
				return errors.Wrap(err, "failed to write report row")
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFailedChunksCSV writes the original rows of failed chunks under the
// file's original headers, in chunk order.
func WriteFailedChunksCSV(w io.Writer, headers []string, chunks []upload.FailedChunk) error {
	if len(headers) == 0 {
		headers = inferHeaders(chunks)
	}

	ordered := append([]upload.FailedChunk(nil), chunks...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ChunkIndex < ordered[j].ChunkIndex
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return errors.Wrap(err, "failed to write header")
	}

	record := make([]string, len(headers))
	for _, fc := range ordered {
		for _, row := range fc.Data {
			for i, h := range headers {
				record[i] = parser.FormatValue(row[h])
			}
			if err := cw.Write(record); err != nil {
				return errors.Wrapf(err, "failed to write chunk %d", fc.ChunkIndex)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// inferHeaders collects the column names of rows when the original
// headers are unknown, sorted for a stable export.
func inferHeaders(chunks []upload.FailedChunk) []string {
	seen := make(map[string]bool)
	var headers []string
	for _, fc := range chunks {
		for _, row := range fc.Data {
			for k := range row {
				if !seen[k] {
					seen[k] = true
					headers = append(headers, k)
				}
			}
		}
	}
	sort.Strings(headers)
	return headers
}

const (
	summarySheet = "Summary"
	errorsSheet  = "Errors"
)

// WriteXLSX writes a workbook with a per-file summary sheet and a combined
// errors sheet.
func WriteXLSX(w io.Writer, reports []FileReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return errors.Wrap(err, "failed to create summary sheet")
	}
	if _, err := f.NewSheet(errorsSheet); err != nil {
		return errors.Wrap(err, "failed to create errors sheet")
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create header style")
	}

	summary := [][]interface{}{{"FileName", "Status", "Message", "TotalRecords", "UploadedRecords", "Rejected"}}
	for _, r := range reports {
		summary = append(summary, []interface{}{
			r.FileName, r.Status, r.Message, r.TotalRecords, r.UploadedRecords, len(r.Rejections),
		})
	}

	header := make([]interface{}, len(CombinedColumns))
	for i, c := range CombinedColumns {
		header[i] = c
	}
	rows := [][]interface{}{header}
	for _, r := range reports {
		for _, rej := range r.Rejections {
			rows = append(rows, []interface{}{r.FileName, rej.Exchange, rej.Segment, rej.FileType, rej.Code, rej.Status, rej.Remark})
		}
	}

	for sheet, data := range map[string][][]interface{}{summarySheet: summary, errorsSheet: rows} {
		if err := writeSheet(f, sheet, data, headerStyle); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "failed to write workbook")
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, rows [][]interface{}, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return errors.Wrapf(err, "failed to write %s row %d", sheet, i+1)
		}
	}

	if len(rows) > 0 && len(rows[0]) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(rows[0]), 1)
		if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return err
		}
		lastCol, _ := excelize.ColumnNumberToName(len(rows[0]))
		if err := f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
			return err
		}
	}
	return nil
}

// ContentType returns the MIME type of an export file name.
func ContentType(name string) string {
	meta := parser.NewMetadata(name, 0)
	if meta.IsSpreadsheet() {
		return meta.MIMEType
	}
	return "text/csv"
}

// Summary returns a one-line description of a report.
func (r FileReport) Summary() string {
	return fmt.Sprintf("%s: %s (%d/%d uploaded, %d rejected)", r.FileName, r.Status, r.UploadedRecords, r.TotalRecords, len(r.Rejections))
}

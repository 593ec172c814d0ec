/**
 * Import Reconciliation Reports
 *
 * Features:
 * - Per-file report built from the upload outcome and backend rejections
 * - Conversion to and from the stored report history
 *
 * Author: TradeImport Team
 * Update History:
 * - 2025-02-14: Initial implementation
 */

package report

import (
	"fmt"
	"time"

	"github.com/vishalSecmark/tradewebx-sub002/internal/api"
	"github.com/vishalSecmark/tradewebx-sub002/internal/state"
)

// Report statuses.
const (
	StatusSuccess = state.ReportStatusSuccess
	StatusPartial = state.ReportStatusPartial
	StatusFailed  = state.ReportStatusFailed
)

// FileReport is the reconciliation result of one file.
type FileReport struct {
	ItemID          string          `json:"itemId"`
	FileName        string          `json:"fileName"`
	Status          string          `json:"status"`
	Message         string          `json:"message"`
	TotalRecords    int             `json:"totalRecords"`
	UploadedRecords int             `json:"uploadedRecords"`
	Rejections      []api.Rejection `json:"rejections"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Outcome is what a finished file contributes to its report.
type Outcome struct {
	ItemID          string
	FileName        string
	TotalRecords    int
	UploadedRecords int
	Error           string
	Rejections      []api.Rejection
}

// New builds the report of a finished file. A file with an upload error
// is failed; otherwise it is partial when the backend rejected records
// and successful when it rejected none.
func New(o Outcome) FileReport {
	r := FileReport{
		ItemID:          o.ItemID,
		FileName:        o.FileName,
		TotalRecords:    o.TotalRecords,
		UploadedRecords: o.UploadedRecords,
		Rejections:      append([]api.Rejection(nil), o.Rejections...),
		CreatedAt:       time.Now().UTC(),
	}

	switch {
	case o.Error != "":
		r.Status = StatusFailed
		r.Message = o.Error
	case len(o.Rejections) > 0:
		r.Status = StatusPartial
		r.Message = fmt.Sprintf("%d record(s) rejected", len(o.Rejections))
	default:
		r.Status = StatusSuccess
		r.Message = fmt.Sprintf("All %d record(s) imported successfully", o.UploadedRecords)
	}
	return r
}

// Stored converts the report into its database form.
func (r FileReport) Stored() *state.ImportReport {
	stored := &state.ImportReport{
		ItemID:          r.ItemID,
		FileName:        r.FileName,
		Status:          r.Status,
		Message:         state.NewNullString(r.Message),
		TotalRecords:    r.TotalRecords,
		UploadedRecords: r.UploadedRecords,
		CreatedAt:       r.CreatedAt,
		Records:         make([]state.ReportRecord, len(r.Rejections)),
	}
	for i, rej := range r.Rejections {
		stored.Records[i] = state.ReportRecord{
			Seq:      i,
			Exchange: rej.Exchange,
			Segment:  rej.Segment,
			FileType: rej.FileType,
			Code:     rej.Code,
			Status:   rej.Status,
			Remark:   rej.Remark,
		}
	}
	return stored
}

// FromStored converts a stored report back.
func FromStored(s *state.ImportReport) FileReport {
	r := FileReport{
		ItemID:          s.ItemID,
		FileName:        s.FileName,
		Status:          s.Status,
		Message:         state.NullStringValue(s.Message),
		TotalRecords:    s.TotalRecords,
		UploadedRecords: s.UploadedRecords,
		CreatedAt:       s.CreatedAt,
	}
	for _, rec := range s.Records {
		r.Rejections = append(r.Rejections, api.Rejection{
			Exchange: rec.Exchange,
			Segment:  rec.Segment,
			FileType: rec.FileType,
			Code:     rec.Code,
			Status:   rec.Status,
			Remark:   rec.Remark,
		})
	}
	return r
}

// FromStoredList converts a list of stored reports.
func FromStoredList(stored []*state.ImportReport) []FileReport {
	out := make([]FileReport, 0, len(stored))
	for _, s := range stored {
		out = append(out, FromStored(s))
	}
	return out
}

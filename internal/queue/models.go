/**
 * Background Upload Queue Models
 *
 * Features:
 * - Queue item and queue structures with their persisted JSON form
 * - Status lifecycle and derived statistics
 * - Deep copies for snapshots handed to observers
 *
 * Author: TradeImport Team
 * Update History:
 * - 2025-02-14: Initial implementation
 */

package queue

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/vishalSecmark/tradewebx-sub002/internal/api"
	"github.com/vishalSecmark/tradewebx-sub002/internal/errors"
	"github.com/vishalSecmark/tradewebx-sub002/internal/parser"
	"github.com/vishalSecmark/tradewebx-sub002/internal/upload"
)

// Status is the lifecycle state of a queue item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusNoMatch   Status = "no_match"
	StatusPaused    Status = "paused"
	StatusDisabled  Status = "disabled"
)

// ReloadLossMessage explains why an item could not survive a reload.
const ReloadLossMessage = "file lost after reload, please re-upload"

// FileQueueItem is one file in the queue.
type FileQueueItem struct {
	ID       string            `json:"id"`
	File     parser.FileHandle `json:"-"`
	FileName string            `json:"fileName"`
	FileSize int64             `json:"fileSize"`

	MatchedRecord *api.Target `json:"matchedRecord"`
	Status        Status      `json:"status"`

	Progress        int     `json:"progress"`
	UploadedRecords int     `json:"uploadedRecords"`
	TotalRecords    int     `json:"totalRecords"`
	TotalChunks     int     `json:"totalChunks"`
	NextChunk       int     `json:"nextChunk"`
	ChunkSize       int     `json:"chunkSize"`
	Speed           float64 `json:"speed"`
	ETA             string  `json:"eta,omitempty"`

	SessionID string     `json:"sessionId"`
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Error     string     `json:"error,omitempty"`

	// ConsecutiveFailures counts failed chunks since the last accepted one
	// and carries across pause and resume.
	ConsecutiveFailures int `json:"consecutiveFailures"`

	Headers      []string             `json:"headers,omitempty"`
	FailedChunks []upload.FailedChunk `json:"failedChunks"`
	Rejections   []api.Rejection      `json:"rejections,omitempty"`
	Filters      map[string]string    `json:"filters,omitempty"`
}

// HasFile reports whether the item still holds its file handle.
func (it *FileQueueItem) HasFile() bool {
	return it.File != nil
}

// FailedRecords sums the rows of all failed chunks.
func (it *FileQueueItem) FailedRecords() int {
	n := 0
	for _, fc := range it.FailedChunks {
		n += fc.Records()
	}
	return n
}

// Clone returns a deep copy that shares only the file handle.
func (it *FileQueueItem) Clone() *FileQueueItem {
	c := *it
	if it.MatchedRecord != nil {
		t := *it.MatchedRecord
		c.MatchedRecord = &t
	}
	if it.StartTime != nil {
		t := *it.StartTime
		c.StartTime = &t
	}
	if it.EndTime != nil {
		t := *it.EndTime
		c.EndTime = &t
	}
	c.Headers = append([]string(nil), it.Headers...)
	c.FailedChunks = append([]upload.FailedChunk(nil), it.FailedChunks...)
	c.Rejections = append([]api.Rejection(nil), it.Rejections...)
	if it.Filters != nil {
		c.Filters = make(map[string]string, len(it.Filters))
		for k, v := range it.Filters {
			c.Filters[k] = v
		}
	}
	return &c
}

// Summary is a copy for event payloads: failed chunks keep their position
// and error but drop their rows.
func (it *FileQueueItem) Summary() *FileQueueItem {
	c := it.Clone()
	for i := range c.FailedChunks {
		c.FailedChunks[i].RecordCount = c.FailedChunks[i].Records()
		c.FailedChunks[i].Data = nil
	}
	return c
}

// BackgroundUploadQueue is the whole persisted queue.
type BackgroundUploadQueue struct {
	Items           []*FileQueueItem `json:"items"`
	CurrentUploadID string           `json:"currentUploadId,omitempty"`
	IsPaused        bool             `json:"isPaused"`
	LastUpdated     time.Time        `json:"lastUpdated"`
}

// Clone returns a deep copy of the queue.
func (q *BackgroundUploadQueue) Clone() *BackgroundUploadQueue {
	c := *q
	c.Items = make([]*FileQueueItem, len(q.Items))
	for i, it := range q.Items {
		c.Items[i] = it.Clone()
	}
	return &c
}

// Find returns the item with id, or nil.
func (q *BackgroundUploadQueue) Find(id string) *FileQueueItem {
	for _, it := range q.Items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

// Current returns the item being processed, or nil.
func (q *BackgroundUploadQueue) Current() *FileQueueItem {
	if q.CurrentUploadID == "" {
		return nil
	}
	return q.Find(q.CurrentUploadID)
}

// Stats counts items by status.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Uploading int `json:"uploading"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
	NoMatch   int `json:"noMatch"`
	Paused    int `json:"paused"`
	Disabled  int `json:"disabled"`
}

// Stats derives the status counts of the queue.
func (q *BackgroundUploadQueue) Stats() Stats {
	s := Stats{Total: len(q.Items)}
	for _, it := range q.Items {
		switch it.Status {
		case StatusPending:
			s.Pending++
		case StatusUploading:
			s.Uploading++
		case StatusSuccess:
			s.Success++
		case StatusFailed:
			s.Failed++
		case StatusNoMatch:
			s.NoMatch++
		case StatusPaused:
			s.Paused++
		case StatusDisabled:
			s.Disabled++
		}
	}
	return s
}

// Encode serializes the queue. File handles are never written.
func Encode(q *BackgroundUploadQueue) ([]byte, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return nil, errors.WrapTyped(errors.ErrorTypeStorage, "encode_queue", err)
	}
	return data, nil
}

// Decode parses a persisted queue. Decoded items never hold a file handle.
// Row values that were numbers come back as json.Number so failed rows
// export with their original digits.
func Decode(data []byte) (*BackgroundUploadQueue, error) {
	q := &BackgroundUploadQueue{}
	if len(data) == 0 {
		return q, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(q); err != nil {
		return nil, errors.WrapTyped(errors.ErrorTypeStorage, "decode_queue", err)
	}
	items := q.Items[:0]
	for _, it := range q.Items {
		if it != nil {
			items = append(items, it)
		}
	}
	q.Items = items
	return q, nil
}

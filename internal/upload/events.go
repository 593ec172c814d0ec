package upload

import (
	"github.com/vishalSecmark/tradewebx-sub002/internal/api"
	"github.com/vishalSecmark/tradewebx-sub002/internal/parser"
)

// State is the lifecycle of one file run.
type State int

const (
	StateIdle State = iota
	StateParsing
	StateUploading
	StateCompleted
	StateError
	StatePaused
	StateCancelled
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateParsing:
		return "parsing"
	case StateUploading:
		return "uploading"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	case StatePaused:
		return "paused"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the run has ended.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// FailedChunk is a chunk that exhausted its retries. Data holds the
// original rows so they can be exported or re-sent. Copies sent to
// observers drop Data and keep only RecordCount.
type FailedChunk struct {
	ChunkIndex  int          `json:"chunkIndex"`
	StartIndex  int          `json:"startIndex"`
	Data        []parser.Row `json:"data,omitempty"`
	RecordCount int          `json:"recordCount"`
	Error       string       `json:"error"`
	RetryCount  int          `json:"retryCount"`
}

// Records returns the number of rows in the chunk.
func (f FailedChunk) Records() int {
	if f.Data == nil {
		return f.RecordCount
	}
	return len(f.Data)
}

// Progress is emitted after the scan and after every chunk.
type Progress struct {
	FileName         string  `json:"fileName"`
	State            State   `json:"state"`
	TotalRecords     int     `json:"totalRecords"`
	ProcessedRecords int     `json:"processedRecords"`
	UploadedRecords  int     `json:"uploadedRecords"`
	TotalChunks      int     `json:"totalChunks"`
	CurrentChunk     int     `json:"currentChunk"`
	Percentage       int     `json:"percentage"`
	Speed            float64 `json:"speed"`
	ETA              string  `json:"eta"`
}

// Hooks receive driver callbacks. All hooks run on the driver goroutine.
type Hooks struct {
	// OnState is called on every state change.
	OnState func(State)

	// OnProgress is called after the scan and after every chunk.
	OnProgress func(Progress)

	// OnChunk is called with every chunk result. A non-nil error stops
	// the file immediately and becomes the run error.
	OnChunk func(chunk parser.ChunkData, result api.ChunkResult) error
}

func (h Hooks) state(s State) {
	if h.OnState != nil {
		h.OnState(s)
	}
}

func (h Hooks) progress(p Progress) {
	if h.OnProgress != nil {
		h.OnProgress(p)
	}
}

func (h Hooks) chunk(c parser.ChunkData, r api.ChunkResult) error {
	if h.OnChunk != nil {
		return h.OnChunk(c, r)
	}
	return nil
}

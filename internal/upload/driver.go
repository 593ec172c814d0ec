/**
 * Sequential Upload Driver for TradeImport
 *
 * Features:
 * - Counting pre-pass for exact totals
 * - Streaming parse with synchronous chunk upload (back-pressure)
 * - Strictly ordered, one-at-a-time chunk dispatch
 * - Cooperative pause that lets the in-flight chunk finish
 * - Hard cancel that aborts the in-flight request
 * - Resume from the first chunk not yet attempted
 *
 * Author: TradeImport Team
 * Updated: 2025-02-12
 */

package upload

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vishalSecmark/tradewebx-sub002/internal/api"
	"github.com/vishalSecmark/tradewebx-sub002/internal/errors"
	"github.com/vishalSecmark/tradewebx-sub002/internal/logger"
	"github.com/vishalSecmark/tradewebx-sub002/internal/parser"
	"github.com/vishalSecmark/tradewebx-sub002/pkg/progress"
)

// Uploader sends one chunk and reports its terminal outcome.
type Uploader interface {
	Upload(ctx context.Context, chunk parser.ChunkData, meta api.UploadMeta) api.ChunkResult
}

// Config holds driver configuration.
type Config struct {
	// ChunkSize fixes rows per chunk; zero picks it from the file size.
	ChunkSize int

	// Sheet selects a workbook sheet.
	Sheet string

	// Delimiter overrides delimiter detection.
	Delimiter rune
}

// Job describes one file run.
type Job struct {
	File      parser.FileHandle
	Target    api.Target
	SessionID string
	Filters   map[string]string
	Extra     map[string]interface{}

	// NextChunk is the first chunk to send; earlier chunks were already
	// attempted by a previous run.
	NextChunk int

	// UploadedRecords carries the accepted count of the previous run.
	UploadedRecords int

	// ChunkSize pins the chunk size used by a previous run.
	ChunkSize int
}

// Outcome is the result of a run.
type Outcome struct {
	State           State
	TotalRecords    int
	UploadedRecords int
	TotalChunks     int
	NextChunk       int
	ChunkSize       int
	Headers         []string
	FailedChunks    []FailedChunk
	Rejections      []api.Rejection
	Message         string
	Err             error
	Duration        time.Duration
}

// FailedRecords sums the rows of all failed chunks.
func (o *Outcome) FailedRecords() int {
	n := 0
	for _, fc := range o.FailedChunks {
		n += fc.Records()
	}
	return n
}

// Driver uploads one file at a time, one chunk at a time.
type Driver struct {
	uploader Uploader
	config   Config
	logger   *logger.Logger

	mu          sync.Mutex
	state       State
	pauseCancel context.CancelCauseFunc
	runCancel   context.CancelCauseFunc

	// pending holds a Pause or Cancel requested before Run started.
	pending error
}

// NewDriver creates a driver.
func NewDriver(uploader Uploader, config Config, log *logger.Logger) *Driver {
	if log == nil {
		log = logger.Nop()
	}
	return &Driver{
		uploader: uploader,
		config:   config,
		logger:   log.With("component", "driver"),
		state:    StateIdle,
	}
}

// State returns the state of the current or last run.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Pause stops dispatch before the next chunk. The in-flight chunk, if
// any, is allowed to finish. A Pause before Run applies to the next run.
func (d *Driver) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pauseCancel != nil {
		d.pauseCancel(errors.ErrPaused)
		return
	}
	if d.pending == nil {
		d.pending = errors.ErrPaused
	}
}

// Cancel aborts the run immediately, including the in-flight request.
// A Cancel before Run applies to the next run.
func (d *Driver) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.runCancel != nil {
		d.runCancel(errors.ErrCancelled)
		return
	}
	d.pending = errors.ErrCancelled
}

func (d *Driver) setState(s State, hooks Hooks) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
	hooks.state(s)
}

// Run processes job to a terminal state. ctx cancellation without an
// explicit Cancel ends the run as paused.
func (d *Driver) Run(ctx context.Context, job Job, hooks Hooks) *Outcome {
	runCtx, runCancel := context.WithCancelCause(ctx)
	pauseCtx, pauseCancel := context.WithCancelCause(runCtx)
	defer runCancel(nil)
	defer pauseCancel(nil)

	d.mu.Lock()
	d.runCancel = runCancel
	d.pauseCancel = pauseCancel
	switch d.pending {
	case errors.ErrCancelled:
		runCancel(errors.ErrCancelled)
	case errors.ErrPaused:
		pauseCancel(errors.ErrPaused)
	}
	d.pending = nil
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.runCancel = nil
		d.pauseCancel = nil
		d.mu.Unlock()
	}()

	start := time.Now()
	name := job.File.Name()
	log := d.logger.With("file", name, "session", job.SessionID)

	out := &Outcome{
		NextChunk:       job.NextChunk,
		UploadedRecords: job.UploadedRecords,
	}

	out.ChunkSize = job.ChunkSize
	if out.ChunkSize <= 0 {
		out.ChunkSize = d.config.ChunkSize
	}
	if out.ChunkSize <= 0 {
		out.ChunkSize = parser.ChunkSizeFor(job.File.Size())
	}

	opts := parser.Options{
		ChunkSize: out.ChunkSize,
		Sheet:     d.config.Sheet,
		Delimiter: d.config.Delimiter,
	}

	d.setState(StateParsing, hooks)

	scan, err := parser.Scan(pauseCtx, job.File, opts)
	if err != nil {
		return d.finish(out, d.interruption(runCtx, err), hooks, log, start)
	}

	out.TotalRecords = scan.TotalRows
	out.Headers = scan.Headers
	out.TotalChunks = parser.TotalChunks(scan.TotalRows, out.ChunkSize)

	skip := job.NextChunk * out.ChunkSize
	if skip > out.TotalRecords {
		skip = out.TotalRecords
	}

	tracker := progress.NewTracker(int64(out.TotalRecords))
	tracker.Seed(int64(skip))
	tracker.Start()

	emit := func(current int) {
		snap := tracker.Snapshot()
		hooks.progress(Progress{
			FileName:         name,
			State:            d.State(),
			TotalRecords:     out.TotalRecords,
			ProcessedRecords: int(snap.Processed),
			UploadedRecords:  out.UploadedRecords,
			TotalChunks:      out.TotalChunks,
			CurrentChunk:     current,
			Percentage:       snap.Percentage(),
			Speed:            snap.Speed(),
			ETA:              snap.ETAString(),
		})
	}

	d.setState(StateUploading, hooks)
	emit(job.NextChunk)

	log.Info("Uploading file",
		"records", out.TotalRecords,
		"chunks", out.TotalChunks,
		"chunk_size", out.ChunkSize,
		"resume_chunk", job.NextChunk)

	opts.SkipRows = skip
	_, err = parser.Parse(pauseCtx, job.File, opts, func(rows []parser.Row, startIndex int) error {
		if cause := interrupted(pauseCtx); cause != nil {
			return cause
		}

		chunk := parser.NewChunk(rows, startIndex, out.ChunkSize, out.TotalChunks, job.SessionID)
		meta := api.UploadMeta{
			Target:   job.Target,
			FileName: name,
			Headers:  out.Headers,
			Filters:  job.Filters,
			Extra:    job.Extra,
		}

		result := d.uploader.Upload(runCtx, chunk, meta)
		if cause := interrupted(runCtx); cause != nil {
			return cause
		}

		tracker.Add(int64(chunk.Len()))
		out.NextChunk = chunk.ChunkIndex + 1

		if result.Success {
			out.UploadedRecords += chunk.Len()
			out.Rejections = append(out.Rejections, result.Rejections...)
		} else {
			out.FailedChunks = append(out.FailedChunks, FailedChunk{
				ChunkIndex:  chunk.ChunkIndex,
				StartIndex:  chunk.StartIndex,
				Data:        chunk.Data,
				RecordCount: chunk.Len(),
				Error:       result.Error,
				RetryCount:  result.RetryCount,
			})
			log.Warn("Chunk failed",
				"chunk", chunk.ChunkIndex,
				"retries", result.RetryCount,
				"error", result.Error)
		}

		emit(chunk.ChunkIndex)
		return hooks.chunk(chunk, result)
	})

	if err != nil {
		return d.finish(out, d.interruption(runCtx, err), hooks, log, start)
	}

	tracker.Complete()
	if len(out.FailedChunks) > 0 {
		out.State = StateError
		out.Message = fmt.Sprintf("%d chunk(s) failed (%d records)", len(out.FailedChunks), out.FailedRecords())
	} else {
		out.State = StateCompleted
	}

	snap := tracker.Snapshot()
	hooks.progress(Progress{
		FileName:         name,
		State:            out.State,
		TotalRecords:     out.TotalRecords,
		ProcessedRecords: int(snap.Processed),
		UploadedRecords:  out.UploadedRecords,
		TotalChunks:      out.TotalChunks,
		CurrentChunk:     out.TotalChunks,
		Percentage:       snap.Percentage(),
		Speed:            snap.Speed(),
		ETA:              snap.ETAString(),
	})

	return d.finish(out, nil, hooks, log, start)
}

// interruption classifies a run-ending error.
func (d *Driver) interruption(runCtx context.Context, err error) error {
	if cause := interrupted(runCtx); cause != nil && !errors.Is(err, errors.ErrCircuitOpen) {
		return cause
	}
	return err
}

func (d *Driver) finish(out *Outcome, err error, hooks Hooks, log *logger.Logger, start time.Time) *Outcome {
	out.Duration = time.Since(start)

	switch {
	case err == nil:
	case errors.Is(err, errors.ErrCancelled):
		out.State = StateCancelled
		out.Err = err
		out.Message = "Upload cancelled"
	case errors.Is(err, errors.ErrPaused), errors.IsContextError(err):
		out.State = StatePaused
		out.Err = errors.ErrPaused
	case errors.Is(err, errors.ErrCircuitOpen):
		out.State = StateError
		out.Err = err
		out.Message = errors.ErrCircuitOpen.Error()
	default:
		out.State = StateError
		out.Err = err
		out.Message = errors.Message(err)
	}

	d.setState(out.State, hooks)

	log.Info("File run finished",
		"state", out.State.String(),
		"uploaded", out.UploadedRecords,
		"total", out.TotalRecords,
		"failed_chunks", len(out.FailedChunks),
		"duration", out.Duration)

	return out
}

// interrupted returns the pause/cancel cause once ctx has ended.
func interrupted(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return ctx.Err()
}

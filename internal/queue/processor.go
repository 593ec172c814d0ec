package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/vishalSecmark/tradewebx-sub002/internal/api"
	"github.com/vishalSecmark/tradewebx-sub002/internal/errors"
	"github.com/vishalSecmark/tradewebx-sub002/internal/parser"
	"github.com/vishalSecmark/tradewebx-sub002/internal/report"
	"github.com/vishalSecmark/tradewebx-sub002/internal/state"
	"github.com/vishalSecmark/tradewebx-sub002/internal/upload"
)

// startProcessing launches the processing loop unless it is already
// running, the queue is paused, or nothing is eligible.
func (m *Manager) startProcessing() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.processing || m.closed || m.queue.IsPaused || m.nextEligibleLocked() == nil {
		return
	}

	m.processing = true
	m.idle = make(chan struct{})
	m.wg.Add(1)
	go m.loop()
}

// nextEligibleLocked returns the first pending item with a target.
func (m *Manager) nextEligibleLocked() *FileQueueItem {
	for _, it := range m.queue.Items {
		if it.Status == StatusPending && it.MatchedRecord != nil {
			return it
		}
	}
	return nil
}

func (m *Manager) loop() {
	defer m.wg.Done()

	for {
		m.mu.Lock()
		it := m.nextEligibleLocked()
		if it == nil || m.queue.IsPaused || m.ctx.Err() != nil {
			m.processing = false
			close(m.idle)
			m.mu.Unlock()
			return
		}

		if !it.HasFile() {
			now := time.Now()
			it.Status = StatusFailed
			it.Error = ReloadLossMessage
			it.EndTime = &now
			m.persistLocked(context.Background())
			ev := Event{Type: EventItemFailed, ItemID: it.ID, Item: it.Summary(), Message: it.Error}
			m.mu.Unlock()
			m.announce(ev)
			continue
		}

		now := time.Now()
		it.Status = StatusUploading
		it.Error = ""
		it.EndTime = nil
		if it.StartTime == nil {
			it.StartTime = &now
		}
		m.queue.CurrentUploadID = it.ID

		driver := upload.NewDriver(m.uploader, m.config.Driver, m.logger)
		m.driver = driver

		job := upload.Job{
			File:            it.File,
			Target:          *it.MatchedRecord,
			SessionID:       it.SessionID,
			Filters:         copyFilters(it.Filters),
			NextChunk:       it.NextChunk,
			UploadedRecords: it.UploadedRecords,
			ChunkSize:       it.ChunkSize,
		}
		itemID := it.ID
		m.persistLocked(context.Background())
		ev := changed(it)
		m.mu.Unlock()

		m.announce(ev)
		m.logger.Info("Processing file", "item", itemID, "file", ev.Item.FileName, "resume_chunk", job.NextChunk)

		out := driver.Run(m.ctx, job, m.hooks(itemID))
		m.finishItem(itemID, out)
	}
}

// hooks binds driver callbacks to one queue item. The consecutive failure
// count lives on the item so a pause does not reset the breaker.
func (m *Manager) hooks(itemID string) upload.Hooks {
	return upload.Hooks{
		OnProgress: func(p upload.Progress) {
			m.mu.Lock()
			it := m.queue.Find(itemID)
			if it == nil {
				m.mu.Unlock()
				return
			}
			it.TotalRecords = p.TotalRecords
			it.TotalChunks = p.TotalChunks
			it.UploadedRecords = p.UploadedRecords
			it.Progress = p.Percentage
			it.Speed = p.Speed
			it.ETA = p.ETA
			m.mu.Unlock()

			prog := p
			m.bus.Publish(Event{Type: EventItemProgress, ItemID: itemID, Progress: &prog})
		},

		OnChunk: func(chunk parser.ChunkData, result api.ChunkResult) error {
			m.mu.Lock()
			it := m.queue.Find(itemID)
			if it == nil {
				m.mu.Unlock()
				return errors.ErrCancelled
			}

			it.NextChunk = chunk.ChunkIndex + 1
			if result.Success {
				it.ConsecutiveFailures = 0
				it.Rejections = append(it.Rejections, result.Rejections...)
			} else {
				it.ConsecutiveFailures++
				it.FailedChunks = append(it.FailedChunks, upload.FailedChunk{
					ChunkIndex:  chunk.ChunkIndex,
					StartIndex:  chunk.StartIndex,
					Data:        chunk.Data,
					RecordCount: chunk.Len(),
					Error:       result.Error,
					RetryCount:  result.RetryCount,
				})
				m.logFailure(it, chunk, result)
			}
			consecutive := it.ConsecutiveFailures

			m.persistLocked(context.Background())
			ev := changed(it)
			m.mu.Unlock()

			m.logger.Debug("Chunk finished",
				"item", itemID,
				"chunk", chunk.ChunkIndex,
				"success", result.Success,
				"retries", result.RetryCount,
				"duration", result.Duration)
			m.announce(ev)

			if consecutive >= m.config.BreakerThreshold {
				m.logger.Warn("Circuit breaker tripped",
					"item", itemID,
					"file", ev.Item.FileName,
					"consecutive_failures", consecutive)
				m.bus.Publish(Event{Type: EventBreakerTripped, ItemID: itemID, Message: errors.ErrCircuitOpen.Error()})
				return errors.ErrCircuitOpen
			}
			return nil
		},
	}
}

// logFailure appends a failed chunk to the journal. Callers hold m.mu.
func (m *Manager) logFailure(it *FileQueueItem, chunk parser.ChunkData, result api.ChunkResult) {
	if m.journal == nil {
		return
	}
	f := &state.ChunkFailure{
		ItemID:       it.ID,
		SessionID:    it.SessionID,
		FileName:     it.FileName,
		ChunkIndex:   chunk.ChunkIndex,
		StartIndex:   chunk.StartIndex,
		Records:      chunk.Len(),
		RetryCount:   result.RetryCount,
		ErrorMessage: state.NewNullString(result.Error),
	}
	if err := m.journal.LogChunkFailure(context.Background(), f); err != nil {
		m.logger.Warn("Failed to log chunk failure", "item", it.ID, "chunk", chunk.ChunkIndex, "error", err)
	}
}

// failureSummary describes all failed chunks of an item.
func failureSummary(it *FileQueueItem) string {
	return fmt.Sprintf("%d chunk(s) failed (%d records)", len(it.FailedChunks), it.FailedRecords())
}

// finishItem applies a driver outcome to its item.
func (m *Manager) finishItem(itemID string, out *upload.Outcome) {
	m.mu.Lock()
	m.driver = nil
	if m.queue.CurrentUploadID == itemID {
		m.queue.CurrentUploadID = ""
	}

	it := m.queue.Find(itemID)
	if it == nil {
		m.persistLocked(context.Background())
		m.mu.Unlock()
		m.announce(Event{Type: EventQueueChanged, ItemID: itemID})
		return
	}

	now := time.Now()
	it.TotalRecords = out.TotalRecords
	it.TotalChunks = out.TotalChunks
	it.ChunkSize = out.ChunkSize
	it.UploadedRecords = out.UploadedRecords
	it.NextChunk = out.NextChunk
	it.Speed = 0
	it.ETA = ""
	if len(out.Headers) > 0 {
		it.Headers = out.Headers
	}

	eventType := EventItemFailed
	switch out.State {
	case upload.StateCompleted:
		if len(it.FailedChunks) > 0 {
			it.Status = StatusFailed
			it.Error = failureSummary(it)
		} else {
			it.Status = StatusSuccess
			it.Progress = 100
			it.Error = ""
			eventType = EventItemCompleted
		}
		it.EndTime = &now
	case upload.StateError:
		it.Status = StatusFailed
		switch {
		case errors.Is(out.Err, errors.ErrCircuitOpen):
			it.Error = errors.ErrCircuitOpen.Error()
		case out.Err == nil && len(it.FailedChunks) > 0:
			it.Error = failureSummary(it)
		default:
			it.Error = out.Message
		}
		it.EndTime = &now
	case upload.StatePaused:
		it.Status = StatusPaused
		eventType = EventItemPaused
	case upload.StateCancelled:
		it.Status = StatusFailed
		it.Error = out.Message
		it.EndTime = &now
	}

	m.persistLocked(context.Background())
	ev := Event{Type: eventType, ItemID: it.ID, Item: it.Summary(), Message: it.Error}

	var target *api.Target
	if it.Status == StatusSuccess && it.MatchedRecord != nil && it.MatchedRecord.ImportKey != "" {
		t := *it.MatchedRecord
		target = &t
	}

	var rep *report.FileReport
	if it.Status == StatusSuccess || it.Status == StatusFailed {
		r := report.New(report.Outcome{
			ItemID:          it.ID,
			FileName:        it.FileName,
			TotalRecords:    it.TotalRecords,
			UploadedRecords: it.UploadedRecords,
			Error:           it.Error,
			Rejections:      it.Rejections,
		})
		rep = &r
	}
	filters := copyFilters(it.Filters)
	m.mu.Unlock()

	m.logger.Info("File finished",
		"item", itemID,
		"file", ev.Item.FileName,
		"status", string(ev.Item.Status),
		"uploaded", ev.Item.UploadedRecords,
		"total", ev.Item.TotalRecords,
		"failed_chunks", len(ev.Item.FailedChunks))
	m.announce(ev)

	if target != nil {
		m.finalize(*target, filters, itemID)
	}
	if rep != nil && m.journal != nil {
		if err := m.journal.SaveReport(context.Background(), rep.Stored()); err != nil {
			m.logger.Warn("Failed to save import report", "item", itemID, "error", err)
		}
	}
}

// finalize acknowledges a successful import. Its failure is logged and
// leaves the item successful.
func (m *Manager) finalize(target api.Target, filters map[string]string, itemID string) {
	if m.finalizer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.config.FinalizeTimeout)
	defer cancel()

	if err := m.finalizer.Finalize(ctx, target, filters); err != nil {
		m.logger.Error(err, "Finalize call failed", "item", itemID, "target", target.FileName)
		return
	}
	m.logger.Info("Import finalized", "item", itemID, "target", target.FileName)
}

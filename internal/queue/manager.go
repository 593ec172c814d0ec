/**
 * Background Queue Manager for TradeImport
 *
 * Features:
 * - Durable multi-file queue persisted after every mutation
 * - Filename matching against backend import targets
 * - Single processing loop, one file and one chunk at a time
 * - Consecutive chunk failure circuit breaker
 * - Reload recovery for items whose file bytes were lost
 * - Pause, resume, retry, remove, and clear controls
 *
 * Author: TradeImport Team
 * Updated: 2025-02-14
 */

package queue

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vishalSecmark/tradewebx-sub002/internal/api"
	"github.com/vishalSecmark/tradewebx-sub002/internal/errors"
	"github.com/vishalSecmark/tradewebx-sub002/internal/logger"
	"github.com/vishalSecmark/tradewebx-sub002/internal/parser"
	"github.com/vishalSecmark/tradewebx-sub002/internal/state"
	"github.com/vishalSecmark/tradewebx-sub002/internal/upload"
)

// DefaultQueueKey is the storage key of the persisted queue.
const DefaultQueueKey = "background_upload_queue"

// DefaultBreakerThreshold is the number of consecutive failed chunks that
// stops a file.
const DefaultBreakerThreshold = 10

// Store is the durable key/value storage holding the queue.
type Store interface {
	GetValue(ctx context.Context, key string) (string, bool, error)
	SetValue(ctx context.Context, key, value string) error
}

// Journal records chunk failures and reconciliation reports.
type Journal interface {
	LogChunkFailure(ctx context.Context, f *state.ChunkFailure) error
	SaveReport(ctx context.Context, report *state.ImportReport) error
	ForgetItem(ctx context.Context, itemID string) error
}

// Finalizer acknowledges a completed import to the backend.
type Finalizer interface {
	Finalize(ctx context.Context, target api.Target, filters map[string]string) error
}

// Config contains queue manager configuration.
type Config struct {
	QueueKey         string
	BreakerThreshold int
	Driver           upload.Config

	// AllowedExtensions enables validation in AddFiles when non-empty.
	AllowedExtensions []string
	MaxFileSize       int64

	// FinalizeTimeout bounds the finalize call made after a file succeeds.
	FinalizeTimeout time.Duration
}

// DefaultConfig returns default queue configuration.
func DefaultConfig() Config {
	return Config{
		QueueKey:         DefaultQueueKey,
		BreakerThreshold: DefaultBreakerThreshold,
		FinalizeTimeout:  30 * time.Second,
	}
}

// Options holds the manager's collaborators. Store and Uploader are
// required.
type Options struct {
	Store     Store
	Uploader  upload.Uploader
	Journal   Journal
	Finalizer Finalizer
	Notifier  Notifier
	Logger    *logger.Logger
}

// Manager owns the queue and drives it one file at a time.
type Manager struct {
	config    Config
	store     Store
	uploader  upload.Uploader
	journal   Journal
	finalizer Finalizer
	notifier  Notifier
	logger    *logger.Logger
	bus       *EventBus
	origin    string

	mu         sync.Mutex
	queue      *BackgroundUploadQueue
	driver     *upload.Driver
	processing bool
	closed     bool
	idle       chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager and loads the persisted queue.
func NewManager(ctx context.Context, config Config, opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New(errors.ErrorTypeConfiguration, "new_queue", "", errors.NewSimple("store is required"))
	}
	if opts.Uploader == nil {
		return nil, errors.New(errors.ErrorTypeConfiguration, "new_queue", "", errors.NewSimple("uploader is required"))
	}
	if config.QueueKey == "" {
		config.QueueKey = DefaultQueueKey
	}
	if config.BreakerThreshold <= 0 {
		config.BreakerThreshold = DefaultBreakerThreshold
	}
	if config.FinalizeTimeout <= 0 {
		config.FinalizeTimeout = 30 * time.Second
	}

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	runCtx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		config:    config,
		store:     opts.Store,
		uploader:  opts.Uploader,
		journal:   opts.Journal,
		finalizer: opts.Finalizer,
		notifier:  opts.Notifier,
		logger:    log.With("component", "queue"),
		bus:       NewEventBus(0, log),
		origin:    uuid.NewString(),
		queue:     &BackgroundUploadQueue{},
		ctx:       runCtx,
		cancel:    cancel,
	}

	if err := m.load(ctx); err != nil {
		cancel()
		return nil, err
	}
	return m, nil
}

// load reads the persisted queue. File bytes never survive a reload, so
// items that were uploading or waiting for their file are failed.
func (m *Manager) load(ctx context.Context) error {
	raw, ok, err := m.store.GetValue(ctx, m.config.QueueKey)
	if err != nil {
		return errors.New(errors.ErrorTypeStorage, "load_queue", m.config.QueueKey, err)
	}
	if !ok {
		return nil
	}

	q, err := Decode([]byte(raw))
	if err != nil {
		return err
	}

	now := time.Now()
	recovered := 0
	for _, it := range q.Items {
		it.File = nil
		if it.Status == StatusUploading || it.Status == StatusPending {
			it.Status = StatusFailed
			it.Error = ReloadLossMessage
			it.Speed = 0
			it.ETA = ""
			it.EndTime = &now
			recovered++
		}
	}

	changed := recovered > 0 || q.CurrentUploadID != ""
	q.CurrentUploadID = ""

	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = q

	if recovered > 0 {
		m.logger.Warn("Recovered queue after reload", "failed_items", recovered, "items", len(q.Items))
	}
	if changed {
		return m.persistLocked(ctx)
	}
	return nil
}

// persistLocked writes the whole queue. Callers hold m.mu.
func (m *Manager) persistLocked(ctx context.Context) error {
	m.queue.LastUpdated = time.Now().UTC()

	data, err := Encode(m.queue)
	if err != nil {
		return err
	}
	if err := m.store.SetValue(ctx, m.config.QueueKey, string(data)); err != nil {
		m.logger.Error(err, "Failed to persist queue")
		return errors.New(errors.ErrorTypeStorage, "save_queue", m.config.QueueKey, err)
	}
	return nil
}

// announce delivers events in process and signals other observers.
// It must be called without m.mu held.
func (m *Manager) announce(events ...Event) {
	for _, e := range events {
		m.bus.Publish(e)
	}

	if m.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	change := Change{Key: m.config.QueueKey, Origin: m.origin, At: time.Now().UTC()}
	if err := m.notifier.Publish(ctx, change); err != nil {
		m.logger.Warn("Failed to broadcast queue change", "error", err)
	}
}

func changed(it *FileQueueItem) Event {
	e := Event{Type: EventQueueChanged}
	if it != nil {
		e.ItemID = it.ID
		e.Item = it.Summary()
	}
	return e
}

// Rejected is a file refused before it entered the queue.
type Rejected struct {
	FileName string `json:"fileName"`
	Reason   string `json:"reason"`
}

// AddResult lists what AddFiles did with each file.
type AddResult struct {
	Items    []*FileQueueItem `json:"items"`
	Rejected []Rejected       `json:"rejected,omitempty"`
}

// AddFiles matches each file against the import targets and appends it to
// the queue, then starts processing if the queue is idle.
func (m *Manager) AddFiles(ctx context.Context, files []parser.FileHandle, enabled, all []api.Target, filters map[string]string) (*AddResult, error) {
	result := &AddResult{}
	var added []*FileQueueItem

	for _, fh := range files {
		meta := parser.Describe(fh)
		if len(m.config.AllowedExtensions) > 0 {
			if v := parser.Validate(meta, m.config.AllowedExtensions, m.config.MaxFileSize); !v.Valid {
				result.Rejected = append(result.Rejected, Rejected{FileName: meta.Name, Reason: v.Reason})
				continue
			}
		}

		status, target := Classify(meta.Name, enabled, all)
		it := &FileQueueItem{
			ID:            uuid.NewString(),
			File:          fh,
			FileName:      meta.Name,
			FileSize:      meta.Size,
			MatchedRecord: target,
			Status:        status,
			SessionID:     uuid.NewString(),
			FailedChunks:  []upload.FailedChunk{},
			Filters:       copyFilters(filters),
		}
		switch status {
		case StatusNoMatch:
			it.Error = "no import target matches this file name"
		case StatusDisabled:
			it.Error = "import target is disabled"
		}
		added = append(added, it)
	}

	if len(added) == 0 {
		return result, nil
	}

	m.mu.Lock()
	m.queue.Items = append(m.queue.Items, added...)
	events := make([]Event, 0, len(added))
	for _, it := range added {
		result.Items = append(result.Items, it.Clone())
		events = append(events, changed(it))
		m.logger.Info("File queued", "item", it.ID, "file", it.FileName, "status", string(it.Status))
	}
	err := m.persistLocked(ctx)
	m.mu.Unlock()

	m.announce(events...)
	m.startProcessing()
	return result, err
}

func copyFilters(filters map[string]string) map[string]string {
	if len(filters) == 0 {
		return nil
	}
	out := make(map[string]string, len(filters))
	for k, v := range filters {
		out[k] = v
	}
	return out
}

// Pause stops dispatch. The active file finishes its in-flight chunk and
// becomes paused.
func (m *Manager) Pause(ctx context.Context) error {
	m.mu.Lock()
	if m.queue.IsPaused {
		m.mu.Unlock()
		return nil
	}
	m.queue.IsPaused = true
	driver := m.driver
	err := m.persistLocked(ctx)
	m.mu.Unlock()

	if driver != nil {
		driver.Pause()
	}
	m.logger.Info("Queue paused")
	m.announce(Event{Type: EventQueuePaused})
	return err
}

// Resume clears the pause flag, re-queues paused items that still hold
// their file, and restarts processing.
func (m *Manager) Resume(ctx context.Context) error {
	m.mu.Lock()
	m.queue.IsPaused = false
	var events []Event
	for _, it := range m.queue.Items {
		if it.Status == StatusPaused && it.HasFile() {
			it.Status = StatusPending
			events = append(events, changed(it))
		}
	}
	err := m.persistLocked(ctx)
	m.mu.Unlock()

	m.logger.Info("Queue resumed", "requeued", len(events))
	m.announce(append(events, Event{Type: EventQueueResumed})...)
	m.startProcessing()
	return err
}

// RetryItem resets a failed or paused item and re-queues it from the
// first chunk.
func (m *Manager) RetryItem(ctx context.Context, id string) error {
	m.mu.Lock()
	it := m.queue.Find(id)
	if it == nil {
		m.mu.Unlock()
		return errors.New(errors.ErrorTypeValidation, "retry_item", id, errors.ErrItemNotFound)
	}
	if it.Status != StatusFailed && it.Status != StatusPaused {
		m.mu.Unlock()
		return errors.New(errors.ErrorTypeValidation, "retry_item", it.FileName,
			errors.Wrapf(errors.ErrInvalidTransition, "cannot retry %s item", it.Status))
	}
	if it.MatchedRecord == nil {
		m.mu.Unlock()
		return errors.New(errors.ErrorTypeValidation, "retry_item", it.FileName,
			errors.Wrap(errors.ErrInvalidTransition, "item has no import target"))
	}
	if !it.HasFile() {
		m.mu.Unlock()
		return errors.New(errors.ErrorTypeReloadLoss, "retry_item", it.FileName, errors.NewSimple(ReloadLossMessage))
	}

	resetItem(it)
	err := m.persistLocked(ctx)
	ev := changed(it)
	m.mu.Unlock()

	m.logger.Info("Item re-queued", "item", id, "file", ev.Item.FileName)
	m.announce(ev)
	m.startProcessing()
	return err
}

func resetItem(it *FileQueueItem) {
	it.Status = StatusPending
	it.Progress = 0
	it.UploadedRecords = 0
	it.TotalRecords = 0
	it.TotalChunks = 0
	it.NextChunk = 0
	it.ChunkSize = 0
	it.Speed = 0
	it.ETA = ""
	it.Error = ""
	it.FailedChunks = []upload.FailedChunk{}
	it.ConsecutiveFailures = 0
	it.Rejections = nil
	it.SessionID = uuid.NewString()
	it.StartTime = nil
	it.EndTime = nil
}

// ReattachFile gives an item its file handle back, typically after a
// reload. The handle must carry the item's file name.
func (m *Manager) ReattachFile(ctx context.Context, id string, fh parser.FileHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it := m.queue.Find(id)
	if it == nil {
		return errors.New(errors.ErrorTypeValidation, "reattach_file", id, errors.ErrItemNotFound)
	}
	if !strings.EqualFold(fh.Name(), it.FileName) {
		return errors.New(errors.ErrorTypeValidation, "reattach_file", fh.Name(),
			errors.Errorf("file name does not match queued file %s", it.FileName))
	}
	if it.Status == StatusUploading {
		return errors.New(errors.ErrorTypeValidation, "reattach_file", it.FileName, errors.ErrInvalidTransition)
	}

	it.File = fh
	it.FileSize = fh.Size()
	return m.persistLocked(ctx)
}

// RemoveItem deletes an item, cancelling it if it is being uploaded.
func (m *Manager) RemoveItem(ctx context.Context, id string) error {
	m.mu.Lock()
	idx := -1
	for i, it := range m.queue.Items {
		if it.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return errors.New(errors.ErrorTypeValidation, "remove_item", id, errors.ErrItemNotFound)
	}

	var driver *upload.Driver
	if m.queue.CurrentUploadID == id {
		driver = m.driver
		m.queue.CurrentUploadID = ""
	}
	m.queue.Items = append(m.queue.Items[:idx], m.queue.Items[idx+1:]...)
	err := m.persistLocked(ctx)
	m.mu.Unlock()

	if driver != nil {
		driver.Cancel()
	}
	if m.journal != nil {
		if jerr := m.journal.ForgetItem(ctx, id); jerr != nil {
			m.logger.Warn("Failed to remove item history", "item", id, "error", jerr)
		}
	}

	m.announce(Event{Type: EventQueueChanged, ItemID: id, Message: "removed"})
	return err
}

// ClearCompleted removes successful items and returns how many were removed.
func (m *Manager) ClearCompleted(ctx context.Context) (int, error) {
	m.mu.Lock()
	kept := m.queue.Items[:0]
	removed := 0
	for _, it := range m.queue.Items {
		if it.Status == StatusSuccess {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	for i := len(kept); i < len(m.queue.Items); i++ {
		m.queue.Items[i] = nil
	}
	m.queue.Items = kept
	err := m.persistLocked(ctx)
	m.mu.Unlock()

	m.announce(Event{Type: EventQueueChanged, Message: "cleared completed"})
	return removed, err
}

// ClearAll cancels the active upload and empties the queue.
func (m *Manager) ClearAll(ctx context.Context) (int, error) {
	m.mu.Lock()
	removed := len(m.queue.Items)
	driver := m.driver
	m.queue.Items = nil
	m.queue.CurrentUploadID = ""
	m.queue.IsPaused = false
	err := m.persistLocked(ctx)
	m.mu.Unlock()

	if driver != nil {
		driver.Cancel()
	}
	m.announce(Event{Type: EventQueueChanged, Message: "cleared"})
	return removed, err
}

// Snapshot returns a copy of the whole queue.
func (m *Manager) Snapshot() *BackgroundUploadQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Clone()
}

// Stats returns item counts by status.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Stats()
}

// Item returns a copy of one item.
func (m *Manager) Item(id string) (*FileQueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.queue.Find(id)
	if it == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "get_item", id, errors.ErrItemNotFound)
	}
	return it.Clone(), nil
}

// Subscribe registers handler for queue events and returns a function
// removing it. Handlers run on the goroutine that changed the queue.
func (m *Manager) Subscribe(handler EventHandler) func() {
	return m.bus.Subscribe(handler)
}

// Events returns a buffered event stream and a function closing it.
func (m *Manager) Events() (<-chan Event, func()) {
	return m.bus.Channel()
}

// IsProcessing reports whether the processing loop is running.
func (m *Manager) IsProcessing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processing
}

// Wait blocks until the processing loop goes idle or ctx ends.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	if !m.processing {
		m.mu.Unlock()
		return nil
	}
	idle := m.idle
	m.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops processing. The active file ends paused and is persisted.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.bus.Close()
	return nil
}

/**
 * Queue Events
 * In-process change notification for queue observers
 *
 * Features:
 * - Typed queue events
 * - Handler subscriptions with unsubscribe
 * - Buffered channels for streaming consumers
 * - Panic isolation for handlers
 *
 * Author: TradeImport Team
 * Update History:
 * - 2025-02-14: Initial implementation
 */

package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/vishalSecmark/tradewebx-sub002/internal/logger"
	"github.com/vishalSecmark/tradewebx-sub002/internal/upload"
)

// EventType defines the type of queue event.
type EventType int

const (
	EventQueueChanged EventType = iota
	EventItemProgress
	EventItemCompleted
	EventItemFailed
	EventItemPaused
	EventBreakerTripped
	EventQueuePaused
	EventQueueResumed
)

// String returns string representation of event type.
func (et EventType) String() string {
	switch et {
	case EventQueueChanged:
		return "queue_changed"
	case EventItemProgress:
		return "item_progress"
	case EventItemCompleted:
		return "item_completed"
	case EventItemFailed:
		return "item_failed"
	case EventItemPaused:
		return "item_paused"
	case EventBreakerTripped:
		return "breaker_tripped"
	case EventQueuePaused:
		return "queue_paused"
	case EventQueueResumed:
		return "queue_resumed"
	default:
		return "unknown"
	}
}

// MarshalText renders the event type by name.
func (et EventType) MarshalText() ([]byte, error) {
	return []byte(et.String()), nil
}

// Event is a queue change notification.
type Event struct {
	Timestamp time.Time        `json:"timestamp"`
	Type      EventType        `json:"type"`
	ItemID    string           `json:"itemId,omitempty"`
	Item      *FileQueueItem   `json:"item,omitempty"`
	Progress  *upload.Progress `json:"progress,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// EventHandler processes events.
type EventHandler func(event Event)

// EventBus fans events out to handlers and channels.
type EventBus struct {
	handlers   map[int]EventHandler
	channels   map[int]chan Event
	nextID     int
	bufferSize int
	mu         sync.RWMutex
	logger     *logger.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(bufferSize int, log *logger.Logger) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if log == nil {
		log = logger.Nop()
	}

	return &EventBus{
		handlers:   make(map[int]EventHandler),
		channels:   make(map[int]chan Event),
		bufferSize: bufferSize,
		logger:     log,
	}
}

// Subscribe adds a handler and returns a function removing it.
func (eb *EventBus) Subscribe(handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	id := eb.nextID
	eb.nextID++
	eb.handlers[id] = handler

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.handlers, id)
	}
}

// Channel returns a buffered event stream and a function closing it.
// Events are dropped for a consumer whose buffer is full.
func (eb *EventBus) Channel() (<-chan Event, func()) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	id := eb.nextID
	eb.nextID++
	ch := make(chan Event, eb.bufferSize)
	eb.channels[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			eb.mu.Lock()
			defer eb.mu.Unlock()
			if c, ok := eb.channels[id]; ok {
				close(c)
				delete(eb.channels, id)
			}
		})
	}
}

// Publish delivers event to every channel and handler, in order, on the
// caller's goroutine.
func (eb *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.RLock()
	for _, ch := range eb.channels {
		select {
		case ch <- event:
		default:
		}
	}
	handlers := make([]EventHandler, 0, len(eb.handlers))
	for _, h := range eb.handlers {
		handlers = append(handlers, h)
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		eb.callHandler(h, event)
	}
}

// Close closes every channel and drops all handlers.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for id, ch := range eb.channels {
		close(ch)
		delete(eb.channels, id)
	}
	eb.handlers = make(map[int]EventHandler)
}

func (eb *EventBus) callHandler(handler EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error(fmt.Errorf("panic in event handler: %v", r),
				"Event handler panicked",
				"event_type", event.Type.String(),
			)
		}
	}()

	handler(event)
}

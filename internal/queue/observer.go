package queue

import (
	"context"
	"time"

	"github.com/vishalSecmark/tradewebx-sub002/internal/errors"
	"github.com/vishalSecmark/tradewebx-sub002/internal/logger"
)

// Observer is a read-only view of a queue persisted by a manager that may
// live in another process. It never applies reload recovery and never
// writes to the store.
type Observer struct {
	store    Store
	key      string
	notifier Notifier
	interval time.Duration
	logger   *logger.Logger
}

// NewObserver creates an observer. With a nil notifier it polls every
// interval.
func NewObserver(store Store, key string, notifier Notifier, interval time.Duration, log *logger.Logger) *Observer {
	if key == "" {
		key = DefaultQueueKey
	}
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Observer{
		store:    store,
		key:      key,
		notifier: notifier,
		interval: interval,
		logger:   log.With("component", "observer"),
	}
}

// Snapshot reads the persisted queue as stored.
func (o *Observer) Snapshot(ctx context.Context) (*BackgroundUploadQueue, error) {
	raw, ok, err := o.store.GetValue(ctx, o.key)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeStorage, "read_queue", o.key, err)
	}
	if !ok {
		return &BackgroundUploadQueue{}, nil
	}
	return Decode([]byte(raw))
}

// Watch calls fn with the current queue and again whenever it changes,
// until ctx ends. Changes are detected from notifications when a notifier
// is set, and from LastUpdated on every poll.
func (o *Observer) Watch(ctx context.Context, fn func(*BackgroundUploadQueue)) error {
	var changes <-chan Change
	if o.notifier != nil {
		ch, err := o.notifier.Subscribe(ctx)
		if err != nil {
			o.logger.Warn("Change notifications unavailable, polling", "error", err)
		} else {
			changes = ch
		}
	}

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	var last time.Time
	first := true
	refresh := func() error {
		q, err := o.Snapshot(ctx)
		if err != nil {
			return err
		}
		if first || !q.LastUpdated.Equal(last) {
			first = false
			last = q.LastUpdated
			fn(q)
		}
		return nil
	}

	if err := refresh(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
		case <-ticker.C:
		}

		if err := refresh(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			o.logger.Warn("Failed to read queue", "error", err)
		}
	}
}

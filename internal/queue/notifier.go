/**
 * Queue Change Notification
 *
 * Features:
 * - Notifier contract for cross-process change signals
 * - In-process notifier for single-process deployments and tests
 * - Redis pub/sub notifier for observers in other processes
 *
 * Author: TradeImport Team
 * Update History:
 * - 2025-02-14: Initial implementation
 */

package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vishalSecmark/tradewebx-sub002/internal/errors"
	"github.com/vishalSecmark/tradewebx-sub002/internal/logger"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "tradeimport:queue"

// Change tells observers that the persisted queue under Key was rewritten.
type Change struct {
	Key    string    `json:"key"`
	Origin string    `json:"origin"`
	At     time.Time `json:"at"`
}

// Notifier broadcasts queue changes to other observers.
type Notifier interface {
	// Publish announces a change.
	Publish(ctx context.Context, change Change) error

	// Subscribe streams changes until ctx ends.
	Subscribe(ctx context.Context) (<-chan Change, error)

	// Close releases the notifier.
	Close() error
}

// LocalNotifier delivers changes within the current process.
type LocalNotifier struct {
	mu   sync.Mutex
	subs map[chan Change]struct{}
}

// NewLocalNotifier creates an in-process notifier.
func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[chan Change]struct{})}
}

// Publish implements Notifier. Slow subscribers miss changes rather than
// block the publisher.
func (n *LocalNotifier) Publish(_ context.Context, change Change) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- change:
		default:
		}
	}
	return nil
}

// Subscribe implements Notifier.
func (n *LocalNotifier) Subscribe(ctx context.Context) (<-chan Change, error) {
	ch := make(chan Change, 16)

	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.subs[ch]; ok {
			delete(n.subs, ch)
			close(ch)
		}
	}()
	return ch, nil
}

// Close implements Notifier.
func (n *LocalNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		delete(n.subs, ch)
		close(ch)
	}
	return nil
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisNotifier publishes changes over Redis pub/sub.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  *logger.Logger
}

// NewRedisNotifier connects to Redis and verifies the connection.
func NewRedisNotifier(ctx context.Context, cfg RedisConfig, log *logger.Logger) (*RedisNotifier, error) {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     4,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.New(errors.ErrorTypeNetwork, "redis_ping", cfg.Addr, err)
	}

	log.Info("Connected to Redis", "addr", cfg.Addr, "channel", cfg.Channel)
	return NewRedisNotifierFromClient(client, cfg.Channel, log), nil
}

// NewRedisNotifierFromClient wraps an existing client.
func NewRedisNotifierFromClient(client *redis.Client, channel string, log *logger.Logger) *RedisNotifier {
	if log == nil {
		log = logger.Nop()
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{
		client:  client,
		channel: channel,
		logger:  log.With("component", "redis_notifier"),
	}
}

// Publish implements Notifier.
func (n *RedisNotifier) Publish(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return errors.Wrap(err, "failed to encode change")
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return errors.New(errors.ErrorTypeNetwork, "redis_publish", n.channel, err)
	}
	return nil
}

// Subscribe implements Notifier.
func (n *RedisNotifier) Subscribe(ctx context.Context) (<-chan Change, error) {
	pubsub := n.client.Subscribe(ctx, n.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, errors.New(errors.ErrorTypeNetwork, "redis_subscribe", n.channel, err)
	}

	out := make(chan Change, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					n.logger.Warn("Ignoring malformed change", "error", err)
					continue
				}
				select {
				case out <- change:
				default:
				}
			}
		}
	}()
	return out, nil
}

// Close implements Notifier.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

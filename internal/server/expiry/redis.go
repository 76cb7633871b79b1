// Package expiry turns per-file TTLs into asynchronous deletion triggers
// using Redis key expiry and keyspace notifications. Entries here are a
// trigger mechanism only; the database remains authoritative for existence.
package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// expiredPattern matches key-expired events on any database.
const expiredPattern = "__keyevent@*__:expired"

// Signal registers and cancels TTL entries. A zero or negative ttl stores
// the entry without expiry (kept for lookup consistency, never fires).
type Signal interface {
	Register(ctx context.Context, key, handle string, ttl time.Duration) error
	Cancel(ctx context.Context, key string) error
	Flush(ctx context.Context) error
}

// Handler consumes one expiry notification. It must be idempotent: delivery
// is at-least-once and may arrive after the key's record is already gone.
type Handler func(ctx context.Context, key string)

// Connect opens a Redis client and enables keyspace expiry events.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	enableKeyspaceEvents(ctx, client)

	slog.Info("connected to redis")
	return client, nil
}

// enableKeyspaceEvents turns on "Ex" notifications if they are not already
// configured. Best effort: managed instances may restrict CONFIG.
func enableKeyspaceEvents(ctx context.Context, client *redis.Client) {
	res, err := client.ConfigGet(ctx, "notify-keyspace-events").Result()
	if err == nil {
		current := res["notify-keyspace-events"]
		if strings.Contains(current, "E") && strings.Contains(current, "x") {
			return
		}
		err = client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
	}
	if err != nil {
		slog.Warn("could not configure redis keyspace events", "error", err)
	}
}

// RedisSignal implements Signal on a Redis client.
type RedisSignal struct {
	client *redis.Client
}

// NewRedisSignal creates a Redis-backed expiry signal.
func NewRedisSignal(client *redis.Client) *RedisSignal {
	return &RedisSignal{client: client}
}

// Register stores key -> handle with the given TTL.
func (s *RedisSignal) Register(ctx context.Context, key, handle string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, handle, ttl).Err(); err != nil {
		return fmt.Errorf("failed to register expiry entry: %w", err)
	}
	return nil
}

// Cancel removes the entry. Absent or already-fired keys are a no-op.
func (s *RedisSignal) Cancel(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to cancel expiry entry: %w", err)
	}
	return nil
}

// Flush drops every entry. Used by the admin factory reset.
func (s *RedisSignal) Flush(ctx context.Context) error {
	if err := s.client.FlushAll(ctx).Err(); err != nil {
		return fmt.Errorf("failed to flush expiry entries: %w", err)
	}
	return nil
}

// Listener subscribes to key-expired events and dispatches each expired key
// to a handler.
type Listener struct {
	client  *redis.Client
	handler Handler
	done    chan struct{}
}

// NewListener creates a listener that invokes handler for every expired key.
func NewListener(client *redis.Client, handler Handler) *Listener {
	return &Listener{
		client:  client,
		handler: handler,
		done:    make(chan struct{}),
	}
}

// Start subscribes and begins dispatching in a background goroutine until
// ctx is cancelled.
func (l *Listener) Start(ctx context.Context) {
	pubsub := l.client.PSubscribe(ctx, expiredPattern)
	slog.Info("expiry listener started", "pattern", expiredPattern)

	go func() {
		defer close(l.done)
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				l.handler(ctx, msg.Payload)
			case <-ctx.Done():
				pubsub.Close()
				slog.Info("expiry listener stopping")
				return
			}
		}
	}()
}

// Wait blocks until the listener has fully stopped.
func (l *Listener) Wait() {
	<-l.done
}

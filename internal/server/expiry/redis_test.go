package expiry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestSignal(t *testing.T) (*RedisSignal, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSignal(client), m, client
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("stores entry with ttl", func(t *testing.T) {
		signal, m, _ := newTestSignal(t)
		if err := signal.Register(ctx, "file-1", "handle-1", time.Hour); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if got, err := m.Get("file-1"); err != nil || got != "handle-1" {
			t.Errorf("expected handle-1, got %q (err=%v)", got, err)
		}
		if ttl := m.TTL("file-1"); ttl != time.Hour {
			t.Errorf("expected TTL 1h, got %v", ttl)
		}
	})

	t.Run("zero ttl means no expiry", func(t *testing.T) {
		signal, m, _ := newTestSignal(t)
		if err := signal.Register(ctx, "file-1", "handle-1", 0); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if ttl := m.TTL("file-1"); ttl != 0 {
			t.Errorf("expected no TTL, got %v", ttl)
		}
		m.FastForward(365 * 24 * time.Hour)
		if !m.Exists("file-1") {
			t.Error("permanent entry expired")
		}
	})

	t.Run("entry fires after ttl elapses", func(t *testing.T) {
		signal, m, _ := newTestSignal(t)
		if err := signal.Register(ctx, "file-1", "handle-1", time.Minute); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		m.FastForward(2 * time.Minute)
		if m.Exists("file-1") {
			t.Error("entry still present after TTL")
		}
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	signal, m, _ := newTestSignal(t)

	if err := signal.Register(ctx, "file-1", "handle-1", time.Hour); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := signal.Cancel(ctx, "file-1"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if m.Exists("file-1") {
		t.Error("entry still present after cancel")
	}

	// Cancelling an absent key is a no-op.
	if err := signal.Cancel(ctx, "never-registered"); err != nil {
		t.Errorf("Cancel on absent key failed: %v", err)
	}
}

func TestFlush(t *testing.T) {
	ctx := context.Background()
	signal, m, _ := newTestSignal(t)

	for _, key := range []string{"a", "b", "c"} {
		if err := signal.Register(ctx, key, "h-"+key, time.Hour); err != nil {
			t.Fatalf("Register(%q) failed: %v", key, err)
		}
	}
	if err := signal.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	for _, key := range []string{"a", "b", "c"} {
		if m.Exists(key) {
			t.Errorf("entry %q survived flush", key)
		}
	}
}

func TestListenerDispatch(t *testing.T) {
	_, _, client := newTestSignal(t)

	var mu sync.Mutex
	var got []string
	handler := func(_ context.Context, key string) {
		mu.Lock()
		got = append(got, key)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	listener := NewListener(client, handler)
	listener.Start(ctx)

	// Give the subscription a moment to establish before publishing.
	time.Sleep(50 * time.Millisecond)

	if err := client.Publish(ctx, "__keyevent@0__:expired", "file-1").Err(); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := client.Publish(ctx, "__keyevent@0__:expired", "file-2").Err(); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for dispatch, got %d events", n)
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0] != "file-1" || got[1] != "file-2" {
		t.Errorf("unexpected dispatch order: %v", got)
	}

	cancel()
	listener.Wait()
}

func TestConnectRejectsBadURL(t *testing.T) {
	if _, err := Connect(context.Background(), "not-a-url"); err == nil {
		t.Error("expected error for malformed redis URL")
	}
}

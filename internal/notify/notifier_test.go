package notify

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestBroadcastDoesNotBlockCaller(t *testing.T) {
	// Nothing listens on this address; the publish can only fail slowly.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: time.Second})
	n := NewRedisNotifier(rdb, "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	start := time.Now()
	n.Broadcast(context.Background(), EventCallCompleted, map[string]string{"carrier_call_id": "CA1"})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("broadcast blocked the caller for %s", elapsed)
	}
}

func TestBroadcastSurvivesCancelledContext(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: time.Second})
	n := NewRedisNotifier(rdb, "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Must not panic or block even when the caller's context is dead.
	n.Broadcast(ctx, EventCallFailed, nil)
}

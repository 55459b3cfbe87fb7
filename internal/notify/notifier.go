package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event tags broadcast to dashboard observers.
type Event string

const (
	EventCallInitiated Event = "call_initiated"
	EventCallAnswered  Event = "call_answered"
	EventCallTurn      Event = "call_turn"
	EventCallCompleted Event = "call_completed"
	EventCallFailed    Event = "call_failed"
)

// Notifier broadcasts lifecycle events to observers.
//
// Contract: best-effort and fire-and-forget. Implementations must never
// block the call path for long and must never report failure back into it;
// delivery problems are logged and swallowed.
type Notifier interface {
	Broadcast(ctx context.Context, event Event, payload any)
}

// RedisNotifier publishes events on a Redis channel. Dashboard processes
// subscribe to fan them out over their own websockets.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
	log     *slog.Logger
	timeout time.Duration
}

func NewRedisNotifier(rdb *redis.Client, channel string, log *slog.Logger) *RedisNotifier {
	if channel == "" {
		channel = "voiceagent:events"
	}
	return &RedisNotifier{rdb: rdb, channel: channel, log: log, timeout: 2 * time.Second}
}

type envelope struct {
	Event   Event     `json:"event"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

func (n *RedisNotifier) Broadcast(ctx context.Context, event Event, payload any) {
	body, err := json.Marshal(envelope{Event: event, At: time.Now().UTC(), Payload: payload})
	if err != nil {
		n.log.Warn("notify marshal failed", "event", event, "err", err)
		return
	}

	// Publish off the call path: the orchestrator never waits on Redis.
	// Detached from the caller's context too, so a finalization that
	// already timed out still gets its completion event if Redis is up.
	go func() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()

		if err := n.rdb.Publish(pubCtx, n.channel, body).Err(); err != nil {
			n.log.Warn("notify publish failed", "event", event, "err", err)
		}
	}()
}

// NoopNotifier discards everything. Default for tests.
type NoopNotifier struct{}

func (NoopNotifier) Broadcast(context.Context, Event, any) {}

package orchestrator

import (
	"context"
	"time"

	"voiceagent-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// DialLimiter caps concurrent in-flight calls per campaign.
type DialLimiter interface {
	Acquire(ctx context.Context, campaignID string, limit int, ttl time.Duration) (bool, error)
	Release(ctx context.Context, campaignID string) error
}

// RedisDialLimiter implements DialLimiter on the shared Redis concurrency
// slots, so the cap holds across API replicas.
type RedisDialLimiter struct {
	rdb *redis.Client
}

func NewRedisDialLimiter(rdb *redis.Client) *RedisDialLimiter {
	return &RedisDialLimiter{rdb: rdb}
}

func capKey(campaignID string) string {
	return "voiceagent:dialcap:" + campaignID
}

func (l *RedisDialLimiter) Acquire(ctx context.Context, campaignID string, limit int, ttl time.Duration) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, capKey(campaignID), limit, ttl)
}

func (l *RedisDialLimiter) Release(ctx context.Context, campaignID string) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, capKey(campaignID))
}

// NoopLimiter admits everything. Default for tests and single-node dev.
type NoopLimiter struct{}

func (NoopLimiter) Acquire(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (NoopLimiter) Release(context.Context, string) error { return nil }

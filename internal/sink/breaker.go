package sink

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rudipoppes/GenHook/internal/pkg/metrics"
)

const breakerKeyPrefix = "genhook:sink:breaker"

// breaker tracks whether the sink is currently considered down, so Send can
// fail fast instead of paying out a full retry budget on every request
// during an outage. State is held locally and, when a Redis client is
// configured, mirrored to a shared key so every process instance opens and
// closes the circuit together — the same "prefer shared state, fail open to
// local" shape as the teacher's Redis-backed LogRepository falling back to
// its own write-ahead log when Redis itself is unreachable.
//
// The local fallback carries its own trip deadline (trippedUntil) so
// the circuit still self-closes after coolDown when Redis is absent or
// unreachable; Redis's key TTL provides the same expiry for the shared case.
type breaker struct {
	trippedUntil atomic.Int64 // unix nanos; zero or past means closed
	redis        *redis.Client
	key          string
	coolDown     time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func newBreaker(client *redis.Client, name string, coolDown time.Duration, m *metrics.Metrics, logger *slog.Logger) *breaker {
	return &breaker{
		redis:    client,
		key:      breakerKeyPrefix + ":" + name,
		coolDown: coolDown,
		metrics:  m,
		logger:   logger.With("component", "sink_breaker"),
	}
}

// isOpen reports whether sends should currently be short-circuited. Redis is
// consulted first when configured; any Redis error falls back to the local
// deadline rather than blocking the request on a second unavailable
// dependency.
func (b *breaker) isOpen(ctx context.Context) bool {
	if b.redis == nil {
		return b.localOpen()
	}

	exists, err := b.redis.Exists(ctx, b.key).Result()
	if err != nil {
		b.logger.Warn("breaker state check fell back to local state", "error", err)
		return b.localOpen()
	}
	return exists > 0
}

func (b *breaker) localOpen() bool {
	return time.Now().UnixNano() < b.trippedUntil.Load()
}

// trip opens the circuit for coolDown.
func (b *breaker) trip(ctx context.Context) {
	b.trippedUntil.Store(time.Now().Add(b.coolDown).UnixNano())
	if b.metrics != nil {
		b.metrics.SinkCircuitOpen.Set(1)
	}
	if b.redis == nil {
		return
	}
	if err := b.redis.Set(ctx, b.key, "1", b.coolDown).Err(); err != nil {
		b.logger.Warn("failed to record breaker trip in redis", "error", err)
	}
}

// reset closes the circuit immediately, on the first successful send.
func (b *breaker) reset(ctx context.Context) {
	b.trippedUntil.Store(0)
	if b.metrics != nil {
		b.metrics.SinkCircuitOpen.Set(0)
	}
	if b.redis == nil {
		return
	}
	if err := b.redis.Del(ctx, b.key).Err(); err != nil {
		b.logger.Warn("failed to clear breaker trip in redis", "error", err)
	}
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/example/emotion-sense/internal/logging"
)

// Counter fields stored per operation.
const (
	counterTotal     = "total"
	counterSuccess   = "success"
	counterFallback  = "fallback"
	counterRejected  = "rejected"
	counterTimeout   = "timeout"
	counterError     = "error"
	counterLatencyMs = "latency_ms"
)

// MetricsStore persists operational counters. Implementations must be safe
// for concurrent use.
type MetricsStore interface {
	Record(ctx context.Context, operation string, counters map[string]int64) error
	Counters(ctx context.Context, operation string) (map[string]int64, error)
}

// HashStore abstracts the Redis hash commands used for metrics so tests can
// run without a server.
type HashStore interface {
	Increment(ctx context.Context, key string, fields map[string]int64) error
	ReadAll(ctx context.Context, key string) (map[string]string, error)
}

// RedisHash is a HashStore backed by go-redis.
type RedisHash struct {
	client *redis.Client
}

// NewRedisHash wraps client.
func NewRedisHash(client *redis.Client) *RedisHash {
	return &RedisHash{client: client}
}

// Increment applies every field increment in a single transaction.
func (h *RedisHash) Increment(ctx context.Context, key string, fields map[string]int64) error {
	_, err := h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for field, delta := range fields {
			pipe.HIncrBy(ctx, key, field, delta)
		}
		return nil
	})
	return err
}

// ReadAll returns every field of the hash at key.
func (h *RedisHash) ReadAll(ctx context.Context, key string) (map[string]string, error) {
	return h.client.HGetAll(ctx, key).Result()
}

// RedisMetrics stores one hash per operation under prefix.
type RedisMetrics struct {
	hash           HashStore
	prefix         string
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewRedisMetrics constructs a Redis-backed metrics store.
func NewRedisMetrics(hash HashStore, prefix string, logger *zap.Logger) *RedisMetrics {
	return &RedisMetrics{
		hash:           hash,
		prefix:         prefix,
		logger:         logger.Named("metrics_store"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

func (m *RedisMetrics) key(operation string) string {
	if m.prefix == "" {
		return "metrics:" + operation
	}
	return fmt.Sprintf("%s:metrics:%s", m.prefix, operation)
}

func (m *RedisMetrics) Record(ctx context.Context, operation string, counters map[string]int64) error {
	key := m.key(operation)
	return m.withRedisRetry(ctx, logging.RequestID(ctx), "metrics.record", func() error {
		return m.hash.Increment(ctx, key, counters)
	})
}

func (m *RedisMetrics) Counters(ctx context.Context, operation string) (map[string]int64, error) {
	key := m.key(operation)
	var raw map[string]string
	err := m.withRedisRetry(ctx, "", "metrics.read", func() error {
		values, err := m.hash.ReadAll(ctx, key)
		if err != nil {
			return err
		}
		raw = values
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(raw))
	for field, value := range raw {
		n, err := cast.ToInt64E(value)
		if err != nil {
			m.logger.Warn("skipping non-numeric counter", zap.String("key", key), zap.String("field", field))
			continue
		}
		out[field] = n
	}
	return out, nil
}

func (m *RedisMetrics) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if m.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := m.initialBackoff
	opLogger := logging.WithOperation(m.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < m.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= m.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == m.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}

// NopMetrics discards everything. It is used when Redis is not configured.
type NopMetrics struct{}

func (NopMetrics) Record(context.Context, string, map[string]int64) error { return nil }

func (NopMetrics) Counters(context.Context, string) (map[string]int64, error) {
	return map[string]int64{}, nil
}

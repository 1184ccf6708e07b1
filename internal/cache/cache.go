package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheNotAvailable = errors.New("cache not available")
	ErrCacheNotFound     = errors.New("key not found in cache")
)

// Helper wraps a Redis client with JSON marshalling and a key prefix.
// A nil client degrades gracefully: reads miss, writes are no-ops.
type Helper struct {
	client *redis.Client
	prefix string
}

func NewHelper(client *redis.Client, prefix string) *Helper {
	return &Helper{client: client, prefix: prefix}
}

func (h *Helper) key(k string) string {
	return h.prefix + k
}

func (h *Helper) Get(ctx context.Context, key string, dest interface{}) error {
	if h.client == nil {
		return ErrCacheNotAvailable
	}

	data, err := h.client.Get(ctx, h.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheNotFound
		}
		return fmt.Errorf("cache get failed: %w", err)
	}

	return json.Unmarshal(data, dest)
}

func (h *Helper) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if h.client == nil {
		return ErrCacheNotAvailable
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return h.client.Set(ctx, h.key(key), data, ttl).Err()
}

func (h *Helper) Delete(ctx context.Context, keys ...string) error {
	if h.client == nil || len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = h.key(k)
	}
	return h.client.Del(ctx, prefixed...).Err()
}

// InvalidatePattern deletes keys matching the pattern using SCAN so large
// keyspaces are not blocked by KEYS.
func (h *Helper) InvalidatePattern(ctx context.Context, pattern string) error {
	if h.client == nil {
		return nil
	}

	iter := h.client.Scan(ctx, 0, h.key(pattern), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 500 {
			if err := h.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan failed: %w", err)
	}
	if len(keys) > 0 {
		return h.client.Del(ctx, keys...).Err()
	}
	return nil
}

// CacheOrExecute implements the cache-aside pattern: return the cached value
// when present, otherwise execute fn, cache its result, and decode it into
// dest. Cache failures fall through to fn; they never fail the read.
func (h *Helper) CacheOrExecute(ctx context.Context, key string, dest interface{}, ttl time.Duration, fn func() (interface{}, error)) error {
	if err := h.Get(ctx, key, dest); err == nil {
		return nil
	}

	value, err := fn()
	if err != nil {
		return err
	}

	// Best effort; the caller still gets the value even when the write
	// fails.
	_ = h.Set(ctx, key, value, ttl)

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal executed value: %w", err)
	}
	return json.Unmarshal(data, dest)
}

// Manager groups prefixed helpers per domain.
type Manager struct {
	client *redis.Client

	Quiz    *Helper
	Attempt *Helper
	User    *Helper
	// Fast holds short-lived hot-path entries (active attempts,
	// time-remaining lookups).
	Fast *Helper
}

// TTLs per domain. Fast entries expire quickly because attempts mutate
// throughout a session.
var (
	QuizTTL    = 10 * time.Minute
	UserTTL    = 30 * time.Minute
	FastTTL    = 15 * time.Second
	AttemptTTL = 1 * time.Minute
)

func NewManager(client *redis.Client) *Manager {
	return &Manager{
		client:  client,
		Quiz:    NewHelper(client, "quiz:"),
		Attempt: NewHelper(client, "attempt:"),
		User:    NewHelper(client, "user:"),
		Fast:    NewHelper(client, "fast:"),
	}
}

func (m *Manager) HealthCheck(ctx context.Context) error {
	if m.client == nil {
		return ErrCacheNotAvailable
	}
	return m.client.Ping(ctx).Err()
}

func (m *Manager) Enabled() bool {
	return m.client != nil
}

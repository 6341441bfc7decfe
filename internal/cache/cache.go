// Package cache fronts the provider clients with TTL-bound response
// caching. Provider TTLs differ by volatility: explorer source records live
// for hours, DEX pair snapshots for seconds.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrMiss reports an absent or expired key.
var ErrMiss = errors.New("cache miss")

// Cache is the storage surface the provider layer consumes.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key builds the canonical cache key for one provider lookup.
func Key(provider, chain, identifier string) string {
	return "tokentruth:" + provider + ":" + chain + ":" + identifier
}

// Noop satisfies Cache with permanent misses; the default when no Redis is
// configured.
type Noop struct{}

func (Noop) Get(ctx context.Context, key string) ([]byte, error) { return nil, ErrMiss }
func (Noop) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

// Memory is a process-local cache with lazy expiry. Used for single-node
// deployments and in tests.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		if ok {
			m.mu.Lock()
			delete(m.entries, key)
			m.mu.Unlock()
		}
		return nil, ErrMiss
	}
	return entry.value, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Redis backs the cache with a shared Redis instance so multiple analyzer
// nodes reuse each other's upstream fetches.
type Redis struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedis(addr, password string, db int, log zerolog.Logger) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		log: log.With().Str("component", "cache").Logger(),
	}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return nil, err
	}
	return val, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		return err
	}
	return nil
}

// Ping verifies connectivity at startup.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

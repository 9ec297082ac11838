// Package cache provides the Redis-backed cache service consumed by the query
// path. Every operation is best-effort: when Redis is unreachable the caller
// observes a miss, never an error. Correctness always comes from the query
// handlers; the cache only buys latency.
package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wird-app/wird/internal/platform/timeouts"
)

// ConnectionStatus values reported by Stats.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusDisabled     = "disabled"
)

// Stats is a point-in-time snapshot of cache effectiveness and reachability.
type Stats struct {
	Hits             uint64
	Misses           uint64
	Keys             int64
	ConnectionStatus string
}

// Service wraps a Redis client with fail-open semantics and hit/miss counters.
// A nil Service is a valid always-miss cache, which keeps wiring simple for
// deployments that run without Redis.
type Service struct {
	client *redis.Client
	logf   func(format string, args ...any)

	hits      atomic.Uint64
	misses    atomic.Uint64
	connected atomic.Bool
}

// New creates a cache service around an existing Redis client. The logf hook
// receives absorbed cache failures; pass nil to discard them.
func New(client *redis.Client, logf func(format string, args ...any)) *Service {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	s := &Service{client: client, logf: logf}
	s.connected.Store(client != nil)
	return s
}

// Get returns the cached value for key and whether it was present. Cache
// errors count as misses.
func (s *Service) Get(ctx context.Context, key string) ([]byte, bool) {
	if s == nil || s.client == nil {
		return nil, false
	}
	opCtx, cancel := context.WithTimeout(ctx, timeouts.CacheOp)
	defer cancel()

	value, err := s.client.Get(opCtx, key).Bytes()
	if err != nil {
		s.misses.Add(1)
		if err != redis.Nil {
			s.noteFailure("cache get %s: %v", key, err)
		}
		return nil, false
	}
	s.hits.Add(1)
	s.connected.Store(true)
	return value, true
}

// Set stores value under key with the provided TTL and reports whether the
// write took effect. Failures are absorbed.
func (s *Service) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if s == nil || s.client == nil {
		return false
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	opCtx, cancel := context.WithTimeout(ctx, timeouts.CacheOp)
	defer cancel()

	if err := s.client.Set(opCtx, key, value, ttl).Err(); err != nil {
		s.noteFailure("cache set %s: %v", key, err)
		return false
	}
	s.connected.Store(true)
	return true
}

// Del removes a single key. Failures are absorbed.
func (s *Service) Del(ctx context.Context, key string) {
	if s == nil || s.client == nil {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, timeouts.CacheOp)
	defer cancel()

	if err := s.client.Del(opCtx, key).Err(); err != nil {
		s.noteFailure("cache del %s: %v", key, err)
		return
	}
	s.connected.Store(true)
}

// DeleteByPattern removes every key matching the glob pattern and returns the
// number of keys deleted. The scan runs in pages so large keyspaces do not
// block Redis.
func (s *Service) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	if s == nil || s.client == nil {
		return 0, nil
	}
	if strings.TrimSpace(pattern) == "" {
		return 0, nil
	}

	deleted := 0
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			s.noteFailure("cache scan %s: %v", pattern, err)
			return deleted, err
		}
		if len(keys) > 0 {
			removed, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				s.noteFailure("cache del batch: %v", err)
				return deleted, err
			}
			deleted += int(removed)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	s.connected.Store(true)
	return deleted, nil
}

// Stats reports hit/miss counters, the number of keys matching the query
// prefix, and the last observed connection status.
func (s *Service) Stats(ctx context.Context) Stats {
	if s == nil || s.client == nil {
		return Stats{ConnectionStatus: StatusDisabled}
	}
	stats := Stats{
		Hits:             s.hits.Load(),
		Misses:           s.misses.Load(),
		ConnectionStatus: StatusDisconnected,
	}
	if s.connected.Load() {
		stats.ConnectionStatus = StatusConnected
	}

	opCtx, cancel := context.WithTimeout(ctx, timeouts.CacheOp)
	defer cancel()
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(opCtx, cursor, KeyPrefix+"*", 500).Result()
		if err != nil {
			s.noteFailure("cache stats scan: %v", err)
			return stats
		}
		stats.Keys += int64(len(keys))
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return stats
}

// HealthCheck performs a set-get-delete round trip against a probe key with a
// short TTL. An error means the cache service is unreachable, not that data is
// wrong.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	opCtx, cancel := context.WithTimeout(ctx, timeouts.CacheProbe)
	defer cancel()

	probeKey := KeyPrefix + "health:probe"
	if err := s.client.Set(opCtx, probeKey, "ok", 5*time.Second).Err(); err != nil {
		s.connected.Store(false)
		return err
	}
	if err := s.client.Get(opCtx, probeKey).Err(); err != nil {
		s.connected.Store(false)
		return err
	}
	if err := s.client.Del(opCtx, probeKey).Err(); err != nil {
		s.connected.Store(false)
		return err
	}
	s.connected.Store(true)
	return nil
}

// noteFailure logs an absorbed cache failure and flips the connection status.
func (s *Service) noteFailure(format string, args ...any) {
	s.connected.Store(false)
	s.logf(format, args...)
}

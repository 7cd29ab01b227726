// Package services holds cross-cutting infrastructure shared by the
// HTTP layer: today, stream presence bookkeeping for the SSE Transport
// (C8).
//
// StreamPresence is a repurposing of Danor93-Articles-Chat's
// CacheService dual-strategy design (Redis primary, in-memory fallback)
// away from its original job — response caching is an explicit spec
// Non-goal — toward the one Redis-shaped requirement the spec actually
// names: "keep-alive" bookkeeping for open streams (spec §4.8), so a
// `/health` reporter (or a sibling instance, in a multi-instance
// deployment) can observe live-stream counts without holding them in
// local memory. See DESIGN.md for the full rationale.
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamPresence tracks which /chat streams are currently open.
// Heartbeat is called once per SSE frame (and on every keep-alive tick);
// Release is called when the stream ends, successfully or not.
type StreamPresence interface {
	Heartbeat(ctx context.Context, streamID string, ttl time.Duration) error
	Release(ctx context.Context, streamID string) error
	ActiveCount(ctx context.Context) (int, error)
	Close() error
}

// ============================================================================
// IN-MEMORY IMPLEMENTATION (FALLBACK)
// ============================================================================

// MemoryStreamPresence tracks live streams locally, for single-instance
// deployments or as a degraded-mode fallback when Redis is unreachable.
type MemoryStreamPresence struct {
	mu      sync.Mutex
	expires map[string]time.Time
}

func NewMemoryStreamPresence() *MemoryStreamPresence {
	return &MemoryStreamPresence{expires: make(map[string]time.Time)}
}

func (m *MemoryStreamPresence) Heartbeat(ctx context.Context, streamID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[streamID] = time.Now().Add(ttl)
	return nil
}

func (m *MemoryStreamPresence) Release(ctx context.Context, streamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.expires, streamID)
	return nil
}

func (m *MemoryStreamPresence) ActiveCount(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	count := 0
	for id, exp := range m.expires {
		if now.After(exp) {
			delete(m.expires, id) // self-cleaning, mirrors the cache's expiry sweep
			continue
		}
		count++
	}
	return count, nil
}

func (m *MemoryStreamPresence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires = make(map[string]time.Time)
	return nil
}

// ============================================================================
// REDIS IMPLEMENTATION (PRIMARY)
// ============================================================================

const activeStreamsKey = "dagchat:streams:active"

// RedisStreamPresence stores each open stream as a member of a sorted
// set scored by its expiry unix time, so ActiveCount is a single ZCOUNT
// over (now, +inf) with no background sweep required.
type RedisStreamPresence struct {
	client *redis.Client
}

func NewRedisStreamPresence(client *redis.Client) *RedisStreamPresence {
	return &RedisStreamPresence{client: client}
}

func (r *RedisStreamPresence) Heartbeat(ctx context.Context, streamID string, ttl time.Duration) error {
	expiry := float64(time.Now().Add(ttl).Unix())
	return r.client.ZAdd(ctx, activeStreamsKey, redis.Z{Score: expiry, Member: streamID}).Err()
}

func (r *RedisStreamPresence) Release(ctx context.Context, streamID string) error {
	return r.client.ZRem(ctx, activeStreamsKey, streamID).Err()
}

func (r *RedisStreamPresence) ActiveCount(ctx context.Context) (int, error) {
	now := float64(time.Now().Unix())
	count, err := r.client.ZCount(ctx, activeStreamsKey, fmt.Sprintf("(%f", now), "+inf").Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *RedisStreamPresence) Close() error {
	return r.client.Close()
}

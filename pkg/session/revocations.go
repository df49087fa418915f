package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryRevocations keeps revoked session IDs in a bounded in-process cache.
// Entries expire after the session TTL, by which time the token itself has expired.
type MemoryRevocations struct {
	cache *lru.LRU[string, time.Time]
	now   func() time.Time
}

// NewMemoryRevocations creates an in-memory revocation store
func NewMemoryRevocations(capacity int, ttl time.Duration) *MemoryRevocations {
	return &MemoryRevocations{
		cache: lru.NewLRU[string, time.Time](capacity, nil, ttl),
		now:   time.Now,
	}
}

// Revoke records sessionID as revoked until the given time
func (s *MemoryRevocations) Revoke(ctx context.Context, sessionID string, until time.Time) error {
	s.cache.Add(sessionID, until)
	return nil
}

// IsRevoked reports whether sessionID was revoked and has not expired yet
func (s *MemoryRevocations) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	until, ok := s.cache.Get(sessionID)
	if !ok {
		return false, nil
	}
	return s.now().Before(until), nil
}

// Len returns the number of tracked revocations
func (s *MemoryRevocations) Len() int {
	return s.cache.Len()
}

// RedisRevocations keeps revoked session IDs in Redis so every replica sees sign-outs
type RedisRevocations struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRevocations creates a Redis-backed revocation store
func NewRedisRevocations(client *redis.Client) *RedisRevocations {
	return &RedisRevocations{
		client: client,
		prefix: "session:revoked:",
		now:    time.Now,
	}
}

// Revoke records sessionID as revoked; the key expires with the session
func (s *RedisRevocations) Revoke(ctx context.Context, sessionID string, until time.Time) error {
	ttl := until.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.prefix+sessionID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// IsRevoked reports whether sessionID was revoked
func (s *RedisRevocations) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed: %w", err)
	}
	return n > 0, nil
}

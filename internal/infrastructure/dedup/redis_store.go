package dedup

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"TubeArticles/internal/domain"
	"TubeArticles/internal/ports"
)

// DefaultRedisKey is the set holding processed video IDs.
const DefaultRedisKey = "tubearticles:processed_videos"

// RedisStore keeps processed video IDs in a Redis set. SADD is atomic, so
// concurrent monitors never need local locking.
type RedisStore struct {
	client *redis.Client
	key    string
}

var _ ports.DedupStore = (*RedisStore)(nil)

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Ping verifies connectivity at startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping redis: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Contains reports whether videoID was already processed.
func (s *RedisStore) Contains(ctx context.Context, videoID string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key, videoID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: sismember: %w", domain.ErrStoreUnavailable, err)
	}
	return ok, nil
}

// Add records videoID.
func (s *RedisStore) Add(ctx context.Context, videoID string) error {
	if err := s.client.SAdd(ctx, s.key, videoID).Err(); err != nil {
		return fmt.Errorf("%w: sadd: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

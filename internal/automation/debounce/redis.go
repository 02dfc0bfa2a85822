package debounce

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultVersionTTL bounds how long an orphaned counter can linger. It must
// exceed the largest scheduling delay plus retry backoff; 24h is comfortably
// above both.
const defaultVersionTTL = 24 * time.Hour

// RedisVersionStore keeps debounce counters in Redis with a TTL.
type RedisVersionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisVersionStore(client *redis.Client) *RedisVersionStore {
	return &RedisVersionStore{client: client, ttl: defaultVersionTTL}
}

func (s *RedisVersionStore) Increment(ctx context.Context, key string) (int64, error) {
	version, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	// TTL is set on first use; later increments keep the original deadline,
	// which is fine because the deadline only guards against orphans.
	if version == 1 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return 0, err
		}
	}

	return version, nil
}

func (s *RedisVersionStore) Get(ctx context.Context, key string) (int64, bool, error) {
	version, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return version, true, nil
}

func (s *RedisVersionStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

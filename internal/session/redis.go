package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"session-auth/internal/model"
)

type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Bind(ctx context.Context, userID int64, kind Kind, token string, ttl time.Duration) error {
	if err := s.client.Set(ctx, Key(userID, kind), token, ttl).Err(); err != nil {
		return fmt.Errorf("bind %s: %w: %w", kind, model.ErrUpstreamUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Lookup(ctx context.Context, userID int64, kind Kind) (string, bool, error) {
	value, err := s.client.Get(ctx, Key(userID, kind)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup %s: %w: %w", kind, model.ErrUpstreamUnavailable, err)
	}
	return value, true, nil
}

func (s *RedisStore) Unbind(ctx context.Context, userID int64, kind Kind) error {
	if err := s.client.Del(ctx, Key(userID, kind)).Err(); err != nil {
		return fmt.Errorf("unbind %s: %w: %w", kind, model.ErrUpstreamUnavailable, err)
	}
	return nil
}

// TTL reports the remaining lifetime of a binding; zero when absent.
func (s *RedisStore) TTL(ctx context.Context, userID int64, kind Kind) (time.Duration, error) {
	ttl, err := s.client.PTTL(ctx, Key(userID, kind)).Result()
	if err != nil {
		return 0, fmt.Errorf("ttl %s: %w: %w", kind, model.ErrUpstreamUnavailable, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"shopcore/pkg/sentinel"
)

const tokenKeyPrefix = "lifecycle-token:"

// Redis stores token keys with SET EX and consumes them atomically with
// GETDEL, so two concurrent redemptions can never both succeed. This is the
// production implementation for multi-instance deployments.
type Redis struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed token store.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Put(ctx context.Context, key string, ttl time.Duration) error {
	// Store "1" as a simple marker; the key existence is what matters.
	if err := s.client.Set(ctx, tokenKeyPrefix+key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

func (s *Redis) Consume(ctx context.Context, key string) error {
	err := s.client.GetDel(ctx, tokenKeyPrefix+key).Err()
	if errors.Is(err, redis.Nil) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	return nil
}

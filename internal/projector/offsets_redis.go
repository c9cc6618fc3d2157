package projector

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisOffsets stores each projector's offsets in one hash,
// "<prefix><name>", with a field per key.
type RedisOffsets struct {
	client *redis.Client
	prefix string
}

func NewRedisOffsets(client *redis.Client) *RedisOffsets {
	return &RedisOffsets{client: client, prefix: "projector:offsets:"}
}

func (s *RedisOffsets) Read(ctx context.Context, name, key string) (int64, error) {
	v, err := s.client.HGet(ctx, s.prefix+name, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read offset: %w", err)
	}
	return v, nil
}

func (s *RedisOffsets) Upsert(ctx context.Context, name, key string, offset int64) error {
	if err := s.client.HSet(ctx, s.prefix+name, key, offset).Err(); err != nil {
		return fmt.Errorf("upsert offset: %w", err)
	}
	return nil
}

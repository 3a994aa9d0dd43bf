package idempotency

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	rdb redis.Cmdable
}

func NewRedisStore(rdb redis.Cmdable) *RedisStore { return &RedisStore{rdb: rdb} }

func (s *RedisStore) Claim(ctx context.Context, key string) (string, bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, pending, TTLPending).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		ok, err = s.rdb.SetNX(ctx, key, pending, TTLPending).Result()
		return "", ok && err == nil, err
	}
	if err != nil {
		return "", false, err
	}
	if v == pending {
		return "", false, ErrInFlight
	}
	return v, false, nil
}

func (s *RedisStore) Complete(ctx context.Context, key, orderID string) error {
	return s.rdb.Set(ctx, key, orderID, TTLResult).Err()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

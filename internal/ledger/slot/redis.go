package slot

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Redis guarda cada slot em uma chave "ledger:slot:{key}" sem TTL
type Redis struct {
	Client *redis.Client
}

func NewRedis(c *redis.Client) *Redis { return &Redis{Client: c} }

func redisKey(key string) string { return "ledger:slot:" + key }

func (r *Redis) Read(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.Client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *Redis) Write(ctx context.Context, key string, blob []byte) error {
	return r.Client.Set(ctx, redisKey(key), blob, 0).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.Client.Del(ctx, redisKey(key)).Err()
}

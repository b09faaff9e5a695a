package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache guarda challenges e reels em JSON no Redis
type Cache struct {
	R   *redis.Client
	TTL time.Duration
}

func keyChallenge(id string) string { return "catalog:challenge:" + id }
func keyReel(id string) string      { return "catalog:reel:" + id }
func keyReels(id string) string     { return "catalog:reels:" + id }

func (c *Cache) get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.R.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

func (c *Cache) set(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, key, b, c.TTL).Err()
}

// Cached lê do cache primeiro e cai no Repo em caso de miss, populando o cache
type Cached struct {
	Repo  Source
	Cache *Cache
}

func (s *Cached) GetChallenge(ctx context.Context, id string) (Challenge, error) {
	var c Challenge
	if ok, _ := s.Cache.get(ctx, keyChallenge(id), &c); ok {
		return c, nil
	}
	c, err := s.Repo.GetChallenge(ctx, id)
	if err != nil {
		return Challenge{}, err
	}
	_ = s.Cache.set(ctx, keyChallenge(id), c)
	return c, nil
}

func (s *Cached) GetReel(ctx context.Context, id string) (Reel, error) {
	var r Reel
	if ok, _ := s.Cache.get(ctx, keyReel(id), &r); ok {
		return r, nil
	}
	r, err := s.Repo.GetReel(ctx, id)
	if err != nil {
		return Reel{}, err
	}
	_ = s.Cache.set(ctx, keyReel(id), r)
	return r, nil
}

func (s *Cached) ListReels(ctx context.Context, challengeID string) ([]Reel, error) {
	var reels []Reel
	if ok, _ := s.Cache.get(ctx, keyReels(challengeID), &reels); ok {
		return reels, nil
	}
	reels, err := s.Repo.ListReels(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	_ = s.Cache.set(ctx, keyReels(challengeID), reels)
	return reels, nil
}

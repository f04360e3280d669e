package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"caissepro/backend/internal/domain"
)

const promotionKeyPrefix = "caissepro:promo:"

type RedisPromotionCache struct {
	client *redis.Client
}

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedisPromotionCache(client *redis.Client) *RedisPromotionCache {
	return &RedisPromotionCache{client: client}
}

func (c *RedisPromotionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisPromotionCache) Close() error {
	return c.client.Close()
}

func (c *RedisPromotionCache) Get(ctx context.Context, code string) (*domain.Promotion, bool, error) {
	val, err := c.client.Get(ctx, promotionKeyPrefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var promo domain.Promotion
	if err := json.Unmarshal(val, &promo); err != nil {
		return nil, false, err
	}
	return &promo, true, nil
}

func (c *RedisPromotionCache) Set(ctx context.Context, code string, value *domain.Promotion, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, promotionKeyPrefix+code, payload, ttl).Err()
}

func (c *RedisPromotionCache) Delete(ctx context.Context, code string) error {
	return c.client.Del(ctx, promotionKeyPrefix+code).Err()
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
)

type RedisRepository struct {
	client *redis.Client
	config *config.RedisConfig
}

func NewRedisRepository(cfg *config.RedisConfig) *RedisRepository {
	return &RedisRepository{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}),
		config: cfg,
	}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisRepository) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

func (r *RedisRepository) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// Cart snapshots are a read-side convenience keyed by the cart's owner, so
// a read can consult the cache before knowing the cart id. The database
// stays authoritative and a cache miss just falls through to it.

func cartKey(owner string) string {
	return fmt.Sprintf("cart:%s", owner)
}

func (r *RedisRepository) CacheCart(ctx context.Context, cart *models.Cart) error {
	owner := cart.OwnerKey()
	if owner == "" {
		return nil
	}
	return r.SetJSON(ctx, cartKey(owner), cart, 30*time.Minute)
}

func (r *RedisRepository) GetCachedCart(ctx context.Context, owner string) (*models.Cart, error) {
	var cart models.Cart
	err := r.GetJSON(ctx, cartKey(owner), &cart)
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *RedisRepository) InvalidateCart(ctx context.Context, owner string) error {
	return r.Del(ctx, cartKey(owner))
}

// Session tokens map an opaque bearer token to a user id.

func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

func (r *RedisRepository) StoreSession(ctx context.Context, token, userID string, ttl time.Duration) error {
	return r.client.Set(ctx, sessionKey(token), userID, ttl).Err()
}

func (r *RedisRepository) SessionUserID(ctx context.Context, token string) (string, error) {
	userID, err := r.client.Get(ctx, sessionKey(token)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (r *RedisRepository) DeleteSession(ctx context.Context, token string) error {
	return r.Del(ctx, sessionKey(token))
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/storefront/internal/core/domain"
)

const productKeyPrefix = "product:"

// RedisAdapter caches catalog reads. Stock shown from the cache may lag;
// placement always reads the database under lock.
type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client, ttl time.Duration) *RedisAdapter {
	return &RedisAdapter{client: client, ttl: ttl}
}

func productKey(productID int64) string {
	return productKeyPrefix + strconv.FormatInt(productID, 10)
}

func (r *RedisAdapter) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	data, err := r.client.Get(ctx, productKey(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var p domain.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode cached product %d: %w", productID, err)
	}
	return &p, nil
}

func (r *RedisAdapter) SetProduct(ctx context.Context, product domain.Product) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("encode product %d: %w", product.ID, err)
	}
	return r.client.Set(ctx, productKey(product.ID), data, r.ttl).Err()
}

func (r *RedisAdapter) InvalidateProducts(ctx context.Context, productIDs ...int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		keys = append(keys, productKey(id))
	}
	return r.client.Del(ctx, keys...).Err()
}

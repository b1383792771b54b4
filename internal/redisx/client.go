package redisx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// New создаёт Redis-клиент для дедупликации событий и кэшей.
func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// MarkOnce атомарно помечает ключ обработанным. Возвращает true, если
// ключ был свободен и пометка принадлежит вызывающему.
func MarkOnce(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) (bool, error) {
	return rdb.SetNX(ctx, key, "1", ttl).Result()
}

// CacheOrderStatus сохраняет статус заказа в кэше со стандартным TTL.
func CacheOrderStatus(ctx context.Context, rdb *redis.Client, orderID, status string) error {
	return rdb.Set(ctx, OrderStatusKey(orderID), status, TTLStatusCache).Err()
}

// CachedOrderStatus возвращает закэшированный статус заказа либо пустую
// строку, если ключ отсутствует или истёк.
func CachedOrderStatus(ctx context.Context, rdb *redis.Client, orderID string) (string, error) {
	status, err := rdb.Get(ctx, OrderStatusKey(orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return status, err
}

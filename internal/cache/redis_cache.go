package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/mmo-level/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisCacheConfig параметры Redis кеша
type RedisCacheConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// DefaultTTL применяется при ttl == 0; MaxTTL ограничивает сверху
	DefaultTTL time.Duration
	MaxTTL     time.Duration
}

// RedisCache реализует CacheRepo поверх Redis.
// Кеш общий для всех узлов, поэтому инвалидация через NATS ему не нужна.
type RedisCache struct {
	counters
	client *redis.Client
	config RedisCacheConfig
}

// NewRedisCache подключается к Redis и проверяет соединение
func NewRedisCache(ctx context.Context, config RedisCacheConfig) (*RedisCache, error) {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 30 * time.Second
	}
	if config.MaxTTL <= 0 {
		config.MaxTTL = time.Hour
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "level:cache:"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info("Redis cache initialized: %s", config.Addr)
	return &RedisCache{client: rdb, config: config}, nil
}

func (r *RedisCache) key(key string) string {
	return r.config.KeyPrefix + key
}

// Get получает значение по ключу
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == nil {
		r.hit()
		return val, nil
	}

	r.miss()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return nil, fmt.Errorf("redis get error: %w", err)
}

// Set сохраняет значение, ограничивая TTL сверху
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ttl = r.ttl(ttl)
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (r *RedisCache) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = r.config.DefaultTTL
	}
	if ttl > r.config.MaxTTL {
		ttl = r.config.MaxTTL
	}
	return ttl
}

// Delete удаляет ключ
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) GetMetrics() CacheMetrics { return r.snapshot() }

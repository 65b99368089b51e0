package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// CacheRepo горячий кеш последних позиций перед холодным хранилищем.
//
// Использование:
//
//	c := NewLocalCache(time.Minute)
//	data, err := c.Get(ctx, "pos:42")
//	err = c.Set(ctx, "pos:42", data, 30*time.Second)
//	err = c.Delete(ctx, "pos:42")
type CacheRepo interface {
	// Get возвращает ErrCacheMiss, если ключа нет или он истёк.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение. TTL = 0 означает TTL по умолчанию.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete удаляет ключ; отсутствие ключа не ошибка.
	Delete(ctx context.Context, key string) error

	Close() error

	GetMetrics() CacheMetrics
}

// CacheInvalidator рассылает инвалидацию ключей между узлами.
type CacheInvalidator interface {
	// PublishInvalidation отправляет уведомление остальным узлам.
	PublishInvalidation(ctx context.Context, key string) error

	// SubscribeInvalidations вызывает handler для чужих уведомлений.
	SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error

	Close() error
}

// InvalidationHandler обрабатывает уведомления об инвалидации кеша.
type InvalidationHandler func(key string) error

// CacheMetrics снимок счётчиков кеша.
type CacheMetrics struct {
	TotalRequests int64   `json:"total_requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	HitRatio      float64 `json:"hit_ratio"`
}

// ErrCacheMiss промах кеша.
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss проверяет, является ли ошибка промахом кеша.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// counters общие счётчики попаданий
type counters struct {
	hits   int64
	misses int64
}

func (c *counters) hit()  { atomic.AddInt64(&c.hits, 1) }
func (c *counters) miss() { atomic.AddInt64(&c.misses, 1) }

func (c *counters) snapshot() CacheMetrics {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	m := CacheMetrics{
		TotalRequests: hits + misses,
		CacheHits:     hits,
		CacheMisses:   misses,
	}
	if m.TotalRequests > 0 {
		m.HitRatio = float64(hits) / float64(m.TotalRequests)
	}
	return m
}

package cache

import (
	"context"
	"sync"
	"time"
)

// LocalCache кеш в памяти процесса с истечением по TTL.
// Истёкшие записи удаляются при чтении и при Sweep.
type LocalCache struct {
	counters
	mu         sync.RWMutex
	items      map[string]localItem
	defaultTTL time.Duration
	now        func() time.Time
}

type localItem struct {
	value     []byte
	expiresAt time.Time
}

// NewLocalCache создает кеш; defaultTTL <= 0 означает 30 секунд
func NewLocalCache(defaultTTL time.Duration) *LocalCache {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Second
	}
	return &LocalCache{
		items:      make(map[string]localItem),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func (l *LocalCache) Get(ctx context.Context, key string) ([]byte, error) {
	l.mu.RLock()
	item, ok := l.items[key]
	l.mu.RUnlock()

	if !ok {
		l.miss()
		return nil, ErrCacheMiss
	}
	if !l.now().Before(item.expiresAt) {
		l.mu.Lock()
		// запись могла обновиться между RUnlock и Lock
		if cur, still := l.items[key]; still && !l.now().Before(cur.expiresAt) {
			delete(l.items, key)
		}
		l.mu.Unlock()
		l.miss()
		return nil, ErrCacheMiss
	}

	l.hit()
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

func (l *LocalCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = l.defaultTTL
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	l.mu.Lock()
	l.items[key] = localItem{value: stored, expiresAt: l.now().Add(ttl)}
	l.mu.Unlock()
	return nil
}

func (l *LocalCache) Delete(ctx context.Context, key string) error {
	l.mu.Lock()
	delete(l.items, key)
	l.mu.Unlock()
	return nil
}

// Sweep удаляет истёкшие записи и возвращает их количество
func (l *LocalCache) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, item := range l.items {
		if !now.Before(item.expiresAt) {
			delete(l.items, key)
			removed++
		}
	}
	return removed
}

// Len возвращает количество записей, включая ещё не удалённые истёкшие
func (l *LocalCache) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

func (l *LocalCache) Close() error { return nil }

func (l *LocalCache) GetMetrics() CacheMetrics { return l.snapshot() }

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/annel0/mmo-level/internal/cache"
	"github.com/annel0/mmo-level/internal/logging"
)

// CachedPositionRepo добавляет к хранилищу горячий кеш со сквозной записью.
// Ошибки кеша не ломают операции: они только логируются, источником истины остаётся repo.
type CachedPositionRepo struct {
	repo        PositionRepo
	cache       cache.CacheRepo
	invalidator cache.CacheInvalidator
	ttl         time.Duration
	log         *logging.Logger

	// versions растёт при каждой записи ключа; чтение с промахом кладёт
	// значение в кеш, только если версия не изменилась за время чтения
	mu       sync.Mutex
	versions map[string]uint64
}

// NewCachedPositionRepo оборачивает repo кешем. invalidator может быть nil;
// иначе чужие инвалидации удаляют ключи из кеша до отмены ctx.
func NewCachedPositionRepo(ctx context.Context, repo PositionRepo, c cache.CacheRepo, invalidator cache.CacheInvalidator, ttl time.Duration) (*CachedPositionRepo, error) {
	r := &CachedPositionRepo{
		repo:        repo,
		cache:       c,
		invalidator: invalidator,
		ttl:         ttl,
		log:         logging.GetStorageLogger(),
		versions:    make(map[string]uint64),
	}

	if invalidator != nil {
		err := invalidator.SubscribeInvalidations(ctx, func(key string) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.versions[key]++
			return c.Delete(context.Background(), key)
		})
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

func cacheKey(userID uint64) string {
	return "pos:" + strconv.FormatUint(userID, 10)
}

func (r *CachedPositionRepo) Save(ctx context.Context, userID uint64, rec PositionRecord) error {
	rec = stamp(rec)
	if err := r.repo.Save(ctx, userID, rec); err != nil {
		return err
	}
	r.write(ctx, userID, rec)
	r.invalidate(ctx, userID)
	return nil
}

func (r *CachedPositionRepo) Load(ctx context.Context, userID uint64) (PositionRecord, bool, error) {
	if err := validateUserID(userID); err != nil {
		return PositionRecord{}, false, err
	}

	key := cacheKey(userID)
	version := r.version(key)

	data, err := r.cache.Get(ctx, key)
	if err == nil {
		var rec PositionRecord
		if err := json.Unmarshal(data, &rec); err == nil {
			return rec, true, nil
		}
		r.log.Warn("⚠️ Повреждённая запись кеша %s, удаляем", key)
		_ = r.cache.Delete(ctx, key)
	} else if !cache.IsCacheMiss(err) {
		r.log.Warn("⚠️ Кеш недоступен: %v", err)
	}

	rec, found, err := r.repo.Load(ctx, userID)
	if err != nil || !found {
		return rec, found, err
	}
	r.fill(ctx, userID, version, rec)
	return rec, true, nil
}

func (r *CachedPositionRepo) Delete(ctx context.Context, userID uint64) error {
	err := r.repo.Delete(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	r.mu.Lock()
	r.versions[cacheKey(userID)]++
	cerr := r.cache.Delete(ctx, cacheKey(userID))
	r.mu.Unlock()
	if cerr != nil {
		r.log.Warn("⚠️ Не удалось удалить %s из кеша: %v", cacheKey(userID), cerr)
	}
	r.invalidate(ctx, userID)
	return err
}

func (r *CachedPositionRepo) BatchSave(ctx context.Context, positions map[uint64]PositionRecord) error {
	stamped := make(map[uint64]PositionRecord, len(positions))
	for userID, rec := range positions {
		stamped[userID] = stamp(rec)
	}
	if err := r.repo.BatchSave(ctx, stamped); err != nil {
		return err
	}
	for userID, rec := range stamped {
		r.write(ctx, userID, rec)
		r.invalidate(ctx, userID)
	}
	return nil
}

// Close закрывает invalidator, кеш и хранилище
func (r *CachedPositionRepo) Close() error {
	var errs []error
	if r.invalidator != nil {
		errs = append(errs, r.invalidator.Close())
	}
	errs = append(errs, r.cache.Close(), r.repo.Close())
	return errors.Join(errs...)
}

// Unwrap возвращает хранилище под кешем
func (r *CachedPositionRepo) Unwrap() PositionRepo { return r.repo }

// CacheMetrics возвращает счётчики кеша
func (r *CachedPositionRepo) CacheMetrics() cache.CacheMetrics { return r.cache.GetMetrics() }

func (r *CachedPositionRepo) version(key string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.versions[key]
}

// write кладёт в кеш только что сохранённую запись и делает устаревшими
// все чтения, начатые до записи
func (r *CachedPositionRepo) write(ctx context.Context, userID uint64, rec PositionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[cacheKey(userID)]++
	r.put(ctx, userID, rec)
}

// fill кладёт в кеш прочитанную из хранилища запись, если после начала
// чтения ключ никто не записывал
func (r *CachedPositionRepo) fill(ctx context.Context, userID uint64, version uint64, rec PositionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.versions[cacheKey(userID)] != version {
		return
	}
	r.put(ctx, userID, rec)
}

func (r *CachedPositionRepo) put(ctx context.Context, userID uint64, rec PositionRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKey(userID), data, r.ttl); err != nil {
		r.log.Warn("⚠️ Не удалось записать %s в кеш: %v", cacheKey(userID), err)
	}
}

func (r *CachedPositionRepo) invalidate(ctx context.Context, userID uint64) {
	if r.invalidator == nil {
		return
	}
	if err := r.invalidator.PublishInvalidation(ctx, cacheKey(userID)); err != nil {
		r.log.Warn("⚠️ Не удалось разослать инвалидацию %s: %v", cacheKey(userID), err)
	}
}

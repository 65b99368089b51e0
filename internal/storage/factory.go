package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/mmo-level/internal/cache"
	"github.com/annel0/mmo-level/internal/config"
	"github.com/annel0/mmo-level/internal/logging"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Имена бэкендов хранения
const (
	BackendMemory = "memory"
	BackendMaria  = "maria"
	BackendRedis  = "redis"
	BackendBadger = "badger"
	BackendMongo  = "mongo"
)

// ErrUnknownBackend возвращается для неизвестного имени бэкенда
var ErrUnknownBackend = errors.New("неизвестный бэкенд хранения")

// NewPositionRepo создает репозиторий по конфигурации и оборачивает его метриками в реестре reg.
// Если внешний бэкенд недоступен, используется память (как fallback для CI/разработки).
// Второе значение: имя фактически выбранного бэкенда.
func NewPositionRepo(ctx context.Context, cfg config.StorageConfig, reg prometheus.Registerer) (PositionRepo, string, error) {
	log := logging.GetStorageLogger()

	repo, err := openBackend(ctx, cfg)
	backend := cfg.Backend
	if backend == "" {
		backend = BackendMemory
	}

	if err != nil {
		if backend == BackendBadger || errors.Is(err, ErrUnknownBackend) {
			// Ошибка конфигурации, а не сети: память здесь не поможет
			return nil, "", err
		}
		log.Warn("⚠️ Бэкенд %s недоступен (%v), используется память", backend, err)
		repo, backend = NewMemoryPositionRepo(), BackendMemory
	}

	if backend != BackendMemory {
		repo = withCache(ctx, repo, cfg)
	}

	log.Info("💾 Хранилище позиций: %s", backend)
	return Instrument(repo, backend, reg), backend, nil
}

// withCache оборачивает repo кешем из cfg.Cache. Недоступный кеш не фатален.
func withCache(ctx context.Context, repo PositionRepo, cfg config.StorageConfig) PositionRepo {
	log := logging.GetStorageLogger()

	var c cache.CacheRepo
	switch cfg.Cache.Backend {
	case "":
		return repo
	case "local":
		c = cache.NewLocalCache(cfg.Cache.TTL())
	case "redis":
		addr := cfg.Cache.RedisAddr
		if addr == "" {
			addr = cfg.Redis.Addr
		}
		rc, err := cache.NewRedisCache(ctx, cache.RedisCacheConfig{
			Addr:       addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			DefaultTTL: cfg.Cache.TTL(),
		})
		if err != nil {
			log.Warn("⚠️ Кеш Redis недоступен (%v), работаем без кеша", err)
			return repo
		}
		c = rc
	default:
		log.Warn("⚠️ Неизвестный бэкенд кеша %q, работаем без кеша", cfg.Cache.Backend)
		return repo
	}

	var inv cache.CacheInvalidator
	if cfg.Cache.InvalidationURL != "" {
		nodeID := cfg.Cache.NodeID
		if nodeID == "" {
			nodeID = uuid.NewString()
		}
		ni, err := cache.NewNATSInvalidator(cache.InvalidatorConfig{NATSURL: cfg.Cache.InvalidationURL}, nodeID)
		if err != nil {
			log.Warn("⚠️ NATS для инвалидации недоступен (%v), кеш только локальный", err)
		} else {
			inv = ni
		}
	}

	cached, err := NewCachedPositionRepo(ctx, repo, c, inv, cfg.Cache.TTL())
	if err != nil {
		log.Warn("⚠️ Кеш отключён: %v", err)
		if inv != nil {
			inv.Close()
		}
		c.Close()
		return repo
	}
	log.Info("⚡ Кеш позиций: %s (TTL %s)", cfg.Cache.Backend, cfg.Cache.TTL())
	return cached
}

func openBackend(ctx context.Context, cfg config.StorageConfig) (PositionRepo, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryPositionRepo(), nil
	case BackendMaria:
		return NewMariaPositionRepo(connectCtx, cfg.Maria.DSN)
	case BackendRedis:
		return NewRedisPositionRepo(connectCtx, RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	case BackendBadger:
		path := cfg.Badger.Path
		if path == "" {
			path = "data"
		}
		return NewBadgerPositionRepo(path)
	case BackendMongo:
		return NewMongoPositionRepo(connectCtx, MongoConfig{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/annel0/mmo-level/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни записей, 0 означает без истечения
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "level:pos:",
	}
}

// RedisPositionRepo хранит позиции игроков в Redis для быстрого доступа.
// Помимо JSON записи по ключу ведётся GEO индекс на каждое измерение.
type RedisPositionRepo struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisPositionRepo создаёт новый Redis репозиторий для позиций
func NewRedisPositionRepo(ctx context.Context, cfg RedisConfig) (*RedisPositionRepo, error) {
	def := DefaultRedisConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetStorageLogger().Info("🔴 Connected to Redis at %s", cfg.Addr)
	return &RedisPositionRepo{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.TTL,
	}, nil
}

func (r *RedisPositionRepo) key(userID uint64) string {
	return r.keyPrefix + strconv.FormatUint(userID, 10)
}

func (r *RedisPositionRepo) geoKey(dimension string) string {
	return r.keyPrefix + "geo:" + dimension
}

// Save сохраняет позицию игрока
func (r *RedisPositionRepo) Save(ctx context.Context, userID uint64, rec PositionRecord) error {
	return r.BatchSave(ctx, map[uint64]PositionRecord{userID: rec})
}

// Load получает позицию игрока
func (r *RedisPositionRepo) Load(ctx context.Context, userID uint64) (PositionRecord, bool, error) {
	if err := validateUserID(userID); err != nil {
		return PositionRecord{}, false, err
	}

	data, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if err == redis.Nil {
		return PositionRecord{}, false, nil
	} else if err != nil {
		return PositionRecord{}, false, fmt.Errorf("failed to get position: %w", err)
	}

	var rec PositionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return PositionRecord{}, false, fmt.Errorf("failed to unmarshal position: %w", err)
	}

	return rec, true, nil
}

// Delete удаляет позицию игрока вместе с записью в GEO индексе
func (r *RedisPositionRepo) Delete(ctx context.Context, userID uint64) error {
	rec, found, err := r.Load(ctx, userID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: пользователь %d", ErrNotFound, userID)
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key(userID))
	pipe.ZRem(ctx, r.geoKey(rec.Dimension), strconv.FormatUint(userID, 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}

	return nil
}

// BatchSave записывает позиции пайплайном и обновляет GEO индексы.
// Смена измерения удаляет игрока из GEO индекса старого измерения.
func (r *RedisPositionRepo) BatchSave(ctx context.Context, positions map[uint64]PositionRecord) error {
	if len(positions) == 0 {
		return nil
	}

	for userID, rec := range positions {
		if err := validateSave(userID, rec); err != nil {
			return fmt.Errorf("batch: %w", err)
		}
	}

	previous := r.previousDimensions(ctx, positions)

	pipe := r.client.Pipeline()
	for userID, rec := range positions {
		rec = stamp(rec)
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal position for %d: %w", userID, err)
		}

		member := strconv.FormatUint(userID, 10)
		pipe.Set(ctx, r.key(userID), data, r.ttl)

		if old, ok := previous[userID]; ok && old != rec.Dimension {
			pipe.ZRem(ctx, r.geoKey(old), member)
		}
		lon, lat := toGeo(float64(rec.X), float64(rec.Z))
		pipe.GeoAdd(ctx, r.geoKey(rec.Dimension), &redis.GeoLocation{
			Name:      member,
			Longitude: lon,
			Latitude:  lat,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// previousDimensions читает текущие измерения игроков, чтобы почистить GEO индексы.
// Ошибки чтения не фатальны: в худшем случае в старом индексе останется лишняя запись.
func (r *RedisPositionRepo) previousDimensions(ctx context.Context, positions map[uint64]PositionRecord) map[uint64]string {
	ids := make([]uint64, 0, len(positions))
	keys := make([]string, 0, len(positions))
	for userID := range positions {
		ids = append(ids, userID)
		keys = append(keys, r.key(userID))
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		logging.GetStorageLogger().Warn("⚠️ Failed to read previous positions: %v", err)
		return nil
	}

	result := make(map[uint64]string, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec PositionRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			continue
		}
		result[ids[i]] = rec.Dimension
	}
	return result
}

// Nearby возвращает userID игроков измерения в радиусе от точки (x, z), ближайшие первыми.
// Радиус в блоках.
func (r *RedisPositionRepo) Nearby(ctx context.Context, dimension string, x, z, radius float64) ([]uint64, error) {
	lon, lat := toGeo(x, z)
	names, err := r.client.GeoSearch(ctx, r.geoKey(dimension), &redis.GeoSearchQuery{
		Longitude:  lon,
		Latitude:   lat,
		Radius:     radius * geoMetersPerBlock,
		RadiusUnit: "m",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to search nearby players: %w", err)
	}

	result := make([]uint64, 0, len(names))
	for _, name := range names {
		id, err := strconv.ParseUint(name, 10, 64)
		if err != nil {
			continue
		}
		result = append(result, id)
	}
	return result, nil
}

// Close закрывает соединение с Redis
func (r *RedisPositionRepo) Close() error {
	return r.client.Close()
}

// Мир проецируется на окрестность (0°, 0°): 1 блок = 1 метр вдоль экватора.
const (
	geoMetersPerBlock = 1.0
	metersPerDegree   = 111319.49
)

// toGeo переводит координаты блоков X/Z в долготу/широту с ограничением диапазона
func toGeo(x, z float64) (lon, lat float64) {
	lon = clamp(x*geoMetersPerBlock/metersPerDegree, -180, 180)
	lat = clamp(z*geoMetersPerBlock/metersPerDegree, -85.05112878, 85.05112878)
	return lon, lat
}

// fromGeo обратное преобразование toGeo для координат внутри ограничений
func fromGeo(lon, lat float64) (x, z float64) {
	return lon * metersPerDegree / geoMetersPerBlock, lat * metersPerDegree / geoMetersPerBlock
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryPositionRepo реализует PositionRepo в памяти.
// Используется как fallback, когда внешнее хранилище недоступно,
// или для CI/локальной разработки без БД.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemoryPositionRepo struct {
	mu   sync.RWMutex
	data map[uint64]PositionRecord // userID -> позиция
}

// NewMemoryPositionRepo создает новый репозиторий позиций в памяти.
func NewMemoryPositionRepo() *MemoryPositionRepo {
	return &MemoryPositionRepo{
		data: make(map[uint64]PositionRecord),
	}
}

// Save сохраняет позицию игрока в памяти.
func (r *MemoryPositionRepo) Save(ctx context.Context, userID uint64, rec PositionRecord) error {
	if err := validateSave(userID, rec); err != nil {
		return err
	}

	// Проверяем контекст на отмену
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[userID] = stamp(rec)
	return nil
}

// Load загружает позицию игрока из памяти.
func (r *MemoryPositionRepo) Load(ctx context.Context, userID uint64) (PositionRecord, bool, error) {
	if err := validateUserID(userID); err != nil {
		return PositionRecord{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return PositionRecord{}, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.data[userID]
	return rec, exists, nil
}

// Delete удаляет сохраненную позицию игрока из памяти.
func (r *MemoryPositionRepo) Delete(ctx context.Context, userID uint64) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data[userID]; !exists {
		return fmt.Errorf("%w: пользователь %d", ErrNotFound, userID)
	}

	delete(r.data, userID)
	return nil
}

// BatchSave сохраняет позиции нескольких игроков в памяти.
// Запись атомарна: при ошибке валидации ничего не сохраняется.
func (r *MemoryPositionRepo) BatchSave(ctx context.Context, positions map[uint64]PositionRecord) error {
	if len(positions) == 0 {
		return nil // Нечего сохранять
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for userID, rec := range positions {
		if err := validateSave(userID, rec); err != nil {
			return fmt.Errorf("batch: %w", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, rec := range positions {
		r.data[userID] = stamp(rec)
	}

	return nil
}

// Nearby возвращает игроков измерения в радиусе radius блоков от (x, z), ближайшие первыми.
func (r *MemoryPositionRepo) Nearby(ctx context.Context, dimension string, x, z, radius float64) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type hit struct {
		id   uint64
		dist float64
	}

	r.mu.RLock()
	hits := make([]hit, 0)
	for userID, rec := range r.data {
		if rec.Dimension != dimension {
			continue
		}
		d := math.Hypot(float64(rec.X)-x, float64(rec.Z)-z)
		if d <= radius {
			hits = append(hits, hit{id: userID, dist: d})
		}
	}
	r.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].id < hits[j].id
	})
	result := make([]uint64, len(hits))
	for i, h := range hits {
		result[i] = h.id
	}
	return result, nil
}

// Close ничего не делает: ресурсов нет.
func (r *MemoryPositionRepo) Close() error { return nil }

// GetAllPositions возвращает копию всех сохраненных позиций (для отладки).
func (r *MemoryPositionRepo) GetAllPositions() map[uint64]PositionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[uint64]PositionRecord, len(r.data))
	for userID, rec := range r.data {
		result[userID] = rec
	}

	return result
}

// Count возвращает количество сохраненных позиций (для отладки).
func (r *MemoryPositionRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Clear очищает все сохраненные позиции (для тестов).
func (r *MemoryPositionRepo) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = make(map[uint64]PositionRecord)
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/annel0/mmo-level/internal/level"
)

var (
	// ErrInvalidUserID возвращается для userID == 0
	ErrInvalidUserID = errors.New("недействительный userID")
	// ErrNonFinite возвращается для координат NaN/Inf: их нельзя сохранить в JSON и FLOAT
	ErrNonFinite = errors.New("координаты должны быть конечными")
	// ErrNotFound возвращается Delete, если позиции нет
	ErrNotFound = errors.New("позиция не найдена")
)

// PositionRecord хранит сохраняемую форму позиции игрока.
// Ссылку на измерение сохранить нельзя, поэтому хранится его имя.
type PositionRecord struct {
	Dimension string    `json:"dimension" bson:"dimension"`
	X         float32   `json:"x" bson:"x"`
	Y         float32   `json:"y" bson:"y"`
	Z         float32   `json:"z" bson:"z"`
	Pitch     float32   `json:"pitch" bson:"pitch"`
	Yaw       float32   `json:"yaw" bson:"yaw"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// RecordFromPosition создает запись из позиции без направления взгляда.
// Позиция без измерения сохраняется с пустым именем.
func RecordFromPosition(pos level.Position) PositionRecord {
	rec := PositionRecord{
		X: pos.X(),
		Y: pos.Y(),
		Z: pos.Z(),
	}
	if dim := pos.Dimension(); dim != nil {
		rec.Dimension = dim.Name()
	}
	return rec
}

// RecordFromLocation создает запись из локации
func RecordFromLocation(loc level.Location) PositionRecord {
	rec := RecordFromPosition(loc.Position)
	rec.Pitch = loc.Pitch
	rec.Yaw = loc.Yaw
	return rec
}

// Location восстанавливает локацию в уровне lvl.
// Неизвестное измерение даёт локацию без измерения, координаты сохраняются.
func (r PositionRecord) Location(lvl *level.Level) level.Location {
	var dim *level.Dimension
	if lvl != nil && r.Dimension != "" {
		dim = lvl.Dimension(r.Dimension)
	}
	return level.NewLocation(dim, r.X, r.Y, r.Z, r.Pitch, r.Yaw)
}

// Position восстанавливает позицию в уровне lvl
func (r PositionRecord) Position(lvl *level.Level) level.Position {
	return r.Location(lvl).Position
}

// Validate проверяет, что запись можно сохранить
func (r PositionRecord) Validate() error {
	for _, f := range []float32{r.X, r.Y, r.Z, r.Pitch, r.Yaw} {
		d := float64(f)
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return fmt.Errorf("%w: (%v, %v, %v) pitch=%v yaw=%v", ErrNonFinite, r.X, r.Y, r.Z, r.Pitch, r.Yaw)
		}
	}
	return nil
}

// PositionRepo определяет интерфейс для сохранения и загрузки позиций игроков.
// Позиции привязаны к UserID (постоянный идентификатор аккаунта), а не к EntityID.
// Это позволяет сохранять позицию между сессиями игры.
type PositionRepo interface {
	// Save сохраняет позицию игрока в хранилище.
	Save(ctx context.Context, userID uint64, rec PositionRecord) error

	// Load загружает позицию игрока из хранилища.
	// Возвращает:
	//   PositionRecord - позиция игрока
	//   bool - true если позиция найдена, false если первый вход
	//   error - ошибка при загрузке
	Load(ctx context.Context, userID uint64) (PositionRecord, bool, error)

	// Delete удаляет сохраненную позицию игрока (для тестов или сброса).
	// Возвращает ErrNotFound, если позиции не было.
	Delete(ctx context.Context, userID uint64) error

	// BatchSave сохраняет позиции нескольких игроков одновременно (для автосохранения).
	BatchSave(ctx context.Context, positions map[uint64]PositionRecord) error

	// Close освобождает соединения бэкенда.
	Close() error
}

// NearbySearcher ищет игроков рядом с точкой по сохранённым позициям.
// Реализуют MemoryPositionRepo и RedisPositionRepo (GEO-индекс).
type NearbySearcher interface {
	Nearby(ctx context.Context, dimension string, x, z, radius float64) ([]uint64, error)
}

// AsNearbySearcher ищет NearbySearcher в repo и его обёртках (Unwrap)
func AsNearbySearcher(repo PositionRepo) (NearbySearcher, bool) {
	for repo != nil {
		if s, ok := repo.(NearbySearcher); ok {
			return s, true
		}
		u, ok := repo.(interface{ Unwrap() PositionRepo })
		if !ok {
			return nil, false
		}
		repo = u.Unwrap()
	}
	return nil, false
}

// validateSave проверяет пару userID/запись перед записью в любой бэкенд
func validateSave(userID uint64, rec PositionRecord) error {
	if userID == 0 {
		return fmt.Errorf("%w: %d", ErrInvalidUserID, userID)
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("пользователь %d: %w", userID, err)
	}
	return nil
}

func validateUserID(userID uint64) error {
	if userID == 0 {
		return fmt.Errorf("%w: %d", ErrInvalidUserID, userID)
	}
	return nil
}

// stamp проставляет время обновления, если оно не задано
func stamp(rec PositionRecord) PositionRecord {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	return rec
}

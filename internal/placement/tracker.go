package placement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/annel0/mmo-level/internal/eventbus"
	"github.com/annel0/mmo-level/internal/level"
	"github.com/annel0/mmo-level/internal/logging"
	"github.com/annel0/mmo-level/internal/storage"
	"github.com/annel0/mmo-level/internal/vec"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrNotOnline          = errors.New("игрок не в сети")
	ErrAlreadyOnline      = errors.New("игрок уже в сети")
	ErrUnknownDimension   = errors.New("неизвестное измерение")
	ErrOutOfBounds        = errors.New("координата Y вне границ измерения")
	ErrInvalidCoordinates = errors.New("координаты должны быть конечными")
	ErrNoSpawn            = errors.New("точка появления не задана")
)

// Config параметры трекера
type Config struct {
	Level     *level.Level
	Repo      storage.PositionRepo
	Publisher *eventbus.PositionPublisher
	Autosave  time.Duration
	// Registerer для метрик трекера; если nil, метрики не регистрируются
	Registerer prometheus.Registerer
}

// Tracker хранит текущие локации игроков в сети, сохраняет их в репозиторий
// и публикует события перемещения.
//
// Уровень владеет измерениями; трекер лишь держит ссылки на них в локациях.
type Tracker struct {
	level     *level.Level
	repo      storage.PositionRepo
	publisher *eventbus.PositionPublisher
	autosave  time.Duration
	log       *logging.Logger

	mu     sync.RWMutex
	online map[uint64]*level.Location

	onlineGauge prometheus.Gauge
	moves       prometheus.Counter
	teleports   prometheus.Counter
}

// NewTracker создает трекер
func NewTracker(cfg Config) *Tracker {
	if cfg.Autosave <= 0 {
		cfg.Autosave = 30 * time.Second
	}

	t := &Tracker{
		level:     cfg.Level,
		repo:      cfg.Repo,
		publisher: cfg.Publisher,
		autosave:  cfg.Autosave,
		log:       logging.GetPlacementLogger(),
		online:    make(map[uint64]*level.Location),
		onlineGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "placement",
			Name:      "online_players",
			Help:      "Количество игроков в сети.",
		}),
		moves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "placement",
			Name:      "block_moves_total",
			Help:      "Переходы игроков в другой блок.",
		}),
		teleports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "placement",
			Name:      "teleports_total",
			Help:      "Телепортации игроков между измерениями и внутри них.",
		}),
	}

	if cfg.Registerer != nil {
		cfg.Registerer.MustRegister(t.onlineGauge, t.moves, t.teleports)
	}
	return t
}

// Join загружает сохранённую локацию игрока или ставит его в точку появления.
// Если сохранённое измерение больше не существует, игрок тоже попадает в точку появления.
func (t *Tracker) Join(ctx context.Context, userID uint64) (level.Location, error) {
	t.mu.RLock()
	_, online := t.online[userID]
	t.mu.RUnlock()
	if online {
		return level.Location{}, fmt.Errorf("%w: %d", ErrAlreadyOnline, userID)
	}

	rec, found, err := t.repo.Load(ctx, userID)
	if err != nil {
		return level.Location{}, fmt.Errorf("загрузка позиции %d: %w", userID, err)
	}

	var loc level.Location
	if found {
		loc = rec.Location(t.level)
		if !loc.HasDimension() {
			t.log.Warn("⚠️ Измерение %q игрока %d не найдено, перенос в точку появления", rec.Dimension, userID)
			found = false
		}
	}
	if !found {
		spawn := t.level.Spawn()
		if !spawn.HasDimension() {
			return level.Location{}, ErrNoSpawn
		}
		loc = level.LocationAt(spawn)
	}

	t.mu.Lock()
	if _, exists := t.online[userID]; exists {
		t.mu.Unlock()
		return level.Location{}, fmt.Errorf("%w: %d", ErrAlreadyOnline, userID)
	}
	stored := loc
	t.online[userID] = &stored
	t.onlineGauge.Set(float64(len(t.online)))
	t.mu.Unlock()

	t.log.Info("➕ Игрок %d вошёл: %s", userID, loc.String())
	return loc, nil
}

// Location возвращает текущую локацию игрока
func (t *Tracker) Location(userID uint64) (level.Location, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	loc, ok := t.online[userID]
	if !ok {
		return level.Location{}, false
	}
	return *loc, true
}

// Online возвращает отсортированный список игроков в сети
func (t *Tracker) Online() []uint64 {
	t.mu.RLock()
	ids := make([]uint64, 0, len(t.online))
	for id := range t.online {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Move перемещает игрока внутри текущего измерения.
// PositionChanged публикуется только при смене блока.
func (t *Tracker) Move(ctx context.Context, userID uint64, x, y, z float32) (level.Location, error) {
	target := vec.NewVec3f(x, y, z)
	if !target.IsFinite() {
		return level.Location{}, ErrInvalidCoordinates
	}

	t.mu.Lock()
	loc, ok := t.online[userID]
	if !ok {
		t.mu.Unlock()
		return level.Location{}, fmt.Errorf("%w: %d", ErrNotOnline, userID)
	}

	dim := loc.Dimension()
	if dim != nil && !dim.ContainsY(vec.FloorToInt(y)) {
		t.mu.Unlock()
		return level.Location{}, fmt.Errorf("%w: %s y=%v", ErrOutOfBounds, dim.Name(), y)
	}

	fromBlock := loc.BlockPos()
	from := loc.String()
	loc.SetVec(target)
	result := *loc
	t.mu.Unlock()

	logging.LogPositionChange(userID, from, result.String())

	if toBlock := result.BlockPos(); !toBlock.Equals(fromBlock) {
		t.moves.Inc()
		ev := eventbus.PositionChanged{
			UserID:    userID,
			FromBlock: fromBlock,
			ToBlock:   toBlock,
			X:         x,
			Y:         y,
			Z:         z,
		}
		if dim != nil {
			ev.Dimension = dim.Name()
		}
		if err := t.publisher.PublishPositionChanged(ctx, ev); err != nil {
			t.log.Warn("⚠️ Не удалось опубликовать PositionChanged для %d: %v", userID, err)
		}
	}
	return result, nil
}

// Teleport переносит игрока в измерение dimension в точку (x, y, z).
// Координаты не преобразуются между измерениями.
func (t *Tracker) Teleport(ctx context.Context, userID uint64, dimension string, x, y, z float32) (level.Location, error) {
	target := vec.NewVec3f(x, y, z)
	if !target.IsFinite() {
		return level.Location{}, ErrInvalidCoordinates
	}

	dim := t.level.Dimension(dimension)
	if dim == nil {
		return level.Location{}, fmt.Errorf("%w: %q", ErrUnknownDimension, dimension)
	}
	if !dim.ContainsY(vec.FloorToInt(y)) {
		return level.Location{}, fmt.Errorf("%w: %s y=%v", ErrOutOfBounds, dim.Name(), y)
	}

	t.mu.Lock()
	loc, ok := t.online[userID]
	if !ok {
		t.mu.Unlock()
		return level.Location{}, fmt.Errorf("%w: %d", ErrNotOnline, userID)
	}

	var fromName string
	if prev := loc.Dimension(); prev != nil {
		fromName = prev.Name()
	}
	loc.SetDimension(dim)
	loc.SetVec(target)
	result := *loc
	t.mu.Unlock()

	t.teleports.Inc()
	t.log.Info("🌀 Игрок %d телепортирован: %q -> %s", userID, fromName, result.String())

	err := t.publisher.PublishDimensionChanged(ctx, eventbus.DimensionChanged{
		UserID:        userID,
		FromDimension: fromName,
		ToDimension:   dim.Name(),
		Block:         result.BlockPos(),
		X:             x,
		Y:             y,
		Z:             z,
	})
	if err != nil {
		t.log.Warn("⚠️ Не удалось опубликовать DimensionChanged для %d: %v", userID, err)
	}

	// Телепортация сохраняется сразу: это редкое и важное событие
	if err := t.repo.Save(ctx, userID, storage.RecordFromLocation(result)); err != nil {
		return result, fmt.Errorf("сохранение после телепортации %d: %w", userID, err)
	}
	return result, nil
}

// Look меняет направление взгляда игрока
func (t *Tracker) Look(userID uint64, pitch, yaw float32) (level.Location, error) {
	if !vec.NewVec3f(pitch, yaw, 0).IsFinite() {
		return level.Location{}, ErrInvalidCoordinates
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	loc, ok := t.online[userID]
	if !ok {
		return level.Location{}, fmt.Errorf("%w: %d", ErrNotOnline, userID)
	}
	loc.Pitch = pitch
	loc.Yaw = yaw
	return *loc, nil
}

// LookAt поворачивает взгляд игрока по вектору направления.
// Нулевой или неконечный вектор отклоняется.
func (t *Tracker) LookAt(userID uint64, dir vec.Vec3f) (level.Location, error) {
	if !dir.IsFinite() || dir.Length() == 0 {
		return level.Location{}, ErrInvalidCoordinates
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	loc, ok := t.online[userID]
	if !ok {
		return level.Location{}, fmt.Errorf("%w: %d", ErrNotOnline, userID)
	}
	loc.SetDirection(dir)
	return *loc, nil
}

// Leave сохраняет позицию игрока и убирает его из сети.
// Игрок удаляется из сети, даже если сохранение не удалось.
func (t *Tracker) Leave(ctx context.Context, userID uint64) error {
	t.mu.Lock()
	loc, ok := t.online[userID]
	if ok {
		delete(t.online, userID)
		t.onlineGauge.Set(float64(len(t.online)))
	}
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrNotOnline, userID)
	}

	if err := t.repo.Save(ctx, userID, storage.RecordFromLocation(*loc)); err != nil {
		return fmt.Errorf("сохранение позиции %d: %w", userID, err)
	}
	t.log.Info("➖ Игрок %d вышел: %s", userID, loc.String())
	return nil
}

// SaveAll сохраняет позиции всех игроков в сети одним пакетом
func (t *Tracker) SaveAll(ctx context.Context) error {
	t.mu.RLock()
	batch := make(map[uint64]storage.PositionRecord, len(t.online))
	for userID, loc := range t.online {
		batch[userID] = storage.RecordFromLocation(*loc)
	}
	t.mu.RUnlock()

	if len(batch) == 0 {
		return nil
	}
	if err := t.repo.BatchSave(ctx, batch); err != nil {
		return fmt.Errorf("автосохранение %d позиций: %w", len(batch), err)
	}
	t.log.Debug("💾 Автосохранение: %d позиций", len(batch))
	return nil
}

// Run выполняет автосохранение до отмены ctx, затем сохраняет позиции в последний раз.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.autosave)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := t.SaveAll(ctx); err != nil {
				t.log.Error("❌ %v", err)
			}
		case <-ctx.Done():
			// Контекст уже отменён: финальное сохранение с отдельным таймаутом
			saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return t.SaveAll(saveCtx)
		}
	}
}

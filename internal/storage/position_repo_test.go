package storage

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/annel0/mmo-level/internal/level"
)

func rec(dim string, x, y, z float32) PositionRecord {
	return PositionRecord{Dimension: dim, X: x, Y: y, Z: z}
}

// samePlace сравнивает записи без учёта времени обновления
func samePlace(a, b PositionRecord) bool {
	a.UpdatedAt, b.UpdatedAt = time.Time{}, time.Time{}
	return a == b
}

// runPositionRepoSuite проверяет контракт PositionRepo для любого бэкенда
func runPositionRepoSuite(t *testing.T, repo PositionRepo) {
	ctx := context.Background()

	t.Run("Save and Load", func(t *testing.T) {
		userID := uint64(123)
		expected := PositionRecord{Dimension: "overworld", X: 10.5, Y: 64, Z: -20.25, Pitch: 15, Yaw: 270}

		if err := repo.Save(ctx, userID, expected); err != nil {
			t.Fatalf("Ошибка сохранения позиции: %v", err)
		}

		actual, found, err := repo.Load(ctx, userID)
		if err != nil {
			t.Fatalf("Ошибка загрузки позиции: %v", err)
		}
		if !found {
			t.Fatal("Позиция не найдена")
		}
		if !samePlace(actual, expected) {
			t.Errorf("Неверная позиция: ожидалась %+v, получена %+v", expected, actual)
		}
		if actual.UpdatedAt.IsZero() {
			t.Error("Время обновления не проставлено")
		}
	})

	t.Run("Load Non-Existent User", func(t *testing.T) {
		pos, found, err := repo.Load(ctx, 999)
		if err != nil {
			t.Fatalf("Ошибка при загрузке несуществующего пользователя: %v", err)
		}
		if found {
			t.Error("Позиция найдена для несуществующего пользователя")
		}
		if pos != (PositionRecord{}) {
			t.Errorf("Ожидалась пустая позиция, получена: %+v", pos)
		}
	})

	t.Run("Update Position", func(t *testing.T) {
		userID := uint64(456)
		first := rec("overworld", 1, 2, 3)
		second := rec("nether", 3, 4, 5)

		if err := repo.Save(ctx, userID, first); err != nil {
			t.Fatalf("Ошибка сохранения первой позиции: %v", err)
		}
		if err := repo.Save(ctx, userID, second); err != nil {
			t.Fatalf("Ошибка обновления позиции: %v", err)
		}

		actual, found, err := repo.Load(ctx, userID)
		if err != nil || !found {
			t.Fatalf("Обновленная позиция не загружена: found=%v err=%v", found, err)
		}
		if !samePlace(actual, second) {
			t.Errorf("Неверная обновленная позиция: ожидалась %+v, получена %+v", second, actual)
		}
	})

	t.Run("Delete Position", func(t *testing.T) {
		userID := uint64(789)
		if err := repo.Save(ctx, userID, rec("the_end", 5, 6, 7)); err != nil {
			t.Fatalf("Ошибка сохранения позиции: %v", err)
		}
		if err := repo.Delete(ctx, userID); err != nil {
			t.Fatalf("Ошибка удаления позиции: %v", err)
		}

		_, found, err := repo.Load(ctx, userID)
		if err != nil {
			t.Fatalf("Ошибка загрузки после удаления: %v", err)
		}
		if found {
			t.Error("Позиция найдена после удаления")
		}

		if err := repo.Delete(ctx, userID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Ожидалась ErrNotFound, получена: %v", err)
		}
	})

	t.Run("BatchSave", func(t *testing.T) {
		positions := map[uint64]PositionRecord{
			100: rec("overworld", 10, 11, 12),
			200: rec("nether", -20, 21, 22),
			300: rec("", 30, 31, 32),
		}

		if err := repo.BatchSave(ctx, positions); err != nil {
			t.Fatalf("Ошибка пакетного сохранения: %v", err)
		}

		for userID, expected := range positions {
			actual, found, err := repo.Load(ctx, userID)
			if err != nil {
				t.Fatalf("Ошибка загрузки позиции для пользователя %d: %v", userID, err)
			}
			if !found {
				t.Errorf("Позиция не найдена для пользователя %d", userID)
				continue
			}
			if !samePlace(actual, expected) {
				t.Errorf("Неверная позиция для пользователя %d: ожидалась %+v, получена %+v",
					userID, expected, actual)
			}
		}

		if err := repo.BatchSave(ctx, nil); err != nil {
			t.Errorf("Пустой batch должен проходить без ошибки: %v", err)
		}
	})

	t.Run("Validation", func(t *testing.T) {
		if err := repo.Save(ctx, 0, rec("overworld", 1, 1, 1)); !errors.Is(err, ErrInvalidUserID) {
			t.Errorf("Ожидалась ErrInvalidUserID, получена: %v", err)
		}

		nan := float32(math.NaN())
		if err := repo.Save(ctx, 123, rec("overworld", nan, 1, 1)); !errors.Is(err, ErrNonFinite) {
			t.Errorf("Ожидалась ErrNonFinite, получена: %v", err)
		}

		inf := float32(math.Inf(1))
		err := repo.BatchSave(ctx, map[uint64]PositionRecord{
			501: rec("overworld", 1, 1, 1),
			502: {Dimension: "overworld", Yaw: inf},
		})
		if !errors.Is(err, ErrNonFinite) {
			t.Errorf("Ожидалась ErrNonFinite для batch, получена: %v", err)
		}
		if _, found, _ := repo.Load(ctx, 501); found {
			t.Error("Batch с ошибкой не должен сохранять частично")
		}

		if _, _, err := repo.Load(ctx, 0); !errors.Is(err, ErrInvalidUserID) {
			t.Errorf("Ожидалась ErrInvalidUserID при загрузке, получена: %v", err)
		}
	})
}

// TestMemoryPositionRepo тестирует in-memory репозиторий позиций
func TestMemoryPositionRepo(t *testing.T) {
	runPositionRepoSuite(t, NewMemoryPositionRepo())
}

func TestMemoryPositionRepo_ContextCancellation(t *testing.T) {
	repo := NewMemoryPositionRepo()
	canceledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := repo.Save(canceledCtx, 555, rec("overworld", 1, 1, 1)); err != context.Canceled {
		t.Errorf("Ожидалась ошибка отмены контекста, получена: %v", err)
	}
}

// TestMemoryPositionRepoUtilityMethods тестирует вспомогательные методы
func TestMemoryPositionRepoUtilityMethods(t *testing.T) {
	repo := NewMemoryPositionRepo()
	ctx := context.Background()

	if repo.Count() != 0 {
		t.Errorf("Ожидалось 0 позиций, получено: %d", repo.Count())
	}

	positions := map[uint64]PositionRecord{
		1: rec("overworld", 1, 1, 1),
		2: rec("overworld", 2, 2, 2),
		3: rec("nether", 3, 3, 3),
	}
	for userID, pos := range positions {
		if err := repo.Save(ctx, userID, pos); err != nil {
			t.Fatalf("Ошибка сохранения позиции для пользователя %d: %v", userID, err)
		}
	}

	if repo.Count() != len(positions) {
		t.Errorf("Ожидалось %d позиций, получено: %d", len(positions), repo.Count())
	}

	all := repo.GetAllPositions()
	for userID, expected := range positions {
		if actual, exists := all[userID]; !exists {
			t.Errorf("Позиция для пользователя %d не найдена в GetAllPositions", userID)
		} else if !samePlace(actual, expected) {
			t.Errorf("Неверная позиция для пользователя %d: ожидалась %+v, получена %+v",
				userID, expected, actual)
		}
	}

	repo.Clear()
	if repo.Count() != 0 {
		t.Errorf("После Clear ожидалось 0 позиций, получено: %d", repo.Count())
	}
}

// TestConcurrentAccess тестирует concurrent доступ к репозиторию
func TestConcurrentAccess(t *testing.T) {
	repo := NewMemoryPositionRepo()
	ctx := context.Background()

	const numGoroutines = 10
	const numOperations = 100

	done := make(chan bool, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(goroutineID int) {
			defer func() { done <- true }()

			for j := 0; j < numOperations; j++ {
				userID := uint64(goroutineID*numOperations + j + 1) // +1 чтобы избежать userID = 0
				pos := rec("overworld", float32(goroutineID), float32(j), 1)

				if err := repo.Save(ctx, userID, pos); err != nil {
					t.Errorf("Ошибка сохранения в горутине %d: %v", goroutineID, err)
					return
				}

				loaded, found, err := repo.Load(ctx, userID)
				if err != nil || !found {
					t.Errorf("Позиция не загружена в горутине %d: found=%v err=%v", goroutineID, found, err)
					return
				}
				if !samePlace(loaded, pos) {
					t.Errorf("Неверная позиция в горутине %d: ожидалась %+v, получена %+v",
						goroutineID, pos, loaded)
					return
				}
			}
		}(i)
	}

	for i := 0; i < numGoroutines; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Тест превысил таймаут")
		}
	}

	if actual := repo.Count(); actual != numGoroutines*numOperations {
		t.Errorf("Ожидалось %d позиций после concurrent теста, получено: %d",
			numGoroutines*numOperations, actual)
	}
}

func TestPositionRecord_RoundTrip(t *testing.T) {
	lvl := level.DefaultLevel("test")
	nether := lvl.Dimension(level.NetherName)

	loc := level.NewLocation(nether, -2.7, 5.1, 0, 30, 180)
	record := RecordFromLocation(loc)
	if record.Dimension != level.NetherName || record.Pitch != 30 || record.Yaw != 180 {
		t.Fatalf("Неверная запись: %+v", record)
	}

	restored := record.Location(lvl)
	if restored.Dimension() != nether {
		t.Error("Измерение должно разрешаться в тот же экземпляр")
	}
	if restored.BlockX() != -3 || restored.BlockY() != 5 || restored.BlockZ() != 0 {
		t.Errorf("Неверные координаты блока: %v", restored.BlockPos())
	}

	// Неизвестное измерение даёт позицию без измерения
	record.Dimension = "aether"
	if pos := record.Position(lvl); pos.HasDimension() {
		t.Error("Неизвестное измерение должно давать позицию без измерения")
	}

	// Позиция без измерения сохраняется с пустым именем
	if r := RecordFromPosition(level.NewPosition(nil, 1, 2, 3)); r.Dimension != "" {
		t.Errorf("Ожидалось пустое имя измерения, получено %q", r.Dimension)
	}
	if pos := (PositionRecord{X: 1}).Position(nil); pos.HasDimension() || pos.X() != 1 {
		t.Errorf("Неверное восстановление без уровня: %v", pos)
	}
}

package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v3"
)

// positionKeyPrefix префикс ключей позиций в BadgerDB
var positionKeyPrefix = []byte("pos:")

// BadgerPositionRepo хранит позиции во встроенной BadgerDB на диске.
// Подходит для одиночного сервера без внешних БД.
type BadgerPositionRepo struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerPositionRepo открывает (или создает) базу в каталоге dataPath/positions
func NewBadgerPositionRepo(dataPath string) (*BadgerPositionRepo, error) {
	dbPath := filepath.Join(dataPath, "positions")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &BadgerPositionRepo{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
	}, nil
}

func badgerKey(userID uint64) []byte {
	key := make([]byte, len(positionKeyPrefix)+8)
	copy(key, positionKeyPrefix)
	binary.BigEndian.PutUint64(key[len(positionKeyPrefix):], userID)
	return key
}

// Save сохраняет позицию игрока
func (r *BadgerPositionRepo) Save(ctx context.Context, userID uint64, rec PositionRecord) error {
	return r.BatchSave(ctx, map[uint64]PositionRecord{userID: rec})
}

// Load загружает позицию игрока
func (r *BadgerPositionRepo) Load(ctx context.Context, userID uint64) (PositionRecord, bool, error) {
	if err := validateUserID(userID); err != nil {
		return PositionRecord{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return PositionRecord{}, false, err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if !r.isReady {
		return PositionRecord{}, false, fmt.Errorf("хранилище не готово")
	}

	var rec PositionRecord
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return PositionRecord{}, false, nil
	}
	if err != nil {
		return PositionRecord{}, false, fmt.Errorf("ошибка загрузки позиции для пользователя %d: %w", userID, err)
	}
	return rec, true, nil
}

// Delete удаляет позицию игрока
func (r *BadgerPositionRepo) Delete(ctx context.Context, userID uint64) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if !r.isReady {
		return fmt.Errorf("хранилище не готово")
	}

	return r.db.Update(func(txn *badger.Txn) error {
		key := badgerKey(userID)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: пользователь %d", ErrNotFound, userID)
			}
			return err
		}
		return txn.Delete(key)
	})
}

// BatchSave сохраняет позиции в одной транзакции
func (r *BadgerPositionRepo) BatchSave(ctx context.Context, positions map[uint64]PositionRecord) error {
	if len(positions) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for userID, rec := range positions {
		if err := validateSave(userID, rec); err != nil {
			return fmt.Errorf("batch: %w", err)
		}
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if !r.isReady {
		return fmt.Errorf("хранилище не готово")
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		for userID, rec := range positions {
			data, err := json.Marshal(stamp(rec))
			if err != nil {
				return fmt.Errorf("ошибка сериализации позиции %d: %w", userID, err)
			}
			if err := txn.Set(badgerKey(userID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения позиций: %w", err)
	}
	return nil
}

// Count возвращает количество сохраненных позиций
func (r *BadgerPositionRepo) Count() (int, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	count := 0
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(positionKeyPrefix); it.ValidForPrefix(positionKeyPrefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close закрывает хранилище данных
func (r *BadgerPositionRepo) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.isReady {
		return nil
	}

	r.isReady = false
	return r.db.Close()
}

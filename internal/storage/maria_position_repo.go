package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MariaPositionRepo реализует PositionRepo для базы данных MariaDB/MySQL.
// Использует таблицу player_positions для хранения позиций игроков.
type MariaPositionRepo struct {
	db *sql.DB
}

const upsertPositionQuery = `
		INSERT INTO player_positions (user_id, dimension, x, y, z, pitch, yaw)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			dimension = VALUES(dimension),
			x = VALUES(x),
			y = VALUES(y),
			z = VALUES(z),
			pitch = VALUES(pitch),
			yaw = VALUES(yaw),
			updated_at = CURRENT_TIMESTAMP
	`

// NewMariaPositionRepo создает новый репозиторий позиций для MariaDB.
// Автоматически создает таблицу, если она не существует.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname?parseTime=true)
func NewMariaPositionRepo(ctx context.Context, dsn string) (*MariaPositionRepo, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	repo := &MariaPositionRepo{db: db}

	if err := repo.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}

	return repo, nil
}

// createTable создает таблицу player_positions, если она не существует.
func (r *MariaPositionRepo) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS player_positions (
			user_id    BIGINT UNSIGNED PRIMARY KEY,
			dimension  VARCHAR(64)     NOT NULL DEFAULT '',
			x          FLOAT           NOT NULL,
			y          FLOAT           NOT NULL,
			z          FLOAT           NOT NULL,
			pitch      FLOAT           NOT NULL DEFAULT 0,
			yaw        FLOAT           NOT NULL DEFAULT 0,
			updated_at TIMESTAMP       DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE       CURRENT_TIMESTAMP,
			INDEX idx_dimension (dimension),
			INDEX idx_updated_at (updated_at)
		) ENGINE=InnoDB
	`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ошибка создания таблицы player_positions: %w", err)
	}
	return nil
}

// Save сохраняет позицию игрока в базе данных.
// Использует INSERT ... ON DUPLICATE KEY UPDATE для обновления существующих записей.
func (r *MariaPositionRepo) Save(ctx context.Context, userID uint64, rec PositionRecord) error {
	if err := validateSave(userID, rec); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, upsertPositionQuery,
		userID, rec.Dimension, rec.X, rec.Y, rec.Z, rec.Pitch, rec.Yaw)
	if err != nil {
		return fmt.Errorf("ошибка сохранения позиции для пользователя %d: %w", userID, err)
	}

	return nil
}

// Load загружает позицию игрока из базы данных.
func (r *MariaPositionRepo) Load(ctx context.Context, userID uint64) (PositionRecord, bool, error) {
	if err := validateUserID(userID); err != nil {
		return PositionRecord{}, false, err
	}

	query := `SELECT dimension, x, y, z, pitch, yaw, updated_at FROM player_positions WHERE user_id = ?`

	var rec PositionRecord
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&rec.Dimension, &rec.X, &rec.Y, &rec.Z, &rec.Pitch, &rec.Yaw, &rec.UpdatedAt)

	if err == sql.ErrNoRows {
		// Позиция не найдена - первый вход пользователя
		return PositionRecord{}, false, nil
	}
	if err != nil {
		return PositionRecord{}, false, fmt.Errorf("ошибка загрузки позиции для пользователя %d: %w", userID, err)
	}

	return rec, true, nil
}

// Delete удаляет сохраненную позицию игрока.
func (r *MariaPositionRepo) Delete(ctx context.Context, userID uint64) error {
	if err := validateUserID(userID); err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM player_positions WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("ошибка удаления позиции для пользователя %d: %w", userID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения количества затронутых строк: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: пользователь %d", ErrNotFound, userID)
	}

	return nil
}

// BatchSave сохраняет позиции нескольких игроков в одной транзакции.
func (r *MariaPositionRepo) BatchSave(ctx context.Context, positions map[uint64]PositionRecord) error {
	if len(positions) == 0 {
		return nil
	}

	for userID, rec := range positions {
		if err := validateSave(userID, rec); err != nil {
			return fmt.Errorf("batch: %w", err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback() // Откат в случае ошибки

	stmt, err := tx.PrepareContext(ctx, upsertPositionQuery)
	if err != nil {
		return fmt.Errorf("ошибка подготовки запроса: %w", err)
	}
	defer stmt.Close()

	for userID, rec := range positions {
		_, err = stmt.ExecContext(ctx, userID, rec.Dimension, rec.X, rec.Y, rec.Z, rec.Pitch, rec.Yaw)
		if err != nil {
			return fmt.Errorf("ошибка сохранения позиции для пользователя %d в batch: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	return nil
}

// Close закрывает соединение с базой данных.
func (r *MariaPositionRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

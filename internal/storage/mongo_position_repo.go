package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for MongoDB position repository.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. blockverse
	Collection string // e.g. player_positions
}

// MongoPositionRepo implements PositionRepo on MongoDB backend.
type MongoPositionRepo struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type mongoPositionDoc struct {
	UserID         uint64 `bson:"user_id"`
	PositionRecord `bson:",inline"`
}

// NewMongoPositionRepo establishes connection and returns repository.
func NewMongoPositionRepo(ctx context.Context, cfg MongoConfig) (*MongoPositionRepo, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "blockverse"
	}
	if cfg.Collection == "" {
		cfg.Collection = "player_positions"
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	repo := &MongoPositionRepo{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}

	userIDIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("userid_unique"),
	}
	if _, err := repo.collection.Indexes().CreateOne(ctx, userIDIdx); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo index: %w", err)
	}
	return repo, nil
}

// Save upserts the position document of a user.
func (m *MongoPositionRepo) Save(ctx context.Context, userID uint64, rec PositionRecord) error {
	if err := validateSave(userID, rec); err != nil {
		return err
	}

	_, err := m.collection.ReplaceOne(ctx,
		bson.M{"user_id": userID},
		mongoPositionDoc{UserID: userID, PositionRecord: stamp(rec)},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения позиции для пользователя %d: %w", userID, err)
	}
	return nil
}

// Load returns the stored position of a user.
func (m *MongoPositionRepo) Load(ctx context.Context, userID uint64) (PositionRecord, bool, error) {
	if err := validateUserID(userID); err != nil {
		return PositionRecord{}, false, err
	}

	var doc mongoPositionDoc
	err := m.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return PositionRecord{}, false, nil
	}
	if err != nil {
		return PositionRecord{}, false, fmt.Errorf("ошибка загрузки позиции для пользователя %d: %w", userID, err)
	}
	return doc.PositionRecord, true, nil
}

// Delete removes the stored position.
func (m *MongoPositionRepo) Delete(ctx context.Context, userID uint64) error {
	if err := validateUserID(userID); err != nil {
		return err
	}

	res, err := m.collection.DeleteOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("ошибка удаления позиции для пользователя %d: %w", userID, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: пользователь %d", ErrNotFound, userID)
	}
	return nil
}

// BatchSave upserts all positions with one bulk write.
func (m *MongoPositionRepo) BatchSave(ctx context.Context, positions map[uint64]PositionRecord) error {
	if len(positions) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(positions))
	for userID, rec := range positions {
		if err := validateSave(userID, rec); err != nil {
			return fmt.Errorf("batch: %w", err)
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"user_id": userID}).
			SetReplacement(mongoPositionDoc{UserID: userID, PositionRecord: stamp(rec)}).
			SetUpsert(true))
	}

	if _, err := m.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("ошибка пакетного сохранения позиций: %w", err)
	}
	return nil
}

// Close terminates connection.
func (m *MongoPositionRepo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

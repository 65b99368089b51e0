package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/annel0/mmo-level/internal/vec"
	"github.com/google/uuid"
)

// Типы событий позиций
const (
	EventPositionChanged  = "PositionChanged"
	EventDimensionChanged = "DimensionChanged"
)

// PositionChanged публикуется, когда игрок переходит в другой блок того же измерения.
type PositionChanged struct {
	UserID    uint64   `json:"user_id"`
	Dimension string   `json:"dimension"`
	FromBlock vec.Vec3 `json:"from_block"`
	ToBlock   vec.Vec3 `json:"to_block"`
	X         float32  `json:"x"`
	Y         float32  `json:"y"`
	Z         float32  `json:"z"`
}

// DimensionChanged публикуется при телепортации в другое измерение.
// Пустое FromDimension означает, что до этого измерение не было задано.
type DimensionChanged struct {
	UserID        uint64   `json:"user_id"`
	FromDimension string   `json:"from_dimension"`
	ToDimension   string   `json:"to_dimension"`
	Block         vec.Vec3 `json:"block"`
	X             float32  `json:"x"`
	Y             float32  `json:"y"`
	Z             float32  `json:"z"`
}

// NewEnvelope упаковывает полезную нагрузку в JSON конверт с новым UUID
func NewEnvelope(source, eventType string, priority int, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   1,
		Priority:  priority,
		Payload:   data,
	}, nil
}

// Decode разбирает полезную нагрузку конверта
func (ev *Envelope) Decode(v interface{}) error {
	if err := json.Unmarshal(ev.Payload, v); err != nil {
		return fmt.Errorf("decode %s %s: %w", ev.EventType, ev.ID, err)
	}
	return nil
}

// PositionPublisher публикует события позиций от имени сервиса.
// Телепортации публикуются с высоким приоритетом и не отбрасываются при переполнении.
type PositionPublisher struct {
	bus    EventBus
	source string
}

// NewPositionPublisher создает публикатор; bus == nil отключает публикацию
func NewPositionPublisher(bus EventBus, source string) *PositionPublisher {
	return &PositionPublisher{bus: bus, source: source}
}

// PublishPositionChanged публикует смену блока
func (p *PositionPublisher) PublishPositionChanged(ctx context.Context, ev PositionChanged) error {
	return p.publish(ctx, EventPositionChanged, 3, ev)
}

// PublishDimensionChanged публикует смену измерения
func (p *PositionPublisher) PublishDimensionChanged(ctx context.Context, ev DimensionChanged) error {
	return p.publish(ctx, EventDimensionChanged, 7, ev)
}

func (p *PositionPublisher) publish(ctx context.Context, eventType string, priority int, payload interface{}) error {
	if p == nil || p.bus == nil {
		return nil
	}
	env, err := NewEnvelope(p.source, eventType, priority, payload)
	if err != nil {
		return err
	}
	return p.bus.Publish(ctx, env)
}

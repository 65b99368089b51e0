package level

import (
	"fmt"

	"github.com/google/uuid"
)

// DimensionType определяет вид измерения
type DimensionType uint8

const (
	Overworld DimensionType = iota
	Nether
	TheEnd
	Custom
)

// Имена встроенных измерений
const (
	OverworldName = "overworld"
	NetherName    = "nether"
	TheEndName    = "the_end"
)

// String возвращает строковое представление типа измерения
func (t DimensionType) String() string {
	switch t {
	case Overworld:
		return "overworld"
	case Nether:
		return "nether"
	case TheEnd:
		return "the_end"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// ParseDimensionType разбирает тип измерения из строки конфигурации
func ParseDimensionType(s string) (DimensionType, error) {
	switch s {
	case "overworld":
		return Overworld, nil
	case "nether":
		return Nether, nil
	case "the_end":
		return TheEnd, nil
	case "custom", "":
		return Custom, nil
	default:
		return Custom, fmt.Errorf("неизвестный тип измерения: %q", s)
	}
}

// DimensionBounds задаёт вертикальные границы измерения в блоках.
// Допустимые Y: [MinY, MinY+Height).
type DimensionBounds struct {
	MinY   int
	Height int
}

// MaxY возвращает последний допустимый Y (включительно)
func (b DimensionBounds) MaxY() int {
	return b.MinY + b.Height - 1
}

// DefaultBounds возвращает границы по умолчанию для типа измерения
func DefaultBounds(t DimensionType) DimensionBounds {
	switch t {
	case Overworld:
		return DimensionBounds{MinY: -64, Height: 384}
	default:
		return DimensionBounds{MinY: 0, Height: 256}
	}
}

// Dimension описывает именованный раздел уровня с границами по высоте.
// Владельцем является Level; позиции лишь ссылаются на измерение по адресу.
type Dimension struct {
	id     uuid.UUID
	name   string
	kind   DimensionType
	bounds DimensionBounds
}

func newDimension(name string, kind DimensionType, bounds DimensionBounds) *Dimension {
	return &Dimension{
		id:     uuid.New(),
		name:   name,
		kind:   kind,
		bounds: bounds,
	}
}

// ID возвращает уникальный идентификатор экземпляра измерения
func (d *Dimension) ID() uuid.UUID { return d.id }

// Name возвращает имя измерения внутри уровня
func (d *Dimension) Name() string { return d.name }

// Type возвращает вид измерения
func (d *Dimension) Type() DimensionType { return d.kind }

// Bounds возвращает вертикальные границы
func (d *Dimension) Bounds() DimensionBounds { return d.bounds }

// ContainsY проверяет, что блок с координатой Y лежит внутри измерения
func (d *Dimension) ContainsY(blockY int) bool {
	return blockY >= d.bounds.MinY && blockY <= d.bounds.MaxY()
}

func (d *Dimension) String() string {
	return fmt.Sprintf("%s(%s)", d.name, d.kind)
}

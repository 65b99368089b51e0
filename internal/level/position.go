package level

import (
	"fmt"

	"github.com/annel0/mmo-level/internal/vec"
)

// Position описывает непрерывную точку в пространстве вместе с измерением, в котором она находится.
//
// Измерение хранится как невладеющая ссылка: Position никогда не продлевает и не
// завершает жизнь измерения. Использование позиции после удаления измерения его
// владельцем является ошибкой вызывающего кода, здесь она не обнаруживается.
//
// Синхронизации нет. Конкурентное изменение одного экземпляра защищает вызывающий.
type Position struct {
	vec       vec.Vec3f
	dimension *Dimension
}

// NewPosition создает позицию. dimension может быть nil ("измерение не задано").
// Числа не проверяются: NaN и бесконечности принимаются как есть.
func NewPosition(dimension *Dimension, x, y, z float32) Position {
	return Position{
		vec:       vec.Vec3f{X: x, Y: y, Z: z},
		dimension: dimension,
	}
}

// Dimension возвращает измерение позиции или nil, если оно не задано
func (p Position) Dimension() *Dimension {
	return p.dimension
}

// HasDimension сообщает, что измерение задано
func (p Position) HasDimension() bool {
	return p.dimension != nil
}

// SetDimension заменяет измерение, координаты не меняются.
// Преобразования координат между измерениями не выполняются.
// nil недопустим: для этого нет "пустого" сеттера, вызов паникует.
func (p *Position) SetDimension(dimension *Dimension) {
	if dimension == nil {
		panic("level: SetDimension с nil измерением")
	}
	p.dimension = dimension
}

// X возвращает координату X
func (p Position) X() float32 { return p.vec.X }

// Y возвращает координату Y
func (p Position) Y() float32 { return p.vec.Y }

// Z возвращает координату Z
func (p Position) Z() float32 { return p.vec.Z }

// SetX задаёт координату X
func (p *Position) SetX(x float32) { p.vec.X = x }

// SetY задаёт координату Y
func (p *Position) SetY(y float32) { p.vec.Y = y }

// SetZ задаёт координату Z
func (p *Position) SetZ(z float32) { p.vec.Z = z }

// Vec возвращает координаты как вектор
func (p Position) Vec() vec.Vec3f { return p.vec }

// SetVec заменяет все три координаты
func (p *Position) SetVec(v vec.Vec3f) { p.vec = v }

// BlockX возвращает X блока, содержащего позицию (округление вниз).
// Политика переполнения описана в vec.FloorToInt.
func (p Position) BlockX() int { return vec.FloorToInt(p.vec.X) }

// BlockY возвращает Y блока, содержащего позицию (округление вниз)
func (p Position) BlockY() int { return vec.FloorToInt(p.vec.Y) }

// BlockZ возвращает Z блока, содержащего позицию (округление вниз)
func (p Position) BlockZ() int { return vec.FloorToInt(p.vec.Z) }

// BlockPos возвращает координаты блока целиком
func (p Position) BlockPos() vec.Vec3 { return p.vec.Floor() }

// ChunkPos возвращает координаты чанка, содержащего позицию
func (p Position) ChunkPos() vec.Vec2 { return p.BlockPos().ChunkCoords() }

// Add возвращает позицию, смещённую на delta, в том же измерении
func (p Position) Add(delta vec.Vec3f) Position {
	return Position{vec: p.vec.Add(delta), dimension: p.dimension}
}

// Sub возвращает позицию, смещённую на -delta, в том же измерении
func (p Position) Sub(delta vec.Vec3f) Position {
	return Position{vec: p.vec.Sub(delta), dimension: p.dimension}
}

// Mul масштабирует координаты, измерение сохраняется
func (p Position) Mul(scalar float32) Position {
	return Position{vec: p.vec.Mul(scalar), dimension: p.dimension}
}

// DistanceTo возвращает расстояние между координатами без учёта измерений
func (p Position) DistanceTo(other Position) float32 {
	return p.vec.DistanceTo(other.vec)
}

// InSameDimension сообщает, что обе позиции ссылаются на одно и то же измерение.
// Две позиции без измерения тоже считаются совпадающими.
func (p Position) InSameDimension(other Position) bool {
	return p.dimension == other.dimension
}

func (p Position) String() string {
	name := "<none>"
	if p.dimension != nil {
		name = p.dimension.Name()
	}
	return fmt.Sprintf("%s(%.2f, %.2f, %.2f)", name, p.vec.X, p.vec.Y, p.vec.Z)
}

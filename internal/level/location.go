package level

import (
	"math"

	"github.com/annel0/mmo-level/internal/vec"
)

// Location хранит позицию вместе с направлением взгляда.
// Pitch: -90 (вверх) .. 90 (вниз). Yaw: градусы, 0 смотрит на +Z, 90 на -X.
type Location struct {
	Position
	Pitch float32
	Yaw   float32
}

// NewLocation создает локацию. dimension может быть nil.
func NewLocation(dimension *Dimension, x, y, z, pitch, yaw float32) Location {
	return Location{
		Position: NewPosition(dimension, x, y, z),
		Pitch:    pitch,
		Yaw:      yaw,
	}
}

// LocationAt создает локацию из позиции с нулевым направлением
func LocationAt(pos Position) Location {
	return Location{Position: pos}
}

// Direction возвращает единичный вектор взгляда
func (l Location) Direction() vec.Vec3f {
	pitch := float64(l.Pitch) * math.Pi / 180
	yaw := float64(l.Yaw) * math.Pi / 180

	xz := math.Cos(pitch)
	return vec.Vec3f{
		X: float32(-xz * math.Sin(yaw)),
		Y: float32(-math.Sin(pitch)),
		Z: float32(xz * math.Cos(yaw)),
	}
}

// SetDirection выставляет pitch и yaw по вектору взгляда.
// Нулевой вектор направление не меняет.
func (l *Location) SetDirection(dir vec.Vec3f) {
	x, y, z := float64(dir.X), float64(dir.Y), float64(dir.Z)
	if x == 0 && y == 0 && z == 0 {
		return
	}

	if x == 0 && z == 0 {
		if y > 0 {
			l.Pitch = -90
		} else {
			l.Pitch = 90
		}
		return
	}

	theta := math.Atan2(-x, z)
	l.Yaw = float32(math.Mod(theta*180/math.Pi+360, 360))

	xz := math.Sqrt(x*x + z*z)
	l.Pitch = float32(math.Atan(-y/xz) * 180 / math.Pi)
}

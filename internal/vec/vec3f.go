package vec

import "math"

// Vec3f представляет трехмерный вектор одинарной точности.
// Значение без собственной синхронизации: общий экземпляр защищает вызывающий.
type Vec3f struct {
	X float32
	Y float32
	Z float32
}

// NewVec3f создает вектор из трех компонент
func NewVec3f(x, y, z float32) Vec3f {
	return Vec3f{X: x, Y: y, Z: z}
}

// Add складывает два вектора
func (v Vec3f) Add(other Vec3f) Vec3f {
	return Vec3f{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub вычитает вектор
func (v Vec3f) Sub(other Vec3f) Vec3f {
	return Vec3f{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Mul умножает вектор на скаляр
func (v Vec3f) Mul(scalar float32) Vec3f {
	return Vec3f{X: v.X * scalar, Y: v.Y * scalar, Z: v.Z * scalar}
}

// Length возвращает длину вектора
func (v Vec3f) Length() float32 {
	x, y, z := float64(v.X), float64(v.Y), float64(v.Z)
	return float32(math.Sqrt(x*x + y*y + z*z))
}

// Normalized возвращает нормализованный вектор
func (v Vec3f) Normalized() Vec3f {
	length := v.Length()
	if length == 0 {
		return Vec3f{}
	}
	return v.Mul(1 / length)
}

// DistanceTo вычисляет расстояние до другой точки
func (v Vec3f) DistanceTo(other Vec3f) float32 {
	return v.Sub(other).Length()
}

// IsFinite сообщает, что все три компоненты конечны (не NaN и не ±Inf)
func (v Vec3f) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// Floor возвращает координаты блока, содержащего точку
func (v Vec3f) Floor() Vec3 {
	return Vec3{X: FloorToInt(v.X), Y: FloorToInt(v.Y), Z: FloorToInt(v.Z)}
}

// FloorToInt округляет вниз (к -Inf) и сужает до целого.
//
// Округление именно вниз, а не к нулю: -0.3 лежит в блоке -1.
// Значения за пределами int32 насыщаются до math.MinInt32/math.MaxInt32,
// NaN превращается в 0. Так результат одинаков на 32- и 64-битных платформах.
func FloorToInt(f float32) int {
	d := math.Floor(float64(f))
	switch {
	case math.IsNaN(d):
		return 0
	case d <= math.MinInt32:
		return math.MinInt32
	case d >= math.MaxInt32:
		return math.MaxInt32
	}
	return int(d)
}

func isFinite(f float32) bool {
	d := float64(f)
	return !math.IsNaN(d) && !math.IsInf(d, 0)
}

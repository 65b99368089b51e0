package vec

import "math"

// ChunkSize размер чанка по горизонтали в блоках
const ChunkSize = 16

// Vec3 представляет трехмерный вектор с целочисленными координатами (координаты блока)
type Vec3 struct {
	X int
	Y int
	Z int
}

// ChunkCoords возвращает координаты чанка, содержащего блок.
// Y не участвует: чанк занимает весь столб по высоте.
func (v Vec3) ChunkCoords() Vec2 {
	return Vec2{X: v.X >> 4, Y: v.Z >> 4} // Деление на 16 с округлением вниз
}

// LocalInChunk возвращает координаты блока внутри его чанка
func (v Vec3) LocalInChunk() Vec3 {
	return Vec3{X: v.X & 0xF, Y: v.Y, Z: v.Z & 0xF} // Модуль 16
}

// DistanceTo возвращает евклидово расстояние до другого вектора
func (v Vec3) DistanceTo(other Vec3) float64 {
	dx := float64(v.X - other.X)
	dy := float64(v.Y - other.Y)
	dz := float64(v.Z - other.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// ToVec3f преобразует координаты блока в угол блока с плавающей точкой
func (v Vec3) ToVec3f() Vec3f {
	return Vec3f{X: float32(v.X), Y: float32(v.Y), Z: float32(v.Z)}
}

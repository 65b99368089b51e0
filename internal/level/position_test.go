package level

import (
	"math"
	"testing"

	"github.com/annel0/mmo-level/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDimensions(t *testing.T) (*Level, *Dimension, *Dimension) {
	t.Helper()
	lvl := DefaultLevel("test")
	dimA := lvl.Dimension(OverworldName)
	dimB := lvl.Dimension(NetherName)
	require.NotNil(t, dimA)
	require.NotNil(t, dimB)
	return lvl, dimA, dimB
}

func TestPosition_BlockCoordinatesFloor(t *testing.T) {
	_, dim, _ := newTestDimensions(t)

	values := []float32{0, 0.5, 0.999, 1, 7.25, -0.3, -0.999, -1, -1.5, -15.75, 1000.1, -1000.1}
	for _, v := range values {
		pos := NewPosition(dim, v, v, v)
		want := int(math.Floor(float64(v)))

		assert.Equal(t, want, pos.BlockX(), "BlockX для %v", v)
		assert.Equal(t, want, pos.BlockY(), "BlockY для %v", v)
		assert.Equal(t, want, pos.BlockZ(), "BlockZ для %v", v)
	}
}

func TestPosition_FloorNotTruncate(t *testing.T) {
	// Регрессия: усечение к нулю дало бы 0
	pos := NewPosition(nil, -0.3, -0.3, -0.3)
	assert.Equal(t, -1, pos.BlockX())
	assert.Equal(t, -1, pos.BlockY())
	assert.Equal(t, -1, pos.BlockZ())
}

func TestPosition_ExactIntegers(t *testing.T) {
	assert.Equal(t, -1, NewPosition(nil, -1.0, 0, 0).BlockX())
	assert.Equal(t, 0, NewPosition(nil, 0.0, 0, 0).BlockX())
}

func TestPosition_EndToEnd(t *testing.T) {
	_, dimA, _ := newTestDimensions(t)

	pos := NewPosition(dimA, -2.7, 5.1, 0.0)
	assert.Equal(t, -3, pos.BlockX())
	assert.Equal(t, 5, pos.BlockY())
	assert.Equal(t, 0, pos.BlockZ())
	assert.Same(t, dimA, pos.Dimension())
	assert.Equal(t, vec.Vec3{X: -3, Y: 5, Z: 0}, pos.BlockPos())
}

func TestPosition_AbsentDimension(t *testing.T) {
	var pos Position
	assert.NotPanics(t, func() {
		pos = NewPosition(nil, 1.0, 2.0, 3.0)
	})
	assert.Nil(t, pos.Dimension())
	assert.False(t, pos.HasDimension())
	assert.Equal(t, "<none>(1.00, 2.00, 3.00)", pos.String())

	var zero Position
	assert.Nil(t, zero.Dimension())
}

func TestPosition_SetDimension(t *testing.T) {
	_, dimA, dimB := newTestDimensions(t)

	pos := NewPosition(dimA, 10.5, 64, -3.25)
	pos.SetDimension(dimB)

	assert.Same(t, dimB, pos.Dimension(), "должна вернуться та же ссылка, а не копия")
	assert.Equal(t, float32(10.5), pos.X())
	assert.Equal(t, float32(64), pos.Y())
	assert.Equal(t, float32(-3.25), pos.Z())

	// Из состояния "без измерения"
	empty := NewPosition(nil, 0, 0, 0)
	empty.SetDimension(dimA)
	assert.Same(t, dimA, empty.Dimension())
}

func TestPosition_SetDimensionNilPanics(t *testing.T) {
	_, dimA, _ := newTestDimensions(t)
	pos := NewPosition(dimA, 0, 0, 0)

	assert.Panics(t, func() { pos.SetDimension(nil) })
	assert.Same(t, dimA, pos.Dimension())
}

func TestPosition_NonFiniteAccepted(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	pos := NewPosition(nil, nan, inf, -inf)
	assert.True(t, math.IsNaN(float64(pos.X())))
	assert.Equal(t, 0, pos.BlockX())
	assert.Equal(t, math.MaxInt32, pos.BlockY())
	assert.Equal(t, math.MinInt32, pos.BlockZ())
}

func TestPosition_VectorOperations(t *testing.T) {
	_, dimA, _ := newTestDimensions(t)
	pos := NewPosition(dimA, 1, 2, 3)

	moved := pos.Add(vec.NewVec3f(1, 1, 1))
	assert.Equal(t, vec.Vec3f{X: 2, Y: 3, Z: 4}, moved.Vec())
	assert.Same(t, dimA, moved.Dimension())
	assert.Equal(t, vec.Vec3f{X: 1, Y: 2, Z: 3}, pos.Vec(), "исходная позиция не меняется")

	assert.Equal(t, vec.Vec3f{X: 0, Y: 1, Z: 2}, pos.Sub(vec.NewVec3f(1, 1, 1)).Vec())
	assert.Equal(t, vec.Vec3f{X: 2, Y: 4, Z: 6}, pos.Mul(2).Vec())
	assert.InDelta(t, 5.0, float64(NewPosition(nil, 3, 4, 0).DistanceTo(NewPosition(nil, 0, 0, 0))), 1e-6)

	pos.SetX(-0.5)
	pos.SetY(70)
	pos.SetZ(33)
	assert.Equal(t, vec.Vec3{X: -1, Y: 70, Z: 33}, pos.BlockPos())
	assert.Equal(t, vec.Vec2{X: -1, Y: 2}, pos.ChunkPos())
	assert.Same(t, dimA, pos.Dimension(), "изменение координат не трогает измерение")

	pos.SetVec(vec.NewVec3f(0, 0, 0))
	assert.Equal(t, vec.Vec3f{}, pos.Vec())
}

func TestPosition_InSameDimension(t *testing.T) {
	_, dimA, dimB := newTestDimensions(t)

	assert.True(t, NewPosition(dimA, 0, 0, 0).InSameDimension(NewPosition(dimA, 5, 5, 5)))
	assert.False(t, NewPosition(dimA, 0, 0, 0).InSameDimension(NewPosition(dimB, 0, 0, 0)))
	assert.True(t, NewPosition(nil, 0, 0, 0).InSameDimension(Position{}))
}

func TestPosition_DanglingAfterRemove(t *testing.T) {
	lvl, _, dimB := newTestDimensions(t)
	pos := NewPosition(dimB, 1, 2, 3)

	require.NoError(t, lvl.RemoveDimension(NetherName))

	// Ссылка остаётся прежней: Position не следит за жизнью измерения
	assert.Same(t, dimB, pos.Dimension())
	assert.False(t, lvl.Owns(pos.Dimension()))
}

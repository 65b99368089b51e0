package main

import (
	"testing"

	"github.com/annel0/mmo-level/internal/eventbus"
	"github.com/annel0/mmo-level/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStringList(t *testing.T) {
	assert.Nil(t, parseStringList(""))
	assert.Equal(t, []string{"a", "b"}, parseStringList(" a, ,b "))
}

func TestFormatEvent(t *testing.T) {
	ev, err := eventbus.NewEnvelope("test", eventbus.EventDimensionChanged, 7, eventbus.DimensionChanged{
		UserID:        3,
		FromDimension: "overworld",
		ToDimension:   "nether",
		Block:         vec.Vec3{X: 1, Y: 2, Z: -1},
	})
	require.NoError(t, err)

	line := formatEvent(ev)
	assert.Contains(t, line, "user=3 overworld -> nether (1,2,-1)")

	ev, err = eventbus.NewEnvelope("test", eventbus.EventPositionChanged, 3, eventbus.PositionChanged{
		UserID:    4,
		Dimension: "overworld",
		FromBlock: vec.Vec3{X: 0, Y: 64, Z: 0},
		ToBlock:   vec.Vec3{X: -1, Y: 64, Z: 0},
	})
	require.NoError(t, err)
	assert.Contains(t, formatEvent(ev), "user=4 overworld (0,64,0) -> (-1,64,0)")

	ev.EventType = "Other"
	assert.Contains(t, formatEvent(ev), "Other src=test")
}

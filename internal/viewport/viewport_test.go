package viewport

import (
	"testing"

	"github.com/roverscan/rovermap/internal/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := New(800, 800)
	require.NoError(t, err)
	return tr
}

func TestUpdate_InsideComfortBoxDoesNotMove(t *testing.T) {
	tr := newTracker(t)
	offset := geo.Vec{X: -400, Y: -400}

	for _, pos := range []geo.Vec{{X: 0, Y: 0}, {X: -200, Y: -200}, {X: 200, Y: 200}, {X: 199, Y: -150}} {
		assert.Equal(t, offset, tr.Update(pos, offset), "pos %+v", pos)
		assert.True(t, tr.InComfort(pos, offset))
	}
}

func TestUpdate_StepsOncePerTick(t *testing.T) {
	tr := newTracker(t)
	offset := geo.Vec{X: -400, Y: -400}

	// just past the right edge of the comfort box
	next := tr.Update(geo.Vec{X: 350, Y: 0}, offset)
	assert.Equal(t, geo.Vec{X: -400 + 80, Y: -400}, next)

	// up and left
	next = tr.Update(geo.Vec{X: -350, Y: -390}, offset)
	assert.Equal(t, geo.Vec{X: -480, Y: -480}, next)
}

func TestUpdate_ConvergesWithoutOvershoot(t *testing.T) {
	tr := newTracker(t)
	offset := geo.Vec{X: -400, Y: -400}
	pos := geo.Vec{X: 2000, Y: -1500}
	centered := tr.Centered(pos)

	ticks := 0
	for !tr.InComfort(pos, offset) {
		next := tr.Update(pos, offset)
		assert.LessOrEqual(t, next.X-offset.X, 80.0)
		assert.GreaterOrEqual(t, next.Y-offset.Y, -80.0)
		assert.LessOrEqual(t, next.X, centered.X)
		assert.GreaterOrEqual(t, next.Y, centered.Y)
		offset = next
		ticks++
		require.Less(t, ticks, 100)
	}

	assert.Greater(t, ticks, 1, "a large jump needs several ticks")
	view := tr.ToView(pos, offset)
	assert.GreaterOrEqual(t, view.X, 200.0)
	assert.LessOrEqual(t, view.X, 600.0)
	assert.GreaterOrEqual(t, view.Y, 200.0)
	assert.LessOrEqual(t, view.Y, 600.0)
}

func TestUpdate_ClampsFinalStepToCentre(t *testing.T) {
	tr := &Tracker{Width: 100, Height: 100, Band: 0.25, Step: 0.5}
	require.NoError(t, tr.Validate())

	// rel.X = 80, a 50 unit step would overshoot the centring offset of 30
	next := tr.Update(geo.Vec{X: 80, Y: 50}, geo.Vec{})
	assert.Equal(t, geo.Vec{X: 30, Y: 0}, next)
}

func TestCentered(t *testing.T) {
	tr := newTracker(t)
	assert.Equal(t, geo.Vec{X: -390, Y: -420}, tr.Centered(geo.Vec{X: 10, Y: -20}))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		tr   Tracker
	}{
		{"zero width", Tracker{Width: 0, Height: 10, Band: 0.25, Step: 0.1}},
		{"negative height", Tracker{Width: 10, Height: -1, Band: 0.25, Step: 0.1}},
		{"band too wide", Tracker{Width: 10, Height: 10, Band: 0.5, Step: 0.1}},
		{"zero step", Tracker{Width: 10, Height: 10, Band: 0.25, Step: 0}},
		{"step above one", Tracker{Width: 10, Height: 10, Band: 0.25, Step: 1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.tr.Validate())
		})
	}

	_, err := New(0, 800)
	assert.Error(t, err)
}

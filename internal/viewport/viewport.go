// Package viewport keeps the rover inside the visible window by scrolling the
// view offset when the rover nears an edge.
package viewport

import (
	"fmt"

	"github.com/roverscan/rovermap/internal/geo"
)

// Default comfort band and scroll step, as fractions of the window size.
const (
	DefaultBand = 0.25
	DefaultStep = 0.10
)

// Tracker scrolls a fixed-size window over the world. The offset is the
// world coordinate of the window's top-left corner; the window spans
// [offset, offset+size) on both axes.
type Tracker struct {
	Width  float64
	Height float64
	// Band is the margin, as a fraction of the size, outside which the
	// window scrolls. The comfort box is [Band, 1-Band].
	Band float64
	// Step is the scroll distance per tick as a fraction of the size.
	Step float64
}

// New returns a tracker for a width x height window with the default band
// and step.
func New(width, height float64) (*Tracker, error) {
	t := &Tracker{Width: width, Height: height, Band: DefaultBand, Step: DefaultStep}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the window geometry.
func (t *Tracker) Validate() error {
	if !(t.Width > 0) || !(t.Height > 0) {
		return fmt.Errorf("viewport size must be positive, got %vx%v", t.Width, t.Height)
	}
	if !(t.Band >= 0 && t.Band < 0.5) {
		return fmt.Errorf("viewport band must be in [0, 0.5), got %v", t.Band)
	}
	if !(t.Step > 0 && t.Step <= 1) {
		return fmt.Errorf("viewport step must be in (0, 1], got %v", t.Step)
	}
	return nil
}

// Centered returns the offset that puts pos in the middle of the window.
func (t *Tracker) Centered(pos geo.Vec) geo.Vec {
	return geo.Vec{X: pos.X - t.Width/2, Y: pos.Y - t.Height/2}
}

// Update returns the offset for the next tick. Each axis moves by at most
// one step, towards pos, and only while pos is outside the comfort box.
func (t *Tracker) Update(pos, offset geo.Vec) geo.Vec {
	return geo.Vec{
		X: axis(pos.X, offset.X, t.Width, t.Band, t.Step),
		Y: axis(pos.Y, offset.Y, t.Height, t.Band, t.Step),
	}
}

// InComfort reports whether pos sits inside the comfort box of offset.
func (t *Tracker) InComfort(pos, offset geo.Vec) bool {
	return t.Update(pos, offset) == offset
}

// ToView converts a world position into window coordinates.
func (t *Tracker) ToView(pos, offset geo.Vec) geo.Vec {
	return pos.Sub(offset)
}

func axis(pos, offset, size, band, step float64) float64 {
	rel := pos - offset
	lo, hi := size*band, size*(1-band)
	s := size * step

	switch {
	case rel < lo:
		// never pass the point that would centre pos
		return offset - min(s, offset-(pos-size/2))
	case rel > hi:
		return offset + min(s, (pos-size/2)-offset)
	}
	return offset
}

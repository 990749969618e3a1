package rover

import (
	"github.com/roverscan/rovermap/internal/geo"
)

// Pose is the rover state the interpreter mutates.
type Pose struct {
	Position    geo.Vec   `json:"position"`
	Heading     float64   `json:"heading"`
	MastHeading float64   `json:"mast_heading"`
	Odometer    float64   `json:"odometer"`
	Path        []geo.Vec `json:"path"`
}

// NewPose places a rover at origin facing heading, with the mast aligned.
// The starting point is not part of the path.
func NewPose(origin geo.Vec, heading float64) Pose {
	h := geo.NormalizeDeg(heading)
	return Pose{
		Position:    origin,
		Heading:     h,
		MastHeading: h,
	}
}

// Clone returns a copy that shares no memory with p.
func (p Pose) Clone() Pose {
	if p.Path != nil {
		p.Path = append([]geo.Vec(nil), p.Path...)
	}
	return p
}

// Tail is Clone keeping only the last n path points.
func (p Pose) Tail(n int) Pose {
	if n < 0 {
		n = 0
	}
	if len(p.Path) > n {
		p.Path = p.Path[len(p.Path)-n:]
	}
	return p.Clone()
}

// RelativeMast is the mast heading measured from the rover heading.
func (p Pose) RelativeMast() float64 {
	return geo.NormalizeDeg(p.MastHeading - p.Heading)
}

// moveTo relocates the rover, adding dist to the odometer. The path only
// grows when the position actually changed.
func (p *Pose) moveTo(to geo.Vec, dist float64) bool {
	moved := to != p.Position
	p.Position = to
	p.Odometer += dist
	if !moved {
		return false
	}
	p.Path = append(p.Path, to)
	return true
}

package geo

import (
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
)

// DefaultArcStep is the angular spacing, in degrees, of the sampled arc.
const DefaultArcStep = 1.0

// Wedge is the field of view of the sensor mast at one instant: a fan
// polygon with its apex at the rover and an arc of radius Range centred on
// Direction.
type Wedge struct {
	Apex      Vec
	Direction float64
	HalfAngle float64
	Range     float64

	// Vertices holds the apex followed by the arc, unclosed.
	Vertices []Vec
}

// NewWedge builds the wedge for a sensor at apex pointing at direction.
// step is the arc sampling resolution in degrees; zero selects
// DefaultArcStep.
func NewWedge(apex Vec, direction, halfAngle, rangeLen, step float64) (Wedge, error) {
	if !apex.Finite() {
		return Wedge{}, ErrInvalidCoordinates
	}
	if !(halfAngle > 0 && halfAngle < 180) {
		return Wedge{}, fmt.Errorf("half angle must be in (0, 180), got %v", halfAngle)
	}
	if !(rangeLen > 0) || math.IsInf(rangeLen, 0) {
		return Wedge{}, fmt.Errorf("range must be positive, got %v", rangeLen)
	}
	if step == 0 {
		step = DefaultArcStep
	}
	if !(step > 0) || step > DefaultArcStep {
		return Wedge{}, fmt.Errorf("arc step must be in (0, %v], got %v", DefaultArcStep, step)
	}

	direction = NormalizeDeg(direction)
	start := direction - halfAngle
	sweep := 2 * halfAngle
	n := int(math.Ceil(sweep / step))

	verts := make([]Vec, 0, n+2)
	verts = append(verts, apex)
	for i := 0; i <= n; i++ {
		a := start + sweep*float64(i)/float64(n)
		verts = append(verts, Project(apex, a, rangeLen))
	}

	return Wedge{
		Apex:      apex,
		Direction: direction,
		HalfAngle: halfAngle,
		Range:     rangeLen,
		Vertices:  verts,
	}, nil
}

// Polygon builds the wedge as a closed simplefeatures polygon.
func (w Wedge) Polygon() geom.Polygon {
	flat := make([]float64, 0, (len(w.Vertices)+1)*2)
	for _, v := range w.Vertices {
		flat = append(flat, v.X, v.Y)
	}
	flat = append(flat, w.Apex.X, w.Apex.Y)
	ring := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	return geom.NewPolygon([]geom.LineString{ring})
}

// Envelope returns the bounding envelope of the sampled wedge.
func (w Wedge) Envelope() (geom.Envelope, error) {
	xys := make([]geom.XY, len(w.Vertices))
	for i, v := range w.Vertices {
		xys[i] = v.XY()
	}
	return geom.NewEnvelope(xys)
}

// Contains reports whether p lies inside or on the boundary of the wedge.
func (w Wedge) Contains(p Vec) bool {
	return geom.Intersects(w.Polygon().AsGeometry(), p.Point().AsGeometry())
}

// Area returns the area of the sampled polygon.
func (w Wedge) Area() float64 {
	return w.Polygon().Area()
}

// Bounds returns the axis-aligned bounding box of the wedge.
func (w Wedge) Bounds() (min, max Vec) {
	min, max = w.Apex, w.Apex
	for _, v := range w.Vertices {
		min.X = math.Min(min.X, v.X)
		min.Y = math.Min(min.Y, v.Y)
		max.X = math.Max(max.X, v.X)
		max.Y = math.Max(max.Y, v.Y)
	}
	return min, max
}

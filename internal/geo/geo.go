package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
)

// WORLD COORDINATES
// Heading 0 points along +x and angles grow counter-clockwise. World y is up;
// flipping to screen space is left to whatever draws the map.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Vec is a point or displacement in world coordinates.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns v+o.
func (v Vec) Add(o Vec) Vec { return Vec{X: v.X + o.X, Y: v.Y + o.Y} }

// Sub returns v-o.
func (v Vec) Sub(o Vec) Vec { return Vec{X: v.X - o.X, Y: v.Y - o.Y} }

// Scale returns v*k.
func (v Vec) Scale(k float64) Vec { return Vec{X: v.X * k, Y: v.Y * k} }

// Len returns the Euclidean length of v.
func (v Vec) Len() float64 { return math.Hypot(v.X, v.Y) }

// Dist returns the Euclidean distance between v and o.
func (v Vec) Dist(o Vec) float64 { return v.Sub(o).Len() }

// Finite reports whether both components are finite numbers.
func (v Vec) Finite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) && !math.IsNaN(v.Y) && !math.IsInf(v.Y, 0)
}

// Array returns v as an [x, y] pair, the layout used in saved maps.
func (v Vec) Array() [2]float64 { return [2]float64{v.X, v.Y} }

// VecFromArray is the inverse of Array.
func VecFromArray(a [2]float64) Vec { return Vec{X: a[0], Y: a[1]} }

// XY converts v to a simplefeatures XY.
func (v Vec) XY() geom.XY { return geom.XY{X: v.X, Y: v.Y} }

// Point converts v to a simplefeatures point.
func (v Vec) Point() geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   v.XY(),
		Type: geom.DimXY,
	})
}

// NormalizeDeg folds an angle in degrees into [0, 360).
func NormalizeDeg(deg float64) float64 {
	n := math.Mod(deg, 360)
	if n < 0 {
		n += 360
	}
	// -1e-15 + 360 rounds to 360
	if n >= 360 {
		n = 0
	}
	return n
}

// UnitVector returns the unit vector pointing at deg.
func UnitVector(deg float64) Vec {
	rad := deg * math.Pi / 180
	return Vec{X: math.Cos(rad), Y: math.Sin(rad)}
}

// Project returns the point dist away from origin in direction deg.
func Project(origin Vec, deg, dist float64) Vec {
	return origin.Add(UnitVector(deg).Scale(dist))
}

// ParseVec parses a string in the format "x,y" into a Vec.
// Extra components beyond the second are ignored.
func ParseVec(coords string) (Vec, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) < 2 {
		return Vec{}, ErrInvalidCoordinates
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[0]), 64)
	if err != nil {
		return Vec{}, ErrInvalidCoordinates
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[1]), 64)
	if err != nil {
		return Vec{}, ErrInvalidCoordinates
	}
	v := Vec{X: x, Y: y}
	if !v.Finite() {
		return Vec{}, ErrInvalidCoordinates
	}
	return v, nil
}

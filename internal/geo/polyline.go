package geo

import (
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
)

// PathLineString converts a travelled path into a geom.LineString.
func PathLineString(path []Vec) (geom.LineString, error) {
	if len(path) < 2 {
		return geom.LineString{}, fmt.Errorf("path must have at least 2 points, got %d", len(path))
	}

	flatCoords := make([]float64, 0, len(path)*2)
	for i, p := range path {
		if !p.Finite() {
			return geom.LineString{}, fmt.Errorf("coordinate %d is not finite", i)
		}
		flatCoords = append(flatCoords, p.X, p.Y)
	}

	seq := geom.NewSequence(flatCoords, geom.DimXY)
	return geom.NewLineString(seq), nil
}

// PathLength sums the segment lengths of path. Paths shorter than two
// points have zero length.
func PathLength(path []Vec) float64 {
	ls, err := PathLineString(path)
	if err != nil {
		return 0
	}
	return ls.Length()
}

// Segment builds a two-point line string from a to b.
func Segment(a, b Vec) geom.LineString {
	seq := geom.NewSequence([]float64{a.X, a.Y, b.X, b.Y}, geom.DimXY)
	return geom.NewLineString(seq)
}

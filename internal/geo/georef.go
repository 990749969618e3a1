package geo

import (
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Georeference anchors the local world frame to a place on the globe. World
// units are treated as EPSG:3857 metres offset from the origin.
type Georeference struct {
	OriginLon float64
	OriginLat float64
}

// LonLat converts a world position into EPSG:4326 longitude and latitude.
func (g Georeference) LonLat(v Vec) (lon, lat float64) {
	epsg := wgs84.EPSG()
	x, y, _ := epsg.Transform(4326, 3857)(g.OriginLon, g.OriginLat, 0)
	lon, lat, _ = epsg.Transform(3857, 4326)(x+v.X, y+v.Y, 0)
	return lon, lat
}

// Point returns the world position as a lon/lat point.
func (g Georeference) Point(v Vec) geom.Point {
	lon, lat := g.LonLat(v)
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: lon, Y: lat},
		Type: geom.DimXY,
	})
}

// LineString returns pts as a lon/lat line string. It needs at least two
// points.
func (g Georeference) LineString(pts []Vec) (geom.LineString, error) {
	ll := make([]Vec, len(pts))
	for i, p := range pts {
		lon, lat := g.LonLat(p)
		ll[i] = Vec{X: lon, Y: lat}
	}
	return PathLineString(ll)
}

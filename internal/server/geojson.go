package server

import (
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/roverscan/rovermap/internal/geo"
	"github.com/roverscan/rovermap/internal/session"
)

// FeatureCollection renders a map document in lon/lat: the travelled path,
// the rover, resources as points and obstacles as segments.
func FeatureCollection(doc *session.Document, ref geo.Georeference) (geom.GeoJSONFeatureCollection, error) {
	fc := geom.GeoJSONFeatureCollection{}

	if len(doc.Path) >= 2 {
		path := make([]geo.Vec, len(doc.Path))
		for i, p := range doc.Path {
			path[i] = geo.VecFromArray(p)
		}
		ls, err := ref.LineString(path)
		if err != nil {
			return nil, err
		}
		fc = append(fc, geom.GeoJSONFeature{
			Geometry: ls.AsGeometry(),
			Properties: map[string]any{
				"kind":     "path",
				"length":   geo.PathLength(path),
				"odometer": doc.Odometer,
			},
		})
	}

	if doc.RoverPos != nil {
		props := map[string]any{"kind": "rover"}
		if doc.RoverAngle != nil {
			props["heading"] = *doc.RoverAngle
		}
		if doc.MastAngle != nil {
			props["mast"] = *doc.MastAngle
		}
		fc = append(fc, geom.GeoJSONFeature{
			Geometry:   ref.Point(geo.VecFromArray(*doc.RoverPos)).AsGeometry(),
			Properties: props,
		})
	}

	for i, m := range doc.Resources {
		if m.Position == nil {
			continue
		}
		fc = append(fc, geom.GeoJSONFeature{
			ID:         i + 1,
			Geometry:   ref.Point(geo.VecFromArray(*m.Position)).AsGeometry(),
			Properties: markerProperties("resource", m),
		})
	}

	for i, m := range doc.Obstacles {
		var g geom.Geometry
		switch {
		case m.Start != nil && m.End != nil:
			ls, err := ref.LineString([]geo.Vec{geo.VecFromArray(*m.Start), geo.VecFromArray(*m.End)})
			if err != nil {
				return nil, err
			}
			g = ls.AsGeometry()
		case m.Position != nil:
			g = ref.Point(geo.VecFromArray(*m.Position)).AsGeometry()
		default:
			continue
		}
		fc = append(fc, geom.GeoJSONFeature{
			ID:         i + 1,
			Geometry:   g,
			Properties: markerProperties("obstacle", m),
		})
	}

	return fc, nil
}

func markerProperties(kind string, m session.Marker) map[string]any {
	props := map[string]any{"kind": kind}
	if m.Label != "" {
		props["label"] = m.Label
	}
	if m.Size != 0 {
		props["size"] = m.Size
	}
	return props
}

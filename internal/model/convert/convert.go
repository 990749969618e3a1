// Package convert provides functions to convert between GORM models and session documents
package convert

import (
	"encoding/json"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/roverscan/rovermap/internal/geo"
	"github.com/roverscan/rovermap/internal/model"
	"github.com/roverscan/rovermap/internal/session"
	"github.com/roverscan/rovermap/internal/storage"
	"gorm.io/datatypes"
)

// ToMapRecord converts a session document to a GORM MapRecord.
func ToMapRecord(name string, doc *session.Document) (model.MapRecord, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return model.MapRecord{}, fmt.Errorf("failed to encode map: %w", err)
	}
	track, err := pathToTrack(doc.Path)
	if err != nil {
		return model.MapRecord{}, err
	}

	rec := model.MapRecord{
		Name:      name,
		SessionID: doc.SessionID,
		Document:  datatypes.JSON(data),
		Track:     track,
		Odometer:  doc.Odometer,
		Resources: len(doc.Resources),
		Obstacles: len(doc.Obstacles),
		Size:      int64(len(data)),
	}
	if doc.ScannedZone != nil {
		rec.ScannedCells = scannedCells(doc.ScannedZone)
	}
	return rec, nil
}

// ToDocument decodes the document stored in a MapRecord.
func ToDocument(rec model.MapRecord) (*session.Document, error) {
	return session.Decode(rec.Document)
}

// ToMapInfo converts a MapRecord to its listing entry.
func ToMapInfo(rec model.MapRecord) storage.MapInfo {
	return storage.MapInfo{
		Name:      rec.Name,
		Size:      rec.Size,
		UpdatedAt: rec.UpdatedAt,
	}
}

// pathToTrack converts a saved path to a LineString geometry. Paths shorter
// than two points have no line and map to an empty geometry.
func pathToTrack(path [][2]float64) (geom.Geometry, error) {
	if len(path) < 2 {
		return geom.Geometry{}, nil
	}
	pts := make([]geo.Vec, len(path))
	for i, p := range path {
		pts[i] = geo.VecFromArray(p)
	}
	ls, err := geo.PathLineString(pts)
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("map track: %w", err)
	}
	return ls.AsGeometry(), nil
}

// scannedCells counts the set bits of a saved coverage map without keeping
// the decoded grid around.
func scannedCells(z *session.ScannedZone) int {
	cov, err := session.DecodeCoverage(z)
	if err != nil {
		return 0
	}
	return cov.Count()
}

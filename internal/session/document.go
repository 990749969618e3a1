package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/roverscan/rovermap/internal/annotation"
	"github.com/roverscan/rovermap/internal/coverage"
	"github.com/roverscan/rovermap/internal/geo"
	"github.com/roverscan/rovermap/internal/rover"
)

// Document is the persisted form of a session. Required fields are
// pointers so a missing value is told apart from zero.
type Document struct {
	SessionID   string       `json:"session_id,omitempty"`
	Path        [][2]float64 `json:"path"`
	RoverPos    *[2]float64  `json:"rover_pos"`
	RoverAngle  *float64     `json:"rover_angle"`
	MastAngle   *float64     `json:"mast_angle"`
	Odometer    float64      `json:"odometer,omitempty"`
	Resources   []Marker     `json:"resources"`
	Obstacles   []Marker     `json:"obstacles"`
	ScannedZone *ScannedZone `json:"scanned_zone,omitempty"`
}

// Marker is a persisted annotation. Obstacles also carry their segment.
type Marker struct {
	Position *[2]float64 `json:"position"`
	Size     float64     `json:"size"`
	Label    string      `json:"label"`
	Start    *[2]float64 `json:"start,omitempty"`
	End      *[2]float64 `json:"end,omitempty"`
}

// ScannedZone is the persisted coverage map. Data holds the coverage binary
// encoding and is base64 in JSON.
type ScannedZone struct {
	Data     []byte     `json:"data"`
	Size     [2]int     `json:"size"`
	CellSize float64    `json:"cell_size"`
	Origin   [2]float64 `json:"origin"`
}

// Document captures the session for saving.
func (s *Session) Document() (*Document, error) {
	data, err := s.coverage.MarshalBinary()
	if err != nil {
		return nil, err
	}

	pos := s.pose.Position.Array()
	heading := s.pose.Heading
	mast := s.pose.MastHeading
	doc := &Document{
		SessionID:  s.id,
		Path:       make([][2]float64, len(s.pose.Path)),
		RoverPos:   &pos,
		RoverAngle: &heading,
		MastAngle:  &mast,
		Odometer:   s.pose.Odometer,
		Resources:  []Marker{},
		Obstacles:  []Marker{},
		ScannedZone: &ScannedZone{
			Data:     data,
			Size:     [2]int{s.coverage.Cols(), s.coverage.Rows()},
			CellSize: s.coverage.CellSize(),
			Origin:   s.coverage.Origin().Array(),
		},
	}
	for i, p := range s.pose.Path {
		doc.Path[i] = p.Array()
	}
	for _, a := range s.notes.All() {
		p := a.Position.Array()
		m := Marker{Position: &p, Size: a.Size, Label: a.Label}
		if a.Kind == annotation.Obstacle {
			start, end := a.Start.Array(), a.End.Array()
			m.Start, m.End = &start, &end
			doc.Obstacles = append(doc.Obstacles, m)
			continue
		}
		doc.Resources = append(doc.Resources, m)
	}
	return doc, nil
}

// Encode serializes a document as indented JSON.
func Encode(doc *Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// Decode parses a JSON document. Structural problems are ErrCorruptState.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return &doc, nil
}

// Restore builds a session from a saved document. Nothing is adopted unless
// the whole document is valid; missing required fields, non-finite numbers
// and a coverage map that fails to decode are ErrCorruptState. A document
// without scanned_zone restores with an empty coverage map.
func Restore(doc *Document, cfg Config) (*Session, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: no document", ErrCorruptState)
	}
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}

	pose, err := restorePose(doc)
	if err != nil {
		return nil, err
	}

	var notes []annotation.Annotation
	for i, m := range doc.Resources {
		a, err := restoreMarker(m, annotation.Resource)
		if err != nil {
			return nil, fmt.Errorf("%w: resource %d: %v", ErrCorruptState, i, err)
		}
		notes = append(notes, a)
	}
	for i, m := range doc.Obstacles {
		a, err := restoreMarker(m, annotation.Obstacle)
		if err != nil {
			return nil, fmt.Errorf("%w: obstacle %d: %v", ErrCorruptState, i, err)
		}
		notes = append(notes, a)
	}
	if err := s.notes.Restore(notes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	if z := doc.ScannedZone; z != nil {
		cov, err := DecodeCoverage(z)
		if err != nil {
			return nil, err
		}
		s.coverage = cov
	}

	if doc.SessionID != "" {
		if _, err := uuid.Parse(doc.SessionID); err != nil {
			return nil, fmt.Errorf("%w: session id %q", ErrCorruptState, doc.SessionID)
		}
		s.id = doc.SessionID
	}
	s.pose = pose
	s.offset = s.tracker.Centered(pose.Position)
	return s, nil
}

func restorePose(doc *Document) (rover.Pose, error) {
	switch {
	case doc.RoverPos == nil:
		return rover.Pose{}, fmt.Errorf("%w: missing rover_pos", ErrCorruptState)
	case doc.RoverAngle == nil:
		return rover.Pose{}, fmt.Errorf("%w: missing rover_angle", ErrCorruptState)
	case doc.MastAngle == nil:
		return rover.Pose{}, fmt.Errorf("%w: missing mast_angle", ErrCorruptState)
	}

	pos := geo.VecFromArray(*doc.RoverPos)
	if !pos.Finite() {
		return rover.Pose{}, fmt.Errorf("%w: rover_pos %v", ErrCorruptState, *doc.RoverPos)
	}
	if !finite(*doc.RoverAngle) || !finite(*doc.MastAngle) {
		return rover.Pose{}, fmt.Errorf("%w: non-finite angle", ErrCorruptState)
	}
	if !finite(doc.Odometer) || doc.Odometer < 0 {
		return rover.Pose{}, fmt.Errorf("%w: odometer %v", ErrCorruptState, doc.Odometer)
	}

	pose := rover.Pose{
		Position:    pos,
		Heading:     geo.NormalizeDeg(*doc.RoverAngle),
		MastHeading: geo.NormalizeDeg(*doc.MastAngle),
		Odometer:    doc.Odometer,
	}
	for i, p := range doc.Path {
		v := geo.VecFromArray(p)
		if !v.Finite() {
			return rover.Pose{}, fmt.Errorf("%w: path point %d", ErrCorruptState, i)
		}
		pose.Path = append(pose.Path, v)
	}
	if n := len(pose.Path); n > 0 && pose.Path[n-1] != pos {
		return rover.Pose{}, fmt.Errorf("%w: path ends at %v, rover at %v", ErrCorruptState, pose.Path[n-1], pos)
	}
	return pose, nil
}

func restoreMarker(m Marker, kind annotation.Kind) (annotation.Annotation, error) {
	if m.Position == nil {
		return annotation.Annotation{}, errors.New("missing position")
	}
	a := annotation.Annotation{
		Kind:     kind,
		Position: geo.VecFromArray(*m.Position),
		Label:    m.Label,
		Size:     m.Size,
	}
	if kind == annotation.Obstacle {
		// older maps stored obstacles as points
		a.Start, a.End = a.Position, a.Position
		if (m.Start == nil) != (m.End == nil) {
			return annotation.Annotation{}, errors.New("segment needs both start and end")
		}
		if m.Start != nil {
			a.Start, a.End = geo.VecFromArray(*m.Start), geo.VecFromArray(*m.End)
		}
	}
	return a, nil
}

// DecodeCoverage rebuilds the coverage map held by a scanned zone and
// checks it against the zone layout.
func DecodeCoverage(z *ScannedZone) (*coverage.Map, error) {
	var cov coverage.Map
	if err := cov.UnmarshalBinary(z.Data); err != nil {
		return nil, fmt.Errorf("%w: scanned_zone: %v", ErrCorruptState, err)
	}
	if z.Size != [2]int{cov.Cols(), cov.Rows()} ||
		z.CellSize != cov.CellSize() ||
		geo.VecFromArray(z.Origin) != cov.Origin() {
		return nil, fmt.Errorf("%w: scanned_zone layout does not match its bitmap", ErrCorruptState)
	}
	return &cov, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Package annotation records resources and obstacles spotted through the
// sensor mast.
package annotation

import (
	"errors"
	"fmt"
	"math"

	"github.com/roverscan/rovermap/internal/geo"
)

// ErrInvalidPlacement is returned for a non-positive distance or length.
var ErrInvalidPlacement = errors.New("invalid placement")

// Kind tells resources and obstacles apart.
type Kind string

const (
	Resource Kind = "resource"
	Obstacle Kind = "obstacle"
)

// Annotation is a marker fixed at placement time. Obstacles are segments
// centred on Position, perpendicular to the mast direction.
type Annotation struct {
	ID       int     `json:"id"`
	Kind     Kind    `json:"kind"`
	Position geo.Vec `json:"position"`
	Start    geo.Vec `json:"start"`
	End      geo.Vec `json:"end"`
	Label    string  `json:"label,omitempty"`
	Size     float64 `json:"size,omitempty"`
}

// Length returns the obstacle segment length, zero for resources.
func (a Annotation) Length() float64 {
	if a.Kind != Obstacle {
		return 0
	}
	return a.Start.Dist(a.End)
}

// Store is an append-only list of annotations.
type Store struct {
	items  []Annotation
	nextID int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{nextID: 1}
}

// PlaceResource records a resource distance units from rover along the
// mast heading.
func (s *Store) PlaceResource(rover geo.Vec, mastHeading, distance float64, label string, size float64) (Annotation, error) {
	if err := checkPositive("distance", distance); err != nil {
		return Annotation{}, err
	}
	a := Annotation{
		Kind:     Resource,
		Position: geo.Project(rover, mastHeading, distance),
		Label:    label,
		Size:     size,
	}
	return s.add(a), nil
}

// PlaceObstacle records an obstacle segment of the given length centred
// distance units from rover along the mast heading, lying across the mast.
func (s *Store) PlaceObstacle(rover geo.Vec, mastHeading, distance, length float64, label string, size float64) (Annotation, error) {
	if err := checkPositive("distance", distance); err != nil {
		return Annotation{}, err
	}
	if err := checkPositive("length", length); err != nil {
		return Annotation{}, err
	}
	centre := geo.Project(rover, mastHeading, distance)
	across := mastHeading + 90
	a := Annotation{
		Kind:     Obstacle,
		Position: centre,
		Start:    geo.Project(centre, across, -length/2),
		End:      geo.Project(centre, across, length/2),
		Label:    label,
		Size:     size,
	}
	return s.add(a), nil
}

// All returns every annotation in placement order.
func (s *Store) All() []Annotation {
	return append([]Annotation(nil), s.items...)
}

// Resources returns the resources in placement order.
func (s *Store) Resources() []Annotation {
	return s.filter(Resource)
}

// Obstacles returns the obstacles in placement order.
func (s *Store) Obstacles() []Annotation {
	return s.filter(Obstacle)
}

// Len returns the number of annotations.
func (s *Store) Len() int {
	return len(s.items)
}

// Reset drops every annotation.
func (s *Store) Reset() {
	s.items = nil
	s.nextID = 1
}

// Restore replaces the contents with previously saved annotations. IDs are
// reassigned in order.
func (s *Store) Restore(items []Annotation) error {
	restored := make([]Annotation, 0, len(items))
	for i, a := range items {
		if a.Kind != Resource && a.Kind != Obstacle {
			return fmt.Errorf("annotation %d: unknown kind %q", i, a.Kind)
		}
		if !a.Position.Finite() || !a.Start.Finite() || !a.End.Finite() || math.IsNaN(a.Size) || math.IsInf(a.Size, 0) {
			return fmt.Errorf("annotation %d: %w", i, geo.ErrInvalidCoordinates)
		}
		a.ID = i + 1
		restored = append(restored, a)
	}
	s.items = restored
	s.nextID = len(restored) + 1
	return nil
}

func (s *Store) add(a Annotation) Annotation {
	a.ID = s.nextID
	s.nextID++
	s.items = append(s.items, a)
	return a
}

func (s *Store) filter(kind Kind) []Annotation {
	var out []Annotation
	for _, a := range s.items {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func checkPositive(name string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be positive, got %v: %w", name, v, ErrInvalidPlacement)
	}
	return nil
}

// Package session owns one mapping run: the rover pose, the coverage map,
// the annotations and the view state. It is the unit of save and load.
//
// A Session is not safe for concurrent use; callers serialize access.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/roverscan/rovermap/internal/annotation"
	"github.com/roverscan/rovermap/internal/coverage"
	"github.com/roverscan/rovermap/internal/geo"
	"github.com/roverscan/rovermap/internal/rover"
	"github.com/roverscan/rovermap/internal/viewport"
)

var (
	// ErrInvalidArgument is returned for magnitudes a command cannot take.
	ErrInvalidArgument = rover.ErrInvalidArgument
	// ErrUnknownCommand is returned for unrecognized command kinds.
	ErrUnknownCommand = rover.ErrUnknownCommand
	// ErrNotFound is returned when a referenced map does not exist.
	ErrNotFound = errors.New("map not found")
	// ErrCorruptState is returned when persisted state cannot be adopted.
	ErrCorruptState = errors.New("corrupt map state")
)

// Session is one mapping run.
type Session struct {
	id      string
	name    string
	started time.Time
	cfg     Config

	interp  *rover.Interpreter
	tracker *viewport.Tracker

	pose     rover.Pose
	offset   geo.Vec
	coverage *coverage.Map
	notes    *annotation.Store

	scanning      bool
	showResources bool
	showObstacles bool
}

// New starts a blank session at the configured origin.
func New(cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tracker, err := cfg.tracker()
	if err != nil {
		return nil, err
	}
	cov, err := coverage.New(cfg.Coverage.Width, cfg.Coverage.Height, cfg.Coverage.CellSize)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:       uuid.NewString(),
		started:  time.Now(),
		cfg:      cfg,
		interp:   cfg.interpreter(),
		tracker:  tracker,
		coverage: cov,
		notes:    annotation.NewStore(),
	}
	s.resetState()
	return s, nil
}

func (s *Session) resetState() {
	s.pose = rover.NewPose(s.cfg.Rover.Origin, s.cfg.Rover.Heading)
	s.offset = s.tracker.Centered(s.pose.Position)
	s.coverage.Reset()
	s.notes.Reset()
	s.scanning = s.cfg.Sensor.ScanOnStart
	s.showResources = false
	s.showObstacles = false
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Name returns the map name the session was loaded from or last saved as.
func (s *Session) Name() string { return s.name }

// SetName records the map name.
func (s *Session) SetName(name string) { s.name = name }

// Started returns when the session was created.
func (s *Session) Started() time.Time { return s.started }

// Config returns the session configuration.
func (s *Session) Config() Config { return s.cfg }

// Pose returns a copy of the rover pose.
func (s *Session) Pose() rover.Pose { return s.pose.Clone() }

// LivePathTail bounds the path carried by snapshots and acks. The full path
// is only in the Document.
const LivePathTail = 64

// LivePose returns a copy of the pose with the path cut to LivePathTail.
func (s *Session) LivePose() rover.Pose { return s.pose.Tail(LivePathTail) }

// Offset returns the viewport offset.
func (s *Session) Offset() geo.Vec { return s.offset }

// Coverage returns the coverage map. Callers must not mutate it.
func (s *Session) Coverage() *coverage.Map { return s.coverage }

// Annotations returns every annotation in placement order.
func (s *Session) Annotations() []annotation.Annotation { return s.notes.All() }

// Scanning reports whether the sensor sweeps every tick.
func (s *Session) Scanning() bool { return s.scanning }

// Move applies a motion command to the pose.
func (s *Session) Move(cmd rover.Command) (rover.PoseDelta, error) {
	return s.interp.Apply(&s.pose, cmd)
}

// PlaceResource drops a resource along the mast. A zero distance selects
// the configured default.
func (s *Session) PlaceResource(distance float64, label string, size float64) (annotation.Annotation, error) {
	if distance == 0 {
		distance = s.cfg.Annotation.ResourceDistance
	}
	a, err := s.notes.PlaceResource(s.pose.Position, s.pose.MastHeading, distance, label, size)
	return a, placementError(err)
}

// PlaceObstacle drops an obstacle segment across the mast. A zero distance
// selects the configured default; the length is always the configured one.
func (s *Session) PlaceObstacle(distance float64, label string, size float64) (annotation.Annotation, error) {
	if distance == 0 {
		distance = s.cfg.Annotation.ObstacleDistance
	}
	a, err := s.notes.PlaceObstacle(s.pose.Position, s.pose.MastHeading, distance, s.cfg.Annotation.ObstacleLength, label, size)
	return a, placementError(err)
}

func placementError(err error) error {
	if errors.Is(err, annotation.ErrInvalidPlacement) {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return err
}

// ToggleScanning flips the scanning flag and returns the new value.
func (s *Session) ToggleScanning() bool {
	s.scanning = !s.scanning
	return s.scanning
}

// ToggleResourceList flips the resource overlay and returns the new value.
func (s *Session) ToggleResourceList() bool {
	s.showResources = !s.showResources
	return s.showResources
}

// ToggleObstacleList flips the obstacle overlay and returns the new value.
func (s *Session) ToggleObstacleList() bool {
	s.showObstacles = !s.showObstacles
	return s.showObstacles
}

// Wedge computes the current field of view.
func (s *Session) Wedge() (geo.Wedge, error) {
	return geo.NewWedge(s.pose.Position, s.pose.MastHeading, s.cfg.Sensor.FOVAngle/2, s.cfg.Sensor.Range, s.cfg.Sensor.ArcStep)
}

// TickResult reports what one frame changed.
type TickResult struct {
	NewlyScanned int
	Scrolled     bool
}

// Tick advances one frame: the wedge is unioned into the coverage map while
// scanning, then the viewport scrolls by at most one step.
func (s *Session) Tick() (TickResult, error) {
	var res TickResult
	if s.scanning {
		w, err := s.Wedge()
		if err != nil {
			return res, err
		}
		res.NewlyScanned = s.coverage.Scan(w)
	}
	next := s.tracker.Update(s.pose.Position, s.offset)
	res.Scrolled = next != s.offset
	s.offset = next
	return res, nil
}

// Reset returns the session to a blank map at the configured origin. The
// session keeps its identity.
func (s *Session) Reset() {
	s.resetState()
}

// Status is the one-line heads-up display.
func (s *Session) Status() string {
	return fmt.Sprintf("Resources: %d | Obstacles: %d | Odometer: %.1f | Scanned: %.2f%% | Pos: (%.1f, %.1f) | Heading: %.0f | Mast: %.0f",
		len(s.notes.Resources()),
		len(s.notes.Obstacles()),
		s.pose.Odometer,
		s.coverage.Percentage(),
		s.pose.Position.X, s.pose.Position.Y,
		s.pose.Heading,
		s.pose.MastHeading,
	)
}

// Snapshot is a consistent copy of the session state for readers outside
// the tick loop.
type Snapshot struct {
	SessionID     string                  `json:"session_id"`
	MapName       string                  `json:"map_name,omitempty"`
	Frame         uint64                  `json:"frame"`
	Time          time.Time               `json:"time"`
	Pose          rover.Pose              `json:"pose"`
	PathLength    int                     `json:"path_length"`
	Offset        geo.Vec                 `json:"offset"`
	Scanning      bool                    `json:"scanning"`
	ShowResources bool                    `json:"show_resources"`
	ShowObstacles bool                    `json:"show_obstacles"`
	Coverage      float64                 `json:"coverage"`
	ScannedCells  int                     `json:"scanned_cells"`
	Resources     []annotation.Annotation `json:"resources"`
	Obstacles     []annotation.Annotation `json:"obstacles"`
	Status        string                  `json:"status"`
}

// Snapshot copies the current state. Pose.Path holds the most recent
// points only; PathLength counts all of them.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		SessionID:     s.id,
		MapName:       s.name,
		Time:          time.Now(),
		Pose:          s.LivePose(),
		PathLength:    len(s.pose.Path),
		Offset:        s.offset,
		Scanning:      s.scanning,
		ShowResources: s.showResources,
		ShowObstacles: s.showObstacles,
		Coverage:      s.coverage.Percentage(),
		ScannedCells:  s.coverage.Count(),
		Resources:     s.notes.Resources(),
		Obstacles:     s.notes.Obstacles(),
		Status:        s.Status(),
	}
}

// Ack is the acknowledgement sent back for every command.
type Ack struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Pose    rover.Pose `json:"pose"`
}

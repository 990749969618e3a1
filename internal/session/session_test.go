package session

import (
	"testing"

	"github.com/roverscan/rovermap/internal/geo"
	"github.com/roverscan/rovermap/internal/rover"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T) *Session {
	t.Helper()
	s, err := New(DefaultConfig())
	require.NoError(t, err)
	return s
}

func move(t *testing.T, s *Session, kind rover.Kind, m float64) {
	t.Helper()
	_, err := s.Move(rover.Command{Kind: kind, Magnitude: m})
	require.NoError(t, err)
}

func TestNew_Blank(t *testing.T) {
	s := newSession(t)

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, geo.Vec{}, s.Pose().Position)
	assert.Equal(t, geo.Vec{X: -400, Y: -400}, s.Offset())
	assert.False(t, s.Scanning())
	assert.Equal(t, 0.0, s.Coverage().Percentage())
	assert.Empty(t, s.Annotations())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sensor.Range = 0
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Viewport.Width = 0
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Coverage.CellSize = -1
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestDriveForwardScenario(t *testing.T) {
	s := newSession(t)

	for i := 0; i < 5; i++ {
		move(t, s, rover.DriveForward, 10)
	}

	p := s.Pose()
	assert.InDelta(t, 50.0, p.Position.X, 1e-9)
	assert.InDelta(t, 0.0, p.Position.Y, 1e-9)
	assert.Equal(t, 50.0, p.Odometer)
	assert.Len(t, p.Path, 5)
}

func TestStationarySweepScenario(t *testing.T) {
	s := newSession(t)
	require.True(t, s.ToggleScanning())

	sweep := func() {
		for i := 0; i < 18; i++ {
			move(t, s, rover.RotateMast, 5)
			_, err := s.Tick()
			require.NoError(t, err)
		}
		for i := 0; i < 18; i++ {
			move(t, s, rover.RotateMastRight, 5)
			_, err := s.Tick()
			require.NoError(t, err)
		}
	}

	sweep()
	after := s.Coverage().Percentage()
	assert.Greater(t, after, 0.0)

	sweep()
	assert.Equal(t, after, s.Coverage().Percentage())
	assert.Equal(t, geo.Vec{}, s.Pose().Position)
}

func TestTick_NoScanWhenOff(t *testing.T) {
	s := newSession(t)

	res, err := s.Tick()
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewlyScanned)
	assert.False(t, res.Scrolled)
	assert.Equal(t, 0.0, s.Coverage().Percentage())
}

func TestTick_ScrollsViewport(t *testing.T) {
	s := newSession(t)
	move(t, s, rover.DriveForward, 300)

	res, err := s.Tick()
	require.NoError(t, err)
	assert.True(t, res.Scrolled)
	assert.Equal(t, geo.Vec{X: -320, Y: -400}, s.Offset())
}

func TestPlaceResource_DefaultDistance(t *testing.T) {
	s := newSession(t)
	move(t, s, rover.RotateMast, 90)

	a, err := s.PlaceResource(0, "ice", 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, a.Position.X, 1e-9)
	assert.InDelta(t, 15.0, a.Position.Y, 1e-9)
}

func TestPlaceObstacle_UsesConfiguredLength(t *testing.T) {
	s := newSession(t)

	o, err := s.PlaceObstacle(20, "rock", 3)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, o.Position.X, 1e-9)
	assert.InDelta(t, 30.0, o.Length(), 1e-9)
	assert.Equal(t, 3.0, o.Size)
}

func TestPlace_RejectsNegativeDistance(t *testing.T) {
	s := newSession(t)

	_, err := s.PlaceResource(-1, "", 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.PlaceObstacle(-1, "", 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, s.Annotations())
}

func TestToggles(t *testing.T) {
	s := newSession(t)

	assert.True(t, s.ToggleResourceList())
	assert.True(t, s.ToggleObstacleList())
	assert.False(t, s.ToggleResourceList())

	snap := s.Snapshot()
	assert.False(t, snap.ShowResources)
	assert.True(t, snap.ShowObstacles)
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := newSession(t)
	move(t, s, rover.DriveForward, 5)
	_, err := s.PlaceResource(0, "a", 0)
	require.NoError(t, err)

	snap := s.Snapshot()
	snap.Pose.Path[0] = geo.Vec{X: 999}
	snap.Resources[0].Label = "changed"

	assert.Equal(t, 5.0, s.Pose().Path[0].X)
	assert.Equal(t, "a", s.Annotations()[0].Label)
	assert.Equal(t, s.ID(), snap.SessionID)
	assert.Len(t, snap.Resources, 1)
	assert.Empty(t, snap.Obstacles)
	assert.Contains(t, snap.Status, "Resources: 1")
}

func TestStatus(t *testing.T) {
	s := newSession(t)
	move(t, s, rover.DriveForward, 12.5)

	assert.Equal(t,
		"Resources: 0 | Obstacles: 0 | Odometer: 12.5 | Scanned: 0.00% | Pos: (12.5, 0.0) | Heading: 0 | Mast: 0",
		s.Status())
}

func TestReset(t *testing.T) {
	s := newSession(t)
	id := s.ID()
	s.ToggleScanning()
	move(t, s, rover.DriveForward, 10)
	_, err := s.Tick()
	require.NoError(t, err)
	_, err = s.PlaceObstacle(0, "", 0)
	require.NoError(t, err)

	s.Reset()

	assert.Equal(t, id, s.ID())
	assert.Equal(t, geo.Vec{}, s.Pose().Position)
	assert.Empty(t, s.Pose().Path)
	assert.Equal(t, 0.0, s.Coverage().Percentage())
	assert.Empty(t, s.Annotations())
	assert.False(t, s.Scanning())
}

func TestMove_UnknownCommand(t *testing.T) {
	s := newSession(t)
	_, err := s.Move(rover.Command{Kind: rover.SaveMap})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestSnapshot_PathTail(t *testing.T) {
	s := newSession(t)
	steps := LivePathTail + 10
	for i := 0; i < steps; i++ {
		move(t, s, rover.DriveForward, 1)
	}

	snap := s.Snapshot()
	assert.Equal(t, steps, snap.PathLength)
	require.Len(t, snap.Pose.Path, LivePathTail)
	assert.Equal(t, s.Pose().Position, snap.Pose.Path[LivePathTail-1])
	assert.InDelta(t, 11.0, snap.Pose.Path[0].X, 1e-9)

	assert.Len(t, s.LivePose().Path, LivePathTail)
	doc, err := s.Document()
	require.NoError(t, err)
	assert.Len(t, doc.Path, steps)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 800.0, cfg.Viewport.Width)
	assert.Equal(t, 800.0, cfg.Viewport.Height)

	s := newSession(t)
	min, max, ok := s.Coverage().Envelope().MinMaxXYs()
	require.True(t, ok)
	assert.InDelta(t, -5000.0, min.X, 1e-9)
	assert.InDelta(t, 5000.0, max.Y, 1e-9)
	assert.InDelta(t, 4.0, s.Coverage().CellSize(), 1e-9)
}

package session

import (
	"fmt"

	"github.com/roverscan/rovermap/internal/coverage"
	"github.com/roverscan/rovermap/internal/geo"
	"github.com/roverscan/rovermap/internal/rover"
	"github.com/roverscan/rovermap/internal/viewport"
)

// RoverConfig holds the starting pose and how commands move the rover.
type RoverConfig struct {
	Origin             geo.Vec
	Heading            float64
	Speed              float64
	TurnStep           float64
	DriftWhileTurning  bool
	DriftStep          float64
	MastFollowsHeading bool
}

// ViewportConfig sizes the visible window.
type ViewportConfig struct {
	Width  float64
	Height float64
	Band   float64
	Step   float64
}

// SensorConfig describes the mast field of view. FOVAngle is the full
// opening angle.
type SensorConfig struct {
	FOVAngle    float64
	Range       float64
	ArcStep     float64
	ScanOnStart bool
}

// CoverageConfig sizes the coverage grid in world units.
type CoverageConfig struct {
	Width    float64
	Height   float64
	CellSize float64
}

// AnnotationConfig holds placement defaults used when a command omits them.
type AnnotationConfig struct {
	ResourceDistance float64
	ObstacleDistance float64
	ObstacleLength   float64
}

// Config gathers everything a session needs.
type Config struct {
	Rover      RoverConfig
	Viewport   ViewportConfig
	Sensor     SensorConfig
	Coverage   CoverageConfig
	Annotation AnnotationConfig
}

// DefaultConfig returns defaults sized for an 800x800 view over a 10 km map.
func DefaultConfig() Config {
	return Config{
		Rover: RoverConfig{
			Speed:     5,
			TurnStep:  5,
			DriftStep: 5,
		},
		Viewport: ViewportConfig{
			Width:  800,
			Height: 800,
			Band:   viewport.DefaultBand,
			Step:   viewport.DefaultStep,
		},
		Sensor: SensorConfig{
			FOVAngle: 90,
			Range:    200,
			ArcStep:  geo.DefaultArcStep,
		},
		Coverage: CoverageConfig{
			Width:    coverage.DefaultExtent,
			Height:   coverage.DefaultExtent,
			CellSize: coverage.DefaultCellSize,
		},
		Annotation: AnnotationConfig{
			ResourceDistance: 15,
			ObstacleDistance: 15,
			ObstacleLength:   30,
		},
	}
}

// Defaults returns the magnitudes used for commands that omit one.
func (c Config) Defaults() rover.Defaults {
	return rover.Defaults{Speed: c.Rover.Speed, Turn: c.Rover.TurnStep}
}

// Validate checks the parts New cannot recover from.
func (c Config) Validate() error {
	if !c.Rover.Origin.Finite() {
		return fmt.Errorf("rover origin: %w", geo.ErrInvalidCoordinates)
	}
	if !(c.Sensor.FOVAngle > 0 && c.Sensor.FOVAngle < 360) {
		return fmt.Errorf("sensor fov angle must be in (0, 360), got %v", c.Sensor.FOVAngle)
	}
	if !(c.Sensor.Range > 0) {
		return fmt.Errorf("sensor range must be positive, got %v", c.Sensor.Range)
	}
	if !(c.Annotation.ResourceDistance > 0 && c.Annotation.ObstacleDistance > 0 && c.Annotation.ObstacleLength > 0) {
		return fmt.Errorf("annotation distances must be positive")
	}
	return nil
}

func (c Config) tracker() (*viewport.Tracker, error) {
	t := &viewport.Tracker{
		Width:  c.Viewport.Width,
		Height: c.Viewport.Height,
		Band:   c.Viewport.Band,
		Step:   c.Viewport.Step,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (c Config) interpreter() *rover.Interpreter {
	return rover.NewInterpreter(rover.Options{
		DriftWhileTurning:  c.Rover.DriftWhileTurning,
		DriftStep:          c.Rover.DriftStep,
		MastFollowsHeading: c.Rover.MastFollowsHeading,
	})
}

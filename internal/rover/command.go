package rover

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidArgument is returned for a magnitude the command cannot take.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnknownCommand is returned for a command kind nobody handles.
	ErrUnknownCommand = errors.New("unknown command")
)

// Kind names a command.
type Kind string

// Motion commands.
const (
	DriveForward    Kind = "DriveForward"
	Reverse         Kind = "Reverse"
	TurnLeft        Kind = "TurnLeft"
	TurnRight       Kind = "TurnRight"
	TurnOnSpot      Kind = "TurnOnSpot"
	RotateMast      Kind = "RotateMast"
	RotateMastRight Kind = "RotateMastRight"
	RotatePeriscope Kind = "RotatePeriscope"
	CenterMast      Kind = "CenterMast"
	StopMovement    Kind = "StopMovement"
)

// Session commands.
const (
	PlaceResource      Kind = "PlaceResource"
	PlaceObstacle      Kind = "PlaceObstacle"
	ToggleScanning     Kind = "ToggleScanning"
	SaveMap            Kind = "SaveMap"
	ToggleResourceList Kind = "ToggleResourceList"
	ToggleObstacleList Kind = "ToggleObstacleList"
	ResetMap           Kind = "ResetMap"
)

// Kinds lists every command kind, aliases included.
var Kinds = []Kind{
	DriveForward, Reverse, TurnLeft, TurnRight, TurnOnSpot,
	RotateMast, RotateMastRight, RotatePeriscope, CenterMast, StopMovement,
	PlaceResource, PlaceObstacle, ToggleScanning, SaveMap,
	ToggleResourceList, ToggleObstacleList, ResetMap,
}

// Canonical resolves aliases used by rover drivers.
func (k Kind) Canonical() Kind {
	switch k {
	case TurnOnSpot:
		return TurnRight
	case RotatePeriscope:
		return RotateMast
	}
	return k
}

// IsMotion reports whether the kind mutates the pose.
func (k Kind) IsMotion() bool {
	switch k.Canonical() {
	case DriveForward, Reverse, TurnLeft, TurnRight, RotateMast, RotateMastRight, CenterMast, StopMovement:
		return true
	}
	return false
}

// Holdable reports whether the kind can repeat every tick until stopped.
func (k Kind) Holdable() bool {
	switch k.Canonical() {
	case DriveForward, Reverse, TurnLeft, TurnRight, RotateMast, RotateMastRight:
		return true
	}
	return false
}

// ParseKind matches s against the known kinds, ignoring case.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// Command is one discrete instruction for the rover or its session.
type Command struct {
	Kind      Kind    `json:"kind"`
	Magnitude float64 `json:"magnitude,omitempty"`
	Size      float64 `json:"size,omitempty"`
	Label     string  `json:"label,omitempty"`
	Name      string  `json:"name,omitempty"`
	// Held commands repeat on every tick until StopMovement.
	Held bool `json:"held,omitempty"`
}

func (c Command) String() string {
	var b strings.Builder
	b.WriteString(string(c.Kind))
	if c.Magnitude != 0 {
		b.WriteString(" ")
		b.WriteString(strconv.FormatFloat(c.Magnitude, 'g', -1, 64))
	}
	if c.Size != 0 {
		b.WriteString(" size=")
		b.WriteString(strconv.FormatFloat(c.Size, 'g', -1, 64))
	}
	if c.Label != "" {
		b.WriteString(" label=")
		b.WriteString(c.Label)
	}
	if c.Name != "" {
		b.WriteString(" name=")
		b.WriteString(c.Name)
	}
	if c.Held {
		b.WriteString(" held=true")
	}
	return b.String()
}

// Defaults fills magnitudes left out of a command.
type Defaults struct {
	Speed float64
	Turn  float64
}

// Apply returns c with a default magnitude when none was given. Placement
// commands keep zero so the session picks its configured distance.
func (d Defaults) Apply(c Command) Command {
	if c.Magnitude != 0 {
		return c
	}
	switch c.Kind.Canonical() {
	case DriveForward, Reverse:
		c.Magnitude = d.Speed
	case TurnLeft, TurnRight, RotateMast, RotateMastRight:
		c.Magnitude = d.Turn
	}
	return c
}

// ParseCommand parses a text command of the form
//
//	<Kind> [magnitude] [key=value ...]
//
// Recognised keys are magnitude, size, label, name and held. An explicit
// magnitude is kept as given, even zero.
func ParseCommand(line string, d Defaults) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty command", ErrUnknownCommand)
	}

	kind, err := ParseKind(fields[0])
	if err != nil {
		return Command{}, err
	}
	cmd := Command{Kind: kind}
	explicit := false

	for i, f := range fields[1:] {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			if i != 0 {
				return Command{}, fmt.Errorf("%w: unexpected token %q", ErrInvalidArgument, f)
			}
			key, value = "magnitude", f
		}
		switch strings.ToLower(key) {
		case "magnitude", "speed", "angle", "distance":
			if cmd.Magnitude, err = parseNumber(key, value); err != nil {
				return Command{}, err
			}
			explicit = true
		case "size":
			if cmd.Size, err = parseNumber(key, value); err != nil {
				return Command{}, err
			}
		case "label":
			cmd.Label = value
		case "name":
			cmd.Name = value
		case "held":
			if cmd.Held, err = strconv.ParseBool(value); err != nil {
				return Command{}, fmt.Errorf("%w: held=%q", ErrInvalidArgument, value)
			}
		default:
			return Command{}, fmt.Errorf("%w: unknown key %q", ErrInvalidArgument, key)
		}
	}

	if !explicit {
		cmd = d.Apply(cmd)
	}
	return cmd, nil
}

func parseNumber(key, value string) (float64, error) {
	n, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidArgument, key, value)
	}
	return n, nil
}

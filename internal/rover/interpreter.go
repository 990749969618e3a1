package rover

import (
	"fmt"
	"math"

	"github.com/roverscan/rovermap/internal/geo"
)

// Options tune how turns behave.
type Options struct {
	// DriftWhileTurning nudges the rover along x by DriftStep on every turn,
	// left turns towards -x and right turns towards +x.
	DriftWhileTurning bool
	DriftStep         float64
	// MastFollowsHeading rotates the mast together with the body so the
	// relative mast angle is kept.
	MastFollowsHeading bool
}

// PoseDelta describes what a single command changed.
type PoseDelta struct {
	Kind         Kind    `json:"kind"`
	Displacement geo.Vec `json:"displacement"`
	Distance     float64 `json:"distance"`
	HeadingTurn  float64 `json:"heading_turn"`
	MastTurn     float64 `json:"mast_turn"`
	PathAppended bool    `json:"path_appended"`
}

// Interpreter applies motion commands to a pose.
type Interpreter struct {
	opts Options
}

// NewInterpreter returns an interpreter configured with opts.
func NewInterpreter(opts Options) *Interpreter {
	return &Interpreter{opts: opts}
}

// Options returns the interpreter configuration.
func (in *Interpreter) Options() Options {
	return in.opts
}

// Apply mutates p according to cmd. A failed command leaves p untouched.
func (in *Interpreter) Apply(p *Pose, cmd Command) (PoseDelta, error) {
	kind := cmd.Kind.Canonical()
	delta := PoseDelta{Kind: cmd.Kind}

	switch kind {
	case StopMovement:
		return delta, nil
	case CenterMast:
		before := p.MastHeading
		p.MastHeading = p.Heading
		delta.MastTurn = signedTurn(before, p.MastHeading)
		return delta, nil
	case DriveForward, Reverse, TurnLeft, TurnRight, RotateMast, RotateMastRight:
	default:
		return delta, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Kind)
	}

	m := cmd.Magnitude
	if math.IsNaN(m) || math.IsInf(m, 0) || m <= 0 {
		return delta, fmt.Errorf("%s needs a positive magnitude, got %v: %w", cmd.Kind, m, ErrInvalidArgument)
	}
	if in.opts.DriftWhileTurning && !(in.opts.DriftStep >= 0) {
		return delta, fmt.Errorf("drift step %v: %w", in.opts.DriftStep, ErrInvalidArgument)
	}

	switch kind {
	case DriveForward:
		in.drive(p, m, &delta)
	case Reverse:
		in.drive(p, -m, &delta)
	case TurnLeft:
		in.turn(p, m, &delta)
	case TurnRight:
		in.turn(p, -m, &delta)
	case RotateMast:
		p.MastHeading = geo.NormalizeDeg(p.MastHeading + m)
		delta.MastTurn = m
	case RotateMastRight:
		p.MastHeading = geo.NormalizeDeg(p.MastHeading - m)
		delta.MastTurn = -m
	}
	return delta, nil
}

func (in *Interpreter) drive(p *Pose, signed float64, delta *PoseDelta) {
	from := p.Position
	to := geo.Project(from, p.Heading, signed)
	delta.Distance = math.Abs(signed)
	delta.PathAppended = p.moveTo(to, delta.Distance)
	delta.Displacement = to.Sub(from)
}

func (in *Interpreter) turn(p *Pose, signed float64, delta *PoseDelta) {
	p.Heading = geo.NormalizeDeg(p.Heading + signed)
	delta.HeadingTurn = signed

	if in.opts.MastFollowsHeading {
		p.MastHeading = geo.NormalizeDeg(p.MastHeading + signed)
		delta.MastTurn = signed
	}

	if in.opts.DriftWhileTurning && in.opts.DriftStep > 0 {
		dx := in.opts.DriftStep
		if signed > 0 {
			dx = -dx
		}
		from := p.Position
		to := from.Add(geo.Vec{X: dx})
		delta.Distance = in.opts.DriftStep
		delta.PathAppended = p.moveTo(to, delta.Distance)
		delta.Displacement = to.Sub(from)
	}
}

// signedTurn is the shortest rotation from a to b, in (-180, 180].
func signedTurn(a, b float64) float64 {
	d := geo.NormalizeDeg(b - a)
	if d > 180 {
		d -= 360
	}
	return d
}

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roverscan/rovermap/internal/dispatcher"
	"github.com/roverscan/rovermap/internal/rover"
)

// registerHandlers wires every command kind to the session. Command
// handlers run on the loop goroutine with e.mu held.
func (e *Engine) registerHandlers() {
	for _, k := range rover.Kinds {
		if k.IsMotion() {
			e.disp.RegisterKind(k, e.handleMotion, dispatcher.Logged())
		}
	}

	e.disp.RegisterKind(rover.PlaceResource, func(ev dispatcher.Event) (any, error) {
		a, err := e.sess.PlaceResource(ev.Command.Magnitude, ev.Command.Label, ev.Command.Size)
		if err != nil {
			return nil, err
		}
		e.dirty = true
		return fmt.Sprintf("resource %d at (%.1f, %.1f)", a.ID, a.Position.X, a.Position.Y), nil
	}, dispatcher.Logged())

	e.disp.RegisterKind(rover.PlaceObstacle, func(ev dispatcher.Event) (any, error) {
		a, err := e.sess.PlaceObstacle(ev.Command.Magnitude, ev.Command.Label, ev.Command.Size)
		if err != nil {
			return nil, err
		}
		e.dirty = true
		return fmt.Sprintf("obstacle %d at (%.1f, %.1f)", a.ID, a.Position.X, a.Position.Y), nil
	}, dispatcher.Logged())

	e.disp.RegisterKind(rover.ToggleScanning, func(ev dispatcher.Event) (any, error) {
		return onOff("scanning", e.sess.ToggleScanning()), nil
	}, dispatcher.Logged())

	e.disp.RegisterKind(rover.ToggleResourceList, func(ev dispatcher.Event) (any, error) {
		return onOff("resource list", e.sess.ToggleResourceList()), nil
	}, dispatcher.Logged())

	e.disp.RegisterKind(rover.ToggleObstacleList, func(ev dispatcher.Event) (any, error) {
		return onOff("obstacle list", e.sess.ToggleObstacleList()), nil
	}, dispatcher.Logged())

	e.disp.RegisterKind(rover.SaveMap, func(ev dispatcher.Event) (any, error) {
		name, err := e.save(eventContext(ev), ev.Command.Name)
		if err != nil {
			return nil, err
		}
		return "saved " + name, nil
	}, dispatcher.Logged())

	e.disp.RegisterKind(rover.ResetMap, func(ev dispatcher.Event) (any, error) {
		e.sess.Reset()
		clear(e.held)
		e.dirty = true
		return "map reset", nil
	}, dispatcher.Logged())

	// autosave writes happen off the loop goroutine
	e.disp.Register(persistJob, func(ev dispatcher.Event) (any, error) {
		job, ok := ev.Payload.(saveRequest)
		if !ok {
			return nil, fmt.Errorf("unexpected persist payload %T", ev.Payload)
		}
		name, err := e.persist(context.Background(), job.gen, job.name, job.doc)
		if errors.Is(err, errStaleSave) {
			e.log.Debug("Autosave superseded", "name", job.name, "generation", job.gen)
			return "superseded", nil
		}
		if err != nil {
			return nil, err
		}
		e.log.Debug("Autosaved map", "name", name)
		return name, nil
	}, dispatcher.Buffered(persistBuffer), dispatcher.Logged())
}

// handleMotion applies a pose command. Held commands of a holdable kind
// apply once on arrival and again on every later tick until StopMovement,
// ResetMap or a one-shot command of the same kind.
func (e *Engine) handleMotion(ev dispatcher.Event) (any, error) {
	cmd := ev.Command
	if cmd.Kind == rover.StopMovement {
		clear(e.held)
		return "stopped", nil
	}

	if _, err := e.sess.Move(cmd); err != nil {
		return nil, err
	}
	e.dirty = true

	k := cmd.Kind.Canonical()
	if cmd.Held && k.Holdable() {
		e.held[k] = cmd
		e.fresh[k] = true
		return "holding " + string(cmd.Kind), nil
	}
	delete(e.held, k)
	return "ok", nil
}

func eventContext(ev dispatcher.Event) context.Context {
	if ctx, ok := ev.Payload.(context.Context); ok && ctx != nil {
		return ctx
	}
	return context.Background()
}

func onOff(what string, on bool) string {
	if on {
		return what + " on"
	}
	return what + " off"
}

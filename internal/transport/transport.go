// Package transport holds what the command transports share: the wire form
// of a command request and the engine surface they drive.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/roverscan/rovermap/internal/rover"
	"github.com/roverscan/rovermap/internal/session"
)

// Commander accepts commands and acknowledges them once applied.
type Commander interface {
	Submit(ctx context.Context, cmd rover.Command) (session.Ack, error)
	Defaults() rover.Defaults
}

// Request is a command on the wire. Either Text carries a command line, or
// Kind and the remaining fields carry it field by field. A nil Magnitude
// selects the configured default; an explicit zero is sent as given.
type Request struct {
	Text      string   `json:"text,omitempty"`
	Kind      string   `json:"kind,omitempty"`
	Magnitude *float64 `json:"magnitude,omitempty"`
	Size      float64  `json:"size,omitempty"`
	Label     string   `json:"label,omitempty"`
	Name      string   `json:"name,omitempty"`
	Held      bool     `json:"held,omitempty"`
}

// FromCommand builds a request from cmd. A zero magnitude is left out.
func FromCommand(cmd rover.Command) *Request {
	req := &Request{
		Kind:  string(cmd.Kind),
		Size:  cmd.Size,
		Label: cmd.Label,
		Name:  cmd.Name,
		Held:  cmd.Held,
	}
	if cmd.Magnitude != 0 {
		m := cmd.Magnitude
		req.Magnitude = &m
	}
	return req
}

// Command resolves the request against d.
func (r *Request) Command(d rover.Defaults) (rover.Command, error) {
	if r.Text != "" {
		return rover.ParseCommand(r.Text, d)
	}
	kind, err := rover.ParseKind(r.Kind)
	if err != nil {
		return rover.Command{}, err
	}
	cmd := rover.Command{
		Kind:  kind,
		Size:  r.Size,
		Label: r.Label,
		Name:  r.Name,
		Held:  r.Held,
	}
	if r.Magnitude == nil {
		return d.Apply(cmd), nil
	}
	if math.IsNaN(*r.Magnitude) || math.IsInf(*r.Magnitude, 0) {
		return rover.Command{}, fmt.Errorf("%w: magnitude %v", rover.ErrInvalidArgument, *r.Magnitude)
	}
	cmd.Magnitude = *r.Magnitude
	return cmd, nil
}

// Decode reads a message payload: a JSON object is a Request, anything
// else is a command line.
func Decode(payload []byte) (*Request, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", rover.ErrUnknownCommand)
	}
	if trimmed[0] != '{' {
		return &Request{Text: string(trimmed)}, nil
	}
	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", rover.ErrInvalidArgument, err)
	}
	return &req, nil
}

// FailedAck reports err as a failed acknowledgement.
func FailedAck(err error) session.Ack {
	return session.Ack{Success: false, Message: err.Error()}
}

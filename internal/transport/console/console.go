// Package console drives the engine from command lines on a reader, one
// command per line, printing each acknowledgement.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roverscan/rovermap/internal/rover"
	"github.com/roverscan/rovermap/internal/session"
	"github.com/roverscan/rovermap/internal/transport"
)

// Engine is the part of the engine the console drives.
type Engine interface {
	transport.Commander
	Snapshot() session.Snapshot
}

// Console reads commands from in and writes results to out.
type Console struct {
	engine Engine
	in     io.Reader
	out    io.Writer
	log    *slog.Logger
}

// New creates a console.
func New(e Engine, in io.Reader, out io.Writer, log *slog.Logger) *Console {
	return &Console{engine: e, in: in, out: out, log: log.With("transport", "console")}
}

// Run processes lines until the input ends, a quit line is read, or ctx
// is done. Blank lines and lines starting with # are skipped.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errCh <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errCh:
					return err
				default:
					return nil
				}
			}
			if !c.handleLine(ctx, line) {
				return nil
			}
		}
	}
}

// handleLine runs one line and reports whether to keep reading.
func (c *Console) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return true
	}

	switch strings.ToLower(line) {
	case "quit", "exit":
		return false
	case "status":
		fmt.Fprintln(c.out, c.engine.Snapshot().Status)
		return true
	case "help":
		c.printHelp()
		return true
	}

	req := &transport.Request{Text: line}
	cmd, err := req.Command(c.engine.Defaults())
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return true
	}
	ack, err := c.engine.Submit(ctx, cmd)
	if err != nil {
		c.log.Warn("Command not applied", "command", cmd.String(), "error", err)
		fmt.Fprintf(c.out, "error: %v\n", err)
		return true
	}
	if !ack.Success {
		fmt.Fprintf(c.out, "error: %s\n", ack.Message)
		return true
	}
	fmt.Fprintf(c.out, "ok: %s\n", ack.Message)
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, "commands: <Kind> [magnitude] [size=N] [label=TEXT] [name=MAP] [held=true]")
	kinds := make([]string, len(rover.Kinds))
	for i, k := range rover.Kinds {
		kinds[i] = string(k)
	}
	fmt.Fprintln(c.out, "kinds:", strings.Join(kinds, ", "))
	fmt.Fprintln(c.out, "also: status, help, quit")
}

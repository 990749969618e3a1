package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/roverscan/rovermap/internal/rover"
	"github.com/roverscan/rovermap/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	got []rover.Command
	err error
}

func (f *fakeEngine) Submit(_ context.Context, cmd rover.Command) (session.Ack, error) {
	f.got = append(f.got, cmd)
	if f.err != nil {
		return session.Ack{}, f.err
	}
	if cmd.Magnitude < 0 {
		return session.Ack{Success: false, Message: "needs a positive magnitude"}, nil
	}
	return session.Ack{Success: true, Message: string(cmd.Kind) + " done"}, nil
}

func (f *fakeEngine) Defaults() rover.Defaults {
	return rover.Defaults{Speed: 5, Turn: 5}
}

func (f *fakeEngine) Snapshot() session.Snapshot {
	return session.Snapshot{Status: "Resources: 0 | Obstacles: 0"}
}

func run(t *testing.T, e Engine, input string) string {
	t.Helper()
	var out bytes.Buffer
	c := New(e, strings.NewReader(input), &out, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, c.Run(context.Background()))
	return out.String()
}

func TestRun(t *testing.T) {
	fake := &fakeEngine{}
	out := run(t, fake, "DriveForward 10\n\n# comment\nturnleft\nReverse -1\nstatus\nFly 2\n")

	assert.Equal(t, []rover.Command{
		{Kind: rover.DriveForward, Magnitude: 10},
		{Kind: rover.TurnLeft, Magnitude: 5},
		{Kind: rover.Reverse, Magnitude: -1},
	}, fake.got)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "ok: DriveForward done", lines[0])
	assert.Equal(t, "ok: TurnLeft done", lines[1])
	assert.Equal(t, "error: needs a positive magnitude", lines[2])
	assert.Equal(t, "Resources: 0 | Obstacles: 0", lines[3])
	assert.True(t, strings.HasPrefix(lines[4], "error: unknown command"))
}

func TestRun_Quit(t *testing.T) {
	fake := &fakeEngine{}
	run(t, fake, "ToggleScanning\nquit\nDriveForward 3\n")

	assert.Equal(t, []rover.Command{{Kind: rover.ToggleScanning}}, fake.got)
}

func TestRun_SubmitError(t *testing.T) {
	out := run(t, &fakeEngine{err: errors.New("command queue full")}, "StopMovement\n")

	assert.Equal(t, "error: command queue full\n", out)
}

func TestRun_Help(t *testing.T) {
	out := run(t, &fakeEngine{}, "help\n")

	assert.Contains(t, out, "DriveForward")
	assert.Contains(t, out, "SaveMap")
}

func TestRun_ContextDone(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	c := New(&fakeEngine{}, r, io.Discard, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, c.Run(ctx))
}

package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/roverscan/rovermap/internal/config"
	"github.com/roverscan/rovermap/internal/geo"
	"github.com/roverscan/rovermap/internal/rover"
	"github.com/roverscan/rovermap/internal/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() session.Snapshot {
	pose := rover.NewPose(geo.Vec{X: 3, Y: 4}, 90)
	pose.Odometer = 12.5
	return session.Snapshot{
		SessionID:    "abc",
		MapName:      "site.json",
		Frame:        7,
		Time:         time.Unix(1700000000, 0),
		Pose:         pose,
		Scanning:     true,
		Coverage:     1.25,
		ScannedCells: 42,
	}
}

func TestPosePoint(t *testing.T) {
	p := PosePoint(testSnapshot())

	assert.Equal(t, MeasurementPose, p.Name())
	line := influxdb2_write.PointToLineProtocol(p, time.Second)
	assert.Contains(t, line, "session=abc")
	assert.Contains(t, line, "map=site.json")
	assert.Contains(t, line, "x=3")
	assert.Contains(t, line, "y=4")
	assert.Contains(t, line, "heading=90")
	assert.Contains(t, line, "odometer=12.5")
	assert.Contains(t, line, "scanning=true")
	assert.Contains(t, line, "1700000000")
}

func TestCommandPoint(t *testing.T) {
	at := time.Unix(1700000000, 0)

	ok := influxdb2_write.PointToLineProtocol(
		CommandPoint("abc", rover.Command{Kind: rover.TurnLeft, Magnitude: 15}, nil, at), time.Second)
	assert.Contains(t, ok, "kind=TurnLeft")
	assert.Contains(t, ok, "success=true")
	assert.NotContains(t, ok, "error=")

	failed := influxdb2_write.PointToLineProtocol(
		CommandPoint("abc", rover.Command{Kind: rover.Reverse}, errors.New("bad"), at), time.Second)
	assert.Contains(t, failed, "success=false")
	assert.Contains(t, failed, `error="bad"`)
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})

	assert.Error(t, m.Connect(context.Background()))
	assert.NoError(t, m.Close())
}

func TestWritePoint_NoWriter(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})

	assert.Error(t, m.Record(testSnapshot()))
}

func TestConnect_FallsBackToBackup(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(zerolog.Nop(), config.InfluxConfig{
		Enabled:   true,
		Protocol:  "http",
		Host:      "127.0.0.1",
		Port:      "1", // nothing listens here
		Org:       "rovermap",
		Bucket:    "rover",
		BackupDir: filepath.Join(dir, "backup"),
	})
	assert.Equal(t, "http://127.0.0.1:1", m.URL())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.IsValid)

	require.NoError(t, m.Record(testSnapshot()))
	require.NoError(t, m.RecordCommand("abc", rover.Command{Kind: rover.DriveForward, Magnitude: 5}, nil, time.Unix(1700000000, 0)))
	require.NoError(t, m.Close())

	f, err := os.Open(m.BackupPath)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], MeasurementPose+","))
	assert.True(t, strings.HasPrefix(lines[1], MeasurementCommand+","))
}

package rover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDefaults = Defaults{Speed: 5, Turn: 5}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("driveforward")
	require.NoError(t, err)
	assert.Equal(t, DriveForward, k)

	_, err = ParseKind("Fly")
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestKind_Canonical(t *testing.T) {
	assert.Equal(t, TurnRight, TurnOnSpot.Canonical())
	assert.Equal(t, RotateMast, RotatePeriscope.Canonical())
	assert.Equal(t, DriveForward, DriveForward.Canonical())
}

func TestKind_Classes(t *testing.T) {
	assert.True(t, DriveForward.IsMotion())
	assert.True(t, TurnOnSpot.IsMotion())
	assert.True(t, StopMovement.IsMotion())
	assert.False(t, PlaceResource.IsMotion())
	assert.False(t, SaveMap.IsMotion())

	assert.True(t, Reverse.Holdable())
	assert.True(t, RotatePeriscope.Holdable())
	assert.False(t, StopMovement.Holdable())
	assert.False(t, CenterMast.Holdable())
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Command
	}{
		{"magnitude", "DriveForward 10", Command{Kind: DriveForward, Magnitude: 10}},
		{"default speed", "Reverse", Command{Kind: Reverse, Magnitude: 5}},
		{"default turn", "TurnOnSpot", Command{Kind: TurnOnSpot, Magnitude: 5}},
		{"explicit zero kept", "TurnLeft 0", Command{Kind: TurnLeft}},
		{"keyed angle", "RotateMast angle=30", Command{Kind: RotateMast, Magnitude: 30}},
		{"placement", "PlaceResource 15 size=2 label=ice", Command{Kind: PlaceResource, Magnitude: 15, Size: 2, Label: "ice"}},
		{"placement default", "PlaceObstacle label=rock", Command{Kind: PlaceObstacle, Label: "rock"}},
		{"save", "SaveMap name=site-a", Command{Kind: SaveMap, Name: "site-a"}},
		{"held", "DriveForward 3 held=true", Command{Kind: DriveForward, Magnitude: 3, Held: true}},
		{"toggle", "  togglescanning  ", Command{Kind: ToggleScanning}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.line, testDefaults)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommand_Errors(t *testing.T) {
	tests := []struct {
		line string
		want error
	}{
		{"", ErrUnknownCommand},
		{"Hover 3", ErrUnknownCommand},
		{"DriveForward fast", ErrInvalidArgument},
		{"DriveForward 1 2", ErrInvalidArgument},
		{"DriveForward NaN", ErrInvalidArgument},
		{"PlaceResource size=big", ErrInvalidArgument},
		{"PlaceResource colour=red", ErrInvalidArgument},
		{"DriveForward held=maybe", ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, err := ParseCommand(tt.line, testDefaults)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCommand_StringRoundTrip(t *testing.T) {
	cmd := Command{Kind: PlaceObstacle, Magnitude: 12.5, Size: 3, Label: "boulder", Held: false}

	got, err := ParseCommand(cmd.String(), testDefaults)
	require.NoError(t, err)
	assert.Equal(t, cmd, got)
}

func TestDefaults_Apply(t *testing.T) {
	d := Defaults{Speed: 7, Turn: 9}

	assert.Equal(t, 7.0, d.Apply(Command{Kind: DriveForward}).Magnitude)
	assert.Equal(t, 9.0, d.Apply(Command{Kind: RotateMastRight}).Magnitude)
	assert.Equal(t, 2.0, d.Apply(Command{Kind: TurnLeft, Magnitude: 2}).Magnitude)
	assert.Equal(t, 0.0, d.Apply(Command{Kind: PlaceResource}).Magnitude)
}

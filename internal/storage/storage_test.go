package storage

import (
	"testing"
	"time"

	"github.com/roverscan/rovermap/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "site-a", want: "site-a.json"},
		{in: "site-a.json", want: "site-a.json"},
		{in: "  crater_2 ", want: "crater_2.json"},
		{in: "", wantErr: true},
		{in: ".hidden", wantErr: true},
		{in: "a/b", wantErr: true},
		{in: "a..b", wantErr: true},
		{in: "-dash", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeName(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, session.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveName(t *testing.T) {
	now := time.Date(2025, 6, 7, 8, 11, 10, 0, time.UTC)

	got, err := ResolveName("", now)
	require.NoError(t, err)
	assert.Equal(t, "20250607_081110_map.json", got)

	got, err = ResolveName("base", now)
	require.NoError(t, err)
	assert.Equal(t, "base.json", got)
}

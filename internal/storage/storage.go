// Package storage persists map documents. Backends are keyed by map name;
// the name of the most recently saved map is tracked so a run can resume
// where the last one stopped.
package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/roverscan/rovermap/internal/session"
)

// Extension is the suffix every map name carries.
const Extension = ".json"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Save stores doc under name and marks it last used. An empty name
	// generates a timestamped one. Returns the name the map was stored under.
	Save(ctx context.Context, name string, doc *session.Document) (string, error)
	// Load returns the named map, or an error wrapping session.ErrNotFound.
	Load(ctx context.Context, name string) (*session.Document, error)
	// List returns every stored map ordered by name.
	List(ctx context.Context) ([]MapInfo, error)
	// LastUsed returns the name of the most recently saved map, or an error
	// wrapping session.ErrNotFound when nothing was saved yet.
	LastUsed(ctx context.Context) (string, error)
}

// MapInfo describes a stored map.
type MapInfo struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// DefaultName is the generated name of a map saved at t.
func DefaultName(t time.Time) string {
	return t.Format("20060102_150405") + "_map" + Extension
}

// NormalizeName validates a map name and appends the .json extension when
// missing. Names are flat: no directories, no leading dot.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || !validName.MatchString(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: map name %q", session.ErrInvalidArgument, name)
	}
	if !strings.HasSuffix(name, Extension) {
		name += Extension
	}
	return name, nil
}

// ResolveName returns the normalized name, generating one from now when
// name is empty.
func ResolveName(name string, now time.Time) (string, error) {
	if strings.TrimSpace(name) == "" {
		return DefaultName(now), nil
	}
	return NormalizeName(name)
}

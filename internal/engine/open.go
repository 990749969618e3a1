package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roverscan/rovermap/internal/session"
	"github.com/roverscan/rovermap/internal/storage"
)

// OpenMode selects how the starting session is obtained.
type OpenMode int

const (
	// OpenNew starts a blank map.
	OpenNew OpenMode = iota
	// OpenLastUsed resumes the most recently saved map.
	OpenLastUsed
	// OpenNamed loads the map given by name.
	OpenNamed
)

func (m OpenMode) String() string {
	switch m {
	case OpenNew:
		return "new"
	case OpenLastUsed:
		return "last-used"
	case OpenNamed:
		return "named"
	}
	return fmt.Sprintf("OpenMode(%d)", int(m))
}

// OpenSession builds the starting session. A missing last-used or named map
// falls back to a blank session; a named map keeps its name so the first
// save creates it. A map that exists but cannot be restored is an error.
func OpenSession(ctx context.Context, store storage.Backend, cfg session.Config, mode OpenMode, name string, log *slog.Logger) (*session.Session, error) {
	if mode == OpenNew || store == nil {
		return session.New(cfg)
	}

	if mode == OpenLastUsed {
		last, err := store.LastUsed(ctx)
		if errors.Is(err, session.ErrNotFound) {
			log.Info("No last-used map, starting a new one")
			return session.New(cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("reading last-used map: %w", err)
		}
		name = last
	}

	doc, err := store.Load(ctx, name)
	if errors.Is(err, session.ErrNotFound) {
		log.Warn("Map not found, starting a new one", "name", name)
		s, err := session.New(cfg)
		if err != nil {
			return nil, err
		}
		if n, err := storage.NormalizeName(name); err == nil {
			s.SetName(n)
		}
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	s, err := session.Restore(doc, cfg)
	if err != nil {
		return nil, fmt.Errorf("restoring map %s: %w", name, err)
	}
	normalized, err := storage.NormalizeName(name)
	if err != nil {
		return nil, err
	}
	s.SetName(normalized)
	log.Info("Map loaded", "name", normalized, "mode", mode.String())
	return s, nil
}

// Package filestore implements the storage.Backend interface with one JSON
// document per map in a directory, optionally gzipped, plus a
// last_used_map.json pointer file.
package filestore

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roverscan/rovermap/internal/session"
	"github.com/roverscan/rovermap/internal/storage"
	"github.com/rs/zerolog"
)

// LastUsedFile is the pointer file naming the most recently saved map.
const LastUsedFile = "last_used_map.json"

const gzipExt = ".gz"

// Config holds configuration for the file storage backend.
type Config struct {
	Dir            string
	CompressOutput bool
}

type lastUsed struct {
	LastUsed string `json:"last_used"`
}

// Backend stores maps as files under Config.Dir.
type Backend struct {
	cfg Config
	log zerolog.Logger
	now func() time.Time

	mu sync.Mutex
}

// New creates a new file storage backend.
func New(cfg Config, log zerolog.Logger) *Backend {
	return &Backend{
		cfg: cfg,
		log: log,
		now: time.Now,
	}
}

// Init creates the maps directory.
func (b *Backend) Init() error {
	if err := os.MkdirAll(b.cfg.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create maps directory: %w", err)
	}
	return nil
}

// Dir returns the maps directory.
func (b *Backend) Dir() string {
	return b.cfg.Dir
}

// Close is a no-op.
func (b *Backend) Close() error {
	return nil
}

// Save writes doc to <dir>/<name>[.gz] and updates the last-used pointer.
func (b *Backend) Save(ctx context.Context, name string, doc *session.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := storage.ResolveName(name, b.now())
	if err != nil {
		return "", err
	}
	data, err := session.Encode(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode map: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	path := filepath.Join(b.cfg.Dir, name)
	stale := path + gzipExt
	if b.cfg.CompressOutput {
		path, stale = stale, path
		if data, err = gzipBytes(data); err != nil {
			return "", err
		}
	}
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	// drop the other encoding so Load never sees an older copy
	if err := os.Remove(stale); err != nil && !errors.Is(err, fs.ErrNotExist) {
		b.log.Warn().Err(err).Str("path", stale).Msg("Failed to remove stale map file")
	}

	pointer, err := json.Marshal(lastUsed{LastUsed: name})
	if err != nil {
		return "", err
	}
	if err := writeAtomic(filepath.Join(b.cfg.Dir, LastUsedFile), pointer); err != nil {
		return "", err
	}

	b.log.Debug().Str("path", path).Int("bytes", len(data)).Msg("Map saved")
	return name, nil
}

// Load reads the named map, preferring the gzipped file when both exist.
func (b *Backend) Load(ctx context.Context, name string) (*session.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := storage.NormalizeName(name)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	path := filepath.Join(b.cfg.Dir, name)
	data, err := readGzip(path + gzipExt)
	if errors.Is(err, fs.ErrNotExist) {
		data, err = os.ReadFile(path)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read map %s: %w", name, err)
	}
	return session.Decode(data)
}

// List returns the maps in the directory ordered by name.
func (b *Backend) List(ctx context.Context) ([]storage.MapInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(b.cfg.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []storage.MapInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list maps: %w", err)
	}

	byName := make(map[string]storage.MapInfo)
	for _, e := range entries {
		if e.IsDir() || e.Name() == LastUsedFile {
			continue
		}
		name := strings.TrimSuffix(e.Name(), gzipExt)
		if !strings.HasSuffix(name, storage.Extension) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if prev, ok := byName[name]; ok && prev.UpdatedAt.After(info.ModTime()) {
			continue
		}
		byName[name] = storage.MapInfo{Name: name, Size: info.Size(), UpdatedAt: info.ModTime()}
	}

	maps := make([]storage.MapInfo, 0, len(byName))
	for _, m := range byName {
		maps = append(maps, m)
	}
	sort.Slice(maps, func(i, j int) bool { return maps[i].Name < maps[j].Name })
	return maps, nil
}

// LastUsed reads the last-used pointer file.
func (b *Backend) LastUsed(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(b.cfg.Dir, LastUsedFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: no map saved yet", session.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	var p lastUsed
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("%w: %s: %v", session.ErrCorruptState, LastUsedFile, err)
	}
	if p.LastUsed == "" {
		return "", fmt.Errorf("%w: no map saved yet", session.ErrNotFound)
	}
	return p.LastUsed, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	if _, err := gzWriter.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress map: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress map: %w", err)
	}
	return buf.Bytes(), nil
}

func readGzip(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gzReader, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrCorruptState, err)
	}
	defer gzReader.Close()

	data, err := io.ReadAll(gzReader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrCorruptState, err)
	}
	return data, nil
}

// writeAtomic writes data to a temp file in the same directory and renames
// it over path.
func writeAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

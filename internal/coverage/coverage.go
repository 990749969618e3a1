// Package coverage accumulates the world cells swept by the sensor.
package coverage

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sort"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/roverscan/rovermap/internal/geo"
)

// Defaults cover a 10 km square map centred on the world origin at 4 m
// resolution.
const (
	DefaultExtent   = 10000.0
	DefaultCellSize = 4.0

	// maxCells bounds the grid so a corrupt header cannot allocate
	// unbounded memory.
	maxCells = 1 << 28
)

// ErrCorrupt is returned when a serialized map cannot be decoded.
var ErrCorrupt = errors.New("corrupt coverage map")

// Map is a fixed grid of scanned flags over world coordinates. Cell (i, j)
// covers [origin.X+i*cell, origin.X+(i+1)*cell) by the same on Y. A cell
// counts as scanned when its centre falls inside a scanned polygon.
type Map struct {
	cols, rows int
	cellSize   float64
	origin     geo.Vec
	words      []uint64
	count      int
}

// New returns an empty map of width x height world units centred on the
// world origin.
func New(width, height, cellSize float64) (*Map, error) {
	if !(cellSize > 0) || math.IsInf(cellSize, 0) {
		return nil, fmt.Errorf("cell size must be positive, got %v", cellSize)
	}
	if !(width > 0) || !(height > 0) || math.IsInf(width, 0) || math.IsInf(height, 0) {
		return nil, fmt.Errorf("map size must be positive, got %vx%v", width, height)
	}
	cols := int(math.Ceil(width / cellSize))
	rows := int(math.Ceil(height / cellSize))
	origin := geo.Vec{X: -float64(cols) * cellSize / 2, Y: -float64(rows) * cellSize / 2}
	return NewGrid(cols, rows, cellSize, origin)
}

// NewGrid returns an empty map with an explicit grid layout.
func NewGrid(cols, rows int, cellSize float64, origin geo.Vec) (*Map, error) {
	if cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("grid must have positive dimensions, got %dx%d", cols, rows)
	}
	if cols > maxCells/rows {
		return nil, fmt.Errorf("grid %dx%d exceeds %d cells", cols, rows, maxCells)
	}
	if !(cellSize > 0) || math.IsInf(cellSize, 0) {
		return nil, fmt.Errorf("cell size must be positive, got %v", cellSize)
	}
	if !origin.Finite() {
		return nil, geo.ErrInvalidCoordinates
	}
	return &Map{
		cols:     cols,
		rows:     rows,
		cellSize: cellSize,
		origin:   origin,
		words:    make([]uint64, (cols*rows+63)/64),
	}, nil
}

// Cols returns the number of grid columns.
func (m *Map) Cols() int { return m.cols }

// Rows returns the number of grid rows.
func (m *Map) Rows() int { return m.rows }

// CellSize returns the side of one cell in world units.
func (m *Map) CellSize() float64 { return m.cellSize }

// Origin returns the world coordinate of the grid's minimum corner.
func (m *Map) Origin() geo.Vec { return m.origin }

// Count returns the number of scanned cells.
func (m *Map) Count() int { return m.count }

// Total returns the number of cells in the grid.
func (m *Map) Total() int { return m.cols * m.rows }

// Percentage returns the scanned share of the grid in [0, 100].
func (m *Map) Percentage() float64 {
	return 100 * float64(m.count) / float64(m.Total())
}

// Cell returns the grid cell holding p and whether it lies on the grid.
func (m *Map) Cell(p geo.Vec) (i, j int, ok bool) {
	fi := math.Floor((p.X - m.origin.X) / m.cellSize)
	fj := math.Floor((p.Y - m.origin.Y) / m.cellSize)
	if !(fi >= 0 && fi < float64(m.cols) && fj >= 0 && fj < float64(m.rows)) {
		return 0, 0, false
	}
	return int(fi), int(fj), true
}

// Scanned reports whether the cell holding p has been swept. Points off
// the grid are never scanned.
func (m *Map) Scanned(p geo.Vec) bool {
	i, j, ok := m.Cell(p)
	return ok && m.get(j*m.cols+i)
}

// CellScanned reports the flag of cell (i, j).
func (m *Map) CellScanned(i, j int) bool {
	if i < 0 || i >= m.cols || j < 0 || j >= m.rows {
		return false
	}
	return m.get(j*m.cols + i)
}

// Envelope returns the world extent covered by the grid.
func (m *Map) Envelope() geom.Envelope {
	far := m.origin.Add(geo.Vec{X: float64(m.cols) * m.cellSize, Y: float64(m.rows) * m.cellSize})
	env, err := geom.NewEnvelope([]geom.XY{m.origin.XY(), far.XY()})
	if err != nil {
		return geom.Envelope{}
	}
	return env
}

// Scan unions the wedge into the map and returns how many cells were newly
// marked. A wedge whose envelope misses the grid is skipped without
// rasterizing.
func (m *Map) Scan(w geo.Wedge) int {
	env, err := w.Envelope()
	if err != nil || !env.Intersects(m.Envelope()) {
		return 0
	}
	return m.ScanPolygon(w.Vertices)
}

// ScanPolygon marks every cell whose centre lies inside the simple polygon
// given by verts (implicitly closed) and returns how many were newly
// marked. Scanning is idempotent.
func (m *Map) ScanPolygon(verts []geo.Vec) int {
	if len(verts) < 3 {
		return 0
	}
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, v := range verts {
		if !v.Finite() {
			return 0
		}
		minY = math.Min(minY, v.Y)
		maxY = math.Max(maxY, v.Y)
	}

	j0 := max(0, int(math.Ceil((minY-m.origin.Y)/m.cellSize-0.5)))
	j1 := min(m.rows-1, int(math.Floor((maxY-m.origin.Y)/m.cellSize-0.5)))

	added := 0
	xs := make([]float64, 0, 8)
	for j := j0; j <= j1; j++ {
		yc := m.origin.Y + (float64(j)+0.5)*m.cellSize

		xs = xs[:0]
		for k := range verts {
			a, b := verts[k], verts[(k+1)%len(verts)]
			if (a.Y <= yc && yc < b.Y) || (b.Y <= yc && yc < a.Y) {
				xs = append(xs, a.X+(yc-a.Y)*(b.X-a.X)/(b.Y-a.Y))
			}
		}
		sort.Float64s(xs)

		// even-odd spans
		for k := 0; k+1 < len(xs); k += 2 {
			i0 := max(0, int(math.Ceil((xs[k]-m.origin.X)/m.cellSize-0.5)))
			i1 := min(m.cols-1, int(math.Floor((xs[k+1]-m.origin.X)/m.cellSize-0.5)))
			for i := i0; i <= i1; i++ {
				if m.set(j*m.cols + i) {
					added++
				}
			}
		}
	}
	return added
}

// Reset clears every cell.
func (m *Map) Reset() {
	clear(m.words)
	m.count = 0
}

// Clone returns an independent copy.
func (m *Map) Clone() *Map {
	c := *m
	c.words = append([]uint64(nil), m.words...)
	return &c
}

// Equal reports whether both maps share layout and membership.
func (m *Map) Equal(o *Map) bool {
	if m.cols != o.cols || m.rows != o.rows || m.cellSize != o.cellSize || m.origin != o.origin || m.count != o.count {
		return false
	}
	for k := range m.words {
		if m.words[k] != o.words[k] {
			return false
		}
	}
	return true
}

func (m *Map) get(k int) bool {
	return m.words[k/64]&(1<<(uint(k)%64)) != 0
}

func (m *Map) set(k int) bool {
	w, bit := k/64, uint64(1)<<(uint(k)%64)
	if m.words[w]&bit != 0 {
		return false
	}
	m.words[w] |= bit
	m.count++
	return true
}

func (m *Map) recount() {
	m.count = 0
	for _, w := range m.words {
		m.count += bits.OnesCount64(w)
	}
}

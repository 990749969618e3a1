package coverage

import (
	"math"
	"math/rand"
	"testing"

	"github.com/roverscan/rovermap/internal/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMap(t *testing.T, extent, cell float64) *Map {
	t.Helper()
	m, err := New(extent, extent, cell)
	require.NoError(t, err)
	return m
}

func wedge(t *testing.T, apex geo.Vec, dir, half, rng float64) geo.Wedge {
	t.Helper()
	w, err := geo.NewWedge(apex, dir, half, rng, 0)
	require.NoError(t, err)
	return w
}

func TestNew_Layout(t *testing.T) {
	m := newMap(t, DefaultExtent, DefaultCellSize)

	assert.Equal(t, 2500, m.Cols())
	assert.Equal(t, 2500, m.Rows())
	assert.Equal(t, geo.Vec{X: -5000, Y: -5000}, m.Origin())
	assert.Equal(t, 0.0, m.Percentage())

	i, j, ok := m.Cell(geo.Vec{})
	require.True(t, ok)
	assert.Equal(t, 1250, i)
	assert.Equal(t, 1250, j)

	_, _, ok = m.Cell(geo.Vec{X: -4999, Y: -4999})
	assert.True(t, ok, "negative coordinates are on the grid")
	_, _, ok = m.Cell(geo.Vec{X: 5000, Y: 0})
	assert.False(t, ok)
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(100, 100, 0)
	assert.Error(t, err)
	_, err = New(-1, 100, 1)
	assert.Error(t, err)
	_, err = NewGrid(0, 5, 1, geo.Vec{})
	assert.Error(t, err)
	_, err = NewGrid(1<<15, 1<<15, 1, geo.Vec{})
	assert.Error(t, err)
	_, err = NewGrid(5, 5, 1, geo.Vec{X: math.NaN()})
	assert.Error(t, err)
}

func TestScanPolygon_Square(t *testing.T) {
	m := newMap(t, 100, 1)

	added := m.ScanPolygon([]geo.Vec{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}})

	assert.Equal(t, 100, added)
	assert.Equal(t, 100, m.Count())
	assert.InDelta(t, 1.0, m.Percentage(), 1e-12)
	assert.True(t, m.Scanned(geo.Vec{X: 0.5, Y: 0.5}))
	assert.True(t, m.Scanned(geo.Vec{X: 9.9, Y: 9.9}))
	assert.False(t, m.Scanned(geo.Vec{X: 10.5, Y: 5}))
	assert.False(t, m.Scanned(geo.Vec{X: -0.5, Y: 5}))
}

func TestScanPolygon_ClipsToGrid(t *testing.T) {
	m := newMap(t, 10, 1)

	added := m.ScanPolygon([]geo.Vec{{X: -100, Y: -100}, {X: 100, Y: -100}, {X: 100, Y: 100}, {X: -100, Y: 100}})

	assert.Equal(t, 100, added)
	assert.Equal(t, 100.0, m.Percentage())
}

func TestScanPolygon_Degenerate(t *testing.T) {
	m := newMap(t, 10, 1)

	assert.Equal(t, 0, m.ScanPolygon(nil))
	assert.Equal(t, 0, m.ScanPolygon([]geo.Vec{{X: 0, Y: 0}, {X: 1, Y: 1}}))
	assert.Equal(t, 0, m.ScanPolygon([]geo.Vec{{X: 0, Y: 0}, {X: math.Inf(1), Y: 0}, {X: 0, Y: 3}}))
	assert.Equal(t, 0, m.Count())
}

func TestScan_Idempotent(t *testing.T) {
	m := newMap(t, 1000, 2)
	w := wedge(t, geo.Vec{}, 0, 45, 200)

	first := m.Scan(w)
	require.Greater(t, first, 0)
	pct := m.Percentage()

	assert.Equal(t, 0, m.Scan(w))
	assert.Equal(t, pct, m.Percentage())
}

func TestScan_MatchesWedgeArea(t *testing.T) {
	m := newMap(t, 1000, 1)
	w := wedge(t, geo.Vec{}, 30, 45, 200)

	m.Scan(w)

	cellsArea := float64(m.Count()) * m.CellSize() * m.CellSize()
	assert.InDelta(t, w.Area(), cellsArea, w.Area()*0.02)
}

func TestScan_MembershipAgreesWithWedge(t *testing.T) {
	m := newMap(t, 1000, 2)
	w := wedge(t, geo.Vec{X: 13, Y: -7}, 120, 45, 150)
	m.Scan(w)

	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 300; n++ {
		i, j := rng.Intn(m.Cols()), rng.Intn(m.Rows())
		centre := geo.Vec{
			X: m.Origin().X + (float64(i)+0.5)*m.CellSize(),
			Y: m.Origin().Y + (float64(j)+0.5)*m.CellSize(),
		}
		// skip centres sitting on the boundary
		if w.Contains(centre) != m.CellScanned(i, j) {
			near := w.Contains(centre.Add(geo.Vec{X: 0.01})) != w.Contains(centre.Add(geo.Vec{X: -0.01}))
			assert.True(t, near, "cell %d,%d disagrees with wedge", i, j)
		}
	}
}

func TestScan_MonotonicUnderSweep(t *testing.T) {
	m := newMap(t, 2000, 4)
	last := m.Percentage()

	for mast := 0.0; mast < 720; mast += 7.5 {
		m.Scan(wedge(t, geo.Vec{X: float64(int(mast) % 50)}, mast, 45, 200))
		pct := m.Percentage()
		require.GreaterOrEqual(t, pct, last)
		require.LessOrEqual(t, pct, 100.0)
		last = pct
	}
	assert.Greater(t, last, 0.0)
}

func TestStationarySweep_Stabilizes(t *testing.T) {
	m := newMap(t, DefaultExtent, DefaultCellSize)

	sweep := func() {
		for mast := -45.0; mast <= 45; mast += 5 {
			m.Scan(wedge(t, geo.Vec{}, mast, 45, 200))
		}
	}

	sweep()
	after := m.Percentage()
	assert.Greater(t, after, 0.0)

	sweep()
	assert.Equal(t, after, m.Percentage())
}

func TestCellScanned_OutOfRange(t *testing.T) {
	m := newMap(t, 10, 1)
	m.ScanPolygon([]geo.Vec{{X: -100, Y: -100}, {X: 100, Y: -100}, {X: 100, Y: 100}, {X: -100, Y: 100}})

	assert.False(t, m.CellScanned(-1, 0))
	assert.False(t, m.CellScanned(0, 10))
	assert.True(t, m.CellScanned(9, 9))
}

func TestResetAndClone(t *testing.T) {
	m := newMap(t, 100, 1)
	m.ScanPolygon([]geo.Vec{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}})
	c := m.Clone()

	m.Reset()

	assert.Equal(t, 0, m.Count())
	assert.False(t, m.Scanned(geo.Vec{X: 9, Y: 1}))
	assert.True(t, c.Scanned(geo.Vec{X: 9, Y: 1}))
	assert.False(t, m.Equal(c))
}

func TestEnvelope(t *testing.T) {
	m := newMap(t, 1000, 4)

	min, max, ok := m.Envelope().MinMaxXYs()
	require.True(t, ok)
	assert.InDelta(t, -500.0, min.X, 1e-9)
	assert.InDelta(t, -500.0, min.Y, 1e-9)
	assert.InDelta(t, 500.0, max.X, 1e-9)
	assert.InDelta(t, 500.0, max.Y, 1e-9)
}

func TestScan_WedgeOffGrid(t *testing.T) {
	m := newMap(t, 1000, 4)

	// pointing away from a grid it already lies outside of
	w := wedge(t, geo.Vec{X: 2000, Y: 2000}, 45, 30, 200)
	assert.Equal(t, 0, m.Scan(w))
	assert.Equal(t, 0, m.Count())

	// partly overlapping the grid edge still scans the inside part
	w = wedge(t, geo.Vec{X: 450, Y: 0}, 0, 45, 200)
	assert.Positive(t, m.Scan(w))
}

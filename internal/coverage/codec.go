package coverage

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/roverscan/rovermap/internal/geo"
)

// Binary layout, big endian:
//
//	magic    [4]byte "RVCM"
//	version  uint8
//	cols     uint32
//	rows     uint32
//	cell     float64
//	originX  float64
//	originY  float64
//	bitmap   gzip stream of ceil(cols*rows/8) bytes, row-major, LSB first
const (
	codecMagic   = "RVCM"
	codecVersion = 1
	headerLen    = 4 + 1 + 4 + 4 + 8 + 8 + 8
)

type header struct {
	Magic    [4]byte
	Version  uint8
	Cols     uint32
	Rows     uint32
	CellSize float64
	OriginX  float64
	OriginY  float64
}

// MarshalBinary encodes the map losslessly, independent of any pixel
// format.
func (m *Map) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	h := header{
		Version:  codecVersion,
		Cols:     uint32(m.cols),
		Rows:     uint32(m.rows),
		CellSize: m.cellSize,
		OriginX:  m.origin.X,
		OriginY:  m.origin.Y,
	}
	copy(h.Magic[:], codecMagic)
	if err := binary.Write(&buf, binary.BigEndian, h); err != nil {
		return nil, fmt.Errorf("failed to write coverage header: %w", err)
	}

	gzWriter := gzip.NewWriter(&buf)
	if _, err := gzWriter.Write(m.Bitmap()); err != nil {
		return nil, fmt.Errorf("failed to compress coverage bitmap: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary replaces m with the decoded map. On error m is left
// unchanged.
func (m *Map) UnmarshalBinary(data []byte) error {
	if len(data) < headerLen {
		return fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(data))
	}
	var h header
	if err := binary.Read(bytes.NewReader(data[:headerLen]), binary.BigEndian, &h); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if string(h.Magic[:]) != codecMagic {
		return fmt.Errorf("%w: bad magic %q", ErrCorrupt, h.Magic[:])
	}
	if h.Version != codecVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, h.Version)
	}
	if h.Cols > math.MaxInt32 || h.Rows > math.MaxInt32 {
		return fmt.Errorf("%w: grid %dx%d", ErrCorrupt, h.Cols, h.Rows)
	}

	decoded, err := NewGrid(int(h.Cols), int(h.Rows), h.CellSize, geo.Vec{X: h.OriginX, Y: h.OriginY})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	gzReader, err := gzip.NewReader(bytes.NewReader(data[headerLen:]))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer gzReader.Close()

	want := (decoded.Total() + 7) / 8
	bitmap, err := io.ReadAll(io.LimitReader(gzReader, int64(want)+1))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := decoded.SetBitmap(bitmap); err != nil {
		return err
	}

	*m = *decoded
	return nil
}

// Bitmap returns the packed membership bits: ceil(cols*rows/8) bytes,
// row-major from the minimum corner, least significant bit first.
func (m *Map) Bitmap() []byte {
	out := make([]byte, len(m.words)*8)
	for k, w := range m.words {
		binary.LittleEndian.PutUint64(out[k*8:], w)
	}
	return out[:(m.Total()+7)/8]
}

// SetBitmap replaces the membership bits with a bitmap produced by Bitmap.
func (m *Map) SetBitmap(bitmap []byte) error {
	want := (m.Total() + 7) / 8
	if len(bitmap) != want {
		return fmt.Errorf("%w: bitmap has %d bytes, want %d", ErrCorrupt, len(bitmap), want)
	}
	if rem := m.Total() % 8; rem != 0 && bitmap[want-1]>>rem != 0 {
		return fmt.Errorf("%w: padding bits set", ErrCorrupt)
	}

	padded := make([]byte, len(m.words)*8)
	copy(padded, bitmap)
	words := make([]uint64, len(m.words))
	for k := range words {
		words[k] = binary.LittleEndian.Uint64(padded[k*8:])
	}
	m.words = words
	m.recount()
	return nil
}

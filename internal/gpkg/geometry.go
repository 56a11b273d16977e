package gpkg

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

var ErrInvalidGeometry = errors.New("gpkg: invalid geometry blob")

const (
	flagLittleEndian = 0x01
	flagEnvelopeXY   = 0x01 << 1
	flagEmpty        = 0x10
)

// envelopeSizes is indexed by the envelope contents indicator (flag bits 1-3).
var envelopeSizes = [...]int{0, 32, 48, 48, 64}

// EncodeGeometry wraps the WKB of g in a GeoPackage binary header. Points carry
// no envelope; everything else gets an XY envelope.
func EncodeGeometry(g orb.Geometry, srsID int32) ([]byte, error) {
	body, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("marshal wkb: %w", err)
	}

	_, isPoint := g.(orb.Point)
	flags := byte(flagLittleEndian)
	if !isPoint {
		flags |= flagEnvelopeXY
	}

	var buf bytes.Buffer
	buf.Grow(8 + 32 + len(body))
	buf.Write([]byte{'G', 'P', 0, flags})
	_ = binary.Write(&buf, binary.LittleEndian, srsID)
	if !isPoint {
		b := g.Bound()
		_ = binary.Write(&buf, binary.LittleEndian, [4]float64{b.Min.X(), b.Max.X(), b.Min.Y(), b.Max.Y()})
	}
	buf.Write(body)
	return buf.Bytes(), nil
}

// DecodeGeometry parses a GeoPackage geometry blob. Empty geometries decode to nil.
func DecodeGeometry(blob []byte) (orb.Geometry, int32, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, 0, ErrInvalidGeometry
	}
	if blob[2] != 0 {
		return nil, 0, fmt.Errorf("%w: unsupported version %d", ErrInvalidGeometry, blob[2])
	}

	flags := blob[3]
	var order binary.ByteOrder = binary.BigEndian
	if flags&flagLittleEndian != 0 {
		order = binary.LittleEndian
	}
	srsID := int32(order.Uint32(blob[4:8]))

	indicator := int(flags>>1) & 0x07
	if indicator >= len(envelopeSizes) {
		return nil, 0, fmt.Errorf("%w: envelope indicator %d", ErrInvalidGeometry, indicator)
	}
	offset := 8 + envelopeSizes[indicator]
	if len(blob) < offset {
		return nil, 0, fmt.Errorf("%w: truncated header", ErrInvalidGeometry)
	}
	if flags&flagEmpty != 0 {
		return nil, srsID, nil
	}

	g, err := wkb.Unmarshal(blob[offset:])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	return g, srsID, nil
}

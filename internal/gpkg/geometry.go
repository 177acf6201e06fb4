package gpkg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/rr-wellmatch/internal/geo"
)

const (
	flagLittleEndian = 0x01
	flagEmpty        = 0x10
	flagExtended     = 0x20
)

// ErrInvalidGeometry is returned for blobs that are not GeoPackage geometries.
var ErrInvalidGeometry = errors.New("invalid GeoPackage geometry blob")

var envelopeSizes = [...]int{0, 32, 48, 48, 64}

// EncodeGeometry builds a GeoPackage geometry blob: the "GP" header with an
// XY envelope followed by little-endian WKB.
func EncodeGeometry(g geom.T, srid int) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	body, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("encode wkb: %w", err)
	}

	buf := make([]byte, 0, 8+32+len(body))
	buf = append(buf, 'G', 'P', 0)

	if len(g.FlatCoords()) == 0 {
		buf = append(buf, flagLittleEndian|flagEmpty)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(srid)))
		return append(buf, body...), nil
	}

	buf = append(buf, flagLittleEndian|1<<1)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(srid)))
	b := g.Bounds()
	for _, v := range [...]float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)} {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return append(buf, body...), nil
}

// DecodeGeometry parses a GeoPackage geometry blob. Empty geometries decode
// to nil.
func DecodeGeometry(blob []byte) (geom.T, int, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, 0, ErrInvalidGeometry
	}
	flags := blob[3]
	if flags&flagExtended != 0 {
		return nil, 0, fmt.Errorf("extended geometry types are not supported: %w", ErrInvalidGeometry)
	}

	var order binary.ByteOrder = binary.BigEndian
	if flags&flagLittleEndian != 0 {
		order = binary.LittleEndian
	}
	srid := int(int32(order.Uint32(blob[4:8])))

	envType := int(flags>>1) & 0x07
	if envType >= len(envelopeSizes) {
		return nil, 0, fmt.Errorf("envelope indicator %d: %w", envType, ErrInvalidGeometry)
	}
	start := 8 + envelopeSizes[envType]
	if len(blob) < start {
		return nil, 0, fmt.Errorf("truncated header: %w", ErrInvalidGeometry)
	}
	if flags&flagEmpty != 0 {
		return nil, srid, nil
	}

	g, err := wkb.Unmarshal(blob[start:])
	if err != nil {
		return nil, 0, fmt.Errorf("decode wkb: %w", err)
	}
	if isEmptyPoint(g) {
		return nil, srid, nil
	}
	return geo.WithSRID(g, srid), srid, nil
}

// Empty points are written as WKB with NaN coordinates.
func isEmptyPoint(g geom.T) bool {
	p, ok := g.(*geom.Point)
	if !ok {
		return false
	}
	return math.IsNaN(p.X()) && math.IsNaN(p.Y())
}

// GeometryTypeName is the gpkg_geometry_columns type for g.
func GeometryTypeName(g geom.T) string {
	switch g.(type) {
	case *geom.Point:
		return "POINT"
	case *geom.MultiPoint:
		return "MULTIPOINT"
	case *geom.LineString:
		return "LINESTRING"
	case *geom.MultiLineString:
		return "MULTILINESTRING"
	case *geom.Polygon:
		return "POLYGON"
	case *geom.MultiPolygon:
		return "MULTIPOLYGON"
	case *geom.GeometryCollection:
		return "GEOMETRYCOLLECTION"
	default:
		return "GEOMETRY"
	}
}

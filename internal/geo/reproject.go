package geo

import (
	"fmt"

	"github.com/ctessum/geom/proj"
	"github.com/twpayne/go-geom"
)

// Reprojector converts geometries between two spatial references.
type Reprojector struct {
	from, to  int
	def       string
	transform proj.Transformer
}

// NewReprojector builds a transform between two spatial references.
// Identical codes give an identity transform; an unknown source (srid 0)
// cannot be reprojected.
func NewReprojector(from, to CRS) (*Reprojector, error) {
	if from.SRID == to.SRID {
		return &Reprojector{from: from.SRID, to: to.SRID}, nil
	}
	if from.SRID <= 0 {
		return nil, fmt.Errorf("cannot reproject geometries without a source CRS: %w", ErrUnsupportedCRS)
	}
	srcSR, err := from.spatialReference()
	if err != nil {
		return nil, err
	}
	dstSR, err := to.spatialReference()
	if err != nil {
		return nil, err
	}
	t, err := srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, fmt.Errorf("transform EPSG:%d -> EPSG:%d: %w", from.SRID, to.SRID, err)
	}
	return &Reprojector{from: from.SRID, to: to.SRID, def: to.definition(), transform: t}, nil
}

// Identity reports whether Apply returns its input unchanged.
func (r *Reprojector) Identity() bool {
	return r.transform == nil
}

// Target is the SRID geometries are converted into.
func (r *Reprojector) Target() int {
	return r.to
}

// Definition is the target's WKT, or its PROJ.4 string when no WKT is known.
func (r *Reprojector) Definition() string {
	return r.def
}

// Apply returns a reprojected copy of g. The input is never modified.
func (r *Reprojector) Apply(g geom.T) (geom.T, error) {
	if g == nil || r.Identity() {
		return g, nil
	}

	stride := g.Stride()
	src := g.FlatCoords()
	flat := make([]float64, len(src))
	copy(flat, src)
	for i := 0; i+1 < len(flat); i += stride {
		x, y, err := r.transform(flat[i], flat[i+1])
		if err != nil {
			return nil, fmt.Errorf("reproject coordinate (%f, %f): %w", flat[i], flat[i+1], err)
		}
		flat[i], flat[i+1] = x, y
	}

	switch t := g.(type) {
	case *geom.Point:
		return geom.NewPointFlat(t.Layout(), flat).SetSRID(r.to), nil
	case *geom.MultiPoint:
		return geom.NewMultiPointFlat(t.Layout(), flat).SetSRID(r.to), nil
	case *geom.LineString:
		return geom.NewLineStringFlat(t.Layout(), flat).SetSRID(r.to), nil
	case *geom.MultiLineString:
		return geom.NewMultiLineStringFlat(t.Layout(), flat, copyEnds(t.Ends())).SetSRID(r.to), nil
	case *geom.Polygon:
		return geom.NewPolygonFlat(t.Layout(), flat, copyEnds(t.Ends())).SetSRID(r.to), nil
	case *geom.MultiPolygon:
		endss := make([][]int, len(t.Endss()))
		for i, ends := range t.Endss() {
			endss[i] = copyEnds(ends)
		}
		return geom.NewMultiPolygonFlat(t.Layout(), flat, endss).SetSRID(r.to), nil
	default:
		return nil, fmt.Errorf("reproject %T: unsupported geometry type", g)
	}
}

func copyEnds(ends []int) []int {
	out := make([]int, len(ends))
	copy(out, ends)
	return out
}

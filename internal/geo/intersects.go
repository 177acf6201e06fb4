package geo

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// Intersects reports whether an areal geometry (Polygon or MultiPolygon)
// shares at least one point with a point geometry (Point or MultiPoint).
// Points on a ring boundary intersect; points strictly inside a hole do not.
// Other geometry combinations never intersect.
func Intersects(area, pts geom.T) bool {
	if area == nil || pts == nil || len(area.FlatCoords()) == 0 || len(pts.FlatCoords()) == 0 {
		return false
	}
	if !area.Bounds().Overlaps(geom.XY, pts.Bounds()) {
		return false
	}

	var coords []geom.Coord
	switch p := pts.(type) {
	case *geom.Point:
		coords = []geom.Coord{p.Coords()}
	case *geom.MultiPoint:
		for i := 0; i < p.NumPoints(); i++ {
			coords = append(coords, p.Point(i).Coords())
		}
	default:
		return false
	}

	for _, c := range coords {
		switch a := area.(type) {
		case *geom.Polygon:
			if polygonContains(a, c) {
				return true
			}
		case *geom.MultiPolygon:
			for i := 0; i < a.NumPolygons(); i++ {
				if polygonContains(a.Polygon(i), c) {
					return true
				}
			}
		}
	}
	return false
}

func polygonContains(p *geom.Polygon, c geom.Coord) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	layout := p.Layout()
	if xy.LocatePointInRing(layout, c, p.LinearRing(0).FlatCoords()) == location.Exterior {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.LocatePointInRing(layout, c, p.LinearRing(i).FlatCoords()) == location.Interior {
			return false
		}
	}
	return true
}

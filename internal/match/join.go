package match

import (
	"fmt"

	"github.com/twpayne/go-geom"

	"github.com/rr-wellmatch/internal/dataset"
	"github.com/rr-wellmatch/internal/geo"
)

// Merge is an inner equi-join of left.leftOn against right.rightOn. Rows are
// produced in left order and, for each left row, in right order. Missing
// keys never match. The result keeps left's geometry. Left columns come
// first; names present on both sides get "_x" and "_y" suffixes, except a
// key column shared by name, which appears once.
func Merge(name string, left, right *dataset.Table, leftOn, rightOn string) (*dataset.Table, error) {
	if err := left.Require(leftOn); err != nil {
		return nil, err
	}
	if err := right.Require(rightOn); err != nil {
		return nil, err
	}

	skip := -1
	if leftOn == rightOn {
		skip = right.ColumnIndex(rightOn)
	}
	cols, rightIdx := joinColumns(left.Columns, right.Columns, skip, nil, mergeLeftSuffix, mergeRightSuffix)

	byKey := make(map[string][]int)
	for j := range right.Rows {
		if v := right.Value(j, rightOn); v != nil {
			k := dataset.Format(v)
			byKey[k] = append(byKey[k], j)
		}
	}

	out := &dataset.Table{Name: name, Columns: cols, SRID: left.SRID, Definition: left.Definition, Geospatial: left.Geospatial}
	for i, lrow := range left.Rows {
		v := left.Value(i, leftOn)
		if v == nil {
			continue
		}
		for _, j := range byKey[dataset.Format(v)] {
			vals := make([]any, 0, len(cols))
			vals = append(vals, lrow.Values...)
			for _, k := range rightIdx {
				vals = append(vals, right.Rows[j].Values[k])
			}
			out.Rows = append(out.Rows, dataset.Row{Values: vals, Geom: lrow.Geom})
		}
	}
	return out, nil
}

// SpatialJoin pairs every left row with every right row whose geometry
// intersects it. Both tables must share a spatial reference. The result
// carries the left columns, index_right (the right row position), then the
// right columns; clashing names get "_left" and "_right" suffixes. Geometry
// is taken from the left row.
func SpatialJoin(name string, left, right *dataset.Table) (*dataset.Table, error) {
	if !left.Geospatial || !right.Geospatial {
		return nil, fmt.Errorf("spatial join %s: %w", name, dataset.ErrMissingGeometry)
	}
	if left.SRID != right.SRID {
		return nil, fmt.Errorf("spatial join %s: EPSG:%d and EPSG:%d differ", name, left.SRID, right.SRID)
	}

	extra := []dataset.Column{{Name: ColIndexRight, Kind: dataset.KindInteger}}
	cols, rightIdx := joinColumns(left.Columns, right.Columns, -1, extra, sjoinLeftSuffix, sjoinRightSuffix)

	bounds := make([]*geom.Bounds, len(right.Rows))
	for j, r := range right.Rows {
		if r.Geom != nil && len(r.Geom.FlatCoords()) > 0 {
			bounds[j] = r.Geom.Bounds()
		}
	}

	out := &dataset.Table{Name: name, Columns: cols, SRID: left.SRID, Definition: left.Definition, Geospatial: true}
	for _, lrow := range left.Rows {
		if lrow.Geom == nil || len(lrow.Geom.FlatCoords()) == 0 {
			continue
		}
		lb := lrow.Geom.Bounds()
		for j, rrow := range right.Rows {
			if bounds[j] == nil || !lb.Overlaps(geom.XY, bounds[j]) {
				continue
			}
			if !intersects(lrow.Geom, rrow.Geom) {
				continue
			}
			vals := make([]any, 0, len(cols))
			vals = append(vals, lrow.Values...)
			vals = append(vals, int64(j))
			for _, k := range rightIdx {
				vals = append(vals, rrow.Values[k])
			}
			out.Rows = append(out.Rows, dataset.Row{Values: vals, Geom: lrow.Geom})
		}
	}
	return out, nil
}

func intersects(a, b geom.T) bool {
	return geo.Intersects(a, b) || geo.Intersects(b, a)
}

// joinColumns lays out left columns, then extra, then right columns except
// the one at skip. It returns the layout and the right column positions
// that feed it.
func joinColumns(left, right []dataset.Column, skip int, extra []dataset.Column, lsuffix, rsuffix string) ([]dataset.Column, []int) {
	rightNames := make(map[string]bool, len(right))
	for j, c := range right {
		if j != skip {
			rightNames[c.Name] = true
		}
	}
	leftNames := make(map[string]bool, len(left))
	for _, c := range left {
		leftNames[c.Name] = true
	}

	cols := make([]dataset.Column, 0, len(left)+len(extra)+len(right))
	for _, c := range left {
		if rightNames[c.Name] {
			c.Name += lsuffix
		}
		cols = append(cols, c)
	}
	cols = append(cols, extra...)

	idx := make([]int, 0, len(right))
	for j, c := range right {
		if j == skip {
			continue
		}
		if leftNames[c.Name] {
			c.Name += rsuffix
		}
		cols = append(cols, c)
		idx = append(idx, j)
	}
	return cols, idx
}

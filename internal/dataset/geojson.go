package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"

	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/rr-wellmatch/internal/geo"
)

// GeoJSON without a crs member is WGS 84 (RFC 7946).
const geoJSONDefaultSRID = 4326

var reEPSG = regexp.MustCompile(`EPSG:{1,2}(\d+)`)

type legacyCRS struct {
	CRS *struct {
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs"`
}

// ReadGeoJSON loads a FeatureCollection. Property columns are ordered by
// name; column kinds are inferred from the values present.
func ReadGeoJSON(name, path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse %s as GeoJSON: %w", path, err)
	}

	srid := geoJSONDefaultSRID
	var named legacyCRS
	if err := json.Unmarshal(data, &named); err == nil && named.CRS != nil {
		m := reEPSG.FindStringSubmatch(named.CRS.Properties.Name)
		if m == nil {
			if named.CRS.Properties.Name == "urn:ogc:def:crs:OGC:1.3:CRS84" {
				m = []string{"", "4326"}
			} else {
				return nil, fmt.Errorf("%s: unrecognised crs %q", path, named.CRS.Properties.Name)
			}
		}
		srid, _ = strconv.Atoi(m[1])
	}

	keys := map[string]struct{}{}
	for _, f := range fc.Features {
		for k := range f.Properties {
			keys[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Kind: inferKind(fc.Features, n)}
	}

	t := New(name, cols...)
	t.SRID = srid
	t.Geospatial = true
	t.Rows = make([]Row, 0, len(fc.Features))
	for _, f := range fc.Features {
		vals := make([]any, len(cols))
		for i, c := range cols {
			vals[i] = coerce(f.Properties[c.Name], c.Kind)
		}
		g := f.Geometry
		if g != nil && g.SRID() == 0 {
			g = geo.WithSRID(g, srid)
		}
		t.Rows = append(t.Rows, Row{Values: vals, Geom: g})
	}
	return t, nil
}

func inferKind(features []*geojson.Feature, key string) Kind {
	kind := Kind(-1)
	for _, f := range features {
		v, ok := f.Properties[key]
		if !ok || v == nil {
			continue
		}
		var k Kind
		switch x := v.(type) {
		case bool:
			k = KindBool
		case float64:
			if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
				k = KindInteger
			} else {
				k = KindReal
			}
		case string:
			k = KindText
		default:
			return KindText
		}
		switch {
		case kind < 0:
			kind = k
		case kind != k:
			kind = widen(kind, k)
		}
	}
	if kind < 0 {
		return KindText
	}
	return kind
}

func coerce(v any, kind Kind) any {
	if v == nil {
		return nil
	}
	switch kind {
	case KindInteger:
		if f, ok := v.(float64); ok {
			return int64(f)
		}
	case KindReal, KindBool:
		return v
	}
	switch x := v.(type) {
	case string:
		return x
	case float64, bool:
		return Format(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

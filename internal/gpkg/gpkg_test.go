package gpkg

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/rr-wellmatch/internal/dataset"
	"github.com/rr-wellmatch/internal/geo"
)

func wellsTable() *dataset.Table {
	t := dataset.New("wells",
		dataset.Column{Name: "WELLID", Kind: dataset.KindInteger},
		dataset.Column{Name: "UTME", Kind: dataset.KindReal},
		dataset.Column{Name: "DATE_DRLL", Kind: dataset.KindInteger},
		dataset.Column{Name: "OWNER", Kind: dataset.KindText},
		dataset.Column{Name: "Verified", Kind: dataset.KindBool},
	)
	t.Geospatial = true
	t.SRID = 26915
	t.Append(geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{500010, 4982950}).SetSRID(26915),
		int64(101), 500010.0, int64(19850612), "SMITH", true)
	t.Append(geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{500020, 4982960}).SetSRID(26915),
		int64(102), 500020.5, int64(0), nil, false)
	t.Append(nil, int64(103), nil, nil, "JONES", false)
	return t
}

func TestGeometryRoundTrip(t *testing.T) {
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0},
	}})

	blob, err := EncodeGeometry(poly, 26915)
	require.NoError(t, err)
	assert.Equal(t, []byte("GP"), blob[:2])
	assert.Equal(t, byte(0x03), blob[3], "little endian with XY envelope")

	g, srid, err := DecodeGeometry(blob)
	require.NoError(t, err)
	assert.Equal(t, 26915, srid)
	assert.Equal(t, 26915, g.SRID())
	assert.Equal(t, poly.FlatCoords(), g.FlatCoords())
	assert.Equal(t, poly.Ends(), g.Ends())
}

func TestEncodeGeometryHeader(t *testing.T) {
	pt := geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{500020.5, 4982960})

	blob, err := EncodeGeometry(pt, 26915)
	require.NoError(t, err)
	require.Greater(t, len(blob), 40)

	assert.Equal(t, uint32(26915), binary.LittleEndian.Uint32(blob[4:8]))
	envelope := make([]float64, 4)
	for i := range envelope {
		envelope[i] = math.Float64frombits(binary.LittleEndian.Uint64(blob[8+8*i:]))
	}
	assert.Equal(t, []float64{500020.5, 500020.5, 4982960, 4982960}, envelope)

	body, err := wkb.Unmarshal(blob[40:])
	require.NoError(t, err)
	assert.Equal(t, pt.FlatCoords(), body.FlatCoords())

	empty, err := EncodeGeometry(geom.NewMultiPoint(geom.XY), -1)
	require.NoError(t, err)
	assert.Equal(t, byte(flagLittleEndian|flagEmpty), empty[3])
	assert.Equal(t, int32(-1), int32(binary.LittleEndian.Uint32(empty[4:8])))
}

func TestEncodeNilGeometry(t *testing.T) {
	blob, err := EncodeGeometry(nil, 4326)
	require.NoError(t, err)
	assert.Nil(t, blob)
}

func TestDecodeGeometryRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
	}{
		{"too short", []byte("GP")},
		{"wrong magic", []byte("XX\x00\x01\x00\x00\x00\x00")},
		{"extended type", []byte("GP\x00\x21\x00\x00\x00\x00")},
		{"bad envelope", []byte("GP\x00\x0b\x00\x00\x00\x00")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeGeometry(tt.blob)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidGeometry))
		})
	}
}

func TestWriteRead(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wells.gpkg")
	src := wellsTable()

	require.NoError(t, Write(ctx, path, src))

	got, err := Read(ctx, "wells", path, "")
	require.NoError(t, err)

	assert.True(t, got.Geospatial)
	assert.Equal(t, 26915, got.SRID)
	assert.Equal(t, src.ColumnNames(), got.ColumnNames())
	require.Equal(t, src.Len(), got.Len())

	assert.Equal(t, int64(101), got.Value(0, "WELLID"))
	assert.Equal(t, 500020.5, got.Value(1, "UTME"))
	assert.Equal(t, int64(0), got.Value(1, "DATE_DRLL"))
	assert.Nil(t, got.Value(1, "OWNER"))
	assert.Equal(t, true, got.Value(0, "Verified"))
	assert.Equal(t, false, got.Value(1, "Verified"))

	for i := 0; i < 2; i++ {
		require.NotNil(t, got.Rows[i].Geom)
		assert.Equal(t, src.Rows[i].Geom.FlatCoords(), got.Rows[i].Geom.FlatCoords())
	}
	assert.Nil(t, got.Rows[2].Geom)
}

func TestWriteOverwrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wells.gpkg")

	require.NoError(t, Write(ctx, path, wellsTable()))

	smaller := wellsTable()
	smaller.Rows = smaller.Rows[:1]
	require.NoError(t, Write(ctx, path, smaller))

	got, err := Read(ctx, "wells", path, "")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
}

func TestWriteMetadata(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "located.gpkg")
	src := wellsTable().Rename("located")

	require.NoError(t, Write(ctx, path, src))

	db, err := sql.Open(driverName, path)
	require.NoError(t, err)
	defer db.Close()

	var appID int64
	require.NoError(t, db.QueryRow("PRAGMA application_id").Scan(&appID))
	assert.Equal(t, int64(applicationID), appID)

	var geomType string
	var srid int
	require.NoError(t, db.QueryRow(
		`SELECT geometry_type_name, srs_id FROM gpkg_geometry_columns WHERE table_name = 'located'`,
	).Scan(&geomType, &srid))
	assert.Equal(t, "POINT", geomType)
	assert.Equal(t, 26915, srid)

	var org string
	require.NoError(t, db.QueryRow(
		`SELECT organization FROM gpkg_spatial_ref_sys WHERE srs_id = 26915`,
	).Scan(&org))
	assert.Equal(t, "EPSG", org)
}

func TestWriteRequiresGeometry(t *testing.T) {
	flat := dataset.New("samples", dataset.Column{Name: "Lab_SampleID"})
	err := Write(context.Background(), filepath.Join(t.TempDir(), "x.gpkg"), flat)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dataset.ErrMissingGeometry))
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(context.Background(), "parcels", filepath.Join(t.TempDir(), "nope.gpkg"), "")
	require.Error(t, err)
}

func TestDateColumnsRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dated.gpkg")

	src := dataset.New("dated", dataset.Column{Name: "DATE_DRLL", Kind: dataset.KindDate})
	src.Geospatial = true
	src.SRID = 26915
	src.Append(geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{1, 2}), time.Date(1985, 6, 12, 0, 0, 0, 0, time.UTC))
	require.NoError(t, Write(ctx, path, src))

	got, err := Read(ctx, "dated", path, "")
	require.NoError(t, err)
	assert.Equal(t, "1985-06-12", dataset.Format(got.Value(0, "DATE_DRLL")))
}

func TestWriteKeepsSourceDefinition(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "parcels.gpkg")

	zone14, err := geo.Lookup(26914)
	require.NoError(t, err)
	src := wellsTable().Rename("parcels")
	src.SRID, src.Definition = 990014, zone14.WKT
	require.NoError(t, Write(ctx, path, src))

	db, err := sql.Open(driverName, path)
	require.NoError(t, err)
	defer db.Close()
	var definition string
	require.NoError(t, db.QueryRow(
		`SELECT definition FROM gpkg_spatial_ref_sys WHERE srs_id = 990014`,
	).Scan(&definition))
	assert.Equal(t, zone14.WKT, definition)

	got, err := Read(ctx, "parcels", path, "")
	require.NoError(t, err)
	assert.Equal(t, 990014, got.SRID)
	assert.Equal(t, zone14.WKT, got.Definition)

	moved, err := got.Reproject(geo.TargetSRID)
	require.NoError(t, err)
	assert.Equal(t, geo.TargetSRID, moved.SRID)
	assert.Contains(t, moved.Definition, `AUTHORITY["EPSG","26915"]`)
}

func TestWriteUnknownCodeWithoutDefinition(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wells.gpkg")

	src := wellsTable()
	src.SRID = 990015
	require.NoError(t, Write(ctx, path, src))

	got, err := Read(ctx, "wells", path, "")
	require.NoError(t, err)
	assert.Empty(t, got.Definition)

	_, err = got.Reproject(geo.TargetSRID)
	assert.ErrorIs(t, err, geo.ErrUnsupportedCRS)
}

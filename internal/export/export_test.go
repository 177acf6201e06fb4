package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap/zaptest"

	"github.com/rr-wellmatch/internal/dataset"
	"github.com/rr-wellmatch/internal/gpkg"
)

func uniqueMatches() *dataset.Table {
	t := dataset.New("unique_sample_well_match",
		dataset.Column{Name: "Lab_SampleID", Kind: dataset.KindText},
		dataset.Column{Name: "WELLID", Kind: dataset.KindInteger},
		dataset.Column{Name: "UTME", Kind: dataset.KindReal},
		dataset.Column{Name: "Verified", Kind: dataset.KindBool},
		dataset.Column{Name: "DATE_DRLL", Kind: dataset.KindInteger},
	)
	t.Geospatial, t.SRID = true, 26915
	t.Append(geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{0, 0}, {10, 0}, {10, 10}, {0, 0}}}),
		"2020-001", int64(101), 500010.0, true, int64(0))
	t.Append(nil, "2020-002", int64(102), nil, false, nil)
	return t
}

type recordingPublisher struct {
	names []string
	err   error
}

func (r *recordingPublisher) Publish(_ context.Context, t *dataset.Table) error {
	r.names = append(r.names, t.Name)
	return r.err
}

func TestSaveCSV(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, zaptest.NewLogger(t), nil)

	require.NoError(t, w.SaveCSV(uniqueMatches()))

	data, err := os.ReadFile(filepath.Join(dir, "unique_sample_well_match.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Lab_SampleID,WELLID,UTME,Verified,DATE_DRLL,geometry", lines[0])
	assert.Equal(t, `2020-001,101,500010.0,True,0,"POLYGON ((0 0, 10 0, 10 10, 0 0))"`, lines[1])
	assert.Equal(t, "2020-002,102,,False,,", lines[2])
}

func TestSaveCSVFlatTable(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, nil, nil)

	flat := dataset.New("samples", dataset.Column{Name: "Lab_SampleID"})
	flat.Append(nil, "2020-001")
	require.NoError(t, w.SaveCSV(flat))

	data, err := os.ReadFile(filepath.Join(dir, "samples.csv"))
	require.NoError(t, err)
	assert.Equal(t, "Lab_SampleID\n2020-001\n", string(data))
}

func TestSaveWritesGeoPackageAndPublishes(t *testing.T) {
	dir := t.TempDir()
	pub := &recordingPublisher{}
	w := NewWriter(dir, zaptest.NewLogger(t), pub)

	require.NoError(t, w.Save(context.Background(), uniqueMatches()))

	got, err := gpkg.Read(context.Background(), "check", w.Path("unique_sample_well_match", ".gpkg"), "")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
	assert.Equal(t, []string{"unique_sample_well_match"}, pub.names)
}

func TestSavePublishFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("connection reset")}
	w := NewWriter(t.TempDir(), nil, pub)

	err := w.Save(context.Background(), uniqueMatches())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostGISPublish(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "wells"."unique_sample_well_match"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "wells"."unique_sample_well_match" (fid SERIAL PRIMARY KEY, "Lab_SampleID" TEXT, "WELLID" BIGINT, "UTME" DOUBLE PRECISION, "Verified" BOOLEAN, "DATE_DRLL" BIGINT, geom geometry(Geometry, 26915))`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	insert := regexp.QuoteMeta(`INSERT INTO "wells"."unique_sample_well_match" ("Lab_SampleID", "WELLID", "UTME", "Verified", "DATE_DRLL", geom) VALUES ($1, $2, $3, $4, $5, ST_SetSRID(ST_GeomFromWKB($6), 26915))`)
	mock.ExpectExec(insert).
		WithArgs("2020-001", int64(101), 500010.0, true, int64(0), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insert).
		WithArgs("2020-002", int64(102), nil, false, nil, nil).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, NewPostGISPublisher(db, "wells").Publish(context.Background(), uniqueMatches()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGISPublishRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS "public"."unique_sample_well_match"`).
		WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err = NewPostGISPublisher(db, "").Publish(context.Background(), uniqueMatches())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGISPublishRequiresGeometry(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	err = NewPostGISPublisher(db, "").Publish(context.Background(), dataset.New("flat"))
	assert.ErrorIs(t, err, dataset.ErrMissingGeometry)
}

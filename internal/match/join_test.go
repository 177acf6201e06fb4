package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rr-wellmatch/internal/dataset"
)

func TestMergeSuffixesClashingColumns(t *testing.T) {
	left := dataset.New("parcels", dataset.Column{Name: "ADDRESS_1"}, dataset.Column{Name: "OWNER"})
	left.Append(nil, "RR 1 BOX 1", "SMITH")
	left.Append(nil, nil, "NOBODY")

	right := dataset.New("samples", dataset.Column{Name: "OWNER"}, dataset.Column{Name: "rr_addresses"})
	right.Append(nil, "JONES", "RR 1 BOX 1")
	right.Append(nil, "LEE", nil)

	out, err := Merge("merged", left, right, "ADDRESS_1", "rr_addresses")
	require.NoError(t, err)

	assert.Equal(t, []string{"ADDRESS_1", "OWNER_x", "OWNER_y", "rr_addresses"}, out.ColumnNames())
	require.Equal(t, 1, out.Len())
	assert.Equal(t, []any{"RR 1 BOX 1", "SMITH", "JONES", "RR 1 BOX 1"}, out.Rows[0].Values)
}

func TestMergeSharedKeyAppearsOnce(t *testing.T) {
	left := dataset.New("a", dataset.Column{Name: "k"}, dataset.Column{Name: "v"})
	left.Append(nil, "1", "left")
	right := dataset.New("b", dataset.Column{Name: "k"}, dataset.Column{Name: "v"})
	right.Append(nil, "1", "right")
	right.Append(nil, "1", "again")

	out, err := Merge("merged", left, right, "k", "k")
	require.NoError(t, err)
	assert.Equal(t, []string{"k", "v_x", "v_y"}, out.ColumnNames())
	require.Equal(t, 2, out.Len())
	assert.Equal(t, "again", out.Value(1, "v_y"))
}

func TestMergeMissingKeyColumn(t *testing.T) {
	left := dataset.New("a", dataset.Column{Name: "k"})
	right := dataset.New("b", dataset.Column{Name: "j"})

	_, err := Merge("merged", left, right, "k", "k")
	require.Error(t, err)
}

func TestSpatialJoinSuffixes(t *testing.T) {
	left := dataset.New("located", dataset.Column{Name: "Lab_SampleID"}, dataset.Column{Name: "ADDRESS_1"})
	left.Geospatial, left.SRID = true, utm15
	left.Append(square(0, 0, 10), "2020-001", "RR 1 BOX 1")

	right := dataset.New("wells", dataset.Column{Name: "WELLID"}, dataset.Column{Name: "ADDRESS_1"})
	right.Geospatial, right.SRID = true, utm15
	right.Append(point(50, 50), int64(1), "ELSEWHERE")
	right.Append(point(5, 5), int64(2), "RR 1 BOX 1")

	out, err := SpatialJoin("joined", left, right)
	require.NoError(t, err)

	assert.Equal(t, []string{"Lab_SampleID", "ADDRESS_1_left", "index_right", "WELLID", "ADDRESS_1_right"}, out.ColumnNames())
	require.Equal(t, 1, out.Len())
	assert.Equal(t, []any{"2020-001", "RR 1 BOX 1", int64(1), int64(2), "RR 1 BOX 1"}, out.Rows[0].Values)
}

func TestSpatialJoinSkipsNullGeometry(t *testing.T) {
	left := dataset.New("located", dataset.Column{Name: "Lab_SampleID"})
	left.Geospatial, left.SRID = true, utm15
	left.Append(nil, "2020-001")

	right := dataset.New("wells", dataset.Column{Name: "WELLID"})
	right.Geospatial, right.SRID = true, utm15
	right.Append(point(5, 5), int64(1))

	out, err := SpatialJoin("joined", left, right)
	require.NoError(t, err)
	assert.Zero(t, out.Len())
}

func TestSpatialJoinRequiresGeometry(t *testing.T) {
	_, err := SpatialJoin("joined", dataset.New("a"), dataset.New("b"))
	require.ErrorIs(t, err, dataset.ErrMissingGeometry)
}

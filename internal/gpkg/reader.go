// Package gpkg reads and writes OGC GeoPackage feature tables.
package gpkg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"github.com/rr-wellmatch/internal/dataset"
)

const driverName = "sqlite"

// ErrNoFeatureTable is returned when a GeoPackage holds no feature layer.
var ErrNoFeatureTable = errors.New("geopackage has no feature table")

type layerInfo struct {
	table      string
	geomCol    string
	srsID      int
	org        string
	orgSRSID   int
	definition string
}

// Read loads one feature layer. When layer is empty the table named like the
// file stem is used, falling back to the first feature table.
func Read(ctx context.Context, name, path, layer string) (tbl *dataset.Table, err error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	db, err := sql.Open(driverName, path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(db))

	if layer == "" {
		layer = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	info, err := findLayer(ctx, db, layer)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	cols, pk, err := tableColumns(ctx, db, info.table, info.geomCol)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	t := dataset.New(name, cols...)
	t.Geospatial = true
	t.SRID = info.srsID
	if !strings.EqualFold(info.definition, "undefined") {
		t.Definition = info.definition
	}
	if strings.EqualFold(info.org, "EPSG") && info.orgSRSID > 0 {
		t.SRID = info.orgSRSID
	}

	selectCols := make([]string, 0, len(cols)+1)
	selectCols = append(selectCols, quoteIdent(info.geomCol))
	for _, c := range cols {
		selectCols = append(selectCols, quoteIdent(c.Name))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selectCols, ", "), quoteIdent(info.table))
	if pk != "" {
		query += " ORDER BY " + quoteIdent(pk)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s in %s: %w", info.table, path, err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(rows))

	for rows.Next() {
		var blob []byte
		raw := make([]any, len(cols))
		dest := make([]any, len(cols)+1)
		dest[0] = &blob
		for i := range raw {
			dest[i+1] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row %d: %w", info.table, t.Len(), err)
		}

		row := dataset.Row{Values: make([]any, len(cols))}
		for i, c := range cols {
			row.Values[i] = fromSQL(raw[i], c.Kind)
		}
		if len(blob) > 0 {
			g, _, err := DecodeGeometry(blob)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", info.table, t.Len(), err)
			}
			row.Geom = g
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", info.table, err)
	}
	return t, nil
}

func findLayer(ctx context.Context, db *sql.DB, layer string) (layerInfo, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT g.table_name, g.column_name, g.srs_id,
		       COALESCE(s.organization, ''), COALESCE(s.organization_coordsys_id, 0),
		       COALESCE(s.definition, '')
		FROM gpkg_contents c
		JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
		LEFT JOIN gpkg_spatial_ref_sys s ON s.srs_id = g.srs_id
		WHERE c.data_type = 'features'
		ORDER BY c.table_name
	`)
	if err != nil {
		return layerInfo{}, fmt.Errorf("failed to list layers: %w", err)
	}
	defer rows.Close()

	var layers []layerInfo
	for rows.Next() {
		var l layerInfo
		if err := rows.Scan(&l.table, &l.geomCol, &l.srsID, &l.org, &l.orgSRSID, &l.definition); err != nil {
			return layerInfo{}, fmt.Errorf("failed to scan layer: %w", err)
		}
		layers = append(layers, l)
	}
	if err := rows.Err(); err != nil {
		return layerInfo{}, err
	}
	if len(layers) == 0 {
		return layerInfo{}, ErrNoFeatureTable
	}
	for _, l := range layers {
		if l.table == layer {
			return l, nil
		}
	}
	return layers[0], nil
}

func tableColumns(ctx context.Context, db *sql.DB, table, geomCol string) ([]dataset.Column, string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var (
		cols []dataset.Column
		pk   string
	)
	for rows.Next() {
		var (
			cid       int
			name      string
			declType  string
			notNull   int
			dfltValue sql.NullString
			pkPos     int
		)
		if err := rows.Scan(&cid, &name, &declType, &notNull, &dfltValue, &pkPos); err != nil {
			return nil, "", fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		if name == geomCol {
			continue
		}
		if pkPos > 0 && strings.EqualFold(declType, "INTEGER") {
			pk = name
			continue
		}
		cols = append(cols, dataset.Column{Name: name, Kind: kindOf(declType)})
	}
	return cols, pk, rows.Err()
}

func kindOf(declType string) dataset.Kind {
	t := strings.ToUpper(declType)
	switch {
	case t == "BOOLEAN":
		return dataset.KindBool
	case t == "DATE" || t == "DATETIME":
		return dataset.KindDate
	case strings.Contains(t, "INT"):
		return dataset.KindInteger
	case t == "REAL" || t == "FLOAT" || t == "DOUBLE":
		return dataset.KindReal
	default:
		return dataset.KindText
	}
}

func fromSQL(v any, kind dataset.Kind) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(x)
	case int64:
		if kind == dataset.KindBool {
			return x != 0
		}
		if kind == dataset.KindReal {
			return float64(x)
		}
		return x
	case string:
		if kind == dataset.KindDate {
			for _, layout := range []string{time.DateOnly, time.RFC3339Nano, "2006-01-02T15:04:05"} {
				if ts, err := time.Parse(layout, x); err == nil {
					return ts
				}
			}
		}
		return x
	default:
		return x
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
